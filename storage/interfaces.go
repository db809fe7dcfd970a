package storage

import (
	"context"

	"github.com/poiesic/ragsync/core"
)

// ChunkRepository is the vector index plus the per-source fingerprint records
// that describe what the index was built from.
// Implementations must be thread-safe and support concurrent access.
type ChunkRepository interface {
	// ReplaceSource atomically removes every chunk previously stored for
	// record.Fingerprint.Path, stores chunks and stores record. Either all of
	// it becomes visible or none of it does.
	ReplaceSource(ctx context.Context, record *core.SourceRecord, chunks []*core.Chunk) error

	// DeleteSource removes the source record for path and every chunk derived
	// from it. Returns the number of chunks removed. Deleting an unknown path
	// is not an error.
	DeleteSource(ctx context.Context, path string) (int, error)

	// Sources returns every persisted source record keyed by path.
	Sources(ctx context.Context) (map[string]*core.SourceRecord, error)

	// Query returns up to k candidates ordered by cosine similarity to vector
	// (highest first). A non-empty categories restricts the search to chunks
	// in those categories.
	Query(ctx context.Context, vector []float32, k int, categories []string) ([]core.Candidate, error)

	// Chunks returns every stored chunk, restricted to categories when non-empty,
	// ordered by id.
	Chunks(ctx context.Context, categories []string) ([]*core.Chunk, error)

	// ForEachChunk calls fn with batches of at most batchSize chunks in id order.
	ForEachChunk(ctx context.Context, batchSize int, fn func(batch []*core.Chunk) error) error

	// UpdateVectors replaces the vectors of existing chunks, keyed by chunk id.
	// Returns ErrNotFound if any chunk does not exist.
	UpdateVectors(ctx context.Context, vectors map[string][]float32) error

	// CategoryCounts returns the number of stored chunks per category.
	CategoryCounts(ctx context.Context) (map[string]int, error)

	// Close releases resources held by the repository.
	Close() error
}

// CheckpointRepository persists the outcome of long-running processes.
type CheckpointRepository interface {
	// SaveCheckpoint stores checkpoint under its Process name, stamping UpdatedAt.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint returns the checkpoint for process, or nil if none was saved.
	LoadCheckpoint(ctx context.Context, process string) (*core.Checkpoint, error)
}
