package corpus

import "errors"

var (
	// ErrChunkRepositoryRequired is returned when a nil chunk repository is provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository is required")

	// ErrEmbedderRequired is returned when a nil embedder is provided.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrPoolRequired is returned when a nil worker pool is provided.
	ErrPoolRequired = errors.New("worker pool is required")

	// ErrSyncerRequired is returned when a watcher is created without a syncer.
	ErrSyncerRequired = errors.New("syncer is required")

	// ErrEmbeddingMismatch is returned when the embedder returns a different
	// number of vectors than texts it was given.
	ErrEmbeddingMismatch = errors.New("embedding count mismatch")
)
