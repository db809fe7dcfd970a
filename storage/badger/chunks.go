// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragsync/core"
	"github.com/poiesic/ragsync/storage"
)

// ChunkRepository stores chunks and source records in BadgerDB.
type ChunkRepository struct {
	backend *Backend
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) *ChunkRepository {
	return &ChunkRepository{
		backend: backend,
	}
}

// Close is a no-op; the backend owns the database handle.
func (r *ChunkRepository) Close() error {
	return nil
}

// ReplaceSource removes the old chunks of the source, writes the new chunks
// and the source record in a single transaction.
func (r *ChunkRepository) ReplaceSource(ctx context.Context, record *core.SourceRecord, chunks []*core.Chunk) error {
	if record == nil || record.Fingerprint.Path == "" {
		return fmt.Errorf("%w: source record requires a path", storage.ErrInvalidQuery)
	}
	path := record.Fingerprint.Path

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := deleteChunks(tx, path); err != nil {
			return err
		}

		for _, chunk := range chunks {
			if chunk.Source != path {
				return fmt.Errorf("%w: chunk %s belongs to %s, not %s", storage.ErrInvalidQuery, chunk.ID, chunk.Source, path)
			}
			value, err := storage.MarshalChunk(chunk)
			if err != nil {
				return err
			}
			if err := tx.Set(makeChunkKey(chunk.ID), value); err != nil {
				return err
			}
		}

		if record.SyncedAt.IsZero() {
			record.SyncedAt = time.Now().UTC()
		}
		record.ChunkCount = len(chunks)
		value, err := storage.MarshalSourceRecord(record)
		if err != nil {
			return err
		}
		if err := tx.Set(makeSourceKey(path), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	if errors.Is(err, badger.ErrTxnTooBig) {
		return fmt.Errorf("%w: %s has %d chunks", storage.ErrTransactionTooLarge, path, len(chunks))
	}
	return err
}

// deleteChunks removes every chunk key of path inside tx.
func deleteChunks(tx *badger.Txn, path string) (int, error) {
	var keys [][]byte
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makeSourceChunksPrefix(path)
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	for iter.Rewind(); iter.Valid(); iter.Next() {
		keys = append(keys, iter.Item().KeyCopy(nil))
	}
	iter.Close()

	for _, key := range keys {
		if err := tx.Delete(key); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// DeleteSource removes the source record and all chunks of path.
func (r *ChunkRepository) DeleteSource(ctx context.Context, path string) (int, error) {
	var removed int
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		if removed, err = deleteChunks(tx, path); err != nil {
			return err
		}
		if err := tx.Delete(makeSourceKey(path)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Sources returns all persisted source records keyed by path.
func (r *ChunkRepository) Sources(ctx context.Context) (map[string]*core.SourceRecord, error) {
	sources := make(map[string]*core.SourceRecord)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(sourcePrefix), func(key, val []byte) error {
			record, err := storage.UnmarshalSourceRecord(val)
			if err != nil {
				return err
			}
			sources[strings.TrimPrefix(string(key), sourcePrefix)] = record
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return sources, nil
}

// Query scores every chunk in scope against vector and returns the best k.
func (r *ChunkRepository) Query(ctx context.Context, vector []float32, k int, categories []string) ([]core.Candidate, error) {
	if k <= 0 {
		return []core.Candidate{}, nil
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", storage.ErrInvalidQuery)
	}

	var results []core.Candidate
	err := r.forEachChunk(ctx, categories, func(chunk *core.Chunk) error {
		if len(chunk.Vector) == 0 {
			return nil
		}
		score := cosineSimilarity(vector, chunk.Vector)
		results = append(results, core.CandidateFromChunk(chunk, score, "semantic"))
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending, ties by id for determinism
	slices.SortFunc(results, func(a, b core.Candidate) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return strings.Compare(a.ChunkID, b.ChunkID)
	})

	if len(results) > k {
		results = results[:k]
	}
	if results == nil {
		results = []core.Candidate{}
	}
	return results, nil
}

// Chunks returns every chunk in scope, in id order.
func (r *ChunkRepository) Chunks(ctx context.Context, categories []string) ([]*core.Chunk, error) {
	var chunks []*core.Chunk
	err := r.forEachChunk(ctx, categories, func(chunk *core.Chunk) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// ForEachChunk visits all chunks in batches of at most batchSize.
func (r *ChunkRepository) ForEachChunk(ctx context.Context, batchSize int, fn func(batch []*core.Chunk) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", storage.ErrInvalidQuery)
	}

	// Collect ids first so fn may write to the store between batches.
	var ids []string
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			ids = append(ids, strings.TrimPrefix(string(iter.Item().Key()), chunkPrefix))
		}
		return nil
	}, false)
	if err != nil {
		return err
	}

	for start := 0; start < len(ids); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batchSize, len(ids))
		batch, err := r.getChunks(ids[start:end])
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			continue
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

// getChunks loads the chunks with the given ids, skipping ids deleted since
// they were listed.
func (r *ChunkRepository) getChunks(ids []string) ([]*core.Chunk, error) {
	chunks := make([]*core.Chunk, 0, len(ids))
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			chunk, err := readChunk(tx, id)
			if err != nil {
				return err
			}
			if chunk != nil {
				chunks = append(chunks, chunk)
			}
		}
		return nil
	}, false)
	return chunks, err
}

func readChunk(tx *badger.Txn, id string) (*core.Chunk, error) {
	item, err := tx.Get(makeChunkKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var chunk *core.Chunk
	err = item.Value(func(val []byte) error {
		chunk, err = storage.UnmarshalChunk(val)
		return err
	})
	return chunk, err
}

// UpdateVectors overwrites the vectors of existing chunks in one transaction.
func (r *ChunkRepository) UpdateVectors(ctx context.Context, vectors map[string][]float32) error {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for id, vector := range vectors {
			chunk, err := readChunk(tx, id)
			if err != nil {
				return err
			}
			if chunk == nil {
				return fmt.Errorf("%w: chunk %s", storage.ErrNotFound, id)
			}
			chunk.Vector = vector
			value, err := storage.MarshalChunk(chunk)
			if err != nil {
				return err
			}
			if err := tx.Set(makeChunkKey(id), value); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if errors.Is(err, badger.ErrTxnTooBig) {
		return fmt.Errorf("%w: %d vectors", storage.ErrTransactionTooLarge, len(vectors))
	}
	return err
}

// CategoryCounts derives per-category chunk counts from the source records.
func (r *ChunkRepository) CategoryCounts(ctx context.Context) (map[string]int, error) {
	sources, err := r.Sources(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, record := range sources {
		counts[record.Category] += record.ChunkCount
	}
	return counts, nil
}

func (r *ChunkRepository) forEachChunk(ctx context.Context, categories []string, fn func(*core.Chunk) error) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(chunkPrefix), func(_, val []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			chunk, err := storage.UnmarshalChunk(val)
			if err != nil {
				return err
			}
			if len(categories) > 0 && !slices.Contains(categories, chunk.Category) {
				return nil
			}
			return fn(chunk)
		})
	}, false)
}
