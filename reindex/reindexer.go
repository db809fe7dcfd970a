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

package reindex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/poiesic/ragsync/ai"
	"github.com/poiesic/ragsync/core"
	"github.com/poiesic/ragsync/storage"
)

// Process is the checkpoint name of a reindex run.
const Process = "reindex"

// Config holds configuration for a reindex run.
type Config struct {
	// BatchSize is the number of chunks embedded per request
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per batch
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      64,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     time.Second,
	}
}

// Reindexer re-embeds every chunk of a repository.
type Reindexer struct {
	chunks      storage.ChunkRepository
	checkpoints storage.CheckpointRepository
	embedder    ai.Embedder
	config      *Config
	progress    io.Writer
	logger      *slog.Logger
}

// NewReindexer creates a reindexer. checkpoints may be nil. Progress is
// written to progress, which may also be nil.
func NewReindexer(chunks storage.ChunkRepository, checkpoints storage.CheckpointRepository, embedder ai.Embedder, config *Config, progress io.Writer) (*Reindexer, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.BatchSize <= 0 || config.MaxRetries <= 0 || config.RetryDelay < 0 {
		return nil, fmt.Errorf("%w: batch size and retries must be positive", core.ErrConfiguration)
	}
	if config.ReportInterval <= 0 {
		config.ReportInterval = config.BatchSize
	}
	if progress == nil {
		progress = io.Discard
	}
	return &Reindexer{
		chunks:      chunks,
		checkpoints: checkpoints,
		embedder:    embedder,
		config:      config,
		progress:    progress,
		logger:      slog.Default().With("component", "reindex"),
	}, nil
}

// Run re-embeds all chunks and returns how many were updated. It stops at
// the first batch that still fails after all retries; batches written before
// that keep their new vectors.
func (r *Reindexer) Run(ctx context.Context) (int, error) {
	counts, err := r.chunks.CategoryCounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No chunks found in index (0 chunks)\n")
		return 0, nil
	}

	fmt.Fprintf(r.progress, "Starting reindex of %d chunks (batch size: %d)\n", total, r.config.BatchSize)
	r.logger.Info("reindex started", "chunks", total, "batch_size", r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	err = r.chunks.ForEachChunk(ctx, r.config.BatchSize, func(batch []*core.Chunk) error {
		if err := r.processBatch(ctx, batch); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		processed += len(batch)
		tracker.Increment(len(batch))
		return nil
	})
	if err != nil {
		r.logger.Warn("reindex stopped", "processed", processed, "err", err)
		return processed, err
	}
	tracker.Finish()

	if r.checkpoints != nil {
		checkpoint := &core.Checkpoint{Process: Process, Chunks: processed}
		if err := r.checkpoints.SaveCheckpoint(ctx, checkpoint); err != nil {
			return processed, fmt.Errorf("failed to save checkpoint: %w", err)
		}
	}

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reindex complete. Processed %d chunks in %v (%.1f chunks/sec)\n",
		processed, elapsed.Round(time.Second), float64(processed)/elapsed.Seconds())
	r.logger.Info("reindex finished", "chunks", processed, "elapsed", elapsed)
	return processed, nil
}

// processBatch embeds one batch with retry and writes the normalized vectors.
func (r *Reindexer) processBatch(ctx context.Context, batch []*core.Chunk) error {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Content
	}

	embeddings, err := retry.DoWithData(
		func() ([][]float32, error) {
			embeddings, err := r.embedder.EmbedTexts(ctx, texts)
			if err != nil {
				return nil, err
			}
			if len(embeddings) != len(texts) {
				return nil, retry.Unrecoverable(fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingMismatch, len(texts), len(embeddings)))
			}
			return embeddings, nil
		},
		retry.Attempts(uint(r.config.MaxRetries)),
		retry.Delay(r.config.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Debug("embedding batch failed, will retry", "attempt", n+1, "max_attempts", r.config.MaxRetries, "err", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", r.config.MaxRetries, err)
	}

	vectors := make(map[string][]float32, len(batch))
	for i, chunk := range batch {
		vectors[chunk.ID] = NormalizeVector(embeddings[i])
	}
	if err := r.chunks.UpdateVectors(ctx, vectors); err != nil {
		return fmt.Errorf("failed to update vectors: %w", err)
	}
	return nil
}
