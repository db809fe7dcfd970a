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

package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/poiesic/ragsync/ai"
	"github.com/poiesic/ragsync/core"
	"github.com/poiesic/ragsync/lexical"
	"github.com/poiesic/ragsync/storage"
	"github.com/poiesic/ragsync/workpool"
)

// DefaultVectorCacheSize is the number of query embeddings kept in memory.
const DefaultVectorCacheSize = 512

// SemanticStrategyName labels candidates produced by SemanticStrategy.
const SemanticStrategyName = "semantic"

// Strategy finds candidates for a single query string.
// Implementations must be safe for concurrent use.
type Strategy interface {
	// Name identifies the strategy in logs and candidates.
	Name() string

	// Search returns up to k candidates for query. A non-empty categories
	// restricts the search to chunks in those categories.
	Search(ctx context.Context, query string, k int, categories []string) ([]core.Candidate, error)
}

// SemanticStrategy ranks chunks by vector similarity to the embedded query.
type SemanticStrategy struct {
	chunks   storage.ChunkRepository
	embedder ai.Embedder
	vectors  *lru.Cache[string, []float32]
}

var _ Strategy = (*SemanticStrategy)(nil)

// NewSemanticStrategy creates a semantic strategy caching up to cacheSize
// query embeddings. A cacheSize below 1 uses DefaultVectorCacheSize.
func NewSemanticStrategy(chunks storage.ChunkRepository, embedder ai.Embedder, cacheSize int) (*SemanticStrategy, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if cacheSize < 1 {
		cacheSize = DefaultVectorCacheSize
	}
	vectors, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, err
	}
	return &SemanticStrategy{chunks: chunks, embedder: embedder, vectors: vectors}, nil
}

func (s *SemanticStrategy) Name() string { return SemanticStrategyName }

// Search embeds query, reusing a cached vector when possible, and queries the store.
func (s *SemanticStrategy) Search(ctx context.Context, query string, k int, categories []string) ([]core.Candidate, error) {
	vector, ok := s.vectors.Get(query)
	if !ok {
		var err error
		vector, err = s.embedder.EmbedText(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		s.vectors.Add(query, vector)
	}
	return s.chunks.Query(ctx, vector, k, categories)
}

// LexicalStrategy ranks chunks with a BM25 index. The index is replaced
// wholesale by Rebuild; searches in flight keep using the index they started with.
type LexicalStrategy struct {
	index  atomic.Pointer[lexical.Index]
	pool   *workpool.Pool
	logger *slog.Logger
}

var _ Strategy = (*LexicalStrategy)(nil)

// NewLexicalStrategy creates a lexical strategy with an empty index.
// Index builds and searches run on pool.
func NewLexicalStrategy(pool *workpool.Pool, logger *slog.Logger) (*LexicalStrategy, error) {
	if pool == nil {
		return nil, ErrPoolRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &LexicalStrategy{pool: pool, logger: logger.With("component", "lexical")}
	s.index.Store(lexical.Build(nil))
	return s, nil
}

func (s *LexicalStrategy) Name() string { return lexical.StrategyName }

// Len returns the number of chunks in the current index.
func (s *LexicalStrategy) Len() int {
	return s.index.Load().Len()
}

// Rebuild replaces the index with one built from snapshot.
func (s *LexicalStrategy) Rebuild(ctx context.Context, snapshot []*core.Chunk) error {
	idx, err := workpool.Do(ctx, s.pool, func() (*lexical.Index, error) {
		return lexical.Build(snapshot), nil
	})
	if err != nil {
		return fmt.Errorf("build lexical index: %w", err)
	}
	s.index.Store(idx)
	s.logger.Info("rebuilt lexical index", "chunks", idx.Len())
	return nil
}

// Search ranks the current index against query.
func (s *LexicalStrategy) Search(ctx context.Context, query string, k int, categories []string) ([]core.Candidate, error) {
	idx := s.index.Load()
	return workpool.Do(ctx, s.pool, func() ([]core.Candidate, error) {
		return idx.Search(query, k, categories), nil
	})
}
