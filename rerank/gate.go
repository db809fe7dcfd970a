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

// Package rerank narrows merged retrieval candidates to the few passages
// handed to the generator, ordered by an external relevance scorer.
package rerank

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/poiesic/ragsync/ai"
	"github.com/poiesic/ragsync/core"
)

// DefaultTopN is the number of candidates kept when the caller asks for none.
const DefaultTopN = 3

// Gate orders candidates with a Reranker and keeps the best topN. It never
// fails: when the scorer is missing, errors or returns nothing usable, the
// first topN candidates are kept in their original order.
type Gate struct {
	reranker ai.Reranker
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithTimeout bounds each scorer call. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) {
		g.timeout = d
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGate creates a gate. A nil reranker makes Compress a plain truncation.
func NewGate(reranker ai.Reranker, opts ...Option) *Gate {
	g := &Gate{reranker: reranker, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "rerank")
	return g
}

// Compress returns at most topN candidates ordered by relevance to query.
// A topN below 1 uses DefaultTopN.
func (g *Gate) Compress(ctx context.Context, candidates []core.Candidate, query string, topN int) []core.Candidate {
	if topN < 1 {
		topN = DefaultTopN
	}
	if len(candidates) == 0 {
		return []core.Candidate{}
	}
	fallback := slices.Clone(candidates[:min(topN, len(candidates))])
	if g.reranker == nil {
		return fallback
	}

	passages := make([]string, len(candidates))
	for i, c := range candidates {
		passages[i] = c.Content
	}

	order, err := ai.RetryOnceWithData(ctx, func(ctx context.Context) ([]int, error) {
		ctx, cancel := ai.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.reranker.Rerank(ctx, query, passages, topN)
	})
	if err != nil {
		g.logger.Warn("reranking failed, keeping retrieval order", "candidates", len(candidates), "err", err)
		return fallback
	}

	ranked := make([]core.Candidate, 0, topN)
	seen := make(map[int]bool, len(order))
	for _, i := range order {
		if i < 0 || i >= len(candidates) || seen[i] {
			continue
		}
		seen[i] = true
		ranked = append(ranked, candidates[i])
		if len(ranked) == topN {
			break
		}
	}
	if len(ranked) == 0 {
		g.logger.Warn("reranker returned no usable indexes, keeping retrieval order", "candidates", len(candidates))
		return fallback
	}
	return ranked
}
