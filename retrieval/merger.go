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
	"sync"
	"time"

	"github.com/poiesic/ragsync/ai"
	"github.com/poiesic/ragsync/core"
)

// Defaults for candidate counts per strategy call.
const (
	DefaultTopK        = 10
	DefaultVariantTopK = 3
)

// CategoryCounter reports how many chunks each category holds.
type CategoryCounter interface {
	CategoryCounts(ctx context.Context) (map[string]int, error)
}

// Merger runs every strategy for every query variant and merges the results.
type Merger struct {
	counter     CategoryCounter
	strategies  []Strategy
	expander    *Expander
	topK        int
	variantTopK int
	dedupe      bool
	timeout     time.Duration
	logger      *slog.Logger
}

// Option configures a Merger.
type Option func(*Merger) error

// WithExpander enables query expansion.
func WithExpander(e *Expander) Option {
	return func(m *Merger) error {
		m.expander = e
		return nil
	}
}

// WithTopK sets the per-strategy result count for the original query.
// Default is DefaultTopK.
func WithTopK(k int) Option {
	return func(m *Merger) error {
		if k < 1 {
			return fmt.Errorf("%w: top k must be positive, got %d", core.ErrConfiguration, k)
		}
		m.topK = k
		return nil
	}
}

// WithVariantTopK sets the per-strategy result count for paraphrases.
// Default is DefaultVariantTopK.
func WithVariantTopK(k int) Option {
	return func(m *Merger) error {
		if k < 1 {
			return fmt.Errorf("%w: variant top k must be positive, got %d", core.ErrConfiguration, k)
		}
		m.variantTopK = k
		return nil
	}
}

// WithDeduplication toggles dropping candidates with already-seen content.
// Default is true.
func WithDeduplication(enabled bool) Option {
	return func(m *Merger) error {
		m.dedupe = enabled
		return nil
	}
}

// WithRetrieveTimeout bounds each strategy call. Zero means no timeout.
func WithRetrieveTimeout(d time.Duration) Option {
	return func(m *Merger) error {
		m.timeout = d
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Merger) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
		return nil
	}
}

// NewMerger creates a merger over strategies. counter is consulted to detect
// category filters that match no chunks.
func NewMerger(counter CategoryCounter, strategies []Strategy, opts ...Option) (*Merger, error) {
	if counter == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if len(strategies) == 0 {
		return nil, ErrStrategyRequired
	}
	m := &Merger{
		counter:     counter,
		strategies:  strategies,
		topK:        DefaultTopK,
		variantTopK: DefaultVariantTopK,
		dedupe:      true,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	m.logger = m.logger.With("component", "retrieval")
	return m, nil
}

// Retrieve returns the merged candidates for query.
func (m *Merger) Retrieve(ctx context.Context, query string, categories []string) ([]core.Candidate, error) {
	return m.RetrieveWithMonitor(ctx, query, categories, nil)
}

// RetrieveWithMonitor is Retrieve with callbacks at each stage.
// When categories is non-empty but holds no chunks the result is empty;
// the search is never widened to the whole corpus.
func (m *Merger) RetrieveWithMonitor(ctx context.Context, query string, categories []string, monitor RetrievalMonitor) ([]core.Candidate, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(query, categories)

	if len(categories) > 0 {
		scoped, err := m.scopedSize(ctx, categories)
		if err != nil {
			return nil, err
		}
		if scoped == 0 {
			m.logger.Debug("no chunks in requested categories", "categories", categories)
			empty := []core.Candidate{}
			monitor.Finish(empty)
			return empty, nil
		}
	}

	variants := []string{query}
	if m.expander != nil {
		variants = m.expander.Expand(ctx, query)
	}
	monitor.AfterExpansion(variants)

	results := make([][]core.Candidate, len(variants)*len(m.strategies))
	var wg sync.WaitGroup
	for vi, variant := range variants {
		k := m.variantTopK
		if vi == 0 {
			k = m.topK
		}
		for si, strategy := range m.strategies {
			wg.Add(1)
			go func() {
				defer wg.Done()
				found, err := ai.RetryOnceWithData(ctx, func(ctx context.Context) ([]core.Candidate, error) {
					ctx, cancel := ai.WithTimeout(ctx, m.timeout)
					defer cancel()
					return strategy.Search(ctx, variant, k, categories)
				})
				if err != nil {
					m.logger.Warn("retrieval strategy failed",
						"strategy", strategy.Name(),
						"variant", vi,
						"err", err)
					monitor.StrategyFailed(strategy.Name(), variant, err)
					return
				}
				results[vi*len(m.strategies)+si] = found
				monitor.AfterStrategySearch(strategy.Name(), variant, found)
			}()
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := merge(results, m.dedupe)
	m.logger.Debug("retrieved candidates",
		"variants", len(variants),
		"strategies", len(m.strategies),
		"candidates", len(merged))
	monitor.Finish(merged)
	return merged, nil
}

func (m *Merger) scopedSize(ctx context.Context, categories []string) (int, error) {
	counts, err := m.counter.CategoryCounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	total := 0
	for _, c := range categories {
		total += counts[c]
	}
	return total, nil
}

// merge concatenates result lists in order. With dedupe, a candidate whose
// content was already seen is dropped.
func merge(lists [][]core.Candidate, dedupe bool) []core.Candidate {
	merged := []core.Candidate{}
	seen := make(map[string]bool)
	for _, list := range lists {
		for _, c := range list {
			if dedupe {
				if seen[c.Content] {
					continue
				}
				seen[c.Content] = true
			}
			merged = append(merged, c)
		}
	}
	return merged
}
