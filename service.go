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

package ragsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/poiesic/ragsync/ai"
	"github.com/poiesic/ragsync/ai/openai"
	"github.com/poiesic/ragsync/answer"
	"github.com/poiesic/ragsync/batch"
	"github.com/poiesic/ragsync/chunking"
	"github.com/poiesic/ragsync/config"
	"github.com/poiesic/ragsync/core"
	"github.com/poiesic/ragsync/corpus"
	"github.com/poiesic/ragsync/memory"
	"github.com/poiesic/ragsync/prompt"
	"github.com/poiesic/ragsync/reindex"
	"github.com/poiesic/ragsync/rerank"
	"github.com/poiesic/ragsync/retrieval"
	"github.com/poiesic/ragsync/storage"
	"github.com/poiesic/ragsync/storage/badger"
	"github.com/poiesic/ragsync/workpool"
)

// Stats summarizes the state of the index and the conversation memory.
type Stats struct {
	Sources    int            `json:"sources"`
	Chunks     int            `json:"chunks"`
	Categories map[string]int `json:"categories"`
	LastSync   time.Time      `json:"last_sync,omitempty"`
	Memory     memory.Stats   `json:"memory"`
	Workers    workpool.Stats `json:"workers"`
}

// Service wires the corpus, retrieval and answering components together.
type Service struct {
	cfg          *config.Config
	backend      *badger.Backend
	chunks       storage.ChunkRepository
	checkpoints  storage.CheckpointRepository
	provider     ai.Provider
	pool         *workpool.Pool
	prompts      *prompt.Library
	memory       *memory.Manager
	synchronizer *corpus.Synchronizer
	merger       *retrieval.Merger
	generator    *answer.Generator
	orchestrator *batch.Orchestrator
	logger       *slog.Logger

	// indexMu serializes writers of the index: sync and reindex.
	indexMu sync.Mutex
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	provider ai.Provider
	inMemory bool
	logger   *slog.Logger
}

// WithProvider replaces the OpenAI-compatible provider built from the config.
func WithProvider(provider ai.Provider) Option {
	return func(o *serviceOptions) {
		o.provider = provider
	}
}

// WithInMemoryStorage keeps the index in memory instead of DataDir.
func WithInMemoryStorage() Option {
	return func(o *serviceOptions) {
		o.inMemory = true
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// New validates cfg and builds a ready service. Any configuration problem is
// reported as core.ErrConfiguration before anything is started.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := &serviceOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	s := &Service{cfg: cfg, logger: options.logger.With("component", "service")}
	if err := s.init(options); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) init(options *serviceOptions) error {
	cfg := s.cfg
	logger := options.logger

	backend, err := badger.OpenBackend(filepath.Join(cfg.DataDir, "index"), options.inMemory)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	s.backend = backend
	s.chunks = badger.NewChunkRepository(backend)
	s.checkpoints = badger.NewCheckpointRepository(backend)

	s.provider = options.provider
	if s.provider == nil {
		if s.provider, err = openai.NewProvider(&cfg.AI); err != nil {
			return err
		}
	}
	generation := s.provider.Generation()

	if s.pool, err = workpool.New(cfg.Sync.Workers); err != nil {
		return err
	}

	s.prompts = prompt.Default()
	if cfg.Answer.PromptsDir != "" {
		if s.prompts, err = prompt.NewLibrary(cfg.Answer.PromptsDir, logger); err != nil {
			return err
		}
	}

	splitter, err := chunking.NewSplitter(cfg.Sync.ChunkSize, cfg.Sync.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}
	syncOpts := []corpus.Option{
		corpus.WithAutoDelete(cfg.Sync.AutoDelete),
		corpus.WithCheckpoints(s.checkpoints),
		corpus.WithConcurrency(cfg.Sync.Concurrency),
		corpus.WithSplitter(splitter),
		corpus.WithEmbedTimeout(cfg.AI.Timeouts.Embed),
		corpus.WithLogger(logger),
	}

	semantic, err := retrieval.NewSemanticStrategy(s.chunks, s.provider.Embedder(), cfg.Retrieval.VectorCacheSize)
	if err != nil {
		return err
	}
	strategies := []retrieval.Strategy{semantic}
	if cfg.Retrieval.Lexical {
		lexical, err := retrieval.NewLexicalStrategy(s.pool, logger)
		if err != nil {
			return err
		}
		strategies = append(strategies, lexical)
		syncOpts = append(syncOpts, corpus.WithRebuilder(lexical))
	}

	s.synchronizer, err = corpus.NewSynchronizer(cfg.Sources, s.chunks, s.provider.Embedder(), s.pool, syncOpts...)
	if err != nil {
		return err
	}

	mergerOpts := []retrieval.Option{
		retrieval.WithTopK(cfg.Retrieval.TopK),
		retrieval.WithVariantTopK(cfg.Retrieval.VariantTopK),
		retrieval.WithDeduplication(cfg.Retrieval.Deduplicate),
		retrieval.WithRetrieveTimeout(cfg.AI.Timeouts.Retrieve),
		retrieval.WithLogger(logger),
	}
	if cfg.Retrieval.Rewrite {
		expander, err := retrieval.NewExpander(generation, s.prompts,
			retrieval.WithRewriteCount(cfg.Retrieval.RewriteCount),
			retrieval.WithExpansionTTL(cfg.Retrieval.ExpansionTTL),
			retrieval.WithExpansionTimeout(cfg.AI.Timeouts.Generate),
			retrieval.WithExpanderLogger(logger),
		)
		if err != nil {
			return err
		}
		mergerOpts = append(mergerOpts, retrieval.WithExpander(expander))
	}
	if s.merger, err = retrieval.NewMerger(s.chunks, strategies, mergerOpts...); err != nil {
		return err
	}

	if s.memory, err = memory.New(
		memory.WithBudget(cfg.Memory.Budget),
		memory.WithMinRounds(cfg.Memory.MinRounds),
		memory.WithLogger(logger),
	); err != nil {
		return err
	}

	gate := rerank.NewGate(s.provider.Reranker(),
		rerank.WithTimeout(cfg.AI.Timeouts.Rerank),
		rerank.WithLogger(logger),
	)
	answerOpts := []answer.Option{
		answer.WithPrompts(s.prompts),
		answer.WithTopN(cfg.Answer.TopN),
		answer.WithMemoryTurns(cfg.Answer.MemoryTurns),
		answer.WithFragmentSize(cfg.Answer.FragmentSize),
		answer.WithFallback(cfg.Answer.Fallback),
		answer.WithGenerateTimeout(cfg.AI.Timeouts.Generate),
		answer.WithLogger(logger),
	}
	if cfg.Memory.Enabled {
		answerOpts = append(answerOpts, answer.WithMemory(s.memory))
	}
	if s.generator, err = answer.NewGenerator(s.merger, gate, generation, answerOpts...); err != nil {
		return err
	}

	if s.orchestrator, err = batch.NewOrchestrator(s.generator,
		batch.WithConcurrency(cfg.Batch.Concurrency),
		batch.WithLogger(logger),
	); err != nil {
		return err
	}

	// Derived indexes are not persisted; rebuild them from the store
	if err := s.synchronizer.Rebuild(context.Background()); err != nil {
		s.logger.Warn("failed to rebuild derived indexes", "err", err)
	}
	return nil
}

// Close releases every resource held by the service.
func (s *Service) Close() error {
	var errs []error
	if s.pool != nil {
		s.pool.Release()
	}
	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			s.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if s.backend != nil && !s.backend.IsClosed() {
		if err := s.backend.Close(); err != nil {
			s.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config returns the configuration the service was built from.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// Sync brings the index up to date with the configured sources.
func (s *Service) Sync(ctx context.Context) (*corpus.Report, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	return s.synchronizer.Sync(ctx)
}

// Plan reports what the next Sync would change without applying it.
func (s *Service) Plan(ctx context.Context) (*core.SyncPlan, error) {
	return s.synchronizer.Plan(ctx)
}

// Watch syncs after every burst of file changes under the enabled source
// roots until ctx is cancelled. onSync, if not nil, observes each pass.
func (s *Service) Watch(ctx context.Context, onSync func(*corpus.Report, error)) error {
	opts := []corpus.WatcherOption{
		corpus.WithDebounce(s.cfg.Sync.Debounce),
		corpus.WithWatcherLogger(s.logger),
	}
	if onSync != nil {
		opts = append(opts, corpus.WithOnSync(onSync))
	}
	watcher, err := corpus.NewWatcher(s, corpus.RootsOf(s.synchronizer), opts...)
	if err != nil {
		return err
	}
	return watcher.Run(ctx)
}

// Reindex re-embeds every chunk, writing progress to w. A nil config uses
// reindex.DefaultConfig.
func (s *Service) Reindex(ctx context.Context, w io.Writer, config *reindex.Config) (int, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	r, err := reindex.NewReindexer(s.chunks, s.checkpoints, s.provider.Embedder(), config, w)
	if err != nil {
		return 0, err
	}
	return r.Run(ctx)
}

// Retrieve returns the merged retrieval candidates for query without
// reranking or generation.
func (s *Service) Retrieve(ctx context.Context, query string, categories []string) ([]core.Candidate, error) {
	return s.merger.Retrieve(ctx, query, s.scope(categories))
}

// AskStream answers question over the default categories.
func (s *Service) AskStream(ctx context.Context, question string, useMemory bool) <-chan answer.Event {
	return s.AskStreamIn(ctx, question, useMemory, nil)
}

// AskStreamIn answers question over categories, or the default categories
// when categories is empty.
func (s *Service) AskStreamIn(ctx context.Context, question string, useMemory bool, categories []string) <-chan answer.Event {
	return s.generator.AskStream(ctx, question, answer.AskOptions{
		UseMemory:  useMemory,
		Categories: s.scope(categories),
	})
}

// AskMany answers independent questions concurrently. Batch questions
// neither read nor record conversation memory.
func (s *Service) AskMany(ctx context.Context, questions []string) *batch.Run {
	return s.orchestrator.AskMany(ctx, questions, answer.AskOptions{
		Categories: s.scope(nil),
	})
}

func (s *Service) scope(categories []string) []string {
	if len(categories) > 0 {
		return categories
	}
	return s.cfg.Retrieval.DefaultCategories
}

// Categories returns the number of indexed chunks per category.
func (s *Service) Categories(ctx context.Context) (map[string]int, error) {
	return s.chunks.CategoryCounts(ctx)
}

// Stats summarizes the index and the memory buffer.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	sources, err := s.chunks.Sources(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		Sources:    len(sources),
		Categories: make(map[string]int),
		Memory:     s.memory.Stats(),
		Workers:    s.pool.Stats(),
	}
	for _, record := range sources {
		stats.Chunks += record.ChunkCount
		stats.Categories[record.Category] += record.ChunkCount
	}
	checkpoint, err := s.checkpoints.LoadCheckpoint(ctx, corpus.CheckpointName)
	if err != nil {
		return nil, err
	}
	if checkpoint != nil {
		stats.LastSync = checkpoint.UpdatedAt
	}
	return stats, nil
}

// Memory returns the conversation memory.
func (s *Service) Memory() *memory.Manager {
	return s.memory
}

// Prompts returns the prompt template library.
func (s *Service) Prompts() *prompt.Library {
	return s.prompts
}
