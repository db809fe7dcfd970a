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

package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/ragsync/ai"
	"github.com/poiesic/ragsync/chunking"
	"github.com/poiesic/ragsync/core"
	"github.com/poiesic/ragsync/storage"
	"github.com/poiesic/ragsync/workpool"
	"golang.org/x/sync/errgroup"
)

// CheckpointName is the process name sync checkpoints are stored under.
const CheckpointName = "sync"

const defaultConcurrency = 8

// Rebuilder is a derived index rebuilt from a full snapshot of the chunk
// store after every synchronization that changed it.
type Rebuilder interface {
	Rebuild(ctx context.Context, snapshot []*core.Chunk) error
}

// Synchronizer keeps the chunk store consistent with the configured sources.
// Sync calls are serialized; at most one pass writes at a time.
type Synchronizer struct {
	sources      []core.SourceDescriptor
	scanner      *Scanner
	fs           FileSystem
	chunks       storage.ChunkRepository
	checkpoints  storage.CheckpointRepository
	embedder     ai.Embedder
	splitter     *chunking.Splitter
	pool         *workpool.Pool
	rebuilders   []Rebuilder
	autoDelete   bool
	concurrency  int
	embedTimeout time.Duration
	logger       *slog.Logger

	mu sync.Mutex
}

// Option configures a Synchronizer.
type Option func(*Synchronizer) error

// WithAutoDelete removes index entries of files that disappeared from a
// configured source. Entries outside every configured source are always removed.
func WithAutoDelete(enabled bool) Option {
	return func(s *Synchronizer) error {
		s.autoDelete = enabled
		return nil
	}
}

// WithRebuilder registers a derived index to rebuild after each change.
func WithRebuilder(r Rebuilder) Option {
	return func(s *Synchronizer) error {
		if r != nil {
			s.rebuilders = append(s.rebuilders, r)
		}
		return nil
	}
}

// WithCheckpoints persists a summary of every pass.
func WithCheckpoints(repo storage.CheckpointRepository) Option {
	return func(s *Synchronizer) error {
		s.checkpoints = repo
		return nil
	}
}

// WithConcurrency bounds the number of files read, embedded and written at once.
// Default is 8.
func WithConcurrency(n int) Option {
	return func(s *Synchronizer) error {
		if n < 1 {
			n = 1
		}
		s.concurrency = n
		return nil
	}
}

// WithSplitter overrides the default 500/150 splitter.
func WithSplitter(splitter *chunking.Splitter) Option {
	return func(s *Synchronizer) error {
		if splitter == nil {
			return fmt.Errorf("%w: nil splitter", core.ErrConfiguration)
		}
		s.splitter = splitter
		return nil
	}
}

// WithFileSystem replaces the local disk as the source of files.
func WithFileSystem(fsys FileSystem) Option {
	return func(s *Synchronizer) error {
		if fsys == nil {
			fsys = OSFileSystem{}
		}
		s.fs = fsys
		return nil
	}
}

// WithEmbedTimeout bounds each embedding call. Zero means no timeout.
func WithEmbedTimeout(d time.Duration) Option {
	return func(s *Synchronizer) error {
		s.embedTimeout = d
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSynchronizer creates a synchronizer for sources.
func NewSynchronizer(
	sources []core.SourceDescriptor,
	chunks storage.ChunkRepository,
	embedder ai.Embedder,
	pool *workpool.Pool,
	opts ...Option,
) (*Synchronizer, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if pool == nil {
		return nil, ErrPoolRequired
	}
	for i := range sources {
		if err := core.ValidateSourceDescriptor(&sources[i]); err != nil {
			return nil, fmt.Errorf("%w: source %d: %w", core.ErrConfiguration, i, err)
		}
	}

	splitter, err := chunking.NewSplitter(chunking.DefaultChunkSize, chunking.DefaultOverlap)
	if err != nil {
		return nil, err
	}

	s := &Synchronizer{
		sources:     slices.Clone(sources),
		fs:          OSFileSystem{},
		chunks:      chunks,
		embedder:    embedder,
		splitter:    splitter,
		pool:        pool,
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "synchronizer")
	s.scanner = NewScanner(s.fs, s.logger)
	return s, nil
}

// Sources returns the configured source descriptors.
func (s *Synchronizer) Sources() []core.SourceDescriptor {
	return slices.Clone(s.sources)
}

// Sync computes a plan and applies it.
func (s *Synchronizer) Sync(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, err := s.plan(ctx)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, plan)
}

// Plan fingerprints every source file and classifies it against the stored
// records without changing anything.
func (s *Synchronizer) Plan(ctx context.Context) (*core.SyncPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan(ctx)
}

// Apply executes plan. A plan can be applied once.
func (s *Synchronizer) Apply(ctx context.Context, plan *core.SyncPlan) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(ctx, plan)
}

func (s *Synchronizer) plan(ctx context.Context) (*core.SyncPlan, error) {
	scanned, err := s.scanner.Scan(ctx, s.sources)
	if err != nil {
		return nil, err
	}
	stored, err := s.chunks.Sources(ctx)
	if err != nil {
		return nil, fmt.Errorf("load source records: %w", err)
	}

	fingerprints, failed, err := s.fingerprintAll(ctx, scanned)
	if err != nil {
		return nil, err
	}

	plan := &core.SyncPlan{
		Failed:     failed,
		Categories: make(map[string]string),
	}
	for path, fp := range fingerprints {
		category := scanned[path].Category
		record, known := stored[path]
		switch {
		case !known:
			plan.New = append(plan.New, fp)
			plan.Categories[path] = category
		case !record.Fingerprint.Matches(fp) || record.Category != category:
			plan.Modified = append(plan.Modified, fp)
			plan.Categories[path] = category
		default:
			plan.Unchanged = append(plan.Unchanged, path)
		}
	}

	for path := range stored {
		if _, present := scanned[path]; present {
			continue
		}
		if !covers(s.sources, path) {
			s.logger.Warn("removing orphaned index entries",
				"path", path,
				"err", fmt.Errorf("%w: %s is outside every configured source", core.ErrStateInconsistency, path))
			plan.Deleted = append(plan.Deleted, path)
			continue
		}
		if s.autoDelete {
			plan.Deleted = append(plan.Deleted, path)
		}
	}

	byPath := func(a, b core.FileFingerprint) int { return strings.Compare(a.Path, b.Path) }
	slices.SortFunc(plan.New, byPath)
	slices.SortFunc(plan.Modified, byPath)
	slices.Sort(plan.Unchanged)
	slices.Sort(plan.Deleted)
	slices.Sort(plan.Failed)

	s.logger.Debug("computed sync plan",
		"new", len(plan.New),
		"modified", len(plan.Modified),
		"unchanged", len(plan.Unchanged),
		"deleted", len(plan.Deleted),
		"failed", len(plan.Failed))
	return plan, nil
}

// fingerprintAll reads files on the I/O tier and hashes them on the CPU tier.
func (s *Synchronizer) fingerprintAll(ctx context.Context, scanned map[string]core.SourceDescriptor) (map[string]core.FileFingerprint, []string, error) {
	var mu sync.Mutex
	fingerprints := make(map[string]core.FileFingerprint, len(scanned))
	var failed []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for path := range scanned {
		g.Go(func() error {
			fp, _, err := s.readFile(gctx, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.logger.Warn("cannot fingerprint file", "path", path, "err", err)
				failed = append(failed, path)
				return nil
			}
			fingerprints[path] = fp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return fingerprints, failed, nil
}

// readFile returns the fingerprint and content of path.
func (s *Synchronizer) readFile(ctx context.Context, path string) (core.FileFingerprint, []byte, error) {
	info, err := s.fs.Stat(path)
	if err != nil {
		return core.FileFingerprint{}, nil, fmt.Errorf("%w: %w", core.ErrCorpusIO, err)
	}
	data, err := s.fs.ReadFile(path)
	if err != nil {
		return core.FileFingerprint{}, nil, fmt.Errorf("%w: %w", core.ErrCorpusIO, err)
	}
	hash, err := workpool.Do(ctx, s.pool, func() (string, error) {
		return core.HashContent(data), nil
	})
	if err != nil {
		return core.FileFingerprint{}, nil, err
	}
	return core.FileFingerprint{
		Path:    path,
		ModTime: info.ModTime().UTC(),
		Size:    int64(len(data)),
		Hash:    hash,
	}, data, nil
}

func (s *Synchronizer) apply(ctx context.Context, plan *core.SyncPlan) (*Report, error) {
	if plan == nil {
		return nil, fmt.Errorf("%w: nil plan", core.ErrConfiguration)
	}
	if !plan.Consume() {
		return nil, core.ErrPlanConsumed
	}

	started := time.Now()
	report := &Report{
		Unchanged:   len(plan.Unchanged),
		FailedPaths: slices.Clone(plan.Failed),
	}
	defer func() { report.Duration = time.Since(started) }()

	if plan.Empty() {
		s.logger.Info("corpus is up to date", "unchanged", report.Unchanged, "failed", len(report.FailedPaths))
		s.saveCheckpoint(ctx, report)
		return report, nil
	}

	var mu sync.Mutex
	fail := func(path string, err error) {
		mu.Lock()
		defer mu.Unlock()
		s.logger.Error("failed to synchronize file", "path", path, "err", err)
		report.FailedPaths = append(report.FailedPaths, path)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, path := range plan.Deleted {
		g.Go(func() error {
			removed, err := s.chunks.DeleteSource(gctx, path)
			if err != nil {
				fail(path, err)
				return nil
			}
			mu.Lock()
			report.Deleted++
			report.ChunksRemoved += removed
			mu.Unlock()
			return nil
		})
	}

	index := func(fp core.FileFingerprint, modified bool) {
		g.Go(func() error {
			written, err := s.indexFile(gctx, fp.Path, plan.Categories[fp.Path])
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				fail(fp.Path, err)
				return nil
			}
			mu.Lock()
			if modified {
				report.Modified++
			} else {
				report.New++
			}
			report.ChunksWritten += written
			mu.Unlock()
			return nil
		})
	}
	for _, fp := range plan.New {
		index(fp, false)
	}
	for _, fp := range plan.Modified {
		index(fp, true)
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	slices.Sort(report.FailedPaths)

	if err := s.rebuild(ctx); err != nil {
		report.RebuildErr = err
		s.logger.Error("failed to rebuild derived indexes", "err", err)
	}

	s.logger.Info("synchronized corpus",
		"new", report.New,
		"modified", report.Modified,
		"deleted", report.Deleted,
		"unchanged", report.Unchanged,
		"failed", len(report.FailedPaths),
		"chunks_written", report.ChunksWritten,
		"chunks_removed", report.ChunksRemoved)
	s.saveCheckpoint(ctx, report)
	return report, nil
}

// indexFile re-reads path, splits it, embeds the chunks and replaces the
// stored chunks in one write. The fingerprint stored is that of the content
// actually indexed, so a file edited since planning stays consistent.
func (s *Synchronizer) indexFile(ctx context.Context, path, category string) (int, error) {
	fp, data, err := s.readFile(ctx, path)
	if err != nil {
		return 0, err
	}

	doc := chunking.Document{
		Path:        path,
		Category:    category,
		Content:     strings.ToValidUTF8(string(data), "\uFFFD"),
		Fingerprint: fp,
		Metadata:    s.metadataFor(category),
	}
	chunks, err := workpool.Do(ctx, s.pool, func() ([]*core.Chunk, error) {
		return s.splitter.Split(doc)
	})
	if err != nil {
		return 0, err
	}

	if err := s.embed(ctx, chunks); err != nil {
		return 0, err
	}

	record := &core.SourceRecord{
		Fingerprint: fp,
		Category:    category,
	}
	if err := s.chunks.ReplaceSource(ctx, record, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (s *Synchronizer) embed(ctx context.Context, chunks []*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := ai.RetryOnceWithData(ctx, func(ctx context.Context) ([][]float32, error) {
		ctx, cancel := ai.WithTimeout(ctx, s.embedTimeout)
		defer cancel()
		return s.embedder.EmbedTexts(ctx, texts)
	})
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: %d texts, %d vectors", ErrEmbeddingMismatch, len(chunks), len(vectors))
	}
	for i, v := range vectors {
		chunks[i].Vector = v
	}
	return nil
}

func (s *Synchronizer) metadataFor(category string) map[string]string {
	meta := map[string]string{"category": category}
	for _, src := range s.sources {
		if src.Category == category && src.Description != "" {
			meta["description"] = src.Description
			break
		}
	}
	return meta
}

// Rebuild refreshes every registered derived index from the current store.
func (s *Synchronizer) Rebuild(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuild(ctx)
}

func (s *Synchronizer) rebuild(ctx context.Context) error {
	if len(s.rebuilders) == 0 {
		return nil
	}
	snapshot, err := s.chunks.Chunks(ctx, nil)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	var errs []error
	for _, r := range s.rebuilders {
		if err := r.Rebuild(ctx, snapshot); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Synchronizer) saveCheckpoint(ctx context.Context, report *Report) {
	if s.checkpoints == nil {
		return
	}
	counts, err := s.chunks.CategoryCounts(ctx)
	if err != nil {
		s.logger.Warn("failed to count chunks for checkpoint", "err", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	checkpoint := &core.Checkpoint{
		Process:  CheckpointName,
		Files:    report.New + report.Modified + report.Unchanged,
		Chunks:   total,
		New:      report.New,
		Modified: report.Modified,
		Deleted:  report.Deleted,
		Failed:   len(report.FailedPaths),
	}
	if err := s.checkpoints.SaveCheckpoint(ctx, checkpoint); err != nil {
		s.logger.Warn("failed to save sync checkpoint", "err", err)
	}
}
