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
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for a burst of file events to
// settle before synchronizing.
const DefaultDebounce = 2 * time.Second

// Syncer runs one synchronization pass.
type Syncer interface {
	Sync(ctx context.Context) (*Report, error)
}

// Watcher triggers a synchronization whenever files under the watched roots change.
type Watcher struct {
	syncer   Syncer
	roots    []string
	debounce time.Duration
	onSync   func(*Report, error)
	logger   *slog.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a sync. Default is DefaultDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithOnSync registers a callback invoked after every triggered sync.
func WithOnSync(fn func(*Report, error)) WatcherOption {
	return func(w *Watcher) {
		w.onSync = fn
	}
}

// WithWatcherLogger sets a custom logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher creates a watcher over roots that calls syncer.Sync.
func NewWatcher(syncer Syncer, roots []string, opts ...WatcherOption) (*Watcher, error) {
	if syncer == nil {
		return nil, ErrSyncerRequired
	}
	w := &Watcher{
		syncer:   syncer,
		roots:    roots,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "watcher")
	return w, nil
}

// RootsOf returns the roots of the enabled sources of s.
func RootsOf(s *Synchronizer) []string {
	var roots []string
	for _, src := range s.Sources() {
		if src.Enabled {
			roots = append(roots, filepath.Clean(src.Root))
		}
	}
	return roots
}

// Run watches until ctx is cancelled. Directories created while running are
// added to the watch set.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	for _, root := range w.roots {
		w.addTree(fsw, root)
	}
	w.logger.Info("watching sources", "roots", w.roots, "debounce", w.debounce)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				w.addTree(fsw, event.Name)
			}
			w.logger.Debug("file event", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			report, err := w.syncer.Sync(ctx)
			if err != nil {
				w.logger.Error("triggered sync failed", "err", err)
			} else {
				w.logger.Info("triggered sync complete", "report", report.String())
			}
			if w.onSync != nil {
				w.onSync(report, err)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "err", err)
		}
	}
}

// addTree adds path and every non-hidden directory below it. Paths that are
// not directories are ignored.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, path string) {
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != path && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fsw.Add(p); err != nil {
			w.logger.Warn("cannot watch directory", "path", p, "err", err)
		}
		return nil
	})
	if err != nil {
		w.logger.Warn("cannot walk directory", "path", path, "err", err)
	}
}

func relevant(event fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
