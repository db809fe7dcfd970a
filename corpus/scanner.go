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
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/poiesic/ragsync/core"
)

// Scanner enumerates the files claimed by a set of source descriptors.
type Scanner struct {
	fs     FileSystem
	logger *slog.Logger
}

// NewScanner creates a scanner over fsys. A nil fsys reads the local disk.
func NewScanner(fsys FileSystem, logger *slog.Logger) *Scanner {
	if fsys == nil {
		fsys = OSFileSystem{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{fs: fsys, logger: logger}
}

// Scan returns every file matched by an enabled descriptor, mapped to the
// descriptor that owns it. When descriptors overlap, the lowest Priority wins;
// equal priorities go to the earlier descriptor. Hidden directories are not
// descended into. A root that cannot be walked is logged and skipped.
func (s *Scanner) Scan(ctx context.Context, sources []core.SourceDescriptor) (map[string]core.SourceDescriptor, error) {
	owners := make(map[string]core.SourceDescriptor)

	for _, src := range sources {
		if !src.Enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		root := filepath.Clean(src.Root)
		err := s.fs.Walk(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root {
					return err
				}
				s.logger.Warn("skipping unreadable entry", "path", path, "err", err)
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || !matches(src, root, path) {
				return nil
			}

			if current, claimed := owners[path]; claimed && current.Priority <= src.Priority {
				return nil
			}
			owners[path] = src
			return nil
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			s.logger.Error("skipping source root",
				"root", root,
				"category", src.Category,
				"err", fmt.Errorf("%w: %w", core.ErrCorpusIO, err))
		}
	}

	return owners, nil
}

// matches reports whether path (a file under root) is selected by src's patterns.
// Patterns without a separator match the base name; others match the path
// relative to root.
func matches(src core.SourceDescriptor, root, path string) bool {
	patterns := src.Patterns
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	base := filepath.Base(path)
	for _, pattern := range patterns {
		target := base
		if strings.ContainsRune(pattern, '/') {
			target = filepath.ToSlash(rel)
		}
		if ok, _ := filepath.Match(pattern, target); ok {
			return true
		}
	}
	return false
}

// covers reports whether an enabled descriptor would claim path if it existed.
func covers(sources []core.SourceDescriptor, path string) bool {
	for _, src := range sources {
		if !src.Enabled {
			continue
		}
		root := filepath.Clean(src.Root)
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		if inHiddenDir(rel) {
			continue
		}
		if matches(src, root, path) {
			return true
		}
	}
	return false
}

func inHiddenDir(rel string) bool {
	parts := strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/")
	for _, p := range parts {
		if p != "." && strings.HasPrefix(p, ".") {
			return true
		}
	}
	return false
}
