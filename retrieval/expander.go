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
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/poiesic/ragsync/ai"
	"github.com/poiesic/ragsync/prompt"
)

const (
	// DefaultRewriteCount is the number of paraphrases requested per question.
	DefaultRewriteCount = 3

	// DefaultExpansionTTL is how long the paraphrases of a question are reused.
	DefaultExpansionTTL = 10 * time.Minute
)

// listMarker matches numbering and bullets models put in front of list items.
var listMarker = regexp.MustCompile(`^(?:[-*•·]+|\(?\d+[.)、:：）]|（\d+）)\s*`)

// Expander asks the generation service for paraphrases of a question.
type Expander struct {
	client  ai.GenerationClient
	prompts *prompt.Library
	count   int
	ttl     time.Duration
	timeout time.Duration
	cache   *cache.Cache
	logger  *slog.Logger
}

// ExpanderOption configures an Expander.
type ExpanderOption func(*Expander)

// WithRewriteCount sets how many paraphrases are requested.
// Default is DefaultRewriteCount. Zero disables expansion.
func WithRewriteCount(n int) ExpanderOption {
	return func(e *Expander) {
		e.count = max(n, 0)
	}
}

// WithExpansionTTL sets how long results are cached.
// Default is DefaultExpansionTTL.
func WithExpansionTTL(d time.Duration) ExpanderOption {
	return func(e *Expander) {
		e.ttl = d
	}
}

// WithExpansionTimeout bounds each rewrite call. Zero means no timeout.
func WithExpansionTimeout(d time.Duration) ExpanderOption {
	return func(e *Expander) {
		e.timeout = d
	}
}

// WithExpanderLogger sets a custom logger.
func WithExpanderLogger(logger *slog.Logger) ExpanderOption {
	return func(e *Expander) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExpander creates an expander. A nil library uses the built-in templates.
func NewExpander(client ai.GenerationClient, library *prompt.Library, opts ...ExpanderOption) (*Expander, error) {
	if client == nil {
		return nil, ErrGenerationClientRequired
	}
	if library == nil {
		library = prompt.Default()
	}
	e := &Expander{
		client:  client,
		prompts: library,
		count:   DefaultRewriteCount,
		ttl:     DefaultExpansionTTL,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "expander")
	e.cache = cache.New(e.ttl, 2*e.ttl)
	return e, nil
}

// Expand returns query followed by up to count distinct paraphrases. The
// original query is always element 0. Any failure yields just [query].
func (e *Expander) Expand(ctx context.Context, query string) []string {
	if e.count == 0 || strings.TrimSpace(query) == "" {
		return []string{query}
	}
	if cached, ok := e.cache.Get(query); ok {
		return slices.Clone(cached.([]string))
	}

	text, err := e.prompts.Render(prompt.Rewrite, map[string]any{
		"query": query,
		"count": strconv.Itoa(e.count),
	})
	if err != nil {
		e.logger.Error("failed to render rewrite prompt", "err", err)
		return []string{query}
	}

	response, err := ai.RetryOnceWithData(ctx, func(ctx context.Context) (string, error) {
		ctx, cancel := ai.WithTimeout(ctx, e.timeout)
		defer cancel()
		return ai.Complete(ctx, e.client, text)
	})
	if err != nil {
		e.logger.Warn("query expansion failed, using original query only", "err", err)
		return []string{query}
	}

	variants := parseRewrites(response, query, e.count)
	e.logger.Debug("expanded query", "query", query, "variants", len(variants)-1)
	e.cache.SetDefault(query, slices.Clone(variants))
	return variants
}

// parseRewrites extracts one paraphrase per line, dropping list markers,
// blanks, duplicates and echoes of the original.
func parseRewrites(response, original string, count int) []string {
	variants := []string{original}
	seen := map[string]bool{strings.TrimSpace(original): true}
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		line = strings.Trim(line, `"'“”`)
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		variants = append(variants, line)
		if len(variants) == count+1 {
			break
		}
	}
	return variants
}
