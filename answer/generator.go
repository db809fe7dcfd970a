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

package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/poiesic/ragsync/ai"
	"github.com/poiesic/ragsync/core"
	"github.com/poiesic/ragsync/memory"
	"github.com/poiesic/ragsync/prompt"
	"github.com/poiesic/ragsync/rerank"
)

// Defaults.
const (
	DefaultFragmentSize = 16
	DefaultTopN         = rerank.DefaultTopN
)

// Retriever gathers grounding candidates for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, categories []string) ([]core.Candidate, error)
}

// Compressor narrows candidates to the topN most relevant.
type Compressor interface {
	Compress(ctx context.Context, candidates []core.Candidate, query string, topN int) []core.Candidate
}

// AskOptions controls a single question.
type AskOptions struct {
	// UseMemory injects recent conversation into the prompt and records the
	// finished turn.
	UseMemory bool

	// Categories restricts retrieval to these categories when non-empty.
	Categories []string
}

// Generator answers questions as event streams.
type Generator struct {
	retriever    Retriever
	gate         Compressor
	client       ai.GenerationClient
	memory       *memory.Manager
	prompts      *prompt.Library
	topN         int
	memoryTurns  int
	fragmentSize int
	fallback     bool
	timeout      time.Duration
	logger       *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator) error

// WithMemory sets the conversation memory used when AskOptions.UseMemory is set.
func WithMemory(m *memory.Manager) Option {
	return func(g *Generator) error {
		g.memory = m
		return nil
	}
}

// WithPrompts sets the template library.
// Default is prompt.Default().
func WithPrompts(library *prompt.Library) Option {
	return func(g *Generator) error {
		if library != nil {
			g.prompts = library
		}
		return nil
	}
}

// WithTopN sets how many reranked candidates ground an answer.
// Default is DefaultTopN.
func WithTopN(n int) Option {
	return func(g *Generator) error {
		if n < 1 {
			return fmt.Errorf("%w: top n must be positive, got %d", core.ErrConfiguration, n)
		}
		g.topN = n
		return nil
	}
}

// WithMemoryTurns sets how many recent turns are injected into prompts.
// Default is memory.DefaultContextTurns.
func WithMemoryTurns(n int) Option {
	return func(g *Generator) error {
		g.memoryTurns = n
		return nil
	}
}

// WithFragmentSize sets the rune length of chunks synthesized from blocking
// responses. Default is DefaultFragmentSize.
func WithFragmentSize(n int) Option {
	return func(g *Generator) error {
		if n < 1 {
			return fmt.Errorf("%w: fragment size must be positive, got %d", core.ErrConfiguration, n)
		}
		g.fragmentSize = n
		return nil
	}
}

// WithFallback toggles answering from general model knowledge when nothing
// relevant was retrieved. Default is true.
func WithFallback(enabled bool) Option {
	return func(g *Generator) error {
		g.fallback = enabled
		return nil
	}
}

// WithGenerateTimeout bounds each generation call. Zero means no timeout.
func WithGenerateTimeout(d time.Duration) Option {
	return func(g *Generator) error {
		g.timeout = d
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) error {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
		return nil
	}
}

// NewGenerator creates a generator. A nil gate keeps the first topN
// retrieved candidates without reranking.
func NewGenerator(retriever Retriever, gate Compressor, client ai.GenerationClient, opts ...Option) (*Generator, error) {
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if client == nil {
		return nil, ErrGenerationClientRequired
	}
	if gate == nil {
		gate = rerank.NewGate(nil)
	}
	g := &Generator{
		retriever:    retriever,
		gate:         gate,
		client:       client,
		prompts:      prompt.Default(),
		topN:         DefaultTopN,
		memoryTurns:  memory.DefaultContextTurns,
		fragmentSize: DefaultFragmentSize,
		fallback:     true,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	g.logger = g.logger.With("component", "answer")
	return g, nil
}

// AskStream answers question asynchronously. The returned channel receives
// the events of one run and is closed after its terminal event. Cancelling
// ctx abandons outstanding calls and ends the stream with an Error event,
// even when nothing is reading the channel.
func (g *Generator) AskStream(ctx context.Context, question string, opts AskOptions) <-chan Event {
	// A single slot: on cancellation the terminal event can always take the
	// place of the one unread event.
	events := make(chan Event, 1)
	go func() {
		defer close(events)
		e := &emitter{ctx: ctx, out: events}
		if err := g.run(ctx, question, opts, e); err != nil {
			g.logger.Warn("question failed", "question", question, "err", err)
			e.fail(err)
		}
	}()
	return events
}

// result is the outcome of the generation steps.
type result struct {
	answer    string
	grounding core.Grounding
	sources   []SourceRef
}

func (g *Generator) run(ctx context.Context, question string, opts AskOptions, e *emitter) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return ErrEmptyQuestion
	}

	if err := e.send(Event{Type: EventProcessing, Message: "retrieving documents", Metadata: map[string]any{"stage": "retrieve"}}); err != nil {
		return err
	}
	candidates, err := g.retriever.Retrieve(ctx, question, opts.Categories)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}
	if len(candidates) > 0 {
		msg := Event{
			Type:     EventProcessing,
			Message:  "ranking documents",
			Metadata: map[string]any{"stage": "rerank", "candidates": len(candidates)},
		}
		if err := e.send(msg); err != nil {
			return err
		}
		candidates = g.gate.Compress(ctx, candidates, question, g.topN)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	history := ""
	if opts.UseMemory && g.memory != nil {
		history = g.memory.Context(g.memoryTurns)
	}

	start := Event{
		Type:    EventGenerationStart,
		Message: "generating answer",
		Metadata: map[string]any{
			"grounded":   len(candidates) > 0,
			"candidates": len(candidates),
			"streaming":  isStreaming(g.client),
		},
	}
	if err := e.send(start); err != nil {
		return err
	}

	res, err := g.generateAnswer(ctx, question, history, candidates, e)
	if err != nil {
		return err
	}

	if opts.UseMemory && g.memory != nil {
		turn := core.ConversationTurn{
			Question:    question,
			Answer:      res.answer,
			Timestamp:   time.Now(),
			Grounding:   res.grounding,
			SourceCount: len(res.sources),
		}
		if err := g.memory.Add(turn); err != nil {
			g.logger.Warn("failed to record conversation turn", "err", err)
		}
	}

	end := Event{
		Type:      EventGenerationEnd,
		Answer:    res.answer,
		Sources:   res.sources,
		Grounding: res.grounding,
	}
	if err := e.send(end); err != nil {
		return err
	}
	return e.send(Event{
		Type:      EventComplete,
		Message:   "done",
		Answer:    res.answer,
		Grounding: res.grounding,
	})
}

// generateAnswer runs the grounded, fallback and refusal steps in order.
func (g *Generator) generateAnswer(ctx context.Context, question, history string, candidates []core.Candidate, e *emitter) (result, error) {
	if len(candidates) > 0 {
		text, err := g.prompts.Render(prompt.QA, map[string]any{
			"memory":   history,
			"context":  renderContext(candidates),
			"question": question,
			"refusal":  core.RefusalSentinel,
		})
		if err != nil {
			return result{}, err
		}
		answer, refused, err := g.generate(ctx, text, e)
		if err != nil {
			return result{}, fmt.Errorf("generation failed: %w", err)
		}
		if !refused {
			return result{answer: answer, grounding: core.Grounded, sources: sourcesOf(candidates)}, nil
		}
		g.logger.Debug("grounded prompt was refused, falling back to model knowledge")
	}

	if g.fallback {
		text, err := g.prompts.Render(prompt.Fallback, map[string]any{
			"memory":   history,
			"question": question,
			"refusal":  core.RefusalSentinel,
		})
		if err != nil {
			return result{}, err
		}
		answer, refused, err := g.generate(ctx, text, e)
		if err != nil {
			return result{}, fmt.Errorf("fallback generation failed: %w", err)
		}
		if !refused {
			return result{answer: answer, grounding: core.ModelKnowledge, sources: []SourceRef{}}, nil
		}
	}

	for _, w := range windows(core.RefusalSentinel, g.fragmentSize) {
		if err := e.chunk(w); err != nil {
			return result{}, err
		}
	}
	return result{answer: core.RefusalSentinel, grounding: core.Refusal, sources: []SourceRef{}}, nil
}

// generate runs prompt on the configured client, emitting chunks through a
// hold-back filter. refused is true when the model produced the refusal
// sentinel or nothing; in that case no chunk was emitted.
func (g *Generator) generate(ctx context.Context, text string, e *emitter) (answer string, refused bool, err error) {
	filter := newHoldback(e.chunk)

	switch c := g.client.(type) {
	case ai.StreamingClient:
		full, err := ai.RetryOnceWithData(ctx, func(ctx context.Context) (string, error) {
			ctx, cancel := ai.WithTimeout(ctx, g.timeout)
			defer cancel()
			filter.Reset()
			full, err := c.Streamer.Stream(ctx, text, filter.Write)
			if err != nil && filter.Emitted() {
				// Fragments already reached the caller; a retry would repeat them
				return "", ai.Permanent(err)
			}
			return full, err
		})
		if err != nil {
			return "", false, err
		}
		if filter.Len() == 0 && full != "" {
			if err := filter.Write(full); err != nil {
				return "", false, err
			}
		}

	case ai.BlockingClient:
		full, err := ai.RetryOnceWithData(ctx, func(ctx context.Context) (string, error) {
			ctx, cancel := ai.WithTimeout(ctx, g.timeout)
			defer cancel()
			return c.Generator.Generate(ctx, text)
		})
		if err != nil {
			return "", false, err
		}
		if strings.TrimSpace(full) == "" || isRefusal(full) {
			return "", true, nil
		}
		for _, w := range windows(full, g.fragmentSize) {
			if err := e.chunk(w); err != nil {
				return "", false, err
			}
		}
		return full, false, nil

	default:
		return "", false, ai.ErrUnsupportedClient
	}

	refused, err = filter.Finish()
	if err != nil || refused {
		return "", refused, err
	}
	return filter.Text(), false, nil
}

func isStreaming(client ai.GenerationClient) bool {
	_, ok := client.(ai.StreamingClient)
	return ok
}

// renderContext formats candidates as numbered reference passages.
func renderContext(candidates []core.Candidate) string {
	var sb strings.Builder
	for i, c := range candidates {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] (%s", i+1, filepath.Base(c.Source))
		if c.Category != "" {
			fmt.Fprintf(&sb, ", %s", c.Category)
		}
		sb.WriteString(")\n")
		sb.WriteString(strings.TrimSpace(c.Content))
	}
	return sb.String()
}

// sourcesOf lists the distinct documents behind candidates in order.
func sourcesOf(candidates []core.Candidate) []SourceRef {
	refs := []SourceRef{}
	seen := make(map[SourceRef]bool)
	for _, c := range candidates {
		ref := SourceRef{Source: c.Source, Category: c.Category}
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	return refs
}

// emitter delivers events of one run. It is the only writer of out.
type emitter struct {
	ctx context.Context
	out chan Event
}

func (e *emitter) send(ev Event) error {
	ev.Timestamp = time.Now()
	select {
	case e.out <- ev:
		return nil
	case <-e.ctx.Done():
		return e.ctx.Err()
	}
}

func (e *emitter) chunk(text string) error {
	if text == "" {
		return nil
	}
	return e.send(Event{Type: EventGenerationChunk, Chunk: text})
}

// fail delivers the terminal Error event. Once ctx is done and the reader
// has stopped, the unread event is discarded to make room, so the reader
// sees a contiguous prefix of the run followed by the Error.
func (e *emitter) fail(err error) {
	ev := Event{Type: EventError, Message: describe(err), Err: err, Timestamp: time.Now()}
	select {
	case e.out <- ev:
		return
	case <-e.ctx.Done():
	}
	select {
	case e.out <- ev:
		return
	default:
	}
	select {
	case <-e.out:
	default:
	}
	e.out <- ev
}

func describe(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "question cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "question timed out"
	default:
		return err.Error()
	}
}
