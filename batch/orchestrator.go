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

package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/ragsync/answer"
	"github.com/poiesic/ragsync/core"
	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the number of questions answered at once.
const DefaultConcurrency = 4

var (
	// ErrAskerRequired is returned when no asker is provided.
	ErrAskerRequired = errors.New("asker required")

	// ErrStreamTruncated marks a question whose stream closed without a
	// Complete or Error event.
	ErrStreamTruncated = errors.New("answer stream ended without a result")
)

// Asker answers a single question as an event stream.
type Asker interface {
	AskStream(ctx context.Context, question string, opts answer.AskOptions) <-chan answer.Event
}

// Orchestrator fans questions out to an Asker.
type Orchestrator struct {
	asker       Asker
	concurrency int
	logger      *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithConcurrency bounds how many questions run at once.
// Default is DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) error {
		if n < 1 {
			return fmt.Errorf("%w: concurrency must be positive, got %d", core.ErrConfiguration, n)
		}
		o.concurrency = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(asker Asker, opts ...Option) (*Orchestrator, error) {
	if asker == nil {
		return nil, ErrAskerRequired
	}
	o := &Orchestrator{
		asker:       asker,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	o.logger = o.logger.With("component", "batch")
	return o, nil
}

// Run is one batch of questions in flight.
type Run struct {
	ID uuid.UUID

	events  chan answer.Event
	cancels []context.CancelFunc
}

// Events returns the merged event stream. It is closed after the final
// Complete event. Consumers must drain it or cancel the batch context.
func (r *Run) Events() <-chan answer.Event {
	return r.events
}

// Len returns the number of questions in the batch.
func (r *Run) Len() int {
	return len(r.cancels)
}

// Cancel abandons the question with the given 1-based index. It reports
// false for an index outside the batch.
func (r *Run) Cancel(questionIndex int) bool {
	if questionIndex < 1 || questionIndex > len(r.cancels) {
		return false
	}
	r.cancels[questionIndex-1]()
	return true
}

// AskMany starts answering questions and returns immediately. Cancelling ctx
// abandons the whole batch.
func (o *Orchestrator) AskMany(ctx context.Context, questions []string, opts answer.AskOptions) *Run {
	total := len(questions)
	run := &Run{
		ID:      uuid.New(),
		events:  make(chan answer.Event, o.concurrency*4+1),
		cancels: make([]context.CancelFunc, total),
	}
	contexts := make([]context.Context, total)
	for i := range questions {
		contexts[i], run.cancels[i] = context.WithCancel(ctx)
	}

	logger := o.logger.With("run", run.ID.String())
	logger.Info("batch started", "questions", total, "concurrency", o.concurrency)

	sem := semaphore.NewWeighted(int64(o.concurrency))
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		failed    atomic.Int64
	)
	for i, question := range questions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer run.cancels[i]()
			if o.ask(ctx, contexts[i], sem, run, i+1, question, opts) {
				succeeded.Add(1)
			} else {
				failed.Add(1)
			}
		}()
	}

	go func() {
		defer close(run.events)
		wg.Wait()
		done := answer.Event{
			Type:           answer.EventComplete,
			Message:        fmt.Sprintf("answered %d of %d questions", succeeded.Load(), total),
			TotalQuestions: total,
			Succeeded:      int(succeeded.Load()),
			Failed:         int(failed.Load()),
			Timestamp:      time.Now(),
		}
		logger.Info("batch finished", "succeeded", done.Succeeded, "failed", done.Failed)
		deliver(ctx, run.events, done)
	}()
	return run
}

// ask forwards the events of one question and reports whether it completed.
func (o *Orchestrator) ask(batchCtx, ctx context.Context, sem *semaphore.Weighted, run *Run, index int, question string, opts answer.AskOptions) bool {
	total := run.Len()
	tag := func(ev answer.Event) answer.Event {
		ev.QuestionIndex = index
		ev.TotalQuestions = total
		return ev
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		deliver(batchCtx, run.events, tag(answer.Event{
			Type:      answer.EventError,
			Message:   "question cancelled before it started",
			Err:       err,
			Timestamp: time.Now(),
		}))
		return false
	}
	defer sem.Release(1)

	var terminal answer.EventType
	for ev := range o.asker.AskStream(ctx, question, opts) {
		switch ev.Type {
		case answer.EventComplete:
			terminal = ev.Type
		case answer.EventError:
			terminal = ev.Type
			o.logger.Warn("question failed", "index", index, "err", ev.Err)
		}
		deliver(batchCtx, run.events, tag(ev))
	}
	if terminal == "" {
		err := ctx.Err()
		if err == nil {
			err = ErrStreamTruncated
		}
		o.logger.Warn("question stream closed without a terminal event", "index", index)
		deliver(batchCtx, run.events, tag(answer.Event{
			Type:      answer.EventError,
			Message:   ErrStreamTruncated.Error(),
			Err:       err,
			Timestamp: time.Now(),
		}))
	}
	return terminal == answer.EventComplete
}

// deliver sends ev unless the batch was abandoned.
func deliver(ctx context.Context, out chan<- answer.Event, ev answer.Event) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}
