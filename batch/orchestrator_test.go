package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/ragsync/answer"
	"github.com/poiesic/ragsync/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAsker answers "FAIL..." with an Error, blocks "SLOW..." until its
// context is done, closes "DROP..." without a terminal event, and answers
// anything else successfully.
type stubAsker struct {
	inFlight atomic.Int64
	peak     atomic.Int64
	delay    time.Duration
}

func (s *stubAsker) AskStream(ctx context.Context, question string, _ answer.AskOptions) <-chan answer.Event {
	out := make(chan answer.Event)
	go func() {
		defer close(out)
		n := s.inFlight.Add(1)
		defer s.inFlight.Add(-1)
		for {
			p := s.peak.Load()
			if n <= p || s.peak.CompareAndSwap(p, n) {
				break
			}
		}

		send := func(ev answer.Event) bool {
			ev.Timestamp = time.Now()
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if !send(answer.Event{Type: answer.EventProcessing}) {
			return
		}
		switch {
		case strings.HasPrefix(question, "FAIL"):
			send(answer.Event{Type: answer.EventError, Err: errors.New("generation failed")})
			return
		case strings.HasPrefix(question, "DROP"):
			return
		case strings.HasPrefix(question, "SLOW"):
			<-ctx.Done()
			out <- answer.Event{Type: answer.EventError, Err: ctx.Err()}
			return
		}
		time.Sleep(s.delay)
		send(answer.Event{Type: answer.EventGenerationStart})
		send(answer.Event{Type: answer.EventGenerationChunk, Chunk: question})
		send(answer.Event{Type: answer.EventGenerationEnd, Answer: question})
		send(answer.Event{Type: answer.EventComplete, Answer: question})
	}()
	return out
}

func collect(t *testing.T, run *Run) []answer.Event {
	t.Helper()
	var events []answer.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-run.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("batch did not finish")
			return nil
		}
	}
}

func byQuestion(events []answer.Event) map[int][]answer.EventType {
	out := make(map[int][]answer.EventType)
	for _, ev := range events {
		out[ev.QuestionIndex] = append(out[ev.QuestionIndex], ev.Type)
	}
	return out
}

func TestNewOrchestrator(t *testing.T) {
	_, err := NewOrchestrator(nil)
	assert.ErrorIs(t, err, ErrAskerRequired)

	_, err = NewOrchestrator(&stubAsker{}, WithConcurrency(0))
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestAskMany(t *testing.T) {
	o, err := NewOrchestrator(&stubAsker{})
	require.NoError(t, err)

	run := o.AskMany(context.Background(), []string{"one", "two", "three"}, answer.AskOptions{})
	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.Equal(t, 3, run.Len())

	events := collect(t, run)
	last := events[len(events)-1]
	assert.Equal(t, answer.EventComplete, last.Type)
	assert.Zero(t, last.QuestionIndex)
	assert.Equal(t, 3, last.TotalQuestions)
	assert.Equal(t, 3, last.Succeeded)
	assert.Zero(t, last.Failed)

	perQuestion := byQuestion(events[:len(events)-1])
	require.Len(t, perQuestion, 3)
	for i := 1; i <= 3; i++ {
		assert.Equal(t, []answer.EventType{
			answer.EventProcessing,
			answer.EventGenerationStart,
			answer.EventGenerationChunk,
			answer.EventGenerationEnd,
			answer.EventComplete,
		}, perQuestion[i], "question %d", i)
	}
	for _, ev := range events {
		assert.Equal(t, 3, ev.TotalQuestions)
	}
}

func TestAskMany_Isolation(t *testing.T) {
	o, err := NewOrchestrator(&stubAsker{})
	require.NoError(t, err)

	events := collect(t, o.AskMany(context.Background(), []string{"ok 1", "FAIL", "ok 2"}, answer.AskOptions{}))
	last := events[len(events)-1]
	assert.Equal(t, 2, last.Succeeded)
	assert.Equal(t, 1, last.Failed)

	perQuestion := byQuestion(events[:len(events)-1])
	assert.Equal(t, answer.EventError, perQuestion[2][len(perQuestion[2])-1])
	assert.Equal(t, answer.EventComplete, perQuestion[1][len(perQuestion[1])-1])
	assert.Equal(t, answer.EventComplete, perQuestion[3][len(perQuestion[3])-1])
}

func TestAskMany_TruncatedStream(t *testing.T) {
	o, err := NewOrchestrator(&stubAsker{})
	require.NoError(t, err)

	events := collect(t, o.AskMany(context.Background(), []string{"ok", "DROP"}, answer.AskOptions{}))
	last := events[len(events)-1]
	assert.Equal(t, 1, last.Succeeded)
	assert.Equal(t, 1, last.Failed)

	var dropped []answer.Event
	for _, ev := range events {
		if ev.QuestionIndex == 2 {
			dropped = append(dropped, ev)
		}
	}
	require.Len(t, dropped, 2)
	assert.Equal(t, answer.EventProcessing, dropped[0].Type)
	assert.Equal(t, answer.EventError, dropped[1].Type)
	assert.ErrorIs(t, dropped[1].Err, ErrStreamTruncated)
	assert.Equal(t, 2, dropped[1].TotalQuestions)
}

func TestAskMany_Concurrency(t *testing.T) {
	asker := &stubAsker{delay: 20 * time.Millisecond}
	o, err := NewOrchestrator(asker, WithConcurrency(2))
	require.NoError(t, err)

	questions := make([]string, 8)
	for i := range questions {
		questions[i] = fmt.Sprintf("question %d", i)
	}
	events := collect(t, o.AskMany(context.Background(), questions, answer.AskOptions{}))

	assert.Equal(t, 8, events[len(events)-1].Succeeded)
	assert.LessOrEqual(t, asker.peak.Load(), int64(2))
	assert.Greater(t, asker.peak.Load(), int64(0))
}

func TestAskMany_Cancel(t *testing.T) {
	o, err := NewOrchestrator(&stubAsker{})
	require.NoError(t, err)

	run := o.AskMany(context.Background(), []string{"ok", "SLOW"}, answer.AskOptions{})
	assert.False(t, run.Cancel(0))
	assert.False(t, run.Cancel(3))

	var events []answer.Event
	for ev := range run.Events() {
		events = append(events, ev)
		if ev.QuestionIndex == 2 && ev.Type == answer.EventProcessing {
			require.True(t, run.Cancel(2))
		}
	}

	last := events[len(events)-1]
	assert.Equal(t, 1, last.Succeeded)
	assert.Equal(t, 1, last.Failed)
	slow := byQuestion(events)[2]
	assert.Equal(t, answer.EventError, slow[len(slow)-1])
}

func TestAskMany_Empty(t *testing.T) {
	o, err := NewOrchestrator(&stubAsker{})
	require.NoError(t, err)

	events := collect(t, o.AskMany(context.Background(), nil, answer.AskOptions{}))
	require.Len(t, events, 1)
	assert.Equal(t, answer.EventComplete, events[0].Type)
	assert.Zero(t, events[0].Succeeded)
}
