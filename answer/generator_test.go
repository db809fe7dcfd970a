package answer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/ragsync/ai"
	"github.com/poiesic/ragsync/ai/mock"
	"github.com/poiesic/ragsync/core"
	"github.com/poiesic/ragsync/memory"
	"github.com/poiesic/ragsync/rerank"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRetriever struct {
	candidates []core.Candidate
	err        error
	categories []string
}

func (s *stubRetriever) Retrieve(_ context.Context, _ string, categories []string) ([]core.Candidate, error) {
	s.categories = categories
	return s.candidates, s.err
}

func paris() []core.Candidate {
	return []core.Candidate{
		{ChunkID: "1", Source: "a.txt", Category: "geo", Content: "Paris is the capital of France."},
		{ChunkID: "2", Source: "a.txt", Category: "geo", Content: "France is in Europe."},
		{ChunkID: "3", Source: "b.txt", Category: "geo", Content: "Lyon is in France."},
	}
}

func drain(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("event stream did not close")
			return nil
		}
	}
}

func types(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func chunkText(events []Event) string {
	var sb strings.Builder
	for _, ev := range events {
		if ev.Type == EventGenerationChunk {
			sb.WriteString(ev.Chunk)
		}
	}
	return sb.String()
}

func find(events []Event, typ EventType) (Event, bool) {
	for _, ev := range events {
		if ev.Type == typ {
			return ev, true
		}
	}
	return Event{}, false
}

// eventSuccessors lists which events may follow each event type in a run.
var eventSuccessors = map[EventType][]EventType{
	"":                   {EventProcessing, EventError},
	EventProcessing:      {EventProcessing, EventGenerationStart, EventError},
	EventGenerationStart: {EventGenerationChunk, EventGenerationEnd, EventError},
	EventGenerationChunk: {EventGenerationChunk, EventGenerationEnd, EventError},
	EventGenerationEnd:   {EventComplete, EventError},
}

// assertEventOrder checks that events are a prefix of
// Processing+ GenerationStart Chunk* GenerationEnd Complete, ended by exactly
// one terminal event.
func assertEventOrder(t *testing.T, events []Event) {
	t.Helper()
	require.NotEmpty(t, events)
	prev := EventType("")
	for i, ev := range events {
		require.Contains(t, eventSuccessors[prev], ev.Type, "event %d out of order in %v", i, types(events))
		prev = ev.Type
	}
	require.True(t, prev.Terminal(), "stream ended without a terminal event: %v", types(events))
}

// assertWellFormed checks a run that completed.
func assertWellFormed(t *testing.T, events []Event) {
	t.Helper()
	assertEventOrder(t, events)
	assert.Equal(t, EventComplete, events[len(events)-1].Type)
}

func newGenerator(t *testing.T, retriever Retriever, client ai.GenerationClient, opts ...Option) *Generator {
	t.Helper()
	g, err := NewGenerator(retriever, rerank.NewGate(mock.NewMockReranker()), client, opts...)
	require.NoError(t, err)
	return g
}

func TestNewGenerator(t *testing.T) {
	client := ai.StreamingClient{Streamer: mock.NewMockStreamer("x")}

	_, err := NewGenerator(nil, nil, client)
	assert.ErrorIs(t, err, ErrRetrieverRequired)

	_, err = NewGenerator(&stubRetriever{}, nil, nil)
	assert.ErrorIs(t, err, ErrGenerationClientRequired)

	_, err = NewGenerator(&stubRetriever{}, nil, client, WithTopN(0))
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = NewGenerator(&stubRetriever{}, nil, client, WithFragmentSize(0))
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestAskStream_Grounded(t *testing.T) {
	streamer := mock.NewMockStreamer("Paris is the capital of France.")
	retriever := &stubRetriever{candidates: paris()}
	g := newGenerator(t, retriever, ai.StreamingClient{Streamer: streamer}, WithTopN(2))

	events := drain(t, g.AskStream(context.Background(), "What is the capital of France?", AskOptions{Categories: []string{"geo"}}))
	assertWellFormed(t, events)

	end, _ := find(events, EventGenerationEnd)
	assert.Equal(t, "Paris is the capital of France.", end.Answer)
	assert.Equal(t, core.Grounded, end.Grounding)
	assert.Equal(t, []SourceRef{{Source: "a.txt", Category: "geo"}}, end.Sources)
	assert.Equal(t, end.Answer, chunkText(events))

	assert.Equal(t, []string{"geo"}, retriever.categories)
	require.Equal(t, 1, streamer.CallCount())
	prompt := streamer.Prompts()[0]
	assert.Contains(t, prompt, "Paris is the capital of France.")
	assert.Contains(t, prompt, "France is in Europe.")
	assert.NotContains(t, prompt, "Lyon")

	for _, ev := range events {
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestAskStream_Fallback(t *testing.T) {
	t.Run("no candidates uses model knowledge", func(t *testing.T) {
		streamer := mock.NewMockStreamer("Water boils at 100 degrees.")
		g := newGenerator(t, &stubRetriever{}, ai.StreamingClient{Streamer: streamer})

		events := drain(t, g.AskStream(context.Background(), "When does water boil?", AskOptions{}))
		assertWellFormed(t, events)

		end, _ := find(events, EventGenerationEnd)
		assert.Equal(t, core.ModelKnowledge, end.Grounding)
		assert.Empty(t, end.Sources)
		assert.Equal(t, "Water boils at 100 degrees.", end.Answer)
		assert.NotContains(t, streamer.Prompts()[0], "Reference material")
	})

	t.Run("grounded refusal falls back", func(t *testing.T) {
		streamer := mock.NewMockStreamer(core.RefusalSentinel, "From general knowledge, Paris.")
		g := newGenerator(t, &stubRetriever{candidates: paris()}, ai.StreamingClient{Streamer: streamer})

		events := drain(t, g.AskStream(context.Background(), "Capital?", AskOptions{}))
		assertWellFormed(t, events)

		end, _ := find(events, EventGenerationEnd)
		assert.Equal(t, core.ModelKnowledge, end.Grounding)
		assert.Empty(t, end.Sources)
		assert.Equal(t, "From general knowledge, Paris.", chunkText(events))
		assert.Equal(t, 2, streamer.CallCount())
	})

	t.Run("double refusal yields the sentinel", func(t *testing.T) {
		streamer := mock.NewMockStreamer(core.RefusalSentinel)
		g := newGenerator(t, &stubRetriever{candidates: paris()}, ai.StreamingClient{Streamer: streamer})

		events := drain(t, g.AskStream(context.Background(), "Capital?", AskOptions{}))
		assertWellFormed(t, events)

		end, _ := find(events, EventGenerationEnd)
		assert.Equal(t, core.Refusal, end.Grounding)
		assert.Equal(t, core.RefusalSentinel, end.Answer)
		assert.Equal(t, core.RefusalSentinel, chunkText(events))
		assert.Empty(t, end.Sources)
	})

	t.Run("fallback disabled", func(t *testing.T) {
		streamer := mock.NewMockStreamer("never used")
		g := newGenerator(t, &stubRetriever{}, ai.StreamingClient{Streamer: streamer}, WithFallback(false))

		events := drain(t, g.AskStream(context.Background(), "Anything?", AskOptions{}))
		assertWellFormed(t, events)

		end, _ := find(events, EventGenerationEnd)
		assert.Equal(t, core.Refusal, end.Grounding)
		assert.Equal(t, core.RefusalSentinel, end.Answer)
		assert.Zero(t, streamer.CallCount())
	})
}

func TestAskStream_Blocking(t *testing.T) {
	answer := strings.Repeat("x", 40)
	generator := mock.NewMockGenerator(answer)
	g := newGenerator(t, &stubRetriever{candidates: paris()}, ai.BlockingClient{Generator: generator})

	events := drain(t, g.AskStream(context.Background(), "Q?", AskOptions{}))
	assertWellFormed(t, events)

	var sizes []int
	for _, ev := range events {
		if ev.Type == EventGenerationChunk {
			sizes = append(sizes, len([]rune(ev.Chunk)))
		}
	}
	assert.Equal(t, []int{16, 16, 8}, sizes)
	start, _ := find(events, EventGenerationStart)
	assert.Equal(t, false, start.Metadata["streaming"])
}

func TestAskStream_Errors(t *testing.T) {
	t.Run("empty question", func(t *testing.T) {
		g := newGenerator(t, &stubRetriever{}, ai.StreamingClient{Streamer: mock.NewMockStreamer("x")})
		events := drain(t, g.AskStream(context.Background(), "   ", AskOptions{}))
		require.Len(t, events, 1)
		assertEventOrder(t, events)
		assert.Equal(t, EventError, events[0].Type)
		assert.ErrorIs(t, events[0].Err, ErrEmptyQuestion)
	})

	t.Run("retrieval failure", func(t *testing.T) {
		boom := errors.New("index unavailable")
		g := newGenerator(t, &stubRetriever{err: boom}, ai.StreamingClient{Streamer: mock.NewMockStreamer("x")})
		events := drain(t, g.AskStream(context.Background(), "Q?", AskOptions{}))
		assertEventOrder(t, events)

		last := events[len(events)-1]
		assert.Equal(t, EventError, last.Type)
		assert.ErrorIs(t, last.Err, boom)
		_, completed := find(events, EventComplete)
		assert.False(t, completed)
		_, started := find(events, EventGenerationStart)
		assert.False(t, started)
	})

	t.Run("failure before output is retried", func(t *testing.T) {
		streamer := mock.NewMockStreamer()
		calls := 0
		streamer.StreamFunc = func(_ context.Context, _ string, onFragment func(string) error) (string, error) {
			calls++
			if calls == 1 {
				return "", errors.New("connection reset")
			}
			return "ok", onFragment("ok")
		}
		g := newGenerator(t, &stubRetriever{candidates: paris()}, ai.StreamingClient{Streamer: streamer})
		events := drain(t, g.AskStream(context.Background(), "Q?", AskOptions{}))
		assertWellFormed(t, events)
		assert.Equal(t, "ok", chunkText(events))
		assert.Equal(t, 2, calls)
	})

	t.Run("failure after output is not retried", func(t *testing.T) {
		streamer := mock.NewMockStreamer()
		calls := 0
		streamer.StreamFunc = func(_ context.Context, _ string, onFragment func(string) error) (string, error) {
			calls++
			if err := onFragment("Partial answer"); err != nil {
				return "", err
			}
			return "", errors.New("connection reset")
		}
		g := newGenerator(t, &stubRetriever{candidates: paris()}, ai.StreamingClient{Streamer: streamer})
		events := drain(t, g.AskStream(context.Background(), "Q?", AskOptions{}))
		assertEventOrder(t, events)

		assert.Equal(t, EventError, events[len(events)-1].Type)
		assert.Equal(t, "Partial answer", chunkText(events))
		assert.Equal(t, 1, calls)
	})
}

func TestAskStream_Cancellation(t *testing.T) {
	t.Run("cancel during generation", func(t *testing.T) {
		streamer := mock.NewMockStreamer()
		streamer.StreamFunc = func(ctx context.Context, _ string, _ func(string) error) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}
		g := newGenerator(t, &stubRetriever{candidates: paris()}, ai.StreamingClient{Streamer: streamer})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		stream := g.AskStream(ctx, "Q?", AskOptions{})
		var events []Event
		for ev := range stream {
			events = append(events, ev)
			if ev.Type == EventGenerationStart {
				cancel()
				break
			}
		}
		events = append(events, drain(t, stream)...)

		assertEventOrder(t, events)
		last := events[len(events)-1]
		assert.Equal(t, EventError, last.Type)
		assert.ErrorIs(t, last.Err, context.Canceled)
	})

	t.Run("cancel while nothing reads the stream", func(t *testing.T) {
		streamer := mock.NewMockStreamer()
		streamer.StreamFunc = func(_ context.Context, _ string, onFragment func(string) error) (string, error) {
			for range 1000 {
				if err := onFragment("x"); err != nil {
					return "", err
				}
			}
			return strings.Repeat("x", 1000), nil
		}
		g := newGenerator(t, &stubRetriever{candidates: paris()}, ai.StreamingClient{Streamer: streamer})

		ctx, cancel := context.WithCancel(context.Background())
		stream := g.AskStream(ctx, "Q?", AskOptions{})
		time.Sleep(50 * time.Millisecond)
		cancel()

		events := drain(t, stream)
		assertEventOrder(t, events)
		last := events[len(events)-1]
		assert.Equal(t, EventError, last.Type)
		assert.Equal(t, "question cancelled", last.Message)
		_, completed := find(events, EventComplete)
		assert.False(t, completed)
	})

	t.Run("cancel after every event was read", func(t *testing.T) {
		g := newGenerator(t, &stubRetriever{candidates: paris()}, ai.StreamingClient{Streamer: mock.NewMockStreamer("Paris.")})

		ctx, cancel := context.WithCancel(context.Background())
		events := drain(t, g.AskStream(ctx, "Q?", AskOptions{}))
		cancel()
		assertWellFormed(t, events)
	})
}

func TestAskStream_Memory(t *testing.T) {
	mem, err := memory.New()
	require.NoError(t, err)
	streamer := mock.NewMockStreamer("Paris.", "Lyon.")
	g := newGenerator(t, &stubRetriever{candidates: paris()}, ai.StreamingClient{Streamer: streamer}, WithMemory(mem))

	drain(t, g.AskStream(context.Background(), "Capital of France?", AskOptions{UseMemory: true}))
	require.Equal(t, 1, mem.Len())
	turn := mem.Recent(1)[0]
	assert.Equal(t, "Capital of France?", turn.Question)
	assert.Equal(t, "Paris.", turn.Answer)
	assert.Equal(t, core.Grounded, turn.Grounding)
	assert.Equal(t, 2, turn.SourceCount)

	drain(t, g.AskStream(context.Background(), "And its second city?", AskOptions{UseMemory: true}))
	assert.Contains(t, streamer.Prompts()[1], "Capital of France?")
	assert.Equal(t, 2, mem.Len())

	drain(t, g.AskStream(context.Background(), "Unrelated?", AskOptions{}))
	assert.NotContains(t, streamer.Prompts()[2], "Capital of France?")
	assert.Equal(t, 2, mem.Len())
}
