package ragsync

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/ragsync/ai"
	"github.com/poiesic/ragsync/ai/mock"
	"github.com/poiesic/ragsync/answer"
	"github.com/poiesic/ragsync/config"
	"github.com/poiesic/ragsync/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testProvider answers rewrite prompts with paraphrases and every other
// prompt with a fixed answer.
func testProvider() ai.Provider {
	streamer := mock.NewMockStreamer()
	streamer.StreamFunc = func(_ context.Context, prompt string, onFragment func(string) error) (string, error) {
		response := "Paris is the capital."
		if strings.Contains(prompt, "alternative phrasings") {
			response = "1. capital city of France\n2. French capital"
		}
		for _, f := range mock.Fragments(response, 5) {
			if err := onFragment(f); err != nil {
				return "", err
			}
		}
		return response, nil
	}
	return mock.NewMockProviderWithServices(mock.NewMockEmbedder(), ai.StreamingClient{Streamer: streamer}, mock.NewMockReranker())
}

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	corpusDir := t.TempDir()
	files := map[string]string{
		"france.txt": "Paris is the capital of France. It lies on the Seine.",
		"spain.txt":  "Madrid is the capital of Spain.",
		"notes.md":   "not matched by the pattern",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(corpusDir, name), []byte(content), 0o644))
	}

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Sources = []core.SourceDescriptor{
		{Root: corpusDir, Patterns: []string{"*.txt"}, Category: "geo", Enabled: true},
	}
	return cfg, corpusDir
}

func newService(t *testing.T, cfg *config.Config, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithProvider(testProvider())}, opts...)
	svc, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func drain(t *testing.T, events <-chan answer.Event) []answer.Event {
	t.Helper()
	var out []answer.Event
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

func TestNew(t *testing.T) {
	t.Run("invalid configuration", func(t *testing.T) {
		cfg, _ := testConfig(t)
		cfg.Batch.Concurrency = 0
		svc, err := New(cfg, WithProvider(testProvider()), WithInMemoryStorage())
		assert.ErrorIs(t, err, core.ErrConfiguration)
		assert.Nil(t, svc)
	})

	t.Run("invalid source", func(t *testing.T) {
		cfg, _ := testConfig(t)
		cfg.Sources[0].Category = ""
		_, err := New(cfg, WithProvider(testProvider()), WithInMemoryStorage())
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})

	t.Run("data dir is a file", func(t *testing.T) {
		cfg, _ := testConfig(t)
		file := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
		cfg.DataDir = file
		_, err := New(cfg, WithProvider(testProvider()))
		assert.Error(t, err)
	})

	t.Run("missing prompts dir", func(t *testing.T) {
		cfg, _ := testConfig(t)
		cfg.Answer.PromptsDir = filepath.Join(t.TempDir(), "absent")
		_, err := New(cfg, WithProvider(testProvider()), WithInMemoryStorage())
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})
}

func TestService(t *testing.T) {
	ctx := context.Background()
	cfg, _ := testConfig(t)
	svc := newService(t, cfg, WithInMemoryStorage())

	report, err := svc.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.New)

	categories, err := svc.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"geo"}, keys(categories))

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Sources)
	assert.Equal(t, categories["geo"], stats.Chunks)
	assert.False(t, stats.LastSync.IsZero())
	assert.Positive(t, stats.Workers.Capacity)
	assert.Zero(t, stats.Workers.Running)

	candidates, err := svc.Retrieve(ctx, "capital of France", nil)
	require.NoError(t, err)
	require.NotEmpty(t, candidates)

	t.Run("ask", func(t *testing.T) {
		events := drain(t, svc.AskStream(ctx, "What is the capital of France?", true))
		last := events[len(events)-1]
		require.Equal(t, answer.EventComplete, last.Type, "events: %v", events)
		assert.Equal(t, "Paris is the capital.", last.Answer)
		assert.Equal(t, core.Grounded, last.Grounding)
		assert.Equal(t, 1, svc.Memory().Len())
	})

	t.Run("ask in unknown category", func(t *testing.T) {
		events := drain(t, svc.AskStreamIn(ctx, "What is the capital of France?", false, []string{"finance"}))
		last := events[len(events)-1]
		require.Equal(t, answer.EventComplete, last.Type)
		assert.Equal(t, core.ModelKnowledge, last.Grounding)
	})

	t.Run("ask many", func(t *testing.T) {
		run := svc.AskMany(ctx, []string{"Capital of France?", "Capital of Spain?"})
		events := drain(t, run.Events())
		last := events[len(events)-1]
		assert.Equal(t, answer.EventComplete, last.Type)
		assert.Equal(t, 2, last.Succeeded)
		assert.Zero(t, last.Failed)
	})

	t.Run("reindex", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := svc.Reindex(ctx, &buf, nil)
		require.NoError(t, err)
		assert.Equal(t, categories["geo"], n)
		assert.Contains(t, buf.String(), "Reindex complete")

		plan, err := svc.Plan(ctx)
		require.NoError(t, err)
		assert.Len(t, plan.Unchanged, 2)
	})
}

func TestService_Reopen(t *testing.T) {
	ctx := context.Background()
	cfg, _ := testConfig(t)

	svc, err := New(cfg, WithProvider(testProvider()))
	require.NoError(t, err)
	_, err = svc.Sync(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	reopened := newService(t, cfg)
	report, err := reopened.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Unchanged)
	assert.Zero(t, report.New)

	// The lexical index is rebuilt from the store on open
	candidates, err := reopened.Retrieve(ctx, "Madrid", nil)
	require.NoError(t, err)
	found := false
	for _, c := range candidates {
		found = found || strings.Contains(c.Content, "Madrid")
	}
	assert.True(t, found)
}

func keys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
