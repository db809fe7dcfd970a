package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/ragsync/ai"
	"github.com/poiesic/ragsync/ai/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRewrites(t *testing.T) {
	tests := []struct {
		name     string
		response string
		count    int
		expected []string
	}{
		{
			name:     "numbered lines",
			response: "1. How does Alpha work?\n2) What is Alpha for?\n3、Explain Alpha",
			count:    3,
			expected: []string{"What is Alpha?", "How does Alpha work?", "What is Alpha for?", "Explain Alpha"},
		},
		{
			name:     "bullets and blanks",
			response: "- Alpha meaning\n\n• Alpha definition\n* Alpha usage",
			count:    3,
			expected: []string{"What is Alpha?", "Alpha meaning", "Alpha definition", "Alpha usage"},
		},
		{
			name:     "duplicates and echo of original are dropped",
			response: "What is Alpha?\nAlpha meaning\nAlpha meaning\n\"Alpha purpose\"",
			count:    3,
			expected: []string{"What is Alpha?", "Alpha meaning", "Alpha purpose"},
		},
		{
			name:     "truncated to count",
			response: "one\ntwo\nthree\nfour",
			count:    2,
			expected: []string{"What is Alpha?", "one", "two"},
		},
		{
			name:     "empty response",
			response: "   \n",
			count:    3,
			expected: []string{"What is Alpha?"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseRewrites(tt.response, "What is Alpha?", tt.count))
		})
	}
}

func TestNewExpander_RequiresClient(t *testing.T) {
	_, err := NewExpander(nil, nil)
	assert.ErrorIs(t, err, ErrGenerationClientRequired)
}

func TestExpander_Expand(t *testing.T) {
	ctx := context.Background()

	t.Run("original first then paraphrases", func(t *testing.T) {
		gen := mock.NewMockGenerator("1. Alpha meaning\n2. Alpha definition")
		e, err := NewExpander(ai.BlockingClient{Generator: gen}, nil, WithRewriteCount(2))
		require.NoError(t, err)

		variants := e.Expand(ctx, "What is Alpha?")
		assert.Equal(t, []string{"What is Alpha?", "Alpha meaning", "Alpha definition"}, variants)
		require.Len(t, gen.Prompts(), 1)
		assert.Contains(t, gen.Prompts()[0], "What is Alpha?")
		assert.Contains(t, gen.Prompts()[0], "2 alternative phrasings")
	})

	t.Run("results are cached", func(t *testing.T) {
		gen := mock.NewMockGenerator("Alpha meaning")
		e, err := NewExpander(ai.BlockingClient{Generator: gen}, nil)
		require.NoError(t, err)

		first := e.Expand(ctx, "What is Alpha?")
		first[1] = "mutated"
		second := e.Expand(ctx, "What is Alpha?")
		assert.Equal(t, []string{"What is Alpha?", "Alpha meaning"}, second)
		assert.Equal(t, 1, gen.CallCount())
	})

	t.Run("streaming client", func(t *testing.T) {
		streamer := mock.NewMockStreamer("Alpha meaning\nAlpha use")
		e, err := NewExpander(ai.StreamingClient{Streamer: streamer}, nil)
		require.NoError(t, err)

		assert.Equal(t, []string{"q", "Alpha meaning", "Alpha use"}, e.Expand(ctx, "q"))
	})

	t.Run("failure falls back to original", func(t *testing.T) {
		gen := mock.NewMockGenerator()
		gen.GenerateFunc = func(context.Context, string) (string, error) {
			return "", errors.New("service unavailable")
		}
		e, err := NewExpander(ai.BlockingClient{Generator: gen}, nil)
		require.NoError(t, err)

		assert.Equal(t, []string{"What is Alpha?"}, e.Expand(ctx, "What is Alpha?"))
		assert.Equal(t, 2, gen.CallCount(), "retried once")
	})

	t.Run("zero count disables expansion", func(t *testing.T) {
		gen := mock.NewMockGenerator("unused")
		e, err := NewExpander(ai.BlockingClient{Generator: gen}, nil, WithRewriteCount(0))
		require.NoError(t, err)

		assert.Equal(t, []string{"q"}, e.Expand(ctx, "q"))
		assert.Zero(t, gen.CallCount())
	})
}
