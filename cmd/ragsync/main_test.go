package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/ragsync"
	"github.com/poiesic/ragsync/ai"
	"github.com/poiesic/ragsync/ai/mock"
	"github.com/poiesic/ragsync/config"
	"github.com/poiesic/ragsync/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProvider() ai.Provider {
	streamer := mock.NewMockStreamer()
	streamer.StreamFunc = func(_ context.Context, prompt string, onFragment func(string) error) (string, error) {
		response := "Paris is the capital."
		if strings.Contains(prompt, "alternative phrasings") {
			response = "capital city of France"
		}
		for _, f := range mock.Fragments(response, 4) {
			if err := onFragment(f); err != nil {
				return "", err
			}
		}
		return response, nil
	}
	return mock.NewMockProviderWithServices(mock.NewMockEmbedder(), ai.StreamingClient{Streamer: streamer}, mock.NewMockReranker())
}

// setup writes a small corpus and a configuration file pointing at it, and
// makes every command use the test provider.
func setup(t *testing.T) (configPath, memoryPath string) {
	t.Helper()
	corpusDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(corpusDir, "france.txt"), []byte("Paris is the capital of France."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(corpusDir, "spain.txt"), []byte("Madrid is the capital of Spain."), 0o644))

	cfg := config.Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Sources = []core.SourceDescriptor{
		{Root: corpusDir, Patterns: []string{"*.txt"}, Category: "geo", Enabled: true},
	}
	dir := t.TempDir()
	configPath = filepath.Join(dir, "ragsync.yaml")
	require.NoError(t, config.Save(configPath, cfg))

	original := newService
	newService = func(cfg *config.Config) (*ragsync.Service, error) {
		return ragsync.New(cfg, ragsync.WithProvider(testProvider()))
	}
	t.Cleanup(func() { newService = original })

	return configPath, filepath.Join(dir, "memory.json")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.Reader = strings.NewReader("")
	err := app.Run(append([]string{"ragsync", "--log-level", "error"}, args...))
	return out.String(), err
}

func TestAppFlags(t *testing.T) {
	app := newApp()

	t.Run("global defaults", func(t *testing.T) {
		var configPath, level string
		for _, flag := range app.Flags {
			switch flag.Names()[0] {
			case "config":
				configPath = flag.(interface{ GetValue() string }).GetValue()
			case "log-level":
				level = flag.(interface{ GetValue() string }).GetValue()
			}
		}
		assert.Equal(t, "ragsync.yaml", configPath)
		assert.Equal(t, "info", level)
	})

	t.Run("every command is registered", func(t *testing.T) {
		names := make([]string, 0, len(app.Commands))
		for _, cmd := range app.Commands {
			names = append(names, cmd.Name)
		}
		assert.ElementsMatch(t, []string{
			"sync", "watch", "ask", "chat", "batch", "retrieve",
			"categories", "stats", "reindex", "memory", "prompts",
		}, names)
	})

	t.Run("invalid log level", func(t *testing.T) {
		var errOut bytes.Buffer
		app := newApp()
		app.ErrWriter = &errOut
		err := app.Run([]string{"ragsync", "--log-level", "loud", "categories"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestMissingArguments(t *testing.T) {
	configPath, _ := setup(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"ask without question", []string{"ask"}, "a question is required"},
		{"retrieve without query", []string{"retrieve"}, "a question is required"},
		{"batch without questions", []string{"batch"}, "at least one question is required"},
		{"memory export without destination", []string{"memory", "export"}, "a destination file is required"},
		{"memory import without source", []string{"memory", "import"}, "a source file is required"},
		{"memory search without keyword", []string{"memory", "search"}, "a keyword is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, append([]string{"--config", configPath}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCommands(t *testing.T) {
	configPath, memoryPath := setup(t)
	cfgArgs := func(args ...string) []string {
		return append([]string{"--config", configPath}, args...)
	}

	t.Run("dry run reports new files", func(t *testing.T) {
		out, err := run(t, cfgArgs("sync", "--dry-run")...)
		require.NoError(t, err)
		assert.Contains(t, out, "new=2")
		assert.Contains(t, out, "france.txt (geo)")
	})

	t.Run("sync", func(t *testing.T) {
		_, err := run(t, cfgArgs("sync")...)
		require.NoError(t, err)

		out, err := run(t, cfgArgs("sync", "--dry-run")...)
		require.NoError(t, err)
		assert.Contains(t, out, "new=0 modified=0 deleted=0 unchanged=2")
	})

	t.Run("categories", func(t *testing.T) {
		out, err := run(t, cfgArgs("categories")...)
		require.NoError(t, err)
		assert.Contains(t, out, "geo")
	})

	t.Run("stats", func(t *testing.T) {
		out, err := run(t, cfgArgs("stats")...)
		require.NoError(t, err)
		assert.Contains(t, out, "Sources:    2")
		assert.NotContains(t, out, "never")
	})

	t.Run("retrieve", func(t *testing.T) {
		out, err := run(t, cfgArgs("retrieve", "capital", "of", "France")...)
		require.NoError(t, err)
		assert.Contains(t, out, "(geo)")
	})

	t.Run("ask records memory", func(t *testing.T) {
		out, err := run(t, cfgArgs("ask", "--memory-file", memoryPath, "What is the capital of France?")...)
		require.NoError(t, err)
		assert.Contains(t, out, "Paris is the capital.")
		assert.Contains(t, out, "Sources:")

		out, err = run(t, cfgArgs("memory", "stats", "--memory-file", memoryPath)...)
		require.NoError(t, err)
		assert.Contains(t, out, "Turns:      1")

		out, err = run(t, cfgArgs("memory", "search", "--memory-file", memoryPath, "France")...)
		require.NoError(t, err)
		assert.Contains(t, out, "What is the capital of France?")
	})

	t.Run("ask without memory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "memory.json")
		_, err := run(t, cfgArgs("ask", "--no-memory", "--memory-file", path, "Where is Madrid?")...)
		require.NoError(t, err)
		assert.NoFileExists(t, path)
	})

	t.Run("ask as json", func(t *testing.T) {
		out, err := run(t, cfgArgs("ask", "--no-memory", "--json", "capital of France")...)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		assert.Contains(t, lines[len(lines)-1], `"type":"complete"`)
	})

	t.Run("memory export and import", func(t *testing.T) {
		exported := filepath.Join(t.TempDir(), "export.json")
		out, err := run(t, cfgArgs("memory", "export", "--memory-file", memoryPath, exported)...)
		require.NoError(t, err)
		assert.Contains(t, out, "exported 1 turns")

		target := filepath.Join(t.TempDir(), "memory.json")
		out, err = run(t, cfgArgs("memory", "import", "--memory-file", target, exported)...)
		require.NoError(t, err)
		assert.Contains(t, out, "imported 1 turns, kept 1")
		assert.FileExists(t, target)
	})

	t.Run("batch from args and file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "questions.txt")
		require.NoError(t, os.WriteFile(file, []byte("# comment\nWhere is Madrid?\n\n"), 0o644))

		out, err := run(t, cfgArgs("batch", "--file", file, "What is the capital of France?")...)
		require.NoError(t, err)
		assert.Contains(t, out, "succeeded=2 failed=0")
		assert.Contains(t, out, "Where is Madrid?")
	})

	t.Run("reindex", func(t *testing.T) {
		_, err := run(t, cfgArgs("reindex", "--batch-size", "1")...)
		require.NoError(t, err)
	})

	t.Run("chat reads questions from stdin", func(t *testing.T) {
		var out, errOut bytes.Buffer
		app := newApp()
		app.Writer = &out
		app.ErrWriter = &errOut
		app.Reader = strings.NewReader("What is the capital of France?\n\n")
		path := filepath.Join(t.TempDir(), "memory.json")
		err := app.Run([]string{"ragsync", "--log-level", "error", "--config", configPath, "chat", "--memory-file", path})
		require.NoError(t, err)
		assert.Contains(t, out.String(), "Paris is the capital.")
		assert.FileExists(t, path)
	})
}

func TestPromptsCommands(t *testing.T) {
	configPath, _ := setup(t)

	out, err := run(t, "--config", configPath, "prompts", "list")
	require.NoError(t, err)
	names := strings.Fields(out)
	require.NotEmpty(t, names)

	out, err = run(t, "--config", configPath, "prompts", "show", names[0])
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))

	_, err = run(t, "--config", configPath, "prompts", "show", "no-such-template")
	assert.Error(t, err)
}
