package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/ragsync/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	l := Default()
	assert.Equal(t, []string{Fallback, QA, Rewrite}, l.Names())

	t.Run("qa includes every part", func(t *testing.T) {
		text, err := l.Render(QA, map[string]any{
			"memory":   "Q: earlier\nA: reply",
			"context":  "Alpha is the first letter.",
			"question": "What is Alpha?",
			"refusal":  core.RefusalSentinel,
		})
		require.NoError(t, err)
		assert.Contains(t, text, "Conversation history:")
		assert.Contains(t, text, "Alpha is the first letter.")
		assert.Contains(t, text, "Question: What is Alpha?")
		assert.Contains(t, text, core.RefusalSentinel)
	})

	t.Run("empty memory omits history", func(t *testing.T) {
		text, err := l.Render(Fallback, map[string]any{
			"memory":   "",
			"question": "Why?",
			"refusal":  core.RefusalSentinel,
		})
		require.NoError(t, err)
		assert.NotContains(t, text, "Conversation history:")
	})

	t.Run("missing value fails", func(t *testing.T) {
		_, err := l.Render(Rewrite, map[string]any{"query": "q"})
		assert.Error(t, err)
	})

	t.Run("unknown template", func(t *testing.T) {
		_, err := l.Render("summary", nil)
		assert.ErrorIs(t, err, ErrUnknownTemplate)
	})
}

func TestNewLibrary_Overrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rewrite.tmpl"), []byte("Give {{.count}} versions of: {{.query}}\n"), 0644))

	l, err := NewLibrary(dir, nil)
	require.NoError(t, err)

	text, err := l.Render(Rewrite, map[string]any{"query": "where", "count": 2})
	require.NoError(t, err)
	assert.Equal(t, "Give 2 versions of: where", text)

	qa, err := l.Text(QA)
	require.NoError(t, err)
	assert.Contains(t, qa, "{{.context}}")
}

func TestNewLibrary_InvalidOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "qa.tmpl"), []byte("{{.unknown}}"), 0644))

	_, err := NewLibrary(dir, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.ErrorIs(t, err, ErrInvalidTemplate)
}

func TestNewLibrary_Directory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "qa.tmpl")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	tests := []struct {
		name string
		dir  string
	}{
		{"missing directory", filepath.Join(t.TempDir(), "absent")},
		{"file instead of directory", file},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLibrary(tt.dir, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrConfiguration)
		})
	}

	t.Run("empty directory uses built-in templates", func(t *testing.T) {
		l, err := NewLibrary(t.TempDir(), nil)
		require.NoError(t, err)
		qa, err := l.Text(QA)
		require.NoError(t, err)
		assert.Contains(t, qa, "{{.context}}")
	})
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLibrary(dir, nil)
	require.NoError(t, err)

	require.NoError(t, l.Save(Rewrite, "Paraphrase {{.query}} {{.count}} times"))
	text, err := l.Render(Rewrite, map[string]any{"query": "x", "count": 1})
	require.NoError(t, err)
	assert.Equal(t, "Paraphrase x 1 times", text)

	_, err = os.Stat(filepath.Join(dir, "rewrite.tmpl"))
	require.NoError(t, err)

	t.Run("invalid content is rejected", func(t *testing.T) {
		err := l.Save(Rewrite, "{{.nope}}")
		assert.ErrorIs(t, err, ErrInvalidTemplate)

		text, err := l.Text(Rewrite)
		require.NoError(t, err)
		assert.Equal(t, "Paraphrase {{.query}} {{.count}} times", text)
	})

	t.Run("reload restores builtin when file removed", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(dir, "rewrite.tmpl")))
		require.NoError(t, l.Reload(Rewrite))

		text, err := l.Text(Rewrite)
		require.NoError(t, err)
		assert.Equal(t, defaults[Rewrite], text)
	})

	t.Run("save without directory", func(t *testing.T) {
		assert.ErrorIs(t, Default().Save(QA, "{{.question}}"), ErrNoPromptsDir)
	})
}
