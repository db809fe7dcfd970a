package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/ragsync/chunking"
	"github.com/poiesic/ragsync/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSplitter(t *testing.T, size, overlap int) *chunking.Splitter {
	t.Helper()
	s, err := chunking.NewSplitter(size, overlap)
	require.NoError(t, err)
	return s
}

func writeFiles(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, name := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(name), 0644))
	}
}

func TestScanner_Scan(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.txt", "b.md", "sub/c.txt", ".hidden/d.txt", "sub/img.png")

	scanner := NewScanner(nil, nil)
	ctx := context.Background()

	t.Run("patterns select files recursively", func(t *testing.T) {
		found, err := scanner.Scan(ctx, []core.SourceDescriptor{
			{Root: root, Patterns: []string{"*.txt", "*.md"}, Category: "docs", Enabled: true},
		})
		require.NoError(t, err)
		assert.Len(t, found, 3)
		assert.Contains(t, found, filepath.Join(root, "sub", "c.txt"))
		assert.NotContains(t, found, filepath.Join(root, ".hidden", "d.txt"))
		assert.NotContains(t, found, filepath.Join(root, "sub", "img.png"))
	})

	t.Run("empty patterns match everything", func(t *testing.T) {
		found, err := scanner.Scan(ctx, []core.SourceDescriptor{
			{Root: root, Category: "all", Enabled: true},
		})
		require.NoError(t, err)
		assert.Len(t, found, 4)
	})

	t.Run("relative path patterns", func(t *testing.T) {
		found, err := scanner.Scan(ctx, []core.SourceDescriptor{
			{Root: root, Patterns: []string{"sub/*.txt"}, Category: "sub", Enabled: true},
		})
		require.NoError(t, err)
		assert.Len(t, found, 1)
	})

	t.Run("lower priority value wins", func(t *testing.T) {
		found, err := scanner.Scan(ctx, []core.SourceDescriptor{
			{Root: root, Patterns: []string{"*"}, Category: "general", Priority: 5, Enabled: true},
			{Root: root, Patterns: []string{"*.txt"}, Category: "text", Priority: 1, Enabled: true},
		})
		require.NoError(t, err)
		assert.Equal(t, "text", found[filepath.Join(root, "a.txt")].Category)
		assert.Equal(t, "general", found[filepath.Join(root, "b.md")].Category)
	})

	t.Run("equal priority keeps first descriptor", func(t *testing.T) {
		found, err := scanner.Scan(ctx, []core.SourceDescriptor{
			{Root: root, Patterns: []string{"*.txt"}, Category: "first", Enabled: true},
			{Root: root, Patterns: []string{"*.txt"}, Category: "second", Enabled: true},
		})
		require.NoError(t, err)
		assert.Equal(t, "first", found[filepath.Join(root, "a.txt")].Category)
	})

	t.Run("disabled and missing roots are skipped", func(t *testing.T) {
		found, err := scanner.Scan(ctx, []core.SourceDescriptor{
			{Root: root, Category: "off", Enabled: false},
			{Root: filepath.Join(root, "missing"), Category: "missing", Enabled: true},
		})
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := scanner.Scan(cctx, []core.SourceDescriptor{{Root: root, Category: "x", Enabled: true}})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCovers(t *testing.T) {
	sources := []core.SourceDescriptor{
		{Root: "/docs", Patterns: []string{"*.txt"}, Category: "docs", Enabled: true},
		{Root: "/off", Category: "off", Enabled: false},
	}

	assert.True(t, covers(sources, "/docs/a.txt"))
	assert.True(t, covers(sources, "/docs/deep/a.txt"))
	assert.False(t, covers(sources, "/docs/a.pdf"))
	assert.False(t, covers(sources, "/docs/.git/a.txt"))
	assert.False(t, covers(sources, "/elsewhere/a.txt"))
	assert.False(t, covers(sources, "/off/a.txt"))
}
