package markdown

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDirectory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	writeFile(t, dir, "b-second.md", "# Second\n\nbody")
	writeFile(t, dir, "a-first.md", "# First\n\nbody")
	writeFile(t, dir, "nested/c-third.md", "# Third\n\nbody")
	writeFile(t, dir, "ignored.txt", "not markdown")
	writeFile(t, dir, ".hidden/skipped.md", "# Hidden")

	corpus := NewCorpus(dir, zap.NewNop())
	docs, err := corpus.Load()
	require.NoError(t, err)

	require.Len(t, docs, 3)
	assert.Equal(t, "a-first.md", docs[0].ID)
	assert.Equal(t, "b-second.md", docs[1].ID)
	assert.Equal(t, "nested/c-third.md", docs[2].ID, "ids are slash-separated relative paths")
}

func TestLoadSingleFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "note.md", "# A Note\n\nSome prose here.")

	corpus := NewCorpus(path, zap.NewNop())
	docs, err := corpus.Load()
	require.NoError(t, err)

	require.Len(t, docs, 1)
	assert.Equal(t, "note.md", docs[0].ID)
	assert.Equal(t, path, docs[0].Path)
	assert.Equal(t, "A Note", docs[0].Title)
}

func TestLoadMissingPath(t *testing.T) {
	t.Parallel()
	corpus := NewCorpus(filepath.Join(t.TempDir(), "nope"), zap.NewNop())
	_, err := corpus.Load()
	assert.Error(t, err)
}

func TestFingerprintIsContentHash(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	content := "# Stable\n\ncontent"
	path := writeFile(t, dir, "stable.md", content)

	corpus := NewCorpus(path, zap.NewNop())
	docs, err := corpus.Load()
	require.NoError(t, err)

	sum := sha256.Sum256([]byte(content))
	assert.Equal(t, hex.EncodeToString(sum[:]), docs[0].Fingerprint)

	// Reloading unchanged content reproduces the fingerprint.
	again, err := corpus.Load()
	require.NoError(t, err)
	assert.Equal(t, docs[0].Fingerprint, again[0].Fingerprint)

	// Any byte change moves it.
	require.NoError(t, os.WriteFile(path, []byte(content+"!"), 0o644))
	changed, err := corpus.Load()
	require.NoError(t, err)
	assert.NotEqual(t, docs[0].Fingerprint, changed[0].Fingerprint)
}

func TestTitleResolution(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	t.Run("frontmatter wins", func(t *testing.T) {
		t.Parallel()
		path := writeFile(t, dir, "fm.md", "---\ntitle: From Frontmatter\n---\n\n# Heading Title\n\nbody")
		docs, err := NewCorpus(path, zap.NewNop()).Load()
		require.NoError(t, err)
		assert.Equal(t, "From Frontmatter", docs[0].Title)
	})

	t.Run("first heading is the fallback", func(t *testing.T) {
		t.Parallel()
		path := writeFile(t, dir, "heading.md", "intro line\n\n## The Heading\n\nbody")
		docs, err := NewCorpus(path, zap.NewNop()).Load()
		require.NoError(t, err)
		assert.Equal(t, "The Heading", docs[0].Title)
	})

	t.Run("filename as last resort", func(t *testing.T) {
		t.Parallel()
		path := writeFile(t, dir, "plain-notes.md", "no headings at all")
		docs, err := NewCorpus(path, zap.NewNop()).Load()
		require.NoError(t, err)
		assert.Equal(t, "plain-notes", docs[0].Title)
	})
}

func TestPlainTextStripsMarkup(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "rich.md",
		"# Title\n\nSome **bold** and *italic* text with a [link](https://example.com/page).\n\n- item one\n- item two\n")

	docs, err := NewCorpus(path, zap.NewNop()).Load()
	require.NoError(t, err)
	text := docs[0].Text

	assert.Contains(t, text, "Some bold and italic text with a link")
	assert.Contains(t, text, "item one")
	assert.NotContains(t, text, "**")
	assert.NotContains(t, text, "](")
	assert.NotContains(t, text, "#")
}

func TestFrontmatterStrippedFromBody(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "meta.md", "---\ntitle: Meta\ntags: [x, y]\n---\n\nOnly this survives.")

	docs, err := NewCorpus(path, zap.NewNop()).Load()
	require.NoError(t, err)
	assert.Equal(t, "Only this survives.", docs[0].Text)
	assert.NotContains(t, docs[0].Text, "tags")
}
