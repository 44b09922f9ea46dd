package errorsx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnippetFormatIncludesCaret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "P_A.hsc")
	require.NoError(t, os.WriteFile(path, []byte("type A struct {\n\tf func() int\n}\n"), 0o644))
	ClearSourceCache()

	snippet := NewSnippet(path, 2, 2, "unexpected token").
		WithAnnotation("expected identifier").
		WithSpan(4)

	out := snippet.Format()
	assert.Contains(t, out, "unexpected token")
	assert.Contains(t, out, "f func() int")
	assert.Contains(t, out, "^^^^ expected identifier")
}

func TestSnippetFormatWithoutPosition(t *testing.T) {
	snippet := NewSnippet("", 0, 0, "malformed class bytes")
	out := snippet.Format()
	assert.Contains(t, out, "malformed class bytes")
	assert.NotContains(t, out, "|")
}

func TestExtractSourceLinesCachesPerFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "P_B.hsc")
	require.NoError(t, os.WriteFile(path, []byte("line1\nline2\nline3\n"), 0o644))
	ClearSourceCache()

	lines1, _ := extractSourceLines(path, 2, 1)
	require.NoError(t, os.WriteFile(path, []byte("changed\nlines\nhere\n"), 0o644))
	lines2, _ := extractSourceLines(path, 2, 1)

	assert.Equal(t, lines1, lines2, "cached read should not observe the on-disk change")
}
