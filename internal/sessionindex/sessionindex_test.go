package sessionindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStream(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "activity.jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGetFiltersBySessionAndTool(t *testing.T) {
	path := writeStream(t,
		`{"session_id":"S1","tool":"Write","file_path":"/p/app/src/a.ts"}`,
		`{"session_id":"S1","tool":"Read","file_path":"/p/app/src/b.ts"}`,
		`{"session_id":"S2","tool":"Edit","file_path":"/p/app/src/c.ts"}`,
		`{"session_id":"S1","tool":"Edit","file_path":"/p/app/src/a.ts"}`,
	)
	idx := New(path)

	snap, err := idx.Get("S1")
	require.NoError(t, err)
	assert.Equal(t, []string{"/p/app/src/a.ts"}, snap.AllModified)
}

func TestGetMissingStreamReturnsEmpty(t *testing.T) {
	idx := New(filepath.Join(t.TempDir(), "missing.jsonl"))
	snap, err := idx.Get("S1")
	require.NoError(t, err)
	assert.Empty(t, snap.AllModified)
}

func TestGetCachesPerSession(t *testing.T) {
	path := writeStream(t, `{"session_id":"S1","tool":"Write","file_path":"/p/app/a.ts"}`)
	idx := New(path)

	first, err := idx.Get("S1")
	require.NoError(t, err)
	second, err := idx.Get("S1")
	require.NoError(t, err)
	assert.Same(t, first, second)
}
