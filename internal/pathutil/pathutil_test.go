package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithin(t *testing.T) {
	assert.True(t, Within("/p/app", "/p/app"))
	assert.True(t, Within("/p/app", "/p/app/src/a.ts"))
	assert.False(t, Within("/p/app", "/p/other"))
	assert.False(t, Within("/p/app", "/p/appendix"))
}

func TestHashCommandSensitivity(t *testing.T) {
	a := HashCommand("eslint ${HAN_FILES}")
	b := HashCommand("eslint  ${HAN_FILES}")
	assert.NotEqual(t, a, b)
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "a.ts")
	require.NoError(t, os.WriteFile(f, []byte("content"), 0o644))

	h1, err := HashFile(f)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f, []byte("content"), 0o644))
	h2, err := HashFile(f)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	require.NoError(t, os.WriteFile(f, []byte("changed"), 0o644))
	h3, err := HashFile(f)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestExpandGlobs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "a.ts"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "nested", "b.ts"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte(""), 0o644))

	files, err := ExpandGlobs(dir, []string{"**/*.ts"})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Contains(t, files, filepath.Join(dir, "src", "a.ts"))
	assert.Contains(t, files, filepath.Join(dir, "src", "nested", "b.ts"))
}

func TestRelOrSelf(t *testing.T) {
	assert.Equal(t, ".", RelOrSelf("/p/app", "/p/app"))
	assert.Equal(t, "src/a.ts", RelOrSelf("/p/app", "/p/app/src/a.ts"))
}
