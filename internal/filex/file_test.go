package filex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	info, err := Stat(path)
	require.NoError(t, err)
	assert.Equal(t, "data.bin", info.Name)
	assert.Equal(t, int64(5), info.Size)
	assert.Equal(t, path, info.Path)
}

func TestStat_Directory(t *testing.T) {
	_, err := Stat(t.TempDir())
	require.Error(t, err)
}

func TestStat_Missing(t *testing.T) {
	_, err := Stat(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestWalk(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "deep"), 0o770))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("bb"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "deep", "c.txt"), []byte("ccc"), 0o600))

	files, err := Walk(root)
	require.NoError(t, err)
	require.Len(t, files, 3)

	byRel := map[string]TreeFile{}
	for _, f := range files {
		byRel[f.RelPath] = f
	}
	assert.Contains(t, byRel, "a.txt")
	assert.Contains(t, byRel, "sub/b.txt")
	assert.Contains(t, byRel, "sub/deep/c.txt")
	assert.Equal(t, int64(2), byRel["sub/b.txt"].Size)
	assert.Equal(t, "b.txt", byRel["sub/b.txt"].Name)
}

func TestSplitExt(t *testing.T) {
	tests := []struct {
		name string
		stem string
		ext  string
	}{
		{"report.csv", "report", ".csv"},
		{"archive.tar.gz", "archive.tar", ".gz"},
		{"README", "README", ""},
		{".env", ".env", ""},
		{"x.txt", "x", ".txt"},
	}
	for _, tc := range tests {
		stem, ext := SplitExt(tc.name)
		assert.Equal(t, tc.stem, stem, tc.name)
		assert.Equal(t, tc.ext, ext, tc.name)
	}
}
