package posixfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandGlobsOutputFileAndDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "out", "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "out", "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "out", "nested", "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "top.txt"), []byte("top"), 0o644))

	fs, err := New(root)
	require.NoError(t, err)

	globs := OutputGlobs([]string{"top.txt"}, []string{"out"})
	stats, err := fs.ExpandGlobs(globs, SymlinkAware, Ignore)
	require.NoError(t, err)

	var paths []string
	for _, s := range stats {
		paths = append(paths, s.Path)
	}

	require.Contains(t, paths, "top.txt")
	require.Contains(t, paths, "out")
	require.Contains(t, paths, filepath.ToSlash(filepath.Join("out", "a.txt")))
	require.Contains(t, paths, filepath.ToSlash(filepath.Join("out", "nested", "b.txt")))
}

func TestExpandGlobsIgnoresEmptyMatchByDefault(t *testing.T) {
	root := t.TempDir()
	fs, err := New(root)
	require.NoError(t, err)

	stats, err := fs.ExpandGlobs([]string{"missing.txt"}, SymlinkAware, Ignore)
	require.NoError(t, err)
	require.Empty(t, stats)
}

func TestExpandGlobsStrictErrorsOnEmptyMatch(t *testing.T) {
	root := t.TempDir()
	fs, err := New(root)
	require.NoError(t, err)

	_, err = fs.ExpandGlobs([]string{"missing.txt"}, SymlinkAware, Strict)
	require.Error(t, err)
}

func TestExpandGlobsPreservesSymlinks(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "real.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")))

	fs, err := New(root)
	require.NoError(t, err)

	stats, err := fs.ExpandGlobs([]string{"link.txt"}, SymlinkAware, Ignore)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, KindSymlink, stats[0].Kind)
}
