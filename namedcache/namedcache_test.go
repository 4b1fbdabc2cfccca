package namedcache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathsCreatesDirectoriesAndSortsOutput(t *testing.T) {
	base := t.TempDir()
	c := New(base)

	symlinks, err := c.Paths([]Handle{
		{Name: "zzz_cache", Dest: "zzz"},
		{Name: "aaa_cache", Dest: "aaa"},
	})
	require.NoError(t, err)
	require.Len(t, symlinks, 2)
	require.Equal(t, "aaa_cache", filepath.Base(symlinks[0].Src))
	require.Equal(t, "zzz_cache", filepath.Base(symlinks[1].Src))

	for _, s := range symlinks {
		info, err := os.Stat(s.Src)
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}
}

func TestBasePath(t *testing.T) {
	base := t.TempDir()
	c := New(base)
	require.Equal(t, base, c.BasePath())
}
