package immutableinputs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/localbuild/runner/cas"
	"github.com/stretchr/testify/require"
)

func TestLocalPathsMaterializesOncePerDigest(t *testing.T) {
	store, err := cas.NewStore(t.TempDir())
	require.NoError(t, err)

	fileDigest, err := store.StoreFileBytes([]byte("shared"), false)
	require.NoError(t, err)

	trie, err := cas.FromUniquePaths([]cas.TypedPath{
		{Path: "README", Kind: cas.EntryFile, FileDigest: fileDigest},
	})
	require.NoError(t, err)

	treeDigest, err := store.RecordDigestTrie(trie, true)
	require.NoError(t, err)

	in := New(store, t.TempDir())

	symlinks, err := in.LocalPaths([]Handle{{Digest: treeDigest, Dest: "vendor/lib"}})
	require.NoError(t, err)
	require.Len(t, symlinks, 1)
	require.Equal(t, "vendor/lib", symlinks[0].Dst)

	content, err := os.ReadFile(filepath.Join(symlinks[0].Src, "README"))
	require.NoError(t, err)
	require.Equal(t, "shared", string(content))

	symlinks2, err := in.LocalPaths([]Handle{{Digest: treeDigest, Dest: "vendor/lib2"}})
	require.NoError(t, err)
	require.Equal(t, symlinks[0].Src, symlinks2[0].Src, "same digest must resolve to the same materialized path")
}
