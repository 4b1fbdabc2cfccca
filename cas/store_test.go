package cas

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	return s
}

func TestStoreFileBytesRoundTrip(t *testing.T) {
	s := newTestStore(t)

	d, err := s.StoreFileBytes([]byte("hello"), false)
	require.NoError(t, err)

	got, err := s.LoadFileBytes(d)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestStoreFileBytesMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LoadFileBytes(Digest{Fingerprint: "deadbeef", SizeBytes: 0})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMaterializeDirectorySimpleTree(t *testing.T) {
	s := newTestStore(t)

	fileDigest, err := s.StoreFileBytes([]byte("hi\n"), false)
	require.NoError(t, err)

	trie, err := FromUniquePaths([]TypedPath{
		{Path: "out.txt", Kind: EntryFile, FileDigest: fileDigest, Mode: 0o644},
		{Path: "empty", Kind: EntryDir},
		{Path: "link", Kind: EntrySymlink, LinkTarget: "/tmp/target"},
	})
	require.NoError(t, err)

	digest, err := s.RecordDigestTrie(trie, true)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, s.MaterializeDirectory(dir, digest, nil, ReadOnly))

	content, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	require.Equal(t, "hi\n", string(content))

	info, err := os.Stat(filepath.Join(dir, "empty"))
	require.NoError(t, err)
	require.True(t, info.IsDir())

	target, err := os.Readlink(filepath.Join(dir, "link"))
	require.NoError(t, err)
	require.Equal(t, "/tmp/target", target)
}

func TestMaterializeDirectoryMutablePaths(t *testing.T) {
	s := newTestStore(t)

	fileDigest, err := s.StoreFileBytes([]byte("data"), false)
	require.NoError(t, err)

	trie, err := FromUniquePaths([]TypedPath{
		{Path: "out/file.txt", Kind: EntryFile, FileDigest: fileDigest, Mode: 0o444},
	})
	require.NoError(t, err)

	digest, err := s.RecordDigestTrie(trie, true)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, s.MaterializeDirectory(dir, digest, []string{"out"}, Writable))

	info, err := os.Stat(filepath.Join(dir, "out", "file.txt"))
	require.NoError(t, err)
	require.NotZero(t, info.Mode()&0o200, "mutable path should be user-writable")
}

func TestMergeDetectsCollision(t *testing.T) {
	s := newTestStore(t)

	d1, err := s.StoreFileBytes([]byte("a"), false)
	require.NoError(t, err)
	d2, err := s.StoreFileBytes([]byte("b"), false)
	require.NoError(t, err)

	t1, err := FromUniquePaths([]TypedPath{{Path: "x", Kind: EntryFile, FileDigest: d1}})
	require.NoError(t, err)
	t2, err := FromUniquePaths([]TypedPath{{Path: "x", Kind: EntryFile, FileDigest: d2}})
	require.NoError(t, err)

	g1, err := s.RecordDigestTrie(t1, true)
	require.NoError(t, err)
	g2, err := s.RecordDigestTrie(t2, true)
	require.NoError(t, err)

	_, err = s.Merge([]Digest{g1, g2})
	require.ErrorIs(t, err, ErrCollision)
}

func TestMergeEmptyYieldsEmptyDigest(t *testing.T) {
	s := newTestStore(t)

	d, err := s.Merge(nil)
	require.NoError(t, err)
	require.True(t, d.IsEmpty())
}

func TestFromUniquePathsRejectsDuplicates(t *testing.T) {
	d, err := digestOfHelper("x")
	require.NoError(t, err)

	_, err = FromUniquePaths([]TypedPath{
		{Path: "a", Kind: EntryFile, FileDigest: d},
		{Path: "a", Kind: EntryFile, FileDigest: d},
	})
	require.ErrorIs(t, err, ErrCollision)
}

func digestOfHelper(s string) (Digest, error) {
	return digestOf([]byte(s)), nil
}
