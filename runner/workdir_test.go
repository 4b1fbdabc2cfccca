package runner

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/localbuild/runner/cas"
	"github.com/localbuild/runner/immutableinputs"
	"github.com/localbuild/runner/namedcache"
)

func TestOutputParentDirsSkipsEmptyParentComponent(t *testing.T) {
	dirs := outputParentDirs([]string{"top.txt"}, nil)
	require.Empty(t, dirs)
}

func TestOutputParentDirsCollectsFileAndDirectoryParents(t *testing.T) {
	dirs := outputParentDirs([]string{"a/b/out.txt"}, []string{"c/d"})
	sort.Strings(dirs)

	want := []string{"a/b", "c"}
	if diff := cmp.Diff(want, dirs); diff != "" {
		t.Errorf("outputParentDirs() mismatch (-want +got):\n%s", diff)
	}
}

func TestExclusiveSpawnTrueForSandboxResidentExecutable(t *testing.T) {
	workdir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workdir, "prog"), []byte("#!/bin/sh\n"), 0o755))

	require.True(t, ExclusiveSpawn(workdir, "", []string{"prog"}))
}

func TestExclusiveSpawnFalseForAbsolutePath(t *testing.T) {
	require.False(t, ExclusiveSpawn(t.TempDir(), "", []string{"/bin/true"}))
}

func TestExclusiveSpawnFalseWhenMissing(t *testing.T) {
	require.False(t, ExclusiveSpawn(t.TempDir(), "", []string{"does-not-exist"}))
}

func TestWorkdirAssemblerMergesSymlinksAndSynthesizedDirs(t *testing.T) {
	dir := t.TempDir()
	store, err := cas.NewStore(filepath.Join(dir, "store"))
	require.NoError(t, err)

	immutable := immutableinputs.New(store, filepath.Join(dir, "immutable"))
	caches := namedcache.New(filepath.Join(dir, "caches"))

	assembler := NewWorkdirAssembler(store, immutable, caches)

	req := &Process{
		Input:             InputDigests{RootDigest: cas.Empty},
		AppendOnlyCaches:  []NamedCacheHandle{{Name: "pip", Dest: "cache/pip"}},
		OutputFiles:       []string{"out/result.txt"},
		OutputDirectories: nil,
	}

	digest, err := assembler.Assemble(req, "", "")
	require.NoError(t, err)
	require.False(t, digest.IsEmpty())

	trie, err := store.LoadTrie(digest)
	require.NoError(t, err)

	var sawCacheLink, sawOutDir bool

	err = trie.Walk(func(relPath string, kind cas.EntryKind, _ cas.Digest, _ string, _ os.FileMode) error {
		switch {
		case relPath == "cache/pip" && kind == cas.EntrySymlink:
			sawCacheLink = true
		case relPath == "out" && kind == cas.EntryDir:
			sawOutDir = true
		}

		return nil
	})
	require.NoError(t, err)
	require.True(t, sawCacheLink)
	require.True(t, sawOutDir)
}
