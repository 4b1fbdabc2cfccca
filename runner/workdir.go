package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/localbuild/runner/cas"
	"github.com/localbuild/runner/immutableinputs"
	"github.com/localbuild/runner/namedcache"
	"github.com/localbuild/runner/sandboxer"
)

const jdkDestName = ".jdk"

// WorkdirAssembler composes a process's input digest with the symlinks and
// synthesized empty directories a sandbox needs around it: one symlink per
// immutable-input handle, one per named cache, an optional ".jdk" symlink,
// and an empty directory for every non-empty parent of a declared output
// path.
type WorkdirAssembler struct {
	store     *cas.Store
	immutable *immutableinputs.Inputs
	caches    *namedcache.Caches
}

// NewWorkdirAssembler returns an assembler backed by the given collaborators.
func NewWorkdirAssembler(store *cas.Store, immutable *immutableinputs.Inputs, caches *namedcache.Caches) *WorkdirAssembler {
	return &WorkdirAssembler{store: store, immutable: immutable, caches: caches}
}

// Assemble returns the merged workdir digest for req. immutableInputsPrefix
// and namedCachesPrefix are non-empty only when the eventual materializer is
// an external sandboxer that sees a different filesystem root than this
// process: in that case, each manager's own workdir prefix is stripped from
// its symlink targets and the given prefix is substituted instead.
func (a *WorkdirAssembler) Assemble(req *Process, immutableInputsPrefix, namedCachesPrefix string) (Digest, error) {
	var typed []cas.TypedPath

	immutableHandles := make([]immutableinputs.Handle, 0, len(req.Input.ImmutableInputs))
	for _, h := range req.Input.ImmutableInputs {
		immutableHandles = append(immutableHandles, immutableinputs.Handle{Digest: h.Digest, Dest: h.Dest})
	}

	immutableLinks, err := a.immutable.LocalPaths(immutableHandles)
	if err != nil {
		return Digest{}, fmt.Errorf("runner: resolving immutable inputs: %w", err)
	}

	for _, link := range immutableLinks {
		src := link.Src
		if immutableInputsPrefix != "" {
			src = rejoinUnderPrefix(src, a.immutable.Workdir(), immutableInputsPrefix)
		}

		typed = append(typed, symlinkTypedPath(link.Dst, src))
	}

	cacheHandles := make([]namedcache.Handle, 0, len(req.AppendOnlyCaches))
	for _, h := range req.AppendOnlyCaches {
		cacheHandles = append(cacheHandles, namedcache.Handle{Name: h.Name, Dest: h.Dest})
	}

	cacheLinks, err := a.caches.Paths(cacheHandles)
	if err != nil {
		return Digest{}, fmt.Errorf("runner: resolving named caches: %w", err)
	}

	for _, link := range cacheLinks {
		src := link.Src
		if namedCachesPrefix != "" {
			src = rejoinUnderPrefix(src, a.caches.BasePath(), namedCachesPrefix)
		}

		typed = append(typed, symlinkTypedPath(link.Dst, src))
	}

	if req.JDKHome != "" {
		typed = append(typed, symlinkTypedPath(jdkDestName, req.JDKHome))
	}

	for _, dir := range outputParentDirs(req.OutputFiles, req.OutputDirectories) {
		typed = append(typed, cas.TypedPath{Path: dir, Kind: cas.EntryDir})
	}

	// A request without an input tree leaves RootDigest zero-valued; that
	// stands for the empty tree.
	root := req.Input.RootDigest
	if root == (Digest{}) {
		root = cas.Empty
	}

	if len(typed) == 0 {
		return root, nil
	}

	additive, err := cas.FromUniquePaths(typed)
	if err != nil {
		return Digest{}, fmt.Errorf("runner: building synthesized workdir entries: %w", err)
	}

	additiveDigest, err := a.store.RecordDigestTrie(additive, false)
	if err != nil {
		return Digest{}, fmt.Errorf("runner: recording synthesized workdir trie: %w", err)
	}

	merged, err := a.store.Merge([]Digest{root, additiveDigest})
	if err != nil {
		return Digest{}, fmt.Errorf("runner: merging input digest with synthesized entries: %w", err)
	}

	return merged, nil
}

func symlinkTypedPath(dest, target string) cas.TypedPath {
	return cas.TypedPath{Path: dest, Kind: cas.EntrySymlink, LinkTarget: target}
}

// rejoinUnderPrefix strips managerWorkdir from src (the manager's own
// absolute materialized path) and rejoins the remainder under prefix, the
// path the external sandboxer will see the same tree mounted at.
func rejoinUnderPrefix(src, managerWorkdir, prefix string) string {
	rel, err := filepath.Rel(managerWorkdir, src)
	if err != nil || strings.HasPrefix(rel, "..") {
		return src
	}

	return filepath.Join(prefix, rel)
}

// outputParentDirs collects the set of non-empty parent directories that
// must exist before the child runs: the parent of every declared output
// file and the parent of every declared output directory. It never
// synthesizes the output directory itself — only its parent. An output path
// with an empty parent component (e.g. a bare top-level file) contributes
// nothing for that component.
func outputParentDirs(outputFiles, outputDirectories []string) []string {
	seen := map[string]struct{}{}
	var dirs []string

	addDir := func(dir string) {
		dir = filepath.ToSlash(filepath.Clean(dir))
		if dir == "." || dir == "/" || dir == "" {
			return
		}

		if _, ok := seen[dir]; ok {
			return
		}

		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}

	addParentOf := func(p string) {
		dir := filepath.ToSlash(filepath.Dir(filepath.Clean(p)))
		addDir(dir)
	}

	for _, f := range outputFiles {
		addParentOf(f)
	}

	for _, d := range outputDirectories {
		addParentOf(d)
	}

	return dirs
}

// MaterializeWorkdir realizes digest into dir, either directly via the store
// or, when sb is non-nil, by persisting the digest and delegating to the
// external sandboxer (which may run under a different uid/mount namespace and
// cannot share in-memory trie state).
//
// mutablePaths is the union of declared output files and directories; they
// must remain writable by the child even when materialized from read-only
// input.
func MaterializeWorkdir(store *cas.Store, sb sandboxer.Sandboxer, dir, base string, digest Digest, mutablePaths []string) error {
	if sb == nil {
		if err := store.MaterializeDirectory(dir, digest, mutablePaths, cas.Writable); err != nil {
			return fmt.Errorf("runner: materializing workdir: %w", err)
		}

		return nil
	}

	trie, err := store.LoadTrie(digest)
	if err != nil {
		return fmt.Errorf("runner: loading workdir trie to persist for external sandboxer: %w", err)
	}

	persisted, err := store.RecordDigestTrie(trie, true)
	if err != nil {
		return fmt.Errorf("runner: persisting workdir digest for external sandboxer: %w", err)
	}

	if err := sb.MaterializeDirectory(dir, base, persisted, mutablePaths); err != nil {
		return fmt.Errorf("runner: external sandboxer materialize failed: %w", &sandboxerError{err: err})
	}

	return nil
}

// ExclusiveSpawn reports whether argv[0], resolved relative to workdir and
// workingDirectory, names an existing file inside the materialized sandbox.
// When true, the spawn must acquire the spawn lock exclusively to avoid
// ETXTBSY against a concurrent fork.
func ExclusiveSpawn(workdir, workingDirectory string, argv []string) bool {
	if len(argv) == 0 || filepath.IsAbs(argv[0]) {
		return false
	}

	candidate := filepath.Join(workdir, workingDirectory, argv[0])

	info, err := os.Stat(candidate)
	if err != nil {
		return false
	}

	return !info.IsDir()
}
