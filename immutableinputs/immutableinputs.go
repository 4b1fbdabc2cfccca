// Package immutableinputs manages shared, read-only directory trees that many
// sandboxes reference concurrently via symlink, materialized once per digest
// rather than copied into every sandbox.
package immutableinputs

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/localbuild/runner/cas"
	"github.com/localbuild/runner/namedcache"
)

// Symlink is the namedcache-shaped symlink descriptor; immutable inputs and
// named caches are structurally identical from the workdir assembler's point
// of view.
type Symlink = namedcache.Symlink

// Handle identifies one immutable input: a content digest to materialize
// once, plus the sandbox-relative destination to link it at.
type Handle struct {
	Digest cas.Digest
	Dest   string
}

// Inputs materializes immutable input trees once (keyed by digest) under a
// workdir, handing out symlinks into that workdir to callers.
//
// Inputs is safe for concurrent use.
type Inputs struct {
	store   *cas.Store
	workdir string

	mu        sync.Mutex
	byDigest  map[string]string // digest fingerprint -> absolute materialized path
}

// New returns an Inputs manager backed by store, materializing trees under
// workdir (created lazily per-digest on first use).
func New(store *cas.Store, workdir string) *Inputs {
	return &Inputs{store: store, workdir: workdir, byDigest: map[string]string{}}
}

// Workdir returns the root directory under which immutable input trees are
// materialized.
func (i *Inputs) Workdir() string {
	return i.workdir
}

// LocalPaths resolves the given handles to symlinks, materializing any input
// tree not yet present on disk.
func (i *Inputs) LocalPaths(handles []Handle) ([]Symlink, error) {
	sorted := make([]Handle, len(handles))
	copy(sorted, handles)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].Dest < sorted[b].Dest })

	symlinks := make([]Symlink, 0, len(sorted))

	for _, h := range sorted {
		src, err := i.materialize(h.Digest)
		if err != nil {
			return nil, err
		}

		symlinks = append(symlinks, Symlink{Src: src, Dst: h.Dest})
	}

	return symlinks, nil
}

func (i *Inputs) materialize(digest cas.Digest) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if existing, ok := i.byDigest[digest.Fingerprint]; ok {
		return existing, nil
	}

	dest := filepath.Join(i.workdir, digest.Fingerprint)

	if err := i.store.MaterializeDirectory(dest, digest, nil, cas.ReadOnly); err != nil {
		return "", fmt.Errorf("immutableinputs: materializing %s: %w", digest, err)
	}

	i.byDigest[digest.Fingerprint] = dest

	return dest, nil
}
