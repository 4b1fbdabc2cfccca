// Package namedcache manages persistent, process-managed cache directories
// that are mounted into sandboxes via symlink rather than re-populated on
// every run (e.g. a package manager's download cache).
package namedcache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Symlink describes one symlink to synthesize in a sandbox workdir: Dst is
// the (sandbox-relative) path of the link itself, Src is its absolute
// target.
type Symlink struct {
	Src string
	Dst string
}

// Caches resolves named-cache handles to absolute, host-persistent
// directories, and hands out symlink descriptors pointing at them.
//
// Caches is safe for concurrent use; Paths only creates directories, it never
// mutates shared state beyond the filesystem.
type Caches struct {
	base string
}

// New returns a Caches manager rooted at base. The directory is created
// lazily, per handle, the first time it is requested.
func New(base string) *Caches {
	return &Caches{base: base}
}

// DefaultBase returns the conventional named-caches root:
// $XDG_CACHE_HOME/localrun/named-caches, falling back to os.UserCacheDir.
func DefaultBase() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("namedcache: resolving default cache base: %w", err)
	}

	return filepath.Join(dir, "localrun", "named-caches"), nil
}

// BasePath returns the root directory under which all named caches live.
func (c *Caches) BasePath() string {
	return c.base
}

// Handle names a single append-only cache and the sandbox-relative path it
// should be mounted at.
type Handle struct {
	Name string
	Dest string
}

// Paths resolves the given cache handles to symlink descriptors, creating
// each cache directory on first use.
func (c *Caches) Paths(handles []Handle) ([]Symlink, error) {
	sorted := make([]Handle, len(handles))
	copy(sorted, handles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	symlinks := make([]Symlink, 0, len(sorted))

	for _, h := range sorted {
		src := filepath.Join(c.base, h.Name)
		if err := os.MkdirAll(src, 0o755); err != nil {
			return nil, fmt.Errorf("namedcache: creating cache directory for %q: %w", h.Name, err)
		}

		symlinks = append(symlinks, Symlink{Src: src, Dst: h.Dest})
	}

	return symlinks, nil
}
