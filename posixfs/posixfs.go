// Package posixfs expands glob patterns against a real filesystem root,
// standing in for the engine-wide PosixFS + glob-expansion collaborator the
// runner's output snapshotter depends on.
package posixfs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// SymlinkBehavior controls how expansion treats symlinks it encounters.
type SymlinkBehavior int

const (
	// SymlinkAware preserves matched symlinks as symlink path-stats instead
	// of following them — required so captured output directories round-trip
	// symlinks rather than inlining their targets.
	SymlinkAware SymlinkBehavior = iota
	// SymlinkFollow follows symlinks and reports the stat of their target.
	SymlinkFollow
)

// Conjunction controls how multiple globs combine.
type Conjunction int

const (
	// AllMatch includes every path matched by at least one glob (the
	// "union" reading — the name mirrors the original's
	// GlobExpansionConjunction::AllMatch, which means "all globs
	// contribute", not "a path must match every glob").
	AllMatch Conjunction = iota
)

// StrictMatching controls whether a glob matching nothing is an error.
type StrictMatching int

const (
	// Ignore allows a glob to match nothing without failing expansion —
	// the spec's documented default, preserved pending the open question
	// in the original about whether this should ever be upgraded to an
	// error.
	Ignore StrictMatching = iota
	// Strict fails expansion if any glob matches nothing.
	Strict
)

// PathKind distinguishes the kind of filesystem entry a PathStat names.
type PathKind int

const (
	KindFile PathKind = iota
	KindDir
	KindSymlink
)

// PathStat is one matched filesystem entry, relative to the FS root.
type PathStat struct {
	Path string
	Kind PathKind
}

// FS is a filesystem view rooted at a fixed directory, with no ignore
// patterns applied — the posture the output snapshotter needs, since it is
// looking for explicitly declared output paths rather than applying the
// repo's general ignore rules.
type FS struct {
	root string
}

// New returns an FS rooted at root. root must exist; New does not create it.
func New(root string) (*FS, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("posixfs: stat root %q: %w", root, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("posixfs: root %q is not a directory", root)
	}

	return &FS{root: root}, nil
}

// Root returns the filesystem root this FS was constructed with.
func (fs *FS) Root() string {
	return fs.root
}

// ExpandGlobs matches globs against the filesystem rooted at fs.Root(),
// returning the union of matches across every glob (AllMatch), honoring
// strict to decide whether a glob matching nothing is an error.
func (fs *FS) ExpandGlobs(globs []string, symlinks SymlinkBehavior, strict StrictMatching) ([]PathStat, error) {
	seen := map[string]PathStat{}

	for _, glob := range globs {
		matches, err := doublestar.Glob(os.DirFS(fs.root), glob)
		if err != nil {
			return nil, fmt.Errorf("posixfs: invalid glob %q: %w", glob, err)
		}

		if len(matches) == 0 && strict == Strict {
			return nil, fmt.Errorf("posixfs: glob %q matched no paths", glob)
		}

		for _, m := range matches {
			stat, err := fs.statRelative(m, symlinks)
			if err != nil {
				return nil, err
			}

			seen[m] = stat
		}
	}

	out := make([]PathStat, 0, len(seen))
	for _, stat := range seen {
		out = append(out, stat)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })

	return out, nil
}

func (fs *FS) statRelative(relPath string, symlinks SymlinkBehavior) (PathStat, error) {
	full := filepath.Join(fs.root, filepath.FromSlash(relPath))

	if symlinks == SymlinkAware {
		info, err := os.Lstat(full)
		if err != nil {
			return PathStat{}, fmt.Errorf("posixfs: lstat %q: %w", relPath, err)
		}

		if info.Mode()&os.ModeSymlink != 0 {
			return PathStat{Path: relPath, Kind: KindSymlink}, nil
		}

		if info.IsDir() {
			return PathStat{Path: relPath, Kind: KindDir}, nil
		}

		return PathStat{Path: relPath, Kind: KindFile}, nil
	}

	info, err := os.Stat(full)
	if err != nil {
		return PathStat{}, fmt.Errorf("posixfs: stat %q: %w", relPath, err)
	}

	if info.IsDir() {
		return PathStat{Path: relPath, Kind: KindDir}, nil
	}

	return PathStat{Path: relPath, Kind: KindFile}, nil
}

// OutputGlobs builds the glob set for declared output files/directories: each
// directory d contributes both "d" and "d/**", each file f contributes "f"
// verbatim — matching the spec's output-snapshotter glob construction.
func OutputGlobs(outputFiles, outputDirectories []string) []string {
	globs := make([]string, 0, len(outputFiles)+2*len(outputDirectories))

	for _, d := range outputDirectories {
		dir := d
		if dir == "" {
			dir = "."
		}

		globs = append(globs, dir, filepath.ToSlash(filepath.Join(dir, "**")))
	}

	for _, f := range outputFiles {
		globs = append(globs, filepath.ToSlash(f))
	}

	return globs
}
