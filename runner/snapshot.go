package runner

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/localbuild/runner/cas"
	"github.com/localbuild/runner/posixfs"
)

// SnapshotOutputs captures req's declared output files and directories,
// rooted at captureRoot, into a content-addressed snapshot. If both
// OutputFiles and OutputDirectories are empty, it returns the empty digest
// without touching the filesystem.
func SnapshotOutputs(store *cas.Store, captureRoot string, req *Process) (Digest, error) {
	if len(req.OutputFiles) == 0 && len(req.OutputDirectories) == 0 {
		return cas.Empty, nil
	}

	fs, err := posixfs.New(captureRoot)
	if err != nil {
		return Digest{}, fmt.Errorf("runner: opening output capture root: %w", err)
	}

	globs := posixfs.OutputGlobs(req.OutputFiles, req.OutputDirectories)

	stats, err := fs.ExpandGlobs(globs, posixfs.SymlinkAware, posixfs.Ignore)
	if err != nil {
		return Digest{}, fmt.Errorf("runner: expanding output globs: %w", err)
	}

	typed := make([]cas.TypedPath, 0, len(stats))

	for _, stat := range stats {
		full := filepath.Join(captureRoot, filepath.FromSlash(stat.Path))

		switch stat.Kind {
		case posixfs.KindDir:
			typed = append(typed, cas.TypedPath{Path: stat.Path, Kind: cas.EntryDir})
		case posixfs.KindSymlink:
			target, err := os.Readlink(full)
			if err != nil {
				return Digest{}, fmt.Errorf("runner: reading output symlink %q: %w", stat.Path, err)
			}

			typed = append(typed, cas.TypedPath{Path: stat.Path, Kind: cas.EntrySymlink, LinkTarget: target})
		default:
			info, err := os.Lstat(full)
			if err != nil {
				return Digest{}, fmt.Errorf("runner: statting output file %q: %w", stat.Path, err)
			}

			data, err := os.ReadFile(full)
			if err != nil {
				return Digest{}, fmt.Errorf("runner: reading output file %q: %w", stat.Path, err)
			}

			isExecutable := info.Mode()&0o100 != 0

			fileDigest, err := store.StoreFileBytes(data, isExecutable)
			if err != nil {
				return Digest{}, fmt.Errorf("runner: storing output file %q: %w", stat.Path, err)
			}

			typed = append(typed, cas.TypedPath{Path: stat.Path, Kind: cas.EntryFile, FileDigest: fileDigest, Mode: info.Mode()})
		}
	}

	if len(typed) == 0 {
		return cas.Empty, nil
	}

	trie, err := cas.FromUniquePaths(typed)
	if err != nil {
		return Digest{}, fmt.Errorf("runner: building output snapshot tree: %w", err)
	}

	digest, err := store.RecordDigestTrie(trie, false)
	if err != nil {
		return Digest{}, fmt.Errorf("runner: recording output snapshot: %w", err)
	}

	return digest, nil
}
