//go:build linux

package sandboxer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/localbuild/runner/cas"
)

// BwrapSandboxer materializes directories by re-executing this binary's own
// "__materialize" hidden subcommand (see cmd/localrun) inside a bubblewrap
// namespace, instead of materializing directly in the caller's process.
//
// This is the concrete reading of §4.4's "external sandboxer": the helper
// cannot see the caller's in-memory Trie (it runs as a freshly exec'd,
// possibly differently-uid'd process), so the caller must have already
// persisted the digest into the shared store (via Store.RecordDigestTrie)
// before invoking MaterializeDirectory.
//
// The argv-construction approach (die-with-parent, unshare-all, explicit
// ro-bind of the host root, explicit read-write binds of the store directory
// and of the destination that must be written back out to the host) follows the same bwrap planner idiom as
// the bubblewrap-based sandbox this project's argv conventions are drawn
// from — just narrowed to the one thing this helper needs to do.
type BwrapSandboxer struct {
	// StoreDir is the on-disk root of the cas.Store the helper subprocess
	// should open to resolve the persisted digest.
	StoreDir string
}

// MaterializeDirectory runs `<self> __materialize` under bwrap, passing the
// store root, the persisted digest, the destination, and the mutable-path
// list as flags.
func (b *BwrapSandboxer) MaterializeDirectory(workdir, base string, persisted cas.Digest, mutablePaths []string) error {
	bwrapPath, err := exec.LookPath("bwrap")
	if err != nil {
		return fmt.Errorf("sandboxer: bwrap not found in PATH: %w", err)
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("sandboxer: resolving own executable: %w", err)
	}

	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return fmt.Errorf("sandboxer: creating materialize target %q: %w", workdir, err)
	}

	args := []string{
		"--die-with-parent",
		"--unshare-all",
		"--share-net",
		"--ro-bind", "/", "/",
		"--bind", b.StoreDir, b.StoreDir,
		"--bind", workdir, workdir,
		"--dev", "/dev",
		"--proc", "/proc",
		"--chdir", base,
		"--",
		self, "__materialize",
		"--store", b.StoreDir,
		"--digest", persisted.Fingerprint,
		"--size", strconv.FormatInt(persisted.SizeBytes, 10),
		"--dest", workdir,
	}

	for _, m := range mutablePaths {
		args = append(args, "--mutable", m)
	}

	cmd := exec.CommandContext(context.Background(), bwrapPath, args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("sandboxer: bwrap materialize helper failed: %w", err)
	}

	return nil
}
