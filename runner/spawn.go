//go:build unix

package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
)

// spawnedChild is a started child process together with its piped stdout and
// stderr, not yet drained.
type spawnedChild struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
}

// spawnChild starts argv as a child of this process: cwd is workdir joined
// with workingDirectory, the environment is fully cleared except for an
// explicit empty PATH (disabling automatic PATH search, so the caller must
// supply an absolute or sandbox-relative program) overlaid with env, stdin is
// /dev/null, and stdout/stderr are pipes.
//
// The child is placed in its own process group so a later timeout kill can
// reach any further descendants it spawned, not just the direct child.
//
// Callers must route this call through a SpawnLock per §4.5 of the design.
func spawnChild(ctx context.Context, workdir, workingDirectory string, argv []string, env map[string]string) (*spawnedChild, error) {
	if len(argv) == 0 {
		return nil, errEmptyArgv
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = filepath.Join(workdir, workingDirectory)
	cmd.Env = buildChildEnv(env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		return nil, fmt.Errorf("runner: opening %s for child stdin: %w", os.DevNull, err)
	}
	defer devNull.Close()

	cmd.Stdin = devNull

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("runner: creating stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("runner: creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("runner: starting child: %w", err)
	}

	return &spawnedChild{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

// buildChildEnv clears the environment entirely except for an explicit empty
// PATH, then overlays env. Clearing and re-setting PATH (rather than simply
// omitting it) is deliberate: it suppresses the host shell's PATH search so
// bare program names fail fast instead of silently resolving against the
// host.
func buildChildEnv(env map[string]string) []string {
	out := make([]string, 1, len(env)+1)
	out[0] = "PATH="

	for k, v := range env {
		if k == "PATH" {
			out[0] = "PATH=" + v
			continue
		}

		out = append(out, k+"="+v)
	}

	return out
}

// killChildGroup sends sig to the child's entire process group, falling back
// to killing just the direct child if the group signal fails (e.g. the
// process already reaped).
func killChildGroup(child *spawnedChild, sig syscall.Signal) {
	if child.cmd.Process == nil {
		return
	}

	pgid := child.cmd.Process.Pid
	if err := unix.Kill(-pgid, sig); err != nil {
		_ = child.cmd.Process.Signal(sig)
	}
}
