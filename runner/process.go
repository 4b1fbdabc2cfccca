package runner

import "time"

// KeepSandboxes controls whether a run's sandbox directory survives after the
// run completes.
type KeepSandboxes int

const (
	// OnFailure preserves the sandbox only when the run failed to execute
	// cleanly or exited non-zero.
	OnFailure KeepSandboxes = iota
	// Always preserves every sandbox, regardless of outcome.
	Always
	// Never deletes the sandbox unconditionally (subject to background,
	// non-blocking deletion).
	Never
)

// InputDigests bundles the process's materialized root digest together with
// the named immutable-input handles that must be symlinked into the sandbox.
type InputDigests struct {
	RootDigest      Digest
	ImmutableInputs []ImmutableInputHandle
}

// ImmutableInputHandle names one immutable-input tree and the relative
// sandbox path it should appear under.
type ImmutableInputHandle struct {
	Digest Digest
	Dest   string
}

// NamedCacheHandle names one append-only cache and the relative sandbox path
// it should appear under.
type NamedCacheHandle struct {
	Name string
	Dest string
}

// ExecutionEnvironment carries metadata that rides along with a process
// request but does not affect how it executes, only how the result is
// reported and whether the sandbox is preserved.
type ExecutionEnvironment struct {
	Name              string
	Platform          string
	LocalKeepSandboxes KeepSandboxes
}

// Process is an immutable request to run one child process inside a fresh,
// hermetic sandbox.
type Process struct {
	Argv    []string
	Env     map[string]string

	// WorkingDirectory is a relative path, interpreted inside the sandbox.
	// Empty means the sandbox root itself.
	WorkingDirectory string

	Input              InputDigests
	AppendOnlyCaches   []NamedCacheHandle
	JDKHome            string

	OutputFiles       []string
	OutputDirectories []string

	// Timeout is the wall-clock budget for the child. nil means no timeout at
	// all. A non-nil zero duration is not "no timeout" — it kills the child
	// immediately, as soon as the timer fires, which for a zero duration is
	// effectively right away.
	Timeout *time.Duration

	ExecutionEnvironment ExecutionEnvironment

	Description string
	Level       string
}

// ChildOutputTag discriminates the three tagged sub-streams a spawned child
// produces. The collector funnels stdout chunks, stderr chunks, and exactly
// one terminal exit chunk through a single channel of ChildOutput values so
// the exit code is only ever observed once all output bytes have been seen.
type ChildOutputTag int

const (
	TagStdout ChildOutputTag = iota
	TagStderr
	TagExit
)

// ChildOutput is one chunk emitted by a running child: a slice of captured
// bytes (TagStdout/TagStderr) or a terminal exit code (TagExit).
type ChildOutput struct {
	Tag      ChildOutputTag
	Bytes    []byte
	ExitCode int
}

// FallibleProcessResult is the outward-facing result of one run: it always
// carries an exit code, even when that code denotes a timeout kill or a
// signal death (encoded as the negative signal number).
type FallibleProcessResult struct {
	ExitCode int

	StdoutDigest          Digest
	StderrDigest          Digest
	OutputDirectoryDigest Digest

	Elapsed              time.Duration
	ResultSource         string
	ExecutionEnvironment ExecutionEnvironment
	RunID                string
}
