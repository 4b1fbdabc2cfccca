package runner

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/localbuild/runner/cas"
	"github.com/localbuild/runner/immutableinputs"
	"github.com/localbuild/runner/internal/obslog"
	"github.com/localbuild/runner/namedcache"
	"github.com/localbuild/runner/sandboxer"
)

var localExecutionRequests atomic.Int64

// processSpawnLock is the one SpawnLock every Runner in the process shares.
var processSpawnLock = NewSpawnLock()

// LocalExecutionRequests returns the number of processes that have reached
// the spawn stage of Run, for callers that want to expose it as a metric.
func LocalExecutionRequests() int64 {
	return localExecutionRequests.Load()
}

// Runner composes the sandbox lifecycle, workdir materialization, spawn
// coordination, output collection, and output snapshotting into a single
// run(Process) -> FallibleProcessResult operation, matching §4.9.
type Runner struct {
	store      *cas.Store
	assembler  *WorkdirAssembler
	spawnLock  *SpawnLock
	sandboxer  sandboxer.Sandboxer
	sandboxDir string

	// applyWorkingDirectoryToOutputs mirrors §4.8 step 1's default: true means
	// the output capture root is workdir joined with working_directory.
	applyWorkingDirectoryToOutputs bool
}

// New returns a Runner that materializes sandboxes under sandboxBase, using
// store for content addressing and immutable/caches for the symlink
// overlays. sb may be nil, in which case the workdir is always materialized
// directly by the store in this process.
func New(store *cas.Store, immutable *immutableinputs.Inputs, caches *namedcache.Caches, sb sandboxer.Sandboxer, sandboxBase string) *Runner {
	return &Runner{
		store:                          store,
		assembler:                      NewWorkdirAssembler(store, immutable, caches),
		spawnLock:                      processSpawnLock,
		sandboxer:                      sb,
		sandboxDir:                     sandboxBase,
		applyWorkingDirectoryToOutputs: true,
	}
}

// Run executes req inside a fresh sandbox and returns its fallible result.
// Exit code ≠ 0 is not an error: only Fatal/Retryable infrastructure failures
// are returned as a *ProcessError. A request timeout degrades to a structured
// result (exit code -SIGTERM) rather than an error.
func (r *Runner) Run(ctx context.Context, req *Process) (*FallibleProcessResult, error) {
	if len(req.Argv) == 0 {
		return nil, fatalf(req, "%w", errEmptyArgv)
	}

	start := time.Now()
	runID := uuid.NewString()

	keepPolicy := req.ExecutionEnvironment.LocalKeepSandboxes

	sb, err := CreateSandbox(r.sandboxDir, req.Description, keepPolicy)
	if err != nil {
		return nil, fatalf(req, "creating sandbox: %w", err)
	}
	defer sb.Drop()

	env, argv := substituteChroot(req.Env, req.Argv, sb.Path())

	digest, err := r.assembler.Assemble(req, "", "")
	if err != nil {
		return nil, fatalf(req, "assembling workdir digest: %w", err)
	}

	mutablePaths := append(append([]string{}, req.OutputFiles...), req.OutputDirectories...)

	if err := MaterializeWorkdir(r.store, r.sandboxer, sb.Path(), r.sandboxDir, digest, mutablePaths); err != nil {
		var sbErr *sandboxerError
		if errors.As(err, &sbErr) {
			return nil, retryablef(req, "materializing workdir: %w", err)
		}

		return nil, fatalf(req, "materializing workdir: %w", err)
	}

	exclusive := ExclusiveSpawn(sb.Path(), req.WorkingDirectory, argv)

	localExecutionRequests.Add(1)

	obslog.L().Debug("spawning local process",
		zap.String("run_id", runID),
		zap.String("description", req.Description),
		zap.Bool("exclusive_spawn", exclusive),
	)

	out, spawnErr := runChildWithTimeout(ctx, r.spawnLock, exclusive, sb.Path(), req.WorkingDirectory, argv, env, req.Timeout, req.Description)
	if spawnErr != nil {
		if keepPolicy == OnFailure {
			sb.Keep(req.Description)

			if err := WriteReplayScript(sb.Path(), req.WorkingDirectory, env, argv); err != nil {
				obslog.L().Warn("failed to write replay script",
					zap.String("run_id", runID),
					zap.Error(err),
				)
			}
		}

		return nil, fatalf(req, "spawning process: %w", spawnErr)
	}

	var outputDigest Digest

	if out.TimedOut {
		outputDigest = cas.Empty

		obslog.L().Warn("process timed out",
			zap.String("run_id", runID),
			zap.Error(&timeoutError{duration: *req.Timeout, description: req.Description}),
		)
	} else {
		captureRoot := sb.Path()
		if r.applyWorkingDirectoryToOutputs {
			captureRoot = joinNonEmpty(sb.Path(), req.WorkingDirectory)
		}

		outputDigest, err = SnapshotOutputs(r.store, captureRoot, req)
		if err != nil {
			return nil, fatalf(req, "snapshotting outputs: %w", err)
		}
	}

	stdoutDigest, err := r.store.StoreFileBytes(out.Stdout, true)
	if err != nil {
		return nil, fatalf(req, "storing stdout: %w", err)
	}

	stderrDigest, err := r.store.StoreFileBytes(out.Stderr, true)
	if err != nil {
		return nil, fatalf(req, "storing stderr: %w", err)
	}

	result := &FallibleProcessResult{
		ExitCode:              out.ExitCode,
		StdoutDigest:          stdoutDigest,
		StderrDigest:          stderrDigest,
		OutputDirectoryDigest: outputDigest,
		Elapsed:               time.Since(start),
		ResultSource:          "ran locally",
		ExecutionEnvironment:  req.ExecutionEnvironment,
		RunID:                 runID,
	}

	// A spawn-level infrastructure failure has already returned above as a
	// Fatal error (keeping the sandbox under OnFailure), so OnFailure's keep
	// condition only needs exit code here.
	shouldKeep := keepPolicy == Always || (keepPolicy == OnFailure && out.ExitCode != 0)

	if shouldKeep {
		sb.Keep(req.Description)

		if err := WriteReplayScript(sb.Path(), req.WorkingDirectory, env, argv); err != nil {
			obslog.L().Warn("failed to write replay script",
				zap.String("run_id", runID),
				zap.Error(err),
			)
		}
	}

	return result, nil
}

func joinNonEmpty(base, rel string) string {
	if rel == "" {
		return base
	}

	return filepath.Join(base, rel)
}
