package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/localbuild/runner/cas"
	"github.com/localbuild/runner/immutableinputs"
	"github.com/localbuild/runner/namedcache"
	"github.com/localbuild/runner/runner"
	"github.com/localbuild/runner/sandboxer"
)

const (
	executableName = "localrun"

	materializeSubcommand = "__materialize"

	// exitCodeSIGINT is the exit code when the process is interrupted (128 + 2).
	exitCodeSIGINT = 130
)

// Run is the testable entry point: it isolates all of localrun's logic from
// global process state (stdin/stdout/stderr, os.Args, the environment) so it
// can be driven directly from tests. Returns the process exit code.
func Run(stdin io.Reader, stdout, stderr io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	if len(args) > 1 && args[1] == materializeSubcommand {
		return runMaterialize(stderr, args[2:])
	}

	flags := flag.NewFlagSet(executableName, flag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.Usage = func() {}
	flags.SetOutput(io.Discard)

	flagHelp := flags.BoolP("help", "h", false, "Show help")
	flagVersion := flags.BoolP("version", "v", false, "Show version and exit")
	flagRequest := flags.StringP("request", "r", "", "Load a JSONC process request `file`")
	flagStore := flags.String("store", "", "Content-addressed store `dir` (default: $cache/localrun/store)")
	flagSandboxBase := flags.String("sandbox-base", "", "Sandbox base `dir` (default: $TMPDIR/localrun)")
	flagSandboxer := flags.String("sandboxer", "", "External sandboxer to use for materialization: \"\" or \"bwrap\"")
	flagCwd := flags.StringP("working-directory", "C", "", "Run as if started in sandbox-relative `dir`")
	flagTimeout := flags.Duration("timeout", 0, "Kill the process after `duration` (0 kills it immediately; omit for no timeout)")
	flagKeep := flags.String("keep-sandboxes", "on_failure", "always, never, or on_failure")
	flagDescription := flags.String("description", "", "Human-readable description for logs and replay")
	flagOutputFiles := flags.StringArray("output-file", nil, "Declare an output file (repeatable)")
	flagOutputDirs := flags.StringArray("output-dir", nil, "Declare an output directory (repeatable)")
	flagEnv := flags.StringArray("env", nil, "KEY=VALUE to set in the child's environment (repeatable)")

	if err := flags.Parse(args[1:]); err != nil {
		fprintError(stderr, err)

		return 1
	}

	if *flagVersion {
		fprintln(stdout, formatVersion())

		return 0
	}

	commandAndArgs := flags.Args()

	if *flagHelp || (len(commandAndArgs) == 0 && *flagRequest == "") {
		printUsage(stdout)

		return 0
	}

	d := descriptor{}

	if *flagRequest != "" {
		loaded, err := loadDescriptor(*flagRequest)
		if err != nil {
			fprintError(stderr, err)

			return 1
		}

		d = loaded
	}

	applyCLIOverrides(&d, *flagCwd, *flagTimeout, flags.Changed("timeout"), *flagKeep, *flagDescription, *flagOutputFiles, *flagOutputDirs, *flagEnv)

	proc, err := d.toProcess(commandAndArgs)
	if err != nil {
		fprintError(stderr, err)

		return 1
	}

	storeDir := *flagStore
	if storeDir == "" {
		storeDir = env["LOCALRUN_STORE"]
	}

	sandboxBase := *flagSandboxBase
	if sandboxBase == "" {
		sandboxBase = env["LOCALRUN_SANDBOX_BASE"]
	}

	rn, err := buildRunner(storeDir, sandboxBase, *flagSandboxer)
	if err != nil {
		fprintError(stderr, err)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type runResult struct {
		result *runner.FallibleProcessResult
		err    error
	}

	done := make(chan runResult, 1)

	go func() {
		result, err := rn.Run(ctx, proc)
		done <- runResult{result: result, err: err}
	}()

	select {
	case r := <-done:
		return reportResult(stdout, stderr, r.result, r.err)
	case <-sigChOrNever(sigCh):
		fprintln(stderr, "localrun: interrupted, cancelling run...")
		cancel()

		r := <-done

		_ = reportResult(stdout, stderr, r.result, r.err)

		return exitCodeSIGINT
	}
}

func sigChOrNever(sigCh <-chan os.Signal) <-chan os.Signal {
	if sigCh != nil {
		return sigCh
	}

	return make(chan os.Signal)
}

func applyCLIOverrides(d *descriptor, cwd string, timeout time.Duration, timeoutSet bool, keep, description string, outputFiles, outputDirs, envPairs []string) {
	if cwd != "" {
		d.WorkingDirectory = cwd
	}

	// timeoutSet distinguishes "--timeout 0" (explicitly kill immediately)
	// from "flag omitted" (leave whatever the request file said, or no
	// timeout at all); a bare timeout > 0 check can't tell those apart.
	if timeoutSet {
		d.Timeout = timeout.String()
	}

	if keep != "" {
		d.KeepSandboxes = keep
	}

	if description != "" {
		d.Description = description
	}

	d.OutputFiles = append(d.OutputFiles, outputFiles...)
	d.OutputDirectories = append(d.OutputDirectories, outputDirs...)

	if len(envPairs) > 0 {
		if d.Env == nil {
			d.Env = map[string]string{}
		}

		for _, pair := range envPairs {
			k, v, ok := strings.Cut(pair, "=")
			if ok {
				d.Env[k] = v
			}
		}
	}
}

func buildRunner(storeDir, sandboxBase, sandboxerName string) (*runner.Runner, error) {
	if storeDir == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("localrun: resolving default store dir: %w", err)
		}

		storeDir = filepath.Join(cacheDir, "localrun", "store")
	}

	if sandboxBase == "" {
		sandboxBase = filepath.Join(os.TempDir(), "localrun")
	}

	store, err := cas.NewStore(storeDir)
	if err != nil {
		return nil, fmt.Errorf("localrun: opening store: %w", err)
	}

	immutableWorkdir := filepath.Join(sandboxBase, "immutable-inputs")
	immutable := immutableinputs.New(store, immutableWorkdir)

	cacheBase, err := namedcache.DefaultBase()
	if err != nil {
		return nil, fmt.Errorf("localrun: resolving named-cache base: %w", err)
	}

	caches := namedcache.New(cacheBase)

	var sb sandboxer.Sandboxer

	switch sandboxerName {
	case "", "none":
		sb = nil
	case "bwrap":
		sb = &sandboxer.BwrapSandboxer{StoreDir: storeDir}
	default:
		return nil, fmt.Errorf("localrun: unknown --sandboxer %q", sandboxerName)
	}

	return runner.New(store, immutable, caches, sb, sandboxBase), nil
}

func reportResult(stdout, stderr io.Writer, result *runner.FallibleProcessResult, err error) int {
	if err != nil {
		var perr *runner.ProcessError
		if errors.As(err, &perr) && perr.Debug != "" {
			fprintln(stderr, "localrun: request debug dump:", perr.Debug)
		}

		fprintError(stderr, err)

		return 1
	}

	fprintf(stdout, "exit_code=%d stdout=%s stderr=%s output=%s elapsed=%s run_id=%s\n",
		result.ExitCode, result.StdoutDigest, result.StderrDigest, result.OutputDirectoryDigest, result.Elapsed, result.RunID)

	return 0
}

const usageHelp = `localrun - runs a process inside an ephemeral, hermetic sandbox

Usage: localrun [flags] [--] <command> [args...]
       localrun [flags] --request request.jsonc

Flags:
  -h, --help                     Show help
  -v, --version                  Show version and exit
  -r, --request <file>           Load a JSONC process request
      --store <dir>              Content-addressed store directory
      --sandbox-base <dir>       Sandbox base directory
      --sandboxer <name>         External sandboxer ("" or "bwrap")
  -C, --working-directory <dir>  Sandbox-relative working directory
      --timeout <duration>       Kill the process after duration (e.g. 30s)
      --keep-sandboxes <policy>  always, never, or on_failure (default)
      --description <text>       Human-readable description for logs/replay
      --output-file <path>       Declare an output file (repeatable)
      --output-dir <path>        Declare an output directory (repeatable)
      --env KEY=VALUE             Set an env var in the child (repeatable)

Examples:
  localrun -- /bin/echo hello
  localrun --output-file out.txt -- /bin/sh -c "echo hi > out.txt"
  localrun --request build.jsonc`

func printUsage(out io.Writer) {
	fprintln(out, usageHelp)
}

func fprintln(out io.Writer, a ...any) {
	_, _ = fmt.Fprintln(out, a...)
}

func fprintf(out io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(out, format, a...)
}

func fprintError(out io.Writer, err error) {
	fprintln(out, "localrun: error:", err)
}
