package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tailscale/hujson"

	"github.com/localbuild/runner/runner"
)

// descriptor is the on-disk JSONC shape of a process request. Both .json and
// .jsonc files are accepted; comments and trailing commas are handled via
// hujson before strict decoding.
type descriptor struct {
	Argv              []string          `json:"argv"`
	Env               map[string]string `json:"env"`
	WorkingDirectory  string            `json:"working_directory"`
	OutputFiles       []string          `json:"output_files"`
	OutputDirectories []string          `json:"output_directories"`
	Timeout           string            `json:"timeout"`
	KeepSandboxes     string            `json:"keep_sandboxes"`
	Description       string            `json:"description"`
	JDKHome           string            `json:"jdk_home"`
}

// loadDescriptor reads and strictly decodes a JSONC process descriptor.
func loadDescriptor(path string) (descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return descriptor{}, fmt.Errorf("localrun: reading request %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return descriptor{}, fmt.Errorf("localrun: parsing request %s: %w", path, err)
	}

	var d descriptor

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&d); err != nil {
		return descriptor{}, fmt.Errorf("localrun: decoding request %s: %w", path, err)
	}

	return d, nil
}

// toProcess converts the descriptor into a runner.Process, overriding argv
// with cliArgv when the CLI supplied trailing positional arguments.
func (d descriptor) toProcess(cliArgv []string) (*runner.Process, error) {
	argv := d.Argv
	if len(cliArgv) > 0 {
		argv = cliArgv
	}

	if len(argv) == 0 {
		return nil, fmt.Errorf("localrun: no command given (pass positional args or set \"argv\" in the request file)")
	}

	var timeout *time.Duration

	if d.Timeout != "" {
		parsed, err := time.ParseDuration(d.Timeout)
		if err != nil {
			return nil, fmt.Errorf("localrun: invalid timeout %q: %w", d.Timeout, err)
		}

		timeout = &parsed
	}

	keep, err := parseKeepSandboxes(d.KeepSandboxes)
	if err != nil {
		return nil, err
	}

	return &runner.Process{
		Argv:              argv,
		Env:               d.Env,
		WorkingDirectory:  d.WorkingDirectory,
		OutputFiles:       d.OutputFiles,
		OutputDirectories: d.OutputDirectories,
		Timeout:           timeout,
		Description:       d.Description,
		JDKHome:           d.JDKHome,
		ExecutionEnvironment: runner.ExecutionEnvironment{
			Name:               "local",
			LocalKeepSandboxes: keep,
		},
	}, nil
}

func parseKeepSandboxes(s string) (runner.KeepSandboxes, error) {
	switch s {
	case "", "on_failure":
		return runner.OnFailure, nil
	case "always":
		return runner.Always, nil
	case "never":
		return runner.Never, nil
	default:
		return 0, fmt.Errorf("localrun: unknown keep_sandboxes value %q (want always, never, or on_failure)", s)
	}
}
