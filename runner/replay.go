package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const replayScriptName = "__run.sh"

// WriteReplayScript emits <sandboxPath>/__run.sh, mode 0755, created
// exclusively (failing if it already exists). The script is a minimal,
// bash-quoted reconstruction of the process this run executed: cd into the
// resolved working directory, then `env -i` with the exact KEY=VALUE
// overrides and argv this run used.
func WriteReplayScript(sandboxPath, workingDirectory string, env map[string]string, argv []string) error {
	cwd := filepath.Join(sandboxPath, workingDirectory)

	var b strings.Builder

	b.WriteString("#!/usr/bin/env bash\n")
	b.WriteString("# This command line should reproduce the process this run executed.\n")
	fmt.Fprintf(&b, "cd %s\n", shellQuote(cwd))

	b.WriteString("env -i")

	for _, k := range sortedKeys(env) {
		fmt.Fprintf(&b, " %s=%s", k, shellQuote(env[k]))
	}

	for _, a := range argv {
		fmt.Fprintf(&b, " %s", shellQuote(a))
	}

	b.WriteString("\n")

	path := filepath.Join(sandboxPath, replayScriptName)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o755)
	if err != nil {
		return fmt.Errorf("runner: creating replay script %q: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("runner: writing replay script %q: %w", path, err)
	}

	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// shellQuote applies bash-compatible single-quote escaping: wrap in single
// quotes, replacing each embedded single quote with '\'' (close quote,
// escaped literal quote, reopen quote).
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
