package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/localbuild/runner/internal/obslog"
)

func main() {
	logger := obslog.Init()
	defer logger.Sync() //nolint:errcheck

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	os.Exit(Run(os.Stdin, os.Stdout, os.Stderr, os.Args, envToMap(os.Environ()), sigCh))
}

func envToMap(environ []string) map[string]string {
	out := make(map[string]string, len(environ))

	for _, kv := range environ {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}

	return out
}
