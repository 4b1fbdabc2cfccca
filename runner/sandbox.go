package runner

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/localbuild/runner/internal/obslog"
	"go.uber.org/zap"
)

const sandboxDirPrefix = "localrun-sandbox-"

// Sandbox owns exclusively a freshly created directory under a configured
// base path until it is either kept (ownership released, directory
// preserved) or dropped (recursive delete scheduled off the calling
// goroutine).
type Sandbox struct {
	path string

	mu    sync.Mutex
	owned bool

	kept atomic.Bool
}

// CreateSandbox creates a new temp directory under base with the package's
// sandbox prefix. If keepPolicy is Always, the sandbox is immediately marked
// kept and its path logged at info level, matching §4.1's eager-keep rule.
func CreateSandbox(base, description string, keepPolicy KeepSandboxes) (*Sandbox, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("runner: sandbox base %q not writable: %w", base, err)
	}

	dir, err := os.MkdirTemp(base, sandboxDirPrefix)
	if err != nil {
		return nil, fmt.Errorf("runner: creating sandbox under %q: %w", base, err)
	}

	sb := &Sandbox{path: dir, owned: true}

	if keepPolicy == Always {
		sb.keepLocked(description)
	}

	return sb, nil
}

// Path returns the sandbox's absolute directory path.
func (s *Sandbox) Path() string {
	return s.path
}

// Keep transitions the sandbox to "kept": future Drop calls are a no-op, and
// the preserved path is logged at info level.
func (s *Sandbox) Keep(description string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keepLocked(description)
}

func (s *Sandbox) keepLocked(description string) {
	s.owned = false
	if s.kept.CompareAndSwap(false, true) {
		obslog.L().Info("preserving sandbox",
			zap.String("path", s.path),
			zap.String("description", description),
		)
	}
}

// Drop schedules recursive deletion of the sandbox directory on a background
// goroutine and returns immediately, if the sandbox is still owned. Calling
// Drop after Keep is a no-op. Drop must never block the calling goroutine —
// deleting a large materialized tree can take seconds.
func (s *Sandbox) Drop() {
	s.mu.Lock()
	owned := s.owned
	s.owned = false
	s.mu.Unlock()

	if !owned {
		return
	}

	path := s.path

	go func() {
		if err := os.RemoveAll(path); err != nil {
			obslog.L().Warn("failed to delete dropped sandbox",
				zap.String("path", path),
				zap.Error(err),
			)
		}
	}()
}
