package runner

import "sync"

// SpawnLock is a process-wide reader/writer lock mediating the fork-vs-write
// race described in §4.5: fork(2) duplicates all open file descriptors, so a
// concurrent fork can inherit a write-fd to an executable another goroutine
// is still materializing, and the materializing goroutine's later execve on
// that path fails with ETXTBSY once its own fd closes. Every local spawn in
// the process — not just this package's — must route through the same
// SpawnLock instance; independent locks defeat the purpose.
type SpawnLock struct {
	mu sync.RWMutex
}

// NewSpawnLock returns a fresh, unlocked SpawnLock.
func NewSpawnLock() *SpawnLock {
	return &SpawnLock{}
}

// SpawnProcess invokes f while holding the appropriate side of the lock:
// exclusive (write) when exclusive is true — an "exclusive spawn" where
// argv[0] resolves to a freshly materialized executable inside the sandbox —
// or shared (read) otherwise. The lock is held only around f, not for the
// spawned child's subsequent lifetime.
func (l *SpawnLock) SpawnProcess(exclusive bool, f func() error) error {
	if exclusive {
		l.mu.Lock()
		defer l.mu.Unlock()
	} else {
		l.mu.RLock()
		defer l.mu.RUnlock()
	}

	return f()
}
