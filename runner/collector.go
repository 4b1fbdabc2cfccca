//go:build unix

package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const initialBufferCapacity = 8 * 1024

// collectedOutput is the drained result of one child run: full stdout/stderr
// buffers and a single terminal exit code. TimedOut is set only when the
// collector's own timer won the race against the drain, so callers can
// distinguish "this run's exit code happens to be -SIGTERM" from "the
// collector killed it".
type collectedOutput struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	TimedOut bool
}

// streamBuffers holds the two growable output buffers and the exit-code slot
// that a running child's three sub-streams drain into, guarded by a single
// mutex so a timeout can take a consistent snapshot mid-drain.
type streamBuffers struct {
	mu     sync.Mutex
	stdout bytes.Buffer
	stderr bytes.Buffer
	exit   int
}

func newStreamBuffers() *streamBuffers {
	b := &streamBuffers{exit: 1}
	b.stdout.Grow(initialBufferCapacity)
	b.stderr.Grow(initialBufferCapacity)

	return b
}

func (b *streamBuffers) snapshot() collectedOutput {
	b.mu.Lock()
	defer b.mu.Unlock()

	return collectedOutput{
		Stdout:   append([]byte(nil), b.stdout.Bytes()...),
		Stderr:   append([]byte(nil), b.stderr.Bytes()...),
		ExitCode: b.exit,
	}
}

// runChildWithTimeout spawns argv under lock, then drains its merged
// stdout/stderr/exit sub-streams to completion. timeout nil means no timer at
// all. A non-nil timeout — including a zero duration, which fires the timer
// immediately — races the drain: if the timer fires first, the child's
// process group is killed, a timeout notice is appended to whatever stderr
// had accumulated so far, and the result reports exit code -SIGTERM —
// returned as a normal result, never as an error, per the collector's timeout
// contract.
func runChildWithTimeout(ctx context.Context, lock *SpawnLock, exclusive bool, workdir, workingDirectory string, argv []string, env map[string]string, timeout *time.Duration, description string) (collectedOutput, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var child *spawnedChild

	spawnErr := lock.SpawnProcess(exclusive, func() error {
		c, err := spawnChild(runCtx, workdir, workingDirectory, argv, env)
		if err != nil {
			return err
		}

		child = c

		return nil
	})
	if spawnErr != nil {
		return collectedOutput{}, spawnErr
	}

	buffers := newStreamBuffers()
	done := make(chan struct{})

	go drainChild(child, buffers, done)

	if timeout == nil {
		<-done
		return buffers.snapshot(), nil
	}

	timer := time.NewTimer(*timeout)
	defer timer.Stop()

	select {
	case <-done:
		return buffers.snapshot(), nil
	case <-timer.C:
		killChildGroup(child, syscall.SIGTERM)

		out := buffers.snapshot()
		notice := fmt.Sprintf("\ntimeout: process %q exceeded %.1f seconds and was terminated\n", description, timeout.Seconds())
		out.Stderr = append(out.Stderr, notice...)
		out.ExitCode = -int(syscall.SIGTERM)
		out.TimedOut = true

		return out, nil
	}
}

// drainChild reads the child's stdout and stderr concurrently, tags each
// chunk per §4.6's merged-stream model (ChildOutput/ChildOutputTag), and
// funnels everything through one channel into buffers: stdout and stderr
// chunks as they arrive, then exactly one TagExit chunk once both streams
// have reached EOF and the child has been waited on. Consuming the tagged
// channel single-threaded is what makes the exit chunk arrive exactly once,
// after every output byte. drainChild closes done once the channel drains.
func drainChild(child *spawnedChild, buffers *streamBuffers, done chan<- struct{}) {
	tagged := make(chan ChildOutput)

	go func() {
		var g errgroup.Group

		g.Go(func() error {
			return streamInto(tagged, TagStdout, child.stdout)
		})

		g.Go(func() error {
			return streamInto(tagged, TagStderr, child.stderr)
		})

		_ = g.Wait()

		waitErr := child.cmd.Wait()
		tagged <- ChildOutput{Tag: TagExit, ExitCode: exitCodeFromWait(child.cmd.ProcessState, waitErr)}
		close(tagged)
	}()

	for out := range tagged {
		buffers.mu.Lock()

		switch out.Tag {
		case TagStdout:
			buffers.stdout.Write(out.Bytes)
		case TagStderr:
			buffers.stderr.Write(out.Bytes)
		case TagExit:
			buffers.exit = out.ExitCode
		}

		buffers.mu.Unlock()
	}

	close(done)
}

// streamInto reads r in chunks and emits each as a tagged ChildOutput. A read
// error on an abandoned (killed) pipe is an expected outcome once the
// collector kills the child's process group, not a collector failure, so it
// is swallowed the same way EOF is.
func streamInto(tagged chan<- ChildOutput, tag ChildOutputTag, r io.Reader) error {
	chunk := make([]byte, 4096)

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			tagged <- ChildOutput{Tag: tag, Bytes: append([]byte(nil), chunk[:n]...)}
		}

		if err != nil {
			return nil
		}
	}
}

// exitCodeFromWait derives the spec's exit-code convention (negative N means
// killed by signal N) from the process's wait status, defaulting to the
// collector's documented default of 1 if the status is unavailable.
func exitCodeFromWait(ps *os.ProcessState, waitErr error) int {
	if ps == nil {
		return 1
	}

	if status, ok := ps.Sys().(syscall.WaitStatus); ok {
		if status.Signaled() {
			return -int(status.Signal())
		}

		return status.ExitStatus()
	}

	if waitErr == nil {
		return 0
	}

	return 1
}
