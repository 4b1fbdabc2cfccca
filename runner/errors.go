package runner

import (
	"errors"
	"fmt"
	"time"
)

// ProcessError is the error type returned by Run for anything that is not a
// structured (possibly non-zero-exit) FallibleProcessResult. Timeouts are
// deliberately excluded — per the error-handling design, a timeout degrades
// to a result rather than an error.
type ProcessError struct {
	// Class distinguishes retryable infrastructure hiccups from everything
	// else. Callers may retry a Retryable error; any other class should be
	// treated as terminal for this request.
	Class ErrorClass

	// Description is the request's human-readable description, carried along
	// so a Fatal error is diagnosable without re-threading the request.
	Description string

	// Debug is a debug-formatted dump of the request that produced this
	// error, populated only for Fatal/Unclassified errors per the design's
	// "preserve the request to aid diagnosis" rationale.
	Debug string

	Err error
}

// ErrorClass is the internal taxonomy for sandbox/exec failures.
type ErrorClass int

const (
	// Retryable denotes a transient infrastructure failure the caller may
	// retry (e.g. a sandboxer IPC hiccup).
	Retryable ErrorClass = iota
	// Fatal denotes any other failure: materialization error, store failure,
	// symlink collision, glob failure, spawn failure.
	Fatal
)

func (e *ProcessError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("runner: %s: %s: %v", classLabel(e.Class), e.Description, e.Err)
	}

	return fmt.Sprintf("runner: %s: %v", classLabel(e.Class), e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

func classLabel(c ErrorClass) string {
	switch c {
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return "unclassified"
	}
}

// fatalf builds a Fatal ProcessError, attaching a debug dump of req on the
// theory that local-exec fatals are rare and usually indicate a bug or
// environmental defect.
func fatalf(req *Process, format string, args ...any) *ProcessError {
	return &ProcessError{
		Class:       Fatal,
		Description: req.Description,
		Debug:       fmt.Sprintf("%#v", req),
		Err:         fmt.Errorf(format, args...),
	}
}

// retryablef builds a Retryable ProcessError.
func retryablef(req *Process, format string, args ...any) *ProcessError {
	return &ProcessError{
		Class:       Retryable,
		Description: req.Description,
		Err:         fmt.Errorf(format, args...),
	}
}

// timeoutError carries the configured duration and the request description
// for a collector timeout. It is never returned from Run as an error — the
// run degrades to a structured result — but it is kept as a typed value so
// logging call sites (see Run's zap.Error use) can report the duration
// without reformatting it.
type timeoutError struct {
	duration    time.Duration
	description string
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("runner: process %q timed out after %s", e.description, e.duration)
}

// sandboxerError marks a failure that crossed the external sandboxer's
// process boundary (see MaterializeWorkdir) as Retryable: the helper
// subprocess failing to start, being killed, or erroring over its IPC
// boundary is the transient-infrastructure-hiccup case ErrorClass documents,
// as opposed to a corrupt store or a bad digest.
type sandboxerError struct {
	err error
}

func (e *sandboxerError) Error() string {
	return e.err.Error()
}

func (e *sandboxerError) Unwrap() error {
	return e.err
}

var errEmptyArgv = errors.New("runner: argv must not be empty")
