package engine

import (
	"errors"
	"fmt"
)

// Common engine invocation errors.
var (
	// ErrSpawn is returned when the engine subprocess cannot be started.
	ErrSpawn = errors.New("failed to start engine subprocess")

	// ErrTimeout is returned when the subprocess exceeds its wall-clock
	// deadline and is forcibly terminated.
	ErrTimeout = errors.New("engine subprocess timed out")

	// ErrExitStatus is returned when the subprocess exits non-zero.
	ErrExitStatus = errors.New("engine subprocess exited with failure")

	// ErrMalformedResponse is returned when the subprocess output is not a
	// single well-formed JSON document.
	ErrMalformedResponse = errors.New("engine produced malformed JSON response")

	// ErrMissingScript is returned when a required engine script is absent
	// from the scripts directory.
	ErrMissingScript = errors.New("missing engine script")

	// ErrScriptsDirUnpinned is returned when the scripts directory resolves
	// outside the working directory while pinning is enabled.
	ErrScriptsDirUnpinned = errors.New("scripts directory outside working directory")
)

// CallError wraps engine invocation failures with the capability that
// failed and the captured stderr of the child process.
type CallError struct {
	// Op is the capability that failed (e.g. "Probe", "ConvertLayout").
	Op string

	// Script is the engine script that was invoked.
	Script string

	// Err is the underlying error.
	Err error

	// Stderr holds the child's captured error channel up to the failure,
	// for diagnostics only.
	Stderr string
}

// Error implements the error interface.
func (e *CallError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("engine: %s (%s) failed: %v: %s", e.Op, e.Script, e.Err, e.Stderr)
	}
	return fmt.Sprintf("engine: %s (%s) failed: %v", e.Op, e.Script, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *CallError) Unwrap() error {
	return e.Err
}

// Is implements error matching for errors.Is.
func (e *CallError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newCallError(op, script string, err error, stderr string) *CallError {
	return &CallError{Op: op, Script: script, Err: err, Stderr: stderr}
}
