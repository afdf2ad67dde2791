package worker

import (
	"errors"
	"os/exec"
	"strings"

	"treadmark/internal/services"
)

// ExecutionError reports a worker process that exited abnormally. Its
// message is exactly the captured stderr text when the worker produced any,
// so the operator sees the worker's own diagnostic; the exit code and kind
// stay available for logging.
type ExecutionError struct {
	Kind     Kind
	ExitCode int
	Stderr   string
	cause    error
}

func newExecutionError(kind Kind, stderr []byte, cause error) *ExecutionError {
	e := &ExecutionError{
		Kind:     kind,
		ExitCode: -1,
		Stderr:   strings.TrimSpace(string(stderr)),
		cause:    cause,
	}
	var exitErr *exec.ExitError
	if errors.As(cause, &exitErr) {
		e.ExitCode = exitErr.ExitCode()
	}
	return e
}

func (e *ExecutionError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	if e.cause != nil {
		return "worker failed: " + e.cause.Error()
	}
	return "worker failed"
}

func (e *ExecutionError) Unwrap() error { return e.cause }

// Is lets errors.Is classify execution failures as external tool errors.
func (e *ExecutionError) Is(target error) bool {
	return target == services.ErrExternalTool
}
