package services

import (
	"errors"
	"fmt"
	"strings"

	"treadmark/internal/queue"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrResource      = errors.New("resource error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")

	// ErrStageGuard marks a refused pipeline transition: a forward move whose
	// prerequisite artifact is missing, or an operation issued on the wrong
	// stage. Guard refusals stay local to the interactive surface and never
	// reach the worker layer.
	ErrStageGuard = errors.New("stage guard")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later status classification. The marker
// should be one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureStatus maps a handler error to the queue status the workflow manager
// should persist after the handler fails. Validation and configuration
// problems need operator attention before a retry can succeed; everything
// else is a plain failure.
func FailureStatus(err error) queue.Status {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return queue.StatusNeedsReview
	default:
		return queue.StatusFailed
	}
}

// FailureDetails carries the operator-facing message plus the full diagnostic
// text extracted from a wrapped error.
type FailureDetails struct {
	Message string
	Detail  string
}

var markers = []error{
	ErrExternalTool,
	ErrValidation,
	ErrResource,
	ErrConfiguration,
	ErrNotFound,
	ErrTimeout,
	ErrTransient,
	ErrStageGuard,
}

// Details splits a wrapped error into a short operator-facing message and the
// complete diagnostic string. The marker prefix added by Wrap is stripped from
// the message; the detail retains the full chain.
func Details(err error) FailureDetails {
	if err == nil {
		return FailureDetails{}
	}
	full := err.Error()
	message := full
	for _, marker := range markers {
		if !errors.Is(err, marker) {
			continue
		}
		prefix := marker.Error() + ": "
		message = strings.TrimPrefix(message, prefix)
		break
	}
	return FailureDetails{Message: strings.TrimSpace(message), Detail: full}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
