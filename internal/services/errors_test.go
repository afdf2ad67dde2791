package services_test

import (
	"errors"
	"strings"
	"testing"

	"treadmark/internal/queue"
	"treadmark/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "worker", "segmentation", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"worker", "segmentation", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestFailureStatusMapping(t *testing.T) {
	validationErr := services.Wrap(services.ErrValidation, "geometry", "validate", "missing prompt", nil)
	if status := services.FailureStatus(validationErr); status != queue.StatusNeedsReview {
		t.Fatalf("expected needs-review for validation error, got %s", status)
	}

	toolErr := services.Wrap(services.ErrExternalTool, "worker", "grayscale", "exit status 2", errors.New("boom"))
	if status := services.FailureStatus(toolErr); status != queue.StatusFailed {
		t.Fatalf("expected failed for external tool error, got %s", status)
	}

	if status := services.FailureStatus(nil); status != queue.StatusFailed {
		t.Fatalf("expected failed for nil error, got %s", status)
	}
}

func TestDetailsStripsMarkerPrefix(t *testing.T) {
	err := services.Wrap(services.ErrValidation, "geometry", "validate", "crop too small", nil)
	details := services.Details(err)
	if strings.HasPrefix(details.Message, "validation error") {
		t.Fatalf("marker prefix not stripped: %q", details.Message)
	}
	if !strings.Contains(details.Message, "crop too small") {
		t.Fatalf("expected message to retain detail, got %q", details.Message)
	}
	if details.Detail != err.Error() {
		t.Fatalf("expected detail to keep full chain, got %q", details.Detail)
	}
}

func TestDetailsNil(t *testing.T) {
	details := services.Details(nil)
	if details.Message != "" || details.Detail != "" {
		t.Fatalf("expected empty details for nil error, got %+v", details)
	}
}
