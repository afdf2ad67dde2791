package stage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"treadmark/internal/services"
)

func TestRequireArtifact_Present(t *testing.T) {
	path := filepath.Join(t.TempDir(), "working.png")
	if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	if err := RequireArtifact("export", "working image", path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequireArtifact_EmptyPath(t *testing.T) {
	err := RequireArtifact("export", "working image", "  ")
	if err == nil {
		t.Fatal("expected error for empty path")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRequireArtifact_Missing(t *testing.T) {
	err := RequireArtifact("export", "mask image", filepath.Join(t.TempDir(), "absent.png"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
