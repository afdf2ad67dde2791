package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"treadmark/internal/logging"
)

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOldDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	// Create old directory
	oldDir := filepath.Join(tmpDir, "worker-old")
	if err := os.Mkdir(oldDir, 0o755); err != nil {
		t.Fatalf("create old dir: %v", err)
	}
	// Set modification time to 2 hours ago
	oldTime := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldDir, oldTime, oldTime); err != nil {
		t.Fatalf("set old time: %v", err)
	}

	// Create recent directory
	recentDir := filepath.Join(tmpDir, "worker-recent")
	if err := os.Mkdir(recentDir, 0o755); err != nil {
		t.Fatalf("create recent dir: %v", err)
	}

	result := CleanStale(context.Background(), tmpDir, time.Hour, logging.NewNop())

	if len(result.Removed) != 1 {
		t.Fatalf("expected 1 removed, got %d", len(result.Removed))
	}
	if result.Removed[0] != oldDir {
		t.Errorf("expected %s to be removed, got %s", oldDir, result.Removed[0])
	}

	// Old dir should be gone
	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Error("old directory should have been removed")
	}

	// Recent dir should still exist
	if _, err := os.Stat(recentDir); err != nil {
		t.Error("recent directory should still exist")
	}
}

func TestCleanStaleIgnoresFiles(t *testing.T) {
	tmpDir := t.TempDir()

	// Create an old file (should be ignored)
	oldFile := filepath.Join(tmpDir, "old-file.txt")
	if err := os.WriteFile(oldFile, []byte("test"), 0o644); err != nil {
		t.Fatalf("create file: %v", err)
	}
	oldTime := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldFile, oldTime, oldTime); err != nil {
		t.Fatalf("set old time: %v", err)
	}

	result := CleanStale(context.Background(), tmpDir, time.Hour, logging.NewNop())

	if len(result.Removed) != 0 {
		t.Errorf("expected no removals for files, got %d", len(result.Removed))
	}

	// File should still exist
	if _, err := os.Stat(oldFile); err != nil {
		t.Error("file should not have been removed")
	}
}

func TestCleanOrphanedEmptyDir(t *testing.T) {
	for _, dir := range []string{"", "   "} {
		result := CleanOrphaned(context.Background(), dir, nil, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanOrphanedRemovesUnknownItems(t *testing.T) {
	tmpDir := t.TempDir()

	// Create directory for an active item
	activeDir := filepath.Join(tmpDir, "5")
	if err := os.Mkdir(activeDir, 0o755); err != nil {
		t.Fatalf("create active dir: %v", err)
	}

	// Create directory for a removed item
	orphanDir := filepath.Join(tmpDir, "9")
	if err := os.Mkdir(orphanDir, 0o755); err != nil {
		t.Fatalf("create orphan dir: %v", err)
	}

	activeIDs := map[int64]struct{}{
		5: {},
	}

	result := CleanOrphaned(context.Background(), tmpDir, activeIDs, logging.NewNop())

	if len(result.Removed) != 1 {
		t.Fatalf("expected 1 removed, got %d", len(result.Removed))
	}
	if result.Removed[0] != orphanDir {
		t.Errorf("expected %s to be removed, got %s", orphanDir, result.Removed[0])
	}

	// Orphan dir should be gone
	if _, err := os.Stat(orphanDir); !os.IsNotExist(err) {
		t.Error("orphan directory should have been removed")
	}

	// Active dir should still exist
	if _, err := os.Stat(activeDir); err != nil {
		t.Error("active directory should still exist")
	}
}

func TestCleanOrphanedSkipsNonNumericDirs(t *testing.T) {
	tmpDir := t.TempDir()

	// Non-numeric directories are not item dirs and belong to stale cleanup
	tmpWorkDir := filepath.Join(tmpDir, "worker-tmp")
	if err := os.Mkdir(tmpWorkDir, 0o755); err != nil {
		t.Fatalf("create worker dir: %v", err)
	}

	orphanDir := filepath.Join(tmpDir, "12")
	if err := os.Mkdir(orphanDir, 0o755); err != nil {
		t.Fatalf("create orphan dir: %v", err)
	}

	result := CleanOrphaned(context.Background(), tmpDir, map[int64]struct{}{}, logging.NewNop())

	if len(result.Removed) != 1 {
		t.Fatalf("expected 1 removed, got %d: %v", len(result.Removed), result.Removed)
	}
	if result.Removed[0] != orphanDir {
		t.Errorf("expected orphan dir removed, got %s", result.Removed[0])
	}

	// Non-numeric dir should still exist
	if _, err := os.Stat(tmpWorkDir); err != nil {
		t.Error("worker directory should still exist")
	}
}

func TestListDirectoriesInvalidPaths(t *testing.T) {
	for _, path := range []string{"", "/nonexistent/path/12345"} {
		dirs, err := ListDirectories(path)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", path, err)
		}
		if dirs != nil {
			t.Errorf("expected nil for path %q, got %v", path, dirs)
		}
	}
}

func TestListDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	// Create some directories
	dir1 := filepath.Join(tmpDir, "scratch-1")
	if err := os.Mkdir(dir1, 0o755); err != nil {
		t.Fatalf("create dir1: %v", err)
	}

	dir2 := filepath.Join(tmpDir, "scratch-2")
	if err := os.Mkdir(dir2, 0o755); err != nil {
		t.Fatalf("create dir2: %v", err)
	}

	// Create a file (should be ignored)
	file := filepath.Join(tmpDir, "not-a-dir.txt")
	if err := os.WriteFile(file, []byte("test"), 0o644); err != nil {
		t.Fatalf("create file: %v", err)
	}

	// Add a file inside dir1 for size calculation
	innerFile := filepath.Join(dir1, "data.bin")
	if err := os.WriteFile(innerFile, []byte("12345"), 0o644); err != nil {
		t.Fatalf("create inner file: %v", err)
	}

	dirs, err := ListDirectories(tmpDir)
	if err != nil {
		t.Fatalf("ListDirectories: %v", err)
	}

	if len(dirs) != 2 {
		t.Fatalf("expected 2 directories, got %d", len(dirs))
	}

	// Check that dir1 has the correct size
	var foundDir1 bool
	for _, d := range dirs {
		if d.Name == "scratch-1" {
			foundDir1 = true
			if d.Size != 5 {
				t.Errorf("dir1 size = %d, want 5", d.Size)
			}
		}
	}
	if !foundDir1 {
		t.Error("did not find scratch-1 in results")
	}
}

func TestDirInfo(t *testing.T) {
	tmpDir := t.TempDir()

	dir := filepath.Join(tmpDir, "scratch-info")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("create dir: %v", err)
	}

	dirs, err := ListDirectories(tmpDir)
	if err != nil {
		t.Fatalf("ListDirectories: %v", err)
	}

	if len(dirs) != 1 {
		t.Fatalf("expected 1 directory, got %d", len(dirs))
	}

	info := dirs[0]
	if info.Name != "scratch-info" {
		t.Errorf("Name = %q, want scratch-info", info.Name)
	}
	if info.Path != dir {
		t.Errorf("Path = %q, want %q", info.Path, dir)
	}
	if info.ModTime.IsZero() {
		t.Error("ModTime should not be zero")
	}
}
