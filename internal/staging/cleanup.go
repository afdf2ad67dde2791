package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"treadmark/internal/logging"
)

// CleanStaleResult contains the outcome of a stale directory cleanup operation.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes scratch directories older than maxAge.
// It returns the list of removed directories and any errors encountered.
func CleanStale(ctx context.Context, scratchDir string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}

	scratchDir = strings.TrimSpace(scratchDir)
	if scratchDir == "" {
		return result
	}

	entries, err := os.ReadDir(scratchDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: scratchDir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dirPath := filepath.Join(scratchDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}

		if info.ModTime().Before(cutoff) {
			if err := os.RemoveAll(dirPath); err != nil {
				result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
				if logger != nil {
					logger.Warn("failed to remove stale scratch directory",
						logging.String("path", dirPath),
						logging.Error(err),
						logging.String(logging.FieldEventType, "staging_cleanup_failed"),
						logging.String(logging.FieldErrorHint, "check scratch_dir permissions"),
						logging.String(logging.FieldImpact, "disk space not reclaimed"),
					)
				}
			} else {
				result.Removed = append(result.Removed, dirPath)
				if logger != nil {
					logger.Info("removed stale scratch directory",
						logging.String("path", dirPath),
						logging.Duration("age", time.Since(info.ModTime())),
						logging.String(logging.FieldEventType, "staging_cleanup"),
					)
				}
			}
		}
	}

	return result
}

// CleanOrphaned removes item directories whose numeric name no longer matches
// an active queue item ID. It returns the list of removed directories and any
// errors encountered.
func CleanOrphaned(ctx context.Context, itemsDir string, activeIDs map[int64]struct{}, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}

	itemsDir = strings.TrimSpace(itemsDir)
	if itemsDir == "" {
		return result
	}

	entries, err := os.ReadDir(itemsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: itemsDir, Error: err})
		}
		return result
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dirPath := filepath.Join(itemsDir, entry.Name())

		id, err := strconv.ParseInt(entry.Name(), 10, 64)
		if err != nil {
			// Not an item directory - leave it for stale cleanup instead.
			continue
		}

		if _, active := activeIDs[id]; active {
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			if logger != nil {
				logger.Warn("failed to remove orphaned item directory",
					logging.String("path", dirPath),
					logging.Error(err),
					logging.String(logging.FieldEventType, "staging_cleanup_failed"),
					logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
		} else {
			result.Removed = append(result.Removed, dirPath)
			if logger != nil {
				logger.Info("removed orphaned item directory",
					logging.String("path", dirPath),
					logging.Int64("itemID", id),
					logging.String(logging.FieldEventType, "staging_cleanup"),
				)
			}
		}
	}

	return result
}

// ListDirectories returns all directories in the given directory with their metadata.
func ListDirectories(dir string) ([]DirInfo, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		dirPath := filepath.Join(dir, entry.Name())
		size, _ := dirSize(dirPath)

		dirs = append(dirs, DirInfo{
			Name:    entry.Name(),
			Path:    dirPath,
			ModTime: info.ModTime(),
			Size:    size,
		})
	}

	return dirs, nil
}

// DirInfo contains metadata about a staged directory.
type DirInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// dirSize calculates the total size of a directory recursively.
func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Ignore errors, best effort
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
