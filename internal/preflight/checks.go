package preflight

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"treadmark/internal/config"
	"treadmark/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates all worker dependencies for the given config.
// Both the daemon and the CLI status command use this to avoid duplicating
// the requirements list.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "Python",
			Command:     cfg.Workers.PythonBinary,
			Description: "Required for launching segmentation and grayscale workers",
		},
		{
			Name:        "Segmentation worker",
			Command:     cfg.Workers.SegmentationScript,
			Description: "Required for mask generation",
			Script:      true,
		},
		{
			Name:        "Grayscale worker",
			Command:     cfg.Workers.GrayscaleScript,
			Description: "Required for grayscale conversion",
			Script:      true,
		},
	}
	return deps.Check(requirements)
}
