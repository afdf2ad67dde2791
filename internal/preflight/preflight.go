package preflight

import (
	"context"
	"strings"

	"treadmark/internal/config"
	"treadmark/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Directories the daemon touches while processing items.
	results = append(results, CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	results = append(results, CheckDirectoryAccess("Scratch directory", cfg.Paths.ScratchDir))

	// Dataset directory (when configured)
	if strings.TrimSpace(cfg.Paths.DatasetDir) != "" {
		results = append(results, CheckDirectoryAccess("Dataset directory", cfg.Paths.DatasetDir))
	}

	for _, status := range CheckSystemDeps(ctx, cfg) {
		results = append(results, resultFromDependency(status))
	}

	return results
}

// resultFromDependency folds a dependency status into the Result shape.
// Missing optional dependencies still pass, with an annotated detail.
func resultFromDependency(status deps.Status) Result {
	result := Result{Name: status.Name}
	switch {
	case status.Available:
		result.Passed = true
		result.Detail = "available"
	case status.Optional:
		result.Passed = true
		result.Detail = status.Detail + " (optional)"
	default:
		result.Detail = status.Detail
	}
	return result
}
