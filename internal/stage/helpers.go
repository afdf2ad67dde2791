package stage

import (
	"fmt"
	"os"
	"strings"

	"treadmark/internal/services"
)

// RequireArtifact verifies that a stage input artifact exists on disk.
// On failure it returns a services.ErrValidation suitable for stage Execute methods.
func RequireArtifact(component, description, path string) error {
	if strings.TrimSpace(path) == "" {
		return services.Wrap(
			services.ErrValidation, component, "locate "+description,
			fmt.Sprintf("No %s recorded for this item; rerun the earlier stage", description), nil)
	}
	if _, err := os.Stat(path); err != nil {
		return services.Wrap(
			services.ErrValidation, component, "locate "+description,
			fmt.Sprintf("Expected %s is missing from disk; rerun the earlier stage", description), err)
	}
	return nil
}
