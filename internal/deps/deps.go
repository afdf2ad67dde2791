package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Requirement defines an external dependency Treadmark relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// Script marks requirements that are files launched through an
	// interpreter rather than binaries resolved on PATH.
	Script bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Check evaluates the provided requirements and reports availability.
// Binaries resolve via PATH lookup; scripts must exist as regular files.
func Check(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if req.Script {
			info, err := os.Stat(cmd)
			switch {
			case err != nil:
				status.Detail = fmt.Sprintf("script %q not found", cmd)
			case info.IsDir():
				status.Detail = fmt.Sprintf("script %q is a directory", cmd)
			default:
				status.Available = true
			}
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}
