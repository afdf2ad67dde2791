package daemon

import (
	"context"

	"treadmark/internal/preflight"
)

// dependencies resolves external worker availability for status reporting.
func (d *Daemon) dependencies(ctx context.Context) []DependencyStatus {
	if d.cfg == nil {
		return nil
	}
	checks := preflight.CheckSystemDeps(ctx, d.cfg)
	out := make([]DependencyStatus, 0, len(checks))
	for _, check := range checks {
		out = append(out, DependencyStatus{
			Name:        check.Name,
			Command:     check.Command,
			Description: check.Description,
			Optional:    check.Optional,
			Available:   check.Available,
			Detail:      check.Detail,
		})
	}
	return out
}
