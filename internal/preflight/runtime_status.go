package preflight

import (
	"strings"

	"treadmark/internal/config"
)

// CheckNotificationsFromConfig evaluates ntfy notification status from config alone.
func CheckNotificationsFromConfig(cfg *config.Config) Result {
	const name = "Notifications"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return Result{Name: name, Detail: "Disabled"}
	}
	return Result{Name: name, Passed: true, Detail: "ntfy topic " + topic}
}
