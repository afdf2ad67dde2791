package main

import "treadmark/internal/config"

// resolveLogLevel picks the effective log level, forcing debug output
// whenever diagnostic mode is requested.
func resolveLogLevel(cfg *config.Config, diagnostic bool) string {
	if diagnostic {
		return "debug"
	}
	if cfg == nil {
		return "info"
	}
	return cfg.Logging.Level
}
