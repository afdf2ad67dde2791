package main

import (
	"testing"

	"treadmark/internal/config"
)

func TestResolveLogLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "warn"

	if got := resolveLogLevel(&cfg, false); got != "warn" {
		t.Fatalf("expected configured level, got %q", got)
	}
	if got := resolveLogLevel(&cfg, true); got != "debug" {
		t.Fatalf("diagnostic mode must force debug, got %q", got)
	}
	if got := resolveLogLevel(nil, false); got != "info" {
		t.Fatalf("nil config must default to info, got %q", got)
	}
}
