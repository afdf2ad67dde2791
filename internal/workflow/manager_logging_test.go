package workflow

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"treadmark/internal/config"
	"treadmark/internal/services"
)

func TestStageOverrideLevel(t *testing.T) {
	overrides := map[string]string{" Ingest ": " warn ", "export": "debug"}

	if got := stageOverrideLevel(overrides, "ingest"); got != "warn" {
		t.Fatalf("expected case-insensitive match, got %q", got)
	}
	if got := stageOverrideLevel(overrides, "EXPORT"); got != "debug" {
		t.Fatalf("expected export override, got %q", got)
	}
	if got := stageOverrideLevel(overrides, "annotate"); got != "" {
		t.Fatalf("expected no override for unlisted stage, got %q", got)
	}
	if got := stageOverrideLevel(nil, "ingest"); got != "" {
		t.Fatalf("expected empty result for nil overrides, got %q", got)
	}
}

func TestParseStageLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"unknown": slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseStageLevel(input); got != want {
			t.Errorf("parseStageLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestStageLoggerHonorsLevelOverride(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.StageOverrides = map[string]string{"ingest": "warn"}

	base := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m := &Manager{cfg: &cfg, logger: base}

	quieted := m.stageLoggerForLane(services.WithStage(context.Background(), "ingest"), nil, base, nil)
	if quieted.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected info suppressed for overridden stage")
	}
	if !quieted.Enabled(context.Background(), slog.LevelWarn) {
		t.Fatal("expected warn to remain enabled for overridden stage")
	}

	plain := m.stageLoggerForLane(services.WithStage(context.Background(), "export"), nil, base, nil)
	if !plain.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected info enabled without an override")
	}
}
