package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestStreamHandlerWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)

	base := slog.NewTextHandler(discardWriter{}, nil)
	handler := newStreamHandler(base, hub)

	logger := slog.New(handler).With(slog.Int64("item_id", 42))

	logger.Info("test message", slog.String("extra", "value"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	if events[0].ItemID != 42 {
		t.Errorf("expected item_id=42, got %d", events[0].ItemID)
	}
	if events[0].Message != "test message" {
		t.Errorf("expected message='test message', got %q", events[0].Message)
	}
}

func TestStreamHandlerNestedWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	base := slog.NewTextHandler(discardWriter{}, nil)
	handler := newStreamHandler(base, hub)

	logger := slog.New(handler).
		With(slog.String("lane", "interactive")).
		With(slog.Int64("item_id", 99)).
		With(slog.String("stage", "annotate"))

	logger.Info("segmentation progress")

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	evt := events[0]
	if evt.ItemID != 99 {
		t.Errorf("expected item_id=99, got %d", evt.ItemID)
	}
	if evt.Lane != "interactive" {
		t.Errorf("expected lane='interactive', got %q", evt.Lane)
	}
	if evt.Stage != "annotate" {
		t.Errorf("expected stage='annotate', got %q", evt.Stage)
	}
}

func TestStreamHandlerCallSiteOverridesWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	base := slog.NewTextHandler(discardWriter{}, nil)
	handler := newStreamHandler(base, hub)

	logger := slog.New(handler).With(slog.String("stage", "preprocess"))

	logger.Info("message", slog.String("stage", "annotate"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	if events[0].Stage != "annotate" {
		t.Errorf("expected stage='annotate', got %q", events[0].Stage)
	}
}

func TestStreamHandlerNilHub(t *testing.T) {
	base := slog.NewTextHandler(discardWriter{}, nil)
	handler := newStreamHandler(base, nil)

	if handler != base {
		t.Errorf("expected base handler when hub is nil")
	}
}

func TestStreamHandlerEnabled(t *testing.T) {
	hub := NewStreamHub(100)
	base := slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	handler := newStreamHandler(base, hub)

	if handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected INFO to be disabled when base level is WARN")
	}
	if !handler.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("expected WARN to be enabled when base level is WARN")
	}
}

func TestStreamHubFetchSince(t *testing.T) {
	hub := NewStreamHub(4)
	for i := 0; i < 6; i++ {
		hub.Publish(LogEvent{Message: "line"})
	}

	events, next, err := hub.Fetch(context.Background(), 4, 10, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events after sequence 4, got %d", len(events))
	}
	if next != 6 {
		t.Fatalf("expected next sequence 6, got %d", next)
	}
	if first := hub.FirstSequence(); first != 3 {
		t.Fatalf("expected oldest buffered sequence 3, got %d", first)
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
