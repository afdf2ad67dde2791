package api

import (
	"testing"
	"time"

	"treadmark/internal/queue"
	"treadmark/internal/stage"
	"treadmark/internal/viewport"
	"treadmark/internal/workflow"
)

func TestFromQueueItemCarriesArtifacts(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	item := &queue.Item{
		ID:             7,
		ImageTitle:     "sidewall-7",
		Label:          "defective",
		SourcePath:     "/uploads/sidewall-7.jpg",
		Status:         queue.StatusEditing,
		Stage:          queue.StageAnnotate,
		MimeType:       "image/jpeg",
		OriginalWidth:  1280,
		OriginalHeight: 960,
		ImageSHA256:    "abc123",
		OriginalFile:   "/staging/items/7/original.jpg",
		WorkingFile:    "/staging/items/7/working.png",
		MaskFile:       "/staging/items/7/mask.png",
		CreatedAt:      now,
		UpdatedAt:      now,
		MetadataJSON:   `{"title":"sidewall-7"}`,
	}

	dto := FromQueueItem(item)
	if dto.ID != 7 || dto.ImageTitle != "sidewall-7" || dto.Label != "defective" {
		t.Fatalf("identity fields not converted: %#v", dto)
	}
	if dto.Stage != string(queue.StageAnnotate) {
		t.Fatalf("unexpected stage: %q", dto.Stage)
	}
	if dto.Width != 1280 || dto.Height != 960 {
		t.Fatalf("dimensions not converted: %dx%d", dto.Width, dto.Height)
	}
	if dto.MaskFile == "" || dto.WorkingFile == "" || dto.OriginalFile == "" {
		t.Fatalf("artifact paths missing: %#v", dto)
	}
	if dto.CreatedAt == "" || dto.UpdatedAt == "" {
		t.Fatalf("timestamps not formatted")
	}
	if len(dto.Metadata) == 0 {
		t.Fatalf("metadata not carried")
	}
	if dto.ProcessingLane == "" {
		t.Fatalf("processing lane missing")
	}
}

func TestFromQueueItemNil(t *testing.T) {
	dto := FromQueueItem(nil)
	if dto.ID != 0 || dto.Status != "" {
		t.Fatalf("expected zero DTO for nil item: %#v", dto)
	}
}

func TestFromStatusSummary(t *testing.T) {
	summary := workflow.StatusSummary{
		Running:   true,
		LastError: "worker exit 2",
		LastItem:  &queue.Item{ID: 3, ImageTitle: "shoulder-3", Status: queue.StatusFailed},
		QueueStats: map[queue.Status]int{
			queue.StatusPending: 4,
		},
		StageHealth: map[string]stage.Health{
			"ingest": {Name: "ingest", Ready: true},
			"export": {Name: "export", Ready: false, Detail: "dataset dir missing"},
		},
	}

	wf := FromStatusSummary(summary)
	if !wf.Running {
		t.Fatalf("running flag lost")
	}
	if wf.QueueStats["pending"] != 4 {
		t.Fatalf("queue stats not merged: %#v", wf.QueueStats)
	}
	if wf.LastItem == nil || wf.LastItem.ID != 3 {
		t.Fatalf("last item not converted")
	}
	if len(wf.StageHealth) != 2 {
		t.Fatalf("unexpected stage health count: %d", len(wf.StageHealth))
	}
	// StageHealthSlice sorts by name.
	if wf.StageHealth[0].Name != "export" || wf.StageHealth[1].Name != "ingest" {
		t.Fatalf("stage health order unstable: %#v", wf.StageHealth)
	}
	if wf.StageHealth[0].Detail != "dataset dir missing" {
		t.Fatalf("stage health detail lost")
	}
}

func TestFromViewportMetrics(t *testing.T) {
	metrics, err := viewport.Compute(viewport.Size{Width: 2000, Height: 1000}, viewport.Size{Width: 800, Height: 600})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	dto := FromViewportMetrics(metrics)
	if dto.ImageWidth != 2000 || dto.StageWidth != 800 {
		t.Fatalf("sizes not converted: %#v", dto)
	}
	if dto.Scale != metrics.Scale || dto.OffsetY != metrics.OffsetY {
		t.Fatalf("mapping values not converted: %#v", dto)
	}
}

func TestFormatTime(t *testing.T) {
	if got := FormatTime(time.Time{}); got != "" {
		t.Fatalf("zero time should format empty, got %q", got)
	}
	stamp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := FormatTime(stamp); got != "2026-01-02T03:04:05.000Z" {
		t.Fatalf("unexpected formatting: %q", got)
	}
}
