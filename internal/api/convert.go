package api

import (
	"encoding/json"
	"slices"
	"time"

	"treadmark/internal/queue"
	"treadmark/internal/stage"
	"treadmark/internal/viewport"
	"treadmark/internal/workflow"
)

// FromQueueItem converts a queue record to its API representation.
func FromQueueItem(item *queue.Item) QueueItem {
	if item == nil {
		return QueueItem{}
	}

	dto := QueueItem{
		ID:             item.ID,
		ImageTitle:     item.ImageTitle,
		Label:          item.Label,
		SourcePath:     item.SourcePath,
		Status:         string(item.Status),
		Stage:          string(item.Stage),
		ProcessingLane: string(queue.LaneForItem(item)),
		Progress: QueueProgress{
			Stage:   item.ProgressStage,
			Percent: item.ProgressPercent,
			Message: item.ProgressMessage,
		},
		ErrorMessage:  item.ErrorMessage,
		MimeType:      item.MimeType,
		Width:         item.OriginalWidth,
		Height:        item.OriginalHeight,
		ImageSHA256:   item.ImageSHA256,
		OriginalFile:  item.OriginalFile,
		WorkingFile:   item.WorkingFile,
		MaskFile:      item.MaskFile,
		GrayscaleFile: item.GrayscaleFile,
		ExportedFile:  item.ExportedFile,
		NeedsReview:   item.NeedsReview,
		ReviewReason:  item.ReviewReason,
	}

	if !item.CreatedAt.IsZero() {
		dto.CreatedAt = item.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !item.UpdatedAt.IsZero() {
		dto.UpdatedAt = item.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	if raw := item.MetadataJSON; raw != "" {
		dto.Metadata = json.RawMessage(raw)
	}
	return dto
}

// FromQueueItems converts a slice of queue records into API DTOs.
func FromQueueItems(items []*queue.Item) []QueueItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]QueueItem, 0, len(items))
	for _, item := range items {
		out = append(out, FromQueueItem(item))
	}
	return out
}

// FromStatusSummary converts a workflow status summary to API payload.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	stats := make(map[string]int, len(summary.QueueStats))
	for status, count := range summary.QueueStats {
		stats[string(status)] = count
	}

	wf := WorkflowStatus{
		Running:     summary.Running,
		QueueStats:  stats,
		StageHealth: StageHealthSlice(summary.StageHealth),
	}

	if summary.LastError != "" {
		wf.LastError = summary.LastError
	}
	if summary.LastItem != nil {
		last := FromQueueItem(summary.LastItem)
		wf.LastItem = &last
	}
	return wf
}

// FromViewportMetrics converts letterbox metrics to API payload.
func FromViewportMetrics(m viewport.Metrics) ViewportMetrics {
	return ViewportMetrics{
		ImageWidth:    m.Image.Width,
		ImageHeight:   m.Image.Height,
		StageWidth:    m.Stage.Width,
		StageHeight:   m.Stage.Height,
		Scale:         m.Scale,
		OffsetX:       m.OffsetX,
		OffsetY:       m.OffsetY,
		DisplayWidth:  m.DisplayWidth,
		DisplayHeight: m.DisplayHeight,
	}
}

// MergeQueueStats produces a string-keyed representation of queue stats.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// StageHealthSlice converts a stage health map into a deterministic slice.
func StageHealthSlice(health map[string]stage.Health) []StageHealth {
	if len(health) == 0 {
		return nil
	}
	names := make([]string, 0, len(health))
	for name := range health {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]StageHealth, 0, len(names))
	for _, name := range names {
		h := health[name]
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
