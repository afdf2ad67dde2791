package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending     Status = "pending"
	StatusIngesting   Status = "ingesting"
	StatusEditing     Status = "editing"
	StatusExporting   Status = "exporting"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusNeedsReview Status = "review"
)

// UserStopReason is the review reason set when a user explicitly stops an item.
const UserStopReason = "Stop requested by user"

// DaemonStopReason is the error message set when items are failed due to daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusIngesting,
	StatusEditing,
	StatusExporting,
	StatusCompleted,
	StatusFailed,
	StatusNeedsReview,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// processingStatuses are the machine-driven states that carry a heartbeat.
// Editing is user-driven and never reclaimed by heartbeat expiry.
var processingStatuses = map[Status]struct{}{
	StatusIngesting: {},
	StatusExporting: {},
}

type statusTransition struct {
	from Status
	to   Status
}

var stageRollbackTransitions = []statusTransition{
	{from: StatusIngesting, to: StatusPending},
	{from: StatusExporting, to: StatusEditing},
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Editing    int
	Review     int
	Failed     int
	Completed  int
}

// Item represents a queue item persisted in SQLite.
type Item struct {
	ID              int64
	SourcePath      string
	ImageTitle      string
	Label           string
	Status          Status
	Stage           Stage
	MimeType        string
	OriginalWidth   int
	OriginalHeight  int
	ImageSHA256     string
	OriginalFile    string
	WorkingFile     string
	MaskFile        string
	GrayscaleFile   string
	ExportedFile    string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	SessionJSON     string
	MetadataJSON    string
	LastHeartbeat   *time.Time
	NeedsReview     bool
	ReviewReason    string
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight machine operation.
func (i Item) IsProcessing() bool {
	_, ok := processingStatuses[i.Status]
	return ok
}

// IsProcessingStatus reports whether a status reflects an in-flight machine operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsUserStopReason reports whether a review reason represents a user-initiated stop.
func IsUserStopReason(reason string) bool {
	return strings.EqualFold(strings.TrimSpace(reason), UserStopReason)
}

// InitProgress resets progress fields for a new stage.
// If ProgressStage is currently empty, it is set to the provided stage value;
// otherwise the existing stage is preserved (to support resume scenarios).
// ProgressMessage is set to message, ProgressPercent is reset to 0, and
// ErrorMessage is cleared.
func (i *Item) InitProgress(stage, message string) {
	if i.ProgressStage == "" {
		i.ProgressStage = stage
	}
	i.ProgressMessage = message
	i.ProgressPercent = 0
	i.ErrorMessage = ""
}

// SetProgress updates all three progress fields atomically.
// Use this instead of setting ProgressStage, ProgressPercent, and ProgressMessage individually.
func (i *Item) SetProgress(stage, message string, percent float64) {
	i.ProgressStage = stage
	i.ProgressMessage = message
	i.ProgressPercent = percent
}

// SetProgressComplete sets progress to 100% with the given stage and message.
// Convenience method for stage completion.
func (i *Item) SetProgressComplete(stage, message string) {
	i.SetProgress(stage, message, 100)
}

// SetFailed marks the item as failed with the given error message.
// Clears heartbeat and sets progress fields appropriately.
func (i *Item) SetFailed(message string) {
	i.Status = StatusFailed
	i.ErrorMessage = message
	i.ProgressPercent = 0
	i.ProgressMessage = message
	i.LastHeartbeat = nil
	i.ProgressStage = "Failed"
}

// IsInWorkflow returns true when an item is actively progressing (or queued
// to progress) through the pipeline. Re-uploading an image whose item is out
// of workflow starts a fresh annotation run.
func (i Item) IsInWorkflow() bool {
	switch i.Status {
	case StatusPending, StatusIngesting, StatusEditing, StatusExporting:
		return true
	default:
		return false
	}
}

// DisplayStage returns the stage identifier used in API/CLI presentation.
// Items in the interactive editing state surface the pipeline stage the
// operator is on rather than the coarse queue status.
func (i Item) DisplayStage() string {
	switch i.Status {
	case StatusEditing:
		if i.Stage != "" {
			return string(i.Stage)
		}
		return string(StatusEditing)
	case StatusPending:
		return "queued"
	case StatusCompleted:
		return "done"
	default:
		return string(i.Status)
	}
}

// ProcessingLane partitions workflow into the autonomous ends of the pipeline
// and the operator-driven middle.
type ProcessingLane string

const (
	LaneIngest      ProcessingLane = "ingest"
	LaneInteractive ProcessingLane = "interactive"
	LaneExport      ProcessingLane = "export"
)

// LaneForItem maps a queue item to its processing lane for observability purposes.
func LaneForItem(item *Item) ProcessingLane {
	if item == nil {
		return LaneIngest
	}
	switch item.Status {
	case StatusPending, StatusIngesting:
		return LaneIngest
	case StatusEditing, StatusNeedsReview:
		return LaneInteractive
	case StatusExporting, StatusCompleted:
		return LaneExport
	case StatusFailed:
		if item.WorkingFile != "" {
			return LaneInteractive
		}
		return LaneIngest
	default:
		return LaneIngest
	}
}
