package api

import (
	"encoding/json"
	"time"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueItem describes a queue entry in a transport-friendly format.
type QueueItem struct {
	ID             int64           `json:"id"`
	ImageTitle     string          `json:"imageTitle"`
	Label          string          `json:"label,omitempty"`
	SourcePath     string          `json:"sourcePath"`
	Status         string          `json:"status"`
	Stage          string          `json:"stage,omitempty"`
	ProcessingLane string          `json:"processingLane"`
	Progress       QueueProgress   `json:"progress"`
	ErrorMessage   string          `json:"errorMessage"`
	CreatedAt      string          `json:"createdAt,omitempty"`
	UpdatedAt      string          `json:"updatedAt,omitempty"`
	MimeType       string          `json:"mimeType,omitempty"`
	Width          int             `json:"width,omitempty"`
	Height         int             `json:"height,omitempty"`
	ImageSHA256    string          `json:"imageSha256,omitempty"`
	OriginalFile   string          `json:"originalFile,omitempty"`
	WorkingFile    string          `json:"workingFile,omitempty"`
	MaskFile       string          `json:"maskFile,omitempty"`
	GrayscaleFile  string          `json:"grayscaleFile,omitempty"`
	ExportedFile   string          `json:"exportedFile,omitempty"`
	NeedsReview    bool            `json:"needsReview"`
	ReviewReason   string          `json:"reviewReason,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// QueueProgress captures stage progress information for a queue entry.
type QueueProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	QueueStats  map[string]int `json:"queueStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastItem    *QueueItem     `json:"lastItem,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

// DependencySummary aggregates dependency readiness for status output.
type DependencySummary struct {
	Total           int    `json:"total"`
	Available       int    `json:"available"`
	MissingRequired int    `json:"missingRequired"`
	MissingOptional int    `json:"missingOptional"`
	Severity        string `json:"severity"`
	Detail          string `json:"detail"`
}

// StatusLine is a labeled severity/detail pair rendered by status surfaces.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	QueueDBPath  string             `json:"queueDbPath"`
	LockFilePath string             `json:"lockFilePath"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// ViewportMetrics reports display mapping for an image within a stage.
type ViewportMetrics struct {
	ImageWidth    int     `json:"imageWidth"`
	ImageHeight   int     `json:"imageHeight"`
	StageWidth    int     `json:"stageWidth"`
	StageHeight   int     `json:"stageHeight"`
	Scale         float64 `json:"scale"`
	OffsetX       float64 `json:"offsetX"`
	OffsetY       float64 `json:"offsetY"`
	DisplayWidth  float64 `json:"displayWidth"`
	DisplayHeight float64 `json:"displayHeight"`
}

// QueueStatsResponse provides a normalized queue stats payload.
type QueueStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// QueueListResponse wraps a collection of queue items for API responses.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueItemResponse wraps a single queue item.
type QueueItemResponse struct {
	Item QueueItem `json:"item"`
}

// LogEvent is the transport form of a structured log line.
type LogEvent struct {
	Sequence  uint64            `json:"seq"`
	Timestamp time.Time         `json:"ts"`
	Level     string            `json:"level"`
	Message   string            `json:"msg"`
	Component string            `json:"component,omitempty"`
	Stage     string            `json:"stage,omitempty"`
	ItemID    int64             `json:"itemId,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Details   []DetailField     `json:"details,omitempty"`
}

// DetailField is a labeled detail bullet attached to a log event.
type DetailField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// LogStreamResponse carries a page of log events plus the next cursor.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}
