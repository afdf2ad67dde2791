package logging

import (
	"context"
	"log/slog"

	"treadmark/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldItemID is the standardized structured logging key for queue item identifiers.
	FieldItemID = "item_id"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldLane is the standardized structured logging key for workflow lane names.
	FieldLane = "lane"
	// FieldWorker is the standardized structured logging key for external worker kinds.
	FieldWorker = "worker"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
	// FieldEventType is the standardized structured logging key for machine-readable event names.
	FieldEventType = "event_type"
	// FieldDecisionType tags log lines that record an automated decision.
	FieldDecisionType = "decision_type"
	// FieldErrorCode carries the stable error classification of a failure.
	FieldErrorCode = "error_code"
	// FieldErrorHint suggests the operator's next step after a failure.
	FieldErrorHint = "error_hint"
	// FieldErrorDetailPath points to an on-disk artifact with full failure detail.
	FieldErrorDetailPath = "error_detail_path"
	// FieldProgressStage names the sub-phase a long-running operation is in.
	FieldProgressStage = "progress_stage"
	// FieldProgressPercent carries fractional completion of a long-running operation.
	FieldProgressPercent = "progress_percent"
	// FieldProgressMessage carries the human-readable progress line.
	FieldProgressMessage = "progress_message"
	// FieldProgressETA carries the estimated completion time of a long-running operation.
	FieldProgressETA = "progress_eta"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.ItemIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldItemID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if lane, ok := services.LaneFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldLane, lane))
	}
	if worker, ok := services.WorkerFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldWorker, worker))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
