package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"treadmark/internal/logging"
	"treadmark/internal/queue"
	"treadmark/internal/services"
)

func (m *Manager) handleStageFailure(ctx context.Context, stageName string, item *queue.Item, stageErr error) {
	base := m.logger
	if base == nil {
		base = logging.NewNop()
	}
	logger := m.stageLoggerForLane(ctx, nil, base, item).With(logging.String("component", "workflow-manager"))

	message := m.classifyStageFailure(stageName, stageErr)
	resolved := services.FailureStatus(stageErr)
	m.setItemFailureState(item, resolved, message)

	details := services.Details(stageErr)
	attrs := []logging.Attr{
		logging.String("resolved_status", string(resolved)),
		logging.String("error_message", strings.TrimSpace(message)),
		logging.Alert("stage_failure"),
		logging.String("error_detail", details.Detail),
		logging.Error(stageErr),
		logging.String(logging.FieldEventType, "stage_failure"),
	}
	logger.Error("stage failed", logging.Args(attrs...)...)

	if err := m.store.Update(ctx, item); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not update stage failure")
		} else {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
	}

	m.setLastItem(item)
	if resolved == queue.StatusNeedsReview {
		m.notifyReviewRequired(ctx, item)
	} else {
		m.notifyStageError(ctx, stageName, item, stageErr)
	}
	m.checkQueueCompletion(ctx)
}

func (m *Manager) classifyStageFailure(stageName string, stageErr error) string {
	if stageErr == nil {
		return m.getStageFailureMessage(stageName, "failed without error detail")
	}

	details := services.Details(stageErr)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = strings.TrimSpace(stageErr.Error())
	}
	if message == "" {
		message = m.getStageFailureMessage(stageName, "failed")
	}
	return message
}

func (m *Manager) getStageFailureMessage(stageName, defaultMsg string) string {
	if stageName != "" {
		return fmt.Sprintf("%s %s", stageName, defaultMsg)
	}
	return fmt.Sprintf("workflow %s", defaultMsg)
}

// setItemFailureState routes operator-fixable failures (bad uploads, missing
// configuration) to the review state instead of failed, so a retry is not
// attempted until someone intervenes.
func (m *Manager) setItemFailureState(item *queue.Item, status queue.Status, message string) {
	if status == queue.StatusNeedsReview {
		item.Status = queue.StatusNeedsReview
		item.NeedsReview = true
		item.ReviewReason = message
		item.ErrorMessage = message
		item.ProgressStage = "Review"
		item.ProgressPercent = 0
		item.ProgressMessage = message
		item.LastHeartbeat = nil
		return
	}
	item.SetFailed(message)
}
