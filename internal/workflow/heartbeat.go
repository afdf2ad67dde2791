package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"treadmark/internal/logging"
	"treadmark/internal/queue"
)

// HeartbeatMonitor manages item heartbeats and stale item reclamation.
type HeartbeatMonitor struct {
	store             *queue.Store
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:             store,
		logger:            logger,
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
	}
}

// ReclaimStaleItems identifies items that have stopped sending heartbeats and resets them.
func (h *HeartbeatMonitor) ReclaimStaleItems(ctx context.Context, logger *slog.Logger, statuses []queue.Status) error {
	if h.heartbeatTimeout <= 0 {
		return nil
	}
	if len(statuses) == 0 {
		return nil
	}
	cutoff := time.Now().Add(-h.heartbeatTimeout)
	reclaimed, err := h.store.ReclaimStaleProcessing(ctx, cutoff, statuses...)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logger.Info("reclaimed stale items", logging.Int64("count", reclaimed))
	}
	return nil
}

// StartLoop runs a heartbeat updater for a specific item until context cancellation.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, itemID int64) {
	defer wg.Done()
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String("component", "workflow-heartbeat")))
	sampler := logging.NewProgressSampler(5)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, itemID); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Info("daemon shutting down, heartbeat update cancelled")
				} else {
					logger.Warn("heartbeat update failed", logging.Error(err))
				}
				continue
			}
			h.logSampledProgress(ctx, logger, sampler, itemID)
		}
	}
}

// logSampledProgress reports item progress on heartbeat ticks, suppressing
// repeats until the stage or percent bucket changes.
func (h *HeartbeatMonitor) logSampledProgress(ctx context.Context, logger *slog.Logger, sampler *logging.ProgressSampler, itemID int64) {
	item, err := h.store.GetByID(ctx, itemID)
	if err != nil || item == nil {
		return
	}
	if !sampler.ShouldLog(item.ProgressPercent, item.ProgressStage, item.ProgressMessage) {
		return
	}
	attrs := []logging.Attr{logging.Int64("item_id", itemID)}
	if item.ProgressPercent >= 0 {
		attrs = append(attrs, logging.Float64("progress_percent", item.ProgressPercent))
	}
	if stage := item.ProgressStage; stage != "" {
		attrs = append(attrs, logging.String("progress_stage", stage))
	}
	if msg := item.ProgressMessage; msg != "" {
		attrs = append(attrs, logging.String("progress_message", msg))
	}
	logger.Info("item progress", logging.Args(attrs...)...)
}
