package queue

import (
	"context"
	"fmt"
	"time"
)

// ResetStuckProcessing resets items in machine-driven states back to the
// start of their current stage. Runs at daemon startup so a crash mid-ingest
// or mid-export never strands an item.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET status = CASE status
             WHEN ? THEN ?
             WHEN ? THEN ?
             ELSE status
         END,
             progress_stage = 'Reset from stuck processing',
             progress_percent = 0, progress_message = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE status IN (?, ?)`,
		StatusIngesting, StatusPending,
		StatusExporting, StatusEditing,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusIngesting,
		StatusExporting,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck items: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight item.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE queue_items SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing returns items stuck in machine-driven states back to
// the start of their current stage when heartbeats expire. When statuses are
// provided only those states are considered; otherwise every processing state
// is eligible.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time, statuses ...Status) (int64, error) {
	eligible := statuses
	if len(eligible) == 0 {
		eligible = []Status{StatusIngesting, StatusExporting}
	}
	args := make([]any, 0, len(eligible)+6)
	args = append(args,
		StatusIngesting, StatusPending,
		StatusExporting, StatusEditing,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	for _, status := range eligible {
		args = append(args, status)
	}
	args = append(args, cutoff.UTC().Format(time.RFC3339Nano))

	query := `UPDATE queue_items
        SET status = CASE status
            WHEN ? THEN ?
            WHEN ? THEN ?
            ELSE status
        END,
            progress_stage = 'Reclaimed from stale processing',
            progress_percent = 0, progress_message = NULL, last_heartbeat = NULL, updated_at = ?
        WHERE status IN (` + makePlaceholders(len(eligible)) + `) AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`

	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale items: %w", err)
	}
	return res.RowsAffected()
}

// StopItems parks in-workflow items in the review state with the user stop
// reason. Completed and failed items are left alone; the heartbeat is cleared
// so a stopped in-flight item is never reclaimed back into processing.
func (s *Store) StopItems(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+7)
	args = append(args,
		StatusNeedsReview,
		UserStopReason,
		UserStopReason,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, StatusPending, StatusIngesting, StatusEditing, StatusExporting)
	query := `UPDATE queue_items
        SET status = ?, needs_review = 1, review_reason = ?,
            progress_stage = 'Stopped', progress_percent = 0, progress_message = ?,
            last_heartbeat = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status IN (?, ?, ?, ?)`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("stop items: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed items back to pending for reprocessing.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE queue_items
            SET status = ?, progress_stage = 'Retry requested', progress_percent = 0,
                progress_message = NULL, error_message = NULL, updated_at = ?
            WHERE status = ?`,
			StatusPending,
			time.Now().UTC().Format(time.RFC3339Nano),
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed items: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusPending, time.Now().UTC().Format(time.RFC3339Nano))
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE queue_items
        SET status = ?, progress_stage = 'Retry requested', progress_percent = 0,
            progress_message = NULL, error_message = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = '` + string(StatusFailed) + `'`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected items: %w", err)
	}
	return res.RowsAffected()
}
