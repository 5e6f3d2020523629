package queue

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MarkInProgress moves a queued job to in_progress and counts the attempt.
// It returns false without error when the job is not currently queued, so a
// second dispatcher cannot pick up the same job twice.
func (s *Store) MarkInProgress(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs
         SET status = ?, attempts = attempts + 1, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusInProgress,
		formatTime(time.Now()),
		id,
		StatusQueued,
	)
	if err != nil {
		return false, fmt.Errorf("mark job in progress: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// MarkDone records a successful delivery and stamps posted_at.
func (s *Store) MarkDone(ctx context.Context, id int64, mediaID string, postedAt time.Time) error {
	if postedAt.IsZero() {
		postedAt = time.Now()
	}
	return s.transition(ctx, "mark job done",
		`UPDATE jobs
         SET status = ?, posted_at = ?, media_id = ?, last_error = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusDone,
		formatTime(postedAt),
		nullableString(strings.TrimSpace(mediaID)),
		formatTime(time.Now()),
		id,
		StatusInProgress,
	)
}

// Reschedule puts a queued or in-progress job back in the queue at eta with
// a diagnostic reason. It is used for quota deferral.
func (s *Store) Reschedule(ctx context.Context, id int64, eta time.Time, reason string) error {
	return s.transition(ctx, "reschedule job",
		`UPDATE jobs
         SET status = ?, eta = ?, reschedule_reason = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusQueued,
		formatTime(eta),
		nullableString(strings.TrimSpace(reason)),
		formatTime(time.Now()),
		id,
		StatusQueued,
		StatusInProgress,
	)
}

// RescheduleAfterFailure re-queues a job after a failed delivery, recording
// the error both as the reschedule reason and as last_error.
func (s *Store) RescheduleAfterFailure(ctx context.Context, id int64, eta time.Time, errText string) error {
	errText = strings.TrimSpace(errText)
	return s.transition(ctx, "reschedule failed job",
		`UPDATE jobs
         SET status = ?, eta = ?, reschedule_reason = ?, last_error = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusQueued,
		formatTime(eta),
		nullableString(errText),
		nullableString(errText),
		formatTime(time.Now()),
		id,
		StatusQueued,
		StatusInProgress,
	)
}

// MarkFailed moves a job to the terminal failed state. Only errors that will
// not resolve by waiting end up here.
func (s *Store) MarkFailed(ctx context.Context, id int64, reason string) error {
	return s.transition(ctx, "mark job failed",
		`UPDATE jobs
         SET status = ?, last_error = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusFailed,
		nullableString(strings.TrimSpace(reason)),
		formatTime(time.Now()),
		id,
		StatusQueued,
		StatusInProgress,
	)
}

func (s *Store) transition(ctx context.Context, op, query string, args ...any) error {
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, ErrInvalidTransition)
	}
	return nil
}
