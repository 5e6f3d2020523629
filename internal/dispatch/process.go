package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"autoposter/internal/delivery"
	"autoposter/internal/logging"
	"autoposter/internal/queue"
)

// Mode names recorded in logs.
const (
	ModeLive   = "live"
	ModeDryRun = "dry-run"
)

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeDelivered
	outcomeDeferred
	outcomeRetried
	outcomeFailed
)

func (r *TickResult) count(o outcome) {
	switch o {
	case outcomeDelivered:
		r.Delivered++
	case outcomeDeferred:
		r.Deferred++
	case outcomeRetried:
		r.Retried++
	case outcomeFailed:
		r.Failed++
	default:
		r.Skipped++
	}
}

// process handles one due job. The returned error is always a storage
// error; delivery failures are recorded on the job.
func (m *Manager) process(ctx context.Context, job *queue.Job) (outcome, error) {
	logger := m.logger.With(
		zap.Int64(logging.FieldJobID, job.ID),
		zap.String(logging.FieldClient, job.Client),
		zap.String(logging.FieldContentType, string(job.ContentType)),
	)

	decision, err := m.deps.Quota.Check(ctx, job.Client, job.ContentType)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("quota check for job %d: %w", job.ID, err)
	}
	if !decision.Allowed {
		eta := m.deps.Zone.NextDayAt(m.cfg.Schedule.QuotaRetryHour, m.deps.Zone.Now())
		if err := m.deps.Store.Reschedule(ctx, job.ID, eta, decision.Reason); err != nil {
			if errors.Is(err, queue.ErrInvalidTransition) {
				return outcomeSkipped, nil
			}
			return outcomeSkipped, err
		}
		logger.Info("quota deferred",
			zap.String(logging.FieldReason, decision.Reason),
			zap.Time(logging.FieldETA, eta),
		)
		return outcomeDeferred, nil
	}

	claimed, err := m.deps.Store.MarkInProgress(ctx, job.ID)
	if err != nil {
		return outcomeSkipped, err
	}
	if !claimed {
		logger.Debug("job no longer queued; skipping")
		return outcomeSkipped, nil
	}
	attempt := job.Attempts + 1

	// The claimed job is finished even when shutdown starts mid-delivery.
	workCtx := context.WithoutCancel(ctx)
	deliverer, mode := m.deliverer(decision.Live)
	logger = logger.With(zap.String(logging.FieldMode, mode), zap.Int(logging.FieldAttempt, attempt))

	var mediaID string
	if deliverer == nil {
		err = errors.WithHint(delivery.ErrNotConfigured, "set delivery.command to post live")
	} else {
		mediaID, err = deliverer.Deliver(workCtx, delivery.Request{
			JobID:       job.ID,
			Client:      job.Client,
			Path:        job.Path,
			Caption:     job.Caption,
			ContentType: job.ContentType,
		})
	}
	m.setLastJob(job)

	if err == nil {
		if err := m.deps.Store.MarkDone(workCtx, job.ID, mediaID, m.deps.Zone.Now()); err != nil {
			return outcomeSkipped, err
		}
		logger.Info("job delivered", zap.String(logging.FieldMediaID, mediaID))
		return outcomeDelivered, nil
	}

	errText := strings.TrimSpace(err.Error())
	hint := delivery.Hint(err)
	if delivery.IsPermanent(err) {
		if err := m.deps.Store.MarkFailed(workCtx, job.ID, errText); err != nil {
			return outcomeSkipped, err
		}
		logging.ErrorWithContext(logger, "delivery failed permanently", "delivery_failed",
			zap.Error(err),
			zap.String(logging.FieldErrorHint, hint),
			zap.String(logging.FieldImpact, "job marked failed; use queue retry after fixing it"),
		)
		m.notifyFailed(workCtx, logger, job, errText)
		return outcomeFailed, nil
	}

	if limit := m.cfg.Dispatch.MaxAttempts; limit > 0 && attempt >= limit {
		reason := fmt.Sprintf("gave up after %d attempts: %s", attempt, errText)
		if err := m.deps.Store.MarkFailed(workCtx, job.ID, reason); err != nil {
			return outcomeSkipped, err
		}
		logging.ErrorWithContext(logger, "delivery attempts exhausted", "delivery_exhausted",
			zap.Error(err),
			zap.String(logging.FieldErrorHint, hint),
			zap.String(logging.FieldImpact, "job marked failed; use queue retry to try again"),
		)
		m.notifyFailed(workCtx, logger, job, reason)
		return outcomeFailed, nil
	}

	eta := m.deps.Zone.Now().Add(m.cfg.FailureBackoff())
	if err := m.deps.Store.RescheduleAfterFailure(workCtx, job.ID, eta, errText); err != nil {
		return outcomeSkipped, err
	}
	logging.WarnWithContext(logger, "delivery failed; will retry", "delivery_retry",
		zap.Error(err),
		zap.Time(logging.FieldETA, eta),
		zap.String(logging.FieldErrorHint, hint),
	)
	return outcomeRetried, nil
}

func (m *Manager) deliverer(live bool) (delivery.Deliverer, string) {
	if live && !m.forceDryRun {
		return m.deps.Live, ModeLive
	}
	return m.deps.DryRun, ModeDryRun
}

func (m *Manager) notifyFailed(ctx context.Context, logger *zap.Logger, job *queue.Job, reason string) {
	if err := m.deps.Notifier.NotifyJobFailed(ctx, job.ID, job.Client, job.Path, reason); err != nil {
		logger.Warn("failure notification not sent", zap.Error(err))
	}
}
