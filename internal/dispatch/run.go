package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"autoposter/internal/logging"
	"autoposter/internal/queue"
)

// Run recovers jobs left in_progress by a previous process and then ticks
// until ctx is cancelled. Storage errors never end the loop.
func (m *Manager) Run(ctx context.Context) error {
	if n, err := m.deps.Store.ResetStuckInProgress(ctx); err != nil {
		logging.WarnWithContext(m.logger, "failed to recover in-progress jobs", "recover_failed",
			zap.Error(err),
			zap.String(logging.FieldErrorHint, "check queue database access"),
		)
	} else if n > 0 {
		m.logger.Info("recovered in-progress jobs", zap.Int64(logging.FieldCount, n))
	}

	m.logger.Info("dispatcher started",
		zap.Int("batch_size", m.cfg.Dispatch.BatchSize),
		zap.Bool("force_dry_run", m.forceDryRun),
	)
	defer m.logger.Info("dispatcher stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		res, err := m.RunOnce(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			logging.ErrorWithContext(m.logger, "dispatch tick failed", "tick_failed",
				zap.Error(err),
				zap.String(logging.FieldErrorHint, "check queue database access"),
				zap.String(logging.FieldImpact, "tick retried after the error interval"),
			)
			m.sleep(ctx, m.cfg.ErrorRetryInterval())
		case res.Fetched == 0:
			m.sleep(ctx, m.cfg.IdleInterval())
		default:
			m.sleep(ctx, m.cfg.BusyInterval())
		}
	}
}

// RunOnce performs exactly one tick. A storage error aborts the tick after
// the job being processed is finalized as far as possible.
func (m *Manager) RunOnce(ctx context.Context) (TickResult, error) {
	var res TickResult
	jobs, err := m.deps.Store.DueJobs(ctx, queue.DueQuery{
		Limit: m.cfg.Dispatch.BatchSize,
		AsOf:  m.deps.Zone.Now(),
	})
	if err != nil {
		m.recordTick(res, err)
		return res, err
	}
	res.Fetched = len(jobs)

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		outcome, err := m.process(ctx, job)
		res.count(outcome)
		if err != nil {
			m.recordTick(res, err)
			return res, err
		}
	}

	if res.Fetched > 0 {
		m.logger.Info("dispatch tick",
			zap.Int("fetched", res.Fetched),
			zap.Int("delivered", res.Delivered),
			zap.Int("deferred", res.Deferred),
			zap.Int("retried", res.Retried),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped),
		)
	}
	m.recordTick(res, nil)
	return res, nil
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-m.wake:
	case <-timer.C:
	}
}
