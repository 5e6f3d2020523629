package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"autoposter/internal/clock"
	"autoposter/internal/config"
	"autoposter/internal/delivery"
	"autoposter/internal/logging"
	"autoposter/internal/notifications"
	"autoposter/internal/queue"
	"autoposter/internal/quota"
)

// Store is the job store surface the dispatcher drives.
type Store interface {
	DueJobs(ctx context.Context, q queue.DueQuery) ([]*queue.Job, error)
	MarkInProgress(ctx context.Context, id int64) (bool, error)
	MarkDone(ctx context.Context, id int64, mediaID string, postedAt time.Time) error
	Reschedule(ctx context.Context, id int64, eta time.Time, reason string) error
	RescheduleAfterFailure(ctx context.Context, id int64, eta time.Time, errText string) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	ResetStuckInProgress(ctx context.Context) (int64, error)
}

// QuotaChecker decides whether a job may post now.
type QuotaChecker interface {
	Check(ctx context.Context, client string, contentType queue.ContentType) (quota.Decision, error)
}

// Deps are the collaborators a Manager needs. Live may be nil when no
// uploader is configured; live jobs are then retried until one is.
type Deps struct {
	Store    Store
	Quota    QuotaChecker
	Zone     *clock.Zone
	DryRun   delivery.Deliverer
	Live     delivery.Deliverer
	Notifier notifications.Service
}

// Option configures optional Manager behaviour.
type Option func(*Manager)

// WithForceDryRun exports every job even for clients in live mode.
func WithForceDryRun(force bool) Option {
	return func(m *Manager) { m.forceDryRun = force }
}

// TickResult counts what one tick did.
type TickResult struct {
	Fetched   int
	Delivered int
	Deferred  int
	Retried   int
	Failed    int
	Skipped   int
}

func (r *TickResult) add(o TickResult) {
	r.Fetched += o.Fetched
	r.Delivered += o.Delivered
	r.Deferred += o.Deferred
	r.Retried += o.Retried
	r.Failed += o.Failed
	r.Skipped += o.Skipped
}

// Manager owns the dispatcher loop.
type Manager struct {
	cfg         *config.Config
	deps        Deps
	logger      *zap.Logger
	forceDryRun bool
	wake        chan struct{}

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	lastJob  *queue.Job
	lastTick time.Time
	totals   TickResult
}

// NewManager constructs a dispatcher.
func NewManager(cfg *config.Config, deps Deps, logger *zap.Logger, opts ...Option) *Manager {
	if deps.Zone == nil {
		deps.Zone = clock.NewZone(cfg.Location(), nil)
	}
	if deps.DryRun == nil {
		deps.DryRun = delivery.NewExporter(cfg, logger)
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(cfg)
	}
	m := &Manager{
		cfg:    cfg,
		deps:   deps,
		logger: logging.NewComponentLogger(logger, "dispatch"),
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wake interrupts the current sleep so the next tick starts now. It never blocks.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Start runs the loop in the background until Stop or ctx cancellation.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("dispatcher already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		_ = m.Run(runCtx)
	}()
	return nil
}

// Stop cancels the loop and waits for the in-flight job to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// StatusSummary is a snapshot of dispatcher state.
type StatusSummary struct {
	Running   bool
	LastError string
	LastJob   *queue.Job
	LastTick  time.Time
	Totals    TickResult
}

// Status returns the latest dispatcher information.
func (m *Manager) Status() StatusSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summary := StatusSummary{Running: m.running, LastTick: m.lastTick, Totals: m.totals}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastJob != nil {
		job := *m.lastJob
		summary.LastJob = &job
	}
	return summary
}

func (m *Manager) recordTick(res TickResult, err error) {
	m.mu.Lock()
	m.lastTick = m.deps.Zone.Now()
	m.lastErr = err
	m.totals.add(res)
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *queue.Job) {
	m.mu.Lock()
	copy := *job
	m.lastJob = &copy
	m.mu.Unlock()
}
