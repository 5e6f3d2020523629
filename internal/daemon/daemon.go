package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"autoposter/internal/config"
	"autoposter/internal/dispatch"
	"autoposter/internal/ingest"
	"autoposter/internal/liveness"
	"autoposter/internal/logging"
	"autoposter/internal/queue"
)

// ErrAlreadyRunning is returned when another process holds a loop's lock.
var ErrAlreadyRunning = errors.New("another autoposter instance is already running this loop")

type loop struct {
	name   string
	lock   *flock.Flock
	marker string
}

// Daemon runs the watcher and/or dispatcher under their locks.
type Daemon struct {
	cfg        *config.Config
	logger     *zap.Logger
	store      *queue.Store
	watcher    *ingest.Watcher
	dispatcher *dispatch.Manager
	runID      string

	loops []*loop

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	watchErr error
}

// Status represents daemon runtime information.
type Status struct {
	Running     bool
	RunID       string
	Dispatcher  *dispatch.StatusSummary
	Queue       queue.HealthSummary
	QueueDBPath string
	Loops       []liveness.State
	WatchError  string
}

// New constructs a daemon. Either loop may be nil, but not both.
func New(cfg *config.Config, store *queue.Store, logger *zap.Logger, watcher *ingest.Watcher, dispatcher *dispatch.Manager, runID string) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}
	if watcher == nil && dispatcher == nil {
		return nil, errors.New("daemon requires a watcher or a dispatcher")
	}
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		watcher:    watcher,
		dispatcher: dispatcher,
		runID:      runID,
	}
	if watcher != nil {
		d.loops = append(d.loops, d.newLoop(liveness.Watcher))
	}
	if dispatcher != nil {
		d.loops = append(d.loops, d.newLoop(liveness.Dispatcher))
	}
	return d, nil
}

func (d *Daemon) newLoop(name string) *loop {
	return &loop{name: name, lock: flock.New(d.cfg.LockPath(name)), marker: d.cfg.MarkerPath(name)}
}

// Start acquires every loop lock, writes the markers and launches the loops.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	acquired := make([]*loop, 0, len(d.loops))
	release := func() {
		for _, l := range acquired {
			_ = liveness.Remove(l.marker)
			_ = l.lock.Unlock()
		}
	}
	for _, l := range d.loops {
		ok, err := l.lock.TryLock()
		if err != nil {
			release()
			return fmt.Errorf("acquire %s lock: %w", l.name, err)
		}
		if !ok {
			release()
			return fmt.Errorf("%s: %w", l.name, ErrAlreadyRunning)
		}
		acquired = append(acquired, l)
		if err := liveness.Write(l.marker, d.runID); err != nil {
			release()
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if d.dispatcher != nil {
		if err := d.dispatcher.Start(runCtx); err != nil {
			cancel()
			release()
			return fmt.Errorf("start dispatcher: %w", err)
		}
	}
	if d.watcher != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.watcher.Run(runCtx); err != nil {
				d.mu.Lock()
				d.watchErr = err
				d.mu.Unlock()
				logging.ErrorWithContext(d.logger, "watcher stopped with error", "watcher_failed",
					zap.Error(err),
					zap.String(logging.FieldErrorHint, "check the content directory exists and inotify limits"),
					zap.String(logging.FieldImpact, "new files are not queued until restart"),
				)
			}
		}()
	}

	d.running.Store(true)
	names := make([]string, 0, len(d.loops))
	for _, l := range d.loops {
		names = append(names, l.name)
	}
	d.logger.Info("autoposter daemon started",
		zap.Strings("loops", names),
		zap.String(logging.FieldRunID, d.runID),
	)
	return nil
}

// Stop stops both loops, waiting for in-flight work, and releases the locks.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.dispatcher != nil {
		d.dispatcher.Stop()
	}
	d.wg.Wait()
	for _, l := range d.loops {
		if err := liveness.Remove(l.marker); err != nil {
			d.logger.Warn("failed to remove liveness marker", zap.String(logging.FieldPath, l.marker), zap.Error(err))
		}
		if err := l.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release lock", zap.String("loop", l.name), zap.Error(err))
		}
	}
	d.running.Store(false)
	d.logger.Info("autoposter daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:     d.running.Load(),
		RunID:       d.runID,
		QueueDBPath: d.cfg.QueueDBPath(),
	}
	if d.dispatcher != nil {
		summary := d.dispatcher.Status()
		status.Dispatcher = &summary
	}
	if health, err := d.store.Health(ctx); err == nil {
		status.Queue = health
	} else {
		d.logger.Warn("failed to read queue stats", zap.Error(err))
	}
	for _, l := range d.loops {
		status.Loops = append(status.Loops, liveness.Check(l.name, l.marker))
	}
	d.mu.Lock()
	if d.watchErr != nil {
		status.WatchError = d.watchErr.Error()
	}
	d.mu.Unlock()
	return status
}
