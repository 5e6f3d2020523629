package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"autoposter/internal/logging"
	"autoposter/internal/notifications"
	"autoposter/internal/queue"
)

// Watcher feeds fsnotify events from the content tree into the debouncer and
// enqueues settled files.
type Watcher struct {
	enqueuer  *Enqueuer
	debouncer *Debouncer
	interval  time.Duration
	logger    *zap.Logger
	notifier  notifications.Service

	ready     chan struct{}
	readyOnce sync.Once
}

// WatcherOption configures optional Watcher behaviour.
type WatcherOption func(*Watcher)

// WithNotifier alerts the operator about files that cannot be classified.
func WithNotifier(svc notifications.Service) WatcherOption {
	return func(w *Watcher) {
		if svc != nil {
			w.notifier = svc
		}
	}
}

// NewWatcher builds a Watcher with the given debounce window and flush interval.
func NewWatcher(enqueuer *Enqueuer, window, interval time.Duration, logger *zap.Logger, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		enqueuer:  enqueuer,
		debouncer: NewDebouncer(window),
		interval:  interval,
		logger:    logging.NewComponentLogger(logger, "watcher"),
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Ready is closed once the initial recursive watch is installed.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Run watches until ctx is cancelled. A settled path being enqueued when ctx
// ends is finished before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	root := w.enqueuer.Root()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create content root: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addTree(fsw, root, false); err != nil {
		return err
	}
	w.readyOnce.Do(func() { close(w.ready) })
	w.logger.Info("watching content root", zap.String(logging.FieldPath, root))

	var wg sync.WaitGroup
	flushCtx, stopFlush := context.WithCancel(ctx)
	defer func() {
		stopFlush()
		wg.Wait()
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.debouncer.Run(flushCtx, w.interval, func(paths []string) {
			w.flush(context.WithoutCancel(ctx), paths)
		})
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopping", zap.Int(logging.FieldCount, w.debouncer.Pending()))
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(fsw, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "watcher error", "watch_error",
				zap.Error(err),
				zap.String(logging.FieldImpact, "some file events may be missed; run backfill to catch up"),
			)
		}
	}
}

func (w *Watcher) handle(fsw *fsnotify.Watcher, event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.debouncer.Forget(event.Name)
		return
	case !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write):
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) {
			// A directory moved or created under the root may already hold files.
			if err := w.addTree(fsw, event.Name, true); err != nil {
				w.logger.Warn("failed to watch new directory", zap.String(logging.FieldPath, event.Name), zap.Error(err))
			}
		}
		return
	}
	if w.enqueuer.Filter().Accept(event.Name) != "" {
		return
	}
	w.debouncer.Observe(event.Name, time.Now())
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string, observeFiles bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if path != dir && len(d.Name()) > 0 && d.Name()[0] == '.' {
				return filepath.SkipDir
			}
			if err := fsw.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			return nil
		}
		if observeFiles && w.enqueuer.Filter().Accept(path) == "" {
			w.debouncer.Observe(path, time.Now())
		}
		return nil
	})
}

func (w *Watcher) flush(ctx context.Context, paths []string) {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		out, err := w.enqueuer.Enqueue(ctx, path, Options{Source: queue.SourceWatch})
		if err != nil {
			logging.ErrorWithContext(w.logger, "enqueue failed", "enqueue_failed",
				zap.String(logging.FieldPath, path),
				zap.Error(err),
				zap.String(logging.FieldImpact, "file is not queued; backfill will pick it up"),
			)
			continue
		}
		if out.Unclassified && w.notifier != nil {
			if err := w.notifier.NotifyUnclassified(ctx, path, out.Rejected); err != nil {
				w.logger.Warn("unclassified notification not sent", zap.Error(err))
			}
		}
	}
}
