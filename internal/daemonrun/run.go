package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"autoposter/internal/config"
	"autoposter/internal/daemon"
	"autoposter/internal/ingest"
	"autoposter/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Watch       bool
	Dispatch    bool
	ForceDryRun bool
}

// Run starts the selected loops and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if !opts.Watch && !opts.Dispatch {
		return errors.New("nothing to run: enable the watcher, the dispatcher, or both")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("autoposter-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String(logging.FieldRunID, runID), zap.String("session_id", uuid.NewString()))

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update autoposter.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "autoposter-*.log", Exclude: []string{logPath}},
	)
	logConfigSnapshot(logger, cfg, opts)

	rt, err := Assemble(cfg, logger, opts.ForceDryRun)
	if err != nil {
		logger.Error("assemble runtime", zap.Error(err))
		return err
	}

	var watcher *ingest.Watcher
	if opts.Watch {
		watcher = ingest.NewWatcher(rt.Enqueuer, cfg.DebounceWindow(), cfg.FlushInterval(), logger,
			ingest.WithNotifier(rt.Notifier))
	}
	dispatcher := rt.Dispatcher
	if !opts.Dispatch {
		dispatcher = nil
	}

	d, err := daemon.New(cfg, rt.Store, logger, watcher, dispatcher, runID)
	if err != nil {
		_ = rt.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			zap.Error(err),
			zap.String(logging.FieldErrorHint, "stop the other instance or remove the stale lock"),
			zap.String(logging.FieldImpact, "no files are queued or posted by this process"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("autoposter daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "autoposter.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func logConfigSnapshot(logger *zap.Logger, cfg *config.Config, opts Options) {
	logger.Info("configuration snapshot",
		zap.String(logging.FieldEventType, "config_snapshot"),
		zap.String("content_dir", cfg.Paths.ContentDir),
		zap.String("clients_dir", cfg.Paths.ClientsDir),
		zap.String("timezone", cfg.Location().String()),
		zap.Bool("watch", opts.Watch),
		zap.Bool("dispatch", opts.Dispatch),
		zap.Bool("force_dry_run", opts.ForceDryRun),
		zap.Bool("delivery_configured", strings.TrimSpace(cfg.Delivery.Command) != ""),
		zap.Bool("notifications_enabled", cfg.Notifications.NtfyTopic != ""),
		zap.String("eta_mode", cfg.Ingest.ETAMode),
	)
}
