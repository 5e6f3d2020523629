package daemonrun

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"autoposter/internal/clock"
	"autoposter/internal/config"
	"autoposter/internal/delivery"
	"autoposter/internal/dispatch"
	"autoposter/internal/ingest"
	"autoposter/internal/logging"
	"autoposter/internal/notifications"
	"autoposter/internal/policy"
	"autoposter/internal/queue"
	"autoposter/internal/quota"
)

// Runtime is the assembled set of collaborators shared by the daemon and the
// one-shot CLI commands.
type Runtime struct {
	Store      *queue.Store
	Zone       *clock.Zone
	Policies   *policy.Loader
	Quota      *quota.Engine
	Dispatcher *dispatch.Manager
	Enqueuer   *ingest.Enqueuer
	Notifier   notifications.Service
}

// Assemble opens the queue store and wires quota, delivery, dispatch and
// ingest around it. The caller owns the returned Runtime and must Close it.
func Assemble(cfg *config.Config, logger *zap.Logger, forceDryRun bool) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	zone := clock.NewZone(cfg.Location(), nil)
	policies := policy.NewLoader(cfg, logger)
	engine := quota.NewEngine(store, policies, zone)

	notifier := notifications.NewService(cfg)
	deps := dispatch.Deps{
		Store:    store,
		Quota:    engine,
		Zone:     zone,
		DryRun:   delivery.NewExporter(cfg, logger),
		Notifier: notifier,
	}
	uploader, err := delivery.NewCommand(cfg, logger)
	switch {
	case err == nil:
		deps.Live = delivery.Throttle(uploader, cfg.Dispatch.DeliveriesPerMinute)
	case errors.Is(err, delivery.ErrNotConfigured):
		logger.Info("no delivery command configured; live clients will wait",
			zap.String(logging.FieldErrorHint, delivery.Hint(err)),
		)
	default:
		_ = store.Close()
		return nil, err
	}

	manager := dispatch.NewManager(cfg, deps, logger, dispatch.WithForceDryRun(forceDryRun))
	enqueuer, err := ingest.NewEnqueuer(cfg, store, zone, logger, manager.Wake)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create enqueuer: %w", err)
	}

	return &Runtime{
		Store:      store,
		Zone:       zone,
		Policies:   policies,
		Quota:      engine,
		Dispatcher: manager,
		Enqueuer:   enqueuer,
		Notifier:   notifier,
	}, nil
}

// Close releases the queue store.
func (r *Runtime) Close() error {
	if r == nil || r.Store == nil {
		return nil
	}
	return r.Store.Close()
}
