package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"autoposter/internal/captions"
	"autoposter/internal/clock"
	"autoposter/internal/config"
	"autoposter/internal/logging"
	"autoposter/internal/queue"
)

// Inserter is the job store contract producers depend on.
type Inserter interface {
	InsertIfAbsent(ctx context.Context, job queue.NewJob) (int64, bool, error)
}

// Outcome reports what happened to one settled path.
type Outcome struct {
	Path        string
	JobID       int64
	Created     bool
	Client      string
	ContentType queue.ContentType
	ETA         time.Time
	Rejected    string
	// Unclassified is set when the path passed the filter but does not sit
	// under <client>/<content type>/.
	Unclassified bool
}

// Options tweaks a single enqueue.
type Options struct {
	Source  queue.Source
	Caption string
	// Now makes the job due immediately regardless of eta_mode.
	Now bool
}

// Enqueuer classifies a path, computes its ETA and caption, and inserts it.
type Enqueuer struct {
	store      Inserter
	classifier *Classifier
	filter     *Filter
	zone       *clock.Zone
	cfg        *config.Config
	logger     *zap.Logger
	wake       func()
}

// NewEnqueuer builds an Enqueuer for cfg.Paths.ContentDir. wake, when not nil,
// is called after a job that is already due has been created.
func NewEnqueuer(cfg *config.Config, store Inserter, zone *clock.Zone, logger *zap.Logger, wake func()) (*Enqueuer, error) {
	fallback, _ := queue.ParseContentType(cfg.Ingest.UnknownTypeFallback)
	classifier, err := NewClassifier(cfg.Paths.ContentDir, fallback)
	if err != nil {
		return nil, err
	}
	return &Enqueuer{
		store:      store,
		classifier: classifier,
		filter:     NewFilter(cfg.MediaExtensions()),
		zone:       zone,
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "ingest"),
		wake:       wake,
	}, nil
}

// Filter exposes the name filter used by the watcher.
func (e *Enqueuer) Filter() *Filter { return e.filter }

// Root returns the content root.
func (e *Enqueuer) Root() string { return e.classifier.Root() }

// Enqueue runs one settled path through filter, classification and insert.
// Rejections are reported in Outcome.Rejected and are not errors.
func (e *Enqueuer) Enqueue(ctx context.Context, path string, opts Options) (Outcome, error) {
	out := Outcome{Path: path}
	if reason := e.filter.Accept(path); reason != "" {
		out.Rejected = reason
		e.logger.Debug("ignored file",
			zap.String(logging.FieldPath, path),
			zap.String(logging.FieldReason, reason),
		)
		return out, nil
	}

	target, err := e.classifier.Classify(path)
	if err != nil {
		if errors.Is(err, ErrUnclassifiable) {
			out.Rejected = err.Error()
			out.Unclassified = true
			e.logger.Warn("dropped unclassifiable file",
				zap.String(logging.FieldPath, path),
				zap.String(logging.FieldReason, err.Error()),
				zap.String(logging.FieldEventType, "ingest_unclassifiable"),
				zap.String(logging.FieldErrorHint, "place media under <client>/<feed|reels|stories|weekly>/"),
			)
			return out, nil
		}
		return out, err
	}
	out.Path = target.Path
	out.Client = target.Client
	out.ContentType = target.ContentType
	if target.Fallback {
		e.logger.Info("unknown content type folder; using fallback",
			zap.String(logging.FieldPath, target.Path),
			zap.String(logging.FieldContentType, string(target.ContentType)),
		)
	}

	now := e.zone.Now()
	out.ETA = e.eta(target.ContentType, now, opts.Now)
	caption := opts.Caption
	if caption == "" && e.cfg.Ingest.CaptionMode == config.CaptionModeFilename {
		caption = captions.FromFilename(target.Path, target.Client, e.zone.LocalNow())
	}
	source := opts.Source
	if source == "" {
		source = queue.SourceWatch
	}

	id, created, err := e.store.InsertIfAbsent(ctx, queue.NewJob{
		Client:      target.Client,
		Path:        target.Path,
		ContentType: target.ContentType,
		Caption:     caption,
		ETA:         out.ETA,
		Source:      source,
	})
	if err != nil {
		return out, fmt.Errorf("enqueue %s: %w", target.Path, err)
	}
	out.JobID = id
	out.Created = created

	fields := []zap.Field{
		zap.Int64(logging.FieldJobID, id),
		zap.String(logging.FieldClient, target.Client),
		zap.String(logging.FieldContentType, string(target.ContentType)),
		zap.String(logging.FieldPath, target.Path),
	}
	if !created {
		e.logger.Info("duplicate file; job already queued", fields...)
		return out, nil
	}
	e.logger.Info("job queued", append(fields,
		zap.Time(logging.FieldETA, out.ETA),
		zap.String("source", string(source)),
	)...)
	if e.wake != nil && !out.ETA.After(now) {
		e.wake()
	}
	return out, nil
}

func (e *Enqueuer) eta(ct queue.ContentType, now time.Time, immediate bool) time.Time {
	if immediate || e.cfg.Ingest.ETAMode == config.ETAModeNow {
		return now
	}
	if ct == queue.ContentWeekly {
		return e.zone.NextWeeklySlot(e.cfg.WeeklyWeekday(), e.cfg.HoursFor(string(ct)), now)
	}
	return e.zone.NextLocalSlot(e.cfg.HoursFor(string(ct)), now)
}
