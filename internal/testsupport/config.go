package testsupport

import (
	"path/filepath"
	"testing"

	"autoposter/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ContentDir = filepath.Join(base, "content")
	cfgVal.Paths.ClientsDir = filepath.Join(base, "clients")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.ExportDir = filepath.Join(base, "export")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Ingest.DebounceMillis = 50
	cfgVal.Ingest.FlushIntervalMillis = 10
	cfgVal.Dispatch.IdleInterval = 1
	cfgVal.Dispatch.BusyInterval = 0
	cfgVal.Dispatch.ErrorRetryInterval = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithTimezone overrides the reference time zone.
func WithTimezone(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Schedule.Timezone = name
	}
}

// WithETAMode sets ingest.eta_mode.
func WithETAMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ingest.ETAMode = mode
	}
}

// WithUnknownTypeFallback sets ingest.unknown_type_fallback.
func WithUnknownTypeFallback(value string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ingest.UnknownTypeFallback = value
	}
}

// WithMaxAttempts sets the dispatcher retry ceiling.
func WithMaxAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Dispatch.MaxAttempts = n
	}
}

// WithDefaultQuotas sets the fallback quotas used when a client has no policy file.
func WithDefaultQuotas(feed, reels, stories, weekly int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Policy = config.Policy{FeedPerDay: feed, ReelsPerDay: reels, StoriesPerDay: stories, WeeklyPerDay: weekly}
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
