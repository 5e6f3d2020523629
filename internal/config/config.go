package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the directories the watcher and dispatcher operate on.
type Paths struct {
	ContentDir string `toml:"content_dir"`
	ClientsDir string `toml:"clients_dir"`
	StateDir   string `toml:"state_dir"`
	ExportDir  string `toml:"export_dir"`
	LogDir     string `toml:"log_dir"`
}

// Schedule controls how posting slots are allocated in local time.
type Schedule struct {
	Timezone       string `toml:"timezone"`
	DefaultHours   []int  `toml:"default_hours"`
	FeedHours      []int  `toml:"feed_hours"`
	ReelsHours     []int  `toml:"reels_hours"`
	StoriesHours   []int  `toml:"stories_hours"`
	WeeklyHours    []int  `toml:"weekly_hours"`
	WeeklyWeekday  string `toml:"weekly_weekday"`
	QuotaRetryHour int    `toml:"quota_retry_hour"`
}

// Ingest contains watcher and classification settings.
type Ingest struct {
	DebounceMillis      int      `toml:"debounce_ms"`
	FlushIntervalMillis int      `toml:"flush_interval_ms"`
	ImageExtensions     []string `toml:"image_extensions"`
	VideoExtensions     []string `toml:"video_extensions"`
	ETAMode             string   `toml:"eta_mode"`
	UnknownTypeFallback string   `toml:"unknown_type_fallback"`
	CaptionMode         string   `toml:"caption_mode"`
}

// Dispatch contains dispatcher loop timing and retry settings.
type Dispatch struct {
	BatchSize           int `toml:"batch_size"`
	IdleInterval        int `toml:"idle_interval"`
	BusyInterval        int `toml:"busy_interval"`
	ErrorRetryInterval  int `toml:"error_retry_interval"`
	FailureBackoff      int `toml:"failure_backoff_minutes"`
	MaxAttempts         int `toml:"max_attempts"`
	DeliveriesPerMinute int `toml:"deliveries_per_minute"`
}

// Policy contains the daily quotas applied when a client file is absent,
// malformed, or silent about a content type.
type Policy struct {
	FeedPerDay    int `toml:"feed_per_day"`
	ReelsPerDay   int `toml:"reels_per_day"`
	StoriesPerDay int `toml:"stories_per_day"`
	WeeklyPerDay  int `toml:"weekly_per_day"`
}

// DefaultQuota returns the fallback daily quota for a content type.
func (p Policy) DefaultQuota(contentType string) int {
	switch contentType {
	case "feed":
		return p.FeedPerDay
	case "reels":
		return p.ReelsPerDay
	case "stories":
		return p.StoriesPerDay
	case "weekly":
		return p.WeeklyPerDay
	}
	return 0
}

// Delivery configures the live uploader collaborator.
type Delivery struct {
	Command             string   `toml:"command"`
	Args                []string `toml:"args"`
	TimeoutSeconds      int      `toml:"timeout_seconds"`
	PermanentExitCodes  []int    `toml:"permanent_exit_codes"`
	DryRunWriteManifest bool     `toml:"dry_run_write_manifest"`
}

// Notifications configures ntfy alerts for jobs that need an operator.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	OnFailure      bool   `toml:"on_failure"`
	OnUnclassified bool   `toml:"on_unclassified"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for autoposter.
//
// Configuration sections by subsystem:
//   - Paths: content root, client policy files, state, export, and logs
//   - Schedule: reference time zone and posting hours per content type
//   - Ingest: debounce timing, media extensions, and classification fallbacks
//   - Dispatch: polling intervals, batch size, backoff, and retry ceiling
//   - Policy: defaults for clients without a usable policy file
//   - Delivery: the external uploader used in live mode
//   - Notifications: ntfy alerts for failed and unclassifiable media
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Schedule      Schedule      `toml:"schedule"`
	Ingest        Ingest        `toml:"ingest"`
	Dispatch      Dispatch      `toml:"dispatch"`
	Policy        Policy        `toml:"policy"`
	Delivery      Delivery      `toml:"delivery"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("autoposter.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The content root is created so the watcher has something to observe on a
// fresh install.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.ExportDir, c.Paths.ContentDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the location of the job database.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.StateDir, "queue.db")
}

// LockPath returns the flock file guarding a named loop ("watcher", "dispatcher").
func (c *Config) LockPath(name string) string {
	return filepath.Join(c.Paths.StateDir, name+".lock")
}

// MarkerPath returns the liveness marker for a named loop.
func (c *Config) MarkerPath(name string) string {
	return filepath.Join(c.Paths.StateDir, name+".pid")
}

// Location returns the reference time zone for slot allocation and quota days.
// Validate rejects unknown zones, so the local fallback only applies to
// hand-built configs.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// WeeklyWeekday returns the weekday used for weekly content slots.
func (c *Config) WeeklyWeekday() time.Weekday {
	day, ok := parseWeekday(c.Schedule.WeeklyWeekday)
	if !ok {
		return defaultWeeklyWeekday
	}
	return day
}

// HoursFor returns the posting hours for a content type, falling back to the
// default hours when the type has none configured.
func (c *Config) HoursFor(contentType string) []int {
	var hours []int
	switch contentType {
	case "feed":
		hours = c.Schedule.FeedHours
	case "reels":
		hours = c.Schedule.ReelsHours
	case "stories":
		hours = c.Schedule.StoriesHours
	case "weekly":
		hours = c.Schedule.WeeklyHours
	}
	if len(hours) == 0 {
		hours = c.Schedule.DefaultHours
	}
	return append([]int(nil), hours...)
}

// DebounceWindow returns the quiet period a path must observe before enqueue.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.Ingest.DebounceMillis) * time.Millisecond
}

// FlushInterval returns how often the debouncer checks for settled paths.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Ingest.FlushIntervalMillis) * time.Millisecond
}

// MediaExtensions returns the accepted extensions, lower-case with a leading dot.
func (c *Config) MediaExtensions() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Ingest.ImageExtensions)+len(c.Ingest.VideoExtensions))
	for _, ext := range c.Ingest.ImageExtensions {
		set[ext] = struct{}{}
	}
	for _, ext := range c.Ingest.VideoExtensions {
		set[ext] = struct{}{}
	}
	return set
}

// IdleInterval returns the dispatcher sleep when nothing is due.
func (c *Config) IdleInterval() time.Duration {
	return time.Duration(c.Dispatch.IdleInterval) * time.Second
}

// BusyInterval returns the dispatcher sleep after a processed batch.
func (c *Config) BusyInterval() time.Duration {
	return time.Duration(c.Dispatch.BusyInterval) * time.Second
}

// ErrorRetryInterval returns the wait after a storage error aborts a tick.
func (c *Config) ErrorRetryInterval() time.Duration {
	return time.Duration(c.Dispatch.ErrorRetryInterval) * time.Second
}

// FailureBackoff returns the delay applied after a failed delivery.
func (c *Config) FailureBackoff() time.Duration {
	return time.Duration(c.Dispatch.FailureBackoff) * time.Minute
}

// NotificationTimeout returns the ntfy request timeout.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

// DeliveryTimeout bounds a single live delivery attempt.
func (c *Config) DeliveryTimeout() time.Duration {
	return time.Duration(c.Delivery.TimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
