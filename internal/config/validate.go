package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateDispatch(); err != nil {
		return err
	}
	if err := c.validatePolicy(); err != nil {
		return err
	}
	if err := c.validateDelivery(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.ContentDir) == "" {
		return errors.New("paths.content_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ClientsDir) == "" {
		return errors.New("paths.clients_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone %q: %w", c.Schedule.Timezone, err)
	}
	if len(c.Schedule.DefaultHours) == 0 {
		return errors.New("schedule.default_hours must contain at least one hour between 0 and 23")
	}
	if c.Schedule.QuotaRetryHour < 0 || c.Schedule.QuotaRetryHour > 23 {
		return errors.New("schedule.quota_retry_hour must be between 0 and 23")
	}
	if _, ok := parseWeekday(c.Schedule.WeeklyWeekday); !ok {
		return fmt.Errorf("schedule.weekly_weekday %q is not a weekday name", c.Schedule.WeeklyWeekday)
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.DebounceMillis <= 0 {
		return errors.New("ingest.debounce_ms must be positive")
	}
	if c.Ingest.FlushIntervalMillis <= 0 {
		return errors.New("ingest.flush_interval_ms must be positive")
	}
	if len(c.Ingest.ImageExtensions)+len(c.Ingest.VideoExtensions) == 0 {
		return errors.New("ingest.image_extensions and ingest.video_extensions cannot both be empty")
	}
	switch c.Ingest.ETAMode {
	case ETAModeSlot, ETAModeNow:
	default:
		return fmt.Errorf("ingest.eta_mode must be %q or %q", ETAModeSlot, ETAModeNow)
	}
	switch c.Ingest.CaptionMode {
	case CaptionModeNone, CaptionModeFilename:
	default:
		return fmt.Errorf("ingest.caption_mode must be %q or %q", CaptionModeNone, CaptionModeFilename)
	}
	switch c.Ingest.UnknownTypeFallback {
	case "", "feed", "reels":
	default:
		return errors.New("ingest.unknown_type_fallback must be empty, \"feed\", or \"reels\"")
	}
	return nil
}

func (c *Config) validateDispatch() error {
	if c.Dispatch.BatchSize <= 0 {
		return errors.New("dispatch.batch_size must be positive")
	}
	if c.Dispatch.IdleInterval <= 0 {
		return errors.New("dispatch.idle_interval must be positive")
	}
	if c.Dispatch.BusyInterval < 0 {
		return errors.New("dispatch.busy_interval must be non-negative")
	}
	if c.Dispatch.ErrorRetryInterval <= 0 {
		return errors.New("dispatch.error_retry_interval must be positive")
	}
	if c.Dispatch.FailureBackoff <= 0 {
		return errors.New("dispatch.failure_backoff_minutes must be positive")
	}
	if c.Dispatch.MaxAttempts < 0 {
		return errors.New("dispatch.max_attempts must be non-negative (0 disables the ceiling)")
	}
	if c.Dispatch.DeliveriesPerMinute < 0 {
		return errors.New("dispatch.deliveries_per_minute must be non-negative")
	}
	return nil
}

func (c *Config) validatePolicy() error {
	if c.Policy.FeedPerDay < 0 || c.Policy.ReelsPerDay < 0 || c.Policy.StoriesPerDay < 0 || c.Policy.WeeklyPerDay < 0 {
		return errors.New("policy quotas must be non-negative")
	}
	return nil
}

func (c *Config) validateDelivery() error {
	if c.Delivery.TimeoutSeconds <= 0 {
		return errors.New("delivery.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic %q must be an http(s) URL", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn, or error", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be non-negative")
	}
	return nil
}
