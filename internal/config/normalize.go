package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSchedule()
	c.normalizeIngest()
	c.normalizeDelivery()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("AUTOPOSTER_CONTENT_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.ContentDir = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("AUTOPOSTER_STATE_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.StateDir = strings.TrimSpace(value)
	}

	var err error
	if c.Paths.ContentDir, err = expandPath(c.Paths.ContentDir); err != nil {
		return fmt.Errorf("paths.content_dir: %w", err)
	}
	if c.Paths.ClientsDir, err = expandPath(c.Paths.ClientsDir); err != nil {
		return fmt.Errorf("paths.clients_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ExportDir) == "" {
		c.Paths.ExportDir = defaultExportDir
	}
	if c.Paths.ExportDir, err = expandPath(c.Paths.ExportDir); err != nil {
		return fmt.Errorf("paths.export_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSchedule() {
	c.Schedule.Timezone = strings.TrimSpace(c.Schedule.Timezone)
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = defaultTimezone
	}
	c.Schedule.DefaultHours = SanitizeHours(c.Schedule.DefaultHours)
	if len(c.Schedule.DefaultHours) == 0 {
		c.Schedule.DefaultHours = append([]int(nil), defaultHours...)
	}
	c.Schedule.FeedHours = SanitizeHours(c.Schedule.FeedHours)
	c.Schedule.ReelsHours = SanitizeHours(c.Schedule.ReelsHours)
	c.Schedule.StoriesHours = SanitizeHours(c.Schedule.StoriesHours)
	c.Schedule.WeeklyHours = SanitizeHours(c.Schedule.WeeklyHours)
	c.Schedule.WeeklyWeekday = strings.ToLower(strings.TrimSpace(c.Schedule.WeeklyWeekday))
	if c.Schedule.WeeklyWeekday == "" {
		c.Schedule.WeeklyWeekday = defaultWeeklyWeekdayName
	}
}

func (c *Config) normalizeIngest() {
	c.Ingest.ImageExtensions = normalizeExtensions(c.Ingest.ImageExtensions)
	c.Ingest.VideoExtensions = normalizeExtensions(c.Ingest.VideoExtensions)
	c.Ingest.ETAMode = strings.ToLower(strings.TrimSpace(c.Ingest.ETAMode))
	if c.Ingest.ETAMode == "" {
		c.Ingest.ETAMode = defaultETAMode
	}
	c.Ingest.CaptionMode = strings.ToLower(strings.TrimSpace(c.Ingest.CaptionMode))
	if c.Ingest.CaptionMode == "" {
		c.Ingest.CaptionMode = defaultCaptionMode
	}
	c.Ingest.UnknownTypeFallback = strings.ToLower(strings.TrimSpace(c.Ingest.UnknownTypeFallback))
}

func (c *Config) normalizeDelivery() {
	c.Delivery.Command = strings.TrimSpace(c.Delivery.Command)
	if c.Delivery.Command == "" {
		if value, ok := os.LookupEnv("AUTOPOSTER_DELIVERY_COMMAND"); ok {
			c.Delivery.Command = strings.TrimSpace(value)
		}
	}
	if strings.HasPrefix(c.Delivery.Command, "~") || strings.ContainsRune(c.Delivery.Command, os.PathSeparator) {
		if expanded, err := expandPath(c.Delivery.Command); err == nil {
			c.Delivery.Command = expanded
		}
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("AUTOPOSTER_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// SanitizeHours drops values outside 0..23, removes duplicates, and sorts the rest.
func SanitizeHours(hours []int) []int {
	if len(hours) == 0 {
		return nil
	}
	seen := make(map[int]struct{}, len(hours))
	out := make([]int, 0, len(hours))
	for _, h := range hours {
		if h < 0 || h > 23 {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	sort.Ints(out)
	return out
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
