package config

import (
	"strings"
	"time"
)

const (
	defaultConfigPath          = "~/.config/autoposter/config.toml"
	defaultContentDir          = "~/autoposter/content"
	defaultClientsDir          = "~/.config/autoposter/clients"
	defaultStateDir            = "~/.local/share/autoposter"
	defaultExportDir           = "~/.local/share/autoposter/export"
	defaultLogDir              = "~/.local/share/autoposter/logs"
	defaultTimezone            = "America/New_York"
	defaultWeeklyWeekday       = time.Sunday
	defaultQuotaRetryHour      = 11
	defaultDebounceMillis      = 1000
	defaultFlushIntervalMillis = 500
	defaultETAMode             = ETAModeSlot
	defaultCaptionMode         = CaptionModeNone
	defaultBatchSize           = 50
	defaultIdleInterval        = 15
	defaultBusyInterval        = 3
	defaultErrorRetryInterval  = 10
	defaultFailureBackoff      = 30
	defaultDeliveryTimeout     = 300
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
	defaultNotifyTimeout       = 10
	defaultFeedPerDay          = 1
	defaultReelsPerDay         = 2
	defaultStoriesPerDay       = 3
	defaultWeeklyPerDay        = 1
	defaultDeliveriesPerMinute = 0
	defaultPermanentExitCode   = 3
	defaultUnknownTypeFallback = ""
	defaultDryRunManifest      = true
	defaultMaxDeliveryAttempts = 0
	defaultWeeklyHour          = 19
	defaultWeeklyWeekdayName   = "sunday"
)

// ETA modes accepted by ingest.eta_mode.
const (
	ETAModeSlot = "slot"
	ETAModeNow  = "now"
)

// Caption modes accepted by ingest.caption_mode.
const (
	CaptionModeNone     = "none"
	CaptionModeFilename = "filename"
)

var defaultHours = []int{11, 15, 19}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ContentDir: defaultContentDir,
			ClientsDir: defaultClientsDir,
			StateDir:   defaultStateDir,
			ExportDir:  defaultExportDir,
			LogDir:     defaultLogDir,
		},
		Schedule: Schedule{
			Timezone:       defaultTimezone,
			DefaultHours:   append([]int(nil), defaultHours...),
			WeeklyHours:    []int{defaultWeeklyHour},
			WeeklyWeekday:  defaultWeeklyWeekdayName,
			QuotaRetryHour: defaultQuotaRetryHour,
		},
		Ingest: Ingest{
			DebounceMillis:      defaultDebounceMillis,
			FlushIntervalMillis: defaultFlushIntervalMillis,
			ImageExtensions:     []string{".jpg", ".jpeg", ".png"},
			VideoExtensions:     []string{".mp4", ".mov", ".avi", ".mkv"},
			ETAMode:             defaultETAMode,
			UnknownTypeFallback: defaultUnknownTypeFallback,
			CaptionMode:         defaultCaptionMode,
		},
		Dispatch: Dispatch{
			BatchSize:           defaultBatchSize,
			IdleInterval:        defaultIdleInterval,
			BusyInterval:        defaultBusyInterval,
			ErrorRetryInterval:  defaultErrorRetryInterval,
			FailureBackoff:      defaultFailureBackoff,
			MaxAttempts:         defaultMaxDeliveryAttempts,
			DeliveriesPerMinute: defaultDeliveriesPerMinute,
		},
		Policy: Policy{
			FeedPerDay:    defaultFeedPerDay,
			ReelsPerDay:   defaultReelsPerDay,
			StoriesPerDay: defaultStoriesPerDay,
			WeeklyPerDay:  defaultWeeklyPerDay,
		},
		Delivery: Delivery{
			TimeoutSeconds:      defaultDeliveryTimeout,
			PermanentExitCodes:  []int{defaultPermanentExitCode},
			DryRunWriteManifest: defaultDryRunManifest,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			OnFailure:      true,
			OnUnclassified: true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"sun":       time.Sunday,
	"monday":    time.Monday,
	"mon":       time.Monday,
	"tuesday":   time.Tuesday,
	"tue":       time.Tuesday,
	"wednesday": time.Wednesday,
	"wed":       time.Wednesday,
	"thursday":  time.Thursday,
	"thu":       time.Thursday,
	"friday":    time.Friday,
	"fri":       time.Friday,
	"saturday":  time.Saturday,
	"sat":       time.Saturday,
}

func parseWeekday(value string) (time.Weekday, bool) {
	day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(value))]
	return day, ok
}
