package queue

import (
	"errors"
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusQueued,
	StatusInProgress,
	StatusDone,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the dispatcher will never touch a job in this status again.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// ContentType identifies the kind of post a job produces.
type ContentType string

const (
	ContentFeed    ContentType = "feed"
	ContentReels   ContentType = "reels"
	ContentStories ContentType = "stories"
	ContentWeekly  ContentType = "weekly"
)

var allContentTypes = []ContentType{ContentFeed, ContentReels, ContentStories, ContentWeekly}

// AllContentTypes returns the known content types in display order.
func AllContentTypes() []ContentType {
	return append([]ContentType(nil), allContentTypes...)
}

// ParseContentType converts a folder name or flag value into a known ContentType.
func ParseContentType(value string) (ContentType, bool) {
	normalized := ContentType(strings.ToLower(strings.TrimSpace(value)))
	for _, ct := range allContentTypes {
		if ct == normalized {
			return ct, true
		}
	}
	return "", false
}

// Source records which producer created a job.
type Source string

const (
	SourceWatch    Source = "watch"
	SourceBackfill Source = "backfill"
	SourceManual   Source = "manual"
)

// Reschedule reasons recorded on jobs that go back to queued.
const (
	ReasonRecovered = "recovered after restart"
	ReasonRetry     = "retry requested"
	ReasonForced    = "forced due"
)

// ErrInvalidJob is returned when a NewJob is missing required fields.
var ErrInvalidJob = errors.New("invalid job")

// ErrInvalidTransition is returned when a job is not in a state that allows the requested change.
var ErrInvalidTransition = errors.New("invalid job transition")

// NewJob is the single creation contract shared by every producer.
type NewJob struct {
	Client      string
	Path        string
	ContentType ContentType
	Caption     string
	ETA         time.Time
	Source      Source
}

// Job is a persisted posting job.
type Job struct {
	ID               int64
	Client           string
	Path             string
	ContentType      ContentType
	Caption          string
	ETA              time.Time
	Status           Status
	Source           Source
	CreatedAt        time.Time
	UpdatedAt        time.Time
	PostedAt         *time.Time
	Attempts         int
	LastError        string
	RescheduleReason string
	MediaID          string
}

// IsDue reports whether the job is queued with an ETA at or before asOf.
func (j Job) IsDue(asOf time.Time) bool {
	return j.Status == StatusQueued && !j.ETA.After(asOf)
}

// DueQuery bounds a DueJobs call.
type DueQuery struct {
	Limit  int
	Client string
	AsOf   time.Time
}

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	Statuses []Status
	Client   string
	Limit    int
}

// ClientSummary aggregates job counts for one client.
type ClientSummary struct {
	Client     string
	Queued     int
	InProgress int
	Done       int
	Failed     int
	NextETA    *time.Time
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}

// HealthSummary describes aggregated queue counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Queued     int
	InProgress int
	Done       int
	Failed     int
}
