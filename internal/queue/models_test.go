package queue_test

import (
	"testing"
	"time"

	"autoposter/internal/queue"
)

func TestParseContentType(t *testing.T) {
	for _, raw := range []string{"feed", "Reels", " stories ", "WEEKLY"} {
		if _, ok := queue.ParseContentType(raw); !ok {
			t.Fatalf("expected %q to parse", raw)
		}
	}
	if _, ok := queue.ParseContentType("carousel"); ok {
		t.Fatal("expected unknown content type to be rejected")
	}
}

func TestParseStatus(t *testing.T) {
	status, ok := queue.ParseStatus("IN_PROGRESS")
	if !ok || status != queue.StatusInProgress {
		t.Fatalf("unexpected parse result: %q %v", status, ok)
	}
	if _, ok := queue.ParseStatus(""); ok {
		t.Fatal("expected empty status to be rejected")
	}
	if !queue.StatusDone.IsTerminal() || queue.StatusQueued.IsTerminal() {
		t.Fatal("unexpected terminal classification")
	}
}

func TestJobIsDue(t *testing.T) {
	now := time.Now()
	job := queue.Job{Status: queue.StatusQueued, ETA: now}
	if !job.IsDue(now) {
		t.Fatal("job with eta == now should be due")
	}
	job.Status = queue.StatusInProgress
	if job.IsDue(now) {
		t.Fatal("in-progress job is never due")
	}
}
