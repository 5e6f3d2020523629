package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"autoposter/internal/logging"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("job posted", zap.Int64(logging.FieldJobID, 7))
	logger.Debug("hidden")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, `"job_id":7`) || !strings.Contains(text, "job posted") {
		t.Fatalf("expected structured entry, got %q", text)
	}
	if strings.Contains(text, "hidden") {
		t.Fatalf("debug line should be filtered at info level: %q", text)
	}
}

func TestNewRejectsUnknownFormatAndLevel(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, err := logging.New(logging.Options{Level: "chatty"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := logging.NewComponentLogger(zap.New(core), "dispatch")

	logging.WarnWithContext(logger, "delivery deferred", "quota_reached",
		zap.String(logging.FieldErrorHint, "raise the quota"),
	)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields[logging.FieldComponent] != "dispatch" {
		t.Fatalf("missing component field: %v", fields)
	}
	if fields[logging.FieldEventType] != "quota_reached" {
		t.Fatalf("missing event type: %v", fields)
	}
	if fields[logging.FieldErrorHint] != "raise the quota" {
		t.Fatalf("explicit hint should win: %v", fields)
	}
	if fields[logging.FieldImpact] == "" {
		t.Fatalf("expected default impact: %v", fields)
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	oldLog := filepath.Join(dir, "old.log")
	newLog := filepath.Join(dir, "new.log")
	keep := filepath.Join(dir, "current.log")
	for _, p := range []string{oldLog, newLog, keep} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	stale := time.Now().AddDate(0, 0, -10)
	for _, p := range []string{oldLog, keep} {
		if err := os.Chtimes(p, stale, stale); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 5, logging.RetentionTarget{Dir: dir, Pattern: "*.log", Exclude: []string{keep}})
	if removed != 1 {
		t.Fatalf("expected one removal, got %d", removed)
	}
	if _, err := os.Stat(oldLog); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, p := range []string{newLog, keep} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s to remain: %v", p, err)
		}
	}
}
