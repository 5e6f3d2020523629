package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoposter/internal/clock"
	"autoposter/internal/config"
	"autoposter/internal/ingest"
	"autoposter/internal/logging"
	"autoposter/internal/queue"
	"autoposter/internal/testsupport"
)

func TestFilterAccept(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	filter := ingest.NewFilter(cfg.MediaExtensions())

	accepted := []string{"a/b/photo.JPG", "x.jpeg", "clip.mp4", "y.png", "z.mov", "w.mkv", "v.avi"}
	for _, name := range accepted {
		assert.Empty(t, filter.Accept(name), name)
	}
	rejected := map[string]string{
		".hidden.jpg":          "hidden file",
		"~$report.jpg":         "lock file",
		"photo.jpg~":           "backup file",
		"Thumbs.db":            "system file",
		"desktop.ini":          "system file",
		"video.mp4.part":       "partial download",
		"video.mp4.crdownload": "partial download",
		"notes.txt":            "unsupported extension",
		"noext":                "unsupported extension",
	}
	for name, reason := range rejected {
		assert.Equal(t, reason, filter.Accept(name), name)
	}
}

func TestClassify(t *testing.T) {
	root := t.TempDir()
	strict, err := ingest.NewClassifier(root, "")
	require.NoError(t, err)
	lenient, err := ingest.NewClassifier(root, queue.ContentReels)
	require.NoError(t, err)

	target, err := strict.Classify(filepath.Join(root, "acme", "Stories", "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "acme", target.Client)
	assert.Equal(t, queue.ContentStories, target.ContentType)
	assert.False(t, target.Fallback)

	for _, rel := range []string{"a.jpg", "acme/a.jpg", "acme/feed/deep/a.jpg", "acme/misc/a.jpg"} {
		_, err := strict.Classify(filepath.Join(root, rel))
		assert.ErrorIs(t, err, ingest.ErrUnclassifiable, rel)
	}
	_, err = strict.Classify(filepath.Join(filepath.Dir(root), "elsewhere", "feed", "a.jpg"))
	assert.ErrorIs(t, err, ingest.ErrUnclassifiable)

	target, err = lenient.Classify(filepath.Join(root, "acme", "misc", "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, queue.ContentReels, target.ContentType)
	assert.True(t, target.Fallback)

	// The fallback never invents a client.
	_, err = lenient.Classify(filepath.Join(root, "acme", "a.jpg"))
	assert.ErrorIs(t, err, ingest.ErrUnclassifiable)
}

func TestDebouncerCoalescesBursts(t *testing.T) {
	d := ingest.NewDebouncer(time.Second)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		d.Observe("/c/acme/feed/a.jpg", base.Add(time.Duration(i)*100*time.Millisecond))
	}
	d.Observe("/c/acme/feed/b.jpg", base)

	assert.Equal(t, []string{"/c/acme/feed/b.jpg"}, d.Settled(base.Add(1500*time.Millisecond)))
	assert.Equal(t, 1, d.Pending())
	assert.Equal(t, []string{"/c/acme/feed/a.jpg"}, d.Settled(base.Add(1900*time.Millisecond)))
	assert.Zero(t, d.Pending())
	assert.Empty(t, d.Settled(base.Add(time.Hour)))
}

func TestDebouncerForget(t *testing.T) {
	d := ingest.NewDebouncer(time.Millisecond)
	now := time.Now()
	d.Observe("a", now)
	d.Forget("a")
	assert.Empty(t, d.Settled(now.Add(time.Second)))
}

type harness struct {
	cfg      *config.Config
	store    *queue.Store
	clock    *clock.Manual
	enqueuer *ingest.Enqueuer
	wakes    *atomic.Int32
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	manual := clock.NewManual(time.Date(2026, 3, 10, 16, 0, 0, 0, cfg.Location()))
	wakes := &atomic.Int32{}
	enqueuer, err := ingest.NewEnqueuer(cfg, store, clock.NewZone(cfg.Location(), manual), logging.NewNop(), func() { wakes.Add(1) })
	require.NoError(t, err)
	return &harness{cfg: cfg, store: store, clock: manual, enqueuer: enqueuer, wakes: wakes}
}

func (h *harness) media(t *testing.T, rel string) string {
	return testsupport.WriteMedia(t, filepath.Join(h.cfg.Paths.ContentDir, filepath.FromSlash(rel)), 32)
}

func TestEnqueueAssignsNextSlot(t *testing.T) {
	h := newHarness(t)
	path := h.media(t, "acme/feed/launch.jpg")

	out, err := h.enqueuer.Enqueue(context.Background(), path, ingest.Options{})
	require.NoError(t, err)
	require.True(t, out.Created)
	assert.Equal(t, time.Date(2026, 3, 10, 19, 0, 0, 0, h.cfg.Location()).UTC(), out.ETA)

	job := testsupport.MustGetJob(t, h.store, out.JobID)
	assert.Equal(t, "acme", job.Client)
	assert.Equal(t, queue.ContentFeed, job.ContentType)
	assert.Equal(t, queue.SourceWatch, job.Source)
	assert.Equal(t, path, job.Path)
	assert.Zero(t, h.wakes.Load(), "future slot must not wake the dispatcher")
}

func TestEnqueueWeeklyUsesWeekday(t *testing.T) {
	h := newHarness(t)
	out, err := h.enqueuer.Enqueue(context.Background(), h.media(t, "acme/weekly/recap.mp4"), ingest.Options{})
	require.NoError(t, err)
	local := out.ETA.In(h.cfg.Location())
	assert.Equal(t, h.cfg.WeeklyWeekday(), local.Weekday())
	assert.True(t, out.ETA.After(h.clock.Now()))
}

func TestEnqueueNowModeWakesDispatcher(t *testing.T) {
	h := newHarness(t, testsupport.WithETAMode(config.ETAModeNow))
	out, err := h.enqueuer.Enqueue(context.Background(), h.media(t, "acme/reels/a.mp4"), ingest.Options{})
	require.NoError(t, err)
	assert.Equal(t, h.clock.Now().UTC(), out.ETA)
	assert.EqualValues(t, 1, h.wakes.Load())
}

func TestEnqueueIsIdempotent(t *testing.T) {
	h := newHarness(t)
	path := h.media(t, "acme/feed/a.jpg")
	ctx := context.Background()

	first, err := h.enqueuer.Enqueue(ctx, path, ingest.Options{})
	require.NoError(t, err)
	second, err := h.enqueuer.Enqueue(ctx, path, ingest.Options{})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.JobID, second.JobID)

	stats, err := h.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[queue.StatusQueued])
}

func TestEnqueueRejectsWithoutError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.enqueuer.Enqueue(ctx, h.media(t, "loose.jpg"), ingest.Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Rejected)
	assert.True(t, out.Unclassified)

	out, err = h.enqueuer.Enqueue(ctx, h.media(t, "acme/feed/notes.txt"), ingest.Options{})
	require.NoError(t, err)
	assert.Equal(t, "unsupported extension", out.Rejected)
	assert.False(t, out.Unclassified)

	stats, err := h.store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats[queue.StatusQueued])
}

func TestEnqueueFilenameCaption(t *testing.T) {
	h := newHarness(t)
	h.cfg.Ingest.CaptionMode = config.CaptionModeFilename

	out, err := h.enqueuer.Enqueue(context.Background(), h.media(t, "acme/feed/spring_menu-final.jpg"), ingest.Options{})
	require.NoError(t, err)
	job := testsupport.MustGetJob(t, h.store, out.JobID)
	assert.Contains(t, job.Caption, "#spring #menu")
	assert.Contains(t, job.Caption, "@acme")

	out, err = h.enqueuer.Enqueue(context.Background(), h.media(t, "acme/feed/b.jpg"), ingest.Options{Caption: "custom", Source: queue.SourceManual, Now: true})
	require.NoError(t, err)
	job = testsupport.MustGetJob(t, h.store, out.JobID)
	assert.Equal(t, "custom", job.Caption)
	assert.Equal(t, queue.SourceManual, job.Source)
	assert.True(t, job.IsDue(h.clock.Now()))
}

func TestBackfillCounts(t *testing.T) {
	h := newHarness(t)
	h.media(t, "acme/feed/a.jpg")
	h.media(t, "acme/reels/b.mp4")
	h.media(t, "acme/feed/.hidden.jpg")
	h.media(t, "other/stories/c.png")
	h.media(t, "stray.jpg")
	ctx := context.Background()

	report, err := h.enqueuer.Backfill(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Added)
	assert.Equal(t, 2, report.Rejected)

	report, err = h.enqueuer.Backfill(ctx, "acme")
	require.NoError(t, err)
	assert.Zero(t, report.Added)
	assert.Equal(t, 2, report.Duplicates)

	jobs, err := h.store.List(ctx, queue.ListFilter{Client: "other"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, queue.SourceBackfill, jobs[0].Source)
}

func TestWatcherEnqueuesSettledFiles(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.MkdirAll(filepath.Join(h.cfg.Paths.ContentDir, "acme", "feed"), 0o755))
	watcher := ingest.NewWatcher(h.enqueuer, 50*time.Millisecond, 10*time.Millisecond, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-watcher.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never became ready")
	}

	path := filepath.Join(h.cfg.Paths.ContentDir, "acme", "feed", "burst.jpg")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte(i)}, 0o644))
	}
	// A client folder created after start is picked up too.
	late := h.media(t, "late/reels/clip.mp4")

	listAll := func() []*queue.Job {
		jobs, err := h.store.List(context.Background(), queue.ListFilter{})
		require.NoError(t, err)
		return jobs
	}
	require.Eventually(t, func() bool { return len(listAll()) == 2 }, 5*time.Second, 20*time.Millisecond)

	paths := map[string]bool{}
	for _, job := range listAll() {
		paths[job.Path] = true
	}
	assert.True(t, paths[path])
	assert.True(t, paths[late])
}

type unclassifiedRecorder struct {
	paths chan string
}

func (r *unclassifiedRecorder) NotifyJobFailed(context.Context, int64, string, string, string) error {
	return nil
}

func (r *unclassifiedRecorder) NotifyUnclassified(_ context.Context, path, _ string) error {
	r.paths <- path
	return nil
}

func (r *unclassifiedRecorder) TestNotification(context.Context) error { return nil }

func TestWatcherNotifiesUnclassifiedFiles(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.MkdirAll(filepath.Join(h.cfg.Paths.ContentDir, "acme"), 0o755))
	rec := &unclassifiedRecorder{paths: make(chan string, 4)}
	watcher := ingest.NewWatcher(h.enqueuer, 50*time.Millisecond, 10*time.Millisecond, logging.NewNop(), ingest.WithNotifier(rec))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	select {
	case <-watcher.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never became ready")
	}

	loose := h.media(t, "acme/loose.jpg")
	h.media(t, "acme/.hidden.jpg")

	select {
	case got := <-rec.paths:
		assert.Equal(t, loose, got)
	case <-time.After(5 * time.Second):
		t.Fatal("expected an unclassified notification")
	}
	select {
	case got := <-rec.paths:
		t.Fatalf("unexpected second notification for %s", got)
	case <-time.After(200 * time.Millisecond):
	}
}
