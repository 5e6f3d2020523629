package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"autoposter/internal/queue"
	"autoposter/internal/testsupport"
)

func TestInsertIfAbsentIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := queue.NewJob{
		Client:      "acme",
		Path:        "/content/acme/feed/launch.jpg",
		ContentType: queue.ContentFeed,
		Caption:     "first",
		ETA:         time.Now().Add(time.Hour),
	}
	id1, created1, err := store.InsertIfAbsent(ctx, job)
	if err != nil {
		t.Fatalf("InsertIfAbsent failed: %v", err)
	}
	if !created1 || id1 == 0 {
		t.Fatalf("expected new job, got id=%d created=%v", id1, created1)
	}

	job.Caption = "second"
	id2, created2, err := store.InsertIfAbsent(ctx, job)
	if err != nil {
		t.Fatalf("duplicate InsertIfAbsent failed: %v", err)
	}
	if created2 {
		t.Fatal("expected duplicate insert to report created=false")
	}
	if id2 != id1 {
		t.Fatalf("expected same id for duplicate, got %d and %d", id1, id2)
	}

	fetched := testsupport.MustGetJob(t, store, id1)
	if fetched.Caption != "first" {
		t.Fatalf("duplicate insert must not modify the row, caption=%q", fetched.Caption)
	}
	if fetched.Status != queue.StatusQueued || fetched.Attempts != 0 {
		t.Fatalf("unexpected initial state: %+v", fetched)
	}
	if fetched.Source != queue.SourceWatch {
		t.Fatalf("expected default source watch, got %q", fetched.Source)
	}

	jobs, err := store.List(ctx, queue.ListFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(jobs))
	}
}

func TestInsertIfAbsentSamePathDifferentClients(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	eta := time.Now()
	a := testsupport.MustInsertJob(t, store, "acme", "/shared/photo.png", queue.ContentFeed, eta)
	b := testsupport.MustInsertJob(t, store, "globex", "/shared/photo.png", queue.ContentFeed, eta)
	if a == b {
		t.Fatal("expected distinct ids for different clients")
	}
}

func TestInsertIfAbsentConcurrentCallersShareOneRow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := queue.NewJob{Client: "acme", Path: "/content/acme/reels/clip.mp4", ContentType: queue.ContentReels, ETA: time.Now()}

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[int64]struct{}{}
		created int
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, ok, err := store.InsertIfAbsent(ctx, job)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ids[id] = struct{}{}
			if ok {
				created++
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("concurrent inserts failed: %v", errs)
	}
	if len(ids) != 1 || created != 1 {
		t.Fatalf("expected one id and one creation, got ids=%v created=%d", ids, created)
	}
}

func TestInsertIfAbsentValidates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cases := []queue.NewJob{
		{Path: "/a.jpg", ContentType: queue.ContentFeed, ETA: time.Now()},
		{Client: "acme", ContentType: queue.ContentFeed, ETA: time.Now()},
		{Client: "acme", Path: "/a.jpg", ContentType: "carousel", ETA: time.Now()},
		{Client: "acme", Path: "/a.jpg", ContentType: queue.ContentFeed},
	}
	for i, job := range cases {
		if _, _, err := store.InsertIfAbsent(ctx, job); !errors.Is(err, queue.ErrInvalidJob) {
			t.Fatalf("case %d: expected ErrInvalidJob, got %v", i, err)
		}
	}
}

func TestDueJobsOrderedByETAThenID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	now := time.Now().UTC()
	third := testsupport.MustInsertJob(t, store, "acme", "/c.jpg", queue.ContentFeed, now.Add(-1*time.Minute))
	first := testsupport.MustInsertJob(t, store, "acme", "/a.jpg", queue.ContentFeed, now.Add(-3*time.Minute))
	secondA := testsupport.MustInsertJob(t, store, "acme", "/b1.jpg", queue.ContentFeed, now.Add(-2*time.Minute))
	secondB := testsupport.MustInsertJob(t, store, "acme", "/b2.jpg", queue.ContentFeed, now.Add(-2*time.Minute))
	testsupport.MustInsertJob(t, store, "acme", "/future.jpg", queue.ContentFeed, now.Add(time.Hour))
	testsupport.MustInsertJob(t, store, "globex", "/other.jpg", queue.ContentFeed, now.Add(-10*time.Minute))

	due, err := store.DueJobs(ctx, queue.DueQuery{Limit: 10, Client: "acme", AsOf: now})
	if err != nil {
		t.Fatalf("DueJobs failed: %v", err)
	}
	want := []int64{first, secondA, secondB, third}
	if len(due) != len(want) {
		t.Fatalf("expected %d due jobs, got %d", len(want), len(due))
	}
	for i, job := range due {
		if job.ID != want[i] {
			t.Fatalf("position %d: want id %d got %d", i, want[i], job.ID)
		}
	}

	limited, err := store.DueJobs(ctx, queue.DueQuery{Limit: 2, AsOf: now})
	if err != nil {
		t.Fatalf("DueJobs with limit failed: %v", err)
	}
	if len(limited) != 2 || limited[0].Client != "globex" {
		t.Fatalf("expected globex job first across clients, got %+v", limited)
	}
}

func TestDueJobsSubSecondPrecision(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	testsupport.MustInsertJob(t, store, "acme", "/whole.jpg", queue.ContentFeed, base)
	testsupport.MustInsertJob(t, store, "acme", "/half.jpg", queue.ContentFeed, base.Add(500*time.Millisecond))

	due, err := store.DueJobs(context.Background(), queue.DueQuery{Limit: 10, AsOf: base.Add(100 * time.Millisecond)})
	if err != nil {
		t.Fatalf("DueJobs failed: %v", err)
	}
	if len(due) != 1 || due[0].Path != "/whole.jpg" {
		t.Fatalf("expected only the whole-second job to be due, got %+v", due)
	}
}

func TestStateTransitions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	id := testsupport.MustInsertJob(t, store, "acme", "/post.jpg", queue.ContentFeed, time.Now().Add(-time.Minute))

	ok, err := store.MarkInProgress(ctx, id)
	if err != nil || !ok {
		t.Fatalf("MarkInProgress: ok=%v err=%v", ok, err)
	}
	ok, err = store.MarkInProgress(ctx, id)
	if err != nil {
		t.Fatalf("second MarkInProgress returned error: %v", err)
	}
	if ok {
		t.Fatal("second MarkInProgress should be a no-op")
	}
	job := testsupport.MustGetJob(t, store, id)
	if job.Status != queue.StatusInProgress || job.Attempts != 1 {
		t.Fatalf("unexpected job after MarkInProgress: %+v", job)
	}

	retryAt := time.Now().Add(30 * time.Minute).UTC()
	if err := store.RescheduleAfterFailure(ctx, id, retryAt, "upload timed out"); err != nil {
		t.Fatalf("RescheduleAfterFailure: %v", err)
	}
	job = testsupport.MustGetJob(t, store, id)
	if job.Status != queue.StatusQueued || job.LastError != "upload timed out" || job.RescheduleReason != "upload timed out" {
		t.Fatalf("unexpected job after failure reschedule: %+v", job)
	}
	if !job.ETA.Equal(retryAt) {
		t.Fatalf("eta not updated: want %s got %s", retryAt, job.ETA)
	}

	if _, err := store.MarkInProgress(ctx, id); err != nil {
		t.Fatalf("MarkInProgress after reschedule: %v", err)
	}
	postedAt := time.Now().UTC()
	if err := store.MarkDone(ctx, id, "media-42", postedAt); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	job = testsupport.MustGetJob(t, store, id)
	if job.Status != queue.StatusDone || job.PostedAt == nil || job.MediaID != "media-42" || job.Attempts != 2 {
		t.Fatalf("unexpected job after MarkDone: %+v", job)
	}
	if job.LastError != "" {
		t.Fatalf("expected last error cleared on success, got %q", job.LastError)
	}

	if err := store.Reschedule(ctx, id, time.Now(), "quota"); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition rescheduling a done job, got %v", err)
	}
	if err := store.MarkFailed(ctx, id, "nope"); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition failing a done job, got %v", err)
	}
}

func TestMarkDoneRequiresInProgress(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	id := testsupport.MustInsertJob(t, store, "acme", "/queued.jpg", queue.ContentFeed, time.Now())
	if err := store.MarkDone(context.Background(), id, "", time.Now()); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestQuotaRescheduleKeepsAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	id := testsupport.MustInsertJob(t, store, "acme", "/q.jpg", queue.ContentFeed, time.Now())
	tomorrow := time.Now().Add(24 * time.Hour)
	if err := store.Reschedule(ctx, id, tomorrow, "quota reached acme/feed (2/2)"); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	job := testsupport.MustGetJob(t, store, id)
	if job.Status != queue.StatusQueued || job.Attempts != 0 || job.LastError != "" {
		t.Fatalf("quota deferral should not count as an attempt or error: %+v", job)
	}
	if job.RescheduleReason != "quota reached acme/feed (2/2)" {
		t.Fatalf("unexpected reason: %q", job.RescheduleReason)
	}
}

func TestMarkFailedAndRetry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	id := testsupport.MustInsertJob(t, store, "acme", "/gone.jpg", queue.ContentFeed, time.Now())
	if _, err := store.MarkInProgress(ctx, id); err != nil {
		t.Fatalf("MarkInProgress: %v", err)
	}
	if err := store.MarkFailed(ctx, id, "source file missing"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	job := testsupport.MustGetJob(t, store, id)
	if job.Status != queue.StatusFailed || job.LastError != "source file missing" {
		t.Fatalf("unexpected failed job: %+v", job)
	}

	asOf := time.Now().UTC()
	count, err := store.RetryFailed(ctx, asOf, id)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one retried job, got %d", count)
	}
	job = testsupport.MustGetJob(t, store, id)
	if job.Status != queue.StatusQueued || job.Attempts != 0 || !job.ETA.Equal(asOf) {
		t.Fatalf("unexpected retried job: %+v", job)
	}
}

func TestCountDoneWindow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	dayStart := time.Date(2025, 4, 2, 4, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	posted := []time.Time{
		dayStart.Add(-time.Second),
		dayStart,
		dayStart.Add(6 * time.Hour),
		dayEnd,
	}
	for i, at := range posted {
		id := testsupport.MustInsertJob(t, store, "acme", fmt.Sprintf("/p%d.jpg", i), queue.ContentFeed, at)
		if _, err := store.MarkInProgress(ctx, id); err != nil {
			t.Fatalf("MarkInProgress: %v", err)
		}
		if err := store.MarkDone(ctx, id, "", at); err != nil {
			t.Fatalf("MarkDone: %v", err)
		}
	}
	reelID := testsupport.MustInsertJob(t, store, "acme", "/reel.mp4", queue.ContentReels, dayStart)
	if _, err := store.MarkInProgress(ctx, reelID); err != nil {
		t.Fatalf("MarkInProgress: %v", err)
	}
	if err := store.MarkDone(ctx, reelID, "", dayStart.Add(time.Hour)); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}

	count, err := store.CountDone(ctx, "acme", queue.ContentFeed, dayStart, dayEnd)
	if err != nil {
		t.Fatalf("CountDone: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 feed posts inside the window, got %d", count)
	}
}

func TestResetStuckInProgress(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	stuck := testsupport.MustInsertJob(t, store, "acme", "/stuck.jpg", queue.ContentFeed, time.Now())
	waiting := testsupport.MustInsertJob(t, store, "acme", "/waiting.jpg", queue.ContentFeed, time.Now())
	if _, err := store.MarkInProgress(ctx, stuck); err != nil {
		t.Fatalf("MarkInProgress: %v", err)
	}

	count, err := store.ResetStuckInProgress(ctx)
	if err != nil {
		t.Fatalf("ResetStuckInProgress: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one reset, got %d", count)
	}
	job := testsupport.MustGetJob(t, store, stuck)
	if job.Status != queue.StatusQueued || job.RescheduleReason != queue.ReasonRecovered {
		t.Fatalf("unexpected reset job: %+v", job)
	}
	if other := testsupport.MustGetJob(t, store, waiting); other.RescheduleReason != "" {
		t.Fatalf("queued job should be untouched: %+v", other)
	}
}

func TestForceDueAndPurgeDone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	now := time.Now().UTC()

	later := testsupport.MustInsertJob(t, store, "acme", "/later.jpg", queue.ContentFeed, now.Add(48*time.Hour))
	testsupport.MustInsertJob(t, store, "globex", "/globex.jpg", queue.ContentFeed, now.Add(48*time.Hour))

	forced, err := store.ForceDue(ctx, "acme", now)
	if err != nil {
		t.Fatalf("ForceDue: %v", err)
	}
	if forced != 1 {
		t.Fatalf("expected one forced job, got %d", forced)
	}
	if job := testsupport.MustGetJob(t, store, later); !job.IsDue(now) {
		t.Fatalf("expected forced job to be due: %+v", job)
	}

	old := testsupport.MustInsertJob(t, store, "acme", "/old.jpg", queue.ContentFeed, now)
	if _, err := store.MarkInProgress(ctx, old); err != nil {
		t.Fatalf("MarkInProgress: %v", err)
	}
	if err := store.MarkDone(ctx, old, "", now.AddDate(0, 0, -40)); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	purged, err := store.PurgeDone(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("PurgeDone: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected one purged job, got %d", purged)
	}
	if job, err := store.GetByID(ctx, old); err != nil || job != nil {
		t.Fatalf("expected purged job to be gone, got %+v err=%v", job, err)
	}
}

func TestClientSummariesAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	now := time.Now().UTC()

	testsupport.MustInsertJob(t, store, "globex", "/g.jpg", queue.ContentFeed, now.Add(2*time.Hour))
	testsupport.MustInsertJob(t, store, "acme", "/a1.jpg", queue.ContentFeed, now.Add(time.Hour))
	failed := testsupport.MustInsertJob(t, store, "acme", "/a2.jpg", queue.ContentFeed, now)
	if err := store.MarkFailed(ctx, failed, "bad file"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	summaries, err := store.ClientSummaries(ctx)
	if err != nil {
		t.Fatalf("ClientSummaries: %v", err)
	}
	if len(summaries) != 2 || summaries[0].Client != "acme" {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}
	if summaries[0].Queued != 1 || summaries[0].Failed != 1 || summaries[0].NextETA == nil {
		t.Fatalf("unexpected acme summary: %+v", summaries[0])
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 3 || health.Queued != 2 || health.Failed != 1 {
		t.Fatalf("unexpected health: %+v", health)
	}

	dbHealth, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !dbHealth.DatabaseExists || !dbHealth.TableExists || !dbHealth.IntegrityCheck {
		t.Fatalf("unexpected db health: %+v", dbHealth)
	}
	if len(dbHealth.MissingColumns) != 0 || dbHealth.TotalJobs != 3 {
		t.Fatalf("unexpected columns or count: %+v", dbHealth)
	}
}

func TestReopenPreservesJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id := testsupport.MustInsertJob(t, store, "acme", "/keep.jpg", queue.ContentStories, time.Now())
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	job := testsupport.MustGetJob(t, reopened, id)
	if job.ContentType != queue.ContentStories {
		t.Fatalf("unexpected content type after reopen: %q", job.ContentType)
	}
}
