package testsupport

import (
	"context"
	"testing"
	"time"

	"autoposter/internal/config"
	"autoposter/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustInsertJob enqueues a job and fails the test when it was not created.
func MustInsertJob(t testing.TB, store *queue.Store, client, path string, contentType queue.ContentType, eta time.Time) int64 {
	t.Helper()

	id, created, err := store.InsertIfAbsent(context.Background(), queue.NewJob{
		Client:      client,
		Path:        path,
		ContentType: contentType,
		ETA:         eta,
		Source:      queue.SourceManual,
	})
	if err != nil {
		t.Fatalf("store.InsertIfAbsent: %v", err)
	}
	if !created {
		t.Fatalf("expected job for %s/%s to be new", client, path)
	}
	return id
}

// MustGetJob fetches a job and fails the test when it is missing.
func MustGetJob(t testing.TB, store *queue.Store, id int64) *queue.Job {
	t.Helper()

	job, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("store.GetByID: %v", err)
	}
	if job == nil {
		t.Fatalf("job %d not found", id)
	}
	return job
}
