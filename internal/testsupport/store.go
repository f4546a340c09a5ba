package testsupport

import (
	"context"
	"testing"

	"loom/internal/config"
	"loom/internal/queue"
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

// NewJob enqueues a job for tests using the provided store.
func NewJob(t testing.TB, store *queue.Store, cfg *config.Config, subjectID string) *queue.Job {
	t.Helper()

	job, _, err := store.Enqueue(context.Background(), queue.EnqueueParams{
		SubjectID:   subjectID,
		Priority:    cfg.Queue.DefaultPriority,
		MaxAttempts: cfg.Queue.MaxAttempts,
	})
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return job
}
