package main

import (
	"context"
	"testing"
	"time"

	"loom/internal/queue"
	"loom/internal/testsupport"
)

func TestCancelPendingJob(t *testing.T) {
	env := setupCLITestEnv(t)
	job := testsupport.NewJob(t, env.store, env.cfg, "vid-alpha")

	out, _, err := runCLI(t, []string{"cancel", "vid-alpha"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireContains(t, out, "Canceled vid-alpha")

	refreshed, err := env.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if refreshed.Status != queue.StatusCanceled {
		t.Fatalf("expected canceled, got %s", refreshed.Status)
	}
}

func TestCancelUnknownSubject(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"cancel", "ghost"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireContains(t, out, "No job found for subject ghost")
}

func TestCancelCompletedJobIsNoop(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()
	testsupport.NewJob(t, env.store, env.cfg, "vid-alpha")

	claimed, err := env.store.Claim(ctx, "w1", time.Minute)
	if err != nil || claimed == nil {
		t.Fatalf("claim: job=%v err=%v", claimed, err)
	}
	if _, err := env.store.Complete(ctx, claimed.ID, "w1"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	out, _, err := runCLI(t, []string{"cancel", "vid-alpha"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireContains(t, out, "Nothing to cancel for vid-alpha")
	requireContains(t, out, "Completed")
}

func TestCancelMultipleSubjects(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.NewJob(t, env.store, env.cfg, "vid-alpha")
	testsupport.NewJob(t, env.store, env.cfg, "vid-beta")

	out, _, err := runCLI(t, []string{"cancel", "vid-alpha", "vid-beta"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireContains(t, out, "Canceled vid-alpha")
	requireContains(t, out, "Canceled vid-beta")
}
