package daemon_test

import (
	"context"
	"testing"
	"time"

	"loom/internal/api"
	"loom/internal/daemon"
	"loom/internal/logging"
	"loom/internal/testsupport"
)

func waitFor(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workers.Count = 0
	store := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.PID <= 0 {
		t.Fatalf("expected a live pid, got %d", status.PID)
	}
	if d.Addr() == "" {
		t.Fatal("expected API listener address after start")
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}

	// The lock and listener are released on stop, so a fresh start works.
	if err := d.Start(ctx); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	d.Stop()
}

func TestDaemonSecondInstanceBlocked(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workers.Count = 0
	storeA := testsupport.MustOpenStore(t, cfg)
	storeB := testsupport.MustOpenStore(t, cfg)

	first, err := daemon.New(cfg, storeA, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New first: %v", err)
	}
	second, err := daemon.New(cfg, storeB, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New second: %v", err)
	}
	t.Cleanup(func() {
		_ = first.Close()
		_ = second.Close()
	})

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		t.Fatal("expected second instance start to fail while lock is held")
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second instance should start once lock is free: %v", err)
	}
	second.Stop()
}

func TestDaemonEmbeddedPoolCompletesJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Workers.Count = 1
	cfg.Workers.PollInterval = 1
	store := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	client := api.NewClient("http://" + d.Addr())
	if _, err := client.Submit(ctx, api.SubmitRequest{SubjectID: "vid-embedded"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	waitFor(t, 15*time.Second, func() bool {
		job, err := client.Status(ctx, "vid-embedded")
		return err == nil && job != nil && job.Status == "completed"
	})

	status := d.Status(ctx)
	if status.Workers.Processed == 0 {
		t.Fatal("expected the embedded pool to record processed jobs")
	}
	if status.Queue.Completed != 1 {
		t.Fatalf("expected one completed job in queue health, got %+v", status.Queue)
	}
}
