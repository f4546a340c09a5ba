package worker_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"loom/internal/api"
	"loom/internal/assemble"
	"loom/internal/config"
	"loom/internal/queue"
	"loom/internal/testsupport"
	"loom/internal/worker"
)

// scriptedRunner hands each run to a handler along with its 1-based run
// index so tests can fail early attempts and succeed later ones.
type scriptedRunner struct {
	mu      sync.Mutex
	runs    []assemble.Request
	handler func(run int, ctx context.Context, req assemble.Request, progress func(assemble.ProgressUpdate)) (assemble.Result, error)
}

func (r *scriptedRunner) Assemble(ctx context.Context, req assemble.Request, progress func(assemble.ProgressUpdate)) (assemble.Result, error) {
	r.mu.Lock()
	r.runs = append(r.runs, req)
	run := len(r.runs)
	handler := r.handler
	r.mu.Unlock()
	if handler == nil {
		return assemble.Result{}, nil
	}
	return handler(run, ctx, req, progress)
}

func (r *scriptedRunner) runCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func newServiceEnv(t *testing.T, mutate func(cfg *config.Config)) (*config.Config, *api.Service) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workers.PollInterval = 1
	if mutate != nil {
		mutate(cfg)
	}
	store := testsupport.MustOpenStore(t, cfg)
	return cfg, api.NewService(store, api.DefaultsFromConfig(cfg))
}

func submitSubject(t *testing.T, svc *api.Service, subjectID string) {
	t.Helper()
	if _, err := svc.Submit(context.Background(), api.SubmitRequest{SubjectID: subjectID}); err != nil {
		t.Fatalf("submit %s failed: %v", subjectID, err)
	}
}

func statusOf(t *testing.T, svc *api.Service, subjectID string) *api.Job {
	t.Helper()
	job, err := svc.Status(context.Background(), subjectID)
	if err != nil {
		t.Fatalf("status %s failed: %v", subjectID, err)
	}
	return job
}

func waitFor(t *testing.T, within time.Duration, cond func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", within, message)
}

func TestPoolRunsJobsToCompletion(t *testing.T) {
	cfg, svc := newServiceEnv(t, nil)
	submitSubject(t, svc, "vid-1")
	submitSubject(t, svc, "vid-2")

	runner := &scriptedRunner{handler: func(_ int, _ context.Context, req assemble.Request, progress func(assemble.ProgressUpdate)) (assemble.Result, error) {
		progress(assemble.ProgressUpdate{Stage: assemble.StageMixingAudio, Percent: 40, Message: "mixing tracks"})
		return assemble.Result{OutputPath: "/out/" + req.SubjectID + ".mp4"}, nil
	}}

	pool := worker.New(cfg, svc, runner, nil)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("pool start failed: %v", err)
	}
	defer pool.Stop()

	waitFor(t, 15*time.Second, func() bool {
		for _, subject := range []string{"vid-1", "vid-2"} {
			job := statusOf(t, svc, subject)
			if job == nil || job.Status != string(queue.StatusCompleted) {
				return false
			}
		}
		return true
	}, "jobs did not complete")

	pool.Stop()
	if got := runner.runCount(); got != 2 {
		t.Fatalf("expected 2 runs, got %d", got)
	}
	summary := pool.Status()
	if summary.Processed != 2 {
		t.Fatalf("expected 2 processed jobs, got %d", summary.Processed)
	}
	if summary.Running {
		t.Fatal("expected pool to report stopped")
	}

	job := statusOf(t, svc, "vid-1")
	if job.Progress.Percent == nil || *job.Progress.Percent != 100 {
		t.Fatalf("expected completed job progress 100, got %+v", job.Progress)
	}
}

func TestPoolRetriesRecoverableFailures(t *testing.T) {
	cfg, svc := newServiceEnv(t, nil)
	submitSubject(t, svc, "vid-1")

	runner := &scriptedRunner{handler: func(run int, _ context.Context, _ assemble.Request, _ func(assemble.ProgressUpdate)) (assemble.Result, error) {
		if run == 1 {
			return assemble.Result{}, errors.New("render crashed")
		}
		return assemble.Result{OutputPath: "/out/vid-1.mp4"}, nil
	}}

	pool := worker.New(cfg, svc, runner, nil)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("pool start failed: %v", err)
	}
	defer pool.Stop()

	waitFor(t, 20*time.Second, func() bool {
		job := statusOf(t, svc, "vid-1")
		return job != nil && job.Status == string(queue.StatusCompleted)
	}, "job did not recover from a failed run")

	if got := runner.runCount(); got != 2 {
		t.Fatalf("expected a failed run plus a retry, got %d runs", got)
	}
	job := statusOf(t, svc, "vid-1")
	if job.Attempts != 1 {
		t.Fatalf("expected one recorded failure attempt, got %d", job.Attempts)
	}
}

func TestPoolMarksInvalidRequestsPermanent(t *testing.T) {
	cfg, svc := newServiceEnv(t, nil)
	submitSubject(t, svc, "vid-1")

	runner := &scriptedRunner{handler: func(_ int, _ context.Context, _ assemble.Request, _ func(assemble.ProgressUpdate)) (assemble.Result, error) {
		return assemble.Result{}, fmt.Errorf("%w: clip manifest missing", assemble.ErrInvalidRequest)
	}}

	pool := worker.New(cfg, svc, runner, nil)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("pool start failed: %v", err)
	}
	defer pool.Stop()

	waitFor(t, 15*time.Second, func() bool {
		job := statusOf(t, svc, "vid-1")
		return job != nil && job.Status == string(queue.StatusFailed)
	}, "invalid request did not fail permanently")

	if got := runner.runCount(); got != 1 {
		t.Fatalf("expected no retries for an invalid request, got %d runs", got)
	}
	job := statusOf(t, svc, "vid-1")
	if !strings.Contains(job.Error, "clip manifest missing") {
		t.Fatalf("expected failure reason on the job, got %q", job.Error)
	}
	if job.Attempts >= job.MaxAttempts {
		t.Fatalf("expected failure before the attempt budget ran out, got %d/%d", job.Attempts, job.MaxAttempts)
	}
}

func TestPoolHonorsJobBudget(t *testing.T) {
	cfg, svc := newServiceEnv(t, func(cfg *config.Config) {
		cfg.Workers.MaxJobs = 1
	})
	submitSubject(t, svc, "vid-1")
	submitSubject(t, svc, "vid-2")

	runner := &scriptedRunner{}
	pool := worker.New(cfg, svc, runner, nil)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("pool start failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("pool did not exit after exhausting its job budget")
	}

	first := statusOf(t, svc, "vid-1")
	if first == nil || first.Status != string(queue.StatusCompleted) {
		t.Fatalf("expected the first job to complete, got %+v", first)
	}
	second := statusOf(t, svc, "vid-2")
	if second == nil || second.Status != string(queue.StatusPending) {
		t.Fatalf("expected the second job to stay pending, got %+v", second)
	}
	summary := pool.Status()
	if summary.Processed != 1 || summary.Running {
		t.Fatalf("unexpected pool summary after budget exit: %+v", summary)
	}
}

func TestPoolDrainModeExitsOnEmptyQueue(t *testing.T) {
	cfg, svc := newServiceEnv(t, nil)
	submitSubject(t, svc, "vid-1")
	submitSubject(t, svc, "vid-2")

	runner := &scriptedRunner{}
	pool := worker.New(cfg, svc, runner, nil, worker.WithDrainMode(true))
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("pool start failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("pool did not exit after draining the queue")
	}

	for _, subject := range []string{"vid-1", "vid-2"} {
		job := statusOf(t, svc, subject)
		if job == nil || job.Status != string(queue.StatusCompleted) {
			t.Fatalf("expected %s to complete before drain exit, got %+v", subject, job)
		}
	}
	if got := runner.runCount(); got != 2 {
		t.Fatalf("expected 2 runs before drain exit, got %d", got)
	}
}

func TestPoolStopsRunWhenJobCanceled(t *testing.T) {
	cfg, svc := newServiceEnv(t, nil)
	submitSubject(t, svc, "vid-1")

	started := make(chan struct{})
	var once sync.Once
	runner := &scriptedRunner{handler: func(_ int, ctx context.Context, _ assemble.Request, _ func(assemble.ProgressUpdate)) (assemble.Result, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return assemble.Result{}, ctx.Err()
	}}

	pool := worker.New(cfg, svc, runner, nil, worker.WithCancelCheckInterval(50*time.Millisecond))
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("pool start failed: %v", err)
	}
	defer pool.Stop()

	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("assembler never started")
	}

	running := statusOf(t, svc, "vid-1")
	if running == nil || !strings.HasPrefix(running.WorkerID, "assembly-worker-") {
		t.Fatalf("expected a pool worker to own the lease, got %+v", running)
	}

	resp, err := svc.Cancel(context.Background(), "vid-1")
	if err != nil || !resp.Changed {
		t.Fatalf("cancel failed: changed=%v err=%v", resp.Changed, err)
	}

	waitFor(t, 10*time.Second, func() bool {
		return pool.Status().Processed == 1
	}, "canceled run never wound down")

	job := statusOf(t, svc, "vid-1")
	if job == nil || job.Status != string(queue.StatusCanceled) {
		t.Fatalf("expected the job to stay canceled, got %+v", job)
	}
	if job.Error != "" {
		t.Fatalf("cancellation must not record a failure, got %q", job.Error)
	}
}

func TestPoolEnforcesRuntimeLimit(t *testing.T) {
	cfg, svc := newServiceEnv(t, func(cfg *config.Config) {
		cfg.Workers.MaxRuntime = 1
	})
	submitSubject(t, svc, "vid-1")

	runner := &scriptedRunner{handler: func(_ int, ctx context.Context, _ assemble.Request, _ func(assemble.ProgressUpdate)) (assemble.Result, error) {
		<-ctx.Done()
		return assemble.Result{}, ctx.Err()
	}}

	pool := worker.New(cfg, svc, runner, nil)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("pool start failed: %v", err)
	}
	defer pool.Stop()

	waitFor(t, 15*time.Second, func() bool {
		job := statusOf(t, svc, "vid-1")
		return job != nil && job.Status == string(queue.StatusRetry) &&
			strings.Contains(job.Error, "runtime limit")
	}, "runtime limit never failed the job")
}

func TestPoolForwardsProgressDetail(t *testing.T) {
	cfg, svc := newServiceEnv(t, nil)
	submitSubject(t, svc, "vid-1")

	reported := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	runner := &scriptedRunner{handler: func(_ int, _ context.Context, _ assemble.Request, progress func(assemble.ProgressUpdate)) (assemble.Result, error) {
		progress(assemble.ProgressUpdate{
			Stage:          assemble.StageUploadingVideo,
			ElapsedSeconds: 120,
			Message:        "uploading artifact",
		})
		once.Do(func() { close(reported) })
		<-release
		return assemble.Result{OutputPath: "/out/vid-1.mp4"}, nil
	}}

	pool := worker.New(cfg, svc, runner, nil)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("pool start failed: %v", err)
	}
	defer pool.Stop()

	select {
	case <-reported:
	case <-time.After(10 * time.Second):
		t.Fatal("assembler never reported progress")
	}

	waitFor(t, 5*time.Second, func() bool {
		job := statusOf(t, svc, "vid-1")
		return job != nil && job.Progress.Percent != nil && *job.Progress.Percent == 95
	}, "stage anchor percent never reached the queue")

	job := statusOf(t, svc, "vid-1")
	if job.Progress.Stage != assemble.StageUploadingVideo {
		t.Fatalf("expected uploading_video stage, got %q", job.Progress.Stage)
	}
	if job.Progress.LogLine != "uploading artifact" {
		t.Fatalf("expected the progress message as log line, got %q", job.Progress.LogLine)
	}
	if job.Progress.ElapsedSeconds == nil || *job.Progress.ElapsedSeconds != 120 {
		t.Fatalf("expected elapsed 120, got %+v", job.Progress.ElapsedSeconds)
	}
	if job.Progress.ETASeconds == nil || *job.Progress.ETASeconds != 6 {
		t.Fatalf("expected projected eta 6, got %+v", job.Progress.ETASeconds)
	}

	close(release)
	waitFor(t, 10*time.Second, func() bool {
		job := statusOf(t, svc, "vid-1")
		return job != nil && job.Status == string(queue.StatusCompleted)
	}, "job did not finish after progress check")
}
