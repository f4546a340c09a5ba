package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"loom/internal/queue"
)

func TestSubmitCreatesJob(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"submit", "vid-alpha"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requireContains(t, out, "Queued vid-alpha as job")

	job, err := env.store.LatestBySubject(context.Background(), "vid-alpha")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if job == nil || job.Status != queue.StatusPending {
		t.Fatalf("expected pending job, got %+v", job)
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"submit", "vid-alpha"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	out, _, err := runCLI(t, []string{"submit", "vid-alpha"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	requireContains(t, out, "already covered by job")

	jobs, err := env.store.JobsBySubject(context.Background(), "vid-alpha")
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected a single job, got %d", len(jobs))
	}
}

func TestSubmitWithPayloadAndPriority(t *testing.T) {
	env := setupCLITestEnv(t)

	payloadPath := filepath.Join(env.baseDir, "payload.json")
	if err := os.WriteFile(payloadPath, []byte(`{"source":"s3://bucket/vid-alpha"}`), 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}

	out, _, err := runCLI(t, []string{"submit", "vid-alpha", "--payload", payloadPath, "--priority", "9"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requireContains(t, out, "Queued vid-alpha")

	job, err := env.store.LatestBySubject(context.Background(), "vid-alpha")
	if err != nil || job == nil {
		t.Fatalf("lookup: job=%v err=%v", job, err)
	}
	if job.Priority != 9 {
		t.Fatalf("expected priority 9, got %d", job.Priority)
	}
	if !strings.Contains(job.Payload, "s3://bucket/vid-alpha") {
		t.Fatalf("payload not stored: %q", job.Payload)
	}
}

func TestSubmitRejectsInvalidPayload(t *testing.T) {
	env := setupCLITestEnv(t)

	payloadPath := filepath.Join(env.baseDir, "payload.json")
	if err := os.WriteFile(payloadPath, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}

	_, _, err := runCLI(t, []string{"submit", "vid-alpha", "--payload", payloadPath}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "valid JSON") {
		t.Fatalf("expected payload validation error, got %v", err)
	}
}

func TestSubmitJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"submit", "vid-alpha", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("submit --json: %v", err)
	}

	var payload struct {
		Job     map[string]any `json:"job"`
		Created bool           `json:"created"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("invalid JSON: %v\noutput: %s", err, out)
	}
	if !payload.Created {
		t.Fatalf("expected created=true, got %s", out)
	}
	if payload.Job["subjectId"] != "vid-alpha" {
		t.Fatalf("expected subjectId vid-alpha, got %v", payload.Job["subjectId"])
	}
}

func TestSubmitFallsBackWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	deadSocket := filepath.Join(env.baseDir, "missing.sock")
	out, _, err := runCLI(t, []string{"submit", "vid-alpha"}, deadSocket, env.configPath)
	if err != nil {
		t.Fatalf("submit without daemon: %v", err)
	}
	requireContains(t, out, "Queued vid-alpha as job")

	job, err := env.store.LatestBySubject(context.Background(), "vid-alpha")
	if err != nil || job == nil {
		t.Fatalf("lookup: job=%v err=%v", job, err)
	}
}
