package main

import (
	"encoding/json"
	"testing"

	"loom/internal/testsupport"
)

func TestStatusShowsDaemonAndChecks(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not running")
	requireContains(t, out, "Data directory")
	requireContains(t, out, "Log directory")
	requireContains(t, out, "Assembler")
	requireContains(t, out, "Queue is empty")
}

func TestStatusShowsQueueCounts(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.NewJob(t, env.store, env.cfg, "vid-alpha")

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Pending")
	requireContains(t, out, "1")
}

func TestStatusForSubject(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.NewJob(t, env.store, env.cfg, "vid-alpha")

	out, _, err := runCLI(t, []string{"status", "vid-alpha"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status subject: %v", err)
	}
	requireContains(t, out, "vid-alpha")
	requireContains(t, out, "Pending")

	out, _, err = runCLI(t, []string{"status", "ghost"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status ghost: %v", err)
	}
	requireContains(t, out, "No job found for subject ghost")
}

func TestStatusJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}

	var payload struct {
		Status struct {
			Running bool `json:"running"`
		} `json:"Status"`
		Checks []map[string]any `json:"Checks"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("invalid JSON: %v\noutput: %s", err, out)
	}
	if payload.Status.Running {
		t.Fatal("expected daemon to report not running")
	}
	if len(payload.Checks) == 0 {
		t.Fatal("expected readiness checks in snapshot")
	}
}

func TestStopWithoutDaemonSocket(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"stop"}, "/nonexistent/loom-test.sock", env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}
