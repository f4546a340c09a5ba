package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestLogsTailsDaemonLog(t *testing.T) {
	env := setupCLITestEnv(t)

	if err := appendLine(env.logPath, "daemon starting"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := appendLine(env.logPath, "worker claimed job 1"); err != nil {
		t.Fatalf("append: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "daemon starting")
	requireContains(t, out, "worker claimed job 1")
}

func TestLogsLimitsLineCount(t *testing.T) {
	env := setupCLITestEnv(t)

	for _, line := range []string{"first", "second", "third"} {
		if err := appendLine(env.logPath, line); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	out, _, err := runCLI(t, []string{"logs", "--lines", "2"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.Contains(out, "first") {
		t.Fatalf("expected oldest line trimmed, got %q", out)
	}
	requireContains(t, out, "second")
	requireContains(t, out, "third")
}

func TestLogsEmptyFile(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"logs"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "No log entries available")
}

func TestLogsWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	deadSocket := filepath.Join(env.baseDir, "missing.sock")
	_, _, err := runCLI(t, []string{"logs"}, deadSocket, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "daemon logs are unavailable") {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}
