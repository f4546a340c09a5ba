package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"loom/internal/deps"
)

func TestRenderStatusLinePlain(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "socket missing", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] socket missing")
	if got != want {
		t.Fatalf("renderStatusLine mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestRenderStatusLineColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
	if !strings.Contains(got, "[OK] Running") {
		t.Fatalf("expected status text, got %q", got)
	}
}

func TestRenderStatusLineWithoutMessage(t *testing.T) {
	got := renderStatusLine("Checks", statusWarn, "", false)
	if !strings.HasSuffix(got, "[WARN]") {
		t.Fatalf("expected bare status tag, got %q", got)
	}
}

func TestRenderSectionHeader(t *testing.T) {
	lines := renderSectionHeader("Queue", false)
	if len(lines) != 2 {
		t.Fatalf("expected header and rule, got %d lines", len(lines))
	}
	if lines[0] != "== Queue ==" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if lines[1] != strings.Repeat("-", len(lines[0])) {
		t.Fatalf("rule does not match header width: %q", lines[1])
	}
}

func TestDependencyLines(t *testing.T) {
	statuses := []deps.Status{
		{Name: "Assembler", Command: "loom-assembler", Available: true},
		{Name: "Probe", Command: "ffprobe", Available: false, Detail: "not found in PATH"},
	}

	lines := dependencyLines(statuses, false)
	if len(lines) != 3 {
		t.Fatalf("expected per-dep lines plus summary, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "Ready (command: loom-assembler)") {
		t.Fatalf("unexpected available line %q", lines[0])
	}
	if !strings.Contains(lines[1], "not found in PATH") {
		t.Fatalf("unexpected missing line %q", lines[1])
	}
	last := lines[len(lines)-1]
	if !strings.Contains(last, "Missing dependencies") || !strings.Contains(last, "Probe") {
		t.Fatalf("expected missing summary last, got %q", last)
	}
}

func TestDependencyLinesAllAvailable(t *testing.T) {
	lines := dependencyLines([]deps.Status{{Name: "Assembler", Available: true}}, false)
	for _, line := range lines {
		if strings.Contains(line, "Missing dependencies") {
			t.Fatalf("unexpected missing summary: %q", line)
		}
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatal("expected non-file writers to disable color")
	}
}
