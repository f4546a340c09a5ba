package assemble

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
)

func TestNewCLIWithBinary(t *testing.T) {
	cli := NewCLI(WithBinary("/opt/assembler"))
	if cli.binary != "/opt/assembler" {
		t.Fatalf("expected binary override to be applied, got %q", cli.binary)
	}
}

func TestAssembleRequiresSubject(t *testing.T) {
	cli := NewCLI()
	if _, err := cli.Assemble(context.Background(), Request{}, nil); err == nil {
		t.Fatal("expected error when subject id is empty")
	}
}

func TestAssembleRejectsInvalidPayload(t *testing.T) {
	cli := NewCLI()
	req := Request{SubjectID: "vid-1", Payload: "{broken"}
	if _, err := cli.Assemble(context.Background(), req, nil); err == nil {
		t.Fatal("expected error for invalid payload JSON")
	}
}

func TestAssemblePassesSubjectFlags(t *testing.T) {
	var capturedArgs []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		capturedArgs = append([]string(nil), args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "ASSEMBLER_HELPER_MODE=success")
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})

	cli := NewCLI()
	if _, err := cli.Assemble(context.Background(), Request{SubjectID: "vid-42"}, nil); err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}

	if idx := findArg(capturedArgs, "--subject"); idx == -1 || idx+1 >= len(capturedArgs) || capturedArgs[idx+1] != "vid-42" {
		t.Fatalf("expected --subject vid-42 in args %v", capturedArgs)
	}
	if findArg(capturedArgs, "--progress-json") == -1 {
		t.Fatalf("expected --progress-json flag, got %v", capturedArgs)
	}
}

func TestAssembleSuccess(t *testing.T) {
	setHelperCommand(t, "success")

	cli := NewCLI()
	var updates []ProgressUpdate
	result, err := cli.Assemble(context.Background(), Request{SubjectID: "vid-1"}, func(update ProgressUpdate) {
		updates = append(updates, update)
	})
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}

	if result.OutputPath != "/data/out/vid-1.mp4" {
		t.Fatalf("unexpected output path %q", result.OutputPath)
	}
	if len(updates) != 3 {
		t.Fatalf("expected 3 progress updates, got %d", len(updates))
	}
	if updates[0].Stage != StageStarting || updates[0].Percent != 1 {
		t.Fatalf("unexpected first update: %#v", updates[0])
	}
	middle := updates[1]
	if middle.Stage != StageMixingAudio {
		t.Fatalf("expected mixing_audio stage, got %q", middle.Stage)
	}
	if middle.ETASeconds != 180 {
		t.Fatalf("expected eta 180, got %d", middle.ETASeconds)
	}
	if middle.ElapsedSeconds != 120 {
		t.Fatalf("expected elapsed 120, got %d", middle.ElapsedSeconds)
	}
	last := updates[len(updates)-1]
	if last.Stage != StageCompleted || last.Percent != 100 {
		t.Fatalf("unexpected final update: %#v", last)
	}
}

func TestAssembleFailure(t *testing.T) {
	setHelperCommand(t, "failure")

	cli := NewCLI()
	if _, err := cli.Assemble(context.Background(), Request{SubjectID: "vid-1"}, nil); err == nil {
		t.Fatal("expected assembler failure error")
	}
}

func TestAssembleSkipsInvalidJSON(t *testing.T) {
	setHelperCommand(t, "badjson")

	cli := NewCLI()
	var updates []ProgressUpdate
	if _, err := cli.Assemble(context.Background(), Request{SubjectID: "vid-1"}, func(update ProgressUpdate) {
		updates = append(updates, update)
	}); err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("expected 1 progress update from valid json, got %d", len(updates))
	}
	if updates[0].Stage != StageJoiningClips {
		t.Fatalf("expected joining_clips stage, got %q", updates[0].Stage)
	}
}

func setHelperCommand(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("ASSEMBLER_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("ASSEMBLER_HELPER_MODE") {
	case "success":
		fmt.Println(`{"stage":"starting","percent":1,"message":"Starting assembly"}`)
		fmt.Println(`{"stage":"mixing_audio","percent":42,"eta_seconds":180,"elapsed_seconds":120,"message":"Mixing audio tracks"}`)
		fmt.Println(`{"stage":"completed","percent":100,"message":"Assembly completed","output":"/data/out/vid-1.mp4"}`)
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "assembly failed")
		os.Exit(1)
	case "badjson":
		fmt.Println("not-json")
		fmt.Println(`{"stage":"joining_clips","percent":55}`)
		os.Exit(0)
	default:
		os.Exit(0)
	}
}

func findArg(args []string, target string) int {
	for i, arg := range args {
		if arg == target {
			return i
		}
	}
	return -1
}
