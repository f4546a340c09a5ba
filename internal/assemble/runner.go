package assemble

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var commandContext = exec.CommandContext

// ErrInvalidRequest marks requests the assembler cannot act on; retrying
// them cannot succeed.
var ErrInvalidRequest = errors.New("invalid assembly request")

// ProgressUpdate captures assembler progress events.
type ProgressUpdate struct {
	Percent        int
	Stage          string
	ETASeconds     int
	ElapsedSeconds int
	Message        string
}

// Request describes one assembly run.
type Request struct {
	SubjectID string
	Payload   string
}

// Result carries the artifacts of a successful run.
type Result struct {
	OutputPath string
}

// Runner defines assembler behaviour.
type Runner interface {
	Assemble(ctx context.Context, req Request, progress func(ProgressUpdate)) (Result, error)
}

// Option configures the CLI runner.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// CLI wraps the external assembler binary. The payload travels on stdin;
// the binary reports JSON progress lines on stdout until it exits.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI runner using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "loom-assembler"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Assemble launches the assembler for one subject and streams its
// progress events to the callback. It returns once the process exits.
func (c *CLI) Assemble(ctx context.Context, req Request, progress func(ProgressUpdate)) (Result, error) {
	subject := strings.TrimSpace(req.SubjectID)
	if subject == "" {
		return Result{}, fmt.Errorf("%w: subject id required", ErrInvalidRequest)
	}
	payload := strings.TrimSpace(req.Payload)
	if payload == "" {
		payload = "{}"
	}
	if !json.Valid([]byte(payload)) {
		return Result{}, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidRequest)
	}

	args := []string{"assemble", "--subject", subject, "--progress-json"}
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	cmd.Stdin = strings.NewReader(payload)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start assembler: %w", err)
	}

	var outputPath string
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Bytes()
		var event struct {
			Stage          string `json:"stage"`
			Percent        int    `json:"percent"`
			ETASeconds     int    `json:"eta_seconds"`
			ElapsedSeconds int    `json:"elapsed_seconds"`
			Message        string `json:"message"`
			Output         string `json:"output"`
		}
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		if event.Output != "" {
			outputPath = event.Output
		}
		if progress != nil {
			progress(ProgressUpdate{
				Percent:        event.Percent,
				Stage:          event.Stage,
				ETASeconds:     event.ETASeconds,
				ElapsedSeconds: event.ElapsedSeconds,
				Message:        event.Message,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return Result{}, fmt.Errorf("read assembler output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		return Result{}, fmt.Errorf("assembler failed: %w", err)
	}

	return Result{OutputPath: outputPath}, nil
}

var _ Runner = (*CLI)(nil)
