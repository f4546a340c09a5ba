package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"loom/internal/config"
	"loom/internal/deps"
	"loom/internal/queue"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckAssembler reports whether the configured assembler binary is launchable.
func CheckAssembler(cfg *config.Config) Result {
	const name = "Assembler"
	if cfg == nil {
		return Result{Name: name, Detail: "unknown"}
	}
	status := deps.CheckAssembler(cfg.Workers.AssemblerBinary)
	if status.Available {
		return Result{Name: name, Passed: true, Detail: status.Command}
	}
	return Result{Name: name, Detail: status.Detail}
}

// CheckDatabase opens the queue database and verifies schema and integrity.
// It holds its own short-lived connection so the check also works while the
// daemon is down.
func CheckDatabase(ctx context.Context, cfg *config.Config) Result {
	const name = "Queue database"
	if cfg == nil {
		return Result{Name: name, Detail: "unknown"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	store, err := queue.Open(cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer store.Close()

	health, err := store.CheckHealth(checkCtx)
	if err != nil {
		detail := health.Error
		if detail == "" {
			detail = err.Error()
		}
		return Result{Name: name, Detail: detail}
	}
	if !health.TableExists {
		return Result{Name: name, Detail: "jobs table missing"}
	}
	if len(health.MissingColumns) > 0 {
		return Result{Name: name, Detail: fmt.Sprintf("missing columns: %s", strings.Join(health.MissingColumns, ", "))}
	}
	if !health.IntegrityCheck {
		return Result{Name: name, Detail: "integrity check failed"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d jobs (integrity ok)", health.TotalJobs)}
}

// CheckSystemDeps evaluates the external binaries the daemon shells out to.
// Both the daemon and the CLI status command use this so the requirements
// list lives in one place.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	if cfg == nil {
		return nil
	}
	requirements := []deps.Requirement{
		{
			Name:        "Assembler",
			Command:     cfg.Workers.AssemblerBinary,
			Description: "Renders assembly payloads into video artifacts",
		},
	}
	return deps.CheckBinaries(requirements)
}
