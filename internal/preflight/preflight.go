package preflight

import (
	"context"
	"os"

	"loom/internal/config"
)

// Result reports the outcome of a single readiness check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the readiness checks for the given config. The daemon
// logs failures at startup and the CLI status command renders the same
// set, so the two surfaces cannot drift apart.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	// Embedded workers shell out to the assembler. An API-only daemon
	// (workers.count = 0) leaves assembly to external workers, which
	// check their own binary.
	if cfg.Workers.Count > 0 {
		results = append(results, CheckAssembler(cfg))
	}

	// The database check applies only once the file exists; a fresh
	// install creates it on first open.
	if _, err := os.Stat(cfg.DatabasePath()); err == nil {
		results = append(results, CheckDatabase(ctx, cfg))
	}

	return results
}
