// Package daemonrun hosts the daemon process loop shared by the loomd
// binary and the hidden `loom daemon` subcommand, so both entry points
// run the exact same runtime.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"loom/internal/config"
	"loom/internal/daemon"
	"loom/internal/deps"
	"loom/internal/ipc"
	"loom/internal/logging"
	"loom/internal/queue"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// SocketPath overrides the configured IPC socket location when set.
	SocketPath string
	// LogLevel overrides the configured level when set.
	LogLevel string
	// Diagnostic forces debug logging with source locations.
	Diagnostic bool
}

// Run starts the loom daemon runtime loop and blocks until SIGINT or
// SIGTERM arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	if opts.Diagnostic {
		level = "debug"
	}

	// The daemon log stays at a fixed path; /api/logs and the IPC
	// LogTail handler read the same file the logger writes.
	logPath := cfg.DaemonLogPath()
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Diagnostic,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if opts.Diagnostic {
		logger.Info("diagnostic mode enabled", logging.String("log_path", logPath))
	}

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}
	logRuntimeSnapshot(logger, cfg, socketPath)

	pidPath := filepath.Join(cfg.Paths.LogDir, "loomd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	d, err := daemon.New(cfg, store, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	// A failed start leaves the process alive so the control socket can
	// report the problem and accept a later Start.
	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String("hint", "check configuration and queue database access"))
	}

	<-signalCtx.Done()
	logger.Info("loom daemon shutting down")
	return nil
}

func logRuntimeSnapshot(logger *slog.Logger, cfg *config.Config, socketPath string) {
	if logger == nil || cfg == nil {
		return
	}
	assembler := deps.CheckAssembler(cfg.Workers.AssemblerBinary)
	logger.Info("runtime snapshot",
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.String("socket", socketPath),
		logging.String("database", cfg.DatabasePath()),
		logging.Int("workers", cfg.Workers.Count),
		logging.Bool("assembler_available", assembler.Available),
		logging.String("assembler_binary", assembler.Command),
	)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
