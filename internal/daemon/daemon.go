package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"loom/internal/api"
	"loom/internal/config"
	"loom/internal/logging"
	"loom/internal/metrics"
	"loom/internal/preflight"
	"loom/internal/queue"
	"loom/internal/worker"
)

// Daemon owns the coordinator runtime: the HTTP API, the embedded
// worker pool, and the queue maintenance loops. A file lock enforces
// one instance per log directory.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *queue.Store
	service   *api.Service
	collector *metrics.Collector
	pool      *worker.Pool
	apiSrv    *apiServer

	logPath  string
	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status reports daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	QueueDBPath  string
	LockFilePath string
	Workers      worker.StatusSummary
	Queue        queue.HealthSummary
}

// New constructs a daemon around an open job store. The embedded pool
// is created only when workers.count is positive; a coordinator-only
// daemon still serves the API for external workers.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	collector := metrics.NewCollector()
	service := api.NewService(store, api.DefaultsFromConfig(cfg), api.WithRecorder(collector))

	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		service:   service,
		collector: collector,
		logPath:   cfg.DaemonLogPath(),
		lockPath:  cfg.LockPath(),
		lock:      flock.New(cfg.LockPath()),
	}
	if cfg.Workers.Count > 0 {
		d.pool = worker.New(cfg, service, nil, logger)
	}

	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.apiSrv = srv
	return d, nil
}

// Service exposes the queue API funnel shared by the HTTP handlers,
// the control socket, and the embedded pool.
func (d *Daemon) Service() *api.Service {
	return d.service
}

// LogPath returns the daemon log file location.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Addr returns the bound API listener address, or "" before Start.
func (d *Daemon) Addr() string {
	if d.apiSrv == nil {
		return ""
	}
	return d.apiSrv.addr()
}

// Start acquires the instance lock and launches the API server, the
// embedded workers, and the maintenance loops.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another loom daemon instance is already running")
	}

	for _, check := range preflight.RunAll(ctx, d.cfg) {
		if !check.Passed {
			d.logger.Warn("preflight check failed",
				logging.String("check", check.Name),
				logging.String("detail", check.Detail))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)

	if err := d.apiSrv.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	if d.pool != nil {
		if err := d.pool.Start(runCtx); err != nil {
			d.apiSrv.stop()
			cancel()
			_ = d.lock.Unlock()
			return fmt.Errorf("start worker pool: %w", err)
		}
	}

	d.cancel = cancel
	d.wg.Add(2)
	go d.runRetention(runCtx)
	go d.runQueueGauges(runCtx)

	d.running.Store(true)
	d.logger.Info("loom daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("workers", d.workerCount()))
	return nil
}

// Stop halts background work and releases the instance lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running.Load() {
		d.mu.Unlock()
		return
	}
	cancel := d.cancel
	d.cancel = nil
	d.running.Store(false)
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if d.pool != nil {
		d.pool.Stop()
	}
	d.apiSrv.stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("loom daemon stopped")
}

// Close stops the daemon and closes the job store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns current daemon runtime information. Queue occupancy
// is best effort; a failing store leaves the counters zero.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if d.pool != nil {
		status.Workers = d.pool.Status()
	}
	if health, err := d.store.Health(ctx); err == nil {
		status.Queue = health
	}
	return status
}

func (d *Daemon) workerCount() int {
	if d.pool == nil {
		return 0
	}
	return d.pool.Status().Workers
}
