package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"loom/internal/api"
	"loom/internal/assemble"
	"loom/internal/config"
	"loom/internal/logging"
)

// Source is the queue surface a worker drives. Both api.Service and
// api.Client satisfy it, so embedded and remote workers share one loop.
type Source interface {
	Claim(ctx context.Context, req api.ClaimRequest) (*api.Job, error)
	Complete(ctx context.Context, req api.CompleteRequest) (*api.Job, error)
	Fail(ctx context.Context, req api.FailRequest) (*api.Job, error)
	Progress(ctx context.Context, req api.ProgressRequest) (*api.Job, error)
	Describe(ctx context.Context, id int64) (*api.Job, error)
}

// Pool runs a fixed set of assembly workers against a job source.
type Pool struct {
	source Source
	runner assemble.Runner
	logger *slog.Logger

	count         int
	pollInterval  time.Duration
	leaseSeconds  int
	maxJobs       int
	maxRuntime    time.Duration
	checkInterval time.Duration
	drain         bool

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	claimed  int
	finished int
	lastErr  error
	lastJob  *api.Job

	wg sync.WaitGroup
}

// Option configures optional Pool behavior.
type Option func(*Pool)

// WithCancelCheckInterval overrides how often a busy worker re-reads its
// job to spot external cancellation or a stolen lease.
func WithCancelCheckInterval(interval time.Duration) Option {
	return func(p *Pool) {
		if interval > 0 {
			p.checkInterval = interval
		}
	}
}

// WithDrainMode makes workers exit once a claim comes back empty instead
// of sleeping through the poll interval. Claim errors still retry.
func WithDrainMode(drain bool) Option {
	return func(p *Pool) {
		p.drain = drain
	}
}

// New constructs a worker pool from configuration. A nil runner falls
// back to the CLI assembler named in the config.
func New(cfg *config.Config, source Source, runner assemble.Runner, logger *slog.Logger, opts ...Option) *Pool {
	pool := &Pool{
		source:       source,
		runner:       runner,
		logger:       logging.NewComponentLogger(logger, "worker-pool"),
		count:        1,
		pollInterval: 5 * time.Second,
		leaseSeconds: 900,
	}
	if cfg != nil {
		if cfg.Workers.Count > 0 {
			pool.count = cfg.Workers.Count
		}
		if cfg.Workers.PollInterval > 0 {
			pool.pollInterval = time.Duration(cfg.Workers.PollInterval) * time.Second
		}
		if cfg.Workers.LeaseSeconds > 0 {
			pool.leaseSeconds = cfg.Workers.LeaseSeconds
		}
		if cfg.Workers.MaxJobs > 0 {
			pool.maxJobs = cfg.Workers.MaxJobs
		}
		if cfg.Workers.MaxRuntime > 0 {
			pool.maxRuntime = time.Duration(cfg.Workers.MaxRuntime) * time.Second
		}
		if pool.runner == nil {
			pool.runner = assemble.NewCLI(assemble.WithBinary(cfg.Workers.AssemblerBinary))
		}
	}
	if pool.runner == nil {
		pool.runner = assemble.NewCLI()
	}
	pool.checkInterval = pool.pollInterval
	for _, opt := range opts {
		opt(pool)
	}
	return pool
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("worker pool already running")
	}
	if p.source == nil {
		p.mu.Unlock()
		return errors.New("worker pool has no job source")
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	count := p.count
	p.wg.Add(count)
	p.mu.Unlock()

	for i := 0; i < count; i++ {
		workerID := fmt.Sprintf("assembly-worker-%s", uuid.NewString()[:8])
		go p.runWorker(runCtx, workerID)
	}

	p.logger.Info("worker pool started",
		logging.Int("workers", count),
		logging.Duration("poll_interval", p.pollInterval),
		logging.Int("lease_seconds", p.leaseSeconds))
	return nil
}

// Stop terminates the workers and waits for them to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Wait blocks until every worker goroutine has exited, either through
// Stop or by exhausting the job budget.
func (p *Pool) Wait() {
	p.wg.Wait()

	p.mu.Lock()
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// StatusSummary represents lightweight pool diagnostics.
type StatusSummary struct {
	Running   bool
	Workers   int
	Processed int
	LastError string
	LastJob   *api.Job
}

// Status returns the latest pool information.
func (p *Pool) Status() StatusSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	summary := StatusSummary{
		Running:   p.running,
		Workers:   p.count,
		Processed: p.finished,
	}
	if p.lastErr != nil {
		summary.LastError = p.lastErr.Error()
	}
	if p.lastJob != nil {
		job := *p.lastJob
		summary.LastJob = &job
	}
	return summary
}

// reserveJobSlot accounts one claim against the job budget. Callers must
// release the slot when the claim comes back empty.
func (p *Pool) reserveJobSlot() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.maxJobs > 0 && p.claimed >= p.maxJobs {
		return false
	}
	p.claimed++
	return true
}

func (p *Pool) releaseJobSlot() {
	p.mu.Lock()
	if p.claimed > 0 {
		p.claimed--
	}
	p.mu.Unlock()
}

func (p *Pool) noteFinished(job *api.Job) {
	p.mu.Lock()
	p.finished++
	if job != nil {
		copied := *job
		p.lastJob = &copied
	}
	p.mu.Unlock()
}

func (p *Pool) setLastError(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
}
