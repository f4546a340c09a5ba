package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"loom/internal/api"
	"loom/internal/assemble"
	"loom/internal/logging"
	"loom/internal/queue"
)

func (p *Pool) runWorker(ctx context.Context, workerID string) {
	defer p.wg.Done()
	logger := p.logger.With(logging.String(logging.FieldWorkerID, workerID))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !p.reserveJobSlot() {
			logger.Info("job budget exhausted, worker exiting")
			return
		}

		job, err := p.source.Claim(ctx, api.ClaimRequest{WorkerID: workerID, LeaseSeconds: p.leaseSeconds})
		if err != nil {
			p.releaseJobSlot()
			if ctx.Err() != nil {
				return
			}
			p.setLastError(err)
			logger.Error("claim failed", logging.Error(err))
			p.waitOrShutdown(ctx, p.pollInterval)
			continue
		}
		if job == nil {
			p.releaseJobSlot()
			if p.drain {
				logger.Info("queue drained, worker exiting")
				return
			}
			p.waitOrShutdown(ctx, p.pollInterval)
			continue
		}

		if err := p.process(ctx, logger, workerID, job); err != nil && ctx.Err() != nil {
			return
		}
	}
}

func (p *Pool) waitOrShutdown(ctx context.Context, wait time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}

func (p *Pool) process(ctx context.Context, logger *slog.Logger, workerID string, job *api.Job) error {
	start := time.Now()
	logger.Info("job claimed",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String(logging.FieldSubject, job.SubjectID),
		logging.Int("attempt", job.Attempts))

	runCtx, cancelRun := context.WithCancel(ctx)
	if p.maxRuntime > 0 {
		runCtx, cancelRun = context.WithTimeout(ctx, p.maxRuntime)
	}
	defer cancelRun()

	// lost flips when the job is canceled or the lease moves to another
	// worker; either way the run stops and nothing more is reported.
	var lost atomic.Bool
	watchCtx, stopWatch := context.WithCancel(runCtx)
	var watchWG sync.WaitGroup
	watchWG.Add(1)
	go p.watchForCancel(watchCtx, &watchWG, workerID, job.ID, cancelRun, &lost)

	result, runErr := p.runner.Assemble(runCtx, assemble.Request{
		SubjectID: job.SubjectID,
		Payload:   string(job.Payload),
	}, func(update assemble.ProgressUpdate) {
		p.reportProgress(ctx, workerID, job, update, start, cancelRun, &lost)
	})
	stopWatch()
	watchWG.Wait()

	if runErr == nil {
		if _, err := p.source.Complete(ctx, api.CompleteRequest{JobID: job.ID, WorkerID: workerID}); err != nil {
			if errors.Is(err, queue.ErrLeaseConflict) {
				logger.Warn("lease lost before completion could be recorded",
					logging.Int64(logging.FieldJobID, job.ID))
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.setLastError(err)
			logger.Error("completion report failed", logging.Int64(logging.FieldJobID, job.ID), logging.Error(err))
			return err
		}
		logger.Info("job completed",
			logging.Int64(logging.FieldJobID, job.ID),
			logging.String(logging.FieldSubject, job.SubjectID),
			logging.String("output", result.OutputPath),
			logging.Duration("duration", time.Since(start)))
		p.noteFinished(job)
		return nil
	}

	if lost.Load() {
		logger.Info("job withdrawn while running",
			logging.Int64(logging.FieldJobID, job.ID),
			logging.String(logging.FieldSubject, job.SubjectID))
		p.noteFinished(job)
		return nil
	}
	if ctx.Err() != nil {
		// Shutdown mid-run: leave the lease in place so the queue
		// reclaims the job after expiry.
		logger.Debug("run interrupted by shutdown", logging.Int64(logging.FieldJobID, job.ID))
		return ctx.Err()
	}

	reason := runErr.Error()
	if p.maxRuntime > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		reason = fmt.Sprintf("runtime limit %s exceeded", p.maxRuntime)
	}
	recoverable := !errors.Is(runErr, assemble.ErrInvalidRequest)
	failed, err := p.source.Fail(ctx, api.FailRequest{
		JobID:       job.ID,
		WorkerID:    workerID,
		Error:       reason,
		Recoverable: recoverable,
	})
	if err != nil {
		if errors.Is(err, queue.ErrLeaseConflict) {
			logger.Warn("lease lost before failure could be recorded",
				logging.Int64(logging.FieldJobID, job.ID))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.setLastError(err)
		logger.Error("failure report failed", logging.Int64(logging.FieldJobID, job.ID), logging.Error(err))
		return err
	}
	p.setLastError(runErr)
	nextStatus := ""
	if failed != nil {
		nextStatus = failed.Status
	}
	logger.Warn("job failed",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String(logging.FieldSubject, job.SubjectID),
		logging.String("next_status", nextStatus),
		logging.Error(runErr))
	p.noteFinished(job)
	return nil
}

// watchForCancel re-reads the job while the assembler runs so external
// cancellation or a reassigned lease stops the work promptly.
func (p *Pool) watchForCancel(ctx context.Context, wg *sync.WaitGroup, workerID string, jobID int64, cancelRun context.CancelFunc, lost *atomic.Bool) {
	defer wg.Done()
	ticker := time.NewTicker(p.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snapshot, err := p.source.Describe(ctx, jobID)
		if err != nil {
			continue
		}
		if snapshot == nil ||
			snapshot.Status == string(queue.StatusCanceled) ||
			(snapshot.Status == string(queue.StatusRunning) && snapshot.WorkerID != "" && snapshot.WorkerID != workerID) {
			lost.Store(true)
			cancelRun()
			return
		}
	}
}

// reportProgress forwards one assembler event to the source. Percent is
// held below 100 because only completion marks a job done; a missing
// percent falls back to the stage anchor, and a missing ETA is projected
// from elapsed runtime.
func (p *Pool) reportProgress(ctx context.Context, workerID string, job *api.Job, update assemble.ProgressUpdate, start time.Time, cancelRun context.CancelFunc, lost *atomic.Bool) {
	req := api.ProgressRequest{JobID: job.ID, WorkerID: workerID}

	percent := update.Percent
	if percent <= 0 {
		if anchor, ok := assemble.StagePercent(update.Stage); ok {
			percent = anchor
		}
	}
	if percent > 99 {
		percent = 99
	}
	if percent > 0 {
		req.Percent = &percent
	}
	if update.Stage != "" {
		req.Stage = update.Stage
	}

	elapsed := update.ElapsedSeconds
	if elapsed <= 0 {
		elapsed = int(time.Since(start) / time.Second)
	}
	req.ElapsedSeconds = &elapsed

	eta := update.ETASeconds
	if eta <= 0 && percent > 0 {
		eta = assemble.EstimateETASeconds(elapsed, percent)
	}
	if eta > 0 {
		req.ETASeconds = &eta
	}
	if update.Message != "" {
		req.LogLine = update.Message
	}

	snapshot, err := p.source.Progress(ctx, req)
	if err != nil {
		if errors.Is(err, queue.ErrLeaseConflict) {
			lost.Store(true)
			cancelRun()
		}
		return
	}
	if snapshot != nil && snapshot.Status == string(queue.StatusCanceled) {
		lost.Store(true)
		cancelRun()
	}
}
