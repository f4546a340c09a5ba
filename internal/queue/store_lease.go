package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ProgressUpdate carries a worker's progress report. Nil numeric fields
// leave the stored values untouched.
type ProgressUpdate struct {
	Progress       *int
	Stage          string
	ETASeconds     *int
	ElapsedSeconds *int
	LogLine        string
}

// Claim atomically leases the next eligible job to the worker and
// returns it, or nil when the queue has nothing to hand out. Eligible
// means pending or retry with no future eligibility gate, or running on
// a lease that has already expired. One row is selected by priority
// (highest first) then age (oldest first); the update and the selection
// are a single statement, so two workers can never claim the same job.
//
// Reclaiming an expired lease does not consume an attempt: the attempt
// counter only moves when a worker reports failure.
func (s *Store) Claim(ctx context.Context, workerID string, lease time.Duration) (*Job, error) {
	workerID = strings.TrimSpace(workerID)
	if workerID == "" {
		return nil, errors.New("worker id is empty")
	}
	if lease <= 0 {
		return nil, errors.New("lease duration must be positive")
	}

	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339Nano)
	expiresStr := now.Add(lease).Format(time.RFC3339Nano)

	query := `
        UPDATE jobs
        SET status = ?, lease_owner = ?, lease_expires_at = ?, next_eligible_at = NULL,
            started_at = ?, updated_at = ?
        WHERE id = (
            SELECT id FROM jobs
            WHERE (status IN (?, ?) AND (next_eligible_at IS NULL OR datetime(next_eligible_at) <= datetime(?)))
               OR (status = ? AND lease_expires_at IS NOT NULL AND datetime(lease_expires_at) <= datetime(?))
            ORDER BY priority DESC, datetime(created_at) ASC, id ASC
            LIMIT 1
        )
        RETURNING ` + jobColumns

	args := []any{
		StatusRunning, workerID, expiresStr, nowStr, nowStr,
		StatusPending, StatusRetry, nowStr,
		StatusRunning, nowStr,
	}

	var job *Job
	err := s.queryRowWithRetry(ctx, query, args, func(row *sql.Row) error {
		claimed, scanErr := scanJob(row)
		if scanErr != nil {
			return scanErr
		}
		job = claimed
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// Complete marks a running job finished on behalf of its lease holder.
// The row is only touched when the caller still owns the live lease;
// otherwise ErrLeaseConflict is returned and the outcome is discarded.
func (s *Store) Complete(ctx context.Context, id int64, workerID string) (*Job, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, progress = 100, eta_seconds = 0, stage = ?, log_line = ?,
             last_error = NULL, lease_owner = NULL, lease_expires_at = NULL,
             completed_at = ?, updated_at = ?
         WHERE id = ? AND lease_owner = ? AND status = ?`,
		StatusCompleted,
		StageCompleted,
		completedLogLine,
		timestamp,
		timestamp,
		id,
		workerID,
		StatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("complete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("complete job %d for %s: %w", id, workerID, ErrLeaseConflict)
	}
	return s.GetByID(ctx, id)
}

// Fail records a failed run on behalf of the lease holder. Recoverable
// failures consume an attempt and reschedule the job as retry once the
// backoff delay passes; permanent failures or an exhausted attempt
// budget settle it as failed. Callers without the live lease get
// ErrLeaseConflict and change nothing.
func (s *Store) Fail(ctx context.Context, id int64, workerID, message string, recoverable bool) (*Job, error) {
	ctx = ensureContext(ctx)

	var attempts, maxAttempts int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT attempts, max_attempts FROM jobs WHERE id = ? AND lease_owner = ? AND status = ?`,
		id, workerID, StatusRunning,
	).Scan(&attempts, &maxAttempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fail job %d for %s: %w", id, workerID, ErrLeaseConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("read attempts: %w", err)
	}

	attempts++
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	status := StatusFailed
	stage := StageFailed
	var nextEligible any
	var completedAt any = timestamp
	if recoverable && attempts < maxAttempts {
		status = StatusRetry
		stage = StageRetry
		nextEligible = now.Add(s.backoff.Delay(attempts)).Format(time.RFC3339Nano)
		completedAt = nil
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, stage = ?, attempts = ?, last_error = ?, next_eligible_at = ?,
             lease_owner = NULL, lease_expires_at = NULL, completed_at = ?, updated_at = ?
         WHERE id = ? AND lease_owner = ? AND status = ?`,
		status,
		stage,
		attempts,
		nullableString(strings.TrimSpace(message)),
		nextEligible,
		completedAt,
		timestamp,
		id,
		workerID,
		StatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("fail job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("fail job %d for %s: %w", id, workerID, ErrLeaseConflict)
	}
	return s.GetByID(ctx, id)
}

// ReportProgress mirrors a worker's progress report onto the job row.
// Reports only land while the caller holds the live lease. A report
// arriving after cancellation may still update the log line, but never
// resurrects the job's status or progress; the returned job shows the
// canceled state so the worker can stop. Any other mismatch returns
// ErrLeaseConflict.
func (s *Store) ReportProgress(ctx context.Context, id int64, workerID string, update ProgressUpdate) (*Job, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET progress = COALESCE(?, progress), stage = COALESCE(?, stage),
             eta_seconds = COALESCE(?, eta_seconds), elapsed_seconds = COALESCE(?, elapsed_seconds),
             log_line = COALESCE(?, log_line), updated_at = ?
         WHERE id = ? AND lease_owner = ? AND status = ?`,
		nullableInt(update.Progress),
		nullableString(update.Stage),
		nullableInt(update.ETASeconds),
		nullableInt(update.ElapsedSeconds),
		nullableString(update.LogLine),
		timestamp,
		id,
		workerID,
		StatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("report progress: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return s.GetByID(ctx, id)
	}

	job, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job != nil && job.Status == StatusCanceled {
		if line := strings.TrimSpace(update.LogLine); line != "" {
			if err := s.execWithoutResultRetry(
				ctx,
				`UPDATE jobs SET log_line = ?, updated_at = ? WHERE id = ? AND status = ?`,
				line, timestamp, id, StatusCanceled,
			); err != nil {
				return nil, fmt.Errorf("record late log line: %w", err)
			}
		}
		return job, nil
	}
	return nil, fmt.Errorf("report progress for job %d from %s: %w", id, workerID, ErrLeaseConflict)
}

// CancelSubject cancels the subject's live job, if any. The returned
// boolean reports whether a job was actually canceled; calling again is
// harmless. Cancellation clears the progress mirror so a canceled job
// cannot keep advertising stale numbers.
func (s *Store) CancelSubject(ctx context.Context, subjectID string) (*Job, bool, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	query := `
        UPDATE jobs
        SET status = ?, stage = ?, progress = NULL, eta_seconds = NULL, elapsed_seconds = NULL,
            log_line = ?, lease_owner = NULL, lease_expires_at = NULL, next_eligible_at = NULL,
            completed_at = ?, updated_at = ?
        WHERE subject_id = ? AND status IN (?, ?, ?)
        RETURNING ` + jobColumns

	args := []any{
		StatusCanceled, StageCanceled, canceledLogLine, timestamp, timestamp,
		subjectID, StatusPending, StatusRunning, StatusRetry,
	}

	var job *Job
	err := s.queryRowWithRetry(ctx, query, args, func(row *sql.Row) error {
		canceled, scanErr := scanJob(row)
		if scanErr != nil {
			return scanErr
		}
		job = canceled
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cancel subject: %w", err)
	}
	return job, true, nil
}

// RetrySubject reopens work for a subject. A live pending or retry job
// is returned unchanged. A running job younger than the retry cooldown
// is left alone; one older than the cooldown is treated as stale and
// reset to pending with a fresh attempt budget. A terminal job spawns a
// new row carrying the old payload and priority. The boolean reports
// whether anything changed.
func (s *Store) RetrySubject(ctx context.Context, subjectID string) (*Job, bool, error) {
	latest, err := s.LatestBySubject(ctx, subjectID)
	if err != nil {
		return nil, false, err
	}
	if latest == nil {
		return nil, false, nil
	}

	switch latest.Status {
	case StatusPending, StatusRetry:
		return latest, false, nil
	case StatusRunning:
		return s.resetStaleRunning(ctx, latest)
	default:
		return s.reopenTerminal(ctx, latest)
	}
}

func (s *Store) resetStaleRunning(ctx context.Context, job *Job) (*Job, bool, error) {
	now := time.Now().UTC()
	runStart := job.UpdatedAt
	if job.StartedAt != nil {
		runStart = *job.StartedAt
	}
	if now.Sub(runStart) < s.retryCooldown {
		return job, false, nil
	}

	timestamp := now.Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, attempts = 0, lease_owner = NULL, lease_expires_at = NULL,
             next_eligible_at = NULL, last_error = NULL, progress = 1, stage = ?,
             eta_seconds = NULL, elapsed_seconds = 0, log_line = ?,
             started_at = NULL, completed_at = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusPending,
		StageQueued,
		queuedLogLine,
		timestamp,
		job.ID,
		StatusRunning,
	)
	if err != nil {
		return nil, false, fmt.Errorf("reset stale job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		refreshed, lookupErr := s.GetByID(ctx, job.ID)
		if lookupErr != nil {
			return nil, false, lookupErr
		}
		return refreshed, false, nil
	}
	refreshed, err := s.GetByID(ctx, job.ID)
	if err != nil {
		return nil, false, err
	}
	return refreshed, true, nil
}

func (s *Store) reopenTerminal(ctx context.Context, job *Job) (*Job, bool, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	payload := job.Payload
	if strings.TrimSpace(payload) == "" {
		payload = "{}"
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            subject_id, status, priority, attempts, max_attempts, payload,
            progress, stage, log_line, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.SubjectID,
		StatusPending,
		job.Priority,
		0,
		job.MaxAttempts,
		payload,
		1,
		StageQueued,
		queuedLogLine,
		timestamp,
		timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			existing, lookupErr := s.ActiveBySubject(ctx, job.SubjectID)
			if lookupErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("reopen job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}
	reopened, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return reopened, true, nil
}
