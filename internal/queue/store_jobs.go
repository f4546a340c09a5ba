package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EnqueueParams describes a submission.
type EnqueueParams struct {
	SubjectID   string
	Payload     string
	Priority    int
	MaxAttempts int
}

// Enqueue inserts a pending job for the subject, or returns the live
// job if one already occupies the queue. The boolean reports whether a
// new row was created. Submissions are idempotent: a subject with a
// pending, running, or retry job never gains a second one.
func (s *Store) Enqueue(ctx context.Context, params EnqueueParams) (*Job, bool, error) {
	subject := strings.TrimSpace(params.SubjectID)
	if subject == "" {
		return nil, false, errors.New("subject id is empty")
	}

	if existing, err := s.ActiveBySubject(ctx, subject); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, false, nil
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	payload := strings.TrimSpace(params.Payload)
	if payload == "" {
		payload = "{}"
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            subject_id, status, priority, attempts, max_attempts, payload,
            progress, stage, log_line, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subject,
		StatusPending,
		params.Priority,
		0,
		params.MaxAttempts,
		payload,
		1,
		StageQueued,
		queuedLogLine,
		timestamp,
		timestamp,
	)
	if err != nil {
		// A concurrent submit can win the race between the lookup and the
		// insert; the partial unique index rejects the duplicate, so
		// surface the winner instead.
		if isUniqueViolation(err) {
			existing, lookupErr := s.ActiveBySubject(ctx, subject)
			if lookupErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}

	job, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// GetByID fetches a job by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ActiveBySubject returns the subject's live job, if any. The schema
// allows at most one.
func (s *Store) ActiveBySubject(ctx context.Context, subjectID string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE subject_id = ? AND status IN (?, ?, ?) LIMIT 1`,
		subjectID, StatusPending, StatusRunning, StatusRetry,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active by subject: %w", err)
	}
	return job, nil
}

// LatestBySubject returns the most recent job row for the subject.
func (s *Store) LatestBySubject(ctx context.Context, subjectID string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE subject_id = ? ORDER BY id DESC LIMIT 1`,
		subjectID,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest by subject: %w", err)
	}
	return job, nil
}

// JobsBySubject returns the subject's full attempt history, oldest first.
func (s *Store) JobsBySubject(ctx context.Context, subjectID string) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE subject_id = ? ORDER BY id`,
		subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("jobs by subject: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// List returns jobs filtered by status set (or all jobs when no status
// is provided), oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Remove deletes a job by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes only completed jobs.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed jobs.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all jobs.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}
