package queue

import (
	"database/sql"
	"errors"
	"time"
)

const jobColumns = "id, subject_id, status, priority, attempts, max_attempts, lease_owner, lease_expires_at, next_eligible_at, last_error, payload, progress, stage, eta_seconds, elapsed_seconds, log_line, started_at, completed_at, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id             int64
		subjectID      string
		statusStr      string
		priority       int
		attempts       int
		maxAttempts    int
		leaseOwner     sql.NullString
		leaseExpires   sql.NullString
		nextEligible   sql.NullString
		lastError      sql.NullString
		payload        sql.NullString
		progress       sql.NullInt64
		stage          sql.NullString
		etaSeconds     sql.NullInt64
		elapsedSeconds sql.NullInt64
		logLine        sql.NullString
		startedRaw     sql.NullString
		completedRaw   sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&subjectID,
		&statusStr,
		&priority,
		&attempts,
		&maxAttempts,
		&leaseOwner,
		&leaseExpires,
		&nextEligible,
		&lastError,
		&payload,
		&progress,
		&stage,
		&etaSeconds,
		&elapsedSeconds,
		&logLine,
		&startedRaw,
		&completedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:          id,
		SubjectID:   subjectID,
		Status:      Status(statusStr),
		Priority:    priority,
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		LeaseOwner:  leaseOwner.String,
		LastError:   lastError.String,
		Payload:     payload.String,
		Stage:       stage.String,
		LogLine:     logLine.String,
	}
	if progress.Valid {
		value := int(progress.Int64)
		job.Progress = &value
	}
	if etaSeconds.Valid {
		value := int(etaSeconds.Int64)
		job.ETASeconds = &value
	}
	if elapsedSeconds.Valid {
		value := int(elapsedSeconds.Int64)
		job.ElapsedSeconds = &value
	}

	if leaseExpires.Valid {
		if expires, err := parseTimeString(leaseExpires.String); err == nil {
			job.LeaseExpiresAt = &expires
		}
	}
	if nextEligible.Valid {
		if eligible, err := parseTimeString(nextEligible.String); err == nil {
			job.NextEligibleAt = &eligible
		}
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			job.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	v := value.UTC().Format(time.RFC3339Nano)
	return v
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
