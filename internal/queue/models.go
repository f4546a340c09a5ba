package queue

import (
	"fmt"
	"strings"
	"time"
)

// Status tracks an assembly job through its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusRetry     Status = "retry"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// AllStatuses lists every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusPending,
		StatusRunning,
		StatusRetry,
		StatusCompleted,
		StatusFailed,
		StatusCanceled,
	}
}

// ParseStatus converts user input into a Status.
func ParseStatus(raw string) (Status, error) {
	candidate := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, status := range AllStatuses() {
		if candidate == status {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", raw)
}

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// IsActive reports whether the job still occupies the queue: it is
// waiting, running, or scheduled for another attempt.
func (s Status) IsActive() bool {
	switch s {
	case StatusPending, StatusRunning, StatusRetry:
		return true
	default:
		return false
	}
}

// Bookkeeping stages written by the store itself. The worker reports
// the pipeline stages between these.
const (
	StageQueued    = "queued"
	StageRetry     = "retry"
	StageCompleted = "completed"
	StageFailed    = "failed"
	StageCanceled  = "canceled"
)

// Progress log line applied when a job enters the queue.
const queuedLogLine = "Queued for assembly"

// Progress log line applied when a job is canceled.
const canceledLogLine = "Assembly canceled by user"

// Progress log line applied when a job completes.
const completedLogLine = "Assembly completed"

// Job is one assembly attempt for a subject. A subject can accumulate
// several rows over time; at most one of them is active.
type Job struct {
	ID          int64
	SubjectID   string
	Status      Status
	Priority    int
	Attempts    int
	MaxAttempts int

	// Lease bookkeeping. LeaseOwner is empty when no worker holds the
	// job; LeaseExpiresAt is the deadline after which another worker
	// may reclaim it.
	LeaseOwner     string
	LeaseExpiresAt *time.Time

	// NextEligibleAt delays retry attempts. Nil means immediately
	// eligible.
	NextEligibleAt *time.Time

	LastError string
	Payload   string

	// Progress mirror written by worker reports. Progress is nil until
	// the first report arrives.
	Progress       *int
	Stage          string
	ETASeconds     *int
	ElapsedSeconds *int
	LogLine        string

	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LeaseExpired reports whether the job is running on a lease that has
// already lapsed at the given instant.
func (j *Job) LeaseExpired(now time.Time) bool {
	if j.Status != StatusRunning || j.LeaseExpiresAt == nil {
		return false
	}
	return !j.LeaseExpiresAt.After(now)
}

// HealthSummary aggregates queue counts for status displays.
type HealthSummary struct {
	Total     int
	Pending   int
	Running   int
	Retry     int
	Completed int
	Failed    int
	Canceled  int
}

// Active returns the number of jobs still occupying the queue.
func (h HealthSummary) Active() int {
	return h.Pending + h.Running + h.Retry
}

// DatabaseHealth reports diagnostic information about the job database.
type DatabaseHealth struct {
	DBPath           string
	SchemaVersion    string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	TotalJobs        int
	IntegrityCheck   bool
	Error            string
}
