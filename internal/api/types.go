package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a queue entry in a transport-friendly format.
type Job struct {
	ID             int64           `json:"id"`
	SubjectID      string          `json:"subjectId"`
	Status         string          `json:"status"`
	Priority       int             `json:"priority"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"maxAttempts"`
	WorkerID       string          `json:"workerId,omitempty"`
	LeaseExpiresAt string          `json:"leaseExpiresAt,omitempty"`
	NextEligibleAt string          `json:"nextEligibleAt,omitempty"`
	Error          string          `json:"error,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Progress       JobProgress     `json:"progress"`
	StartedAt      string          `json:"startedAt,omitempty"`
	CompletedAt    string          `json:"completedAt,omitempty"`
	CreatedAt      string          `json:"createdAt,omitempty"`
	UpdatedAt      string          `json:"updatedAt,omitempty"`
}

// JobProgress captures the worker-reported progress mirror for a job.
// Percent is absent until the first report arrives.
type JobProgress struct {
	Percent        *int   `json:"percent,omitempty"`
	Stage          string `json:"stage,omitempty"`
	ETASeconds     *int   `json:"etaSeconds,omitempty"`
	ElapsedSeconds *int   `json:"elapsedSeconds,omitempty"`
	LogLine        string `json:"logLine,omitempty"`
}

// SubmitRequest asks for a subject to be queued for assembly.
type SubmitRequest struct {
	SubjectID string          `json:"subjectId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Priority  *int            `json:"priority,omitempty"`
}

// SubmitResponse reports the job now covering the subject. Created is
// false when an earlier live job absorbed the submission.
type SubmitResponse struct {
	Job     Job  `json:"job"`
	Created bool `json:"created"`
}

// ClaimRequest asks for the next eligible job on behalf of a worker.
type ClaimRequest struct {
	WorkerID     string `json:"workerId"`
	LeaseSeconds int    `json:"leaseSeconds,omitempty"`
}

// ClaimResponse carries the leased job, or nothing when the queue is idle.
type ClaimResponse struct {
	Job *Job `json:"job,omitempty"`
}

// CompleteRequest settles a running job as successful.
type CompleteRequest struct {
	JobID    int64  `json:"jobId"`
	WorkerID string `json:"workerId"`
}

// FailRequest settles a running job as failed. Recoverable failures
// consume an attempt and may reschedule the job.
type FailRequest struct {
	JobID       int64  `json:"jobId"`
	WorkerID    string `json:"workerId"`
	Error       string `json:"error,omitempty"`
	Recoverable bool   `json:"recoverable"`
}

// ProgressRequest mirrors a worker progress report.
type ProgressRequest struct {
	JobID          int64  `json:"jobId"`
	WorkerID       string `json:"workerId"`
	Percent        *int   `json:"percent,omitempty"`
	Stage          string `json:"stage,omitempty"`
	ETASeconds     *int   `json:"etaSeconds,omitempty"`
	ElapsedSeconds *int   `json:"elapsedSeconds,omitempty"`
	LogLine        string `json:"logLine,omitempty"`
}

// ActionResponse reports the outcome of a cancel or retry request.
type ActionResponse struct {
	Job     *Job `json:"job,omitempty"`
	Changed bool `json:"changed"`
}

// QueueListResponse wraps a collection of jobs for API responses.
type QueueListResponse struct {
	Jobs []Job `json:"jobs"`
}

// QueueStatsResponse provides a normalized queue stats payload.
type QueueStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// QueueHealth summarizes queue occupancy for status displays.
type QueueHealth struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Retry     int `json:"retry"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Canceled  int `json:"canceled"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool        `json:"running"`
	PID          int         `json:"pid"`
	QueueDBPath  string      `json:"queueDbPath"`
	LockFilePath string      `json:"lockFilePath"`
	Workers      int         `json:"workers"`
	Processed    int         `json:"processed"`
	LastError    string      `json:"lastError,omitempty"`
	LastJob      *Job        `json:"lastJob,omitempty"`
	Queue        QueueHealth `json:"queue"`
}

// LogTailResponse carries daemon log lines read from a byte offset. The
// returned offset is where the next read should resume.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// ErrorResponse is the uniform error payload for the HTTP API.
type ErrorResponse struct {
	Error string `json:"error"`
}
