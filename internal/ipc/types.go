package ipc

import (
	"encoding/json"

	"loom/internal/api"
)

// Job mirrors the HTTP API job DTO for IPC callers.
type Job = api.Job

// QueueHealth mirrors the HTTP API queue health DTO for IPC callers.
type QueueHealth = api.QueueHealth

// StartRequest brings up the daemon runtime.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest halts the daemon runtime.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse combines daemon lifecycle and queue information.
type StatusResponse struct {
	Running     bool        `json:"running"`
	PID         int         `json:"pid"`
	QueueDBPath string      `json:"queue_db_path"`
	LockPath    string      `json:"lock_path"`
	Workers     int         `json:"workers"`
	Processed   int         `json:"processed"`
	LastError   string      `json:"last_error"`
	LastJob     *Job        `json:"last_job"`
	Queue       QueueHealth `json:"queue"`
}

// SubmitRequest queues a subject for assembly.
type SubmitRequest struct {
	SubjectID string          `json:"subject_id"`
	Payload   json.RawMessage `json:"payload"`
	Priority  *int            `json:"priority"`
}

// SubmitResponse reports the job covering the subject. Created is false
// when an earlier live job absorbed the submission.
type SubmitResponse struct {
	Job     Job  `json:"job"`
	Created bool `json:"created"`
}

// CancelRequest cancels the active job for a subject.
type CancelRequest struct {
	SubjectID string `json:"subject_id"`
}

// CancelResponse reports the cancel outcome.
type CancelResponse struct {
	Job     *Job `json:"job"`
	Changed bool `json:"changed"`
}

// RetryRequest reopens the latest failed or canceled job for a subject.
type RetryRequest struct {
	SubjectID string `json:"subject_id"`
}

// RetryResponse reports the retry outcome.
type RetryResponse struct {
	Job     *Job `json:"job"`
	Changed bool `json:"changed"`
}

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Jobs []Job `json:"jobs"`
}

// QueueDescribeRequest fetches a single job by id.
type QueueDescribeRequest struct {
	ID int64 `json:"id"`
}

// QueueDescribeResponse contains a single job.
type QueueDescribeResponse struct {
	Job Job `json:"job"`
}

// QueueHealthRequest fetches aggregate queue diagnostics.
type QueueHealthRequest struct{}

// QueueHealthResponse reports queue occupancy by status.
type QueueHealthResponse struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Retry     int `json:"retry"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Canceled  int `json:"canceled"`
}

// QueueClearRequest removes all jobs.
type QueueClearRequest struct{}

// QueueClearResponse reports number of removed jobs.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearCompletedRequest removes completed jobs.
type QueueClearCompletedRequest struct{}

// QueueClearCompletedResponse reports number of removed jobs.
type QueueClearCompletedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearFailedRequest removes failed jobs.
type QueueClearFailedRequest struct{}

// QueueClearFailedResponse reports number of removed jobs.
type QueueClearFailedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueRemoveRequest removes a specific job by id.
type QueueRemoveRequest struct {
	ID int64 `json:"id"`
}

// QueueRemoveResponse reports whether the job was removed.
type QueueRemoveResponse struct {
	Removed bool `json:"removed"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// DatabaseHealthRequest fetches detailed job database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports job database health information.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    string   `json:"schema_version"`
	TableExists      bool     `json:"table_exists"`
	ColumnsPresent   []string `json:"columns_present"`
	MissingColumns   []string `json:"missing_columns"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalJobs        int      `json:"total_jobs"`
	Error            string   `json:"error"`
}
