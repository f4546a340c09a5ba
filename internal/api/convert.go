package api

import (
	"encoding/json"
	"time"

	"loom/internal/queue"
)

// FromJob converts a queue job into its API representation.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	converted := Job{
		ID:          job.ID,
		SubjectID:   job.SubjectID,
		Status:      string(job.Status),
		Priority:    job.Priority,
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		WorkerID:    job.LeaseOwner,
		Error:       job.LastError,
		Progress: JobProgress{
			Percent:        job.Progress,
			Stage:          job.Stage,
			ETASeconds:     job.ETASeconds,
			ElapsedSeconds: job.ElapsedSeconds,
			LogLine:        job.LogLine,
		},
		CreatedAt: FormatTime(&job.CreatedAt),
		UpdatedAt: FormatTime(&job.UpdatedAt),
	}
	if job.Payload != "" {
		converted.Payload = json.RawMessage(job.Payload)
	}
	converted.LeaseExpiresAt = FormatTime(job.LeaseExpiresAt)
	converted.NextEligibleAt = FormatTime(job.NextEligibleAt)
	converted.StartedAt = FormatTime(job.StartedAt)
	converted.CompletedAt = FormatTime(job.CompletedAt)
	return converted
}

// FromJobs converts a slice of queue jobs, preserving order.
func FromJobs(jobs []*queue.Job) []Job {
	converted := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		converted = append(converted, FromJob(job))
	}
	return converted
}

// FromJobPtr converts an optional queue job, keeping nil as nil.
func FromJobPtr(job *queue.Job) *Job {
	if job == nil {
		return nil
	}
	converted := FromJob(job)
	return &converted
}

// FromHealth converts queue occupancy counters for API responses.
func FromHealth(health queue.HealthSummary) QueueHealth {
	return QueueHealth{
		Total:     health.Total,
		Pending:   health.Pending,
		Running:   health.Running,
		Retry:     health.Retry,
		Completed: health.Completed,
		Failed:    health.Failed,
		Canceled:  health.Canceled,
	}
}

// MergeQueueStats normalizes raw status counts into a string-keyed map
// that always carries every known status.
func MergeQueueStats(counts map[queue.Status]int) map[string]int {
	merged := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		merged[string(status)] = 0
	}
	for status, count := range counts {
		merged[string(status)] = count
	}
	return merged
}

// FormatTime renders an optional timestamp using the API date format.
func FormatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime reads a timestamp rendered by FormatTime. The zero time and
// false are returned for empty or malformed values.
func ParseTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return time.Time{}, false
		}
	}
	return parsed, true
}
