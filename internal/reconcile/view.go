package reconcile

import "time"

// Condition is the display status the reconciler reports for a subject.
// It extends the queue status vocabulary with client-side conditions:
// "stalled" for running jobs whose updates have gone quiet, "retrying"
// while a client-issued retry is still propagating, and "unknown" for
// subjects the server has never seen.
type Condition string

const (
	ConditionUnknown   Condition = "unknown"
	ConditionQueued    Condition = "queued"
	ConditionRunning   Condition = "running"
	ConditionRetrying  Condition = "retrying"
	ConditionStalled   Condition = "stalled"
	ConditionCompleted Condition = "completed"
	ConditionFailed    Condition = "failed"
	ConditionCanceled  Condition = "canceled"
)

// Terminal reports whether the condition ends tracking for a subject.
// Stalled is deliberately not terminal: a stalled job may recover when
// another worker reclaims its expired lease.
func (c Condition) Terminal() bool {
	switch c {
	case ConditionCompleted, ConditionFailed, ConditionCanceled:
		return true
	default:
		return false
	}
}

// View is the merged display state for one subject.
type View struct {
	SubjectID   string
	JobID       int64
	Condition   Condition
	Progress    int
	Stage       string
	ETASeconds  int
	LogLine     string
	LastError   string
	Attempt     int
	MaxAttempts int

	// Heuristic marks progress values derived locally rather than
	// reported by the server.
	Heuristic bool
	Terminal  bool
	UpdatedAt time.Time
}
