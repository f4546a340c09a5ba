package reconcile

import (
	"sort"
	"strings"
	"sync"
	"time"

	"loom/internal/api"
	"loom/internal/assemble"
	"loom/internal/config"
	"loom/internal/queue"
)

const (
	defaultStaleness  = 10 * time.Minute
	defaultRetryGrace = 10 * time.Second
	defaultStateTTL   = 2 * time.Hour
	defaultExpected   = 10 * time.Minute

	// Heuristic progress tops out below the upload anchor so a derived
	// value never implies the assembly is nearly done.
	heuristicCeiling = 95
)

// Options tunes the reconciler. Zero values fall back to defaults.
type Options struct {
	// Staleness is how old a running snapshot may grow before the
	// subject is reported as stalled instead of running.
	Staleness time.Duration
	// RetryGrace bounds how long canceled snapshots are suppressed
	// after a client-issued retry.
	RetryGrace time.Duration
	// StateTTL bounds how long idle per-subject state is retained.
	StateTTL time.Duration
	// ExpectedRun calibrates the elapsed-time progress heuristic.
	ExpectedRun time.Duration
	// Now is the clock. Tests inject a fake.
	Now func() time.Time
}

// OptionsFromConfig derives reconciler options from client settings.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		Staleness:  time.Duration(cfg.Client.StalenessSeconds) * time.Second,
		RetryGrace: time.Duration(cfg.Client.RetryGrace) * time.Second,
		StateTTL:   time.Duration(cfg.Client.StateTTL) * time.Second,
	}
}

// attemptKey identifies one physical run of a job. A new row, a changed
// attempt counter, or a fresh start timestamp all mean the progress
// floor no longer applies.
type attemptKey struct {
	jobID     int64
	attempts  int
	startedAt string
}

type subjectState struct {
	attempt    attemptKey
	floor      int
	trackStart time.Time
	lastSeen   time.Time
	retryUntil time.Time
}

// Reconciler merges server snapshots with per-subject local state to
// produce a stable display view. Server-reported progress is always
// used verbatim; local heuristics only fill gaps, and the cached state
// is never treated as a second source of truth.
type Reconciler struct {
	staleness   time.Duration
	retryGrace  time.Duration
	stateTTL    time.Duration
	expectedRun time.Duration
	now         func() time.Time

	mu     sync.Mutex
	states map[string]*subjectState
}

// New constructs a reconciler.
func New(opts Options) *Reconciler {
	if opts.Staleness <= 0 {
		opts.Staleness = defaultStaleness
	}
	if opts.RetryGrace <= 0 {
		opts.RetryGrace = defaultRetryGrace
	}
	if opts.StateTTL <= 0 {
		opts.StateTTL = defaultStateTTL
	}
	if opts.ExpectedRun <= 0 {
		opts.ExpectedRun = defaultExpected
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{
		staleness:   opts.Staleness,
		retryGrace:  opts.RetryGrace,
		stateTTL:    opts.StateTTL,
		expectedRun: opts.ExpectedRun,
		now:         opts.Now,
		states:      make(map[string]*subjectState),
	}
}

// Track begins (or refreshes) local tracking for a subject.
func (r *Reconciler) Track(subjectID string) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureState(subjectID, r.now())
}

// Forget drops local state for a subject. Used when the client switches
// away from a subject; the next Track starts from a clean slate.
func (r *Reconciler) Forget(subjectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, subjectID)
}

// NoteRetry records a client-issued retry. Until the grace window
// elapses or a running snapshot arrives, canceled snapshots for the
// subject are reported as "retrying" rather than trusted.
func (r *Reconciler) NoteRetry(subjectID string) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	state := r.ensureState(subjectID, now)
	state.retryUntil = now.Add(r.retryGrace)
}

// TrackedSubjects returns the subjects with live local state, sorted.
func (r *Reconciler) TrackedSubjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	subjects := make([]string, 0, len(r.states))
	for subject := range r.states {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)
	return subjects
}

// Prune discards local state that has not seen a snapshot within the
// TTL. The per-subject cache is exactly that, a cache.
func (r *Reconciler) Prune() {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-r.stateTTL)
	for subject, state := range r.states {
		last := state.lastSeen
		if last.IsZero() {
			last = state.trackStart
		}
		if last.Before(cutoff) {
			delete(r.states, subject)
		}
	}
}

// Apply merges a server snapshot into the subject's local state and
// returns the view to display. A nil snapshot means the server has no
// record of the subject.
func (r *Reconciler) Apply(subjectID string, snapshot *api.Job) View {
	subjectID = strings.TrimSpace(subjectID)
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	state := r.ensureState(subjectID, now)
	graceActive := now.Before(state.retryUntil)

	if snapshot == nil {
		if graceActive {
			return View{SubjectID: subjectID, Condition: ConditionRetrying, Progress: state.floor, Heuristic: true}
		}
		return View{SubjectID: subjectID, Condition: ConditionUnknown}
	}

	state.lastSeen = now
	key := attemptKey{jobID: snapshot.ID, attempts: snapshot.Attempts, startedAt: snapshot.StartedAt}
	if key != state.attempt {
		state.attempt = key
		state.floor = 0
		state.trackStart = now
	}

	view := View{
		SubjectID:   subjectID,
		JobID:       snapshot.ID,
		Stage:       snapshot.Progress.Stage,
		LogLine:     snapshot.Progress.LogLine,
		LastError:   snapshot.Error,
		Attempt:     snapshot.Attempts,
		MaxAttempts: snapshot.MaxAttempts,
	}
	if updated, ok := api.ParseTime(snapshot.UpdatedAt); ok {
		view.UpdatedAt = updated
	}

	status := queue.Status(snapshot.Status)
	if graceActive && status == queue.StatusRunning {
		// A fresh running snapshot ends the grace window early; the
		// server is trusted unconditionally from here on.
		state.retryUntil = time.Time{}
		graceActive = false
	}

	switch status {
	case queue.StatusCompleted:
		view.Condition = ConditionCompleted
		view.Progress = 100
		delete(r.states, subjectID)
	case queue.StatusFailed:
		view.Condition = ConditionFailed
		view.Progress = r.mergedProgress(state, snapshot, now, false)
		delete(r.states, subjectID)
	case queue.StatusCanceled:
		if graceActive {
			view.Condition = ConditionRetrying
			view.Progress = state.floor
			view.Heuristic = true
			break
		}
		view.Condition = ConditionCanceled
		delete(r.states, subjectID)
	case queue.StatusRunning:
		if r.isStale(view.UpdatedAt, now) {
			view.Condition = ConditionStalled
			view.Progress = r.mergedProgress(state, snapshot, now, false)
			view.Heuristic = snapshot.Progress.Percent == nil
			break
		}
		view.Condition = ConditionRunning
		view.Progress = r.mergedProgress(state, snapshot, now, true)
		view.Heuristic = snapshot.Progress.Percent == nil
		view.ETASeconds = r.mergedETA(state, snapshot, now, view.Progress)
	case queue.StatusPending:
		if graceActive {
			view.Condition = ConditionRetrying
		} else {
			view.Condition = ConditionQueued
		}
		view.Progress = r.mergedProgress(state, snapshot, now, false)
		view.Heuristic = snapshot.Progress.Percent == nil
	case queue.StatusRetry:
		view.Condition = ConditionRetrying
		view.Progress = r.mergedProgress(state, snapshot, now, false)
		view.Heuristic = snapshot.Progress.Percent == nil
	default:
		view.Condition = ConditionUnknown
	}

	view.Terminal = view.Condition.Terminal()
	return view
}

func (r *Reconciler) ensureState(subjectID string, now time.Time) *subjectState {
	state, ok := r.states[subjectID]
	if !ok {
		state = &subjectState{trackStart: now}
		r.states[subjectID] = state
	}
	return state
}

// mergedProgress applies the progress contract: a server-reported value
// is authoritative and becomes the new floor; otherwise a local
// heuristic fills in, never regressing within the attempt. When advance
// is false (stalled, queued, retrying) the heuristic does not grow.
func (r *Reconciler) mergedProgress(state *subjectState, snapshot *api.Job, now time.Time, advance bool) int {
	if snapshot.Progress.Percent != nil {
		reported := *snapshot.Progress.Percent
		if reported < 0 {
			reported = 0
		}
		if reported > 100 {
			reported = 100
		}
		state.floor = reported
		return reported
	}
	if !advance {
		return state.floor
	}
	derived := state.floor
	if anchored, ok := assemble.StagePercent(snapshot.Progress.Stage); ok {
		derived = max(derived, anchored)
	}
	elapsed := r.elapsedSeconds(state, snapshot, now)
	expected := max(int64(r.expectedRun/time.Second), 1)
	paced := 1 + int(int64(elapsed)*int64(heuristicCeiling-1)/expected)
	derived = max(derived, min(paced, heuristicCeiling))
	derived = min(derived, 99)
	state.floor = derived
	return derived
}

func (r *Reconciler) mergedETA(state *subjectState, snapshot *api.Job, now time.Time, percent int) int {
	if snapshot.Progress.ETASeconds != nil {
		eta := *snapshot.Progress.ETASeconds
		if eta < 0 {
			eta = 0
		}
		return eta
	}
	return assemble.EstimateETASeconds(r.elapsedSeconds(state, snapshot, now), percent)
}

func (r *Reconciler) elapsedSeconds(state *subjectState, snapshot *api.Job, now time.Time) int {
	if snapshot.Progress.ElapsedSeconds != nil && *snapshot.Progress.ElapsedSeconds >= 0 {
		return *snapshot.Progress.ElapsedSeconds
	}
	if started, ok := api.ParseTime(snapshot.StartedAt); ok && now.After(started) {
		return int(now.Sub(started) / time.Second)
	}
	if now.After(state.trackStart) {
		return int(now.Sub(state.trackStart) / time.Second)
	}
	return 0
}

func (r *Reconciler) isStale(updatedAt, now time.Time) bool {
	if updatedAt.IsZero() {
		return false
	}
	return now.Sub(updatedAt) > r.staleness
}
