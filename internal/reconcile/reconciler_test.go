package reconcile_test

import (
	"testing"
	"time"

	"loom/internal/api"
	"loom/internal/reconcile"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, time.May, 4, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newReconciler(clock *fakeClock) *reconcile.Reconciler {
	return reconcile.New(reconcile.Options{
		Staleness:   10 * time.Minute,
		RetryGrace:  10 * time.Second,
		StateTTL:    time.Hour,
		ExpectedRun: 10 * time.Minute,
		Now:         clock.Now,
	})
}

func intPtr(v int) *int { return &v }

func snapshot(clock *fakeClock, id int64, status string, attempts int) *api.Job {
	stamp := api.FormatTime(&clock.now)
	return &api.Job{
		ID:          id,
		SubjectID:   "vid-1",
		Status:      status,
		Attempts:    attempts,
		MaxAttempts: 3,
		StartedAt:   stamp,
		UpdatedAt:   stamp,
	}
}

func TestServerProgressIsVerbatim(t *testing.T) {
	clock := newFakeClock()
	rec := newReconciler(clock)

	snap := snapshot(clock, 1, "running", 0)
	snap.Progress.Percent = intPtr(42)
	snap.Progress.ETASeconds = intPtr(120)
	view := rec.Apply("vid-1", snap)
	if view.Condition != reconcile.ConditionRunning {
		t.Fatalf("expected running condition, got %q", view.Condition)
	}
	if view.Progress != 42 || view.Heuristic {
		t.Fatalf("expected verbatim 42, got %d (heuristic=%v)", view.Progress, view.Heuristic)
	}
	if view.ETASeconds != 120 {
		t.Fatalf("expected server eta to pass through, got %d", view.ETASeconds)
	}

	clock.Advance(30 * time.Second)
	next := snapshot(clock, 1, "running", 0)
	next.StartedAt = snap.StartedAt
	next.Progress.Percent = intPtr(57)
	view = rec.Apply("vid-1", next)
	if view.Progress != 57 {
		t.Fatalf("expected verbatim 57, got %d", view.Progress)
	}
}

func TestServerValueTrustedOverLocalFloor(t *testing.T) {
	clock := newFakeClock()
	rec := newReconciler(clock)

	// Build a high local floor from the heuristic.
	snap := snapshot(clock, 1, "running", 0)
	clock.Advance(8 * time.Minute)
	snap.UpdatedAt = api.FormatTime(&clock.now)
	view := rec.Apply("vid-1", snap)
	if !view.Heuristic || view.Progress < 50 {
		t.Fatalf("expected a high heuristic value, got %d (heuristic=%v)", view.Progress, view.Heuristic)
	}

	// A late first report below the floor still wins: the server is
	// authoritative, the cache is not a second source of truth.
	late := snapshot(clock, 1, "running", 0)
	late.StartedAt = snap.StartedAt
	late.Progress.Percent = intPtr(42)
	view = rec.Apply("vid-1", late)
	if view.Progress != 42 || view.Heuristic {
		t.Fatalf("expected server 42 to override the floor, got %d (heuristic=%v)", view.Progress, view.Heuristic)
	}
}

func TestHeuristicGrowsWithElapsedTime(t *testing.T) {
	clock := newFakeClock()
	rec := newReconciler(clock)

	snap := snapshot(clock, 1, "running", 0)
	view := rec.Apply("vid-1", snap)
	if !view.Heuristic {
		t.Fatal("expected heuristic progress when the server omits percent")
	}
	if view.Progress != 1 {
		t.Fatalf("expected baseline progress 1 at start, got %d", view.Progress)
	}

	// Halfway through the expected runtime the derived value should
	// have moved well off the baseline.
	clock.Advance(5 * time.Minute)
	mid := snapshot(clock, 1, "running", 0)
	mid.StartedAt = snap.StartedAt
	view = rec.Apply("vid-1", mid)
	if view.Progress <= 20 || view.Progress >= 95 {
		t.Fatalf("expected mid-run heuristic between 20 and 95, got %d", view.Progress)
	}
	floor := view.Progress

	// A stage anchor can jump the value forward but never backward.
	clock.Advance(time.Minute)
	upload := snapshot(clock, 1, "running", 0)
	upload.StartedAt = snap.StartedAt
	upload.Progress.Stage = "uploading_video"
	view = rec.Apply("vid-1", upload)
	if view.Progress < floor {
		t.Fatalf("heuristic regressed from %d to %d", floor, view.Progress)
	}
	if view.Progress != 95 {
		t.Fatalf("expected upload anchor 95, got %d", view.Progress)
	}

	// However long the job runs, a derived value never implies
	// completion.
	clock.Advance(4 * time.Hour)
	bare := snapshot(clock, 1, "running", 0)
	bare.StartedAt = snap.StartedAt
	bare.UpdatedAt = api.FormatTime(&clock.now)
	view = rec.Apply("vid-1", bare)
	if view.Progress >= 100 {
		t.Fatalf("heuristic implied completion: %d", view.Progress)
	}
	if view.Progress < 95 {
		t.Fatalf("heuristic regressed below its floor: %d", view.Progress)
	}
}

func TestStalledReplacesRunningForQuietJobs(t *testing.T) {
	clock := newFakeClock()
	rec := newReconciler(clock)

	snap := snapshot(clock, 1, "running", 0)
	snap.Progress.Percent = intPtr(60)
	view := rec.Apply("vid-1", snap)
	if view.Condition != reconcile.ConditionRunning {
		t.Fatalf("expected running, got %q", view.Condition)
	}

	// Same snapshot fetched again eleven minutes later: the job row
	// has not been touched, so the subject is stalled, not running.
	clock.Advance(11 * time.Minute)
	view = rec.Apply("vid-1", snap)
	if view.Condition != reconcile.ConditionStalled {
		t.Fatalf("expected stalled, got %q", view.Condition)
	}
	if view.Progress != 60 {
		t.Fatalf("stalled view should keep reported progress, got %d", view.Progress)
	}
	if view.Terminal {
		t.Fatal("stalled must not be terminal; the lease may still be reclaimed")
	}

	// A reclaim touches the row; the fresh timestamp clears the
	// stalled condition.
	fresh := snapshot(clock, 1, "running", 0)
	fresh.StartedAt = snap.StartedAt
	fresh.Progress.Percent = intPtr(61)
	view = rec.Apply("vid-1", fresh)
	if view.Condition != reconcile.ConditionRunning {
		t.Fatalf("expected running after fresh update, got %q", view.Condition)
	}
}

func TestRetryGraceSuppressesCanceledFlicker(t *testing.T) {
	clock := newFakeClock()
	rec := newReconciler(clock)

	running := snapshot(clock, 1, "running", 0)
	running.Progress.Percent = intPtr(70)
	if view := rec.Apply("vid-1", running); view.Condition != reconcile.ConditionRunning {
		t.Fatalf("expected running, got %q", view.Condition)
	}

	rec.NoteRetry("vid-1")

	// The stale canceled row from the race is held back.
	clock.Advance(2 * time.Second)
	canceled := snapshot(clock, 1, "canceled", 0)
	canceled.StartedAt = running.StartedAt
	view := rec.Apply("vid-1", canceled)
	if view.Condition != reconcile.ConditionRetrying {
		t.Fatalf("expected retrying during grace window, got %q", view.Condition)
	}
	if view.Terminal {
		t.Fatal("suppressed cancel must keep polling alive")
	}
	if view.Progress != 70 {
		t.Fatalf("expected last known progress while retrying, got %d", view.Progress)
	}

	// A running snapshot from the new attempt ends the window early.
	clock.Advance(2 * time.Second)
	reopened := snapshot(clock, 2, "running", 0)
	reopened.Progress.Percent = intPtr(1)
	view = rec.Apply("vid-1", reopened)
	if view.Condition != reconcile.ConditionRunning {
		t.Fatalf("expected running once the new attempt is visible, got %q", view.Condition)
	}
	if view.Progress != 1 {
		t.Fatalf("new attempt resets progress, got %d", view.Progress)
	}
}

func TestRetryGraceExpiryTrustsServer(t *testing.T) {
	clock := newFakeClock()
	rec := newReconciler(clock)

	rec.NoteRetry("vid-1")
	clock.Advance(11 * time.Second)

	canceled := snapshot(clock, 1, "canceled", 0)
	view := rec.Apply("vid-1", canceled)
	if view.Condition != reconcile.ConditionCanceled {
		t.Fatalf("expected canceled after grace expiry, got %q", view.Condition)
	}
	if !view.Terminal {
		t.Fatal("canceled outside the grace window is terminal")
	}
}

func TestNewAttemptAllowsProgressReset(t *testing.T) {
	clock := newFakeClock()
	rec := newReconciler(clock)

	first := snapshot(clock, 1, "running", 0)
	first.Progress.Percent = intPtr(80)
	if view := rec.Apply("vid-1", first); view.Progress != 80 {
		t.Fatalf("expected 80, got %d", view.Progress)
	}

	clock.Advance(time.Minute)
	waiting := snapshot(clock, 1, "retry", 1)
	view := rec.Apply("vid-1", waiting)
	if view.Condition != reconcile.ConditionRetrying {
		t.Fatalf("expected retrying for retry status, got %q", view.Condition)
	}

	clock.Advance(time.Minute)
	second := snapshot(clock, 1, "running", 1)
	second.Progress.Percent = intPtr(5)
	view = rec.Apply("vid-1", second)
	if view.Progress != 5 {
		t.Fatalf("expected reset to 5 on the new attempt, got %d", view.Progress)
	}
}

func TestTerminalViews(t *testing.T) {
	clock := newFakeClock()
	rec := newReconciler(clock)

	done := snapshot(clock, 1, "completed", 0)
	view := rec.Apply("vid-1", done)
	if view.Condition != reconcile.ConditionCompleted || !view.Terminal || view.Progress != 100 {
		t.Fatalf("unexpected completed view: %+v", view)
	}

	failed := snapshot(clock, 2, "failed", 3)
	failed.Error = "assembler failed: exit status 1"
	failed.Progress.Percent = intPtr(35)
	view = rec.Apply("vid-2", failed)
	if view.Condition != reconcile.ConditionFailed || !view.Terminal {
		t.Fatalf("unexpected failed view: %+v", view)
	}
	if view.LastError == "" {
		t.Fatal("expected failure detail to surface")
	}
	if view.Progress != 35 {
		t.Fatalf("failed view should keep last reported progress, got %d", view.Progress)
	}
}

func TestUnknownSubject(t *testing.T) {
	rec := newReconciler(newFakeClock())
	view := rec.Apply("vid-ghost", nil)
	if view.Condition != reconcile.ConditionUnknown {
		t.Fatalf("expected unknown condition, got %q", view.Condition)
	}
}

func TestPruneDropsIdleState(t *testing.T) {
	clock := newFakeClock()
	rec := newReconciler(clock)

	rec.Track("vid-a")
	rec.Track("vid-b")
	if got := rec.TrackedSubjects(); len(got) != 2 {
		t.Fatalf("expected 2 tracked subjects, got %v", got)
	}

	clock.Advance(30 * time.Minute)
	snap := snapshot(clock, 1, "running", 0)
	rec.Apply("vid-b", snap)

	clock.Advance(45 * time.Minute)
	rec.Prune()

	got := rec.TrackedSubjects()
	if len(got) != 1 || got[0] != "vid-b" {
		t.Fatalf("expected only vid-b to survive pruning, got %v", got)
	}
}

func TestTerminalStatusDropsState(t *testing.T) {
	clock := newFakeClock()
	rec := newReconciler(clock)

	rec.Track("vid-1")
	rec.Apply("vid-1", snapshot(clock, 1, "completed", 0))
	if got := rec.TrackedSubjects(); len(got) != 0 {
		t.Fatalf("terminal status should invalidate cached state, got %v", got)
	}
}
