package poller

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"loom/internal/api"
	"loom/internal/config"
	"loom/internal/logging"
	"loom/internal/reconcile"
)

const (
	defaultInterval = 5 * time.Second
	defaultTimeout  = 2 * time.Hour
	defaultBuffer   = 16
)

// ErrAlreadyTracked is returned when Watch is called for a subject that
// already has a live polling task.
var ErrAlreadyTracked = errors.New("subject already tracked")

// Fetcher obtains the latest server snapshot for a subject. Both
// api.Service and api.Client satisfy it.
type Fetcher interface {
	Status(ctx context.Context, subjectID string) (*api.Job, error)
}

// Canceler stops the live job for a subject on the server.
type Canceler interface {
	Cancel(ctx context.Context, subjectID string) (api.ActionResponse, error)
}

// Options tunes the polling controller.
type Options struct {
	// Interval is the fetch cadence per subject.
	Interval time.Duration
	// Timeout is the overall polling ceiling per subject. When it is
	// reached the watch stops quietly, leaving the last known state
	// visible; the server-side job may legitimately still finish.
	Timeout time.Duration
	// Buffer is the per-subject update channel capacity.
	Buffer int
}

// OptionsFromConfig derives polling options from client settings.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		Interval: time.Duration(cfg.Client.PollInterval) * time.Second,
		Timeout:  time.Duration(cfg.Client.PollTimeout) * time.Second,
	}
}

type task struct {
	subjectID string
	cancel    context.CancelFunc
	resume    chan struct{}
	updates   chan reconcile.View
}

// Controller owns one cancellable polling task per tracked subject. The
// task set is the single authority over which subjects are polled;
// suspension, cancellation, and terminal cleanup all go through it.
type Controller struct {
	fetcher  Fetcher
	canceler Canceler
	rec      *reconcile.Reconciler
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
	buffer   int

	mu      sync.Mutex
	visible bool
	closed  bool
	tasks   map[string]*task

	wg sync.WaitGroup
}

// New constructs a polling controller. A nil reconciler gets default
// options; a nil logger silences the controller.
func New(fetcher Fetcher, canceler Canceler, rec *reconcile.Reconciler, logger *slog.Logger, opts Options) *Controller {
	if rec == nil {
		rec = reconcile.New(reconcile.Options{})
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	return &Controller{
		fetcher:  fetcher,
		canceler: canceler,
		rec:      rec,
		logger:   logging.NewComponentLogger(logger, "poller"),
		interval: opts.Interval,
		timeout:  opts.Timeout,
		buffer:   opts.Buffer,
		visible:  true,
		tasks:    make(map[string]*task),
	}
}

// Reconciler exposes the reconciler so callers can record retry intent.
func (c *Controller) Reconciler() *reconcile.Reconciler {
	return c.rec
}

// Watch starts polling a subject and returns its stream of merged
// views. The channel closes when tracking ends: terminal status,
// Stop or Cancel, the timeout ceiling, context cancellation, or a
// closed controller.
func (c *Controller) Watch(ctx context.Context, subjectID string) (<-chan reconcile.View, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, errors.New("subject id is required")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.New("polling controller is closed")
	}
	if _, exists := c.tasks[subjectID]; exists {
		c.mu.Unlock()
		return nil, ErrAlreadyTracked
	}
	taskCtx, cancel := context.WithCancel(ctx)
	t := &task{
		subjectID: subjectID,
		cancel:    cancel,
		resume:    make(chan struct{}, 1),
		updates:   make(chan reconcile.View, c.buffer),
	}
	c.tasks[subjectID] = t
	c.wg.Add(1)
	c.mu.Unlock()

	c.rec.Track(subjectID)
	go c.run(taskCtx, t)
	return t.updates, nil
}

// Stop ends tracking for a subject without touching the server.
func (c *Controller) Stop(subjectID string) {
	c.mu.Lock()
	t, ok := c.tasks[subjectID]
	c.mu.Unlock()
	if ok {
		t.cancel()
	}
	c.rec.Forget(subjectID)
}

// Cancel clears the subject's polling task and issues a server-side
// cancel. The two happen together so the client neither keeps polling a
// job it asked to stop nor leaves the job running unwatched.
func (c *Controller) Cancel(ctx context.Context, subjectID string) (api.ActionResponse, error) {
	c.Stop(subjectID)
	if c.canceler == nil {
		return api.ActionResponse{}, nil
	}
	return c.canceler.Cancel(ctx, subjectID)
}

// Suspend pauses fetching for every tracked subject. Tasks stay alive;
// scheduled fetches are skipped until Resume.
func (c *Controller) Suspend() {
	c.mu.Lock()
	c.visible = false
	c.mu.Unlock()
}

// Resume re-enables fetching and triggers an immediate fetch for every
// tracked subject so the display catches up without waiting a full
// interval.
func (c *Controller) Resume() {
	c.mu.Lock()
	c.visible = true
	tasks := make([]*task, 0, len(c.tasks))
	for _, t := range c.tasks {
		tasks = append(tasks, t)
	}
	c.mu.Unlock()

	for _, t := range tasks {
		select {
		case t.resume <- struct{}{}:
		default:
		}
	}
}

// Active returns the subjects currently being polled, sorted.
func (c *Controller) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	subjects := make([]string, 0, len(c.tasks))
	for subject := range c.tasks {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)
	return subjects
}

// Close stops every polling task and waits for them to finish.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	tasks := make([]*task, 0, len(c.tasks))
	for _, t := range c.tasks {
		tasks = append(tasks, t)
	}
	c.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	c.wg.Wait()
}

func (c *Controller) run(ctx context.Context, t *task) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		if current, ok := c.tasks[t.subjectID]; ok && current == t {
			delete(c.tasks, t.subjectID)
		}
		c.mu.Unlock()
		t.cancel()
		close(t.updates)
	}()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()

	if c.isVisible() {
		if done := c.fetch(ctx, t); done {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			c.logger.Info("polling ceiling reached, leaving last known state",
				logging.String(logging.FieldSubject, t.subjectID),
				logging.Duration("ceiling", c.timeout))
			return
		case <-t.resume:
			if done := c.fetch(ctx, t); done {
				return
			}
		case <-ticker.C:
			if !c.isVisible() {
				continue
			}
			if done := c.fetch(ctx, t); done {
				return
			}
		}
	}
}

// fetch polls once and reports whether tracking should end.
func (c *Controller) fetch(ctx context.Context, t *task) bool {
	snapshot, err := c.fetcher.Status(ctx, t.subjectID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		// Transient fetch failures keep the last view; the next tick
		// tries again.
		c.logger.Debug("status fetch failed",
			logging.String(logging.FieldSubject, t.subjectID),
			logging.Error(err))
		return false
	}

	view := c.rec.Apply(t.subjectID, snapshot)
	if view.Terminal {
		select {
		case t.updates <- view:
		case <-ctx.Done():
		}
		return true
	}

	select {
	case t.updates <- view:
	default:
		// A slow consumer misses intermediate views; the next fetch
		// supersedes them.
	}
	return false
}

func (c *Controller) isVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}
