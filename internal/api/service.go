package api

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"loom/internal/config"
	"loom/internal/queue"
	"loom/internal/services"
)

// Store is the queue surface the API service depends on. *queue.Store
// satisfies it.
type Store interface {
	Enqueue(ctx context.Context, params queue.EnqueueParams) (*queue.Job, bool, error)
	GetByID(ctx context.Context, id int64) (*queue.Job, error)
	LatestBySubject(ctx context.Context, subjectID string) (*queue.Job, error)
	JobsBySubject(ctx context.Context, subjectID string) ([]*queue.Job, error)
	List(ctx context.Context, statuses ...queue.Status) ([]*queue.Job, error)
	Claim(ctx context.Context, workerID string, lease time.Duration) (*queue.Job, error)
	Complete(ctx context.Context, id int64, workerID string) (*queue.Job, error)
	Fail(ctx context.Context, id int64, workerID string, message string, recoverable bool) (*queue.Job, error)
	ReportProgress(ctx context.Context, id int64, workerID string, update queue.ProgressUpdate) (*queue.Job, error)
	CancelSubject(ctx context.Context, subjectID string) (*queue.Job, bool, error)
	RetrySubject(ctx context.Context, subjectID string) (*queue.Job, bool, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
	Health(ctx context.Context) (queue.HealthSummary, error)
}

// Recorder observes queue lifecycle events. The daemon wires a
// Prometheus collector here; a nil recorder disables instrumentation.
type Recorder interface {
	RecordSubmit(created bool)
	RecordClaim()
	RecordComplete(duration time.Duration)
	RecordFail(permanent bool)
	RecordCancel()
	RecordRetry()
}

// Defaults carries the submission and lease defaults applied when a
// request leaves a field unset.
type Defaults struct {
	Priority     int
	MaxAttempts  int
	LeaseSeconds int
}

// DefaultsFromConfig derives service defaults from loaded configuration.
func DefaultsFromConfig(cfg *config.Config) Defaults {
	if cfg == nil {
		return Defaults{}
	}
	return Defaults{
		Priority:     cfg.Queue.DefaultPriority,
		MaxAttempts:  cfg.Queue.MaxAttempts,
		LeaseSeconds: cfg.Workers.LeaseSeconds,
	}
}

// Service exposes queue operations to the daemon handlers, the control
// socket, and in-process workers. It is the single funnel for queue
// mutations so lifecycle events are counted exactly once.
type Service struct {
	store    Store
	defaults Defaults
	recorder Recorder
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithRecorder attaches a lifecycle event recorder.
func WithRecorder(recorder Recorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

// NewService constructs the queue API service.
func NewService(store Store, defaults Defaults, opts ...Option) *Service {
	service := &Service{store: store, defaults: defaults}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *Service) ready(op string) error {
	if s == nil || s.store == nil {
		return services.Wrap(services.ErrConfiguration, "api", op, "queue store unavailable", nil)
	}
	return nil
}

// Submit queues a subject for assembly. Resubmitting a subject whose
// job is still live returns the existing job with Created false.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	if err := s.ready("submit"); err != nil {
		return SubmitResponse{}, err
	}
	subjectID := strings.TrimSpace(req.SubjectID)
	if subjectID == "" {
		return SubmitResponse{}, services.Wrap(services.ErrValidation, "api", "submit", "subject id is required", nil)
	}
	if len(req.Payload) > 0 && !json.Valid(req.Payload) {
		return SubmitResponse{}, services.Wrap(services.ErrValidation, "api", "submit", "payload must be valid JSON", nil)
	}

	priority := s.defaults.Priority
	if req.Priority != nil {
		priority = *req.Priority
	}
	job, created, err := s.store.Enqueue(ctx, queue.EnqueueParams{
		SubjectID:   subjectID,
		Payload:     string(req.Payload),
		Priority:    priority,
		MaxAttempts: s.defaults.MaxAttempts,
	})
	if err != nil {
		return SubmitResponse{}, err
	}
	if s.recorder != nil {
		s.recorder.RecordSubmit(created)
	}
	return SubmitResponse{Job: FromJob(job), Created: created}, nil
}

// Status returns the most recent job for a subject, or nil when the
// subject has never been submitted.
func (s *Service) Status(ctx context.Context, subjectID string) (*Job, error) {
	if err := s.ready("status"); err != nil {
		return nil, err
	}
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, services.Wrap(services.ErrValidation, "api", "status", "subject id is required", nil)
	}
	job, err := s.store.LatestBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return FromJobPtr(job), nil
}

// History returns every job recorded for a subject, oldest first.
func (s *Service) History(ctx context.Context, subjectID string) ([]Job, error) {
	if err := s.ready("history"); err != nil {
		return nil, err
	}
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, services.Wrap(services.ErrValidation, "api", "history", "subject id is required", nil)
	}
	jobs, err := s.store.JobsBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// Describe returns a job by its queue identifier, or nil when unknown.
func (s *Service) Describe(ctx context.Context, id int64) (*Job, error) {
	if err := s.ready("describe"); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, services.Wrap(services.ErrValidation, "api", "describe", "job id must be positive", nil)
	}
	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromJobPtr(job), nil
}

// List returns jobs filtered by status. With no filters every job is
// returned in submission order.
func (s *Service) List(ctx context.Context, statuses ...string) ([]Job, error) {
	if err := s.ready("list"); err != nil {
		return nil, err
	}
	parsed := make([]queue.Status, 0, len(statuses))
	for _, raw := range statuses {
		status, err := queue.ParseStatus(raw)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "api", "list", err.Error(), nil)
		}
		parsed = append(parsed, status)
	}
	jobs, err := s.store.List(ctx, parsed...)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// Stats returns job counts keyed by status name.
func (s *Service) Stats(ctx context.Context) (QueueStatsResponse, error) {
	if err := s.ready("stats"); err != nil {
		return QueueStatsResponse{}, err
	}
	counts, err := s.store.Stats(ctx)
	if err != nil {
		return QueueStatsResponse{}, err
	}
	return QueueStatsResponse{Counts: MergeQueueStats(counts)}, nil
}

// Health returns queue occupancy for status displays.
func (s *Service) Health(ctx context.Context) (QueueHealth, error) {
	if err := s.ready("health"); err != nil {
		return QueueHealth{}, err
	}
	health, err := s.store.Health(ctx)
	if err != nil {
		return QueueHealth{}, err
	}
	return FromHealth(health), nil
}

// Cancel stops the live job for a subject. Canceling a subject with no
// live job reports Changed false.
func (s *Service) Cancel(ctx context.Context, subjectID string) (ActionResponse, error) {
	if err := s.ready("cancel"); err != nil {
		return ActionResponse{}, err
	}
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return ActionResponse{}, services.Wrap(services.ErrValidation, "api", "cancel", "subject id is required", nil)
	}
	job, changed, err := s.store.CancelSubject(ctx, subjectID)
	if err != nil {
		return ActionResponse{}, err
	}
	if changed && s.recorder != nil {
		s.recorder.RecordCancel()
	}
	return ActionResponse{Job: FromJobPtr(job), Changed: changed}, nil
}

// Retry requeues a subject after a failure, or resets a job that looks
// stuck. Live jobs inside the cooldown window are left untouched.
func (s *Service) Retry(ctx context.Context, subjectID string) (ActionResponse, error) {
	if err := s.ready("retry"); err != nil {
		return ActionResponse{}, err
	}
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return ActionResponse{}, services.Wrap(services.ErrValidation, "api", "retry", "subject id is required", nil)
	}
	job, changed, err := s.store.RetrySubject(ctx, subjectID)
	if err != nil {
		return ActionResponse{}, err
	}
	if changed && s.recorder != nil {
		s.recorder.RecordRetry()
	}
	return ActionResponse{Job: FromJobPtr(job), Changed: changed}, nil
}

// Claim leases the next eligible job for a worker. A nil job means the
// queue has nothing eligible right now.
func (s *Service) Claim(ctx context.Context, req ClaimRequest) (*Job, error) {
	if err := s.ready("claim"); err != nil {
		return nil, err
	}
	workerID := strings.TrimSpace(req.WorkerID)
	if workerID == "" {
		return nil, services.Wrap(services.ErrValidation, "api", "claim", "worker id is required", nil)
	}
	leaseSeconds := req.LeaseSeconds
	if leaseSeconds <= 0 {
		leaseSeconds = s.defaults.LeaseSeconds
	}
	if leaseSeconds <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "api", "claim", "lease duration is not configured", nil)
	}
	job, err := s.store.Claim(ctx, workerID, time.Duration(leaseSeconds)*time.Second)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}
	if s.recorder != nil {
		s.recorder.RecordClaim()
	}
	return FromJobPtr(job), nil
}

// Complete settles a leased job as successful. Lease conflicts surface
// as queue.ErrLeaseConflict.
func (s *Service) Complete(ctx context.Context, req CompleteRequest) (*Job, error) {
	if err := s.ready("complete"); err != nil {
		return nil, err
	}
	if err := validateLeaseRequest("complete", req.JobID, req.WorkerID); err != nil {
		return nil, err
	}
	job, err := s.store.Complete(ctx, req.JobID, strings.TrimSpace(req.WorkerID))
	if err != nil {
		return nil, err
	}
	if s.recorder != nil {
		s.recorder.RecordComplete(jobDuration(job))
	}
	return FromJobPtr(job), nil
}

// Fail settles a leased job as failed. Recoverable failures inside the
// attempt budget reschedule the job with backoff.
func (s *Service) Fail(ctx context.Context, req FailRequest) (*Job, error) {
	if err := s.ready("fail"); err != nil {
		return nil, err
	}
	if err := validateLeaseRequest("fail", req.JobID, req.WorkerID); err != nil {
		return nil, err
	}
	job, err := s.store.Fail(ctx, req.JobID, strings.TrimSpace(req.WorkerID), req.Error, req.Recoverable)
	if err != nil {
		return nil, err
	}
	if s.recorder != nil {
		s.recorder.RecordFail(job != nil && job.Status == queue.StatusFailed)
	}
	return FromJobPtr(job), nil
}

// Progress mirrors a worker progress report onto the job row. Reports
// that land after a cancel return the canceled job unchanged so the
// worker can observe the cancellation and stop.
func (s *Service) Progress(ctx context.Context, req ProgressRequest) (*Job, error) {
	if err := s.ready("progress"); err != nil {
		return nil, err
	}
	if err := validateLeaseRequest("progress", req.JobID, req.WorkerID); err != nil {
		return nil, err
	}
	job, err := s.store.ReportProgress(ctx, req.JobID, strings.TrimSpace(req.WorkerID), queue.ProgressUpdate{
		Progress:       req.Percent,
		Stage:          req.Stage,
		ETASeconds:     req.ETASeconds,
		ElapsedSeconds: req.ElapsedSeconds,
		LogLine:        req.LogLine,
	})
	if err != nil {
		return nil, err
	}
	return FromJobPtr(job), nil
}

func validateLeaseRequest(op string, jobID int64, workerID string) error {
	if jobID <= 0 {
		return services.Wrap(services.ErrValidation, "api", op, "job id must be positive", nil)
	}
	if strings.TrimSpace(workerID) == "" {
		return services.Wrap(services.ErrValidation, "api", op, "worker id is required", nil)
	}
	return nil
}

func jobDuration(job *queue.Job) time.Duration {
	if job == nil || job.StartedAt == nil || job.CompletedAt == nil {
		return 0
	}
	duration := job.CompletedAt.Sub(*job.StartedAt)
	if duration < 0 {
		return 0
	}
	return duration
}
