package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"loom/internal/queue"
	"loom/internal/services"
)

const defaultHTTPTimeout = 30 * time.Second

// Client talks to a loom daemon over its HTTP API. It mirrors the
// Service method set so callers can swap between in-process and remote
// access.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// ClientOption customizes the HTTP client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// NewClient constructs a daemon API client for the given base URL,
// e.g. "http://127.0.0.1:7533".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	client := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.http == nil {
		client.http = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

// Submit queues a subject for assembly.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs", req, &resp); err != nil {
		return SubmitResponse{}, err
	}
	return resp, nil
}

// Status returns the most recent job for a subject, or nil when the
// daemon has never seen the subject.
func (c *Client) Status(ctx context.Context, subjectID string) (*Job, error) {
	var job Job
	err := c.do(ctx, http.MethodGet, "/api/subjects/"+url.PathEscape(subjectID), nil, &job)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// History returns every job recorded for a subject, oldest first.
func (c *Client) History(ctx context.Context, subjectID string) ([]Job, error) {
	var resp QueueListResponse
	err := c.do(ctx, http.MethodGet, "/api/subjects/"+url.PathEscape(subjectID)+"/history", nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Describe returns a job by queue identifier, or nil when unknown.
func (c *Client) Describe(ctx context.Context, id int64) (*Job, error) {
	var job Job
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+strconv.FormatInt(id, 10), nil, &job)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// List returns queued jobs, optionally filtered by status.
func (c *Client) List(ctx context.Context, statuses ...string) ([]Job, error) {
	path := "/api/jobs"
	if len(statuses) > 0 {
		values := url.Values{}
		for _, status := range statuses {
			values.Add("status", status)
		}
		path += "?" + values.Encode()
	}
	var resp QueueListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Stats returns job counts keyed by status name.
func (c *Client) Stats(ctx context.Context) (QueueStatsResponse, error) {
	var resp QueueStatsResponse
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &resp); err != nil {
		return QueueStatsResponse{}, err
	}
	return resp, nil
}

// Health returns queue occupancy counters.
func (c *Client) Health(ctx context.Context) (QueueHealth, error) {
	var resp QueueHealth
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &resp); err != nil {
		return QueueHealth{}, err
	}
	return resp, nil
}

// DaemonStatus returns the daemon runtime summary.
func (c *Client) DaemonStatus(ctx context.Context) (DaemonStatus, error) {
	var resp DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return DaemonStatus{}, err
	}
	return resp, nil
}

// Cancel stops the live job for a subject.
func (c *Client) Cancel(ctx context.Context, subjectID string) (ActionResponse, error) {
	var resp ActionResponse
	err := c.do(ctx, http.MethodPost, "/api/subjects/"+url.PathEscape(subjectID)+"/cancel", nil, &resp)
	if err != nil {
		return ActionResponse{}, err
	}
	return resp, nil
}

// Retry requeues a subject after a failure.
func (c *Client) Retry(ctx context.Context, subjectID string) (ActionResponse, error) {
	var resp ActionResponse
	err := c.do(ctx, http.MethodPost, "/api/subjects/"+url.PathEscape(subjectID)+"/retry", nil, &resp)
	if err != nil {
		return ActionResponse{}, err
	}
	return resp, nil
}

// Logs reads daemon log lines starting at the given byte offset. A
// negative offset tails the last limit lines. With follow set the
// daemon holds the request up to wait for new lines to arrive.
func (c *Client) Logs(ctx context.Context, offset int64, limit int, follow bool, wait time.Duration) (LogTailResponse, error) {
	values := url.Values{}
	values.Set("offset", strconv.FormatInt(offset, 10))
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	if follow {
		values.Set("follow", "1")
	}
	if wait > 0 {
		values.Set("wait_ms", strconv.FormatInt(wait.Milliseconds(), 10))
	}
	var resp LogTailResponse
	if err := c.do(ctx, http.MethodGet, "/api/logs?"+values.Encode(), nil, &resp); err != nil {
		return LogTailResponse{}, err
	}
	return resp, nil
}

// Claim leases the next eligible job for a worker. A nil job means the
// queue has nothing eligible.
func (c *Client) Claim(ctx context.Context, req ClaimRequest) (*Job, error) {
	var resp ClaimResponse
	if err := c.do(ctx, http.MethodPost, "/api/worker/claim", req, &resp); err != nil {
		return nil, err
	}
	return resp.Job, nil
}

// Complete settles a leased job as successful.
func (c *Client) Complete(ctx context.Context, req CompleteRequest) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodPost, "/api/worker/complete", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Fail settles a leased job as failed.
func (c *Client) Fail(ctx context.Context, req FailRequest) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodPost, "/api/worker/fail", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Progress mirrors a worker progress report.
func (c *Client) Progress(ctx context.Context, req ProgressRequest) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodPost, "/api/worker/progress", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, result any) error {
	if c == nil || c.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "api", "client", "daemon address not configured", nil)
	}
	endpoint := c.baseURL + path

	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "api", "client", "daemon request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		return decodeAPIError(resp.StatusCode, body)
	}
	if result == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, body []byte) error {
	message := strings.TrimSpace(string(body))
	var payload ErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil && strings.TrimSpace(payload.Error) != "" {
		message = strings.TrimSpace(payload.Error)
	}
	switch status {
	case http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "api", "client", message, nil)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", queue.ErrLeaseConflict, message)
	case http.StatusBadRequest:
		return services.Wrap(services.ErrValidation, "api", "client", message, nil)
	case http.StatusUnauthorized, http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "api", "client", message, nil)
	default:
		return fmt.Errorf("daemon returned http %d: %s", status, message)
	}
}
