// Package logstream renders daemon log lines for the CLI, preferring
// the HTTP API and falling back to IPC tailing when the API listener
// is unreachable. Both transports share the same offset semantics, so
// follow mode resumes wherever the previous read stopped.
package logstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"loom/internal/api"
	"loom/internal/ipc"
)

// ErrUnavailable reports that no transport could reach the daemon.
var ErrUnavailable = errors.New("daemon log endpoints unavailable")

// followWait is how long each follow request holds server-side before
// returning an empty batch.
const followWait = time.Second

// Tailer fetches log lines over the HTTP API.
type Tailer interface {
	Logs(ctx context.Context, offset int64, limit int, follow bool, wait time.Duration) (api.LogTailResponse, error)
}

// TailClient captures the IPC log tail contract used for fallback
// streaming.
type TailClient interface {
	LogTail(req ipc.LogTailRequest) (*ipc.LogTailResponse, error)
}

// Options controls stream behavior.
type Options struct {
	Lines  int
	Follow bool
}

// Stream emits log lines through onLine, trying the HTTP API first and
// falling back to IPC when the API cannot be reached. It returns true
// when at least one line was emitted.
func Stream(ctx context.Context, apiClient Tailer, fallback TailClient, opts Options, onLine func(string)) (bool, error) {
	printed, err := streamAPI(ctx, apiClient, opts, onLine)
	if err == nil {
		return printed, nil
	}
	if !isAPIUnavailable(err) {
		return printed, err
	}
	if fallback == nil {
		return false, ErrUnavailable
	}
	return streamIPC(ctx, fallback, opts, onLine)
}

func streamAPI(ctx context.Context, client Tailer, opts Options, onLine func(string)) (bool, error) {
	if client == nil {
		return false, ErrUnavailable
	}

	offset := int64(-1)
	limit := opts.Lines
	follow := false
	var wait time.Duration
	printed := false
	for {
		resp, err := client.Logs(ctx, offset, limit, follow, wait)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return printed, nil
			}
			return printed, err
		}
		for _, line := range resp.Lines {
			if onLine != nil {
				onLine(line)
			}
			printed = true
		}
		if !opts.Follow {
			return printed, nil
		}
		offset = resp.Offset
		limit = 0
		follow = true
		wait = followWait

		select {
		case <-ctx.Done():
			return printed, nil
		default:
		}
	}
}

func streamIPC(ctx context.Context, client TailClient, opts Options, onLine func(string)) (bool, error) {
	offset := int64(-1)
	limit := opts.Lines
	printed := false
	for {
		resp, err := client.LogTail(ipc.LogTailRequest{
			Offset:     offset,
			Limit:      limit,
			Follow:     opts.Follow,
			WaitMillis: int(followWait / time.Millisecond),
		})
		if err != nil {
			return printed, fmt.Errorf("tail logs: %w", err)
		}
		if resp == nil {
			return printed, errors.New("log tail response missing")
		}
		for _, line := range resp.Lines {
			if onLine != nil {
				onLine(line)
			}
			printed = true
		}
		offset = resp.Offset
		limit = 0
		if !opts.Follow {
			return printed, nil
		}

		select {
		case <-ctx.Done():
			return printed, nil
		default:
		}
	}
}

// isAPIUnavailable distinguishes connection failures, which justify the
// IPC fallback, from errors the API itself produced.
func isAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
