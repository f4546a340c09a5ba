package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"loom/internal/api"
	"loom/internal/queue"
)

// fetchSubjectJob resolves a subject's latest job through the HTTP API
// when the daemon listener answers and falls back to reading the job
// database directly otherwise.
func fetchSubjectJob(cmdCtx context.Context, ctx *commandContext, subjectID string) (*api.Job, error) {
	if client, clientErr := ctx.apiClient(); clientErr == nil {
		job, err := client.Status(cmdCtx, subjectID)
		if err == nil {
			return job, nil
		}
		if !isAPIUnreachable(err) {
			return nil, err
		}
	}

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job database: %w", err)
	}
	defer store.Close()
	svc := api.NewService(store, api.DefaultsFromConfig(cfg))
	return svc.Status(cmdCtx, subjectID)
}

// isAPIUnreachable distinguishes connection failures, which justify the
// direct database fallback, from errors the API itself produced.
func isAPIUnreachable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func runSubjectStatus(cmd *cobra.Command, ctx *commandContext, subjectID string) error {
	job, err := fetchSubjectJob(cmd.Context(), ctx, subjectID)
	if err != nil {
		return err
	}
	if ctx.JSONMode() {
		return writeJSON(cmd, map[string]any{"job": job})
	}
	stdout := cmd.OutOrStdout()
	if job == nil {
		fmt.Fprintf(stdout, "No job found for subject %s\n", subjectID)
		return nil
	}
	colorize := shouldColorize(stdout)
	for _, line := range renderJobDetail(job, colorize) {
		fmt.Fprintln(stdout, line)
	}
	return nil
}

func renderJobDetail(job *api.Job, colorize bool) []string {
	lines := make([]string, 0, 8)
	lines = append(lines, renderStatusLine("Subject", statusInfo, job.SubjectID, colorize))
	lines = append(lines, renderStatusLine("Job", statusInfo, fmt.Sprintf("%d (attempt %d/%d, priority %d)", job.ID, job.Attempts, job.MaxAttempts, job.Priority), colorize))
	lines = append(lines, renderStatusLine("Status", statusKindForJob(job.Status), formatStatusLabel(job.Status), colorize))
	if job.Progress.Percent != nil {
		detail := progressCell(*job)
		if job.Progress.ETASeconds != nil && *job.Progress.ETASeconds > 0 {
			detail = fmt.Sprintf("%s, ETA %s", detail, (time.Duration(*job.Progress.ETASeconds) * time.Second).String())
		}
		lines = append(lines, renderStatusLine("Progress", statusInfo, detail, colorize))
	}
	if job.WorkerID != "" {
		lines = append(lines, renderStatusLine("Worker", statusInfo, job.WorkerID, colorize))
	}
	if job.Error != "" {
		lines = append(lines, renderStatusLine("Last error", statusError, job.Error, colorize))
	}
	if job.Progress.LogLine != "" {
		lines = append(lines, renderStatusLine("Log", statusInfo, job.Progress.LogLine, colorize))
	}
	if updated := formatDisplayTime(job.UpdatedAt); updated != "" {
		lines = append(lines, renderStatusLine("Updated", statusInfo, updated, colorize))
	}
	return lines
}

func statusKindForJob(status string) statusKind {
	switch status {
	case string(queue.StatusCompleted):
		return statusOK
	case string(queue.StatusFailed):
		return statusError
	case string(queue.StatusCanceled), string(queue.StatusRetry):
		return statusWarn
	default:
		return statusInfo
	}
}
