package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"loom/internal/api"
	"loom/internal/config"
	"loom/internal/poller"
	"loom/internal/queue"
	"loom/internal/reconcile"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <subject-id>...",
		Short: "Follow assembly progress for one or more subjects",
		Long: "Watch polls the daemon for job snapshots and prints a line whenever\n" +
			"the merged view of a subject changes. Watching ends when every subject\n" +
			"reaches a terminal state or the polling ceiling elapses; Ctrl-C stops\n" +
			"watching without touching the jobs.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchSubjects(cmd, ctx, args, false)
		},
	}
}

// watchSubjects drives the polling controller for the given subjects and
// renders merged views until every watch ends. The daemon API is the
// preferred snapshot source; when it is unreachable the job database is
// read directly, which still reflects worker writes. afterRetry marks
// the subjects as freshly retried so lingering canceled snapshots are
// shown as retrying during the grace window.
func watchSubjects(cmd *cobra.Command, ctx *commandContext, subjects []string, afterRetry bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}

	subjects = dedupeSubjects(subjects)
	if len(subjects) == 0 {
		return errors.New("no subject ids given")
	}

	fetcher, canceler, cleanup, err := watchTransport(cmd.Context(), ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	rec := reconcile.New(reconcile.OptionsFromConfig(cfg))
	if afterRetry {
		for _, subject := range subjects {
			rec.NoteRetry(subject)
		}
	}
	controller := poller.New(fetcher, canceler, rec, nil, poller.OptionsFromConfig(cfg))
	defer controller.Close()

	return renderWatch(cmd, controller, subjects)
}

// watchTransport picks the snapshot source for a watch session. The
// choice is made once up front so a mid-watch daemon restart does not
// silently flip the source.
func watchTransport(ctx context.Context, cmdCtx *commandContext, cfg *config.Config) (poller.Fetcher, poller.Canceler, func(), error) {
	if client, err := cmdCtx.apiClient(); err == nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, pingErr := client.DaemonStatus(pingCtx)
		cancel()
		if pingErr == nil {
			return client, client, func() {}, nil
		}
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open job database: %w", err)
	}
	svc := api.NewService(store, api.DefaultsFromConfig(cfg))
	return svc, svc, func() { _ = store.Close() }, nil
}

// renderWatch starts a watch per subject, merges their update streams,
// and prints each changed view. It returns an error when any subject
// ends in failure so scripts can branch on the exit code.
func renderWatch(cmd *cobra.Command, controller *poller.Controller, subjects []string) error {
	watchCtx, stop := contextWithInterrupt(cmd.Context())
	defer stop()

	streams := make([]<-chan reconcile.View, 0, len(subjects))
	watched := make([]string, 0, len(subjects))
	for _, subject := range subjects {
		ch, err := controller.Watch(watchCtx, subject)
		if err != nil {
			if errors.Is(err, poller.ErrAlreadyTracked) {
				continue
			}
			return fmt.Errorf("watch %s: %w", subject, err)
		}
		streams = append(streams, ch)
		watched = append(watched, subject)
	}
	if len(watched) == 0 {
		return errors.New("no subjects to watch")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Watching %s (Ctrl-C to stop)\n", strings.Join(watched, ", "))

	updates := make(chan reconcile.View, len(watched)*4)
	var wg sync.WaitGroup
	for _, ch := range streams {
		wg.Add(1)
		go func(ch <-chan reconcile.View) {
			defer wg.Done()
			for view := range ch {
				updates <- view
			}
		}(ch)
	}
	go func() {
		wg.Wait()
		close(updates)
	}()

	colorize := shouldColorize(out)
	lastLine := make(map[string]string, len(watched))
	failed := 0
	for view := range updates {
		line := formatWatchLine(view, colorize)
		if line == lastLine[view.SubjectID] {
			continue
		}
		lastLine[view.SubjectID] = line
		fmt.Fprintln(out, line)
		if view.Terminal && view.Condition == reconcile.ConditionFailed {
			failed++
		}
	}

	if watchCtx.Err() != nil {
		return nil
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d subjects failed", failed, len(watched))
	}
	return nil
}

// formatWatchLine renders one merged view as a single display line.
func formatWatchLine(view reconcile.View, colorize bool) string {
	label := formatStatusLabel(string(view.Condition))
	if colorize {
		if color := statusKindColor(conditionKind(view.Condition)); color != "" {
			label = color + label + ansiReset
		}
	}

	parts := []string{fmt.Sprintf("%-12s %-10s", view.SubjectID, label)}
	switch view.Condition {
	case reconcile.ConditionRunning, reconcile.ConditionStalled:
		progress := fmt.Sprintf("%3d%%", view.Progress)
		if view.Heuristic {
			progress += " (estimated)"
		}
		parts = append(parts, progress)
		if stage := formatStageLabel(view.Stage); stage != "" {
			parts = append(parts, stage)
		}
		if view.ETASeconds > 0 {
			parts = append(parts, "eta "+(time.Duration(view.ETASeconds)*time.Second).String())
		}
	case reconcile.ConditionRetrying:
		if view.Attempt > 0 && view.MaxAttempts > 0 {
			parts = append(parts, fmt.Sprintf("attempt %d/%d", view.Attempt, view.MaxAttempts))
		}
	case reconcile.ConditionCompleted:
		parts = append(parts, "100%")
	}
	if view.LastError != "" {
		switch view.Condition {
		case reconcile.ConditionFailed, reconcile.ConditionRetrying, reconcile.ConditionStalled:
			parts = append(parts, "error: "+view.LastError)
		}
	}
	if view.LogLine != "" && view.Condition == reconcile.ConditionRunning {
		parts = append(parts, view.LogLine)
	}
	return strings.Join(parts, "  ")
}

// conditionKind maps a reconciled condition onto the shared status
// severity scale used for colorized output.
func conditionKind(condition reconcile.Condition) statusKind {
	switch condition {
	case reconcile.ConditionCompleted:
		return statusOK
	case reconcile.ConditionFailed:
		return statusError
	case reconcile.ConditionRetrying, reconcile.ConditionStalled, reconcile.ConditionCanceled:
		return statusWarn
	default:
		return statusInfo
	}
}

func contextWithInterrupt(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func dedupeSubjects(subjects []string) []string {
	seen := make(map[string]struct{}, len(subjects))
	out := make([]string, 0, len(subjects))
	for _, subject := range subjects {
		subject = strings.TrimSpace(subject)
		if subject == "" {
			continue
		}
		if _, ok := seen[subject]; ok {
			continue
		}
		seen[subject] = struct{}{}
		out = append(out, subject)
	}
	return out
}
