package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"loom/internal/api"
	"loom/internal/ipc"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "retry <subject-id>...",
		Short: "Requeue failed or canceled subjects",
		Long: `Requeue failed or canceled subjects. A running job younger than the
retry cooldown is left untouched; one that has gone quiet past the
cooldown is reset and requeued.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcomes := make([]map[string]any, 0, len(args))
			requeued := make([]string, 0, len(args))
			err := ctx.withService(func(client *ipc.Client, svc *api.Service) error {
				out := cmd.OutOrStdout()
				for _, subjectID := range args {
					var action api.ActionResponse
					if client != nil {
						resp, callErr := client.Retry(subjectID)
						if callErr != nil {
							return callErr
						}
						action = api.ActionResponse{Job: resp.Job, Changed: resp.Changed}
					} else {
						resp, callErr := svc.Retry(cmd.Context(), subjectID)
						if callErr != nil {
							return callErr
						}
						action = resp
					}
					if action.Changed {
						requeued = append(requeued, subjectID)
					}
					if ctx.JSONMode() {
						outcomes = append(outcomes, map[string]any{"subjectId": subjectID, "job": action.Job, "changed": action.Changed})
						continue
					}
					printRetryOutcome(out, subjectID, action)
				}
				return nil
			})
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{"results": outcomes})
			}
			if watch && len(requeued) > 0 {
				return watchSubjects(cmd, ctx, requeued, true)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Watch requeued subjects until they finish")
	return cmd
}

func printRetryOutcome(out io.Writer, subjectID string, action api.ActionResponse) {
	switch {
	case action.Job == nil:
		fmt.Fprintf(out, "No job found for subject %s\n", subjectID)
	case action.Changed:
		fmt.Fprintf(out, "Requeued %s (job %d)\n", subjectID, action.Job.ID)
	default:
		fmt.Fprintf(out, "Retry skipped for %s (job %d is %s)\n", subjectID, action.Job.ID, formatStatusLabel(action.Job.Status))
	}
}
