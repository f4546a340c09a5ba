package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"loom/internal/api"
	"loom/internal/ipc"
)

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <subject-id>...",
		Short: "Cancel the active job for each subject",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcomes := make([]map[string]any, 0, len(args))
			err := ctx.withService(func(client *ipc.Client, svc *api.Service) error {
				out := cmd.OutOrStdout()
				for _, subjectID := range args {
					var action api.ActionResponse
					if client != nil {
						resp, callErr := client.Cancel(subjectID)
						if callErr != nil {
							return callErr
						}
						action = api.ActionResponse{Job: resp.Job, Changed: resp.Changed}
					} else {
						resp, callErr := svc.Cancel(cmd.Context(), subjectID)
						if callErr != nil {
							return callErr
						}
						action = resp
					}
					if ctx.JSONMode() {
						outcomes = append(outcomes, map[string]any{"subjectId": subjectID, "job": action.Job, "changed": action.Changed})
						continue
					}
					printCancelOutcome(out, subjectID, action)
				}
				return nil
			})
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{"results": outcomes})
			}
			return nil
		},
	}
}

func printCancelOutcome(out io.Writer, subjectID string, action api.ActionResponse) {
	switch {
	case action.Job == nil:
		fmt.Fprintf(out, "No job found for subject %s\n", subjectID)
	case action.Changed:
		fmt.Fprintf(out, "Canceled %s (job %d)\n", subjectID, action.Job.ID)
	default:
		fmt.Fprintf(out, "Nothing to cancel for %s (job %d is %s)\n", subjectID, action.Job.ID, formatStatusLabel(action.Job.Status))
	}
}
