package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"loom/internal/api"
	"loom/internal/config"
	"loom/internal/ipc"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var payloadPath string
	var priority int
	var watch bool

	cmd := &cobra.Command{
		Use:   "submit <subject-id>",
		Short: "Queue a subject for assembly",
		Long: `Queue a subject for assembly. Submission is idempotent: when a
pending, running, or retrying job already covers the subject, that job
is returned instead of creating a duplicate.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subjectID := strings.TrimSpace(args[0])
			if subjectID == "" {
				return errors.New("subject id is required")
			}
			payload, err := readPayload(cmd, payloadPath)
			if err != nil {
				return err
			}
			var prio *int
			if cmd.Flags().Changed("priority") {
				prio = &priority
			}

			var job api.Job
			var created bool
			err = ctx.withService(func(client *ipc.Client, svc *api.Service) error {
				if client != nil {
					resp, submitErr := client.Submit(ipc.SubmitRequest{SubjectID: subjectID, Payload: payload, Priority: prio})
					if submitErr != nil {
						return submitErr
					}
					job, created = resp.Job, resp.Created
					return nil
				}
				resp, submitErr := svc.Submit(cmd.Context(), api.SubmitRequest{SubjectID: subjectID, Payload: payload, Priority: prio})
				if submitErr != nil {
					return submitErr
				}
				job, created = resp.Job, resp.Created
				return nil
			})
			if err != nil {
				return err
			}

			if ctx.JSONMode() && !watch {
				return writeJSON(cmd, map[string]any{"job": job, "created": created})
			}
			stdout := cmd.OutOrStdout()
			if created {
				fmt.Fprintf(stdout, "Queued %s as job %d\n", subjectID, job.ID)
			} else {
				fmt.Fprintf(stdout, "Subject %s already covered by job %d (%s)\n", subjectID, job.ID, formatStatusLabel(job.Status))
			}
			if watch {
				return watchSubjects(cmd, ctx, []string{subjectID}, false)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&payloadPath, "payload", "p", "", "Assembly payload JSON file (use - for stdin)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Job priority (higher is served first)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Watch progress until the job finishes")
	return cmd
}

func readPayload(cmd *cobra.Command, path string) (json.RawMessage, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		expanded, expandErr := config.ExpandPath(path)
		if expandErr != nil {
			return nil, fmt.Errorf("resolve payload path: %w", expandErr)
		}
		data, err = os.ReadFile(expanded)
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, errors.New("payload must be valid JSON")
	}
	return json.RawMessage(data), nil
}
