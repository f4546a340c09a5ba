package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"loom/internal/api"
	"loom/internal/ipc"
	"loom/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the job queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueDescribeCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var counts map[string]int
				if client != nil {
					status, err := client.Status()
					if err != nil {
						return err
					}
					counts = queueStatusCounts(status.Queue)
				} else {
					stats, err := store.Stats(cmd.Context())
					if err != nil {
						return err
					}
					counts = api.MergeQueueStats(stats)
				}

				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"counts": counts})
				}
				rows := buildQueueStatusRows(counts)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var jobs []api.Job
				if client != nil {
					resp, err := client.QueueList(listStatuses)
					if err != nil {
						return err
					}
					jobs = resp.Jobs
				} else {
					statuses, err := parseStatusFilters(listStatuses)
					if err != nil {
						return err
					}
					listed, err := store.List(cmd.Context(), statuses...)
					if err != nil {
						return err
					}
					jobs = api.FromJobs(listed)
				}

				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"jobs": jobs})
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Subject", "Status", "Progress", "Attempts", "Created"},
					buildJobRows(jobs),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Only list jobs with these statuses")
	return cmd
}

func newQueueDescribeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <job-id>",
		Short: "Show one job in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var job *api.Job
				if client != nil {
					resp, err := client.QueueDescribe(id)
					if err != nil {
						if strings.Contains(strings.ToLower(err.Error()), "not found") {
							fmt.Fprintf(cmd.OutOrStdout(), "Job %d not found\n", id)
							return nil
						}
						return err
					}
					job = &resp.Job
				} else {
					found, err := store.GetByID(cmd.Context(), id)
					if err != nil {
						return err
					}
					if found == nil {
						fmt.Fprintf(cmd.OutOrStdout(), "Job %d not found\n", id)
						return nil
					}
					job = api.FromJobPtr(found)
				}

				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"job": job})
				}
				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)
				for _, line := range renderJobDetail(job, colorize) {
					fmt.Fprintln(stdout, line)
				}
				if len(job.Payload) > 0 {
					fmt.Fprintln(stdout, renderStatusLine("Payload", statusInfo, string(job.Payload), colorize))
				}
				return nil
			})
		},
	}
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check job database health (schema, integrity, columns)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var resp *ipc.DatabaseHealthResponse
				if client != nil {
					fetched, err := client.DatabaseHealth()
					if err != nil {
						return err
					}
					resp = fetched
				} else {
					health, err := store.CheckHealth(cmd.Context())
					if err != nil && health.Error == "" {
						return err
					}
					resp = databaseHealthResponse(health)
				}

				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Database path: %s\n", resp.DBPath)
				fmt.Fprintf(out, "Database exists: %s\n", yesNo(resp.DatabaseExists))
				fmt.Fprintf(out, "Readable: %s\n", yesNo(resp.DatabaseReadable))
				fmt.Fprintf(out, "Schema version: %s\n", resp.SchemaVersion)
				fmt.Fprintf(out, "jobs table present: %s\n", yesNo(resp.TableExists))
				if len(resp.ColumnsPresent) > 0 {
					cols := append([]string(nil), resp.ColumnsPresent...)
					sort.Strings(cols)
					fmt.Fprintf(out, "Columns: %s\n", strings.Join(cols, ", "))
				}
				if len(resp.MissingColumns) > 0 {
					missing := append([]string(nil), resp.MissingColumns...)
					sort.Strings(missing)
					fmt.Fprintf(out, "Missing columns: %s\n", strings.Join(missing, ", "))
				} else {
					fmt.Fprintln(out, "Missing columns: none")
				}
				fmt.Fprintf(out, "Integrity check: %s\n", yesNo(resp.IntegrityCheck))
				fmt.Fprintf(out, "Total jobs: %d\n", resp.TotalJobs)
				if resp.Error != "" {
					fmt.Fprintf(out, "Error: %s\n", resp.Error)
				}
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove jobs from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("specify only one of --completed or --failed")
			}
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var removed int64
				label := "queue"
				if client != nil {
					switch {
					case clearCompleted:
						resp, err := client.QueueClearCompleted()
						if err != nil {
							return err
						}
						removed, label = resp.Removed, "completed"
					case clearFailed:
						resp, err := client.QueueClearFailed()
						if err != nil {
							return err
						}
						removed, label = resp.Removed, "failed"
					default:
						resp, err := client.QueueClear()
						if err != nil {
							return err
						}
						removed = resp.Removed
					}
				} else {
					var err error
					switch {
					case clearCompleted:
						removed, err = store.ClearCompleted(cmd.Context())
						label = "completed"
					case clearFailed:
						removed, err = store.ClearFailed(cmd.Context())
						label = "failed"
					default:
						removed, err = store.Clear(cmd.Context())
					}
					if err != nil {
						return err
					}
				}

				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"removed": removed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d %s jobs\n", removed, label)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only completed jobs")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed jobs")
	return cmd
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job-id>...",
		Short: "Remove specific jobs by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseJobID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}

			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				out := cmd.OutOrStdout()
				removed := int64(0)
				for _, id := range ids {
					var ok bool
					if client != nil {
						resp, err := client.QueueRemove(id)
						if err != nil {
							return err
						}
						ok = resp.Removed
					} else {
						var err error
						ok, err = store.Remove(cmd.Context(), id)
						if err != nil {
							return err
						}
					}
					if ok {
						removed++
						if !ctx.JSONMode() {
							fmt.Fprintf(out, "Job %d removed\n", id)
						}
					} else if !ctx.JSONMode() {
						fmt.Fprintf(out, "Job %d not found\n", id)
					}
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"removed": removed})
				}
				return nil
			})
		},
	}
}

func parseJobID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", arg)
	}
	return id, nil
}

func parseStatusFilters(raw []string) ([]queue.Status, error) {
	statuses := make([]queue.Status, 0, len(raw))
	for _, value := range raw {
		status, err := queue.ParseStatus(value)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func databaseHealthResponse(health queue.DatabaseHealth) *ipc.DatabaseHealthResponse {
	return &ipc.DatabaseHealthResponse{
		DBPath:           health.DBPath,
		DatabaseExists:   health.DatabaseExists,
		DatabaseReadable: health.DatabaseReadable,
		SchemaVersion:    health.SchemaVersion,
		TableExists:      health.TableExists,
		ColumnsPresent:   health.ColumnsPresent,
		MissingColumns:   health.MissingColumns,
		IntegrityCheck:   health.IntegrityCheck,
		TotalJobs:        health.TotalJobs,
		Error:            health.Error,
	}
}
