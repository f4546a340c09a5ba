package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"loom/internal/logstream"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}

			// Interface variables stay nil unless construction
			// succeeded, so logstream sees a true nil rather than a
			// typed-nil client.
			var tailer logstream.Tailer
			if client, err := ctx.apiClient(); err == nil {
				tailer = client
			}
			var fallback logstream.TailClient
			if client, err := ctx.dialClient(); err == nil {
				defer client.Close()
				fallback = client
			}

			out := cmd.OutOrStdout()
			opts := logstream.Options{Lines: lines, Follow: follow}
			printed, err := logstream.Stream(cmd.Context(), tailer, fallback, opts, func(line string) {
				fmt.Fprintln(out, line)
			})
			if err != nil {
				if errors.Is(err, logstream.ErrUnavailable) {
					return errors.New("daemon logs are unavailable; start the daemon with `loom start`")
				}
				return err
			}
			if !printed && !follow {
				fmt.Fprintln(out, "No log entries available")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show (0 for all)")
	return cmd
}
