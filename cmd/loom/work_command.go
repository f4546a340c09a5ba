package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"loom/internal/api"
	"loom/internal/logging"
	"loom/internal/worker"
)

func newWorkCommand(ctx *commandContext) *cobra.Command {
	var (
		workers    int
		drain      bool
		single     bool
		maxJobs    int
		maxRuntime int
		server     string
		token      string
	)

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Run standalone assembly workers against a daemon",
		Long: "Work claims jobs over the daemon's HTTP API and assembles them\n" +
			"locally, so additional machines can help drain the queue. Workers\n" +
			"run until interrupted; with --drain they exit once a claim comes\n" +
			"back empty, and --single processes exactly one job.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			// Copy the config so flag overrides stay local to this run.
			runCfg := *cfg
			if workers > 0 {
				runCfg.Workers.Count = workers
			}
			if maxJobs > 0 {
				runCfg.Workers.MaxJobs = maxJobs
			}
			if maxRuntime > 0 {
				runCfg.Workers.MaxRuntime = maxRuntime
			}
			if server != "" {
				runCfg.Paths.APIBind = server
			}
			if token != "" {
				runCfg.Paths.APIToken = token
			}
			if single {
				runCfg.Workers.Count = 1
				runCfg.Workers.MaxJobs = 1
				drain = true
			}

			base := apiBaseURL(runCfg.Paths.APIBind)
			if base == "" {
				return errors.New("api_bind is not configured; set [paths] api_bind or pass --server")
			}
			var clientOpts []api.ClientOption
			if t := strings.TrimSpace(runCfg.Paths.APIToken); t != "" {
				clientOpts = append(clientOpts, api.WithToken(t))
			}
			client := api.NewClient(base, clientOpts...)

			logger, err := logging.New(logging.Options{
				Level:  runCfg.Logging.Level,
				Format: "console",
			})
			if err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}

			runCtx, stop := contextWithInterrupt(cmd.Context())
			defer stop()

			pool := worker.New(&runCfg, client, nil, logger, worker.WithDrainMode(drain))
			if err := pool.Start(runCtx); err != nil {
				return err
			}
			pool.Wait()

			summary := pool.Status()
			fmt.Fprintf(cmd.OutOrStdout(), "Processed %d jobs\n", summary.Processed)
			if summary.LastError != "" {
				return fmt.Errorf("last job error: %s", summary.LastError)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "Number of workers to run (defaults to the configured count)")
	cmd.Flags().BoolVar(&drain, "drain", false, "Exit once the queue has no claimable jobs")
	cmd.Flags().BoolVar(&single, "single", false, "Process a single job and exit")
	cmd.Flags().IntVar(&maxJobs, "max-jobs", 0, "Stop each worker after this many jobs")
	cmd.Flags().IntVar(&maxRuntime, "max-runtime", 0, "Per-job runtime ceiling in seconds")
	cmd.Flags().StringVar(&server, "server", "", "Daemon API address (host:port) overriding the configured bind")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token for the daemon API")
	return cmd
}
