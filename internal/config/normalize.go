package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeQueue()
	c.normalizeWorkers()
	c.normalizeClient()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("LOOM_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeQueue() {
	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = defaultMaxAttempts
	}
	if c.Queue.DefaultPriority <= 0 {
		c.Queue.DefaultPriority = defaultPriority
	}
	if c.Queue.RetryCooldown <= 0 {
		c.Queue.RetryCooldown = defaultRetryCooldown
	}
	if c.Queue.RetryBackoffBase <= 0 {
		c.Queue.RetryBackoffBase = defaultRetryBackoffBase
	}
	if c.Queue.RetryBackoffCeiling <= 0 {
		c.Queue.RetryBackoffCeiling = defaultRetryBackoffCeiling
	}
	if c.Queue.RetentionDays < 0 {
		c.Queue.RetentionDays = 0
	}
}

func (c *Config) normalizeWorkers() {
	if c.Workers.Count < 0 {
		c.Workers.Count = 0
	}
	if c.Workers.PollInterval <= 0 {
		c.Workers.PollInterval = defaultWorkerPollInterval
	}
	if c.Workers.LeaseSeconds <= 0 {
		c.Workers.LeaseSeconds = defaultLeaseSeconds
	}
	if c.Workers.MaxJobs < 0 {
		c.Workers.MaxJobs = 0
	}
	if c.Workers.MaxRuntime < 0 {
		c.Workers.MaxRuntime = 0
	}
	c.Workers.AssemblerBinary = strings.TrimSpace(c.Workers.AssemblerBinary)
	if c.Workers.AssemblerBinary == "" {
		c.Workers.AssemblerBinary = defaultAssemblerBinary
	}
}

func (c *Config) normalizeClient() {
	if c.Client.PollInterval <= 0 {
		c.Client.PollInterval = defaultClientPollInterval
	}
	if c.Client.PollTimeout <= 0 {
		c.Client.PollTimeout = defaultClientPollTimeout
	}
	if c.Client.StalenessSeconds <= 0 {
		c.Client.StalenessSeconds = defaultStalenessSeconds
	}
	if c.Client.RetryGrace < 0 {
		c.Client.RetryGrace = defaultRetryGraceSeconds
	}
	if c.Client.StateTTL <= 0 {
		c.Client.StateTTL = defaultStateTTLSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
