package config

const (
	defaultDataDir             = "~/.local/share/loom/data"
	defaultLogDir              = "~/.local/share/loom/logs"
	defaultAPIBind             = "127.0.0.1:7733"
	defaultMaxAttempts         = 3
	defaultPriority            = 5
	defaultRetryCooldown       = 600
	defaultRetryBackoffBase    = 120
	defaultRetryBackoffCeiling = 3600
	defaultRetentionDays       = 30
	defaultWorkerCount         = 1
	defaultWorkerPollInterval  = 5
	defaultLeaseSeconds        = 900
	defaultClientPollInterval  = 5
	defaultClientPollTimeout   = 7200
	defaultStalenessSeconds    = 600
	defaultRetryGraceSeconds   = 10
	defaultStateTTLSeconds     = 7200
	defaultAssemblerBinary     = "loom-assembler"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Queue: Queue{
			MaxAttempts:         defaultMaxAttempts,
			DefaultPriority:     defaultPriority,
			RetryCooldown:       defaultRetryCooldown,
			RetryBackoffBase:    defaultRetryBackoffBase,
			RetryBackoffCeiling: defaultRetryBackoffCeiling,
			RetentionDays:       defaultRetentionDays,
		},
		Workers: Workers{
			Count:           defaultWorkerCount,
			PollInterval:    defaultWorkerPollInterval,
			LeaseSeconds:    defaultLeaseSeconds,
			AssemblerBinary: defaultAssemblerBinary,
		},
		Client: Client{
			PollInterval:     defaultClientPollInterval,
			PollTimeout:      defaultClientPollTimeout,
			StalenessSeconds: defaultStalenessSeconds,
			RetryGrace:       defaultRetryGraceSeconds,
			StateTTL:         defaultStateTTLSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
