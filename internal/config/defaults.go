package config

const (
	defaultLogDir                = "~/.local/share/seedkeeper/logs"
	defaultDownloadDir           = "~/.local/share/seedkeeper/downloads"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultTrackerTimeout        = 30
	defaultTransferTimeout       = 15
	defaultRatioFloor            = 1.00
	defaultRatioRecovery         = 1.05
	defaultRatioCheckInterval    = 300
	defaultSnapshotRetentionDays = 90
	defaultBitrateCeilingKbps    = 320
	defaultQualityGlobalFloor    = 40
	defaultVIPRenewalCost        = 5000
	defaultVIPRunHour            = 3
	defaultLifecyclePollInterval = 30
	defaultErrorRetryInterval    = 10
	defaultSeedSlotTotal         = 20
	defaultNtfyRequestTimeout    = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:      defaultLogDir,
			DownloadDir: defaultDownloadDir,
		},
		Tracker: Tracker{
			RequestTimeout: defaultTrackerTimeout,
		},
		Transfer: Transfer{
			RequestTimeout: defaultTransferTimeout,
		},
		Ratio: Ratio{
			Floor:             defaultRatioFloor,
			Recovery:          defaultRatioRecovery,
			CheckInterval:     defaultRatioCheckInterval,
			SnapshotRetention: defaultSnapshotRetentionDays,
		},
		Quality: Quality{
			BitrateCeilingKbps: defaultBitrateCeilingKbps,
			GlobalFloor:        defaultQualityGlobalFloor,
		},
		VIP: VIP{
			Enabled:     true,
			RenewalCost: defaultVIPRenewalCost,
			RunHour:     defaultVIPRunHour,
		},
		Workflow: Workflow{
			LifecyclePollInterval: defaultLifecyclePollInterval,
			ErrorRetryInterval:    defaultErrorRetryInterval,
			SeedSlotTotal:         defaultSeedSlotTotal,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}
