package config

// DefaultConfig returns a Config struct populated with sensible default
// values. These defaults are used when creating a new config file or when
// specific values are not provided in an existing config file.
func DefaultConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			LogLevel:                  "info",
			EventBufferingEnabled:     true,
			EventBufferWindowMS:       100,
			EventGroupingModeTUI:      "smart",
			EventGroupingModeHeadless: "simple",
			LargeFileThresholdBytes:   1_000_000,
			LastChangeThresholdHours:  24,
			CircuitBreaker: BreakerConfig{
				BulkChangeThreshold:           10,
				BulkChangeWindowMS:            5_000,
				BulkChangeAutoPause:           true,
				BranchChangeDetectionEnabled:  true,
				BranchChangeWarningEnabled:    true,
				BranchWithBulkChangeError:     true,
				BranchWithBulkChangeThreshold: 5,
				AutoResumeAfterBulkPauseSecs:  0,
				RequireManualAcknowledgment:   false,
			},
		},
		Repositories: map[string]RepoSettings{},
	}
}
