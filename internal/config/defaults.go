package config

import "time"

// GetDefaultConfig returns the configuration a run starts from before yaml
// and environment overlays are applied.
func GetDefaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Host:        "localhost",
			Port:        3306,
			TablePrefix: "wp_",
		},
		Locking: LockingConfig{
			PollInterval:      10 * time.Second,
			MaxWait:           600 * time.Second,
			HeartbeatInterval: 15 * time.Second,
			StaleThreshold:    60 * time.Second,
		},
		CopyGuard: CopyGuardConfig{
			Timeout:      120 * time.Second,
			PollInterval: 2 * time.Second,
		},
		CLI: CLIConfig{
			Binary:  "wp",
			Timeout: 10 * time.Minute,
		},
		Setup: SetupConfig{
			Title:     "Site",
			AdminUser: "admin",
		},
		LogLevel: "info",
	}
}
