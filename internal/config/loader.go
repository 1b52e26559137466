package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"siteinit/pkg/logging"

	"gopkg.in/yaml.v3"
)

const loaderSubsystem = "ConfigLoader"

// Environment variables recognized by the credential overlay. The deployment
// injects these from its secret; they win over yaml values.
const (
	EnvDBHost        = "SITEINIT_DB_HOST"
	EnvDBPort        = "SITEINIT_DB_PORT"
	EnvDBUser        = "SITEINIT_DB_USER"
	EnvDBPassword    = "SITEINIT_DB_PASSWORD"
	EnvDBName        = "SITEINIT_DB_NAME"
	EnvTablePrefix   = "SITEINIT_DB_TABLE_PREFIX"
	EnvSiteURL       = "SITEINIT_SITE_URL"
	EnvAdminPassword = "SITEINIT_ADMIN_PASSWORD"
)

// Load reads the configuration file at path over the defaults, then applies
// the environment overlay. A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := GetDefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info(loaderSubsystem, "No config file at %s, using defaults", path)
			applyEnvOverlay(&cfg)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	logging.Info(loaderSubsystem, "Loaded configuration from %s", path)

	applyEnvOverlay(&cfg)
	return cfg, nil
}

func applyEnvOverlay(cfg *Config) {
	if v := os.Getenv(EnvDBHost); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv(EnvDBPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		} else {
			logging.Warn(loaderSubsystem, "Ignoring non-numeric %s=%q", EnvDBPort, v)
		}
	}
	if v := os.Getenv(EnvDBUser); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv(EnvDBPassword); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv(EnvDBName); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv(EnvTablePrefix); v != "" {
		cfg.Database.TablePrefix = v
	}
	if v := os.Getenv(EnvSiteURL); v != "" {
		cfg.CLI.URL = v
	}
	if v := os.Getenv(EnvAdminPassword); v != "" {
		cfg.Setup.AdminPassword = v
	}
}
