package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for problems that would make a run
// meaningless. All problems are collected so the operator fixes them in one
// pass rather than one abort at a time.
func (c Config) Validate() error {
	var problems []string

	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.name is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, fmt.Sprintf("database.port %d is out of range", c.Database.Port))
	}

	if c.Locking.HeartbeatInterval <= 0 {
		problems = append(problems, "locking.heartbeatInterval must be positive")
	}
	if c.Locking.StaleThreshold < 2*c.Locking.HeartbeatInterval {
		problems = append(problems, "locking.staleThreshold must be at least twice locking.heartbeatInterval")
	}
	if c.Locking.PollInterval <= 0 {
		problems = append(problems, "locking.pollInterval must be positive")
	}
	if c.Locking.MaxWait < c.Locking.PollInterval {
		problems = append(problems, "locking.maxWait must be at least locking.pollInterval")
	}

	if c.CLI.Binary == "" {
		problems = append(problems, "cli.binary is required")
	}

	for i, ext := range c.Desired.Plugins {
		if ext.Name == "" && ext.URL == "" {
			problems = append(problems, fmt.Sprintf("desired.plugins[%d]: name or url is required", i))
		}
		if err := validateScope(ext); err != nil {
			problems = append(problems, fmt.Sprintf("desired.plugins[%d]: %v", i, err))
		}
	}
	for i, ext := range c.Desired.Themes {
		if ext.Name == "" && ext.URL == "" {
			problems = append(problems, fmt.Sprintf("desired.themes[%d]: name or url is required", i))
		}
		if err := validateScope(ext); err != nil {
			problems = append(problems, fmt.Sprintf("desired.themes[%d]: %v", i, err))
		}
	}
	for i, site := range c.Desired.Sites {
		if site.Name == "" {
			problems = append(problems, fmt.Sprintf("desired.sites[%d]: name is required", i))
		}
	}
	if len(c.Desired.Sites) > 0 && !c.Desired.Multisite {
		problems = append(problems, "desired.sites requires desired.multisite")
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration:\n  " + strings.Join(problems, "\n  "))
}

func validateScope(ext DesiredExtension) error {
	switch ext.Activate {
	case "", ScopeNone, ScopeMain, ScopeNetwork:
		return nil
	case ScopeSites:
		if len(ext.Sites) == 0 {
			return fmt.Errorf("activate=sites requires a site list")
		}
		return nil
	default:
		return fmt.Errorf("unknown activation scope %q", ext.Activate)
	}
}
