package config

import "time"

// Config is the top-level configuration for a siteinit run.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Locking   LockingConfig   `yaml:"locking"`
	CopyGuard CopyGuardConfig `yaml:"copyGuard"`
	CLI       CLIConfig       `yaml:"cli"`
	Setup     SetupConfig     `yaml:"setup"`
	Desired   DesiredState    `yaml:"desired"`
	LogLevel  string          `yaml:"logLevel,omitempty"`
}

// SetupConfig carries the first-time setup parameters. They are only
// consulted when this replica wins the bootstrap lock on a fresh
// installation. The admin password arrives via environment, never yaml.
type SetupConfig struct {
	Title         string `yaml:"title,omitempty"`
	AdminUser     string `yaml:"adminUser,omitempty"`
	AdminEmail    string `yaml:"adminEmail,omitempty"`
	AdminPassword string `yaml:"-"`
}

// DatabaseConfig holds connection parameters for the shared datastore.
// Credentials normally arrive via environment variables injected by the
// deployment; yaml values are a fallback for local runs.
type DatabaseConfig struct {
	Host        string `yaml:"host,omitempty"`
	Port        int    `yaml:"port,omitempty"`
	User        string `yaml:"user,omitempty"`
	Password    string `yaml:"password,omitempty"`
	Name        string `yaml:"name,omitempty"`
	TablePrefix string `yaml:"tablePrefix,omitempty"`
}

// LockingConfig tunes the distributed lock protocol. StaleThreshold must be
// several multiples of HeartbeatInterval so a transiently descheduled holder
// is not declared dead.
type LockingConfig struct {
	PollInterval      time.Duration `yaml:"pollInterval,omitempty"`
	MaxWait           time.Duration `yaml:"maxWait,omitempty"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval,omitempty"`
	StaleThreshold    time.Duration `yaml:"staleThreshold,omitempty"`
}

// CopyGuardConfig tunes the pre-datastore filesystem guard. SyncCommand is
// the external collaborator that copies the application core files onto the
// shared filesystem; the whole step is skipped when it is empty.
type CopyGuardConfig struct {
	Dir          string        `yaml:"dir,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
	PollInterval time.Duration `yaml:"pollInterval,omitempty"`
	SyncCommand  []string      `yaml:"syncCommand,omitempty"`
}

// CLIConfig describes the package-management subprocess.
type CLIConfig struct {
	// Binary is the executable name or path.
	Binary string `yaml:"binary,omitempty"`
	// Path is the installation root passed to every invocation.
	Path string `yaml:"path,omitempty"`
	// URL is the site URL passed to every invocation; required for
	// multisite-scoped operations.
	URL string `yaml:"url,omitempty"`
	// ExtraArgs are appended to every invocation.
	ExtraArgs []string `yaml:"extraArgs,omitempty"`
	// Timeout bounds a single subprocess invocation.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// ActivationScope says where a desired extension should be active.
type ActivationScope string

const (
	// ScopeNone installs without activating.
	ScopeNone ActivationScope = "none"
	// ScopeMain activates on the main site only.
	ScopeMain ActivationScope = "main"
	// ScopeNetwork activates network-wide. Supersedes ScopeSites for the
	// same item.
	ScopeNetwork ActivationScope = "network"
	// ScopeSites activates on an explicit list of sub-sites.
	ScopeSites ActivationScope = "sites"
)

// DesiredExtension describes one plugin or theme the deployment wants
// installed. Exactly one of Name/URL identifies the source: a bare name is a
// registry install (optionally pinned by Version), a URL is a direct archive
// install, and a local path in Name is an external package.
type DesiredExtension struct {
	Name       string          `yaml:"name,omitempty"`
	Version    string          `yaml:"version,omitempty"`
	URL        string          `yaml:"url,omitempty"`
	Activate   ActivationScope `yaml:"activate,omitempty"`
	Sites      []string        `yaml:"sites,omitempty"`
	AutoUpdate bool            `yaml:"autoUpdate,omitempty"`
}

// DesiredSite describes one sub-site of a multisite installation.
// PreviousName records a rename: the mapping entry for PreviousName is
// migrated to Name before identity resolution runs.
type DesiredSite struct {
	Name         string `yaml:"name"`
	PreviousName string `yaml:"previousName,omitempty"`
	Title        string `yaml:"title,omitempty"`
	Path         string `yaml:"path,omitempty"`
}

// DesiredState is the declarative description this job converges toward.
type DesiredState struct {
	Multisite bool               `yaml:"multisite,omitempty"`
	Prune     bool               `yaml:"prune,omitempty"`
	Plugins   []DesiredExtension `yaml:"plugins,omitempty"`
	Themes    []DesiredExtension `yaml:"themes,omitempty"`
	Sites     []DesiredSite      `yaml:"sites,omitempty"`
}
