package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 600*time.Second, cfg.Locking.MaxWait)
	assert.Equal(t, 10*time.Second, cfg.Locking.PollInterval)
	assert.Equal(t, "wp", cfg.CLI.Binary)
}

func TestLoadOverlaysYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database:
  user: app
  name: appdb
locking:
  staleThreshold: 90s
desired:
  multisite: true
  plugins:
    - name: akismet
      activate: network
      autoUpdate: true
  sites:
    - name: blog
      title: The Blog
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "app", cfg.Database.User)
	assert.Equal(t, 90*time.Second, cfg.Locking.StaleThreshold)
	assert.Equal(t, 15*time.Second, cfg.Locking.HeartbeatInterval, "defaults survive partial yaml")
	require.Len(t, cfg.Desired.Plugins, 1)
	assert.Equal(t, ScopeNetwork, cfg.Desired.Plugins[0].Activate)
	assert.True(t, cfg.Desired.Plugins[0].AutoUpdate)
	require.NoError(t, cfg.Validate())
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("desired: ["), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverlayWinsOverYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  host: from-yaml\n  user: app\n  name: appdb\n"), 0o644))

	t.Setenv(EnvDBHost, "from-env")
	t.Setenv(EnvDBPort, "3307")
	t.Setenv(EnvAdminPassword, "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Database.Host)
	assert.Equal(t, 3307, cfg.Database.Port)
	assert.Equal(t, "s3cret", cfg.Setup.AdminPassword)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Database.User = ""
	cfg.Database.Name = ""
	cfg.Locking.StaleThreshold = cfg.Locking.HeartbeatInterval
	cfg.Desired.Sites = []DesiredSite{{Name: "blog"}}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "database.user")
	assert.Contains(t, msg, "database.name")
	assert.Contains(t, msg, "staleThreshold")
	assert.Contains(t, msg, "desired.sites requires desired.multisite")
}

func TestValidateScopes(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Database.User = "app"
	cfg.Database.Name = "appdb"
	cfg.Desired.Plugins = []DesiredExtension{
		{Name: "a", Activate: ScopeSites},
		{Name: "b", Activate: "everywhere"},
		{Activate: ScopeMain},
	}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "activate=sites requires a site list")
	assert.Contains(t, msg, `unknown activation scope "everywhere"`)
	assert.Contains(t, msg, "name or url is required")
}
