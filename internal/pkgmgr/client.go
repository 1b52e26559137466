package pkgmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"siteinit/internal/config"
	"siteinit/internal/retrying"
	"siteinit/pkg/logging"
)

const cliSubsystem = "PkgMgr"

// execCommandContext is a variable to allow stubbing the subprocess in tests.
var execCommandContext = exec.CommandContext

// Client drives the package-management subprocess. Every operation is one
// CLI invocation; network-bound ones run through the retry executor.
type Client struct {
	cfg   config.CLIConfig
	retry *retrying.Executor
}

// NewClient returns a Client for the CLI described by cfg.
func NewClient(cfg config.CLIConfig, retry *retrying.Executor) *Client {
	return &Client{cfg: cfg, retry: retry}
}

// run invokes the CLI once with the standard global arguments prepended.
func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	full := make([]string, 0, len(args)+4)
	full = append(full, args...)
	if c.cfg.Path != "" {
		full = append(full, "--path="+c.cfg.Path)
	}
	full = append(full, c.cfg.ExtraArgs...)

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	logging.Debug(cliSubsystem, "Running %s %s", c.cfg.Binary, strings.Join(full, " "))
	cmd := execCommandContext(ctx, c.cfg.Binary, full...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w (output: %s)", c.cfg.Binary, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// runRetried invokes the CLI through the retry executor.
func (c *Client) runRetried(ctx context.Context, label string, args ...string) ([]byte, error) {
	var out []byte
	err := c.retry.Do(ctx, label, func() error {
		var runErr error
		out, runErr = c.run(ctx, args...)
		return runErr
	})
	return out, err
}

// IsInstalled reports whether first-time setup has already run. A non-zero
// exit is the CLI's way of saying "no", not a failure.
func (c *Client) IsInstalled(ctx context.Context) bool {
	_, err := c.run(ctx, "core", "is-installed")
	return err == nil
}

// IsMultisite reports whether the installation has been converted already.
func (c *Client) IsMultisite(ctx context.Context) bool {
	_, err := c.run(ctx, "core", "is-installed", "--network")
	return err == nil
}

// Install runs first-time setup. Called only under the bootstrap lock.
func (c *Client) Install(ctx context.Context, opts InstallOpts) error {
	args := []string{
		"core", "install",
		"--url=" + opts.URL,
		"--title=" + opts.Title,
		"--admin_user=" + opts.AdminUser,
		"--admin_password=" + opts.AdminPassword,
		"--admin_email=" + opts.AdminEmail,
		"--skip-email",
	}
	if _, err := c.runRetried(ctx, "core install", args...); err != nil {
		return fmt.Errorf("first-time setup: %w", err)
	}
	return nil
}

// ConvertToMultisite converts a single-site installation. Called only under
// the bootstrap lock.
func (c *Client) ConvertToMultisite(ctx context.Context) error {
	if _, err := c.runRetried(ctx, "multisite convert", "core", "multisite-convert"); err != nil {
		return fmt.Errorf("multisite conversion: %w", err)
	}
	return nil
}

// ListExtensions returns the installed extensions of one kind as seen from
// siteURL ("" means the main site). This is the expensive full query;
// callers issue it at most once per kind and site per pass.
func (c *Client) ListExtensions(ctx context.Context, kind Kind, siteURL string) ([]InstalledExtension, error) {
	args := []string{string(kind), "list", "--format=json", "--fields=name,status,version,auto_update"}
	if siteURL != "" {
		args = append(args, "--url="+siteURL)
	}
	out, err := c.runRetried(ctx, string(kind)+" list", args...)
	if err != nil {
		return nil, fmt.Errorf("listing %ss: %w", kind, err)
	}
	var items []InstalledExtension
	if err := json.Unmarshal(out, &items); err != nil {
		return nil, fmt.Errorf("parsing %s list: %w", kind, err)
	}
	return items, nil
}

// InstallExtensions installs the given specs in one batch call. A spec is a
// registry name, an archive URL, or a local package path. version applies to
// every spec in the batch, so versioned installs arrive in single-item
// batches.
func (c *Client) InstallExtensions(ctx context.Context, kind Kind, specs []string, version string) error {
	if len(specs) == 0 {
		return nil
	}
	args := append([]string{string(kind), "install"}, specs...)
	if version != "" {
		args = append(args, "--version="+version)
	}
	if _, err := c.runRetried(ctx, string(kind)+" install", args...); err != nil {
		return fmt.Errorf("installing %ss %v: %w", kind, specs, err)
	}
	return nil
}

// Activate activates one extension. networkWide and siteURL are mutually
// exclusive; both empty means the main site.
func (c *Client) Activate(ctx context.Context, kind Kind, name string, networkWide bool, siteURL string) error {
	args := []string{string(kind), "activate", name}
	if networkWide {
		args = append(args, "--network")
	}
	if siteURL != "" {
		args = append(args, "--url="+siteURL)
	}
	if _, err := c.runRetried(ctx, string(kind)+" activate", args...); err != nil {
		return fmt.Errorf("activating %s %q: %w", kind, name, err)
	}
	return nil
}

// Deactivate deactivates one extension.
func (c *Client) Deactivate(ctx context.Context, kind Kind, name string, networkWide bool, siteURL string) error {
	args := []string{string(kind), "deactivate", name}
	if networkWide {
		args = append(args, "--network")
	}
	if siteURL != "" {
		args = append(args, "--url="+siteURL)
	}
	if _, err := c.runRetried(ctx, string(kind)+" deactivate", args...); err != nil {
		return fmt.Errorf("deactivating %s %q: %w", kind, name, err)
	}
	return nil
}

// DeleteExtension removes one installed extension. Deletions are issued one
// at a time so one refused deletion never blocks the others.
func (c *Client) DeleteExtension(ctx context.Context, kind Kind, name string) error {
	if _, err := c.runRetried(ctx, string(kind)+" delete", string(kind), "delete", name); err != nil {
		return fmt.Errorf("deleting %s %q: %w", kind, name, err)
	}
	return nil
}

// ListSites returns the sub-sites of a multisite installation.
func (c *Client) ListSites(ctx context.Context) ([]Site, error) {
	out, err := c.runRetried(ctx, "site list",
		"site", "list", "--format=json", "--fields=blog_id,url,path")
	if err != nil {
		return nil, fmt.Errorf("listing sites: %w", err)
	}
	var sites []Site
	if err := json.Unmarshal(out, &sites); err != nil {
		return nil, fmt.Errorf("parsing site list: %w", err)
	}
	return sites, nil
}

// CreateSite creates a sub-site and returns its numeric id.
func (c *Client) CreateSite(ctx context.Context, slug, title string) (int64, error) {
	args := []string{"site", "create", "--slug=" + slug, "--porcelain"}
	if title != "" {
		args = append(args, "--title="+title)
	}
	out, err := c.runRetried(ctx, "site create", args...)
	if err != nil {
		return 0, fmt.Errorf("creating site %q: %w", slug, err)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing created site id %q: %w", strings.TrimSpace(string(out)), err)
	}
	return id, nil
}

// UpdateSitePath points an existing sub-site at a new slug. Used when a
// desired site declares a rename.
func (c *Client) UpdateSitePath(ctx context.Context, id int64, slug string) error {
	args := []string{"site", "update", strconv.FormatInt(id, 10), "--slug=" + slug}
	if _, err := c.runRetried(ctx, "site update", args...); err != nil {
		return fmt.Errorf("updating site %d path to %q: %w", id, slug, err)
	}
	return nil
}
