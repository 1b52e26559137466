package pkgmgr

// Kind selects which extension family a call operates on.
type Kind string

const (
	KindPlugin Kind = "plugin"
	KindTheme  Kind = "theme"
)

// Extension statuses reported by the CLI's list operation.
const (
	StatusActive        = "active"
	StatusActiveNetwork = "active-network"
	StatusInactive      = "inactive"
)

// InstalledExtension is one row of the CLI's list output for a kind.
type InstalledExtension struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Version    string `json:"version"`
	AutoUpdate string `json:"auto_update"`
}

// Active reports whether the extension is active anywhere.
func (e InstalledExtension) Active() bool {
	return e.Status == StatusActive || e.Status == StatusActiveNetwork
}

// Site is one row of the CLI's site list output.
type Site struct {
	ID   int64  `json:"blog_id,string"`
	URL  string `json:"url"`
	Path string `json:"path"`
}

// InstallOpts carries the first-time setup parameters.
type InstallOpts struct {
	URL           string
	Title         string
	AdminUser     string
	AdminPassword string
	AdminEmail    string
}
