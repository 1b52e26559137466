package reconciler

import (
	"context"

	"siteinit/internal/pkgmgr"
)

// Manager is the slice of the package-management client the engine drives.
// pkgmgr.Client satisfies it; tests substitute a fake.
type Manager interface {
	ListExtensions(ctx context.Context, kind pkgmgr.Kind, siteURL string) ([]pkgmgr.InstalledExtension, error)
	InstallExtensions(ctx context.Context, kind pkgmgr.Kind, specs []string, version string) error
	Activate(ctx context.Context, kind pkgmgr.Kind, name string, networkWide bool, siteURL string) error
	Deactivate(ctx context.Context, kind pkgmgr.Kind, name string, networkWide bool, siteURL string) error
	DeleteExtension(ctx context.Context, kind pkgmgr.Kind, name string) error
	EntryPoint(kind pkgmgr.Kind, name string) (string, error)
	ListSites(ctx context.Context) ([]pkgmgr.Site, error)
	CreateSite(ctx context.Context, slug, title string) (int64, error)
	UpdateSitePath(ctx context.Context, id int64, slug string) error
}

// OptionStore is the slice of the configuration store the engine needs for
// the authoritative auto-update lists.
type OptionStore interface {
	GetOption(ctx context.Context, key string) (string, error)
	SetOption(ctx context.Context, key, value string) error
}

// Source classifies where a desired extension is installed from.
type Source string

const (
	// SourceRegistry is a bare name resolved against the public registry.
	SourceRegistry Source = "registry"
	// SourceRegistryVersioned is a registry name pinned to one version.
	SourceRegistryVersioned Source = "registry-versioned"
	// SourceExternalPackage is an archive on the shared filesystem.
	SourceExternalPackage Source = "external-package"
	// SourceDirectURL is an archive fetched from an explicit URL.
	SourceDirectURL Source = "direct-url"
)

// Result summarizes what executing a plan actually did.
type Result struct {
	Installed        int
	Activated        int
	Deactivated      int
	Deleted          int
	SkippedDeletions []string
	FailedItems      []string
	SitesCreated     int
	SitesMigrated    int
}
