package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"siteinit/internal/config"
	"siteinit/internal/pkgmgr"
	"siteinit/internal/sitemap"
	"siteinit/internal/store"
	"siteinit/pkg/codec"
	"siteinit/pkg/logging"
)

const reconcilerSubsystem = "Reconciler"

// Auto-update option keys, one authoritative list per kind.
const (
	autoUpdateOptionPlugins = "auto_update_plugins"
	autoUpdateOptionThemes  = "auto_update_themes"
)

// Builder assembles a Plan from desired configuration and observed actual
// state. It queries the full actual state at most once per kind (plus once
// per sub-site referenced by a site-scoped activation); those queries are
// orders of magnitude more expensive than anything targeted.
type Builder struct {
	mgr     Manager
	opts    OptionStore
	codec   codec.Codec
	desired config.DesiredState
	siteMap *sitemap.Store

	// perSite caches per-site activation lists, keyed by kind and site URL.
	perSite map[string][]pkgmgr.InstalledExtension
}

// NewBuilder returns a Builder over the given collaborators. siteMap must
// already be loaded for the current pass.
func NewBuilder(mgr Manager, opts OptionStore, c codec.Codec, desired config.DesiredState, siteMap *sitemap.Store) *Builder {
	return &Builder{
		mgr:     mgr,
		opts:    opts,
		codec:   c,
		desired: desired,
		siteMap: siteMap,
		perSite: map[string][]pkgmgr.InstalledExtension{},
	}
}

// Build computes the plan. Unsafe or malformed desired items become warnings
// on the plan, never errors; a failure to observe actual state is an error
// because nothing can be safely planned against an unknown baseline.
func (b *Builder) Build(ctx context.Context) (*Plan, error) {
	plan := &Plan{}

	kinds := []struct {
		kind      pkgmgr.Kind
		desired   []config.DesiredExtension
		optionKey string
	}{
		{pkgmgr.KindPlugin, b.desired.Plugins, autoUpdateOptionPlugins},
		{pkgmgr.KindTheme, b.desired.Themes, autoUpdateOptionThemes},
	}
	for _, k := range kinds {
		kp, err := b.buildKind(ctx, plan, k.kind, k.desired, k.optionKey)
		if err != nil {
			return nil, err
		}
		plan.Kinds = append(plan.Kinds, kp)
	}

	// Prune needs the site pass even with zero desired sites, or stale
	// mapping entries would linger forever.
	if b.desired.Multisite && (len(b.desired.Sites) > 0 || b.desired.Prune) {
		sites, err := b.buildSites(ctx)
		if err != nil {
			return nil, err
		}
		plan.Sites = sites
	}
	return plan, nil
}

func (b *Builder) buildKind(ctx context.Context, plan *Plan, kind pkgmgr.Kind, desired []config.DesiredExtension, optionKey string) (KindPlan, error) {
	kp := KindPlan{Kind: kind}

	actual, err := b.mgr.ListExtensions(ctx, kind, "")
	if err != nil {
		return kp, fmt.Errorf("observing actual %s state: %w", kind, err)
	}
	installed := make(map[string]pkgmgr.InstalledExtension, len(actual))
	for _, ext := range actual {
		installed[ext.Name] = ext
		if ext.Active() {
			kp.ActiveCount++
		}
	}

	items := make([]desiredItem, 0, len(desired))
	for _, ext := range desired {
		item, err := classify(ext)
		if err != nil {
			warning := fmt.Sprintf("skipping desired %s: %v", kind, err)
			logging.Warn(reconcilerSubsystem, "%s", warning)
			plan.Warnings = append(plan.Warnings, warning)
			continue
		}
		items = append(items, item)
	}

	kp.Installs = b.groupInstalls(items, installed)
	kp.Activations = b.buildActivations(ctx, kind, items, installed)
	kp.AutoUpdate = b.buildAutoUpdate(ctx, kind, optionKey, items, installed)
	if b.desired.Prune {
		kp.Deletions = b.buildDeletions(kind, items, actual)
	}
	return kp, nil
}

// groupInstalls partitions the not-yet-installed items into one batch call
// per source. Versioned items each form their own group.
func (b *Builder) groupInstalls(items []desiredItem, installed map[string]pkgmgr.InstalledExtension) []InstallGroup {
	groups := map[Source]*InstallGroup{}
	var ordered []*InstallGroup

	for _, item := range items {
		if _, ok := installed[item.id]; ok {
			continue
		}
		if item.source == SourceRegistryVersioned {
			ordered = append(ordered, &InstallGroup{
				Source:  item.source,
				Specs:   []string{item.spec},
				Names:   []string{item.id},
				Version: item.cfg.Version,
			})
			continue
		}
		g, ok := groups[item.source]
		if !ok {
			g = &InstallGroup{Source: item.source}
			groups[item.source] = g
			ordered = append(ordered, g)
		}
		g.Specs = append(g.Specs, item.spec)
		g.Names = append(g.Names, item.id)
	}

	result := make([]InstallGroup, 0, len(ordered))
	for _, g := range ordered {
		result = append(result, *g)
	}
	return result
}

// buildActivations computes the delta between desired activation scopes and
// observed activation. Network-wide activation supersedes the named-subset
// scope for the same item; an item observed active network-wide therefore
// satisfies every narrower scope.
func (b *Builder) buildActivations(ctx context.Context, kind pkgmgr.Kind, items []desiredItem, installed map[string]pkgmgr.InstalledExtension) []ActivationChange {
	var changes []ActivationChange

	for _, item := range items {
		current, isInstalled := installed[item.id]
		scope := item.cfg.Activate
		if scope == "" || scope == config.ScopeNone {
			continue
		}

		switch scope {
		case config.ScopeNetwork:
			if isInstalled && current.Status == pkgmgr.StatusActiveNetwork {
				continue
			}
			changes = append(changes, ActivationChange{Name: item.id, NetworkWide: true})

		case config.ScopeMain:
			if isInstalled && current.Status == pkgmgr.StatusActive {
				continue
			}
			if isInstalled && current.Status == pkgmgr.StatusActiveNetwork {
				// Narrowing network-wide down to the main site.
				changes = append(changes,
					ActivationChange{Name: item.id, Deactivate: true, NetworkWide: true},
					ActivationChange{Name: item.id})
				continue
			}
			changes = append(changes, ActivationChange{Name: item.id})

		case config.ScopeSites:
			if isInstalled && current.Status == pkgmgr.StatusActiveNetwork {
				continue
			}
			for _, site := range item.cfg.Sites {
				if isInstalled && b.activeAt(ctx, kind, site, item.id) {
					continue
				}
				changes = append(changes, ActivationChange{Name: item.id, SiteURL: site})
			}
		}
	}
	return changes
}

// activeAt reports whether name is active as seen from siteURL, querying
// each referenced site at most once per pass.
func (b *Builder) activeAt(ctx context.Context, kind pkgmgr.Kind, siteURL, name string) bool {
	key := string(kind) + "\x00" + siteURL
	list, ok := b.perSite[key]
	if !ok {
		var err error
		list, err = b.mgr.ListExtensions(ctx, kind, siteURL)
		if err != nil {
			logging.Warn(reconcilerSubsystem, "Cannot observe %s state at %s, assuming inactive: %v", kind, siteURL, err)
			list = nil
		}
		b.perSite[key] = list
	}
	for _, ext := range list {
		if ext.Name == name {
			return ext.Active()
		}
	}
	return false
}

// buildAutoUpdate decides whether the kind's auto-update list needs its
// authoritative replacement write. When every desired auto-update item is
// already installed, the canonical forms are resolvable now and the write is
// skipped if the stored list already matches.
func (b *Builder) buildAutoUpdate(ctx context.Context, kind pkgmgr.Kind, optionKey string, items []desiredItem, installed map[string]pkgmgr.InstalledExtension) *AutoUpdateReplace {
	var names []string
	allInstalled := true
	for _, item := range items {
		if !item.cfg.AutoUpdate {
			continue
		}
		names = append(names, item.id)
		if _, ok := installed[item.id]; !ok {
			allInstalled = false
		}
	}
	sort.Strings(names)

	if allInstalled {
		canonical := make([]string, 0, len(names))
		resolvable := true
		for _, name := range names {
			entry, err := b.mgr.EntryPoint(kind, name)
			if err != nil {
				resolvable = false
				break
			}
			canonical = append(canonical, entry)
		}
		if resolvable && b.storedAutoUpdateEquals(ctx, optionKey, canonical) {
			return nil
		}
	}
	if len(names) == 0 && !b.storedAutoUpdateEquals(ctx, optionKey, nil) {
		return &AutoUpdateReplace{OptionKey: optionKey, Names: nil}
	}
	if len(names) == 0 {
		return nil
	}
	return &AutoUpdateReplace{OptionKey: optionKey, Names: names}
}

func (b *Builder) storedAutoUpdateEquals(ctx context.Context, optionKey string, canonical []string) bool {
	raw, err := b.opts.GetOption(ctx, optionKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return len(canonical) == 0
		}
		return false
	}
	stored, err := b.codec.DecodeStringList([]byte(raw))
	if err != nil {
		logging.Warn(reconcilerSubsystem, "Stored %s list is unreadable, replacing it: %v", optionKey, err)
		return false
	}
	sort.Strings(stored)
	sorted := append([]string(nil), canonical...)
	sort.Strings(sorted)
	return strings.Join(stored, "\x00") == strings.Join(sorted, "\x00")
}

// buildDeletions computes actual minus desired. Every active unwanted item
// carries fallback candidates from the keep set; the executor tracks the
// remaining active count and refuses whichever deletion would drop it to
// zero unless a fallback activates first.
func (b *Builder) buildDeletions(kind pkgmgr.Kind, items []desiredItem, actual []pkgmgr.InstalledExtension) []Deletion {
	keep := make(map[string]bool, len(items))
	var fallbacks []string
	for _, item := range items {
		keep[item.id] = true
		fallbacks = append(fallbacks, item.id)
	}

	var deletions []Deletion
	for _, ext := range actual {
		if keep[ext.Name] {
			continue
		}
		d := Deletion{Name: ext.Name}
		if ext.Active() {
			d.Active = true
			d.Fallbacks = fallbacks
		}
		deletions = append(deletions, d)
	}
	return deletions
}
