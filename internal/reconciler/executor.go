package reconciler

import (
	"context"
	"fmt"
	"sort"

	"siteinit/internal/pkgmgr"
	"siteinit/internal/sitemap"
	"siteinit/pkg/codec"
	"siteinit/pkg/logging"
)

// Executor applies a built plan. Item-level failures are logged and counted
// but never abort the pass; only an unusable collaborator (the mapping
// flush, ultimately the datastore) is an error.
type Executor struct {
	mgr     Manager
	opts    OptionStore
	codec   codec.Codec
	siteMap *sitemap.Store
}

// NewExecutor returns an Executor over the same collaborators the plan was
// built against.
func NewExecutor(mgr Manager, opts OptionStore, c codec.Codec, siteMap *sitemap.Store) *Executor {
	return &Executor{mgr: mgr, opts: opts, codec: c, siteMap: siteMap}
}

// Apply executes the plan: installs, then activation deltas, then the
// authoritative auto-update writes, then deletions, then sub-sites.
func (e *Executor) Apply(ctx context.Context, plan *Plan) (Result, error) {
	result := Result{}

	for _, kp := range plan.Kinds {
		e.applyInstalls(ctx, kp, &result)
		e.applyActivations(ctx, kp, &result)
		e.applyAutoUpdate(ctx, kp, &result)
		e.applyDeletions(ctx, kp, &result)
	}

	if err := e.applySites(ctx, plan.Sites, &result); err != nil {
		return result, err
	}
	return result, nil
}

// applyInstalls issues one batch call per group. A failed batch degrades to
// individual installs so a single bad package cannot block the rest.
func (e *Executor) applyInstalls(ctx context.Context, kp KindPlan, result *Result) {
	for _, g := range kp.Installs {
		if len(g.Specs) == 1 {
			e.installOne(ctx, kp.Kind, g.Specs[0], g.Names[0], g.Version, result)
			continue
		}
		err := e.mgr.InstallExtensions(ctx, kp.Kind, g.Specs, g.Version)
		if err == nil {
			result.Installed += len(g.Specs)
			continue
		}
		logging.Warn(reconcilerSubsystem, "Batch %s install failed, falling back to individual installs: %v", kp.Kind, err)
		for i, spec := range g.Specs {
			e.installOne(ctx, kp.Kind, spec, g.Names[i], g.Version, result)
		}
	}
}

func (e *Executor) installOne(ctx context.Context, kind pkgmgr.Kind, spec, name, version string, result *Result) {
	if err := e.mgr.InstallExtensions(ctx, kind, []string{spec}, version); err != nil {
		logging.Error(reconcilerSubsystem, err, "Installing %s %q failed", kind, name)
		result.FailedItems = append(result.FailedItems, fmt.Sprintf("%s:%s", kind, name))
		return
	}
	result.Installed++
}

func (e *Executor) applyActivations(ctx context.Context, kp KindPlan, result *Result) {
	for _, a := range kp.Activations {
		var err error
		if a.Deactivate {
			err = e.mgr.Deactivate(ctx, kp.Kind, a.Name, a.NetworkWide, a.SiteURL)
		} else {
			err = e.mgr.Activate(ctx, kp.Kind, a.Name, a.NetworkWide, a.SiteURL)
		}
		if err != nil {
			logging.Error(reconcilerSubsystem, err, "Activation change for %s %q failed", kp.Kind, a.Name)
			result.FailedItems = append(result.FailedItems, fmt.Sprintf("%s:%s", kp.Kind, a.Name))
			continue
		}
		if a.Deactivate {
			result.Deactivated++
		} else {
			result.Activated++
		}
	}
}

// applyAutoUpdate resolves each listed item to the canonical identifier the
// store expects and writes the full replacement list in one operation.
func (e *Executor) applyAutoUpdate(ctx context.Context, kp KindPlan, result *Result) {
	if kp.AutoUpdate == nil {
		return
	}
	canonical := make([]string, 0, len(kp.AutoUpdate.Names))
	for _, name := range kp.AutoUpdate.Names {
		entry, err := e.mgr.EntryPoint(kp.Kind, name)
		if err != nil {
			logging.Warn(reconcilerSubsystem, "Cannot resolve auto-update entry for %s %q, leaving it out: %v", kp.Kind, name, err)
			result.FailedItems = append(result.FailedItems, fmt.Sprintf("%s:%s", kp.Kind, name))
			continue
		}
		canonical = append(canonical, entry)
	}
	sort.Strings(canonical)

	encoded, err := e.codec.EncodeStringList(canonical)
	if err != nil {
		logging.Error(reconcilerSubsystem, err, "Encoding %s failed", kp.AutoUpdate.OptionKey)
		return
	}
	if err := e.opts.SetOption(ctx, kp.AutoUpdate.OptionKey, string(encoded)); err != nil {
		logging.Error(reconcilerSubsystem, err, "Writing %s failed", kp.AutoUpdate.OptionKey)
		return
	}
	logging.Info(reconcilerSubsystem, "Replaced %s with %d entries", kp.AutoUpdate.OptionKey, len(canonical))
}

// applyDeletions removes unwanted items one at a time, tracking how many
// active items the kind still has. A deletion that would leave zero active
// items is refused unless a fallback from the keep set activates first; the
// refusal affects only that item.
func (e *Executor) applyDeletions(ctx context.Context, kp KindPlan, result *Result) {
	remainingActive := kp.ActiveCount
	for _, d := range kp.Deletions {
		if d.Active && remainingActive <= 1 {
			if !e.activateFallback(ctx, kp.Kind, d) {
				logging.Warn(reconcilerSubsystem, "Refusing to delete %s %q: it is the last active one and no fallback could be activated", kp.Kind, d.Name)
				result.SkippedDeletions = append(result.SkippedDeletions, fmt.Sprintf("%s:%s", kp.Kind, d.Name))
				continue
			}
			remainingActive++
		}
		if err := e.mgr.DeleteExtension(ctx, kp.Kind, d.Name); err != nil {
			logging.Error(reconcilerSubsystem, err, "Deleting %s %q failed", kp.Kind, d.Name)
			result.FailedItems = append(result.FailedItems, fmt.Sprintf("%s:%s", kp.Kind, d.Name))
			continue
		}
		result.Deleted++
		if d.Active {
			remainingActive--
		}
	}
}

func (e *Executor) activateFallback(ctx context.Context, kind pkgmgr.Kind, d Deletion) bool {
	for _, fb := range d.Fallbacks {
		if err := e.mgr.Activate(ctx, kind, fb, false, ""); err != nil {
			logging.Debug(reconcilerSubsystem, "Fallback %s %q did not activate: %v", kind, fb, err)
			continue
		}
		logging.Info(reconcilerSubsystem, "Activated fallback %s %q before deleting %q", kind, fb, d.Name)
		return true
	}
	return false
}
