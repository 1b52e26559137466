package reconciler

import (
	"context"
	"fmt"
	"strings"

	"siteinit/internal/config"
	"siteinit/pkg/logging"
)

// siteSlug returns the externally visible slug for a desired site.
func siteSlug(site config.DesiredSite) string {
	if site.Path != "" {
		return strings.Trim(site.Path, "/")
	}
	return site.Name
}

// buildSites resolves each desired sub-site against the persisted mapping
// and the live site list. Identity resolution runs in three stages: the
// mapping is authoritative, the live slug covers sites that predate the
// mapping, and creation is the last resort. A declared rename migrates the
// mapping entry before the three stages run for that item; resolving first
// would let stage two create a duplicate under the old identity.
func (b *Builder) buildSites(ctx context.Context) (SitePlan, error) {
	plan := SitePlan{}

	live, err := b.mgr.ListSites(ctx)
	if err != nil {
		return plan, fmt.Errorf("observing actual site state: %w", err)
	}
	bySlug := make(map[string]int64, len(live))
	for _, s := range live {
		bySlug[strings.Trim(s.Path, "/")] = s.ID
	}

	// The plan is computed against a simulation of the mapping; the real
	// mapping is only mutated during execution.
	simulated := b.siteMap.Entries()

	desiredNames := map[string]bool{}
	for _, site := range b.desired.Sites {
		desiredNames[site.Name] = true
		slug := siteSlug(site)

		if site.PreviousName != "" {
			if id, ok := simulated[site.PreviousName]; ok {
				plan.Actions = append(plan.Actions, SiteAction{
					Op:           SiteOpMigrate,
					Name:         site.Name,
					PreviousName: site.PreviousName,
					ID:           id,
					Slug:         slug,
				})
				delete(simulated, site.PreviousName)
				simulated[site.Name] = id
			}
		}

		// Stage 1: the persisted mapping is authoritative.
		if _, ok := simulated[site.Name]; ok {
			continue
		}
		// Stage 2: a live site with the right slug predates the mapping.
		if id, ok := bySlug[slug]; ok {
			plan.Actions = append(plan.Actions, SiteAction{
				Op:   SiteOpAdopt,
				Name: site.Name,
				ID:   id,
				Slug: slug,
			})
			simulated[site.Name] = id
			continue
		}
		// Stage 3: nothing resolves; create.
		plan.Actions = append(plan.Actions, SiteAction{
			Op:    SiteOpCreate,
			Name:  site.Name,
			Slug:  slug,
			Title: site.Title,
		})
		simulated[site.Name] = -1
	}

	if b.desired.Prune {
		for name := range simulated {
			if !desiredNames[name] {
				plan.PruneEntries = append(plan.PruneEntries, name)
			}
		}
	}
	return plan, nil
}

// applySites executes the site actions against the real mapping and the
// package manager. Sub-site failures are item-level: logged, counted, and
// never fatal to the rest of the pass. The mutated mapping is flushed once.
func (e *Executor) applySites(ctx context.Context, plan SitePlan, result *Result) error {
	for _, action := range plan.Actions {
		switch action.Op {
		case SiteOpMigrate:
			if !e.siteMap.Migrate(action.PreviousName, action.Name) {
				logging.Warn(reconcilerSubsystem, "Site mapping for %q vanished before migration to %q", action.PreviousName, action.Name)
				continue
			}
			if err := e.mgr.UpdateSitePath(ctx, action.ID, action.Slug); err != nil {
				logging.Error(reconcilerSubsystem, err, "Updating path of site %d failed", action.ID)
				result.FailedItems = append(result.FailedItems, "site:"+action.Name)
				continue
			}
			result.SitesMigrated++

		case SiteOpAdopt:
			if err := e.siteMap.Set(action.Name, action.ID); err != nil {
				logging.Warn(reconcilerSubsystem, "Cannot adopt site %q: %v", action.Name, err)
				result.FailedItems = append(result.FailedItems, "site:"+action.Name)
			}

		case SiteOpCreate:
			id, err := e.mgr.CreateSite(ctx, action.Slug, action.Title)
			if err != nil {
				logging.Error(reconcilerSubsystem, err, "Creating site %q failed", action.Name)
				result.FailedItems = append(result.FailedItems, "site:"+action.Name)
				continue
			}
			if err := e.siteMap.Set(action.Name, id); err != nil {
				logging.Warn(reconcilerSubsystem, "Recording created site %q: %v", action.Name, err)
				continue
			}
			result.SitesCreated++
		}
	}

	for _, name := range plan.PruneEntries {
		e.siteMap.Remove(name)
		logging.Info(reconcilerSubsystem, "Pruned site mapping entry %q", name)
	}

	if err := e.siteMap.Flush(ctx); err != nil {
		return err
	}
	return nil
}
