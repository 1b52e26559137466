package reconciler

import (
	"context"
	"fmt"

	"siteinit/internal/config"
	"siteinit/internal/sitemap"
	"siteinit/pkg/codec"
	"siteinit/pkg/logging"
)

// Engine runs one full declarative reconciliation pass: load the site
// mapping, build the plan, execute it.
type Engine struct {
	mgr     Manager
	opts    OptionStore
	codec   codec.Codec
	desired config.DesiredState
}

// NewEngine returns an Engine converging actual state toward desired.
func NewEngine(mgr Manager, opts OptionStore, c codec.Codec, desired config.DesiredState) *Engine {
	return &Engine{mgr: mgr, opts: opts, codec: c, desired: desired}
}

// Plan computes the pass's plan without applying it.
func (e *Engine) Plan(ctx context.Context) (*Plan, error) {
	siteMap, err := sitemap.Load(ctx, e.opts, e.codec)
	if err != nil {
		return nil, err
	}
	return NewBuilder(e.mgr, e.opts, e.codec, e.desired, siteMap).Build(ctx)
}

// Reconcile builds and applies the plan.
func (e *Engine) Reconcile(ctx context.Context) (Result, error) {
	siteMap, err := sitemap.Load(ctx, e.opts, e.codec)
	if err != nil {
		return Result{}, err
	}
	plan, err := NewBuilder(e.mgr, e.opts, e.codec, e.desired, siteMap).Build(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("building reconciliation plan: %w", err)
	}
	if plan.Empty() {
		logging.Info(reconcilerSubsystem, "Actual state matches desired state; nothing to do")
		return Result{}, nil
	}

	result, err := NewExecutor(e.mgr, e.opts, e.codec, siteMap).Apply(ctx, plan)
	if err != nil {
		return result, fmt.Errorf("applying reconciliation plan: %w", err)
	}
	logging.Info(reconcilerSubsystem,
		"Reconciliation done: %d installed, %d activated, %d deactivated, %d deleted, %d sites created, %d sites migrated, %d item failures, %d refused deletions",
		result.Installed, result.Activated, result.Deactivated, result.Deleted,
		result.SitesCreated, result.SitesMigrated, len(result.FailedItems), len(result.SkippedDeletions))
	return result, nil
}
