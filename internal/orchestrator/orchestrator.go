package orchestrator

import (
	"context"
	"fmt"

	"siteinit/internal/config"
	"siteinit/internal/lock"
	"siteinit/internal/pkgmgr"
	"siteinit/internal/reconciler"
	"siteinit/pkg/logging"
)

const orchSubsystem = "Orchestrator"

// Lock names. Small and fixed: the whole protocol assumes exactly these two.
const (
	// BootstrapLockName guards first-time setup, claimed on the dedicated
	// pre-schema table.
	BootstrapLockName = "siteinit_bootstrap"
	// ConfigureLockName guards reconciliation, claimed on the configuration
	// key/value store.
	ConfigureLockName = "siteinit_configure"
)

// CoreManager is the slice of the package-management client the orchestrator
// drives directly.
type CoreManager interface {
	IsInstalled(ctx context.Context) bool
	IsMultisite(ctx context.Context) bool
	Install(ctx context.Context, opts pkgmgr.InstallOpts) error
	ConvertToMultisite(ctx context.Context) error
}

// Reconciler runs one declarative convergence pass.
type Reconciler interface {
	Reconcile(ctx context.Context) (reconciler.Result, error)
}

// Datastore is the readiness and schema surface the orchestrator needs.
type Datastore interface {
	WaitReady(ctx context.Context) error
	EnsureBootstrapTable(ctx context.Context) error
}

// CopyGuard is the pre-datastore filesystem exclusion primitive.
type CopyGuard interface {
	Acquire(ctx context.Context) error
	Release()
}

// Orchestrator sequences a full run: core file sync under the copy guard,
// datastore readiness, first-time setup under the bootstrap lock, then
// reconciliation under the configuration lock. Every acquired lock is
// released on every normal and error exit path; an unmaskable kill is
// covered by the staleness protocol, not by handlers.
type Orchestrator struct {
	cfg   config.Config
	ds    Datastore
	core  CoreManager
	rec   Reconciler
	guard CopyGuard

	bootstrapLocks lock.RowStore
	configLocks    lock.RowStore
	identity       string

	// syncCoreFiles is the injected collaborator performing the application
	// core file copy onto the shared filesystem. Nil skips the step.
	syncCoreFiles func(ctx context.Context) error
}

// Options wires an Orchestrator.
type Options struct {
	Config         config.Config
	Datastore      Datastore
	Core           CoreManager
	Reconciler     Reconciler
	Guard          CopyGuard
	BootstrapLocks lock.RowStore
	ConfigLocks    lock.RowStore
	Identity       string
	SyncCoreFiles  func(ctx context.Context) error
}

// New returns an Orchestrator.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		cfg:            opts.Config,
		ds:             opts.Datastore,
		core:           opts.Core,
		rec:            opts.Reconciler,
		guard:          opts.Guard,
		bootstrapLocks: opts.BootstrapLocks,
		configLocks:    opts.ConfigLocks,
		identity:       opts.Identity,
		syncCoreFiles:  opts.SyncCoreFiles,
	}
}

// Run executes the whole sequence. Any returned error is fatal to the run.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.syncCoreFiles != nil {
		if err := o.runCoreFileSync(ctx); err != nil {
			return err
		}
	}

	if err := o.ds.WaitReady(ctx); err != nil {
		return err
	}
	if err := o.ds.EnsureBootstrapTable(ctx); err != nil {
		return err
	}

	if err := o.runBootstrap(ctx); err != nil {
		return err
	}
	return o.runReconcile(ctx)
}

func (o *Orchestrator) runCoreFileSync(ctx context.Context) error {
	if err := o.guard.Acquire(ctx); err != nil {
		return fmt.Errorf("acquiring copy guard: %w", err)
	}
	defer o.guard.Release()
	if err := o.syncCoreFiles(ctx); err != nil {
		return fmt.Errorf("syncing core files: %w", err)
	}
	return nil
}

// runBootstrap performs first-time setup and multisite conversion when
// needed. The check runs twice: once unlocked to avoid claiming the lock on
// every routine restart, once under the lock because another replica may
// have finished setup while we waited.
func (o *Orchestrator) runBootstrap(ctx context.Context) error {
	if !o.needsBootstrap(ctx) {
		logging.Info(orchSubsystem, "Installation already set up, skipping bootstrap")
		return nil
	}

	mgr := lock.NewManager(o.bootstrapLocks, o.cfg.Locking, o.identity)
	held, err := mgr.Acquire(ctx, BootstrapLockName)
	if err != nil {
		return fmt.Errorf("acquiring bootstrap lock: %w", err)
	}
	defer held.Release(ctx)

	if !o.core.IsInstalled(ctx) {
		if o.cfg.Setup.AdminPassword == "" {
			return fmt.Errorf("first-time setup needed but %s is not set", config.EnvAdminPassword)
		}
		logging.Info(orchSubsystem, "Running first-time setup as %s", o.identity)
		err := o.core.Install(ctx, pkgmgr.InstallOpts{
			URL:           o.cfg.CLI.URL,
			Title:         o.cfg.Setup.Title,
			AdminUser:     o.cfg.Setup.AdminUser,
			AdminPassword: o.cfg.Setup.AdminPassword,
			AdminEmail:    o.cfg.Setup.AdminEmail,
		})
		if err != nil {
			return err
		}
	}
	if o.cfg.Desired.Multisite && !o.core.IsMultisite(ctx) {
		logging.Info(orchSubsystem, "Converting installation to multisite")
		if err := o.core.ConvertToMultisite(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) needsBootstrap(ctx context.Context) bool {
	if !o.core.IsInstalled(ctx) {
		return true
	}
	return o.cfg.Desired.Multisite && !o.core.IsMultisite(ctx)
}

func (o *Orchestrator) runReconcile(ctx context.Context) error {
	mgr := lock.NewManager(o.configLocks, o.cfg.Locking, o.identity)
	held, err := mgr.Acquire(ctx, ConfigureLockName)
	if err != nil {
		return fmt.Errorf("acquiring configuration lock: %w", err)
	}
	defer held.Release(ctx)

	if _, err := o.rec.Reconcile(ctx); err != nil {
		return err
	}
	return nil
}
