// Package app wires configuration, the datastore, the management-tool client
// and the reconciler together behind the commands.
package app

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"siteinit/internal/config"
	"siteinit/internal/fsguard"
	"siteinit/internal/lock"
	"siteinit/internal/orchestrator"
	"siteinit/internal/pkgmgr"
	"siteinit/internal/reconciler"
	"siteinit/internal/retrying"
	"siteinit/internal/store"
	"siteinit/pkg/codec"
	"siteinit/pkg/logging"
)

const appSubsystem = "App"

// App holds the wired collaborators for one run.
type App struct {
	cfg config.Config
	st  *store.Store
}

// Load reads and validates configuration and initializes logging.
func Load(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logging.Init(logging.ParseLevel(cfg.LogLevel), os.Stderr)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &App{cfg: cfg}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

func (a *App) openStore() (*store.Store, error) {
	if a.st != nil {
		return a.st, nil
	}
	st, err := store.Open(a.cfg.Database)
	if err != nil {
		return nil, err
	}
	a.st = st
	return st, nil
}

// Close releases held resources.
func (a *App) Close() {
	if a.st != nil {
		if err := a.st.Close(); err != nil {
			logging.Warn(appSubsystem, "Closing datastore: %v", err)
		}
	}
}

func (a *App) client() *pkgmgr.Client {
	return pkgmgr.NewClient(a.cfg.CLI, retrying.Default())
}

func (a *App) engine(st *store.Store, client *pkgmgr.Client) *reconciler.Engine {
	return reconciler.NewEngine(client, st.Options(), codec.PHPSerial{}, a.cfg.Desired)
}

// Run executes the full init sequence.
func (a *App) Run(ctx context.Context) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	client := a.client()
	identity := lock.DefaultIdentity()

	var guard orchestrator.CopyGuard
	var syncCoreFiles func(ctx context.Context) error
	if len(a.cfg.CopyGuard.SyncCommand) > 0 && a.cfg.CopyGuard.Dir != "" {
		guard = fsguard.New(a.cfg.CopyGuard, identity)
		syncCoreFiles = a.coreFileSync()
	}

	orch := orchestrator.New(orchestrator.Options{
		Config:         a.cfg,
		Datastore:      datastoreAdapter{st: st},
		Core:           client,
		Reconciler:     a.engine(st, client),
		Guard:          guard,
		BootstrapLocks: st.BootstrapLocks(),
		ConfigLocks:    st.Options(),
		Identity:       identity,
		SyncCoreFiles:  syncCoreFiles,
	})
	return orch.Run(ctx)
}

// Plan computes and renders the reconciliation plan without applying it.
// The dry run takes no locks and mutates nothing.
func (a *App) Plan(ctx context.Context) (*reconciler.Plan, error) {
	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	if err := st.WaitReady(ctx); err != nil {
		return nil, err
	}
	return a.engine(st, a.client()).Plan(ctx)
}

// coreFileSync returns the hook running the configured external copy
// command. The copy itself is a collaborator; only its exclusion guard
// belongs to this job.
func (a *App) coreFileSync() func(ctx context.Context) error {
	cmd := a.cfg.CopyGuard.SyncCommand
	return func(ctx context.Context) error {
		logging.Info(appSubsystem, "Syncing core files via %v", cmd)
		c := exec.CommandContext(ctx, cmd[0], cmd[1:]...)
		out, err := c.CombinedOutput()
		if err != nil {
			return fmt.Errorf("core file sync %v: %w (output: %s)", cmd, err, out)
		}
		return nil
	}
}

// datastoreAdapter narrows the store to what the orchestrator needs.
type datastoreAdapter struct {
	st *store.Store
}

func (d datastoreAdapter) WaitReady(ctx context.Context) error {
	return d.st.WaitReady(ctx)
}

func (d datastoreAdapter) EnsureBootstrapTable(ctx context.Context) error {
	return d.st.BootstrapLocks().EnsureTable(ctx)
}
