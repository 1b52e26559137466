package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"siteinit/internal/config"
	"siteinit/internal/lock"
	"siteinit/internal/pkgmgr"
	"siteinit/internal/reconciler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRows is an in-memory lock.RowStore.
type memRows struct {
	mu   sync.Mutex
	rows map[string]string
}

func newMemRows() *memRows { return &memRows{rows: map[string]string{}} }

func (m *memRows) Get(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[name], nil
}

func (m *memRows) CompareAndSwap(ctx context.Context, name, expect, next string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.rows[name]
	if expect == "" {
		if ok {
			return false, nil
		}
		m.rows[name] = next
		return true, nil
	}
	if !ok || current != expect {
		return false, nil
	}
	m.rows[name] = next
	return true, nil
}

func (m *memRows) DeleteIfPrefix(ctx context.Context, name, prefix string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.rows[name]
	if !ok || !strings.HasPrefix(current, prefix) {
		return false, nil
	}
	delete(m.rows, name)
	return true, nil
}

// harness collects the fakes behind one ordered event log.
type harness struct {
	mu  sync.Mutex
	log []string

	installed    bool
	multisite    bool
	recErr       error
	installsSeen int
}

func (h *harness) record(event string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.log = append(h.log, event)
}

func (h *harness) events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.log...)
}

func (h *harness) isInstalled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.installed
}

func (h *harness) isMultisite() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.multisite
}

// fake collaborators

type fakeDS struct{ h *harness }

func (f fakeDS) WaitReady(ctx context.Context) error {
	f.h.record("wait-ready")
	return nil
}

func (f fakeDS) EnsureBootstrapTable(ctx context.Context) error {
	f.h.record("ensure-table")
	return nil
}

type fakeCore struct{ h *harness }

func (f fakeCore) IsInstalled(ctx context.Context) bool { return f.h.isInstalled() }
func (f fakeCore) IsMultisite(ctx context.Context) bool { return f.h.isMultisite() }

func (f fakeCore) Install(ctx context.Context, opts pkgmgr.InstallOpts) error {
	f.h.record("install")
	f.h.mu.Lock()
	f.h.installed = true
	f.h.installsSeen++
	f.h.mu.Unlock()
	return nil
}

func (f fakeCore) ConvertToMultisite(ctx context.Context) error {
	f.h.record("convert")
	f.h.mu.Lock()
	f.h.multisite = true
	f.h.mu.Unlock()
	return nil
}

type fakeRec struct{ h *harness }

func (f fakeRec) Reconcile(ctx context.Context) (reconciler.Result, error) {
	f.h.record("reconcile")
	return reconciler.Result{}, f.h.recErr
}

type fakeGuard struct{ h *harness }

func (f fakeGuard) Acquire(ctx context.Context) error {
	f.h.record("guard-acquire")
	return nil
}

func (f fakeGuard) Release() { f.h.record("guard-release") }

func testLocking() config.LockingConfig {
	return config.LockingConfig{
		PollInterval:      5 * time.Millisecond,
		MaxWait:           200 * time.Millisecond,
		HeartbeatInterval: 10 * time.Millisecond,
		StaleThreshold:    100 * time.Millisecond,
	}
}

func newTestOrchestrator(h *harness, cfg config.Config, identity string, bootstrap, configure *memRows) *Orchestrator {
	return New(Options{
		Config:         cfg,
		Datastore:      fakeDS{h},
		Core:           fakeCore{h},
		Reconciler:     fakeRec{h},
		Guard:          fakeGuard{h},
		BootstrapLocks: bootstrap,
		ConfigLocks:    configure,
		Identity:       identity,
		SyncCoreFiles: func(ctx context.Context) error {
			h.record("sync-core")
			return nil
		},
	})
}

func baseConfig() config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Locking = testLocking()
	cfg.Setup.AdminPassword = "secret"
	return cfg
}

func TestRunSequencing(t *testing.T) {
	h := &harness{}
	cfg := baseConfig()
	cfg.Desired.Multisite = true

	bootstrap, configure := newMemRows(), newMemRows()
	orch := newTestOrchestrator(h, cfg, "replica-0", bootstrap, configure)
	require.NoError(t, orch.Run(context.Background()))

	assert.Equal(t, []string{
		"guard-acquire", "sync-core", "guard-release",
		"wait-ready", "ensure-table",
		"install", "convert",
		"reconcile",
	}, h.events())

	assert.Empty(t, bootstrap.rows, "bootstrap lock released")
	assert.Empty(t, configure.rows, "configuration lock released")
}

func TestRunSkipsBootstrapWhenAlreadySetUp(t *testing.T) {
	h := &harness{installed: true, multisite: true}
	cfg := baseConfig()
	cfg.Desired.Multisite = true

	bootstrap, configure := newMemRows(), newMemRows()
	orch := newTestOrchestrator(h, cfg, "replica-0", bootstrap, configure)
	require.NoError(t, orch.Run(context.Background()))

	assert.NotContains(t, h.events(), "install")
	assert.NotContains(t, h.events(), "convert")
	assert.Contains(t, h.events(), "reconcile")
	assert.Empty(t, bootstrap.rows, "bootstrap lock never claimed or cleanly released")
}

func TestRunInstallsOnlyOnceAcrossReplicas(t *testing.T) {
	// All replicas share the harness (the installation) and the lock rows.
	h := &harness{}
	cfg := baseConfig()
	bootstrap, configure := newMemRows(), newMemRows()

	done := make(chan error, 3)
	for i := 0; i < 3; i++ {
		identity := fmt.Sprintf("replica-%d", i)
		go func() {
			orch := newTestOrchestrator(h, cfg, identity, bootstrap, configure)
			done <- orch.Run(context.Background())
		}()
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, <-done)
	}
	assert.Equal(t, 1, h.installsSeen, "the post-lock re-check must stop late winners from reinstalling")
}

func TestRunFailsWithoutAdminPassword(t *testing.T) {
	h := &harness{}
	cfg := baseConfig()
	cfg.Setup.AdminPassword = ""

	orch := newTestOrchestrator(h, cfg, "replica-0", newMemRows(), newMemRows())
	err := orch.Run(context.Background())
	require.Error(t, err)
	assert.NotContains(t, h.events(), "install")
}

func TestRunFailsOnLockTimeout(t *testing.T) {
	h := &harness{installed: true}
	cfg := baseConfig()

	configure := newMemRows()
	// A live peer holds the configuration lock and never lets go.
	peer := lock.Token{Identity: "peer", ObservedAt: time.Now().Add(time.Hour)}
	configure.rows[ConfigureLockName] = peer.String()

	orch := newTestOrchestrator(h, cfg, "replica-0", newMemRows(), configure)
	err := orch.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, lock.ErrAcquireTimeout)
	assert.NotContains(t, h.events(), "reconcile")
}

func TestRunReleasesConfigLockOnReconcileError(t *testing.T) {
	h := &harness{installed: true, recErr: errors.New("reconcile exploded")}
	cfg := baseConfig()

	configure := newMemRows()
	orch := newTestOrchestrator(h, cfg, "replica-0", newMemRows(), configure)
	err := orch.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, configure.rows, "configuration lock must be released on the error path")
}
