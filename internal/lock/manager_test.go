package lock

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"siteinit/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// memRows is an in-memory RowStore with the same atomicity guarantees the
// datastore implementation provides.
type memRows struct {
	mu   sync.Mutex
	rows map[string]string
}

func newMemRows() *memRows {
	return &memRows{rows: map[string]string{}}
}

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

func fastConfig() config.LockingConfig {
	return config.LockingConfig{
		PollInterval:      5 * time.Millisecond,
		MaxWait:           2 * time.Second,
		HeartbeatInterval: 10 * time.Millisecond,
		StaleThreshold:    100 * time.Millisecond,
	}
}

func TestAcquireRelease(t *testing.T) {
	rows := newMemRows()
	m := NewManager(rows, fastConfig(), "alpha")

	held, err := m.Acquire(context.Background(), "test")
	require.NoError(t, err)
	require.NotNil(t, held)

	stored, _ := rows.Get(context.Background(), "test")
	assert.Equal(t, held.Token(), stored)

	held.Release(context.Background())
	stored, _ = rows.Get(context.Background(), "test")
	assert.Empty(t, stored, "release must delete the row")
}

func TestMutualExclusion(t *testing.T) {
	rows := newMemRows()

	var holders atomic.Int32
	var maxSeen atomic.Int32

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 8; i++ {
		identity := "replica-" + string(rune('a'+i))
		g.Go(func() error {
			m := NewManager(rows, fastConfig(), identity)
			held, err := m.Acquire(ctx, "shared")
			if err != nil {
				return err
			}
			n := holders.Add(1)
			for {
				prev := maxSeen.Load()
				if n <= prev || maxSeen.CompareAndSwap(prev, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			holders.Add(-1)
			held.Release(ctx)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), maxSeen.Load(), "more than one concurrent holder observed")
}

func TestStaleTakeoverOnlyAfterThreshold(t *testing.T) {
	rows := newMemRows()
	cfg := fastConfig()

	now := time.Now()
	clock := now

	crashed := NewManager(rows, cfg, "crashed")
	crashed.now = func() time.Time { return clock }
	held, err := crashed.Acquire(context.Background(), "test")
	require.NoError(t, err)
	// Simulate a crash: the heartbeat goroutine dies without releasing.
	held.cancel()
	<-held.done

	waiter := NewManager(rows, cfg, "waiter")
	waiter.now = func() time.Time { return clock }

	// Strictly before the threshold the lock must not be claimable.
	clock = now.Add(cfg.StaleThreshold - time.Millisecond)
	token, err := waiter.tryClaim(context.Background(), "test")
	require.NoError(t, err)
	assert.Empty(t, token, "takeover happened before the staleness threshold")

	// At the threshold it becomes claimable.
	clock = now.Add(cfg.StaleThreshold)
	token, err = waiter.tryClaim(context.Background(), "test")
	require.NoError(t, err)
	assert.NotEmpty(t, token, "takeover did not happen after the staleness threshold")
}

func TestReleaseThenAcquireByOtherIdentity(t *testing.T) {
	rows := newMemRows()
	cfg := fastConfig()

	first := NewManager(rows, cfg, "first")
	held, err := first.Acquire(context.Background(), "test")
	require.NoError(t, err)
	held.Release(context.Background())

	second := NewManager(rows, cfg, "second")
	start := time.Now()
	held2, err := second.Acquire(context.Background(), "test")
	require.NoError(t, err)
	defer held2.Release(context.Background())
	assert.Less(t, time.Since(start), cfg.StaleThreshold, "acquire after release must not wait for staleness")
}

func TestSameIdentityReacquiresImmediately(t *testing.T) {
	rows := newMemRows()
	cfg := fastConfig()

	m := NewManager(rows, cfg, "restarting")
	held, err := m.Acquire(context.Background(), "test")
	require.NoError(t, err)
	// Simulate a process crash and restart of the same instance: the row
	// stays behind, a fresh manager with the same identity comes up.
	held.cancel()
	<-held.done

	restarted := NewManager(rows, cfg, "restarting")
	start := time.Now()
	held2, err := restarted.Acquire(context.Background(), "test")
	require.NoError(t, err)
	defer held2.Release(context.Background())
	assert.Less(t, time.Since(start), cfg.StaleThreshold, "same-identity reacquire must bypass the staleness wait")
}

func TestAcquireTimesOut(t *testing.T) {
	rows := newMemRows()
	cfg := fastConfig()
	cfg.MaxWait = 30 * time.Millisecond

	holder := NewManager(rows, cfg, "holder")
	held, err := holder.Acquire(context.Background(), "test")
	require.NoError(t, err)
	defer held.Release(context.Background())

	waiter := NewManager(rows, cfg, "waiter")
	_, err = waiter.Acquire(context.Background(), "test")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAcquireTimeout)
}

func TestHeartbeatKeepsLockFresh(t *testing.T) {
	rows := newMemRows()
	cfg := fastConfig()

	holder := NewManager(rows, cfg, "holder")
	held, err := holder.Acquire(context.Background(), "test")
	require.NoError(t, err)
	defer held.Release(context.Background())

	// Wait well past the staleness threshold; the heartbeat must keep the
	// embedded timestamp fresh enough that a waiter cannot take over.
	time.Sleep(cfg.StaleThreshold + 50*time.Millisecond)

	waiter := NewManager(rows, cfg, "waiter")
	token, err := waiter.tryClaim(context.Background(), "test")
	require.NoError(t, err)
	assert.Empty(t, token, "a heartbeating lock was stolen")
}

func TestHeartbeatStopsAfterSteal(t *testing.T) {
	rows := newMemRows()
	cfg := fastConfig()

	holder := NewManager(rows, cfg, "holder")
	held, err := holder.Acquire(context.Background(), "test")
	require.NoError(t, err)

	// Simulate a takeover after a false stale judgment: overwrite the row
	// with a different identity's token.
	thief := Token{Identity: "thief", ObservedAt: time.Now()}.String()
	rows.mu.Lock()
	rows.rows["test"] = thief
	rows.mu.Unlock()

	// The next heartbeat must fail its condition and stop, never
	// resurrecting the stolen lock.
	select {
	case <-held.done:
	case <-time.After(time.Second):
		t.Fatal("heartbeat did not stop after the lock was stolen")
	}
	stored, _ := rows.Get(context.Background(), "test")
	assert.Equal(t, thief, stored)

	// Release must not delete the thief's row either.
	held.Release(context.Background())
	stored, _ = rows.Get(context.Background(), "test")
	assert.Equal(t, thief, stored)
}
