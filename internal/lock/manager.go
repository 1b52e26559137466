package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"siteinit/internal/config"
	"siteinit/pkg/logging"
)

const lockSubsystem = "Lock"

// ErrAcquireTimeout is returned when a lock could not be claimed within the
// configured maximum wait. A holder alive that long is presumed wedged and
// needs operator attention; waiting longer would not help.
var ErrAcquireTimeout = errors.New("lock acquisition timed out")

// RowStore is the single row-per-lock storage the protocol runs on. Two
// implementations exist: the dedicated pre-schema bootstrap table and the
// general configuration key/value table. The protocol is identical on both.
type RowStore interface {
	// Get returns the stored value for name, "" when absent.
	Get(ctx context.Context, name string) (string, error)
	// CompareAndSwap atomically replaces the value for name with next if it
	// currently equals expect; expect == "" means insert-if-absent.
	CompareAndSwap(ctx context.Context, name, expect, next string) (bool, error)
	// DeleteIfPrefix deletes the row for name only while its value still
	// starts with prefix.
	DeleteIfPrefix(ctx context.Context, name, prefix string) (bool, error)
}

// Manager runs the heartbeat-based mutual exclusion protocol over a RowStore.
type Manager struct {
	rows     RowStore
	cfg      config.LockingConfig
	identity string

	// now is injectable so staleness-boundary tests control the clock.
	now func() time.Time
}

// NewManager returns a Manager claiming locks as identity.
func NewManager(rows RowStore, cfg config.LockingConfig, identity string) *Manager {
	return &Manager{
		rows:     rows,
		cfg:      cfg,
		identity: identity,
		now:      time.Now,
	}
}

// Held represents a currently held lock. It owns the heartbeat goroutine;
// Release joins that goroutine before touching the row, so no heartbeat
// write can race the deletion.
type Held struct {
	m     *Manager
	name  string
	token string

	cancel context.CancelFunc
	done   chan struct{}

	releaseOnce sync.Once
}

// Token returns the value this holder wrote when it won the lock.
func (h *Held) Token() string { return h.token }

// Acquire claims name, retrying every poll interval until the configured
// maximum wait elapses. It returns ErrAcquireTimeout after that; the caller
// treats it as fatal.
//
// A single attempt claims the row when it is absent, already carries this
// manager's identity (restart fast path), or carries a timestamp older than
// the staleness threshold (crash takeover). The claim is a compare-and-swap
// against the exact value just read, followed by a verifying re-read: success
// means the stored value equals the token written in this attempt and
// nothing else.
func (m *Manager) Acquire(ctx context.Context, name string) (*Held, error) {
	deadline := m.now().Add(m.cfg.MaxWait)
	attempt := 0
	for {
		attempt++
		token, err := m.tryClaim(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("claiming lock %q: %w", name, err)
		}
		if token != "" {
			logging.Info(lockSubsystem, "Acquired lock %q as %s (attempt %d)", name, m.identity, attempt)
			return m.startHeartbeat(name, token), nil
		}

		if !m.now().Add(m.cfg.PollInterval).Before(deadline) {
			return nil, fmt.Errorf("lock %q still held after %s: %w", name, m.cfg.MaxWait, ErrAcquireTimeout)
		}
		logging.Debug(lockSubsystem, "Lock %q is held, retrying in %s (attempt %d)", name, m.cfg.PollInterval, attempt)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquiring lock %q: %w", name, ctx.Err())
		case <-time.After(m.cfg.PollInterval):
		}
	}
}

// tryClaim runs one acquisition attempt. It returns the written token on
// success and "" when the lock is legitimately held by someone else.
func (m *Manager) tryClaim(ctx context.Context, name string) (string, error) {
	current, err := m.rows.Get(ctx, name)
	if err != nil {
		return "", err
	}

	if current != "" && !m.claimable(name, current) {
		return "", nil
	}

	token := Token{Identity: m.identity, ObservedAt: m.now()}.String()
	swapped, err := m.rows.CompareAndSwap(ctx, name, current, token)
	if err != nil {
		return "", err
	}
	if !swapped {
		return "", nil
	}

	// The swap can only have written our token, but the stored value is the
	// single source of truth; verify against it rather than trusting the
	// round trip.
	stored, err := m.rows.Get(ctx, name)
	if err != nil {
		return "", err
	}
	if stored != token {
		return "", nil
	}
	return token, nil
}

func (m *Manager) claimable(name, current string) bool {
	tok, err := ParseToken(current)
	if err != nil {
		logging.Warn(lockSubsystem, "Lock %q holds unparseable value, treating as stale: %v", name, err)
		return true
	}
	if tok.Identity == m.identity {
		// Our own row from a previous run of this same instance.
		return true
	}
	age := m.now().Sub(tok.ObservedAt)
	if age >= m.cfg.StaleThreshold {
		logging.Warn(lockSubsystem, "Lock %q held by %s went stale %s ago, taking over", name, tok.Identity, age-m.cfg.StaleThreshold)
		return true
	}
	return false
}

func (m *Manager) startHeartbeat(name, token string) *Held {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Held{
		m:      m,
		name:   name,
		token:  token,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.heartbeatLoop(ctx)
	return h
}

// heartbeatLoop periodically rewrites the observed-at half of the stored
// value. Every write is conditioned on the exact value written last, which
// still carries this holder's identity: a heartbeat can therefore never
// resurrect a lock another instance has already taken over after a false
// stale judgment.
func (h *Held) heartbeatLoop(ctx context.Context) {
	defer close(h.done)

	last := h.token
	ticker := time.NewTicker(h.m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		next := Token{Identity: h.m.identity, ObservedAt: h.m.now()}.String()
		swapped, err := h.m.rows.CompareAndSwap(ctx, h.name, last, next)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Warn(lockSubsystem, "Heartbeat write for lock %q failed: %v", h.name, err)
			continue
		}
		if !swapped {
			logging.Warn(lockSubsystem, "Lock %q no longer carries our value; stopping heartbeat", h.name)
			return
		}
		last = next
	}
}

// Release stops the heartbeat and deletes the lock row. The heartbeat
// goroutine is joined, not merely signalled, before the row is touched.
// Failures are logged and swallowed: staleness-based takeover guarantees
// forward progress for everyone else regardless.
func (h *Held) Release(ctx context.Context) {
	h.releaseOnce.Do(func() {
		h.cancel()
		<-h.done

		deleted, err := h.m.rows.DeleteIfPrefix(ctx, h.name, h.m.identity+tokenSep)
		if err != nil {
			logging.Warn(lockSubsystem, "Releasing lock %q failed: %v", h.name, err)
			return
		}
		if !deleted {
			logging.Warn(lockSubsystem, "Lock %q was no longer ours at release time", h.name)
			return
		}
		logging.Info(lockSubsystem, "Released lock %q", h.name)
	})
}
