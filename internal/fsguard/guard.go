// Package fsguard serializes access to a shared directory with a marker file,
// for the window before the datastore-backed locks are reachable.
package fsguard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"siteinit/internal/config"
	"siteinit/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

const guardSubsystem = "CopyGuard"

// lockFileName lives on the shared filesystem visible to every replica.
const lockFileName = ".siteinit-copy.lock"

// Guard is the coarse pre-datastore exclusion primitive: exclusivity by
// atomic create-if-absent, liveness by nothing better than a hard timeout.
// It runs before any datastore is assumed reachable, so there is no
// out-of-band liveness channel; after the timeout the loser force-removes
// the file and proceeds.
type Guard struct {
	dir      string
	timeout  time.Duration
	poll     time.Duration
	identity string
}

// New returns a Guard over the shared directory named in cfg.
func New(cfg config.CopyGuardConfig, identity string) *Guard {
	return &Guard{
		dir:      cfg.Dir,
		timeout:  cfg.Timeout,
		poll:     cfg.PollInterval,
		identity: identity,
	}
}

func (g *Guard) path() string {
	return filepath.Join(g.dir, lockFileName)
}

// Acquire obtains the guard. It blocks until the file could be created, the
// previous holder's file outlived the timeout and was force-removed, or ctx
// is cancelled.
func (g *Guard) Acquire(ctx context.Context) error {
	for {
		err := g.tryCreate()
		if err == nil {
			logging.Info(guardSubsystem, "Acquired copy guard at %s", g.path())
			return nil
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("creating copy guard: %w", err)
		}

		logging.Info(guardSubsystem, "Copy guard held by another replica, waiting up to %s", g.timeout)
		if err := g.waitForRemoval(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}
			// Timed out. Whoever left the file behind is presumed dead;
			// there is no heartbeat at this phase to prove otherwise.
			logging.Warn(guardSubsystem, "Copy guard at %s outlived %s; force-removing it", g.path(), g.timeout)
			if rmErr := os.Remove(g.path()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				return fmt.Errorf("force-removing stale copy guard: %w", rmErr)
			}
		}
	}
}

func (g *Guard) tryCreate() error {
	f, err := os.OpenFile(g.path(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	_, writeErr := fmt.Fprintf(f, "%s %s\n", g.identity, time.Now().UTC().Format(time.RFC3339))
	closeErr := f.Close()
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}

// waitForRemoval blocks until the guard file disappears. Removal events come
// from fsnotify where the filesystem delivers them; a poll ticker covers
// shared network filesystems that do not.
func (g *Guard) waitForRemoval(ctx context.Context) error {
	deadline := time.NewTimer(g.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()

	var events chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if err := watcher.Add(g.dir); err == nil {
			events = make(chan fsnotify.Event, 1)
			go forwardRemovals(watcher, g.path(), events)
		} else {
			logging.Debug(guardSubsystem, "Cannot watch %s, falling back to polling only: %v", g.dir, err)
		}
	} else {
		logging.Debug(guardSubsystem, "fsnotify unavailable, falling back to polling only: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for copy guard: %w", ctx.Err())
		case <-deadline.C:
			return errors.New("copy guard wait timed out")
		case <-events:
			return nil
		case <-ticker.C:
			if _, err := os.Stat(g.path()); errors.Is(err, os.ErrNotExist) {
				return nil
			}
		}
	}
}

func forwardRemovals(watcher *fsnotify.Watcher, path string, out chan<- fsnotify.Event) {
	for ev := range watcher.Events {
		if ev.Name == path && ev.Op.Has(fsnotify.Remove) {
			select {
			case out <- ev:
			default:
			}
			return
		}
	}
}

// Release removes the guard file. Errors are logged and swallowed: the
// timeout path cleans up after a crashed holder anyway.
func (g *Guard) Release() {
	if err := os.Remove(g.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn(guardSubsystem, "Removing copy guard failed: %v", err)
		return
	}
	logging.Info(guardSubsystem, "Released copy guard at %s", g.path())
}
