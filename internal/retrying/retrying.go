// Package retrying runs operations with a bounded number of attempts and
// linearly growing delays between them.
package retrying

import (
	"context"
	"time"

	"siteinit/pkg/logging"

	"github.com/cenkalti/backoff/v4"
)

const retrySubsystem = "Retry"

// Executor wraps flaky network-bound operations with bounded retries. The
// delay grows linearly with the attempt count: the package registry is rate
// limited, not down, in the common failure case, so doubling delays would
// just waste the attempt budget.
type Executor struct {
	maxAttempts uint64
	baseDelay   time.Duration
}

// New returns an Executor with the given attempt bound and base delay.
func New(maxAttempts int, baseDelay time.Duration) *Executor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Executor{maxAttempts: uint64(maxAttempts), baseDelay: baseDelay}
}

// Default returns the executor used for package-management calls.
func Default() *Executor {
	return New(5, 2*time.Second)
}

// Do runs op, retrying failures until the attempt budget is spent or ctx is
// cancelled. The error of the last attempt is returned. Wrap an error with
// backoff.Permanent inside op to stop retrying early.
func (e *Executor) Do(ctx context.Context, label string, op func() error) error {
	lin := &linearBackOff{base: e.baseDelay}
	policy := backoff.WithContext(backoff.WithMaxRetries(lin, e.maxAttempts-1), ctx)

	notify := func(err error, wait time.Duration) {
		logging.Warn(retrySubsystem, "%s failed, retrying in %s: %v", label, wait, err)
	}
	return backoff.RetryNotify(op, policy, notify)
}

// linearBackOff yields base, 2*base, 3*base, ...
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.attempt++
	return time.Duration(l.attempt) * l.base
}

func (l *linearBackOff) Reset() { l.attempt = 0 }
