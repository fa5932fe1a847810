package identity

import (
	"context"
	"time"
)

const (
	// DefaultLockThreshold is how many consecutive failures lock an account.
	DefaultLockThreshold = 5
	// DefaultLockWindow is how long a locked account rejects attempts.
	DefaultLockWindow = 30 * time.Minute
)

// Guard drives the lockout state machine around authentication attempts.
// It never compares passwords itself; callers check Ensure first so a locked
// account short-circuits before any hash computation.
type Guard struct {
	store     Store
	threshold int
	window    time.Duration
	now       func() time.Time
}

// GuardOption configures Guard.
type GuardOption func(*Guard)

// WithThreshold overrides the failure threshold.
func WithThreshold(n int) GuardOption {
	return func(g *Guard) {
		if n > 0 {
			g.threshold = n
		}
	}
}

// WithLockWindow overrides the lock duration.
func WithLockWindow(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.window = d
		}
	}
}

// WithGuardClock overrides the time source (useful for tests).
func WithGuardClock(fn func() time.Time) GuardOption {
	return func(g *Guard) {
		if fn != nil {
			g.now = fn
		}
	}
}

// NewGuard constructs a Guard over the account store.
func NewGuard(store Store, opts ...GuardOption) *Guard {
	g := &Guard{
		store:     store,
		threshold: DefaultLockThreshold,
		window:    DefaultLockWindow,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Ensure returns ErrLocked while the account's lock window is in effect.
func (g *Guard) Ensure(a *Account) error {
	if a.LockedAt(g.now()) {
		return ErrLocked
	}
	return nil
}

// RecordFailure registers a failed attempt and reports whether the account
// just transitioned to locked.
func (g *Guard) RecordFailure(ctx context.Context, accountID string) (bool, error) {
	lockUntil := g.now().Add(g.window)
	return g.store.RecordFailure(ctx, accountID, g.threshold, lockUntil)
}

// RecordSuccess resets the failure counter from any state.
func (g *Guard) RecordSuccess(ctx context.Context, accountID string) error {
	return g.store.ResetFailures(ctx, accountID, g.now())
}
