package identity

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("identity: account not found")
	ErrLocked   = errors.New("identity: account locked")
)

// Account represents an authenticatable principal. Accounts are provisioned
// externally; this core only mutates security state (password hash, lockout
// counters, reset tokens) and never deletes rows.
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Active       bool
	Verified     bool

	FailedLogins int
	LockedUntil  *time.Time
	LastLoginAt  *time.Time

	ResetTokenHash   string
	ResetTokenExpiry *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LockedAt reports whether the account is locked at the given instant. An
// elapsed lock window behaves as unlocked without any background transition.
func (a *Account) LockedAt(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// Store is the persistence boundary for accounts. RecordFailure must apply
// the increment-and-maybe-lock step atomically per account so concurrent
// failed attempts are not lost.
type Store interface {
	Create(ctx context.Context, a *Account) error
	Find(ctx context.Context, id string) (*Account, error)

	// FindByIdentifier resolves a username or email to an account.
	FindByIdentifier(ctx context.Context, identifier string) (*Account, error)

	UpdatePassword(ctx context.Context, accountID, passwordHash string) error

	// RecordFailure increments the failed-attempt counter and, when the new
	// count reaches threshold, sets the lock deadline. Reports whether this
	// call locked the account.
	RecordFailure(ctx context.Context, accountID string, threshold int, lockUntil time.Time) (bool, error)

	// ResetFailures zeroes the counter, clears the lock deadline, and stamps
	// the successful login time.
	ResetFailures(ctx context.Context, accountID string, lastLogin time.Time) error

	SetResetToken(ctx context.Context, accountID, tokenHash string, expiry time.Time) error
	FindByResetToken(ctx context.Context, tokenHash string) (*Account, error)
	ClearResetToken(ctx context.Context, accountID string) error
}
