package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"

	"salesauto.org/internal/ids"
)

const defaultRefreshTTL = 7 * 24 * time.Hour

// RefreshToken is the durable record of an issued refresh token. Only a
// hash of the secret half is stored; the full value exists client-side.
type RefreshToken struct {
	ID        string
	AccountID string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}

// RefreshStore persists refresh tokens. Revoke must be an atomic
// check-and-set on the revoked flag, reporting whether this call flipped it:
// that single guarantee is what makes rotation single-use under concurrency.
type RefreshStore interface {
	Create(ctx context.Context, t *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)
	Revoke(ctx context.Context, id string) (bool, error)
	RevokeAllForAccount(ctx context.Context, accountID string) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Ledger enforces the refresh-token rotation protocol.
type Ledger struct {
	store RefreshStore
	ttl   time.Duration
	now   func() time.Time
}

// LedgerOption configures Ledger.
type LedgerOption func(*Ledger)

// WithRefreshTTL sets the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) LedgerOption {
	return func(l *Ledger) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLedgerClock overrides the time source (useful for tests).
func WithLedgerClock(fn func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLedger constructs a Ledger over the store.
func NewLedger(store RefreshStore, opts ...LedgerOption) *Ledger {
	l := &Ledger{store: store, ttl: defaultRefreshTTL, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Mint generates an opaque token "<id>.<secret>", persists its record, and
// returns the raw value alongside the stored row.
func (l *Ledger) Mint(ctx context.Context, accountID string) (string, *RefreshToken, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)

	rec := &RefreshToken{
		ID:        ids.New(),
		AccountID: accountID,
		TokenHash: hashSecret(secret),
		ExpiresAt: l.now().Add(l.ttl),
		CreatedAt: l.now().UTC(),
	}
	if err := l.store.Create(ctx, rec); err != nil {
		return "", nil, err
	}
	return rec.ID + "." + secret, rec, nil
}

// Redeem validates and atomically consumes a presented refresh token. On
// success the returned record is already revoked and the caller mints the
// replacement. Failure modes: ErrInvalid for unknown values or hash
// mismatch, ErrReused when the token was already rotated, ErrExpired for a
// token past its lifetime (revoked on the way out, defense in depth). Two
// concurrent Redeem calls for the same value succeed at most once.
func (l *Ledger) Redeem(ctx context.Context, raw string) (*RefreshToken, error) {
	id, secret, err := splitToken(raw)
	if err != nil {
		return nil, ErrInvalid
	}
	rec, err := l.store.Find(ctx, id)
	if err != nil {
		return nil, ErrInvalid
	}
	if rec.Revoked {
		return nil, ErrReused
	}
	if !matchesHash(rec.TokenHash, secret) {
		// A forged secret for a live id burns the row.
		_, _ = l.store.Revoke(ctx, rec.ID)
		return nil, ErrInvalid
	}
	if l.now().After(rec.ExpiresAt) {
		_, _ = l.store.Revoke(ctx, rec.ID)
		return nil, ErrExpired
	}
	won, err := l.store.Revoke(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrReused
	}
	rec.Revoked = true
	return rec, nil
}

// Revoke marks a presented token revoked. Idempotent; returns how many rows
// were affected (0 or 1).
func (l *Ledger) Revoke(ctx context.Context, raw string) (int64, error) {
	id, _, err := splitToken(raw)
	if err != nil {
		return 0, nil
	}
	flipped, err := l.store.Revoke(ctx, id)
	if err != nil {
		return 0, err
	}
	if flipped {
		return 1, nil
	}
	return 0, nil
}

// RevokeAll revokes every live token for the account. Idempotent.
func (l *Ledger) RevokeAll(ctx context.Context, accountID string) (int64, error) {
	return l.store.RevokeAllForAccount(ctx, accountID)
}

// PurgeExpired deletes rows past expiry. Safe to run alongside normal
// traffic: it only touches rows no exchange can succeed on.
func (l *Ledger) PurgeExpired(ctx context.Context) (int64, error) {
	return l.store.DeleteExpired(ctx, l.now())
}

func splitToken(raw string) (id, secret string, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalid
	}
	return parts[0], parts[1], nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func matchesHash(expected, secret string) bool {
	actual := hashSecret(secret)
	if len(expected) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) == 1
}
