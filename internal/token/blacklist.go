package token

import (
	"context"
	"time"
)

// Kinds of blacklisted tokens.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// BlacklistEntry is the negative record of a token revoked before its
// natural expiry. ExpiresAt is copied from the token itself so the entry can
// be purged once the token would have died anyway.
type BlacklistEntry struct {
	JTI       string
	Kind      string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// BlacklistStore persists blacklist entries.
type BlacklistStore interface {
	Add(ctx context.Context, e *BlacklistEntry) error
	Contains(ctx context.Context, jti string, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Blacklist is the deny-list consulted before trusting a structurally valid
// access token.
type Blacklist struct {
	store BlacklistStore
	now   func() time.Time
}

// BlacklistOption configures Blacklist.
type BlacklistOption func(*Blacklist)

// WithBlacklistClock overrides the time source (useful for tests).
func WithBlacklistClock(fn func() time.Time) BlacklistOption {
	return func(b *Blacklist) {
		if fn != nil {
			b.now = fn
		}
	}
}

// NewBlacklist constructs a Blacklist over the store.
func NewBlacklist(store BlacklistStore, opts ...BlacklistOption) *Blacklist {
	b := &Blacklist{store: store, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RevokeAccessToken decodes the token's claims without signature
// verification (revocation must work for any decodable token) and records
// its jti with the token's own expiry. Undecodable input fails with
// ErrInvalid.
func (b *Blacklist) RevokeAccessToken(ctx context.Context, raw string) error {
	claims, err := ExtractClaims(raw)
	if err != nil {
		return err
	}
	return b.store.Add(ctx, &BlacklistEntry{
		JTI:       claims.ID,
		Kind:      KindAccess,
		ExpiresAt: claims.ExpiresAt.Time,
		CreatedAt: b.now().UTC(),
	})
}

// IsRevoked reports whether the jti appears among non-expired entries.
func (b *Blacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	return b.store.Contains(ctx, jti, b.now())
}

// PurgeExpired removes entries for tokens that have passed their natural
// expiry.
func (b *Blacklist) PurgeExpired(ctx context.Context) (int64, error) {
	return b.store.DeleteExpired(ctx, b.now())
}
