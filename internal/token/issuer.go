// Package token covers the three token surfaces of the identity core: signed
// access tokens, the durable refresh-token ledger with single-use rotation,
// and the blacklist for access tokens revoked before natural expiry.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalid = errors.New("token: invalid")
	ErrExpired = errors.New("token: expired")
	// ErrReused marks a rotated refresh token presented again. Callers
	// surface it as a generic invalid-token failure; the distinction exists
	// for auditing, since reuse is the replay signal.
	ErrReused = errors.New("token: already rotated")
)

const defaultAccessTTL = 15 * time.Minute

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	jwt.RegisteredClaims
}

// Issuer mints and verifies signed access tokens. Tokens are stateless and
// self-verifying; the server keeps no positive record of them.
type Issuer struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
	now       func() time.Time
}

// IssuerOption configures Issuer.
type IssuerOption func(*Issuer)

// WithIssuerName sets the iss claim.
func WithIssuerName(name string) IssuerOption {
	return func(i *Issuer) {
		i.issuer = strings.TrimSpace(name)
	}
}

// WithAccessTTL sets the access token lifetime.
func WithAccessTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.accessTTL = ttl
		}
	}
}

// WithIssuerClock overrides the time source (useful for tests).
func WithIssuerClock(fn func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewIssuer constructs an Issuer signing with the given HS256 secret.
func NewIssuer(secret []byte, opts ...IssuerOption) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("token: signing secret is required")
	}
	i := &Issuer{
		secret:    secret,
		accessTTL: defaultAccessTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// AccessTTL returns the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

// IssueAccessToken signs an access token for the account with claims
// {sub, iat, exp, jti}.
func (i *Issuer) IssueAccessToken(accountID string) (string, *AccessClaims, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", nil, errors.New("token: accountID is required")
	}

	now := i.now().UTC()
	claims := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Verify checks signature and time claims and returns the claims on success.
func (i *Issuer) Verify(raw string) (*AccessClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalid
	}
	parsed, err := jwt.ParseWithClaims(raw, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalid
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return i.now() }))
	if err != nil {
		return nil, ErrInvalid
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if i.issuer != "" && claims.Issuer != i.issuer {
		return nil, ErrInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.ID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

// ExtractClaims decodes claims without validating signature or expiry. The
// blacklist uses it to recover jti and expiry from tokens being revoked,
// which must work even for tokens that are already expired.
func ExtractClaims(raw string) (*AccessClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalid
	}
	var claims AccessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return nil, ErrInvalid
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalid
	}
	return &claims, nil
}
