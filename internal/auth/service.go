// Package auth orchestrates the identity core: credential authentication
// with lockout, token issuance and rotation, revocation, password lifecycle,
// and authorization checks, all recorded in the audit trail.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"salesauto.org/internal/audit"
	"salesauto.org/internal/identity"
	"salesauto.org/internal/obs"
	"salesauto.org/internal/password"
	"salesauto.org/internal/rbac"
	"salesauto.org/internal/token"
)

const defaultResetTTL = time.Hour

// TokenPair is the result of login and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64
}

// Config wires the service's collaborators. All fields except Clock and
// ResetTTL are required.
type Config struct {
	Accounts  identity.Store
	Guard     *identity.Guard
	Hasher    *password.Hasher
	Issuer    *token.Issuer
	Ledger    *token.Ledger
	Blacklist *token.Blacklist
	RBAC      *rbac.Service
	Trail     *audit.Trail

	// ResetTTL bounds the password-reset token validity window.
	ResetTTL time.Duration
	Clock    func() time.Time
}

// Service implements the session-trust operations exposed to the API layer.
type Service struct {
	accounts  identity.Store
	guard     *identity.Guard
	hasher    *password.Hasher
	issuer    *token.Issuer
	ledger    *token.Ledger
	blacklist *token.Blacklist
	rbac      *rbac.Service
	trail     *audit.Trail
	resetTTL  time.Duration
	now       func() time.Time
}

// NewService validates the wiring and constructs a Service.
func NewService(cfg Config) (*Service, error) {
	switch {
	case cfg.Accounts == nil:
		return nil, errors.New("auth: account store is required")
	case cfg.Guard == nil:
		return nil, errors.New("auth: account guard is required")
	case cfg.Hasher == nil:
		return nil, errors.New("auth: password hasher is required")
	case cfg.Issuer == nil:
		return nil, errors.New("auth: token issuer is required")
	case cfg.Ledger == nil:
		return nil, errors.New("auth: refresh ledger is required")
	case cfg.Blacklist == nil:
		return nil, errors.New("auth: blacklist is required")
	case cfg.RBAC == nil:
		return nil, errors.New("auth: rbac service is required")
	case cfg.Trail == nil:
		return nil, errors.New("auth: audit trail is required")
	}
	s := &Service{
		accounts:  cfg.Accounts,
		guard:     cfg.Guard,
		hasher:    cfg.Hasher,
		issuer:    cfg.Issuer,
		ledger:    cfg.Ledger,
		blacklist: cfg.Blacklist,
		rbac:      cfg.RBAC,
		trail:     cfg.Trail,
		resetTTL:  cfg.ResetTTL,
		now:       cfg.Clock,
	}
	if s.resetTTL <= 0 {
		s.resetTTL = defaultResetTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Login authenticates an identifier/password pair and issues a token pair.
// Unknown accounts and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, identifier, pw string, client audit.ClientContext) (*TokenPair, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || pw == "" {
		obs.LoginAttempts.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCredentials
	}

	acct, err := s.accounts.FindByIdentifier(ctx, identifier)
	if err != nil {
		obs.LoginAttempts.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCredentials
	}

	// Locked accounts short-circuit before any hash comparison.
	if err := s.guard.Ensure(acct); err != nil {
		obs.LoginAttempts.WithLabelValues("locked").Inc()
		s.trail.TryRecord(ctx, audit.Event{
			ActorID:      acct.ID,
			Action:       "login_locked",
			ResourceType: "account",
			ResourceID:   acct.ID,
			Description:  "login rejected while account locked",
			IP:           client.IP,
			UserAgent:    client.UserAgent,
		})
		return nil, ErrAccountLocked
	}

	ok, err := s.hasher.Verify(ctx, pw, acct.PasswordHash)
	if err != nil || !ok {
		locked, recErr := s.guard.RecordFailure(ctx, acct.ID)
		if recErr != nil {
			obs.LogRequest(map[string]any{"level": "error", "msg": "record login failure", "error": recErr.Error()})
		}
		action := "login_failed"
		if locked {
			action = "account_locked"
			obs.AccountLockouts.Inc()
		}
		obs.LoginAttempts.WithLabelValues("failed").Inc()
		s.trail.TryRecord(ctx, audit.Event{
			ActorID:      acct.ID,
			Action:       action,
			ResourceType: "account",
			ResourceID:   acct.ID,
			Description:  "failed login attempt",
			IP:           client.IP,
			UserAgent:    client.UserAgent,
		})
		return nil, ErrInvalidCredentials
	}

	if !acct.Active {
		obs.LoginAttempts.WithLabelValues("inactive").Inc()
		s.trail.TryRecord(ctx, audit.Event{
			ActorID:      acct.ID,
			Action:       "login_inactive",
			ResourceType: "account",
			ResourceID:   acct.ID,
			Description:  "login rejected for inactive account",
			IP:           client.IP,
			UserAgent:    client.UserAgent,
		})
		return nil, ErrAccountInactive
	}

	if err := s.guard.RecordSuccess(ctx, acct.ID); err != nil {
		return nil, err
	}
	pair, err := s.issuePair(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	obs.LoginAttempts.WithLabelValues("success").Inc()
	s.trail.TryRecord(ctx, audit.Event{
		ActorID:      acct.ID,
		Action:       "login",
		ResourceType: "account",
		ResourceID:   acct.ID,
		Description:  "successful login",
		IP:           client.IP,
		UserAgent:    client.UserAgent,
	})
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair, atomically rotating the
// presented token. Reuse of an already-rotated token always fails.
func (s *Service) Refresh(ctx context.Context, refreshToken string, client audit.ClientContext) (*TokenPair, error) {
	rec, err := s.ledger.Redeem(ctx, refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrReused):
			obs.RefreshReuse.Inc()
			s.trail.TryRecord(ctx, audit.Event{
				Action:       "refresh_reuse",
				ResourceType: "token",
				Description:  "rotated refresh token presented again",
				IP:           client.IP,
				UserAgent:    client.UserAgent,
			})
			return nil, ErrInvalidToken
		case errors.Is(err, token.ErrExpired):
			return nil, ErrExpiredRefreshToken
		case errors.Is(err, token.ErrInvalid):
			return nil, ErrInvalidToken
		default:
			return nil, err
		}
	}

	acct, err := s.accounts.Find(ctx, rec.AccountID)
	if err != nil || !acct.Active {
		// The presented token was consumed by Redeem; nothing further to
		// revoke for this chain link.
		return nil, ErrAccountInactive
	}

	pair, err := s.issuePair(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	s.trail.TryRecord(ctx, audit.Event{
		ActorID:      acct.ID,
		Action:       "token_refreshed",
		ResourceType: "token",
		Description:  "refresh token rotated",
		IP:           client.IP,
		UserAgent:    client.UserAgent,
	})
	return pair, nil
}

func (s *Service) issuePair(ctx context.Context, accountID string) (*TokenPair, error) {
	access, _, err := s.issuer.IssueAccessToken(accountID)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.ledger.Mint(ctx, accountID)
	if err != nil {
		return nil, err
	}
	obs.TokensIssued.WithLabelValues(token.KindAccess).Inc()
	obs.TokensIssued.WithLabelValues(token.KindRefresh).Inc()
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.issuer.AccessTTL() / time.Second),
	}, nil
}

// Logout blacklists the presented access token and, when given, revokes the
// refresh token. Fails with ErrInvalidToken only for undecodable input.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string, client audit.ClientContext) error {
	if err := s.blacklist.RevokeAccessToken(ctx, accessToken); err != nil {
		if errors.Is(err, token.ErrInvalid) {
			return ErrInvalidToken
		}
		return err
	}
	if refreshToken != "" {
		if _, err := s.ledger.Revoke(ctx, refreshToken); err != nil {
			return err
		}
	}
	actorID := ""
	if claims, err := token.ExtractClaims(accessToken); err == nil {
		actorID = claims.Subject
	}
	s.trail.TryRecord(ctx, audit.Event{
		ActorID:      actorID,
		Action:       "logout",
		ResourceType: "token",
		Description:  "access token revoked",
		IP:           client.IP,
		UserAgent:    client.UserAgent,
	})
	return nil
}

// LogoutAll revokes every live refresh token for the account. Access tokens
// already in the wild stay valid until natural expiry unless separately
// revoked.
func (s *Service) LogoutAll(ctx context.Context, accountID string, client audit.ClientContext) error {
	n, err := s.ledger.RevokeAll(ctx, accountID)
	if err != nil {
		return err
	}
	s.trail.TryRecord(ctx, audit.Event{
		ActorID:      accountID,
		Action:       "all_tokens_revoked",
		ResourceType: "token",
		Description:  "all refresh tokens revoked",
		IP:           client.IP,
		UserAgent:    client.UserAgent,
		NewValues:    map[string]any{"revoked": n},
	})
	return nil
}

// ChangePassword verifies the current password, enforces policy on the new
// one, rehashes, and revokes all refresh tokens for the account.
func (s *Service) ChangePassword(ctx context.Context, accountID, current, next string, client audit.ClientContext) error {
	acct, err := s.accounts.Find(ctx, accountID)
	if err != nil {
		return ErrInvalidCredentials
	}
	ok, err := s.hasher.Verify(ctx, current, acct.PasswordHash)
	if err != nil || !ok {
		s.trail.TryRecord(ctx, audit.Event{
			ActorID:      acct.ID,
			Action:       "password_change_failed",
			ResourceType: "account",
			ResourceID:   acct.ID,
			Description:  "current password mismatch",
			IP:           client.IP,
			UserAgent:    client.UserAgent,
		})
		return ErrInvalidCredentials
	}
	if err := s.setPassword(ctx, acct, next, client, "password_changed"); err != nil {
		return err
	}
	return nil
}

// RequestPasswordReset issues a reset token for the account behind the
// identifier. The returned token is empty for unknown identifiers; callers
// must respond identically either way so account existence never leaks.
func (s *Service) RequestPasswordReset(ctx context.Context, identifier string, client audit.ClientContext) (string, error) {
	acct, err := s.accounts.FindByIdentifier(ctx, strings.TrimSpace(identifier))
	if err != nil {
		return "", nil
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	resetToken := base64.RawURLEncoding.EncodeToString(raw)
	expiry := s.now().Add(s.resetTTL)
	if err := s.accounts.SetResetToken(ctx, acct.ID, hashResetToken(resetToken), expiry); err != nil {
		return "", err
	}
	s.trail.TryRecord(ctx, audit.Event{
		ActorID:      acct.ID,
		Action:       "password_reset_requested",
		ResourceType: "account",
		ResourceID:   acct.ID,
		IP:           client.IP,
		UserAgent:    client.UserAgent,
	})
	return resetToken, nil
}

// ResetPassword consumes a reset token and sets the new password, revoking
// all refresh tokens for the account.
func (s *Service) ResetPassword(ctx context.Context, resetToken, next string, client audit.ClientContext) error {
	acct, err := s.accounts.FindByResetToken(ctx, hashResetToken(resetToken))
	if err != nil {
		return ErrInvalidToken
	}
	if acct.ResetTokenExpiry == nil || s.now().After(*acct.ResetTokenExpiry) {
		_ = s.accounts.ClearResetToken(ctx, acct.ID)
		return ErrInvalidToken
	}
	if err := s.setPassword(ctx, acct, next, client, "password_reset_completed"); err != nil {
		return err
	}
	return s.accounts.ClearResetToken(ctx, acct.ID)
}

func (s *Service) setPassword(ctx context.Context, acct *identity.Account, next string, client audit.ClientContext, action string) error {
	if ok, violations := password.Validate(next); !ok {
		return &WeakPasswordError{Violations: violations}
	}
	hash, err := s.hasher.Hash(ctx, next)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, acct.ID, hash); err != nil {
		return err
	}
	// Existing sessions die with their refresh tokens. Already-issued
	// access tokens remain valid until natural expiry; see Authenticate.
	if _, err := s.ledger.RevokeAll(ctx, acct.ID); err != nil {
		return err
	}
	s.trail.TryRecord(ctx, audit.Event{
		ActorID:      acct.ID,
		Action:       action,
		ResourceType: "account",
		ResourceID:   acct.ID,
		IP:           client.IP,
		UserAgent:    client.UserAgent,
	})
	return nil
}

// Authenticate verifies an access token (signature, expiry), consults the
// blacklist, and resolves the account's principal.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (rbac.Principal, error) {
	claims, err := s.issuer.Verify(accessToken)
	if err != nil {
		return rbac.Principal{}, ErrInvalidToken
	}
	revoked, err := s.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return rbac.Principal{}, err
	}
	if revoked {
		obs.BlacklistHits.Inc()
		return rbac.Principal{}, ErrTokenRevoked
	}
	acct, err := s.accounts.Find(ctx, claims.Subject)
	if err != nil {
		return rbac.Principal{}, ErrInvalidToken
	}
	if !acct.Active {
		return rbac.Principal{}, ErrAccountInactive
	}
	return s.rbac.Principal(ctx, acct.ID)
}

// Authorize evaluates a role/permission check and records denials. All
// denials surface as the single opaque ErrPermissionDenied.
func (s *Service) Authorize(ctx context.Context, principal rbac.Principal, resource rbac.Resource, action rbac.Action, client audit.ClientContext) error {
	if principal.Allows(resource, action) {
		return nil
	}
	s.trail.TryRecord(ctx, audit.Event{
		ActorID:      principal.AccountID,
		Action:       "permission_denied",
		ResourceType: string(resource),
		Description:  "denied " + string(action) + " on " + string(resource),
		IP:           client.IP,
		UserAgent:    client.UserAgent,
	})
	return ErrPermissionDenied
}

// AuthorizeObject evaluates an ownership-aware check and records denials.
func (s *Service) AuthorizeObject(ctx context.Context, principal rbac.Principal, obj any, action rbac.Action, client audit.ClientContext) error {
	if principal.AllowsObject(obj, action) {
		return nil
	}
	resource := ""
	if r, ok := obj.(rbac.Resourced); ok {
		resource = string(r.ResourceType())
	}
	s.trail.TryRecord(ctx, audit.Event{
		ActorID:      principal.AccountID,
		Action:       "permission_denied",
		ResourceType: resource,
		Description:  "denied " + string(action) + " on object",
		IP:           client.IP,
		UserAgent:    client.UserAgent,
	})
	return ErrPermissionDenied
}

// PurgeExpired sweeps dead refresh tokens and blacklist entries. Safe to run
// concurrently with normal traffic.
func (s *Service) PurgeExpired(ctx context.Context) (refresh, blacklist int64, err error) {
	refresh, err = s.ledger.PurgeExpired(ctx)
	if err != nil {
		return 0, 0, err
	}
	blacklist, err = s.blacklist.PurgeExpired(ctx)
	if err != nil {
		return refresh, 0, err
	}
	return refresh, blacklist, nil
}

func hashResetToken(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}
