// Package memory provides mutex-guarded in-memory implementations of every
// store contract in the identity core. It backs the test suites and lets the
// API run without PostgreSQL in development; the check-and-set guarantees
// match the pg implementations.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"salesauto.org/internal/audit"
	"salesauto.org/internal/identity"
	"salesauto.org/internal/rbac"
	"salesauto.org/internal/token"
)

// Store bundles the in-memory stores.
type Store struct {
	Accounts      *Accounts
	RefreshTokens *RefreshTokens
	Blacklist     *Blacklist
	Roles         *Roles
	Audit         *Audit
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		Accounts:      &Accounts{accounts: map[string]*identity.Account{}},
		RefreshTokens: &RefreshTokens{tokens: map[string]*token.RefreshToken{}},
		Blacklist:     &Blacklist{entries: map[string]*token.BlacklistEntry{}},
		Roles: &Roles{
			roles:       map[string]*rbac.Role{},
			perms:       map[string][]rbac.Permission{},
			assignments: map[string]map[string]struct{}{},
		},
		Audit: &Audit{},
	}
}

// Accounts implements identity.Store.
type Accounts struct {
	mu       sync.Mutex
	accounts map[string]*identity.Account
}

var _ identity.Store = (*Accounts)(nil)

func (s *Accounts) Create(ctx context.Context, a *identity.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *Accounts) Find(ctx context.Context, id string) (*identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Accounts) FindByIdentifier(ctx context.Context, identifier string) (*identity.Account, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if strings.ToLower(a.Username) == identifier || strings.ToLower(a.Email) == identifier {
			cp := *a
			return &cp, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (s *Accounts) UpdatePassword(ctx context.Context, accountID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return identity.ErrNotFound
	}
	a.PasswordHash = passwordHash
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Accounts) RecordFailure(ctx context.Context, accountID string, threshold int, lockUntil time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return false, identity.ErrNotFound
	}
	a.FailedLogins++
	if a.FailedLogins >= threshold {
		until := lockUntil
		a.LockedUntil = &until
		return true, nil
	}
	return false, nil
}

func (s *Accounts) ResetFailures(ctx context.Context, accountID string, lastLogin time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return identity.ErrNotFound
	}
	a.FailedLogins = 0
	a.LockedUntil = nil
	ll := lastLogin
	a.LastLoginAt = &ll
	return nil
}

func (s *Accounts) SetResetToken(ctx context.Context, accountID, tokenHash string, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return identity.ErrNotFound
	}
	a.ResetTokenHash = tokenHash
	exp := expiry
	a.ResetTokenExpiry = &exp
	return nil
}

func (s *Accounts) FindByResetToken(ctx context.Context, tokenHash string) (*identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ResetTokenHash != "" && a.ResetTokenHash == tokenHash {
			cp := *a
			return &cp, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (s *Accounts) ClearResetToken(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return identity.ErrNotFound
	}
	a.ResetTokenHash = ""
	a.ResetTokenExpiry = nil
	return nil
}

// RefreshTokens implements token.RefreshStore.
type RefreshTokens struct {
	mu     sync.Mutex
	tokens map[string]*token.RefreshToken
}

var _ token.RefreshStore = (*RefreshTokens)(nil)

func (s *RefreshTokens) Create(ctx context.Context, t *token.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tokens[t.ID] = &cp
	return nil
}

func (s *RefreshTokens) Find(ctx context.Context, id string) (*token.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return nil, token.ErrInvalid
	}
	cp := *t
	return &cp, nil
}

func (s *RefreshTokens) Revoke(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	return true, nil
}

func (s *RefreshTokens) RevokeAllForAccount(ctx context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.tokens {
		if t.AccountID == accountID && !t.Revoked {
			t.Revoked = true
			n++
		}
	}
	return n, nil
}

func (s *RefreshTokens) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.tokens {
		if t.ExpiresAt.Before(before) {
			delete(s.tokens, id)
			n++
		}
	}
	return n, nil
}

// Blacklist implements token.BlacklistStore.
type Blacklist struct {
	mu      sync.Mutex
	entries map[string]*token.BlacklistEntry
}

var _ token.BlacklistStore = (*Blacklist)(nil)

func (s *Blacklist) Add(ctx context.Context, e *token.BlacklistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.entries[e.JTI] = &cp
	return nil
}

func (s *Blacklist) Contains(ctx context.Context, jti string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[jti]
	return ok && e.ExpiresAt.After(now), nil
}

func (s *Blacklist) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for jti, e := range s.entries {
		if e.ExpiresAt.Before(before) {
			delete(s.entries, jti)
			n++
		}
	}
	return n, nil
}

// Roles implements rbac.Store.
type Roles struct {
	mu          sync.Mutex
	roles       map[string]*rbac.Role
	perms       map[string][]rbac.Permission
	assignments map[string]map[string]struct{}
}

var _ rbac.Store = (*Roles)(nil)

func (s *Roles) CreateRole(ctx context.Context, role *rbac.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *role
	s.roles[role.ID] = &cp
	return nil
}

func (s *Roles) FindRoleByName(ctx context.Context, name string) (*rbac.Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if strings.ToLower(r.Name) == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, rbac.ErrNotFound
}

func (s *Roles) SetRolePermissions(ctx context.Context, roleID string, perms []rbac.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[rbac.Permission]struct{}{}
	var out []rbac.Permission
	for _, p := range perms {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	s.perms[roleID] = out
	return nil
}

func (s *Roles) PermissionsForRole(ctx context.Context, roleID string) ([]rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]rbac.Permission(nil), s.perms[roleID]...), nil
}

func (s *Roles) AssignRole(ctx context.Context, accountID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return rbac.ErrNotFound
	}
	if s.assignments[accountID] == nil {
		s.assignments[accountID] = map[string]struct{}{}
	}
	s.assignments[accountID][roleID] = struct{}{}
	return nil
}

func (s *Roles) RemoveRole(ctx context.Context, accountID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assignments[accountID], roleID)
	return nil
}

func (s *Roles) RolesForAccount(ctx context.Context, accountID string) ([]rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []rbac.Role
	for roleID := range s.assignments[accountID] {
		if r, ok := s.roles[roleID]; ok {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Audit implements audit.Store.
type Audit struct {
	mu     sync.Mutex
	events []audit.Event
}

var _ audit.Store = (*Audit)(nil)

func (s *Audit) Append(ctx context.Context, e *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *e)
	return nil
}

func (s *Audit) ListByResource(ctx context.Context, resourceType, resourceID string, p audit.Page) ([]audit.Event, error) {
	return s.list(p, func(e audit.Event) bool {
		return e.ResourceType == resourceType && e.ResourceID == resourceID
	})
}

func (s *Audit) ListByActor(ctx context.Context, actorID string, p audit.Page) ([]audit.Event, error) {
	return s.list(p, func(e audit.Event) bool { return e.ActorID == actorID })
}

func (s *Audit) ListByAction(ctx context.Context, action string, p audit.Page) ([]audit.Event, error) {
	return s.list(p, func(e audit.Event) bool { return e.Action == action })
}

func (s *Audit) ListByTimeRange(ctx context.Context, from, to time.Time, p audit.Page) ([]audit.Event, error) {
	return s.list(p, func(e audit.Event) bool {
		return !e.CreatedAt.Before(from) && e.CreatedAt.Before(to)
	})
}

func (s *Audit) list(p audit.Page, match func(audit.Event) bool) ([]audit.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var filtered []audit.Event
	for _, e := range s.events {
		if match(e) {
			filtered = append(filtered, e)
		}
	}
	// Newest first; event ids are ULIDs so id order is creation order.
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].ID > filtered[j].ID })
	if p.Offset >= len(filtered) {
		return nil, nil
	}
	filtered = filtered[p.Offset:]
	if len(filtered) > p.Limit {
		filtered = filtered[:p.Limit]
	}
	return filtered, nil
}
