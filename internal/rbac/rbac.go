// Package rbac resolves role, permission, and ownership state into allow/deny
// decisions. Decisions are pure functions over a snapshotted Principal: no
// persistence writes, safe to evaluate on every request.
package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("rbac: not found")

// Resource identifies a protected resource type.
type Resource string

// Action identifies an operation on a resource.
type Action string

const (
	ResourceUser        Resource = "user"
	ResourceContact     Resource = "contact"
	ResourceLead        Resource = "lead"
	ResourceOpportunity Resource = "opportunity"
	ResourceCampaign    Resource = "campaign"
	ResourceReport      Resource = "report"
	ResourceSetting     Resource = "setting"
)

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionExport  Action = "export"
	ActionImport  Action = "import"
	ActionAssign  Action = "assign"
	ActionConvert Action = "convert"
)

// Built-in role names with special meaning to the engine.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
)

// Permission identity is the (resource, action) pair.
type Permission struct {
	Resource Resource
	Action   Action
}

// Key renders the canonical "resource:action" form used in storage.
func (p Permission) Key() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// ParseKey parses the canonical "resource:action" form.
func ParseKey(key string) (Permission, error) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Permission{}, fmt.Errorf("rbac: malformed permission key %q", key)
	}
	return Permission{Resource: Resource(parts[0]), Action: Action(parts[1])}, nil
}

// Role groups permissions under a name.
type Role struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store is the persistence boundary for the role/permission catalog.
// A role holds at most one row per permission key.
type Store interface {
	CreateRole(ctx context.Context, role *Role) error
	FindRoleByName(ctx context.Context, name string) (*Role, error)
	SetRolePermissions(ctx context.Context, roleID string, perms []Permission) error
	PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error)
	AssignRole(ctx context.Context, accountID, roleID string) error
	RemoveRole(ctx context.Context, accountID, roleID string) error
	RolesForAccount(ctx context.Context, accountID string) ([]Role, error)
}

// Principal is an account's authorization state snapshotted into id-keyed
// sets. It deliberately carries no back-references to live entities.
type Principal struct {
	AccountID   string
	roles       map[string]struct{}
	permissions map[Permission]struct{}
}

// NewPrincipal builds a Principal from resolved roles and permissions.
func NewPrincipal(accountID string, roles []Role, perms []Permission) Principal {
	rs := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		rs[strings.ToLower(strings.TrimSpace(r.Name))] = struct{}{}
	}
	ps := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		ps[p] = struct{}{}
	}
	return Principal{AccountID: accountID, roles: rs, permissions: ps}
}

// HasRole reports whether the principal holds the named role.
func (p Principal) HasRole(name string) bool {
	_, ok := p.roles[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Allows implements the role/permission check: the admin role grants
// everything; otherwise the (resource, action) pair must appear in some held
// role's permission set.
func (p Principal) Allows(resource Resource, action Action) bool {
	if p.HasRole(RoleAdmin) {
		return true
	}
	_, ok := p.permissions[Permission{Resource: resource, Action: action}]
	return ok
}

// Owned is implemented by objects with an owning account.
type Owned interface {
	OwnerAccountID() string
}

// Authored is implemented by objects that track their creator.
type Authored interface {
	CreatedByAccountID() string
}

// Protected is implemented by objects that resist deletion by managers.
type Protected interface {
	Protected() bool
}

// Resourced declares an object's resource type for the permission fallback.
type Resourced interface {
	ResourceType() Resource
}

// AllowsObject implements the ownership-aware check: admin always passes;
// the owner or creator of the object passes; a manager passes except for
// DELETE on protected objects; anything else falls back to Allows using the
// object's declared resource type.
func (p Principal) AllowsObject(obj any, action Action) bool {
	if p.HasRole(RoleAdmin) {
		return true
	}
	if o, ok := obj.(Owned); ok && o.OwnerAccountID() != "" && o.OwnerAccountID() == p.AccountID {
		return true
	}
	if a, ok := obj.(Authored); ok && a.CreatedByAccountID() != "" && a.CreatedByAccountID() == p.AccountID {
		return true
	}
	if p.HasRole(RoleManager) {
		if action == ActionDelete {
			if g, ok := obj.(Protected); ok && g.Protected() {
				return false
			}
		}
		return true
	}
	if r, ok := obj.(Resourced); ok {
		return p.Allows(r.ResourceType(), action)
	}
	return false
}

// Service loads principals from the catalog.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("rbac: store is required")
	}
	return &Service{store: store}, nil
}

// Principal resolves the account's roles and the union of their permission
// sets into a snapshot.
func (s *Service) Principal(ctx context.Context, accountID string) (Principal, error) {
	roles, err := s.store.RolesForAccount(ctx, accountID)
	if err != nil {
		return Principal{}, err
	}
	seen := make(map[Permission]struct{})
	var perms []Permission
	for _, role := range roles {
		list, err := s.store.PermissionsForRole(ctx, role.ID)
		if err != nil {
			return Principal{}, err
		}
		for _, p := range list {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			perms = append(perms, p)
		}
	}
	return NewPrincipal(accountID, roles, perms), nil
}

// AssignRole grants the named role to an account.
func (s *Service) AssignRole(ctx context.Context, accountID, roleName string) error {
	role, err := s.store.FindRoleByName(ctx, roleName)
	if err != nil {
		return err
	}
	return s.store.AssignRole(ctx, accountID, role.ID)
}

// RemoveRole revokes the named role from an account.
func (s *Service) RemoveRole(ctx context.Context, accountID, roleName string) error {
	role, err := s.store.FindRoleByName(ctx, roleName)
	if err != nil {
		return err
	}
	return s.store.RemoveRole(ctx, accountID, role.ID)
}
