package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"salesauto.org/internal/ids"
	"salesauto.org/internal/rbac"
)

// RoleStore implements rbac.Store.
type RoleStore struct {
	db *sql.DB
}

var _ rbac.Store = (*RoleStore)(nil)

func (s *RoleStore) CreateRole(ctx context.Context, r *rbac.Role) error {
	if r.ID == "" {
		r.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into roles(id, name, description) values($1, lower($2), $3)`,
		r.ID, r.Name, r.Description)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("rbac: role exists: %w", err)
	}
	return err
}

func (s *RoleStore) FindRoleByName(ctx context.Context, name string) (*rbac.Role, error) {
	var r rbac.Role
	err := s.db.QueryRowContext(ctx,
		`select id, name, description, created_at, updated_at from roles where name=lower($1)`,
		name).Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SetRolePermissions replaces the role's permission set in one transaction.
func (s *RoleStore) SetRolePermissions(ctx context.Context, roleID string, perms []rbac.Permission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`delete from role_permissions where role_id=$1`, roleID); err != nil {
		return err
	}
	for _, p := range perms {
		if _, err := tx.ExecContext(ctx,
			`insert into role_permissions(role_id, resource, action) values($1,$2,$3)
			 on conflict do nothing`,
			roleID, string(p.Resource), string(p.Action)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *RoleStore) PermissionsForRole(ctx context.Context, roleID string) ([]rbac.Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select resource, action from role_permissions where role_id=$1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []rbac.Permission
	for rows.Next() {
		var resource, action string
		if err := rows.Scan(&resource, &action); err != nil {
			return nil, err
		}
		perms = append(perms, rbac.Permission{
			Resource: rbac.Resource(resource),
			Action:   rbac.Action(action),
		})
	}
	return perms, rows.Err()
}

func (s *RoleStore) AssignRole(ctx context.Context, accountID, roleID string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into account_roles(account_id, role_id) values($1,$2)
		 on conflict do nothing`,
		accountID, roleID)
	return err
}

func (s *RoleStore) RemoveRole(ctx context.Context, accountID, roleID string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from account_roles where account_id=$1 and role_id=$2`,
		accountID, roleID)
	return err
}

func (s *RoleStore) RolesForAccount(ctx context.Context, accountID string) ([]rbac.Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`select r.id, r.name, r.description, r.created_at, r.updated_at
		 from roles r join account_roles ar on ar.role_id = r.id
		 where ar.account_id=$1
		 order by r.name`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []rbac.Role
	for rows.Next() {
		var r rbac.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}
