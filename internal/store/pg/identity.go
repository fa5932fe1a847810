package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"salesauto.org/internal/identity"
	"salesauto.org/internal/ids"
)

// AccountStore implements identity.Store.
type AccountStore struct {
	db *sql.DB
}

var _ identity.Store = (*AccountStore)(nil)

const accountColumns = `id, username, email, password_hash, active, verified,
	failed_logins, locked_until, last_login_at,
	reset_token_hash, reset_token_expiry, created_at, updated_at`

func (s *AccountStore) Create(ctx context.Context, a *identity.Account) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into accounts(id, username, email, password_hash, active, verified)
		 values($1,$2,$3,$4,$5,$6)`,
		a.ID, a.Username, a.Email, a.PasswordHash, a.Active, a.Verified,
	)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("identity: account exists: %w", err)
	}
	return err
}

func (s *AccountStore) Find(ctx context.Context, id string) (*identity.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id=$1`, id)
	return scanAccount(row)
}

func (s *AccountStore) FindByIdentifier(ctx context.Context, identifier string) (*identity.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts
		 where lower(username)=lower($1) or lower(email)=lower($1)`, identifier)
	return scanAccount(row)
}

func (s *AccountStore) UpdatePassword(ctx context.Context, accountID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set password_hash=$2, updated_at=now() where id=$1`,
		accountID, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// RecordFailure is a single atomic UPDATE: the increment and the conditional
// lock happen in one statement so concurrent failures are never lost.
func (s *AccountStore) RecordFailure(ctx context.Context, accountID string, threshold int, lockUntil time.Time) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`update accounts
		 set failed_logins = failed_logins + 1,
		     locked_until = case when failed_logins + 1 >= $2 then $3 else locked_until end,
		     updated_at = now()
		 where id=$1
		 returning failed_logins >= $2`,
		accountID, threshold, lockUntil)
	var locked bool
	if err := row.Scan(&locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, identity.ErrNotFound
		}
		return false, err
	}
	return locked, nil
}

func (s *AccountStore) ResetFailures(ctx context.Context, accountID string, lastLogin time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts
		 set failed_logins = 0, locked_until = null, last_login_at = $2, updated_at = now()
		 where id=$1`,
		accountID, lastLogin)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *AccountStore) SetResetToken(ctx context.Context, accountID, tokenHash string, expiry time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set reset_token_hash=$2, reset_token_expiry=$3, updated_at=now() where id=$1`,
		accountID, tokenHash, expiry)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *AccountStore) FindByResetToken(ctx context.Context, tokenHash string) (*identity.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where reset_token_hash=$1`, tokenHash)
	return scanAccount(row)
}

func (s *AccountStore) ClearResetToken(ctx context.Context, accountID string) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set reset_token_hash=null, reset_token_expiry=null, updated_at=now() where id=$1`,
		accountID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanAccount(row *sql.Row) (*identity.Account, error) {
	var (
		a           identity.Account
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
		resetHash   sql.NullString
		resetExpiry sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Active, &a.Verified,
		&a.FailedLogins, &lockedUntil, &lastLogin,
		&resetHash, &resetExpiry, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lockedUntil.Valid {
		a.LockedUntil = &lockedUntil.Time
	}
	if lastLogin.Valid {
		a.LastLoginAt = &lastLogin.Time
	}
	if resetHash.Valid {
		a.ResetTokenHash = resetHash.String
	}
	if resetExpiry.Valid {
		a.ResetTokenExpiry = &resetExpiry.Time
	}
	return &a, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}
