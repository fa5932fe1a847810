package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"salesauto.org/internal/token"
)

// RefreshTokenStore implements token.RefreshStore.
type RefreshTokenStore struct {
	db *sql.DB
}

var _ token.RefreshStore = (*RefreshTokenStore)(nil)

func (s *RefreshTokenStore) Create(ctx context.Context, t *token.RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, account_id, token_hash, expires_at, created_at, revoked)
		 values($1,$2,$3,$4,$5,$6)`,
		t.ID, t.AccountID, t.TokenHash, t.ExpiresAt, t.CreatedAt, t.Revoked)
	return err
}

func (s *RefreshTokenStore) Find(ctx context.Context, id string) (*token.RefreshToken, error) {
	var t token.RefreshToken
	err := s.db.QueryRowContext(ctx,
		`select id, account_id, token_hash, expires_at, created_at, revoked
		 from refresh_tokens where id=$1`, id).
		Scan(&t.ID, &t.AccountID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt, &t.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, token.ErrInvalid
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Revoke flips the revoked flag and reports whether this call won the flip.
// The where clause is the compare-and-set that makes rotation single-use.
func (s *RefreshTokenStore) Revoke(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where id=$1 and revoked=false`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RefreshTokenStore) RevokeAllForAccount(ctx context.Context, accountID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where account_id=$1 and revoked=false`, accountID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *RefreshTokenStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from refresh_tokens where expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// BlacklistStore implements token.BlacklistStore.
type BlacklistStore struct {
	db *sql.DB
}

var _ token.BlacklistStore = (*BlacklistStore)(nil)

func (s *BlacklistStore) Add(ctx context.Context, e *token.BlacklistEntry) error {
	_, err := s.db.ExecContext(ctx,
		`insert into token_blacklist(jti, kind, expires_at, created_at)
		 values($1,$2,$3,$4)
		 on conflict (jti) do nothing`,
		e.JTI, e.Kind, e.ExpiresAt, e.CreatedAt)
	return err
}

func (s *BlacklistStore) Contains(ctx context.Context, jti string, now time.Time) (bool, error) {
	var found bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from token_blacklist where jti=$1 and expires_at > $2)`,
		jti, now).Scan(&found)
	if err != nil {
		return false, err
	}
	return found, nil
}

func (s *BlacklistStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from token_blacklist where expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
