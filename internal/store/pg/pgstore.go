// Package pg implements the identity core's store contracts on PostgreSQL
// through database/sql and the pgx stdlib driver. The expected schema is
// documented in schema.sql at the repository root.
package pg

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store owns the connection pool and hands out the per-concern stores.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL and tunes the pool.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing pool (used by tests with sqlmock).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the pool for readiness probes.
func (s *Store) DB() *sql.DB { return s.db }

// Accounts returns the identity store.
func (s *Store) Accounts() *AccountStore { return &AccountStore{db: s.db} }

// RefreshTokens returns the refresh token store.
func (s *Store) RefreshTokens() *RefreshTokenStore { return &RefreshTokenStore{db: s.db} }

// Blacklist returns the blacklist store.
func (s *Store) Blacklist() *BlacklistStore { return &BlacklistStore{db: s.db} }

// Roles returns the rbac store.
func (s *Store) Roles() *RoleStore { return &RoleStore{db: s.db} }

// Audit returns the audit store.
func (s *Store) Audit() *AuditStore { return &AuditStore{db: s.db} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
