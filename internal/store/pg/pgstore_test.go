package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"salesauto.org/internal/audit"
	"salesauto.org/internal/identity"
	"salesauto.org/internal/token"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestRecordFailureAtomicUpdate(t *testing.T) {
	store, mock := newMock(t)
	lockUntil := time.Now().Add(30 * time.Minute)

	mock.ExpectQuery("update accounts.*failed_logins = failed_logins \\+ 1.*locked_until = case when").
		WithArgs("acct-1", 5, lockUntil).
		WillReturnRows(sqlmock.NewRows([]string{"locked"}).AddRow(true))

	locked, err := store.Accounts().RecordFailure(context.Background(), "acct-1", 5, lockUntil)
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if !locked {
		t.Fatal("expected the threshold-crossing failure to report locked")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecordFailureUnknownAccount(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery("update accounts").
		WithArgs("nope", 5, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"locked"}))

	_, err := store.Accounts().RecordFailure(context.Background(), "nope", 5, time.Now())
	if !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRevokeIsCompareAndSet(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec("update refresh_tokens set revoked=true where id=\\$1 and revoked=false").
		WithArgs("rt-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update refresh_tokens set revoked=true where id=\\$1 and revoked=false").
		WithArgs("rt-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := store.RefreshTokens().Revoke(context.Background(), "rt-1")
	if err != nil || !won {
		t.Fatalf("first revoke should win: won=%v err=%v", won, err)
	}
	won, err = store.RefreshTokens().Revoke(context.Background(), "rt-1")
	if err != nil || won {
		t.Fatalf("second revoke must lose: won=%v err=%v", won, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindRefreshTokenMissing(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery("select id, account_id, token_hash, expires_at, created_at, revoked").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.RefreshTokens().Find(context.Background(), "missing")
	if !errors.Is(err, token.ErrInvalid) {
		t.Fatalf("expected token.ErrInvalid, got %v", err)
	}
}

func TestBlacklistContainsChecksExpiry(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery("select exists.*from token_blacklist where jti=\\$1 and expires_at > \\$2").
		WithArgs("jti-1", now).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	found, err := store.Blacklist().Contains(context.Background(), "jti-1", now)
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if found {
		t.Fatal("expired entry must not count as blacklisted")
	}
}

func TestFindByIdentifierMatchesEitherColumn(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "username", "email", "password_hash", "active", "verified",
		"failed_logins", "locked_until", "last_login_at",
		"reset_token_hash", "reset_token_expiry", "created_at", "updated_at",
	}).AddRow("acct-1", "kanat", "kanat@example.org", "$argon2id$...", true, true,
		0, nil, nil, nil, nil, now, now)

	mock.ExpectQuery("select .* from accounts.*lower\\(username\\)=lower\\(\\$1\\) or lower\\(email\\)=lower\\(\\$1\\)").
		WithArgs("Kanat@Example.org").
		WillReturnRows(rows)

	a, err := store.Accounts().FindByIdentifier(context.Background(), "Kanat@Example.org")
	if err != nil {
		t.Fatalf("FindByIdentifier: %v", err)
	}
	if a.ID != "acct-1" || a.LockedUntil != nil {
		t.Fatalf("unexpected account: %+v", a)
	}
}

func TestAuditAppendMarshalsSnapshots(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectExec("insert into audit_log").
		WithArgs("ev-1", sqlmock.AnyArg(), "login", "auth", sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), []byte(`{"ip":"10.0.0.1"}`), now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Audit().Append(context.Background(), &audit.Event{
		ID:           "ev-1",
		ActorID:      "acct-1",
		Action:       "login",
		ResourceType: "auth",
		NewValues:    map[string]any{"ip": "10.0.0.1"},
		CreatedAt:    now,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
