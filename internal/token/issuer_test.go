package token_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"salesauto.org/internal/token"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestIssueAndVerify(t *testing.T) {
	iss, err := token.NewIssuer(testSecret, token.WithIssuerName("salesauto"))
	require.NoError(t, err)

	raw, claims, err := iss.IssueAccessToken("acct-1")
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	require.Equal(t, "acct-1", claims.Subject)
	require.NotEmpty(t, claims.ID)

	verified, err := iss.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, claims.ID, verified.ID)
	require.Equal(t, "salesauto", verified.Issuer)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	iss, err := token.NewIssuer(testSecret)
	require.NoError(t, err)
	raw, _, err := iss.IssueAccessToken("acct-1")
	require.NoError(t, err)

	_, err = iss.Verify(raw + "x")
	require.ErrorIs(t, err, token.ErrInvalid)

	other, err := token.NewIssuer([]byte("another-secret-another-secret-32"))
	require.NoError(t, err)
	_, err = other.Verify(raw)
	require.ErrorIs(t, err, token.ErrInvalid)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	iss, err := token.NewIssuer(testSecret,
		token.WithAccessTTL(time.Minute),
		token.WithIssuerClock(func() time.Time { return now }))
	require.NoError(t, err)

	raw, _, err := iss.IssueAccessToken("acct-1")
	require.NoError(t, err)

	_, err = iss.Verify(raw)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = iss.Verify(raw)
	require.ErrorIs(t, err, token.ErrInvalid)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	minted, err := token.NewIssuer(testSecret, token.WithIssuerName("someone-else"))
	require.NoError(t, err)
	raw, _, err := minted.IssueAccessToken("acct-1")
	require.NoError(t, err)

	checking, err := token.NewIssuer(testSecret, token.WithIssuerName("salesauto"))
	require.NoError(t, err)
	_, err = checking.Verify(raw)
	require.ErrorIs(t, err, token.ErrInvalid)
}

func TestExtractClaimsFromExpiredToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	iss, err := token.NewIssuer(testSecret,
		token.WithAccessTTL(time.Minute),
		token.WithIssuerClock(func() time.Time { return now }))
	require.NoError(t, err)
	raw, claims, err := iss.IssueAccessToken("acct-1")
	require.NoError(t, err)

	// extraction works past expiry, verification does not
	now = now.Add(time.Hour)
	extracted, err := token.ExtractClaims(raw)
	require.NoError(t, err)
	require.Equal(t, claims.ID, extracted.ID)

	_, err = token.ExtractClaims("not-a-jwt")
	require.ErrorIs(t, err, token.ErrInvalid)
}
