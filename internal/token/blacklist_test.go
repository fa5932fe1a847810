package token_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"salesauto.org/internal/store/memory"
	"salesauto.org/internal/token"
)

func TestBlacklistRevokeAccessToken(t *testing.T) {
	st := memory.New()
	bl := token.NewBlacklist(st.Blacklist)
	iss, err := token.NewIssuer(testSecret)
	require.NoError(t, err)
	ctx := context.Background()

	raw, claims, err := iss.IssueAccessToken("acct-1")
	require.NoError(t, err)

	revoked, err := bl.IsRevoked(ctx, claims.ID)
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, bl.RevokeAccessToken(ctx, raw))

	revoked, err = bl.IsRevoked(ctx, claims.ID)
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestBlacklistRejectsUndecodableToken(t *testing.T) {
	st := memory.New()
	bl := token.NewBlacklist(st.Blacklist)
	err := bl.RevokeAccessToken(context.Background(), "not-a-jwt")
	require.ErrorIs(t, err, token.ErrInvalid)
}

func TestBlacklistEntriesExpireWithTheToken(t *testing.T) {
	st := memory.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	iss, err := token.NewIssuer(testSecret,
		token.WithAccessTTL(time.Minute),
		token.WithIssuerClock(func() time.Time { return now }))
	require.NoError(t, err)
	bl := token.NewBlacklist(st.Blacklist, token.WithBlacklistClock(func() time.Time { return now }))
	ctx := context.Background()

	raw, claims, err := iss.IssueAccessToken("acct-1")
	require.NoError(t, err)
	require.NoError(t, bl.RevokeAccessToken(ctx, raw))

	// once the token itself is past exp the entry stops mattering
	now = now.Add(2 * time.Minute)
	revoked, err := bl.IsRevoked(ctx, claims.ID)
	require.NoError(t, err)
	require.False(t, revoked)

	purged, err := bl.PurgeExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)
}
