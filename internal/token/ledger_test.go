package token_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"salesauto.org/internal/store/memory"
	"salesauto.org/internal/token"
)

func TestMintAndRedeem(t *testing.T) {
	st := memory.New()
	l := token.NewLedger(st.RefreshTokens)
	ctx := context.Background()

	raw, rec, err := l.Mint(ctx, "acct-1")
	require.NoError(t, err)
	require.Equal(t, "acct-1", rec.AccountID)
	require.True(t, strings.HasPrefix(raw, rec.ID+"."))
	require.NotContains(t, rec.TokenHash, strings.SplitN(raw, ".", 2)[1])

	redeemed, err := l.Redeem(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, rec.ID, redeemed.ID)
	require.True(t, redeemed.Revoked)
}

func TestRedeemIsSingleUse(t *testing.T) {
	st := memory.New()
	l := token.NewLedger(st.RefreshTokens)
	ctx := context.Background()

	raw, _, err := l.Mint(ctx, "acct-1")
	require.NoError(t, err)

	_, err = l.Redeem(ctx, raw)
	require.NoError(t, err)
	_, err = l.Redeem(ctx, raw)
	require.ErrorIs(t, err, token.ErrReused)
}

func TestRedeemConcurrentDoubleSpendHasOneWinner(t *testing.T) {
	st := memory.New()
	l := token.NewLedger(st.RefreshTokens)
	ctx := context.Background()

	raw, _, err := l.Mint(ctx, "acct-1")
	require.NoError(t, err)

	const attempts = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Redeem(ctx, raw); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}

func TestRedeemRejectsForgedSecret(t *testing.T) {
	st := memory.New()
	l := token.NewLedger(st.RefreshTokens)
	ctx := context.Background()

	raw, rec, err := l.Mint(ctx, "acct-1")
	require.NoError(t, err)

	_, err = l.Redeem(ctx, rec.ID+".forged-secret")
	require.ErrorIs(t, err, token.ErrInvalid)

	// the forgery burned the row, the genuine token is dead too
	_, err = l.Redeem(ctx, raw)
	require.ErrorIs(t, err, token.ErrReused)
}

func TestRedeemExpiredToken(t *testing.T) {
	st := memory.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := token.NewLedger(st.RefreshTokens,
		token.WithRefreshTTL(time.Hour),
		token.WithLedgerClock(func() time.Time { return now }))
	ctx := context.Background()

	raw, _, err := l.Mint(ctx, "acct-1")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = l.Redeem(ctx, raw)
	require.ErrorIs(t, err, token.ErrExpired)
}

func TestRedeemMalformedValues(t *testing.T) {
	st := memory.New()
	l := token.NewLedger(st.RefreshTokens)
	ctx := context.Background()

	for _, raw := range []string{"", "no-dot", ".secret", "id.", "unknown-id.secret"} {
		_, err := l.Redeem(ctx, raw)
		require.ErrorIs(t, err, token.ErrInvalid, raw)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	st := memory.New()
	l := token.NewLedger(st.RefreshTokens)
	ctx := context.Background()

	raw, _, err := l.Mint(ctx, "acct-1")
	require.NoError(t, err)

	n, err := l.Revoke(ctx, raw)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	n, err = l.Revoke(ctx, raw)
	require.NoError(t, err)
	require.Zero(t, n)

	// malformed input is a no-op, not an error
	n, err = l.Revoke(ctx, "garbage")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRevokeAllAndPurge(t *testing.T) {
	st := memory.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := token.NewLedger(st.RefreshTokens,
		token.WithRefreshTTL(time.Hour),
		token.WithLedgerClock(func() time.Time { return now }))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := l.Mint(ctx, "acct-1")
		require.NoError(t, err)
	}
	_, _, err := l.Mint(ctx, "acct-2")
	require.NoError(t, err)

	n, err := l.RevokeAll(ctx, "acct-1")
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	now = now.Add(2 * time.Hour)
	purged, err := l.PurgeExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 4, purged)
}
