package password

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCompliant(t *testing.T) {
	ok, violations := Validate("Abcdef1!")
	assert.True(t, ok)
	assert.Empty(t, violations)
}

func TestValidateReportsEveryViolation(t *testing.T) {
	ok, violations := Validate("abc")
	assert.False(t, ok)
	// length, uppercase, digit, special
	assert.GreaterOrEqual(t, len(violations), 4)
}

func TestValidateSingleRule(t *testing.T) {
	ok, violations := Validate("Abcdefg1")
	assert.False(t, ok)
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "special")
}

func TestStrengthBounds(t *testing.T) {
	// Empty input still earns the 15-point complexity base (no runs).
	assert.Equal(t, 15, Strength(""))
	long := "Xq7!" + strings.Repeat("Zt3#Lp9@", 8)
	s := Strength(long)
	assert.LessOrEqual(t, s, 100)
	assert.GreaterOrEqual(t, s, 90)
}

func TestStrengthPenalizesAscendingRuns(t *testing.T) {
	sequential := Strength("Abcdefgh1!")
	scrambled := Strength("Ahfcbge1d!")
	assert.Greater(t, scrambled, sequential)
}

func TestLabelThresholds(t *testing.T) {
	assert.Equal(t, "Weak", Label(0))
	assert.Equal(t, "Weak", Label(39))
	assert.Equal(t, "Moderate", Label(40))
	assert.Equal(t, "Moderate", Label(69))
	assert.Equal(t, "Strong", Label(70))
	assert.Equal(t, "Strong", Label(89))
	assert.Equal(t, "Very Strong", Label(90))
	assert.Equal(t, "Very Strong", Label(100))
}

func TestHashVerifyRoundTrip(t *testing.T) {
	h := NewHasher(fastParams(), 2)
	ctx := context.Background()

	encoded, err := h.Hash(ctx, "Abcdef1!")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$"))

	ok, err := h.Verify(ctx, "Abcdef1!", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify(ctx, "Abcdef1?", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyUsesEmbeddedParams(t *testing.T) {
	// A hash produced under one cost must verify under a Hasher tuned
	// differently: the encoded form is self-describing.
	ctx := context.Background()
	old := NewHasher(fastParams(), 2)
	encoded, err := old.Hash(ctx, "Abcdef1!")
	require.NoError(t, err)

	current := NewHasher(DefaultParams(), 2)
	ok, err := current.Verify(ctx, "Abcdef1!", encoded)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyMalformedHash(t *testing.T) {
	h := NewHasher(fastParams(), 2)
	_, err := h.Verify(context.Background(), "whatever", "$bcrypt$nonsense")
	assert.ErrorIs(t, err, ErrMalformedHash)
}

func fastParams() Params {
	return Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}
