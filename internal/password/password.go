// Package password implements the credential-strength policy and the one-way
// hashing used for stored credentials. Hashing is argon2id with the
// parameters embedded in the encoded form, so verification needs nothing
// beyond the stored string.
package password

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"
)

const (
	// MinLength is the minimum accepted password length.
	MinLength = 8

	// SpecialChars is the accepted special character set.
	SpecialChars = "!@#$%^&*()_+-=[]{}|;:,.<>?/~`"
)

// Validate checks a password against the policy and reports every violated
// rule, not just the first.
func Validate(pw string) (bool, []string) {
	var violations []string

	if len([]rune(pw)) < MinLength {
		violations = append(violations, fmt.Sprintf("must be at least %d characters long", MinLength))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
		if strings.ContainsRune(SpecialChars, r) {
			hasSpecial = true
		}
	}
	if !hasUpper {
		violations = append(violations, "must contain at least one uppercase letter")
	}
	if !hasLower {
		violations = append(violations, "must contain at least one lowercase letter")
	}
	if !hasDigit {
		violations = append(violations, "must contain at least one digit")
	}
	if !hasSpecial {
		violations = append(violations, "must contain at least one special character")
	}

	return len(violations) == 0, violations
}

// Strength scores a password 0..100: length contributes up to 25 points,
// character-class variety up to 50, and a complexity term up to 25 that
// penalizes ascending runs and rewards transitions between classes.
func Strength(pw string) int {
	runes := []rune(pw)
	score := 0.0

	if l := len(runes) * 2; l < 25 {
		score += float64(l)
	} else {
		score += 25
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range runes {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
		if strings.ContainsRune(SpecialChars, r) {
			hasSpecial = true
		}
	}
	classes := 0
	for _, present := range []bool{hasUpper, hasLower, hasDigit, hasSpecial} {
		if present {
			classes++
		}
	}
	score += float64(classes) * 12.5

	ascending := 0
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1]+1 {
			ascending++
		}
	}
	if penalty := 15 - ascending*3; penalty > 0 {
		score += float64(penalty)
	}

	transitions := 0
	for i := 1; i < len(runes); i++ {
		if charClass(runes[i]) != charClass(runes[i-1]) {
			transitions++
		}
	}
	if transitions > 10 {
		transitions = 10
	}
	score += float64(transitions)

	if score > 100 {
		return 100
	}
	return int(score)
}

// Label maps a strength score to a human-readable label.
func Label(score int) string {
	switch {
	case score < 40:
		return "Weak"
	case score < 70:
		return "Moderate"
	case score < 90:
		return "Strong"
	default:
		return "Very Strong"
	}
}

func charClass(r rune) int {
	switch {
	case unicode.IsLetter(r):
		return 0
	case unicode.IsDigit(r):
		return 1
	default:
		return 2
	}
}

// Params tune the argon2id work factor.
type Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams matches the cost used across the service.
func DefaultParams() Params {
	return Params{
		Memory:      64 * 1024,
		Iterations:  2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// ErrMalformedHash indicates the stored hash is not a recognized encoding.
var ErrMalformedHash = errors.New("password: malformed hash")

// Hasher computes and verifies argon2id hashes. Hashing is intentionally
// slow, so concurrent computations are capped by a weighted semaphore; a
// credential-stuffing burst queues on the gate instead of exhausting CPU.
type Hasher struct {
	params Params
	gate   *semaphore.Weighted
}

// NewHasher constructs a Hasher limiting concurrent hash computations to
// maxConcurrent (values < 1 fall back to 4).
func NewHasher(params Params, maxConcurrent int64) *Hasher {
	if maxConcurrent < 1 {
		maxConcurrent = 4
	}
	return &Hasher{params: params, gate: semaphore.NewWeighted(maxConcurrent)}
}

// Hash derives an argon2id hash and returns the self-describing encoded form
// ($argon2id$v=19$m=..,t=..,p=..$salt$hash).
func (h *Hasher) Hash(ctx context.Context, pw string) (string, error) {
	if pw == "" {
		return "", errors.New("password: empty password")
	}
	if err := h.gate.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.gate.Release(1)

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(pw), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the hash with the parameters embedded in encoded and
// compares in constant time.
func (h *Hasher) Verify(ctx context.Context, pw, encoded string) (bool, error) {
	params, salt, want, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	if err := h.gate.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.gate.Release(1)

	got := argon2.IDKey([]byte(pw), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func decodeHash(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return Params{}, nil, nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Params{}, nil, nil, ErrMalformedHash
	}
	if version != argon2.Version {
		return Params{}, nil, nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedHash, version)
	}

	var params Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return Params{}, nil, nil, ErrMalformedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, ErrMalformedHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, ErrMalformedHash
	}
	return params, salt, key, nil
}
