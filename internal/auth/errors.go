package auth

import (
	"errors"
	"strings"
)

// The externally visible failure taxonomy. Credential and token failures are
// deliberately coarse: unknown account and wrong password both surface as
// ErrInvalidCredentials, and every authorization denial is the single opaque
// ErrPermissionDenied. The audit trail keeps the precise reason internally.
var (
	ErrInvalidCredentials  = errors.New("auth: invalid credentials")
	ErrAccountLocked       = errors.New("auth: account locked")
	ErrAccountInactive     = errors.New("auth: account inactive")
	ErrInvalidToken        = errors.New("auth: invalid token")
	ErrExpiredRefreshToken = errors.New("auth: refresh token expired")
	ErrTokenRevoked        = errors.New("auth: token revoked")
	ErrWeakPassword        = errors.New("auth: weak password")
	ErrPermissionDenied    = errors.New("auth: permission denied")
	ErrNotFound            = errors.New("auth: not found")
)

// WeakPasswordError carries the full list of violated policy rules.
type WeakPasswordError struct {
	Violations []string
}

func (e *WeakPasswordError) Error() string {
	return "auth: weak password: " + strings.Join(e.Violations, "; ")
}

// Is makes errors.Is(err, ErrWeakPassword) hold for the carrier.
func (e *WeakPasswordError) Is(target error) bool {
	return target == ErrWeakPassword
}
