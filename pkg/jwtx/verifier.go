package jwtx

import (
	"errors"
	"time"
)

// Verifier validates a compact JWS and returns its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// VerifyOptions are the expectations a verifier enforces.
type VerifyOptions struct {
	// Issuer the token must carry. Empty disables the check.
	Issuer string

	// Audience values of which at least one must be present. Empty disables
	// the check.
	Audience []string

	// Leeway tolerated on exp and nbf.
	Leeway time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

var (
	ErrMalformed    = errors.New("jwtx: malformed token")
	ErrInvalidSig   = errors.New("jwtx: invalid signature")
	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrAudience     = errors.New("jwtx: audience mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
	ErrWeakSecret   = errors.New("jwtx: hmac secret shorter than 32 bytes")
)
