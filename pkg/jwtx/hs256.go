package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest HMAC secret accepted, in bytes.
const MinSecretLength = 32

// HS256 signs and verifies tokens with a shared HMAC-SHA256 secret.
type HS256 struct {
	secret []byte
	opts   VerifyOptions
}

// NewHS256 returns a signer/verifier pair over secret.
func NewHS256(secret []byte, opts VerifyOptions) (*HS256, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &HS256{secret: append([]byte(nil), secret...), opts: opts}, nil
}

func (h *HS256) Alg() string { return jwt.SigningMethodHS256.Alg() }

// Sign returns the compact serialisation of claims.
func (h *HS256) Sign(claims Claims) (string, error) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return tok, nil
}

// Verify checks the signature and then iss, aud, exp and nbf.
func (h *HS256) Verify(token string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return h.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenMalformed):
		return Claims{}, ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		// Also covers tokens signed with any other algorithm.
		return Claims{}, ErrInvalidSig
	default:
		return Claims{}, fmt.Errorf("jwtx: parse: %w", err)
	}

	if claims.Subject == "" {
		return Claims{}, ErrInvalidClaim
	}
	if err := claims.ValidateIssuer(h.opts.Issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateAudience(h.opts.Audience); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateTimes(h.opts.Now(), h.opts.Leeway); err != nil {
		return Claims{}, err
	}
	return claims, nil
}
