package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authentication method references carried in the "amr" claim.
const (
	AMRPassword = "pwd"
	AMRMFA      = "mfa"
	AMRApproval = "approval"
)

// Claims is the access token payload.
type Claims struct {
	jwt.RegisteredClaims

	// Username of the subject at the time of issue.
	Username string `json:"username,omitempty"`

	// AMR lists the gates the login passed, e.g. ["pwd","mfa"].
	AMR []string `json:"amr,omitempty"`
}

// AccessParams describes an access token to mint.
type AccessParams struct {
	Subject  string
	Username string
	AMR      []string
	Issuer   string
	Audience []string
	TTL      time.Duration
	Now      time.Time
}

// NewAccessClaims builds claims with a fresh jti and iat = nbf = Now.
func NewAccessClaims(p AccessParams) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.Issuer,
			Subject:   p.Subject,
			Audience:  jwt.ClaimStrings(p.Audience),
			IssuedAt:  jwt.NewNumericDate(p.Now),
			NotBefore: jwt.NewNumericDate(p.Now),
			ExpiresAt: jwt.NewNumericDate(p.Now.Add(p.TTL)),
			ID:        NewJTI(),
		},
		Username: p.Username,
		AMR:      slices.Clone(p.AMR),
	}
}

// NewJTI returns a random URL-safe token id.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// HasAMR reports whether method is among the token's AMR values.
func (c *Claims) HasAMR(method string) bool {
	return slices.Contains(c.AMR, method)
}

// ValidateIssuer checks iss. An empty expectation is not enforced.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected != "" && c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience passes when any expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}

// ValidateTimes checks exp and nbf against now, tolerating leeway of skew.
func (c *Claims) ValidateTimes(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt == nil {
		return ErrInvalidClaim
	}
	if now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}
	return nil
}
