package domain

import "time"

// TokenPair is what a successful login returns.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"` // seconds
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// RefreshToken is a freshly minted opaque token before it is stored.
type RefreshToken struct {
	Value     string
	Hash      string // fingerprint persisted in place of Value
	ExpiresAt time.Time
}
