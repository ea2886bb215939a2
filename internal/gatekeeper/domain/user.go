package domain

import "time"

type User struct {
	ID           string
	Username     string
	PasswordHash string     // argon2id PHC, or bcrypt for imported accounts
	MFAEnabledAt *time.Time // nil while MFA is off
	MFASecret    *string    // base32 TOTP secret, set once enrollment starts

	// At most one live refresh token per user, stored as a fingerprint.
	RefreshTokenHash      *string
	RefreshTokenExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MFAEnabled reports whether the second factor is active.
func (u User) MFAEnabled() bool {
	return u.MFAEnabledAt != nil && u.MFASecret != nil && *u.MFASecret != ""
}
