package apisdk

import "time"

// Login and approval poll statuses.
const (
	StatusAuthenticated   = "authenticated"
	StatusMFARequired     = "mfa_required"
	StatusPendingApproval = "pending_approval"
	StatusRejected        = "rejected"
	StatusExpired         = "expired"
)

type RegisterRequest struct {
	Username string `json:"username" example:"alice"`
	Password string `json:"password" example:"correct horse battery staple"`
}

type RegisterResponse struct {
	ID       string `json:"id" example:"01JBZ8X6J2Q3W4E5R6T7Y8U9I0"`
	Username string `json:"username" example:"alice"`
}

type LoginRequest struct {
	Username string `json:"username" example:"alice"`
	Password string `json:"password" example:"correct horse battery staple"`
}

// PollApprovalRequest optionally carries a TOTP code when the server
// requires MFA after approval.
type PollApprovalRequest struct {
	Code string `json:"code,omitempty" example:"123456"`
}

type VerifyMFARequest struct {
	Username string `json:"username" example:"bob"`
	Code     string `json:"code" example:"123456"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is an issued credential pair.
type TokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type" example:"Bearer"`
	ExpiresIn        int64     `json:"expires_in" example:"900"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// LoginResponse answers a login or an approval poll. Token fields are set
// only when Status is StatusAuthenticated; ApprovalID and ExpiresAt only
// for approval states.
type LoginResponse struct {
	Status string `json:"status" example:"pending_approval"`

	AccessToken      string     `json:"access_token,omitempty"`
	RefreshToken     string     `json:"refresh_token,omitempty"`
	TokenType        string     `json:"token_type,omitempty"`
	ExpiresIn        int64      `json:"expires_in,omitempty"`
	RefreshExpiresAt *time.Time `json:"refresh_expires_at,omitempty"`

	ApprovalID string     `json:"approval_id,omitempty" example:"0b8e3b52-5a53-4d8e-9a55-4b2f9e0f5c01"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Tokens extracts the credential pair from an authenticated response.
func (r *LoginResponse) Tokens() *TokenResponse {
	t := &TokenResponse{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		ExpiresIn:    r.ExpiresIn,
	}
	if r.RefreshExpiresAt != nil {
		t.RefreshExpiresAt = *r.RefreshExpiresAt
	}
	return t
}

type MFASetupResponse struct {
	ManualKey string `json:"manual_key" example:"JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"`
	QRPayload string `json:"qr_payload" example:"otpauth://totp/gatekeeper:bob?secret=JBSWY3DPEHPK3PXP&issuer=gatekeeper"`
	QRCodePNG string `json:"qr_code_png" example:"iVBORw0KGgo..."`
	Issuer    string `json:"issuer" example:"gatekeeper"`
	Account   string `json:"account" example:"bob"`
}

type MFAEnableRequest struct {
	Code string `json:"code" example:"123456"`
}

type MFAEnableResponse struct {
	Enabled bool `json:"enabled" example:"true"`
}

type ProfileResponse struct {
	ID         string     `json:"id"`
	Username   string     `json:"username" example:"alice"`
	AMR        []string   `json:"amr" example:"pwd"`
	MFAEnabled bool       `json:"mfa_enabled"`
	CreatedAt  time.Time  `json:"created_at"`
	TokenExp   *time.Time `json:"token_expires_at,omitempty"`
}

// ApprovalSummary is one of the caller's own approval requests.
type ApprovalSummary struct {
	ID        string    `json:"id"`
	Status    string    `json:"status" example:"approved"`
	Approvals int       `json:"approvals" example:"2"`
	Consumed  bool      `json:"consumed"`
	RequestIP string    `json:"request_ip,omitempty" example:"203.0.113.10"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ApprovalListResponse struct {
	Approvals []ApprovalSummary `json:"approvals"`
}

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status" example:"ok"`
	Uptime  string        `json:"uptime,omitempty" example:"1h23m45s"`
	Version string        `json:"version,omitempty" example:"0.1.0"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Store string `json:"store"`
}

// ErrorResponse documents the error body for API docs.
type ErrorResponse struct {
	Error            string `json:"error" example:"invalid_grant"`
	ErrorDescription string `json:"error_description" example:"invalid credentials"`
}
