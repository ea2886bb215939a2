package domain

import "time"

// RequestContext is what the transport knows about a login attempt.
type RequestContext struct {
	IP        string
	UserAgent string
}

// RiskAssessment is a classifier verdict.
type RiskAssessment struct {
	Suspicious bool
	Reason     string
}

type LoginOutcome string

const (
	OutcomeCredentials     LoginOutcome = "credentials"
	OutcomeMFARequired     LoginOutcome = "mfa_required"
	OutcomePendingApproval LoginOutcome = "pending_approval"
	OutcomeRejected        LoginOutcome = "rejected"
	OutcomeExpired         LoginOutcome = "expired"
)

// LoginResult is the orchestrator's answer to a login step. Exactly one of
// Tokens or ApprovalID is meaningful depending on Outcome.
type LoginResult struct {
	Outcome    LoginOutcome
	Tokens     *TokenPair
	ApprovalID string
	ExpiresAt  time.Time // approval deadline for pending results
}

// ApprovalNotice is what approvers are told about a pending request.
type ApprovalNotice struct {
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
