package service

import "errors"

var (
	// ErrInvalidCredentials covers unknown users, wrong passwords and failed
	// second factors. Callers must not be able to tell these apart.
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidRefresh     = errors.New("invalid_refresh_token")
	ErrUsernameTaken      = errors.New("username_taken")
	ErrInvalidUsername    = errors.New("invalid_username")
	ErrWeakPassword       = errors.New("weak_password")

	ErrApprovalNotFound    = errors.New("approval_not_found")
	ErrApprovalNotApproved = errors.New("approval_not_approved")
	ErrApprovalConsumed    = errors.New("approval_consumed")
	ErrApprovalBusy        = errors.New("approval_busy")

	ErrMFAAlreadyEnabled = errors.New("mfa_already_enabled")
	ErrMFANotEnrolled    = errors.New("mfa_not_enrolled")
	ErrMFANotConfigured  = errors.New("mfa_not_configured")
	ErrInvalidTOTPCode   = errors.New("invalid_totp_code")
	ErrUserNotFound      = errors.New("user_not_found")
)
