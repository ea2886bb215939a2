package apisdk

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeInvalidGrant       = "invalid_grant"
	ErrorCodeInvalidToken       = "invalid_token"
	ErrorCodeUsernameTaken      = "username_taken"
	ErrorCodeInvalidUsername    = "invalid_username"
	ErrorCodeWeakPassword       = "weak_password"
	ErrorCodeNotFound           = "not_found"
	ErrorCodeApprovalConsumed   = "approval_consumed"
	ErrorCodeApprovalBusy       = "approval_busy"
	ErrorCodeMFAAlreadyEnabled  = "mfa_already_enabled"
	ErrorCodeMFANotEnrolled     = "mfa_not_enrolled"
	ErrorCodeMFANotConfigured   = "mfa_not_configured"
	ErrorCodeInvalidTOTPCode    = "invalid_totp_code"
	ErrorCodeUnauthorizedSource = "unauthorized_source"
	ErrorCodeServerError        = "server_error"
)

// APIError is the JSON error body shared by server and client.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches another *APIError with the same status and code, so callers
// can use errors.Is against the predefined values.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.StatusCode == e.StatusCode && t.Code == e.Code
}

// WriteError writes e as a non-cacheable JSON response.
func (e *APIError) WriteError(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(e)
}

// WithDescription returns a copy of e with a different description.
func (e *APIError) WithDescription(desc string) *APIError {
	c := *e
	c.Description = desc
	return &c
}

func NewAPIError(statusCode int, code, description string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Description: description}
}

var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	// ErrInvalidGrant covers every failed credential check. The text never
	// says which part was wrong.
	ErrInvalidGrant = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidGrant,
		Description: "invalid credentials",
	}

	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "the access token is missing, invalid or expired",
	}

	ErrUsernameTaken = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeUsernameTaken,
		Description: "username already exists",
	}

	ErrInvalidUsername = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidUsername,
		Description: "username must be 1-64 characters without surrounding whitespace",
	}

	ErrWeakPassword = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeWeakPassword,
		Description: "password must not be empty",
	}

	ErrNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeNotFound,
		Description: "approval request not found",
	}

	ErrApprovalConsumed = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeApprovalConsumed,
		Description: "credentials for this approval were already issued",
	}

	ErrApprovalBusy = &APIError{
		StatusCode:  http.StatusServiceUnavailable,
		Code:        ErrorCodeApprovalBusy,
		Description: "approval request is under heavy contention, retry",
	}

	ErrMFAAlreadyEnabled = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeMFAAlreadyEnabled,
		Description: "MFA is already enabled for this user",
	}

	ErrMFANotEnrolled = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeMFANotEnrolled,
		Description: "call MFA setup before enabling",
	}

	ErrMFANotConfigured = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeMFANotConfigured,
		Description: "MFA is not configured for this user",
	}

	ErrInvalidTOTPCode = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidTOTPCode,
		Description: "the TOTP code is not valid",
	}

	ErrUnauthorizedSource = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeUnauthorizedSource,
		Description: "webhook secret mismatch",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)

// parseErrorResponse turns a non-2xx response body into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	var e APIError
	if err := json.Unmarshal(body, &e); err == nil && e.Code != "" {
		e.StatusCode = resp.StatusCode
		return &e
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
