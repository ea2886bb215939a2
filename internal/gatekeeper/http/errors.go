package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/apisdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

var serviceErrors = []struct {
	err error
	api *apisdk.APIError
}{
	{service.ErrInvalidCredentials, apisdk.ErrInvalidGrant},
	{service.ErrInvalidRefresh, apisdk.ErrInvalidGrant},
	{service.ErrUsernameTaken, apisdk.ErrUsernameTaken},
	{service.ErrInvalidUsername, apisdk.ErrInvalidUsername},
	{service.ErrWeakPassword, apisdk.ErrWeakPassword},
	{service.ErrApprovalNotFound, apisdk.ErrNotFound},
	{service.ErrApprovalConsumed, apisdk.ErrApprovalConsumed},
	{service.ErrApprovalBusy, apisdk.ErrApprovalBusy},
	{service.ErrMFAAlreadyEnabled, apisdk.ErrMFAAlreadyEnabled},
	{service.ErrMFANotEnrolled, apisdk.ErrMFANotEnrolled},
	{service.ErrMFANotConfigured, apisdk.ErrMFANotConfigured},
	{service.ErrInvalidTOTPCode, apisdk.ErrInvalidTOTPCode},
	{service.ErrUserNotFound, apisdk.ErrInvalidToken},
}

// writeServiceError maps a service error to its API error. Anything
// unrecognised is logged and reported as a server error.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			m.api.WriteError(w)
			return
		}
	}

	slogx.FromContext(r.Context()).Error("request failed", "error", err)
	apisdk.ErrServerError.WriteError(w)
}

func writeBadRequest(w http.ResponseWriter, desc string) {
	apisdk.ErrInvalidRequest.WithDescription(desc).WriteError(w)
}
