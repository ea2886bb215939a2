package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/apisdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
)

// MFAHandler handles TOTP enrollment for the authenticated user.
type MFAHandler struct {
	MFAService *service.MFAService
}

// HandleSetup handles POST /v1/mfa/setup
//
//	@Summary		Start TOTP enrollment
//	@Description	Generates a provisional secret and returns it as a manual key, an otpauth URI and a PNG QR code.
//	@Description	Calling again before enabling replaces the secret.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	apisdk.MFASetupResponse	"Secret and QR code"
//	@Failure		400	{object}	apisdk.ErrorResponse	"MFA already enabled"
//	@Failure		401	{object}	apisdk.ErrorResponse	"Invalid or missing access token"
//	@Router			/v1/mfa/setup [post].
func (h *MFAHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		apisdk.ErrInvalidToken.WriteError(w)
		return
	}

	enr, err := h.MFAService.Enroll(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, apisdk.MFASetupResponse{
		ManualKey: enr.ManualKey,
		QRPayload: enr.QRPayload,
		QRCodePNG: enr.QRCodePNG,
		Issuer:    enr.Issuer,
		Account:   enr.Account,
	})
}

// HandleEnable handles POST /v1/mfa/enable
//
//	@Summary		Confirm TOTP enrollment
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		apisdk.MFAEnableRequest		true	"Code from the authenticator app"
//	@Success		200		{object}	apisdk.MFAEnableResponse	"MFA enabled"
//	@Failure		400		{object}	apisdk.ErrorResponse		"Not enrolled, already enabled or wrong code"
//	@Failure		401		{object}	apisdk.ErrorResponse		"Invalid or missing access token"
//	@Router			/v1/mfa/enable [post].
func (h *MFAHandler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		apisdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req apisdk.MFAEnableRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := h.MFAService.Confirm(r.Context(), userID, strings.TrimSpace(req.Code)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, apisdk.MFAEnableResponse{Enabled: true})
}
