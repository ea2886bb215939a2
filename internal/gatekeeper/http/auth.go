package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/apisdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
)

// AuthHandler serves the unauthenticated login endpoints.
type AuthHandler struct {
	LoginService *service.LoginService
	TrustProxy   bool
}

// HandleRegister handles POST /v1/auth/register
//
//	@Summary		Register
//	@Description	Creates an account. Usernames are unique and stored exactly as given.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		apisdk.RegisterRequest	true	"Credentials"
//	@Success		201		{object}	apisdk.RegisterResponse	"id, username"
//	@Failure		400		{object}	apisdk.ErrorResponse	"Malformed request"
//	@Failure		409		{object}	apisdk.ErrorResponse	"Username taken"
//	@Router			/v1/auth/register [post].
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req apisdk.RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	u, err := h.LoginService.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, apisdk.RegisterResponse{ID: u.ID, Username: u.Username})
}

// HandleLogin handles POST /v1/auth/login
//
//	@Summary		Log in
//	@Description	Checks the password. Depending on risk and MFA state the answer is tokens,
//	@Description	an MFA challenge, or a pending approval id to poll.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		apisdk.LoginRequest		true	"Credentials"
//	@Success		200		{object}	apisdk.LoginResponse	"authenticated or mfa_required"
//	@Success		202		{object}	apisdk.LoginResponse	"pending_approval"
//	@Failure		400		{object}	apisdk.ErrorResponse	"Malformed request"
//	@Failure		401		{object}	apisdk.ErrorResponse	"Invalid credentials"
//	@Router			/v1/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req apisdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	res, err := h.LoginService.Login(r.Context(), req.Username, req.Password, domain.RequestContext{
		IP:        httpx.ClientIP(r, h.TrustProxy),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeLoginResult(w, res)
}

// HandlePollApproval handles POST /v1/auth/approvals/{id}
//
//	@Summary		Poll a held login
//	@Description	Reports the approval state. Once approved the first poll receives credentials;
//	@Description	later polls get approval_consumed.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string						true	"Approval request id"
//	@Param			body	body		apisdk.PollApprovalRequest	false	"TOTP code when required"
//	@Success		200		{object}	apisdk.LoginResponse		"authenticated or mfa_required"
//	@Success		202		{object}	apisdk.LoginResponse		"pending_approval"
//	@Failure		401		{object}	apisdk.ErrorResponse		"Invalid TOTP code"
//	@Failure		403		{object}	apisdk.LoginResponse		"rejected"
//	@Failure		404		{object}	apisdk.ErrorResponse		"Unknown approval id"
//	@Failure		409		{object}	apisdk.ErrorResponse		"Credentials already issued"
//	@Failure		410		{object}	apisdk.LoginResponse		"expired"
//	@Router			/v1/auth/approvals/{id} [post].
func (h *AuthHandler) HandlePollApproval(w http.ResponseWriter, r *http.Request) {
	var req apisdk.PollApprovalRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
	}

	res, err := h.LoginService.PollApproval(r.Context(), r.PathValue("id"), strings.TrimSpace(req.Code))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeLoginResult(w, res)
}

// HandleVerifyMFA handles POST /v1/auth/verify-mfa
//
//	@Summary		Complete an MFA challenge
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		apisdk.VerifyMFARequest	true	"Username and TOTP code"
//	@Success		200		{object}	apisdk.TokenResponse	"Credentials"
//	@Failure		400		{object}	apisdk.ErrorResponse	"Malformed request"
//	@Failure		401		{object}	apisdk.ErrorResponse	"Invalid credentials"
//	@Router			/v1/auth/verify-mfa [post].
func (h *AuthHandler) HandleVerifyMFA(w http.ResponseWriter, r *http.Request) {
	var req apisdk.VerifyMFARequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	pair, err := h.LoginService.VerifyMFA(r.Context(), req.Username, strings.TrimSpace(req.Code))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// HandleRefresh handles POST /v1/auth/refresh-token
//
//	@Summary		Rotate a refresh token
//	@Description	Exchanges a refresh token for a new pair. The presented token is invalidated.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		apisdk.RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	apisdk.TokenResponse	"Credentials"
//	@Failure		400		{object}	apisdk.ErrorResponse	"Malformed request"
//	@Failure		401		{object}	apisdk.ErrorResponse	"Invalid or expired refresh token"
//	@Router			/v1/auth/refresh-token [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req apisdk.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	pair, err := h.LoginService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

func writeLoginResult(w http.ResponseWriter, res *domain.LoginResult) {
	out := apisdk.LoginResponse{ApprovalID: res.ApprovalID}
	code := http.StatusOK

	switch res.Outcome {
	case domain.OutcomeCredentials:
		t := tokenResponse(res.Tokens)
		out.Status = apisdk.StatusAuthenticated
		out.AccessToken = t.AccessToken
		out.RefreshToken = t.RefreshToken
		out.TokenType = t.TokenType
		out.ExpiresIn = t.ExpiresIn
		out.RefreshExpiresAt = &t.RefreshExpiresAt
	case domain.OutcomeMFARequired:
		out.Status = apisdk.StatusMFARequired
	case domain.OutcomePendingApproval:
		out.Status = apisdk.StatusPendingApproval
		out.ExpiresAt = timePtr(res.ExpiresAt)
		code = http.StatusAccepted
	case domain.OutcomeRejected:
		out.Status = apisdk.StatusRejected
		code = http.StatusForbidden
	case domain.OutcomeExpired:
		out.Status = apisdk.StatusExpired
		code = http.StatusGone
	}

	httpx.WriteJSON(w, code, out)
}

func tokenResponse(p *domain.TokenPair) apisdk.TokenResponse {
	return apisdk.TokenResponse{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		TokenType:        p.TokenType,
		ExpiresIn:        p.ExpiresIn,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
