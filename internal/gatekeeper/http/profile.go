package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/apisdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
)

const approvalHistoryLimit = 20

type ProfileHandler struct {
	Store           store.Store
	ApprovalService *service.ApprovalService
}

// HandleProfile handles GET /v1/profile
//
//	@Summary		Current user
//	@Description	Returns the caller's identity and the authentication methods recorded in the token.
//	@Tags			Profile
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	apisdk.ProfileResponse	"Profile"
//	@Failure		401	{object}	apisdk.ErrorResponse	"Invalid or missing access token"
//	@Router			/v1/profile [get].
func (h *ProfileHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, ok := httpx.ClaimsFromContext(ctx)
	if !ok {
		apisdk.ErrInvalidToken.WriteError(w)
		return
	}

	u, err := h.Store.Users().GetUserByID(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		apisdk.ErrInvalidToken.WriteError(w)
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := apisdk.ProfileResponse{
		ID:         u.ID,
		Username:   u.Username,
		AMR:        claims.AMR,
		MFAEnabled: u.MFAEnabled(),
		CreatedAt:  u.CreatedAt,
	}
	if claims.ExpiresAt != nil {
		out.TokenExp = &claims.ExpiresAt.Time
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleApprovals handles GET /v1/profile/approvals
//
//	@Summary		Own approval history
//	@Description	Lists the caller's most recent approval requests, newest first.
//	@Tags			Profile
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	apisdk.ApprovalListResponse	"Approval requests"
//	@Failure		401	{object}	apisdk.ErrorResponse		"Invalid or missing access token"
//	@Router			/v1/profile/approvals [get].
func (h *ProfileHandler) HandleApprovals(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		apisdk.ErrInvalidToken.WriteError(w)
		return
	}

	list, err := h.ApprovalService.ListForUser(r.Context(), userID, approvalHistoryLimit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := apisdk.ApprovalListResponse{Approvals: make([]apisdk.ApprovalSummary, 0, len(list))}
	for _, ar := range list {
		out.Approvals = append(out.Approvals, apisdk.ApprovalSummary{
			ID:        ar.ID,
			Status:    string(ar.Status),
			Approvals: ar.ApprovalCount(),
			Consumed:  ar.ConsumedAt != nil,
			RequestIP: ar.RequestIP,
			CreatedAt: ar.CreatedAt,
			ExpiresAt: ar.ExpiresAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
