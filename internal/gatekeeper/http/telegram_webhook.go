package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/notify"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/apisdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

const (
	telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
	answerTimeout        = 5 * time.Second
)

// TelegramWebhookHandler turns approver button presses into approval
// signals. Redelivered or late callbacks are absorbed as no-ops.
type TelegramWebhookHandler struct {
	ApprovalService *service.ApprovalService
	Telegram        *notify.Telegram
	Secret          string
}

// ServeHTTP godoc
//
//	@Summary		Telegram approval callback
//	@Description	Receives a Bot API update. callback_query.data must be approve_<id> or reject_<id>.
//	@Description	Updates without a callback and callbacks for unknown or settled requests are acknowledged without effect.
//	@Tags			Webhooks
//	@Accept			json
//	@Produce		json
//	@Param			X-Telegram-Bot-Api-Secret-Token	header		string					false	"Webhook secret"
//	@Success		200								{object}	map[string]string		"status"
//	@Failure		400								{object}	apisdk.ErrorResponse	"Malformed update or callback data"
//	@Failure		401								{object}	apisdk.ErrorResponse	"Secret mismatch"
//	@Router			/v1/webhooks/telegram [post].
func (h *TelegramWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if h.Secret != "" && !cryptox.EqualSecrets(r.Header.Get(telegramSecretHeader), h.Secret) {
		log.Warn("telegram webhook secret mismatch")
		apisdk.ErrUnauthorizedSource.WriteError(w)
		return
	}

	var update notify.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, httpx.MaxBodyBytes)).Decode(&update); err != nil {
		writeBadRequest(w, "invalid telegram update")
		return
	}

	q := update.CallbackQuery
	if q == nil || q.Data == "" {
		writeWebhookOK(w, "ignored")
		return
	}

	cb, err := notify.ParseCallback(q.Data)
	if err != nil {
		log.Info("rejected callback data", "error", err)
		writeBadRequest(w, "invalid callback data")
		return
	}

	approver := q.ApproverRef()
	var st domain.ApprovalStatus
	switch cb.Action {
	case notify.ActionApprove:
		st, err = h.ApprovalService.RecordApproval(ctx, cb.RequestID, approver)
	case notify.ActionReject:
		st, err = h.ApprovalService.RecordRejection(ctx, cb.RequestID, approver)
	}

	switch {
	case errors.Is(err, service.ErrApprovalNotFound):
		log.Info("callback for unknown approval request", "approval_id", cb.RequestID)
		writeWebhookOK(w, "ignored")
		return
	case err != nil:
		writeServiceError(w, r, err)
		return
	}

	h.answer(ctx, q.ID, st)
	writeWebhookOK(w, string(st))
}

// answer acknowledges the button press. Failures only get logged.
func (h *TelegramWebhookHandler) answer(ctx context.Context, callbackID string, st domain.ApprovalStatus) {
	if h.Telegram == nil || callbackID == "" {
		return
	}

	actx, cancel := context.WithTimeout(slogx.Detach(ctx), answerTimeout)
	defer cancel()

	if err := h.Telegram.AnswerCallback(actx, callbackID, "Request is "+string(st)); err != nil {
		slogx.FromContext(ctx).Warn("answer callback failed", "error", err)
	}
}

func writeWebhookOK(w http.ResponseWriter, status string) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": status})
}
