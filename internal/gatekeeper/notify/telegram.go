package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
)

const DefaultTelegramAPIURL = "https://api.telegram.org"

// Telegram posts approval notices to a chat through the Bot API. Each
// message carries an approve and a reject button.
type Telegram struct {
	Token  string
	ChatID string

	// APIURL overrides the Bot API base URL, for tests.
	APIURL string
	Client *http.Client
}

// NewTelegram returns a notifier for chatID using a bot token.
func NewTelegram(token, chatID, apiURL string) *Telegram {
	if apiURL == "" {
		apiURL = DefaultTelegramAPIURL
	}
	return &Telegram{
		Token:  token,
		ChatID: chatID,
		APIURL: strings.TrimRight(apiURL, "/"),
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type sendMessageRequest struct {
	ChatID      string `json:"chat_id"`
	Text        string `json:"text"`
	ParseMode   string `json:"parse_mode"`
	ReplyMarkup struct {
		InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
	} `json:"reply_markup"`
}

type answerCallbackRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Update is the subset of a Bot API update the webhook reads.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

type CallbackQuery struct {
	ID   string `json:"id"`
	Data string `json:"data"`
	From struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
}

// ApproverRef identifies who pressed the button. Callbacks without a
// sender yield "", an anonymous signal that claims the next free slot.
func (q *CallbackQuery) ApproverRef() string {
	if q.From.ID == 0 {
		return ""
	}
	return fmt.Sprintf("telegram:%d", q.From.ID)
}

func (t *Telegram) NotifyApprovers(ctx context.Context, n domain.ApprovalNotice) error {
	req := sendMessageRequest{
		ChatID:    t.ChatID,
		Text:      RenderMessage(n),
		ParseMode: "HTML",
	}
	req.ReplyMarkup.InlineKeyboard = [][]inlineButton{{
		{Text: "✅ Approve", CallbackData: CallbackData(ActionApprove, n.RequestID)},
		{Text: "❌ Reject", CallbackData: CallbackData(ActionReject, n.RequestID)},
	}}
	return t.call(ctx, "sendMessage", req)
}

// AnswerCallback acknowledges a button press so the client stops its
// loading indicator.
func (t *Telegram) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return t.call(ctx, "answerCallbackQuery", answerCallbackRequest{
		CallbackQueryID: callbackID,
		Text:            text,
	})
}

func (t *Telegram) Close() error { return nil }

// RenderMessage formats the notice for approvers.
func RenderMessage(n domain.ApprovalNotice) string {
	var b strings.Builder
	b.WriteString("⚠️ <b>Suspicious sign-in</b>\n\n")
	fmt.Fprintf(&b, "User <b>%s</b> is trying to sign in.\n", html.EscapeString(n.Username))
	if n.IP != "" {
		fmt.Fprintf(&b, "IP: <code>%s</code>\n", html.EscapeString(n.IP))
	}
	if n.UserAgent != "" {
		fmt.Fprintf(&b, "Client: %s\n", html.EscapeString(n.UserAgent))
	}
	if n.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", html.EscapeString(n.Reason))
	}
	fmt.Fprintf(&b, "\nTwo approvals are needed before %s.\n", n.ExpiresAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Request ID: <code>%s</code>", html.EscapeString(n.RequestID))
	return b.String()
}

func (t *Telegram) call(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s: encode: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", t.APIURL, t.Token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of logs.
		return fmt.Errorf("telegram %s: request failed", method)
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil && resp.StatusCode == http.StatusOK {
		return fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK || !out.OK {
		return fmt.Errorf("telegram %s: status %d: %s", method, resp.StatusCode, out.Description)
	}
	return nil
}
