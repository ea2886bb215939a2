package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/notify"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"

	_ "github.com/aussiebroadwan/gatekeeper/api/gatekeeper" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	LoginService    *service.LoginService
	ApprovalService *service.ApprovalService
	MFAService      *service.MFAService

	// Telegram acknowledges button presses. Optional.
	Telegram *notify.Telegram

	// WebhookSecret must match X-Telegram-Bot-Api-Secret-Token when set.
	WebhookSecret string

	// TrustProxy makes client IPs come from X-Forwarded-For.
	TrustProxy bool
}

func NewRouter(
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerMFA()
	r.registerProfile()
	r.registerWebhooks()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Gatekeeper Login Service API
//	@version		0.1.0
//	@description	Password login with risk-triggered dual human approval, TOTP second factor and rotating refresh tokens.
//	@description
//	@description				Access tokens are HS256 JWTs. Refresh tokens are opaque and single use.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/gatekeeper
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		LoginService: r.LoginService,
		TrustProxy:   r.TrustProxy,
	}

	r.Mux.HandleFunc("POST /v1/auth/register", h.HandleRegister)
	r.Mux.HandleFunc("POST /v1/auth/login", h.HandleLogin)
	r.Mux.HandleFunc("POST /v1/auth/approvals/{id}", h.HandlePollApproval)
	r.Mux.HandleFunc("POST /v1/auth/verify-mfa", h.HandleVerifyMFA)
	r.Mux.HandleFunc("POST /v1/auth/refresh-token", h.HandleRefresh)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFAService: r.MFAService}

	r.Mux.Handle("POST /v1/mfa/setup",
		httpx.Chain(http.HandlerFunc(h.HandleSetup), httpx.AuthnMiddleware(r.verifier)))
	r.Mux.Handle("POST /v1/mfa/enable",
		httpx.Chain(http.HandlerFunc(h.HandleEnable), httpx.AuthnMiddleware(r.verifier)))
}

func (r *Router) registerProfile() {
	h := &ProfileHandler{
		Store:           r.store,
		ApprovalService: r.ApprovalService,
	}

	r.Mux.Handle("GET /v1/profile",
		httpx.Chain(http.HandlerFunc(h.HandleProfile), httpx.AuthnMiddleware(r.verifier)))
	r.Mux.Handle("GET /v1/profile/approvals",
		httpx.Chain(http.HandlerFunc(h.HandleApprovals), httpx.AuthnMiddleware(r.verifier)))
}

func (r *Router) registerWebhooks() {
	h := &TelegramWebhookHandler{
		ApprovalService: r.ApprovalService,
		Telegram:        r.Telegram,
		Secret:          r.WebhookSecret,
	}
	r.Mux.Handle("POST /v1/webhooks/telegram", h)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))
}
