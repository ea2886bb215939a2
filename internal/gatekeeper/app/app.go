package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/http"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/notify"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	gkredis "github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store/drivers/redis"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application holds the wired gatekeeper service.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db        store.Store
	signer    *jwtx.HS256
	passwords *cryptox.Passwords
	notifier  notify.Notifier
	telegram  *notify.Telegram

	tokenService        *service.TokenService
	approvalService     *service.ApprovalService
	mfaService          *service.MFAService
	loginService        *service.LoginService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with every dependency initialized.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gatekeeper",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	signer, err := InitSigner(cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize token signer: %w", err)
	}
	app.signer = signer

	passwords, err := InitPasswords(cfg)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize password hashing: %w", err)
	}
	app.passwords = passwords

	app.initNotifier()
	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Handler exposes the HTTP handler, mostly for tests.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("gatekeeper starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"store", app.cfg.StoreDriver,
		"approval_policy", app.cfg.ApprovalPolicy,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains HTTP traffic and in-flight notifications, then releases
// the notifier and the store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gatekeeper...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	drained := make(chan struct{})
	go func() {
		app.loginService.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		app.logger.Warn("approver notifications still in flight at shutdown")
	}

	var errs []error
	if err := app.notifier.Close(); err != nil {
		app.logger.Error("error closing notifier", "error", err)
		errs = append(errs, err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing store", "error", err)
		errs = append(errs, err)
	}

	app.logger.Info("gatekeeper stopped")
	return errors.Join(errs...)
}

// initDatabase opens the configured store and applies migrations.
func (app *Application) initDatabase() error {
	var (
		db  store.Store
		err error
	)

	switch app.cfg.StoreDriver {
	case StoreRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		db, err = gkredis.Open(ctx, gkredis.Options{
			Addr:     app.cfg.RedisAddr,
			Password: app.cfg.RedisPassword,
			DB:       app.cfg.RedisDB,
			Prefix:   app.cfg.RedisPrefix,
		})
	default:
		db, err = sqlite.NewStore(fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", app.cfg.DatabaseFile))
	}
	if err != nil {
		return fmt.Errorf("failed to initialize %s store: %w", app.cfg.StoreDriver, err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("store ready", "driver", app.cfg.StoreDriver)
	return nil
}

// initNotifier fans approval notices out to every configured channel.
func (app *Application) initNotifier() {
	var notifiers notify.Multi

	if app.cfg.TelegramBotToken != "" {
		app.telegram = notify.NewTelegram(app.cfg.TelegramBotToken, app.cfg.TelegramChatID, app.cfg.TelegramAPIURL)
		notifiers = append(notifiers, app.telegram)
		app.logger.Info("telegram approver notifications enabled", "chat_id", app.cfg.TelegramChatID)
	}
	if len(app.cfg.KafkaBrokers) > 0 {
		notifiers = append(notifiers, notify.NewKafka(app.cfg.KafkaBrokers, app.cfg.KafkaTopic))
		app.logger.Info("kafka approval events enabled", "topic", app.cfg.KafkaTopic)
	}

	switch len(notifiers) {
	case 0:
		app.logger.Warn("no approver notifier configured, suspicious logins will wait until they expire")
		app.notifier = notify.Nop{}
	case 1:
		app.notifier = notifiers[0]
	default:
		app.notifier = notifiers
	}
}

// initServices wires the business logic.
func (app *Application) initServices() error {
	policy, err := service.ParseApprovalPolicy(app.cfg.ApprovalPolicy)
	if err != nil {
		return err
	}

	app.tokenService = &service.TokenService{
		Signer:     app.signer,
		Store:      app.db,
		Issuer:     app.cfg.Issuer,
		Audience:   app.cfg.Audience,
		AccessTTL:  app.cfg.AccessTTL,
		RefreshTTL: app.cfg.RefreshTTL,
	}
	app.approvalService = &service.ApprovalService{
		Store: app.db,
		TTL:   app.cfg.ApprovalTTL,
	}
	app.mfaService = &service.MFAService{
		Store:  app.db,
		Issuer: app.cfg.Issuer,
		Skew:   uint(app.cfg.TOTPSkew),
	}

	risk := service.ChainClassifier{service.NoRisk{}}
	if len(app.cfg.RiskWatchUsers) > 0 || len(app.cfg.RiskWatchIPs) > 0 {
		risk = append(risk, service.WatchlistClassifier{
			Usernames: app.cfg.RiskWatchUsers,
			IPs:       app.cfg.RiskWatchIPs,
		})
		app.logger.Info("watchlist risk classifier enabled",
			"users", len(app.cfg.RiskWatchUsers),
			"ips", len(app.cfg.RiskWatchIPs),
		)
	}

	app.loginService = &service.LoginService{
		Store:         app.db,
		Passwords:     app.passwords,
		Risk:          risk,
		Approvals:     app.approvalService,
		MFA:           app.mfaService,
		Tokens:        app.tokenService,
		Notifier:      app.notifier,
		Policy:        policy,
		NotifyTimeout: app.cfg.NotifyTimeout,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	return nil
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.signer,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.LoginService = app.loginService
	router.ApprovalService = app.approvalService
	router.MFAService = app.mfaService
	router.Telegram = app.telegram
	router.WebhookSecret = app.cfg.TelegramWebhookSecret
	router.TrustProxy = app.cfg.TrustProxy
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
