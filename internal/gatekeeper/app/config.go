package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/joho/godotenv"
)

const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

type Config struct {
	Issuer        string        // Issuer claim for tokens (default: gatekeeper)
	Audience      []string      // Audience claim for access tokens (default: gatekeeper-api)
	JWTSecret     string        // Optional: HS256 secret, at least 32 bytes. Takes precedence over JWTSecretFile
	JWTSecretFile string        // Path of the generated HS256 secret (default: ./jwt.secret)
	AccessTTL     time.Duration // Access token lifetime (default: 15m)
	RefreshTTL    time.Duration // Refresh token lifetime (default: 7 days)

	ApprovalTTL    time.Duration // How long an approval request stays pending (default: 5m)
	ApprovalPolicy string        // approval_only or approval_and_mfa (default: approval_only)
	TOTPSkew       int           // Accepted 30s steps either side of now (default: 1)

	StoreDriver   string // sqlite or redis (default: sqlite)
	DatabaseFile  string // Path to SQLite database file (default: ./gatekeeper.db)
	RedisAddr     string // Redis address (default: localhost:6379)
	RedisPassword string
	RedisDB       int
	RedisPrefix   string // Key prefix (default: gatekeeper:)
	PepperFile    string // Path to file containing pepper for password hashing (default: ./pepper)

	RiskWatchUsers []string // Usernames whose logins always need approval
	RiskWatchIPs   []string // Client IPs whose logins always need approval
	TrustProxy     bool     // Take client IPs from X-Forwarded-For

	TelegramBotToken      string
	TelegramChatID        string
	TelegramAPIURL        string // Optional: Bot API base URL override
	TelegramWebhookSecret string // Optional: expected X-Telegram-Bot-Api-Secret-Token
	KafkaBrokers          []string
	KafkaTopic            string        // (default: gatekeeper.approvals)
	NotifyTimeout         time.Duration // Bound on one approver notification (default: 10s)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1m)
}

// LoadConfig reads the configuration from the environment. A .env file in
// the working directory is loaded first; variables already set win.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		Issuer:        getEnvOrDefault("AUTH_ISSUER", "gatekeeper"),
		Audience:      getEnvListOrDefault("AUTH_AUDIENCE", []string{"gatekeeper-api"}),
		JWTSecret:     os.Getenv("AUTH_JWT_SECRET"),
		JWTSecretFile: getEnvOrDefault("AUTH_JWT_SECRET_FILE", "jwt.secret"),
		AccessTTL:     getEnvDurationOrDefault("AUTH_ACCESS_TTL", service.DefaultAccessTTL),
		RefreshTTL:    getEnvDurationOrDefault("AUTH_REFRESH_TTL", service.DefaultRefreshTTL),

		ApprovalTTL:    getEnvDurationOrDefault("AUTH_APPROVAL_TTL", service.DefaultApprovalTTL),
		ApprovalPolicy: getEnvOrDefault("AUTH_APPROVAL_POLICY", string(service.PolicyApprovalOnly)),
		TOTPSkew:       getEnvIntOrDefault("AUTH_TOTP_SKEW", 1),

		StoreDriver:   strings.ToLower(getEnvOrDefault("AUTH_STORE_DRIVER", StoreSQLite)),
		DatabaseFile:  getEnvOrDefault("AUTH_DATABASE_FILE", "gatekeeper.db"),
		RedisAddr:     getEnvOrDefault("AUTH_REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("AUTH_REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("AUTH_REDIS_DB", 0),
		RedisPrefix:   getEnvOrDefault("AUTH_REDIS_PREFIX", "gatekeeper:"),
		PepperFile:    getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),

		RiskWatchUsers: getEnvListOrDefault("AUTH_RISK_WATCH_USERS", nil),
		RiskWatchIPs:   getEnvListOrDefault("AUTH_RISK_WATCH_IPS", nil),
		TrustProxy:     getEnvBoolOrDefault("AUTH_TRUST_PROXY", false),

		TelegramBotToken:      os.Getenv("AUTH_TELEGRAM_BOT_TOKEN"),
		TelegramChatID:        os.Getenv("AUTH_TELEGRAM_CHAT_ID"),
		TelegramAPIURL:        os.Getenv("AUTH_TELEGRAM_API_URL"),
		TelegramWebhookSecret: os.Getenv("AUTH_TELEGRAM_WEBHOOK_SECRET"),
		KafkaBrokers:          getEnvListOrDefault("AUTH_KAFKA_BROKERS", nil),
		KafkaTopic:            getEnvOrDefault("AUTH_KAFKA_TOPIC", "gatekeeper.approvals"),
		NotifyTimeout:         getEnvDurationOrDefault("AUTH_NOTIFY_TIMEOUT", 10*time.Second),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Minute),
	}

	return cfg, cfg.Validate()
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	var errs []error

	if c.Issuer == "" {
		errs = append(errs, errors.New("AUTH_ISSUER must not be empty"))
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("AUTH_JWT_SECRET must be at least 32 bytes"))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.ApprovalTTL <= 0 {
		errs = append(errs, errors.New("token and approval TTLs must be positive"))
	}
	if _, err := service.ParseApprovalPolicy(c.ApprovalPolicy); err != nil {
		errs = append(errs, err)
	}
	if c.TOTPSkew < 0 || c.TOTPSkew > 10 {
		errs = append(errs, fmt.Errorf("AUTH_TOTP_SKEW must be between 0 and 10, got %d", c.TOTPSkew))
	}

	switch c.StoreDriver {
	case StoreSQLite:
		if c.DatabaseFile == "" {
			errs = append(errs, errors.New("AUTH_DATABASE_FILE must not be empty"))
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("AUTH_REDIS_ADDR must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_STORE_DRIVER %q", c.StoreDriver))
	}

	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		errs = append(errs, errors.New("AUTH_TELEGRAM_BOT_TOKEN and AUTH_TELEGRAM_CHAT_ID must be set together"))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("AUTH_KAFKA_TOPIC must not be empty when brokers are set"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault accepts Go durations ("90s") or bare integers,
// which are taken as minutes.
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}
	return defaultValue
}

// getEnvListOrDefault splits a comma separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
