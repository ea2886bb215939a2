package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
)

const (
	jwtSecretSize = 32
	pepperSize    = 32
)

// InitSigner builds the HS256 signer and verifier for access tokens.
//
// The secret comes from AUTH_JWT_SECRET when set. Otherwise it is read from
// AUTH_JWT_SECRET_FILE, which is generated on first start so that tokens
// survive restarts.
func InitSigner(cfg Config, logger *slog.Logger) (*jwtx.HS256, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		var err error
		secret, err = cryptox.LoadOrCreateSecret(cfg.JWTSecretFile, jwtSecretSize)
		if err != nil {
			return nil, fmt.Errorf("load jwt secret: %w", err)
		}
		logger.Info("jwt secret loaded", "path", cfg.JWTSecretFile)
	} else {
		logger.Info("jwt secret taken from environment")
	}

	signer, err := jwtx.NewHS256([]byte(secret), jwtx.VerifyOptions{
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
	})
	if err != nil {
		return nil, err
	}
	return signer, nil
}

// InitPasswords loads (or creates) the pepper and returns the hasher.
func InitPasswords(cfg Config) (*cryptox.Passwords, error) {
	pepper, err := cryptox.LoadOrCreateSecret(cfg.PepperFile, pepperSize)
	if err != nil {
		return nil, fmt.Errorf("load pepper: %w", err)
	}
	return cryptox.NewPasswords(pepper), nil
}
