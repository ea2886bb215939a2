package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenService mints access tokens and owns the user's single rotating
// refresh token.
type TokenService struct {
	Signer     jwtx.Signer
	Store      store.Store
	Issuer     string
	Audience   []string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *TokenService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return DefaultAccessTTL
}

func (s *TokenService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return DefaultRefreshTTL
}

// IssueAccessToken signs a short lived token for user.
func (s *TokenService) IssueAccessToken(user domain.User, amr []string) (string, error) {
	claims := jwtx.NewAccessClaims(jwtx.AccessParams{
		Subject:  user.ID,
		Username: user.Username,
		AMR:      amr,
		Issuer:   s.Issuer,
		Audience: s.Audience,
		TTL:      s.accessTTL(),
		Now:      s.now(),
	})

	tok, err := s.Signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return tok, nil
}

// IssueRefreshToken mints an unstored 512-bit opaque token.
func (s *TokenService) IssueRefreshToken() (domain.RefreshToken, error) {
	value, err := cryptox.GenerateToken(cryptox.TokenSize512)
	if err != nil {
		return domain.RefreshToken{}, err
	}
	return domain.RefreshToken{
		Value:     value,
		Hash:      cryptox.FingerprintToken(value),
		ExpiresAt: s.now().Add(s.refreshTTL()),
	}, nil
}

// Rotate makes rt the user's only valid refresh token.
func (s *TokenService) Rotate(ctx context.Context, userID string, rt domain.RefreshToken) error {
	if err := s.Store.Users().SetRefreshToken(ctx, userID, rt.Hash, rt.ExpiresAt, s.now()); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// Redeem exchanges presented for next in one atomic step. It fails with
// ErrInvalidRefresh unless presented is the user's current, unexpired
// token; of several concurrent redeemers at most one succeeds.
func (s *TokenService) Redeem(ctx context.Context, presented string, next domain.RefreshToken) (domain.User, error) {
	if presented == "" {
		return domain.User{}, ErrInvalidRefresh
	}

	u, err := s.Store.Users().RotateRefreshToken(ctx,
		cryptox.FingerprintToken(presented), next.Hash, next.ExpiresAt, s.now())
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConflict) {
		return domain.User{}, ErrInvalidRefresh
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	return u, nil
}

// IssueCredentials signs an access token and installs a fresh refresh
// token for user.
func (s *TokenService) IssueCredentials(ctx context.Context, user domain.User, amr []string) (*domain.TokenPair, error) {
	access, err := s.IssueAccessToken(user, amr)
	if err != nil {
		return nil, err
	}

	rt, err := s.IssueRefreshToken()
	if err != nil {
		return nil, err
	}
	if err := s.Rotate(ctx, user.ID, rt); err != nil {
		return nil, err
	}

	slogx.FromContext(ctx).Info("credentials issued", "user_id", user.ID, "amr", amr)
	return s.pair(access, rt), nil
}

// Refresh redeems presented and returns a new pair. The new access token
// carries only the "pwd" method since the original AMR is not persisted.
func (s *TokenService) Refresh(ctx context.Context, presented string) (*domain.TokenPair, error) {
	rt, err := s.IssueRefreshToken()
	if err != nil {
		return nil, err
	}

	user, err := s.Redeem(ctx, presented, rt)
	if err != nil {
		slogx.FromContext(ctx).Info("refresh token rejected")
		return nil, err
	}

	access, err := s.IssueAccessToken(user, []string{jwtx.AMRPassword})
	if err != nil {
		return nil, err
	}

	slogx.FromContext(ctx).Info("refresh token rotated", "user_id", user.ID)
	return s.pair(access, rt), nil
}

func (s *TokenService) pair(access string, rt domain.RefreshToken) *domain.TokenPair {
	return &domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     rt.Value,
		TokenType:        "Bearer",
		ExpiresIn:        int64(s.accessTTL().Seconds()),
		RefreshExpiresAt: rt.ExpiresAt,
	}
}
