package apisdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// refreshSkew refreshes the access token this long before it expires.
const refreshSkew = 30 * time.Second

// Session holds a token pair and refreshes it on demand.
type Session struct {
	client *Client

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// NewSession wraps tokens returned by Login, PollApproval or VerifyMFA.
func (c *Client) NewSession(t *TokenResponse) *Session {
	s := &Session{client: c}
	s.store(t)
	return s
}

func (s *Session) store(t *TokenResponse) {
	s.accessToken = t.AccessToken
	s.refreshToken = t.RefreshToken
	s.expiresAt = time.Now().Add(time.Duration(t.ExpiresIn)*time.Second - refreshSkew)
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// Refresh rotates the token pair now.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Session) refreshLocked(ctx context.Context) error {
	if s.refreshToken == "" {
		return fmt.Errorf("access token expired and no refresh token available")
	}

	t, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}
	s.store(t)
	return nil
}

// getValidToken returns an access token, refreshing it if it is about to
// expire.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited.
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if err := s.refreshLocked(ctx); err != nil {
		return "", err
	}
	return s.accessToken, nil
}

func (s *Session) doJSON(ctx context.Context, method, path string, in, out any, expected int) error {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	resp, err := s.client.do(ctx, method, path, body, token)
	if err != nil {
		return err
	}
	return decodeJSON(resp, out, expected)
}

// Profile returns the caller's identity as seen by the server.
func (s *Session) Profile(ctx context.Context) (*ProfileResponse, error) {
	var out ProfileResponse
	if err := s.doJSON(ctx, http.MethodGet, "/v1/profile", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Approvals lists the caller's approval requests, newest first.
func (s *Session) Approvals(ctx context.Context) (*ApprovalListResponse, error) {
	var out ApprovalListResponse
	if err := s.doJSON(ctx, http.MethodGet, "/v1/profile/approvals", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetupMFA starts TOTP enrollment.
func (s *Session) SetupMFA(ctx context.Context) (*MFASetupResponse, error) {
	var out MFASetupResponse
	if err := s.doJSON(ctx, http.MethodPost, "/v1/mfa/setup", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// EnableMFA confirms enrollment with a code from the authenticator.
func (s *Session) EnableMFA(ctx context.Context, code string) error {
	var out MFAEnableResponse
	return s.doJSON(ctx, http.MethodPost, "/v1/mfa/enable", MFAEnableRequest{Code: code}, &out, http.StatusOK)
}
