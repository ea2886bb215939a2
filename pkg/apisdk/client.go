package apisdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Client talks to the public endpoints and creates Sessions.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, username, password string) (*RegisterResponse, error) {
	var out RegisterResponse
	err := c.postJSON(ctx, "/v1/auth/register", RegisterRequest{Username: username, Password: password},
		&out, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Login submits a password. The response status says what happens next.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var out LoginResponse
	err := c.postJSON(ctx, "/v1/auth/login", LoginRequest{Username: username, Password: password},
		&out, http.StatusOK, http.StatusAccepted)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PollApproval checks a held login. code is only needed when the server
// answers StatusMFARequired for an approved request.
func (c *Client) PollApproval(ctx context.Context, approvalID, code string) (*LoginResponse, error) {
	var out LoginResponse
	err := c.postJSON(ctx, "/v1/auth/approvals/"+approvalID, PollApprovalRequest{Code: code},
		&out, http.StatusOK, http.StatusAccepted, http.StatusForbidden, http.StatusGone)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitForApproval polls every interval until the request leaves the
// pending state or ctx ends.
func (c *Client) WaitForApproval(ctx context.Context, approvalID, code string, interval time.Duration) (*LoginResponse, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res, err := c.PollApproval(ctx, approvalID, code)
		if err != nil || res.Status != StatusPendingApproval {
			return res, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// VerifyMFA completes a login that answered StatusMFARequired.
func (c *Client) VerifyMFA(ctx context.Context, username, code string) (*TokenResponse, error) {
	var out TokenResponse
	err := c.postJSON(ctx, "/v1/auth/verify-mfa", VerifyMFARequest{Username: username, Code: code},
		&out, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh rotates a refresh token. The presented token stops working.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	var out TokenResponse
	err := c.postJSON(ctx, "/v1/auth/refresh-token", RefreshRequest{RefreshToken: refreshToken},
		&out, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLiveness checks if the service is alive.
func (c *Client) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.getJSON(ctx, "/livez", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetReadiness checks if the service can reach its store.
func (c *Client) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.getJSON(ctx, "/readyz", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
