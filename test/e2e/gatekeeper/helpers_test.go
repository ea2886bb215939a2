//go:build e2e

package gatekeeper_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/notify"
	"github.com/aussiebroadwan/gatekeeper/pkg/apisdk"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Container setup and shared helpers for the gatekeeper end-to-end tests.
 * The approver side is simulated by posting Telegram callback updates
 * straight to the webhook; no bot token is configured so nothing leaves
 * the container.
 */

const (
	testImageName = "gatekeeper-test:latest"

	webhookSecret = "e2e-webhook-secret"
	watchedUser   = "watched"
	testPassword  = "correct horse battery staple"
)

// TestMain builds the Docker image once before all tests and removes it
// afterwards.
func TestMain(m *testing.M) {
	fmt.Fprintf(os.Stdout, "Building gatekeeper Docker image...")

	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up gatekeeper Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	cmd := exec.CommandContext(context.Background(), "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/gatekeeper/Dockerfile",
		"../../../")
	cmd.Stdout = os.Stdout
	return cmd.Run()
}

func cleanupDockerImage() {
	cmd := exec.CommandContext(context.Background(), "docker", "rmi", "-f", testImageName)
	_ = cmd.Run()
}

// setupContainer starts gatekeeper with extra environment on top of the
// defaults and returns its base URL.
func setupContainer(t *testing.T, extraEnv map[string]string) string {
	t.Helper()
	ctx := context.Background()

	env := map[string]string{
		"AUTH_ISSUER":                  "gatekeeper",
		"AUTH_RISK_WATCH_USERS":        watchedUser,
		"AUTH_TELEGRAM_WEBHOOK_SECRET": webhookSecret,
		"ENV":                          "test",
		"LOG_LEVEL":                    "info",
		"LOG_FORMAT":                   "json",
	}
	for k, v := range extraEnv {
		env[k] = v
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        testImageName,
			ExposedPorts: []string{"8080/tcp"},
			Env:          env,
			WaitingFor: wait.ForHTTP("/livez").
				WithPort("8080/tcp").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	return fmt.Sprintf("http://%s:%s", host, mappedPort.Port())
}

// registerUser creates username with the shared test password.
func registerUser(t *testing.T, client *apisdk.Client, username string) {
	t.Helper()
	reg, err := client.Register(t.Context(), username, testPassword)
	require.NoError(t, err, "Register should succeed")
	require.Equal(t, username, reg.Username)
}

// pressButton posts a Telegram callback update as approver from and
// returns the HTTP status.
func pressButton(t *testing.T, baseURL string, action notify.Action, approvalID string, from int64) int {
	t.Helper()

	raw, err := json.Marshal(map[string]any{
		"update_id": from,
		"callback_query": map[string]any{
			"id":   fmt.Sprintf("cb-%d", from),
			"data": notify.CallbackData(action, approvalID),
			"from": map[string]any{"id": from, "username": fmt.Sprintf("approver%d", from)},
		},
	})
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost,
		baseURL+"/v1/webhooks/telegram", bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", webhookSecret)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

// assertAuthenticated verifies a login result carries a usable token pair.
func assertAuthenticated(t *testing.T, res *apisdk.LoginResponse) {
	t.Helper()
	require.NotNil(t, res)
	require.Equal(t, apisdk.StatusAuthenticated, res.Status)
	require.NotEmpty(t, res.AccessToken, "Access token should not be empty")
	require.NotEmpty(t, res.RefreshToken, "Refresh token should not be empty")
	require.Equal(t, "Bearer", res.TokenType)
}

// assertHealthy verifies a health check response is OK.
func assertHealthy(t *testing.T, health *apisdk.HealthResponse, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, health)
	require.Equal(t, "ok", health.Status)
}
