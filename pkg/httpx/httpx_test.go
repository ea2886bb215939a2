package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mw("outer"), mw("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	require.Equal(t, "10.0.0.7", httpx.ClientIP(r, false))
	require.Equal(t, "203.0.113.9", httpx.ClientIP(r, true))

	r.Header.Del("X-Forwarded-For")
	r.Header.Set("X-Real-IP", "198.51.100.2")
	require.Equal(t, "198.51.100.2", httpx.ClientIP(r, true))
}

func TestAuthnMiddleware(t *testing.T) {
	signer, err := jwtx.NewHS256([]byte("0123456789abcdef0123456789abcdef"), jwtx.VerifyOptions{Issuer: "gatekeeper"})
	require.NoError(t, err)

	protected := httpx.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := httpx.UserIDFromContext(r.Context())
		require.True(t, ok)
		claims, ok := httpx.ClaimsFromContext(r.Context())
		require.True(t, ok)
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"user_id": id, "username": claims.Username})
	}), httpx.AuthnMiddleware(signer))

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		protected.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		tok, err := signer.Sign(jwtx.NewAccessClaims(jwtx.AccessParams{
			Subject:  "user-1",
			Username: "alice",
			Issuer:   "gatekeeper",
			TTL:      time.Minute,
			Now:      time.Now(),
		}))
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		protected.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `"user_id":"user-1"`)
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	})
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Username string `json:"username"`
	}

	decode := func(raw string) (body, error) {
		var b body
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw))
		err := httpx.DecodeJSON(httptest.NewRecorder(), r, &b)
		return b, err
	}

	b, err := decode(`{"username":"alice"}`)
	require.NoError(t, err)
	require.Equal(t, "alice", b.Username)

	_, err = decode(``)
	require.Error(t, err)

	_, err = decode(`{"username":"alice","admin":true}`)
	require.Error(t, err)

	_, err = decode(`{"username":"a"}{"username":"b"}`)
	require.Error(t, err)
}
