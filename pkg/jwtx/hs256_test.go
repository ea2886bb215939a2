package jwtx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newHS256(t *testing.T, opts jwtx.VerifyOptions) *jwtx.HS256 {
	t.Helper()
	h, err := jwtx.NewHS256(testSecret, opts)
	require.NoError(t, err)
	return h
}

func claimsAt(now time.Time, ttl time.Duration) jwtx.Claims {
	return jwtx.NewAccessClaims(jwtx.AccessParams{
		Subject:  "user-1",
		Username: "alice",
		AMR:      []string{jwtx.AMRPassword},
		Issuer:   "gatekeeper",
		Audience: []string{"api"},
		TTL:      ttl,
		Now:      now,
	})
}

func TestHS256RoundTrip(t *testing.T) {
	h := newHS256(t, jwtx.VerifyOptions{Issuer: "gatekeeper", Audience: []string{"api"}})
	require.Equal(t, "HS256", h.Alg())

	tok, err := h.Sign(claimsAt(time.Now(), time.Minute))
	require.NoError(t, err)
	require.Len(t, strings.Split(tok, "."), 3)

	got, err := h.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "user-1", got.Subject)
	require.Equal(t, "alice", got.Username)
	require.Equal(t, []string{jwtx.AMRPassword}, got.AMR)
}

func TestHS256RejectsShortSecret(t *testing.T) {
	_, err := jwtx.NewHS256([]byte("short"), jwtx.VerifyOptions{})
	require.ErrorIs(t, err, jwtx.ErrWeakSecret)
}

func TestHS256Failures(t *testing.T) {
	h := newHS256(t, jwtx.VerifyOptions{Issuer: "gatekeeper", Audience: []string{"api"}})
	valid, err := h.Sign(claimsAt(time.Now(), time.Minute))
	require.NoError(t, err)

	t.Run("malformed", func(t *testing.T) {
		_, err := h.Verify("not.a.jwt")
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})

	t.Run("other secret", func(t *testing.T) {
		other, err := jwtx.NewHS256([]byte("ffffffffffffffffffffffffffffffff"), jwtx.VerifyOptions{})
		require.NoError(t, err)
		_, err = other.Verify(valid)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("tampered payload", func(t *testing.T) {
		parts := strings.Split(valid, ".")
		forged, err := h.Sign(jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "mallory"}})
		require.NoError(t, err)
		parts[1] = strings.Split(forged, ".")[1]
		_, err = h.Verify(strings.Join(parts, "."))
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("alg none", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claimsAt(time.Now(), time.Minute)).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = h.Verify(tok)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("expired", func(t *testing.T) {
		tok, err := h.Sign(claimsAt(time.Now().Add(-time.Hour), time.Minute))
		require.NoError(t, err)
		_, err = h.Verify(tok)
		require.ErrorIs(t, err, jwtx.ErrExpired)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		strict := newHS256(t, jwtx.VerifyOptions{Issuer: "someone-else"})
		_, err := strict.Verify(valid)
		require.ErrorIs(t, err, jwtx.ErrIssuer)
	})

	t.Run("wrong audience", func(t *testing.T) {
		strict := newHS256(t, jwtx.VerifyOptions{Audience: []string{"billing"}})
		_, err := strict.Verify(valid)
		require.ErrorIs(t, err, jwtx.ErrAudience)
	})
}

func TestHS256InjectedClock(t *testing.T) {
	issued := time.Unix(1_700_000_000, 0).UTC()
	now := issued
	h := newHS256(t, jwtx.VerifyOptions{Now: func() time.Time { return now }})

	tok, err := h.Sign(claimsAt(issued, 15*time.Minute))
	require.NoError(t, err)

	_, err = h.Verify(tok)
	require.NoError(t, err)

	now = issued.Add(16 * time.Minute)
	_, err = h.Verify(tok)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}
