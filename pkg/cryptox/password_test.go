package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordsHashFormat(t *testing.T) {
	p := NewPasswords("pepper")

	hash, err := p.Hash("password123")
	require.NoError(t, err)

	parts := strings.Split(hash, "$")
	require.Len(t, parts, 6)
	require.Equal(t, "argon2id", parts[1])
	require.Equal(t, "v=19", parts[2])
	require.Equal(t, "m=19456,t=2,p=1", parts[3])
	require.NotEmpty(t, parts[4])
	require.NotEmpty(t, parts[5])
}

func TestPasswordsRoundTrip(t *testing.T) {
	p := NewPasswords("pepper")

	tests := []struct {
		name     string
		password string
	}{
		{"simple", "password123"},
		{"symbols", "P@ssw0rd!#$%^&*()"},
		{"long", strings.Repeat("a", 100)},
		{"empty", ""},
		{"unicode", "пароль🔒密码"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := p.Hash(tt.password)
			require.NoError(t, err)
			require.NoError(t, p.Verify(tt.password, hash))
			require.ErrorIs(t, p.Verify(tt.password+"x", hash), ErrPasswordMismatch)
		})
	}
}

func TestPasswordsUniqueSalts(t *testing.T) {
	p := NewPasswords("")

	a, err := p.Hash("same")
	require.NoError(t, err)
	b, err := p.Hash("same")
	require.NoError(t, err)

	require.NotEqual(t, a, b)
	require.NoError(t, p.Verify("same", a))
	require.NoError(t, p.Verify("same", b))
}

func TestPasswordsPepperMatters(t *testing.T) {
	hash, err := NewPasswords("one").Hash("secret")
	require.NoError(t, err)

	require.NoError(t, NewPasswords("one").Verify("secret", hash))
	require.ErrorIs(t, NewPasswords("two").Verify("secret", hash), ErrPasswordMismatch)
}

func TestPasswordsLegacyBcrypt(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	p := NewPasswords("ignored-for-bcrypt")
	require.NoError(t, p.Verify("hunter2", string(legacy)))
	require.ErrorIs(t, p.Verify("hunter3", string(legacy)), ErrPasswordMismatch)
}

func TestPasswordsRejectsMalformedHashes(t *testing.T) {
	p := NewPasswords("")

	for name, hash := range map[string]string{
		"empty":           "",
		"plaintext":       "hunter2",
		"missing parts":   "$argon2id$v=19$m=19456",
		"bad parameters":  "$argon2id$v=19$invalid$c2FsdA$aGFzaA",
		"bad salt":        "$argon2id$v=19$m=19456,t=2,p=1$!!!$aGFzaA",
		"bad digest":      "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$!!!",
		"wrong version":   "$argon2id$v=18$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		"unknown algo":    "$scrypt$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
	} {
		t.Run(name, func(t *testing.T) {
			err := p.Verify("anything", hash)
			require.Error(t, err)
			require.NotErrorIs(t, err, ErrPasswordMismatch)
		})
	}
}
