package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod     = 30
	totpSecretSize = 20
	qrCodeSize     = 256
)

// MFAService owns TOTP enrollment, confirmation and verification. The only
// persistent state is the user's secret and enablement timestamp.
type MFAService struct {
	Store  store.Store
	Issuer string

	// Skew is how many 30s steps either side of now are accepted.
	Skew uint
	Now  func() time.Time
}

func (s *MFAService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Enroll generates a provisional secret for the user. Enrolling again
// before confirming replaces the previous secret.
func (s *MFAService) Enroll(ctx context.Context, userID string) (domain.MFAEnrollment, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return domain.MFAEnrollment{}, err
	}
	if u.MFAEnabledAt != nil {
		return domain.MFAEnrollment{}, ErrMFAAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: u.Username,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("generate totp key: %w", err)
	}

	qr, err := renderQRCode(key)
	if err != nil {
		return domain.MFAEnrollment{}, err
	}

	err = s.Store.Users().SetMFASecret(ctx, u.ID, key.Secret(), s.now())
	switch {
	case errors.Is(err, store.ErrConflict):
		// Enabled concurrently by another request.
		return domain.MFAEnrollment{}, ErrMFAAlreadyEnabled
	case errors.Is(err, store.ErrNotFound):
		return domain.MFAEnrollment{}, ErrUserNotFound
	case err != nil:
		return domain.MFAEnrollment{}, fmt.Errorf("store mfa secret: %w", err)
	}

	slogx.FromContext(ctx).Info("mfa enrollment started", "user_id", u.ID)

	return domain.MFAEnrollment{
		ManualKey: key.Secret(),
		QRPayload: key.URL(),
		QRCodePNG: qr,
		Issuer:    s.Issuer,
		Account:   u.Username,
	}, nil
}

// Confirm enables MFA once the user proves possession of the provisional
// secret. A wrong code leaves the secret in place for another attempt.
func (s *MFAService) Confirm(ctx context.Context, userID, code string) error {
	u, err := s.user(ctx, userID)
	if err != nil {
		return err
	}
	if u.MFAEnabledAt != nil {
		return ErrMFAAlreadyEnabled
	}
	if u.MFASecret == nil || *u.MFASecret == "" {
		return ErrMFANotEnrolled
	}

	if !s.validate(code, *u.MFASecret) {
		return ErrInvalidTOTPCode
	}

	// The write only lands if the secret we just checked is still the stored
	// one, so a concurrent re-enroll cannot be enabled by a stale code.
	err = s.Store.Users().EnableMFA(ctx, u.ID, *u.MFASecret, s.now())
	switch {
	case errors.Is(err, store.ErrConflict):
		latest, lerr := s.user(ctx, userID)
		if lerr == nil && latest.MFAEnabledAt != nil {
			return ErrMFAAlreadyEnabled
		}
		return ErrInvalidTOTPCode
	case err != nil:
		return fmt.Errorf("enable mfa: %w", err)
	}

	slogx.FromContext(ctx).Info("mfa enabled", "user_id", u.ID)
	return nil
}

// Verify checks code against the user's active secret. It has no side
// effects; replay within the validity window is not tracked.
func (s *MFAService) Verify(ctx context.Context, userID, code string) (bool, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return false, err
	}
	return s.VerifyUser(u, code)
}

// VerifyUser is Verify for a user the caller already loaded.
func (s *MFAService) VerifyUser(u domain.User, code string) (bool, error) {
	if !u.MFAEnabled() {
		return false, ErrMFANotConfigured
	}
	return s.validate(code, *u.MFASecret), nil
}

func (s *MFAService) validate(code, secret string) bool {
	ok, err := totp.ValidateCustom(code, secret, s.now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      s.Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func (s *MFAService) user(ctx context.Context, userID string) (domain.User, error) {
	if _, err := idx.Parse(userID); err != nil {
		return domain.User{}, ErrUserNotFound
	}
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

func renderQRCode(key *otp.Key) (string, error) {
	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return "", fmt.Errorf("render qr code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
