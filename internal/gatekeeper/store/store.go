package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict means a conditional write found the row in a different
	// state than the caller expected. Callers re-read and decide again.
	ErrConflict = errors.New("store: conflict")
)

// Store is the root data access interface implemented by the sqlite and
// redis drivers. Every multi-party coordination point (approval slots,
// refresh redemption, MFA enablement) is a single conditional write here so
// that any number of service replicas can share one store.
type Store interface {
	Users() Users
	ApprovalRequests() ApprovalRequests

	ApplyMigrations() error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts u. Returns ErrAlreadyExists when the username is
	// taken; exactly one of several concurrent creators wins.
	CreateUser(ctx context.Context, u domain.User) error

	// SetMFASecret stores a provisional TOTP secret. Returns ErrConflict if
	// MFA is already enabled for the user.
	SetMFASecret(ctx context.Context, userID, secret string, now time.Time) error

	// EnableMFA turns MFA on, but only while the stored secret is still
	// secret and MFA is not yet enabled. Otherwise ErrConflict.
	EnableMFA(ctx context.Context, userID, secret string, now time.Time) error

	// SetRefreshToken overwrites the user's single refresh token.
	SetRefreshToken(ctx context.Context, userID, hash string, expiresAt, now time.Time) error

	// RotateRefreshToken replaces the refresh token whose fingerprint is
	// presentedHash with nextHash, provided it has not expired at now. The
	// check and the write are one atomic step. Returns the user as stored
	// after the write, carrying nextHash, or ErrNotFound when nothing
	// matched.
	RotateRefreshToken(ctx context.Context, presentedHash, nextHash string, nextExpiresAt, now time.Time) (domain.User, error)

	// ClearExpiredRefreshTokens drops refresh tokens that expired before now.
	ClearExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

type ApprovalRequests interface {
	CreateApprovalRequest(ctx context.Context, r domain.ApprovalRequest) error
	GetApprovalRequest(ctx context.Context, id string) (domain.ApprovalRequest, error)

	// ListApprovalRequestsByUser returns the user's requests, newest first.
	ListApprovalRequestsByUser(ctx context.Context, userID string, limit int) ([]domain.ApprovalRequest, error)

	// CompareAndSwapApprovalRequest writes next if the stored version still
	// equals next.Version, and bumps the stored version by one. Returns
	// ErrConflict when another writer got there first.
	CompareAndSwapApprovalRequest(ctx context.Context, next domain.ApprovalRequest) error

	// ExpirePendingApprovalRequests rewrites pending requests whose expiry
	// is not after now to expired. Readers never depend on this having run.
	ExpirePendingApprovalRequests(ctx context.Context, now time.Time) (int64, error)
}
