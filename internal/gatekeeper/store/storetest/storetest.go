// Package storetest holds the behavioural suite every store driver must
// pass. Drivers call Run from their own tests with a factory returning a
// fresh, migrated store.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store ready for use.
type Factory func(t *testing.T) store.Store

// Run executes the full suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGetUser", func(t *testing.T) { testCreateAndGetUser(t, newStore(t)) })
	t.Run("DuplicateUsername", func(t *testing.T) { testDuplicateUsername(t, newStore(t)) })
	t.Run("ConcurrentRegistration", func(t *testing.T) { testConcurrentRegistration(t, newStore(t)) })
	t.Run("MFASecretLifecycle", func(t *testing.T) { testMFASecretLifecycle(t, newStore(t)) })
	t.Run("RefreshRotation", func(t *testing.T) { testRefreshRotation(t, newStore(t)) })
	t.Run("ConcurrentRefreshRotation", func(t *testing.T) { testConcurrentRefreshRotation(t, newStore(t)) })
	t.Run("ClearExpiredRefreshTokens", func(t *testing.T) { testClearExpiredRefreshTokens(t, newStore(t)) })
	t.Run("ApprovalCreateGetList", func(t *testing.T) { testApprovalCreateGetList(t, newStore(t)) })
	t.Run("ApprovalCompareAndSwap", func(t *testing.T) { testApprovalCompareAndSwap(t, newStore(t)) })
	t.Run("ExpirePendingApprovals", func(t *testing.T) { testExpirePendingApprovals(t, newStore(t)) })
	t.Run("ApprovalRejectsUnknownStatus", func(t *testing.T) { testApprovalRejectsUnknownStatus(t, newStore(t)) })
	t.Run("MigrationsIdempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ApplyMigrations())
		require.NoError(t, s.Ping(context.Background()))
	})
}

// Epoch is the fixed clock used by seeded records.
var Epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// SeedUser inserts a user with the given id and username.
func SeedUser(t *testing.T, s store.Store, id, username string) domain.User {
	t.Helper()
	u := domain.User{
		ID:           id,
		Username:     username,
		PasswordHash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		CreatedAt:    Epoch,
		UpdatedAt:    Epoch,
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

func testCreateAndGetUser(t *testing.T, s store.Store) {
	ctx := context.Background()
	want := SeedUser(t, s, "01J000000000000000000000A1", "alice")

	byID, err := s.Users().GetUserByID(ctx, want.ID)
	require.NoError(t, err)
	require.Equal(t, want.Username, byID.Username)
	require.Equal(t, want.PasswordHash, byID.PasswordHash)
	require.True(t, want.CreatedAt.Equal(byID.CreatedAt))
	require.Nil(t, byID.MFAEnabledAt)
	require.Nil(t, byID.MFASecret)
	require.Nil(t, byID.RefreshTokenHash)

	byName, err := s.Users().GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, want.ID, byName.ID)

	_, err = s.Users().GetUserByUsername(ctx, "Alice")
	require.ErrorIs(t, err, store.ErrNotFound, "usernames are case sensitive")

	_, err = s.Users().GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testDuplicateUsername(t *testing.T, s store.Store) {
	SeedUser(t, s, "01J000000000000000000000A1", "alice")

	err := s.Users().CreateUser(context.Background(), domain.User{
		ID:           "01J000000000000000000000A2",
		Username:     "alice",
		PasswordHash: "x",
		CreatedAt:    Epoch,
		UpdatedAt:    Epoch,
	})
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func testConcurrentRegistration(t *testing.T, s store.Store) {
	const n = 8
	var (
		wg      sync.WaitGroup
		created atomic.Int32
		dupes   atomic.Int32
	)

	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.Users().CreateUser(context.Background(), domain.User{
				ID:           uuid.NewString(),
				Username:     "dave",
				PasswordHash: "x",
				CreatedAt:    Epoch.Add(time.Duration(i) * time.Millisecond),
				UpdatedAt:    Epoch,
			})
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, store.ErrAlreadyExists):
				dupes.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, created.Load())
	require.EqualValues(t, n-1, dupes.Load())
}

func testMFASecretLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := SeedUser(t, s, "01J000000000000000000000A1", "alice")
	users := s.Users()

	require.ErrorIs(t, users.SetMFASecret(ctx, "missing", "S1", Epoch), store.ErrNotFound)

	require.NoError(t, users.SetMFASecret(ctx, u.ID, "SECRETONE", Epoch))
	// Re-enrolling before enabling overwrites.
	require.NoError(t, users.SetMFASecret(ctx, u.ID, "SECRETTWO", Epoch))

	// Enabling with a stale secret loses.
	require.ErrorIs(t, users.EnableMFA(ctx, u.ID, "SECRETONE", Epoch), store.ErrConflict)

	got, err := users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Nil(t, got.MFAEnabledAt)
	require.Equal(t, "SECRETTWO", *got.MFASecret)

	require.NoError(t, users.EnableMFA(ctx, u.ID, "SECRETTWO", Epoch.Add(time.Second)))

	got, err = users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.MFAEnabledAt)
	require.True(t, got.MFAEnabled())

	// Once enabled the secret is frozen.
	require.ErrorIs(t, users.SetMFASecret(ctx, u.ID, "SECRETTHREE", Epoch), store.ErrConflict)
	require.ErrorIs(t, users.EnableMFA(ctx, u.ID, "SECRETTWO", Epoch), store.ErrConflict)
}

func testRefreshRotation(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := SeedUser(t, s, "01J000000000000000000000A1", "alice")
	users := s.Users()
	now := time.Now().UTC()

	require.ErrorIs(t, users.SetRefreshToken(ctx, "missing", "h0", now.Add(time.Hour), now), store.ErrNotFound)
	require.NoError(t, users.SetRefreshToken(ctx, u.ID, "h1", now.Add(time.Hour), now))

	rotated, err := users.RotateRefreshToken(ctx, "h1", "h2", now.Add(2*time.Hour), now)
	require.NoError(t, err)
	require.Equal(t, u.ID, rotated.ID)
	require.Equal(t, "h2", *rotated.RefreshTokenHash)
	require.WithinDuration(t, now.Add(2*time.Hour), *rotated.RefreshTokenExpiresAt, time.Millisecond, "the returned row reflects the write")

	// The old value is gone for good.
	_, err = users.RotateRefreshToken(ctx, "h1", "h3", now.Add(2*time.Hour), now)
	require.ErrorIs(t, err, store.ErrNotFound)

	// Expired tokens cannot be redeemed, even with the right value.
	_, err = users.RotateRefreshToken(ctx, "h2", "h3", now.Add(3*time.Hour), now.Add(2*time.Hour))
	require.ErrorIs(t, err, store.ErrNotFound)

	// Issuing a new token supersedes the current one.
	require.NoError(t, users.SetRefreshToken(ctx, u.ID, "h4", now.Add(time.Hour), now))
	_, err = users.RotateRefreshToken(ctx, "h2", "h5", now.Add(time.Hour), now)
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "h4", *got.RefreshTokenHash)
	require.WithinDuration(t, now.Add(time.Hour), *got.RefreshTokenExpiresAt, time.Millisecond)
}

func testConcurrentRefreshRotation(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := SeedUser(t, s, "01J000000000000000000000A1", "alice")
	now := time.Now().UTC()
	require.NoError(t, s.Users().SetRefreshToken(ctx, u.ID, "shared", now.Add(time.Hour), now))

	const n = 8
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Users().RotateRefreshToken(ctx, "shared", uuid.NewString(), now.Add(time.Hour), now)
			if err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, wins.Load())
}

func testClearExpiredRefreshTokens(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	stale := SeedUser(t, s, "01J000000000000000000000A1", "alice")
	fresh := SeedUser(t, s, "01J000000000000000000000A2", "bob")

	require.NoError(t, s.Users().SetRefreshToken(ctx, stale.ID, "old", now.Add(-time.Minute), now.Add(-time.Hour)))
	require.NoError(t, s.Users().SetRefreshToken(ctx, fresh.ID, "new", now.Add(time.Hour), now))

	n, err := s.Users().ClearExpiredRefreshTokens(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	got, err := s.Users().GetUserByID(ctx, stale.ID)
	require.NoError(t, err)
	require.Nil(t, got.RefreshTokenHash)

	got, err = s.Users().GetUserByID(ctx, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, "new", *got.RefreshTokenHash)
}

// NewPendingApproval builds a pending request for userID created at created.
func NewPendingApproval(userID string, created time.Time, ttl time.Duration) domain.ApprovalRequest {
	return domain.ApprovalRequest{
		ID:               uuid.NewString(),
		UserID:           userID,
		Status:           domain.ApprovalPending,
		CreatedAt:        created,
		ExpiresAt:        created.Add(ttl),
		RequestIP:        "203.0.113.7",
		RequestUserAgent: "curl/8",
	}
}

func testApprovalCreateGetList(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := SeedUser(t, s, "01J000000000000000000000A1", "alice")
	repo := s.ApprovalRequests()

	first := NewPendingApproval(u.ID, Epoch, 5*time.Minute)
	second := NewPendingApproval(u.ID, Epoch.Add(time.Minute), 5*time.Minute)
	require.NoError(t, repo.CreateApprovalRequest(ctx, first))
	require.NoError(t, repo.CreateApprovalRequest(ctx, second))

	got, err := repo.GetApprovalRequest(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalPending, got.Status)
	require.Equal(t, u.ID, got.UserID)
	require.True(t, first.ExpiresAt.Equal(got.ExpiresAt))
	require.Equal(t, "203.0.113.7", got.RequestIP)
	require.Equal(t, "curl/8", got.RequestUserAgent)
	require.False(t, got.Slot1.Filled())
	require.False(t, got.Slot2.Filled())
	require.Nil(t, got.ConsumedAt)

	list, err := repo.ListApprovalRequestsByUser(ctx, u.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, second.ID, list[0].ID, "newest first")

	list, err = repo.ListApprovalRequestsByUser(ctx, u.ID, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = repo.GetApprovalRequest(ctx, uuid.NewString())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testApprovalCompareAndSwap(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := SeedUser(t, s, "01J000000000000000000000A1", "alice")
	repo := s.ApprovalRequests()

	req := NewPendingApproval(u.ID, Epoch, 5*time.Minute)
	require.NoError(t, repo.CreateApprovalRequest(ctx, req))

	cur, err := repo.GetApprovalRequest(ctx, req.ID)
	require.NoError(t, err)

	at := Epoch.Add(time.Minute)
	next := cur
	next.Slot1 = domain.ApprovalSlot{ApprovedAt: &at, Approver: "tg:1"}
	require.NoError(t, repo.CompareAndSwapApprovalRequest(ctx, next))

	// A writer holding the old version loses.
	stale := cur
	stale.Status = domain.ApprovalRejected
	require.ErrorIs(t, repo.CompareAndSwapApprovalRequest(ctx, stale), store.ErrConflict)

	got, err := repo.GetApprovalRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, cur.Version+1, got.Version)
	require.Equal(t, domain.ApprovalPending, got.Status)
	require.True(t, got.Slot1.Filled())
	require.Equal(t, "tg:1", got.Slot1.Approver)

	missing := NewPendingApproval(u.ID, Epoch, time.Minute)
	require.ErrorIs(t, repo.CompareAndSwapApprovalRequest(ctx, missing), store.ErrNotFound)
}

func testExpirePendingApprovals(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := SeedUser(t, s, "01J000000000000000000000A1", "alice")
	repo := s.ApprovalRequests()

	old := NewPendingApproval(u.ID, Epoch, 5*time.Minute)
	live := NewPendingApproval(u.ID, Epoch.Add(10*time.Minute), 5*time.Minute)
	edge := NewPendingApproval(u.ID, Epoch.Add(7*time.Minute), 5*time.Minute)
	done := NewPendingApproval(u.ID, Epoch, 5*time.Minute)
	done.Status = domain.ApprovalRejected
	for _, r := range []domain.ApprovalRequest{old, live, edge, done} {
		require.NoError(t, repo.CreateApprovalRequest(ctx, r))
	}

	n, err := repo.ExpirePendingApprovalRequests(ctx, Epoch.Add(12*time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	got, err := repo.GetApprovalRequest(ctx, old.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalExpired, got.Status)

	got, err = repo.GetApprovalRequest(ctx, live.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalPending, got.Status)

	// Expiring exactly at the sweep instant is not yet past the deadline.
	got, err = repo.GetApprovalRequest(ctx, edge.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalPending, got.Status)

	got, err = repo.GetApprovalRequest(ctx, done.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalRejected, got.Status)

	// Second pass finds nothing new.
	n, err = repo.ExpirePendingApprovalRequests(ctx, Epoch.Add(12*time.Minute))
	require.NoError(t, err)
	require.Zero(t, n)
}

func testApprovalRejectsUnknownStatus(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := SeedUser(t, s, "01J000000000000000000000A1", "alice")
	repo := s.ApprovalRequests()

	bogus := NewPendingApproval(u.ID, Epoch, 5*time.Minute)
	bogus.Status = "maybe"
	require.Error(t, repo.CreateApprovalRequest(ctx, bogus))

	ok := NewPendingApproval(u.ID, Epoch, 5*time.Minute)
	require.NoError(t, repo.CreateApprovalRequest(ctx, ok))

	ok.Status = "maybe"
	require.Error(t, repo.CompareAndSwapApprovalRequest(ctx, ok))

	got, err := repo.GetApprovalRequest(ctx, ok.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalPending, got.Status)
}
