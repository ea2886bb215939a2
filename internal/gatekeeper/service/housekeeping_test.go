package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestHousekeepingSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ar := newApproval(t, f)
	u, err := f.Store.Users().GetUserByID(ctx, ar.UserID)
	require.NoError(t, err)
	_, err = f.Tokens.IssueCredentials(ctx, u, []string{jwtx.AMRPassword})
	require.NoError(t, err)

	hk := service.NewHousekeepingService(f.Store, slogx.Discard(), time.Hour)
	hk.Now = f.Clock.Now

	hk.Sweep(ctx)
	stored, err := f.Store.ApprovalRequests().GetApprovalRequest(ctx, ar.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalPending, stored.Status)

	f.Clock.Advance(service.DefaultRefreshTTL + time.Second)
	hk.Sweep(ctx)

	stored, err = f.Store.ApprovalRequests().GetApprovalRequest(ctx, ar.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalExpired, stored.Status)

	u, err = f.Store.Users().GetUserByID(ctx, ar.UserID)
	require.NoError(t, err)
	require.Nil(t, u.RefreshTokenHash)
}

func TestHousekeepingStartStop(t *testing.T) {
	f := newFixture(t)

	hk := service.NewHousekeepingService(f.Store, slogx.Discard(), 0)
	require.Equal(t, time.Minute, hk.Interval)

	hk.Start()
	hk.Stop()
}
