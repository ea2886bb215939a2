package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEffectiveStatus(t *testing.T) {
	now := time.Now()
	req := ApprovalRequest{Status: ApprovalPending, ExpiresAt: now.Add(time.Minute)}

	require.Equal(t, ApprovalPending, req.EffectiveStatus(now))
	require.Equal(t, ApprovalPending, req.EffectiveStatus(now.Add(time.Minute)), "the deadline itself is still inside the window")
	require.Equal(t, ApprovalExpired, req.EffectiveStatus(now.Add(time.Minute+time.Millisecond)))
	require.Equal(t, ApprovalExpired, req.EffectiveStatus(now.Add(time.Hour)))

	// An approval nobody collected lapses with the window.
	req.Status = ApprovalApproved
	require.Equal(t, ApprovalApproved, req.EffectiveStatus(now))
	require.Equal(t, ApprovalExpired, req.EffectiveStatus(now.Add(time.Hour)))

	// Collected approvals and rejections keep their stored status.
	consumed := now
	req.ConsumedAt = &consumed
	require.Equal(t, ApprovalApproved, req.EffectiveStatus(now.Add(time.Hour)))
	req.ConsumedAt = nil
	req.Status = ApprovalRejected
	require.Equal(t, ApprovalRejected, req.EffectiveStatus(now.Add(time.Hour)))
}

func TestHasApproverAndCount(t *testing.T) {
	at := time.Now()
	req := ApprovalRequest{Slot1: ApprovalSlot{ApprovedAt: &at, Approver: "tg:1"}}

	require.True(t, req.HasApprover("tg:1"))
	require.False(t, req.HasApprover("tg:2"))
	require.False(t, req.HasApprover(""))
	require.Equal(t, 1, req.ApprovalCount())

	req.Slot2 = ApprovalSlot{ApprovedAt: &at}
	require.Equal(t, 2, req.ApprovalCount())
}

func TestStatusHelpers(t *testing.T) {
	require.False(t, ApprovalPending.Terminal())
	for _, s := range []ApprovalStatus{ApprovalApproved, ApprovalRejected, ApprovalExpired} {
		require.True(t, s.Terminal())
		require.True(t, s.Valid())
	}
	require.False(t, ApprovalStatus("maybe").Valid())
}

func TestUserMFAEnabled(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXP"
	now := time.Now()

	require.False(t, User{}.MFAEnabled())
	require.False(t, User{MFASecret: &secret}.MFAEnabled())
	require.True(t, User{MFASecret: &secret, MFAEnabledAt: &now}.MFAEnabled())
}
