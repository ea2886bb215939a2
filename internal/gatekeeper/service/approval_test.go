package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/stretchr/testify/require"
)

func newApproval(t *testing.T, f *fixture) domain.ApprovalRequest {
	t.Helper()
	u := f.register(t, "carol", "pa55word")
	ar, err := f.Approvals.Create(context.Background(), u.ID, office)
	require.NoError(t, err)
	return ar
}

func TestApprovalCreate(t *testing.T) {
	f := newFixture(t)
	ar := newApproval(t, f)

	require.Equal(t, domain.ApprovalPending, ar.Status)
	require.Equal(t, f.Clock.Now().Add(service.DefaultApprovalTTL), ar.ExpiresAt)
	require.Equal(t, office.IP, ar.RequestIP)

	got, err := f.Approvals.Get(context.Background(), ar.ID)
	require.NoError(t, err)
	require.Equal(t, ar.ID, got.ID)
	require.False(t, got.Slot1.Filled())
}

func TestApprovalDuplicateApproverIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ar := newApproval(t, f)

	for range 3 {
		st, err := f.Approvals.RecordApproval(ctx, ar.ID, "approver-1")
		require.NoError(t, err)
		require.Equal(t, domain.ApprovalPending, st)
	}

	got, err := f.Approvals.Get(ctx, ar.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.ApprovalCount())
	require.Equal(t, "approver-1", got.Slot1.Approver)
}

func TestApprovalTerminalStatesAreSticky(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ar := newApproval(t, f)

	st, err := f.Approvals.RecordRejection(ctx, ar.ID, "approver-1")
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalRejected, st)

	st, err = f.Approvals.RecordApproval(ctx, ar.ID, "approver-2")
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalRejected, st)

	st, err = f.Approvals.RecordRejection(ctx, ar.ID, "approver-2")
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalRejected, st)

	ar2, err := f.Approvals.Create(ctx, ar.UserID, office)
	require.NoError(t, err)
	f.approveTwice(t, ar2.ID)

	st, err = f.Approvals.RecordRejection(ctx, ar2.ID, "approver-3")
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalApproved, st, "a late veto does not undo an approval")
}

func TestApprovalExpiryIsEffectiveWithoutSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ar := newApproval(t, f)

	f.Clock.Advance(service.DefaultApprovalTTL)
	st, err := f.Approvals.GetStatus(ctx, ar.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalPending, st, "still pending at the deadline")

	f.Clock.Advance(time.Millisecond)
	st, err = f.Approvals.GetStatus(ctx, ar.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalExpired, st)

	st, err = f.Approvals.RecordRejection(ctx, ar.ID, "approver-1")
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalExpired, st)
}

func TestApprovalConcurrentDistinctApprovers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ar := newApproval(t, f)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, who := range []string{"approver-1", "approver-2"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Approvals.RecordApproval(ctx, ar.ID, who)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := f.Approvals.Get(ctx, ar.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalApproved, got.Status)
	require.Equal(t, 2, got.ApprovalCount())
	require.NotEqual(t, got.Slot1.Approver, got.Slot2.Approver)
}

func TestApprovalConsume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ar := newApproval(t, f)

	_, err := f.Approvals.Consume(ctx, ar.ID)
	require.ErrorIs(t, err, service.ErrApprovalNotApproved, "pending requests cannot be consumed")

	f.approveTwice(t, ar.ID)

	got, err := f.Approvals.Consume(ctx, ar.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ConsumedAt)

	_, err = f.Approvals.Consume(ctx, ar.ID)
	require.ErrorIs(t, err, service.ErrApprovalConsumed)
}

func TestApprovalUncollectedApprovalExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ar := newApproval(t, f)
	f.approveTwice(t, ar.ID)

	f.Clock.Advance(7 * 24 * time.Hour)

	st, err := f.Approvals.GetStatus(ctx, ar.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalExpired, st)

	_, err = f.Approvals.Consume(ctx, ar.ID)
	require.ErrorIs(t, err, service.ErrApprovalNotApproved)

	st, err = f.Approvals.RecordApproval(ctx, ar.ID, "approver-3")
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalExpired, st)
}

func TestApprovalConsumedApprovalStaysApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ar := newApproval(t, f)
	f.approveTwice(t, ar.ID)

	_, err := f.Approvals.Consume(ctx, ar.ID)
	require.NoError(t, err)

	f.Clock.Advance(service.DefaultApprovalTTL + time.Second)

	st, err := f.Approvals.GetStatus(ctx, ar.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalApproved, st)

	_, err = f.Approvals.Consume(ctx, ar.ID)
	require.ErrorIs(t, err, service.ErrApprovalConsumed)
}

func TestApprovalRejectionRacesApprovals(t *testing.T) {
	for i := range 20 {
		f := newFixture(t)
		ctx := context.Background()
		ar := newApproval(t, f)

		signals := []func() (domain.ApprovalStatus, error){
			func() (domain.ApprovalStatus, error) { return f.Approvals.RecordApproval(ctx, ar.ID, "approver-1") },
			func() (domain.ApprovalStatus, error) { return f.Approvals.RecordApproval(ctx, ar.ID, "approver-2") },
			func() (domain.ApprovalStatus, error) { return f.Approvals.RecordRejection(ctx, ar.ID, "approver-3") },
		}

		var wg sync.WaitGroup
		errs := make(chan error, len(signals))
		start := make(chan struct{})
		for _, signal := range signals {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := signal()
				errs <- err
			}()
		}
		close(start)
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := f.Approvals.Get(ctx, ar.ID)
		require.NoError(t, err)
		switch got.Status {
		case domain.ApprovalRejected:
			require.Less(t, got.ApprovalCount(), 2, "round %d: a rejected request never holds both approvals", i)
		case domain.ApprovalApproved:
			require.Equal(t, 2, got.ApprovalCount(), "round %d", i)
			require.NotEqual(t, got.Slot1.Approver, got.Slot2.Approver, "round %d", i)
		default:
			t.Fatalf("round %d: unexpected status %q", i, got.Status)
		}
	}
}

func TestApprovalListForUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := newApproval(t, f)

	f.Clock.Advance(service.DefaultApprovalTTL + time.Second)
	second, err := f.Approvals.Create(ctx, first.UserID, office)
	require.NoError(t, err)

	list, err := f.Approvals.ListForUser(ctx, first.UserID, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, second.ID, list[0].ID)
	require.Equal(t, domain.ApprovalPending, list[0].Status)
	require.Equal(t, domain.ApprovalExpired, list[1].Status)
}

func TestApprovalUnknown(t *testing.T) {
	f := newFixture(t)

	_, err := f.Approvals.RecordApproval(context.Background(), "9b2b8a57-0f7e-4a3e-8a39-2c7c1b0a0c55", "approver-1")
	require.ErrorIs(t, err, service.ErrApprovalNotFound)
}
