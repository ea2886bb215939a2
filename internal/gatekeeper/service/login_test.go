package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

var office = domain.RequestContext{IP: "203.0.113.10", UserAgent: "test-agent/1.0"}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u := f.register(t, "alice", "correct horse")
	require.NotEmpty(t, u.ID)
	require.NotEqual(t, "correct horse", u.PasswordHash)

	_, err := f.Login.Register(ctx, "alice", "another")
	require.ErrorIs(t, err, service.ErrUsernameTaken)

	_, err = f.Login.Register(ctx, "", "pw")
	require.ErrorIs(t, err, service.ErrInvalidUsername)

	_, err = f.Login.Register(ctx, " bob", "pw")
	require.ErrorIs(t, err, service.ErrInvalidUsername)

	_, err = f.Login.Register(ctx, "bob", "")
	require.ErrorIs(t, err, service.ErrWeakPassword)
}

func TestRegisterConcurrentSameUsername(t *testing.T) {
	f := newFixture(t)

	const n = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		ok    int
		taken int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Login.Register(context.Background(), "dave", "pw")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, service.ErrUsernameTaken):
				taken++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, ok)
	require.Equal(t, n-1, taken)
}

func TestLoginPlain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", "correct horse")

	res, err := f.Login.Login(ctx, "alice", "correct horse", office)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeCredentials, res.Outcome)
	require.NotNil(t, res.Tokens)
	require.Equal(t, "Bearer", res.Tokens.TokenType)
	require.Equal(t, int64(service.DefaultAccessTTL.Seconds()), res.Tokens.ExpiresIn)

	claims, err := f.Verifier.Verify(res.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, alice.ID, claims.Subject)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, []string{jwtx.AMRPassword}, claims.AMR)
	require.Empty(t, f.Notifier.Notices())
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "correct horse")

	_, err := f.Login.Login(ctx, "alice", "wrong", office)
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, errUnknown := f.Login.Login(ctx, "mallory", "whatever", office)
	require.ErrorIs(t, errUnknown, service.ErrInvalidCredentials)
	require.Equal(t, err.Error(), errUnknown.Error())
}

func TestLoginMFARequired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.register(t, "bob", "hunter2")
	secret := f.enableMFA(t, bob)

	res, err := f.Login.Login(ctx, "bob", "hunter2", office)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeMFARequired, res.Outcome)
	require.Nil(t, res.Tokens)

	_, err = f.Login.VerifyMFA(ctx, "bob", "000000")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	pair, err := f.Login.VerifyMFA(ctx, "bob", f.code(t, secret))
	require.NoError(t, err)

	claims, err := f.Verifier.Verify(pair.AccessToken)
	require.NoError(t, err)
	require.True(t, claims.HasAMR(jwtx.AMRMFA))
	require.True(t, claims.HasAMR(jwtx.AMRPassword))
}

func TestVerifyMFAWithoutMFAIsUnauthorized(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "correct horse")

	_, err := f.Login.VerifyMFA(context.Background(), "alice", "123456")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = f.Login.VerifyMFA(context.Background(), "nobody", "123456")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestLoginSuspiciousApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	carol := f.register(t, "carol", "pa55word")
	f.Login.Risk = service.WatchlistClassifier{Usernames: []string{"carol"}}

	res, err := f.Login.Login(ctx, "carol", "pa55word", office)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomePendingApproval, res.Outcome)
	require.NotEmpty(t, res.ApprovalID)
	require.Equal(t, f.Clock.Now().Add(service.DefaultApprovalTTL), res.ExpiresAt)
	require.Nil(t, res.Tokens)

	f.Login.Wait()
	notices := f.Notifier.Notices()
	require.Len(t, notices, 1)
	require.Equal(t, res.ApprovalID, notices[0].RequestID)
	require.Equal(t, carol.ID, notices[0].UserID)
	require.Equal(t, "carol", notices[0].Username)
	require.Equal(t, office.IP, notices[0].IP)
	require.Equal(t, "watched_user", notices[0].Reason)

	poll, err := f.Login.PollApproval(ctx, res.ApprovalID, "")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomePendingApproval, poll.Outcome)

	_, err = f.Approvals.RecordApproval(ctx, res.ApprovalID, "approver-1")
	require.NoError(t, err)
	poll, err = f.Login.PollApproval(ctx, res.ApprovalID, "")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomePendingApproval, poll.Outcome, "one approval is not enough")

	_, err = f.Approvals.RecordApproval(ctx, res.ApprovalID, "approver-2")
	require.NoError(t, err)

	poll, err = f.Login.PollApproval(ctx, res.ApprovalID, "")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeCredentials, poll.Outcome)

	claims, err := f.Verifier.Verify(poll.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, carol.ID, claims.Subject)
	require.True(t, claims.HasAMR(jwtx.AMRApproval))

	_, err = f.Login.PollApproval(ctx, res.ApprovalID, "")
	require.ErrorIs(t, err, service.ErrApprovalConsumed)
}

func TestLoginSuspiciousRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "carol", "pa55word")
	f.Login.Risk = service.WatchlistClassifier{IPs: []string{office.IP}}

	res, err := f.Login.Login(ctx, "carol", "pa55word", office)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomePendingApproval, res.Outcome)

	_, err = f.Approvals.RecordApproval(ctx, res.ApprovalID, "approver-1")
	require.NoError(t, err)
	st, err := f.Approvals.RecordRejection(ctx, res.ApprovalID, "approver-2")
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalRejected, st)

	poll, err := f.Login.PollApproval(ctx, res.ApprovalID, "")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeRejected, poll.Outcome)
	require.Nil(t, poll.Tokens)
}

func TestLoginSuspiciousExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "carol", "pa55word")
	f.Login.Risk = service.WatchlistClassifier{Usernames: []string{"carol"}}

	res, err := f.Login.Login(ctx, "carol", "pa55word", office)
	require.NoError(t, err)

	_, err = f.Approvals.RecordApproval(ctx, res.ApprovalID, "approver-1")
	require.NoError(t, err)

	f.Clock.Advance(service.DefaultApprovalTTL + time.Second)

	poll, err := f.Login.PollApproval(ctx, res.ApprovalID, "")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeExpired, poll.Outcome)

	st, err := f.Approvals.RecordApproval(ctx, res.ApprovalID, "approver-2")
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalExpired, st, "late approval must not revive the request")
}

func TestLoginApprovedButNotCollectedExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "carol", "pa55word")
	f.Login.Risk = service.WatchlistClassifier{Usernames: []string{"carol"}}

	res, err := f.Login.Login(ctx, "carol", "pa55word", office)
	require.NoError(t, err)
	f.approveTwice(t, res.ApprovalID)

	f.Clock.Advance(7 * 24 * time.Hour)

	poll, err := f.Login.PollApproval(ctx, res.ApprovalID, "")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeExpired, poll.Outcome)
	require.Nil(t, poll.Tokens)

	u, err := f.Store.Users().GetUserByUsername(ctx, "carol")
	require.NoError(t, err)
	require.Nil(t, u.RefreshTokenHash, "no refresh token was issued")
}

func TestLoginNotificationFailureDoesNotFailLogin(t *testing.T) {
	f := newFixture(t)
	f.register(t, "carol", "pa55word")
	f.Login.Risk = service.WatchlistClassifier{Usernames: []string{"carol"}}
	f.Notifier.err = errors.New("telegram down")

	res, err := f.Login.Login(context.Background(), "carol", "pa55word", office)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomePendingApproval, res.Outcome)

	f.Login.Wait()
	require.Len(t, f.Notifier.Notices(), 1)
}

func TestLoginWithoutNotifier(t *testing.T) {
	f := newFixture(t)
	f.register(t, "carol", "pa55word")
	f.Login.Risk = service.WatchlistClassifier{Usernames: []string{"carol"}}
	f.Login.Notifier = nil

	res, err := f.Login.Login(context.Background(), "carol", "pa55word", office)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomePendingApproval, res.Outcome)
}

func TestRiskTakesPrecedenceOverMFA(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.register(t, "bob", "hunter2")
	f.enableMFA(t, bob)
	f.Login.Risk = service.WatchlistClassifier{Usernames: []string{"bob"}}

	res, err := f.Login.Login(ctx, "bob", "hunter2", office)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomePendingApproval, res.Outcome)

	f.approveTwice(t, res.ApprovalID)

	poll, err := f.Login.PollApproval(ctx, res.ApprovalID, "")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeCredentials, poll.Outcome, "approval alone satisfies the default policy")
}

func TestApprovalAndMFAPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.register(t, "bob", "hunter2")
	secret := f.enableMFA(t, bob)
	f.Login.Risk = service.WatchlistClassifier{Usernames: []string{"bob"}}
	f.Login.Policy = service.PolicyApprovalAndMFA

	res, err := f.Login.Login(ctx, "bob", "hunter2", office)
	require.NoError(t, err)
	f.approveTwice(t, res.ApprovalID)

	poll, err := f.Login.PollApproval(ctx, res.ApprovalID, "")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeMFARequired, poll.Outcome)

	_, err = f.Login.PollApproval(ctx, res.ApprovalID, "000000")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	poll, err = f.Login.PollApproval(ctx, res.ApprovalID, f.code(t, secret))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeCredentials, poll.Outcome)

	claims, err := f.Verifier.Verify(poll.Tokens.AccessToken)
	require.NoError(t, err)
	require.True(t, claims.HasAMR(jwtx.AMRApproval))
	require.True(t, claims.HasAMR(jwtx.AMRMFA))
}

func TestPollApprovalConcurrentIssuesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "carol", "pa55word")
	f.Login.Risk = service.WatchlistClassifier{Usernames: []string{"carol"}}

	res, err := f.Login.Login(ctx, "carol", "pa55word", office)
	require.NoError(t, err)
	f.approveTwice(t, res.ApprovalID)

	const n = 6
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		issued   int
		consumed int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			poll, err := f.Login.PollApproval(ctx, res.ApprovalID, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && poll.Outcome == domain.OutcomeCredentials:
				issued++
			case errors.Is(err, service.ErrApprovalConsumed):
				consumed++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, issued)
	require.Equal(t, n-1, consumed)
}

func TestPollApprovalUnknownID(t *testing.T) {
	f := newFixture(t)

	_, err := f.Login.PollApproval(context.Background(), "not-a-uuid", "")
	require.ErrorIs(t, err, service.ErrApprovalNotFound)

	_, err = f.Login.PollApproval(context.Background(), "6f1c7c1e-5d43-4f0e-9d8a-7f1f6a9e0b11", "")
	require.ErrorIs(t, err, service.ErrApprovalNotFound)
}

func TestLoginRefreshRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "correct horse")

	res, err := f.Login.Login(ctx, "alice", "correct horse", office)
	require.NoError(t, err)

	f.Clock.Advance(time.Minute)
	next, err := f.Login.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, res.Tokens.RefreshToken, next.RefreshToken)

	_, err = f.Login.Refresh(ctx, res.Tokens.RefreshToken)
	require.ErrorIs(t, err, service.ErrInvalidRefresh)
}

func TestParseApprovalPolicy(t *testing.T) {
	p, err := service.ParseApprovalPolicy("")
	require.NoError(t, err)
	require.Equal(t, service.PolicyApprovalOnly, p)

	p, err = service.ParseApprovalPolicy(" Approval_And_MFA ")
	require.NoError(t, err)
	require.Equal(t, service.PolicyApprovalAndMFA, p)

	_, err = service.ParseApprovalPolicy("always")
	require.Error(t, err)
}
