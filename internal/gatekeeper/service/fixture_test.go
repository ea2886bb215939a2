package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// clock is a settable time source shared by every service in a fixture.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingNotifier captures notices and can be told to fail.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []domain.ApprovalNotice
	err     error
}

func (n *recordingNotifier) NotifyApprovers(_ context.Context, notice domain.ApprovalNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func (n *recordingNotifier) Notices() []domain.ApprovalNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.ApprovalNotice(nil), n.notices...)
}

type fixture struct {
	Store     store.Store
	Clock     *clock
	Notifier  *recordingNotifier
	Verifier  *jwtx.HS256
	Approvals *service.ApprovalService
	MFA       *service.MFAService
	Tokens    *service.TokenService
	Login     *service.LoginService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	clk := newClock()

	hs, err := jwtx.NewHS256(testSecret, jwtx.VerifyOptions{
		Issuer:   "gatekeeper",
		Audience: []string{"gatekeeper-api"},
		Now:      clk.Now,
	})
	require.NoError(t, err)

	f := &fixture{
		Store:    st,
		Clock:    clk,
		Notifier: &recordingNotifier{},
		Verifier: hs,
	}
	f.Approvals = &service.ApprovalService{Store: st, Now: clk.Now}
	f.MFA = &service.MFAService{Store: st, Issuer: "gatekeeper", Skew: 1, Now: clk.Now}
	f.Tokens = &service.TokenService{
		Signer:   hs,
		Store:    st,
		Issuer:   "gatekeeper",
		Audience: []string{"gatekeeper-api"},
		Now:      clk.Now,
	}
	f.Login = &service.LoginService{
		Store:     st,
		Passwords: cryptox.NewPasswords("test-pepper"),
		Risk:      service.NoRisk{},
		Approvals: f.Approvals,
		MFA:       f.MFA,
		Tokens:    f.Tokens,
		Notifier:  f.Notifier,
		Now:       clk.Now,
	}
	return f
}

func (f *fixture) register(t *testing.T, username, password string) domain.User {
	t.Helper()
	u, err := f.Login.Register(context.Background(), username, password)
	require.NoError(t, err)
	return u
}

// enableMFA enrolls and confirms TOTP for u and returns the secret.
func (f *fixture) enableMFA(t *testing.T, u domain.User) string {
	t.Helper()
	ctx := context.Background()

	enr, err := f.MFA.Enroll(ctx, u.ID)
	require.NoError(t, err)
	require.NoError(t, f.MFA.Confirm(ctx, u.ID, f.code(t, enr.ManualKey)))
	return enr.ManualKey
}

func (f *fixture) code(t *testing.T, secret string) string {
	t.Helper()
	c, err := totp.GenerateCode(secret, f.Clock.Now())
	require.NoError(t, err)
	return c
}

// approveTwice records two distinct approvals for id.
func (f *fixture) approveTwice(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()

	_, err := f.Approvals.RecordApproval(ctx, id, "approver-1")
	require.NoError(t, err)
	st, err := f.Approvals.RecordApproval(ctx, id, "approver-2")
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalApproved, st)
}
