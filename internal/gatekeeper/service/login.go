package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

const (
	maxUsernameLength     = 64
	defaultNotifyTimeout  = 10 * time.Second
	dummyPasswordForTimer = "gatekeeper-timing-equaliser"
)

// ApprovalPolicy decides what happens when a flagged login belongs to a
// user with MFA enabled.
type ApprovalPolicy string

const (
	// PolicyApprovalOnly issues credentials as soon as approval completes.
	PolicyApprovalOnly ApprovalPolicy = "approval_only"

	// PolicyApprovalAndMFA additionally requires a TOTP code on the poll
	// that collects credentials.
	PolicyApprovalAndMFA ApprovalPolicy = "approval_and_mfa"
)

// ParseApprovalPolicy maps a config value to a policy. Empty means
// PolicyApprovalOnly.
func ParseApprovalPolicy(v string) (ApprovalPolicy, error) {
	switch p := ApprovalPolicy(strings.ToLower(strings.TrimSpace(v))); p {
	case "", PolicyApprovalOnly:
		return PolicyApprovalOnly, nil
	case PolicyApprovalAndMFA:
		return p, nil
	default:
		return "", fmt.Errorf("unknown approval policy %q", v)
	}
}

// PasswordHasher is the slow salted hash used for stored passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) error
}

// ApprovalNotifier tells human approvers about a pending request.
type ApprovalNotifier interface {
	NotifyApprovers(ctx context.Context, notice domain.ApprovalNotice) error
}

// LoginService orchestrates a login attempt across the password check, the
// risk classifier, the approval workflow, the MFA gate and token issuance.
// Every call is synchronous; the approval gate is observed by polling.
type LoginService struct {
	Store     store.Store
	Passwords PasswordHasher
	Risk      RiskClassifier
	Approvals *ApprovalService
	MFA       *MFAService
	Tokens    *TokenService
	Notifier  ApprovalNotifier
	Policy    ApprovalPolicy

	// NotifyTimeout bounds one background notification.
	NotifyTimeout time.Duration

	Now func() time.Time

	dummyOnce sync.Once
	dummyHash string
	inflight  sync.WaitGroup
}

func (s *LoginService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Register creates a user. The username is stored exactly as given.
func (s *LoginService) Register(ctx context.Context, username, password string) (domain.User, error) {
	if username == "" || username != strings.TrimSpace(username) ||
		utf8.RuneCountInString(username) > maxUsernameLength {
		return domain.User{}, ErrInvalidUsername
	}
	if password == "" {
		return domain.User{}, ErrWeakPassword
	}

	hash, err := s.Passwords.Hash(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	u := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.Store.Users().CreateUser(ctx, u)
	if errors.Is(err, store.ErrAlreadyExists) {
		return domain.User{}, ErrUsernameTaken
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	slogx.FromContext(ctx).Info("user registered", "user_id", u.ID)
	return u, nil
}

// Login checks the password and routes the attempt through at most one
// extra gate: human approval when the classifier flags it, MFA when the
// user has it enabled, otherwise straight to credentials.
func (s *LoginService) Login(
	ctx context.Context,
	username, password string,
	req domain.RequestContext,
) (*domain.LoginResult, error) {
	l := slogx.FromContext(ctx)

	// 1. Password
	user, err := s.authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	// 2. Risk
	if verdict := s.risk().Classify(ctx, user, req); verdict.Suspicious {
		ar, err := s.Approvals.Create(ctx, user.ID, req)
		if err != nil {
			return nil, err
		}

		s.notifyAsync(ctx, domain.ApprovalNotice{
			RequestID: ar.ID,
			UserID:    user.ID,
			Username:  user.Username,
			IP:        req.IP,
			UserAgent: req.UserAgent,
			Reason:    verdict.Reason,
			CreatedAt: ar.CreatedAt,
			ExpiresAt: ar.ExpiresAt,
		})

		l.Info("login held for approval", "user_id", user.ID, "approval_id", ar.ID, "reason", verdict.Reason)
		return &domain.LoginResult{
			Outcome:    domain.OutcomePendingApproval,
			ApprovalID: ar.ID,
			ExpiresAt:  ar.ExpiresAt,
		}, nil
	}

	// 3. MFA
	if user.MFAEnabled() {
		l.Info("login requires mfa", "user_id", user.ID)
		return &domain.LoginResult{Outcome: domain.OutcomeMFARequired}, nil
	}

	// 4. Credentials
	pair, err := s.Tokens.IssueCredentials(ctx, user, []string{jwtx.AMRPassword})
	if err != nil {
		return nil, err
	}
	return &domain.LoginResult{Outcome: domain.OutcomeCredentials, Tokens: pair}, nil
}

// PollApproval reports the state of a held login and, once approved,
// issues credentials exactly once. mfaCode is only consulted under
// PolicyApprovalAndMFA for users with MFA enabled.
func (s *LoginService) PollApproval(ctx context.Context, approvalID, mfaCode string) (*domain.LoginResult, error) {
	ar, err := s.Approvals.Get(ctx, approvalID)
	if err != nil {
		return nil, err
	}

	switch ar.Status {
	case domain.ApprovalPending:
		return &domain.LoginResult{
			Outcome:    domain.OutcomePendingApproval,
			ApprovalID: ar.ID,
			ExpiresAt:  ar.ExpiresAt,
		}, nil
	case domain.ApprovalRejected:
		return &domain.LoginResult{Outcome: domain.OutcomeRejected, ApprovalID: ar.ID}, nil
	case domain.ApprovalExpired:
		return &domain.LoginResult{Outcome: domain.OutcomeExpired, ApprovalID: ar.ID}, nil
	}

	if ar.ConsumedAt != nil {
		return nil, ErrApprovalConsumed
	}

	user, err := s.Store.Users().GetUserByID(ctx, ar.UserID)
	if err != nil {
		return nil, fmt.Errorf("load approved user: %w", err)
	}

	amr := []string{jwtx.AMRPassword, jwtx.AMRApproval}
	if s.Policy == PolicyApprovalAndMFA && user.MFAEnabled() {
		if mfaCode == "" {
			return &domain.LoginResult{Outcome: domain.OutcomeMFARequired, ApprovalID: ar.ID}, nil
		}
		ok, err := s.MFA.VerifyUser(user, mfaCode)
		if err != nil || !ok {
			return nil, ErrInvalidCredentials
		}
		amr = append(amr, jwtx.AMRMFA)
	}

	if _, err := s.Approvals.Consume(ctx, ar.ID); err != nil {
		if errors.Is(err, ErrApprovalNotApproved) {
			// The window closed between the read and the consume.
			return &domain.LoginResult{Outcome: domain.OutcomeExpired, ApprovalID: ar.ID}, nil
		}
		return nil, err
	}

	pair, err := s.Tokens.IssueCredentials(ctx, user, amr)
	if err != nil {
		return nil, err
	}
	return &domain.LoginResult{Outcome: domain.OutcomeCredentials, Tokens: pair, ApprovalID: ar.ID}, nil
}

// VerifyMFA completes a login that answered mfa_required.
func (s *LoginService) VerifyMFA(ctx context.Context, username, code string) (*domain.TokenPair, error) {
	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	ok, err := s.MFA.VerifyUser(user, code)
	if err != nil || !ok {
		slogx.FromContext(ctx).Info("mfa verification failed", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	return s.Tokens.IssueCredentials(ctx, user, []string{jwtx.AMRPassword, jwtx.AMRMFA})
}

// Refresh rotates a refresh token.
func (s *LoginService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	return s.Tokens.Refresh(ctx, refreshToken)
}

// Wait blocks until background notifications have finished.
func (s *LoginService) Wait() {
	s.inflight.Wait()
}

// authenticate returns the user for a correct username/password pair and
// ErrInvalidCredentials otherwise. Unknown usernames still pay for one hash
// verification so response time does not reveal which usernames exist.
func (s *LoginService) authenticate(ctx context.Context, username, password string) (domain.User, error) {
	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		_ = s.Passwords.Verify(password, s.dummy())
		return domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}

	if err := s.Passwords.Verify(password, user.PasswordHash); err != nil {
		slogx.FromContext(ctx).Info("password rejected", "user_id", user.ID)
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *LoginService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.Passwords.Hash(dummyPasswordForTimer)
	})
	return s.dummyHash
}

func (s *LoginService) risk() RiskClassifier {
	if s.Risk == nil {
		return NoRisk{}
	}
	return s.Risk
}

// notifyAsync dispatches the notice on its own goroutine. It never blocks
// the login and its failures are only logged.
func (s *LoginService) notifyAsync(ctx context.Context, notice domain.ApprovalNotice) {
	if s.Notifier == nil {
		slogx.FromContext(ctx).Warn("no approval notifier configured", "approval_id", notice.RequestID)
		return
	}

	timeout := s.NotifyTimeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}

	bg := slogx.Detach(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		nctx, cancel := context.WithTimeout(bg, timeout)
		defer cancel()

		if err := s.Notifier.NotifyApprovers(nctx, notice); err != nil {
			slogx.FromContext(bg).Error("approval notification failed",
				"approval_id", notice.RequestID,
				"error", err,
			)
		}
	}()
}
