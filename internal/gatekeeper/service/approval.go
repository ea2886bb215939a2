package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
	"github.com/google/uuid"
)

const (
	DefaultApprovalTTL = 5 * time.Minute

	// defaultCASRetries bounds how often a transition re-reads after losing
	// a compare-and-swap to a concurrent writer.
	defaultCASRetries = 8
)

// ApprovalService runs the dual-approval state machine. It keeps no state
// of its own; every transition is a versioned compare-and-swap on the store.
type ApprovalService struct {
	Store      store.Store
	TTL        time.Duration
	Now        func() time.Time
	CASRetries int
}

func (s *ApprovalService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *ApprovalService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultApprovalTTL
}

// Create opens a pending request for userID that expires after TTL.
func (s *ApprovalService) Create(ctx context.Context, userID string, req domain.RequestContext) (domain.ApprovalRequest, error) {
	now := s.now()
	r := domain.ApprovalRequest{
		ID:               uuid.NewString(),
		UserID:           userID,
		Status:           domain.ApprovalPending,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.ttl()),
		RequestIP:        req.IP,
		RequestUserAgent: req.UserAgent,
	}

	if err := s.Store.ApprovalRequests().CreateApprovalRequest(ctx, r); err != nil {
		return domain.ApprovalRequest{}, fmt.Errorf("create approval request: %w", err)
	}

	slogx.FromContext(ctx).Info("approval request created",
		"approval_id", r.ID,
		"user_id", userID,
		"expires_at", r.ExpiresAt,
	)
	return r, nil
}

// Get returns the request with its effective status applied.
func (s *ApprovalService) Get(ctx context.Context, id string) (domain.ApprovalRequest, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return domain.ApprovalRequest{}, err
	}
	r.Status = r.EffectiveStatus(s.now())
	return r, nil
}

// load returns the request exactly as stored.
func (s *ApprovalService) load(ctx context.Context, id string) (domain.ApprovalRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ApprovalRequest{}, ErrApprovalNotFound
	}

	r, err := s.Store.ApprovalRequests().GetApprovalRequest(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.ApprovalRequest{}, ErrApprovalNotFound
	}
	return r, err
}

// GetStatus returns the effective status of request id.
func (s *ApprovalService) GetStatus(ctx context.Context, id string) (domain.ApprovalStatus, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return r.Status, nil
}

// ListForUser returns a user's requests, newest first, with effective
// statuses.
func (s *ApprovalService) ListForUser(ctx context.Context, userID string, limit int) ([]domain.ApprovalRequest, error) {
	list, err := s.Store.ApprovalRequests().ListApprovalRequestsByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	now := s.now()
	for i := range list {
		list[i].Status = list[i].EffectiveStatus(now)
	}
	return list, nil
}

// RecordApproval fills the first free approval slot. A repeated signal from
// an approver who already holds a slot changes nothing. When the second
// slot fills the request becomes approved in the same write. Signals for
// requests that are no longer pending are ignored.
func (s *ApprovalService) RecordApproval(ctx context.Context, id, approver string) (domain.ApprovalStatus, error) {
	r, err := s.transition(ctx, id, func(r *domain.ApprovalRequest, now time.Time) bool {
		if r.HasApprover(approver) {
			return false
		}

		slot := domain.ApprovalSlot{ApprovedAt: &now, Approver: approver}
		switch {
		case !r.Slot1.Filled():
			r.Slot1 = slot
		case !r.Slot2.Filled():
			r.Slot2 = slot
		default:
			return false
		}

		if r.Slot1.Filled() && r.Slot2.Filled() {
			r.Status = domain.ApprovalApproved
		}
		return true
	})
	if err != nil {
		return "", err
	}

	slogx.FromContext(ctx).Info("approval recorded",
		"approval_id", id,
		"approver", approver,
		"approvals", r.ApprovalCount(),
		"status", r.Status,
	)
	return r.Status, nil
}

// RecordRejection vetoes a pending request.
func (s *ApprovalService) RecordRejection(ctx context.Context, id, approver string) (domain.ApprovalStatus, error) {
	r, err := s.transition(ctx, id, func(r *domain.ApprovalRequest, _ time.Time) bool {
		r.Status = domain.ApprovalRejected
		return true
	})
	if err != nil {
		return "", err
	}

	slogx.FromContext(ctx).Info("rejection recorded",
		"approval_id", id,
		"approver", approver,
		"status", r.Status,
	)
	return r.Status, nil
}

// Consume marks an approved request as used. Exactly one caller succeeds;
// the rest get ErrApprovalConsumed. A request that is not effectively
// approved at now, including one whose window lapsed after approval,
// yields ErrApprovalNotApproved.
func (s *ApprovalService) Consume(ctx context.Context, id string) (domain.ApprovalRequest, error) {
	return s.mutate(ctx, id, func(r *domain.ApprovalRequest, now time.Time) (bool, error) {
		if r.ConsumedAt != nil {
			return false, ErrApprovalConsumed
		}
		if r.EffectiveStatus(now) != domain.ApprovalApproved {
			return false, ErrApprovalNotApproved
		}
		r.ConsumedAt = &now
		return true, nil
	})
}

// transition applies fn to a request that is still effectively pending.
// Requests in any other state are returned unchanged.
func (s *ApprovalService) transition(
	ctx context.Context,
	id string,
	fn func(r *domain.ApprovalRequest, now time.Time) bool,
) (domain.ApprovalRequest, error) {
	return s.mutate(ctx, id, func(r *domain.ApprovalRequest, now time.Time) (bool, error) {
		if st := r.EffectiveStatus(now); st.Terminal() {
			r.Status = st
			return false, nil
		}
		return fn(r, now), nil
	})
}

// mutate is the optimistic read-modify-write loop shared by every
// transition. fn reports whether it changed r.
func (s *ApprovalService) mutate(
	ctx context.Context,
	id string,
	fn func(r *domain.ApprovalRequest, now time.Time) (bool, error),
) (domain.ApprovalRequest, error) {
	retries := s.CASRetries
	if retries <= 0 {
		retries = defaultCASRetries
	}

	for range retries {
		next, err := s.load(ctx, id)
		if err != nil {
			return domain.ApprovalRequest{}, err
		}

		changed, err := fn(&next, s.now())
		if err != nil {
			return next, err
		}
		if !changed {
			return next, nil
		}

		err = s.Store.ApprovalRequests().CompareAndSwapApprovalRequest(ctx, next)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return domain.ApprovalRequest{}, err
		}

		next.Version++
		return next, nil
	}
	return domain.ApprovalRequest{}, ErrApprovalBusy
}
