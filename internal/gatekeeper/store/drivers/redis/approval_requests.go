package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/redis/go-redis/v9"
)

type approvalRecord struct {
	ID               string `json:"id"`
	UserID           string `json:"user_id"`
	Status           string `json:"status"`
	CreatedAt        int64  `json:"created_at"`
	ExpiresAt        int64  `json:"expires_at"`
	Slot1ApprovedAt  int64  `json:"slot1_approved_at,omitempty"`
	Slot1Approver    string `json:"slot1_approver,omitempty"`
	Slot2ApprovedAt  int64  `json:"slot2_approved_at,omitempty"`
	Slot2Approver    string `json:"slot2_approver,omitempty"`
	ConsumedAt       int64  `json:"consumed_at,omitempty"`
	RequestIP        string `json:"request_ip,omitempty"`
	RequestUserAgent string `json:"request_user_agent,omitempty"`
	Version          int64  `json:"version"`
}

func newApprovalRecord(a domain.ApprovalRequest) approvalRecord {
	rec := approvalRecord{
		ID:               a.ID,
		UserID:           a.UserID,
		Status:           string(a.Status),
		CreatedAt:        a.CreatedAt.UnixMilli(),
		ExpiresAt:        a.ExpiresAt.UnixMilli(),
		Slot1Approver:    a.Slot1.Approver,
		Slot2Approver:    a.Slot2.Approver,
		RequestIP:        a.RequestIP,
		RequestUserAgent: a.RequestUserAgent,
		Version:          a.Version,
	}
	if a.Slot1.ApprovedAt != nil {
		rec.Slot1ApprovedAt = a.Slot1.ApprovedAt.UnixMilli()
	}
	if a.Slot2.ApprovedAt != nil {
		rec.Slot2ApprovedAt = a.Slot2.ApprovedAt.UnixMilli()
	}
	if a.ConsumedAt != nil {
		rec.ConsumedAt = a.ConsumedAt.UnixMilli()
	}
	return rec
}

func (r approvalRecord) domain() domain.ApprovalRequest {
	return domain.ApprovalRequest{
		ID:               r.ID,
		UserID:           r.UserID,
		Status:           domain.ApprovalStatus(r.Status),
		CreatedAt:        time.UnixMilli(r.CreatedAt).UTC(),
		ExpiresAt:        time.UnixMilli(r.ExpiresAt).UTC(),
		Slot1:            domain.ApprovalSlot{ApprovedAt: millisPtr(r.Slot1ApprovedAt), Approver: r.Slot1Approver},
		Slot2:            domain.ApprovalSlot{ApprovedAt: millisPtr(r.Slot2ApprovedAt), Approver: r.Slot2Approver},
		ConsumedAt:       millisPtr(r.ConsumedAt),
		RequestIP:        r.RequestIP,
		RequestUserAgent: r.RequestUserAgent,
		Version:          r.Version,
	}
}

// checkStatus stands in for the sqlite CHECK constraint on status.
func checkStatus(a domain.ApprovalRequest) error {
	if !a.Status.Valid() {
		return fmt.Errorf("approval %s: invalid status %q", a.ID, a.Status)
	}
	return nil
}

type approvalsRepo struct {
	s *Store
}

func (r *approvalsRepo) CreateApprovalRequest(ctx context.Context, a domain.ApprovalRequest) error {
	if err := checkStatus(a); err != nil {
		return err
	}
	raw, err := json.Marshal(newApprovalRecord(a))
	if err != nil {
		return err
	}

	exists, err := r.s.rdb.Exists(ctx, r.s.userKey(a.UserID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return store.ErrNotFound
	}

	var created *redis.BoolCmd
	_, err = r.s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		created = pipe.SetNX(ctx, r.s.approvalKey(a.ID), raw, 0)
		pipe.ZAdd(ctx, r.s.userApprovalsKey(a.UserID), redis.Z{Score: float64(a.CreatedAt.UnixMilli()), Member: a.ID})
		if a.Status == domain.ApprovalPending {
			pipe.ZAdd(ctx, r.s.pendingApprovalsKey(), redis.Z{Score: float64(a.ExpiresAt.UnixMilli()), Member: a.ID})
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !created.Val() {
		return store.ErrAlreadyExists
	}
	return nil
}

func (r *approvalsRepo) GetApprovalRequest(ctx context.Context, id string) (domain.ApprovalRequest, error) {
	var rec approvalRecord
	if err := getJSON(ctx, r.s.rdb, r.s.approvalKey(id), &rec); err != nil {
		return domain.ApprovalRequest{}, err
	}
	return rec.domain(), nil
}

func (r *approvalsRepo) ListApprovalRequestsByUser(
	ctx context.Context,
	userID string,
	limit int,
) ([]domain.ApprovalRequest, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	ids, err := r.s.rdb.ZRevRange(ctx, r.s.userApprovalsKey(userID), 0, stop).Result()
	if err != nil {
		return nil, err
	}

	out := make([]domain.ApprovalRequest, 0, len(ids))
	for _, id := range ids {
		a, err := r.GetApprovalRequest(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *approvalsRepo) CompareAndSwapApprovalRequest(ctx context.Context, next domain.ApprovalRequest) error {
	if err := checkStatus(next); err != nil {
		return err
	}
	key := r.s.approvalKey(next.ID)

	err := r.s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		var cur approvalRecord
		if err := getJSON(ctx, tx, key, &cur); err != nil {
			return err
		}
		if cur.Version != next.Version {
			return store.ErrConflict
		}

		// Only the mutable columns move; identity and timing stay as stored.
		upd := newApprovalRecord(next)
		upd.UserID = cur.UserID
		upd.CreatedAt = cur.CreatedAt
		upd.ExpiresAt = cur.ExpiresAt
		upd.RequestIP = cur.RequestIP
		upd.RequestUserAgent = cur.RequestUserAgent
		upd.Version = cur.Version + 1

		raw, err := json.Marshal(upd)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			if upd.Status != string(domain.ApprovalPending) {
				pipe.ZRem(ctx, r.s.pendingApprovalsKey(), next.ID)
			}
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return store.ErrConflict
	}
	return err
}

func (r *approvalsRepo) ExpirePendingApprovalRequests(ctx context.Context, now time.Time) (int64, error) {
	ids, err := r.s.rdb.ZRangeByScore(ctx, r.s.pendingApprovalsKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	var expired int64
	for _, id := range ids {
		for range maxWatchRetries {
			cur, err := r.GetApprovalRequest(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				r.s.rdb.ZRem(ctx, r.s.pendingApprovalsKey(), id)
				break
			}
			if err != nil {
				return expired, err
			}
			if cur.EffectiveStatus(now) != domain.ApprovalExpired || cur.Status != domain.ApprovalPending {
				r.s.rdb.ZRem(ctx, r.s.pendingApprovalsKey(), id)
				break
			}

			cur.Status = domain.ApprovalExpired
			err = r.CompareAndSwapApprovalRequest(ctx, cur)
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			if err != nil {
				return expired, err
			}
			expired++
			break
		}
	}
	return expired, nil
}
