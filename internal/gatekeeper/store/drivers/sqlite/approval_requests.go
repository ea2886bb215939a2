package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
)

const approvalColumns = `id, user_id, status, created_at, expires_at,
	slot1_approved_at, slot1_approver, slot2_approved_at, slot2_approver,
	consumed_at, request_ip, request_user_agent, version`

type approvalsRepo struct {
	db *sql.DB
}

func scanApproval(row scanner) (domain.ApprovalRequest, error) {
	var (
		r                    domain.ApprovalRequest
		status               string
		createdAt, expiresAt int64
		slot1At, slot2At     sql.NullInt64
		consumedAt           sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.UserID, &status, &createdAt, &expiresAt,
		&slot1At, &r.Slot1.Approver, &slot2At, &r.Slot2.Approver,
		&consumedAt, &r.RequestIP, &r.RequestUserAgent, &r.Version)
	if err != nil {
		return domain.ApprovalRequest{}, mapNotFound(err)
	}

	r.Status = domain.ApprovalStatus(status)
	r.CreatedAt = fromMillis(createdAt)
	r.ExpiresAt = fromMillis(expiresAt)
	r.Slot1.ApprovedAt = timePtr(slot1At)
	r.Slot2.ApprovedAt = timePtr(slot2At)
	r.ConsumedAt = timePtr(consumedAt)
	return r, nil
}

func (r *approvalsRepo) CreateApprovalRequest(ctx context.Context, a domain.ApprovalRequest) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO login_approval_requests (`+approvalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, string(a.Status), toMillis(a.CreatedAt), toMillis(a.ExpiresAt),
		nullMillis(a.Slot1.ApprovedAt), a.Slot1.Approver,
		nullMillis(a.Slot2.ApprovedAt), a.Slot2.Approver,
		nullMillis(a.ConsumedAt), a.RequestIP, a.RequestUserAgent, a.Version,
	)
	return err
}

func (r *approvalsRepo) GetApprovalRequest(ctx context.Context, id string) (domain.ApprovalRequest, error) {
	return scanApproval(r.db.QueryRowContext(ctx,
		`SELECT `+approvalColumns+` FROM login_approval_requests WHERE id = ?`, id))
}

func (r *approvalsRepo) ListApprovalRequestsByUser(
	ctx context.Context,
	userID string,
	limit int,
) ([]domain.ApprovalRequest, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+approvalColumns+` FROM login_approval_requests
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ApprovalRequest
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *approvalsRepo) CompareAndSwapApprovalRequest(ctx context.Context, next domain.ApprovalRequest) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE login_approval_requests SET
			status = ?,
			slot1_approved_at = ?, slot1_approver = ?,
			slot2_approved_at = ?, slot2_approver = ?,
			consumed_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		string(next.Status),
		nullMillis(next.Slot1.ApprovedAt), next.Slot1.Approver,
		nullMillis(next.Slot2.ApprovedAt), next.Slot2.Approver,
		nullMillis(next.ConsumedAt),
		next.ID, next.Version,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := r.GetApprovalRequest(ctx, next.ID); err != nil {
		return err
	}
	return store.ErrConflict
}

func (r *approvalsRepo) ExpirePendingApprovalRequests(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE login_approval_requests SET status = ?, version = version + 1
		WHERE status = ? AND expires_at < ?`,
		string(domain.ApprovalExpired), string(domain.ApprovalPending), toMillis(now),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
