package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
)

const userColumns = `id, username, password_hash, mfa_enabled_at, mfa_secret,
	refresh_token_hash, refresh_token_expires_at, created_at, updated_at`

type usersRepo struct {
	db *sql.DB
}

func scanUser(row scanner) (domain.User, error) {
	var (
		u                    domain.User
		mfaEnabledAt         sql.NullInt64
		mfaSecret            sql.NullString
		refreshHash          sql.NullString
		refreshExpiresAt     sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &mfaEnabledAt, &mfaSecret,
		&refreshHash, &refreshExpiresAt, &createdAt, &updatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.MFAEnabledAt = timePtr(mfaEnabledAt)
	u.MFASecret = stringPtr(mfaSecret)
	u.RefreshTokenHash = stringPtr(refreshHash)
	u.RefreshTokenExpiresAt = timePtr(refreshExpiresAt)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (username) DO NOTHING`,
		u.ID, u.Username, u.PasswordHash, toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	if err != nil {
		return err
	}
	return requireRow(res, store.ErrAlreadyExists)
}

func (r *usersRepo) SetMFASecret(ctx context.Context, userID, secret string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET mfa_secret = ?, updated_at = ?
		WHERE id = ? AND mfa_enabled_at IS NULL`,
		secret, toMillis(now), userID,
	)
	if err != nil {
		return err
	}
	return r.conflictOrMissing(ctx, res, userID)
}

func (r *usersRepo) EnableMFA(ctx context.Context, userID, secret string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET mfa_enabled_at = ?, updated_at = ?
		WHERE id = ? AND mfa_enabled_at IS NULL AND mfa_secret = ?`,
		toMillis(now), toMillis(now), userID, secret,
	)
	if err != nil {
		return err
	}
	return r.conflictOrMissing(ctx, res, userID)
}

func (r *usersRepo) SetRefreshToken(ctx context.Context, userID, hash string, expiresAt, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET refresh_token_hash = ?, refresh_token_expires_at = ?, updated_at = ?
		WHERE id = ?`,
		hash, toMillis(expiresAt), toMillis(now), userID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, store.ErrNotFound)
}

func (r *usersRepo) RotateRefreshToken(
	ctx context.Context,
	presentedHash, nextHash string,
	nextExpiresAt, now time.Time,
) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `
		UPDATE users SET refresh_token_hash = ?, refresh_token_expires_at = ?, updated_at = ?
		WHERE refresh_token_hash = ? AND refresh_token_expires_at > ?
		RETURNING `+userColumns,
		nextHash, toMillis(nextExpiresAt), toMillis(now), presentedHash, toMillis(now),
	))
}

func (r *usersRepo) ClearExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET refresh_token_hash = NULL, refresh_token_expires_at = NULL, updated_at = ?
		WHERE refresh_token_expires_at IS NOT NULL AND refresh_token_expires_at <= ?`,
		toMillis(now), toMillis(now),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// conflictOrMissing tells a lost conditional update apart from a missing
// user.
func (r *usersRepo) conflictOrMissing(ctx context.Context, res sql.Result, userID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := r.GetUserByID(ctx, userID); err != nil {
		return err
	}
	return store.ErrConflict
}

func requireRow(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return none
	}
	return nil
}
