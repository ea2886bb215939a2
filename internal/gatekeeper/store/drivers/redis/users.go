package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/redis/go-redis/v9"
)

// userRecord is the stored JSON form of domain.User. Times are unix
// milliseconds, zero meaning unset.
type userRecord struct {
	ID                    string `json:"id"`
	Username              string `json:"username"`
	PasswordHash          string `json:"password_hash"`
	MFAEnabledAt          int64  `json:"mfa_enabled_at,omitempty"`
	MFASecret             string `json:"mfa_secret,omitempty"`
	RefreshTokenHash      string `json:"refresh_token_hash,omitempty"`
	RefreshTokenExpiresAt int64  `json:"refresh_token_expires_at,omitempty"`
	CreatedAt             int64  `json:"created_at"`
	UpdatedAt             int64  `json:"updated_at"`
}

func newUserRecord(u domain.User) userRecord {
	rec := userRecord{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt.UnixMilli(),
		UpdatedAt:    u.UpdatedAt.UnixMilli(),
	}
	if u.MFAEnabledAt != nil {
		rec.MFAEnabledAt = u.MFAEnabledAt.UnixMilli()
	}
	if u.MFASecret != nil {
		rec.MFASecret = *u.MFASecret
	}
	if u.RefreshTokenHash != nil {
		rec.RefreshTokenHash = *u.RefreshTokenHash
	}
	if u.RefreshTokenExpiresAt != nil {
		rec.RefreshTokenExpiresAt = u.RefreshTokenExpiresAt.UnixMilli()
	}
	return rec
}

func (r userRecord) domain() domain.User {
	return domain.User{
		ID:                    r.ID,
		Username:              r.Username,
		PasswordHash:          r.PasswordHash,
		MFAEnabledAt:          millisPtr(r.MFAEnabledAt),
		MFASecret:             stringPtr(r.MFASecret),
		RefreshTokenHash:      stringPtr(r.RefreshTokenHash),
		RefreshTokenExpiresAt: millisPtr(r.RefreshTokenExpiresAt),
		CreatedAt:             time.UnixMilli(r.CreatedAt).UTC(),
		UpdatedAt:             time.UnixMilli(r.UpdatedAt).UTC(),
	}
}

// createUserScript claims the username and writes the record in one step.
// KEYS[1] username index, KEYS[2] user record. ARGV[1] id, ARGV[2] record.
var createUserScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 or redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("SET", KEYS[2], ARGV[2])
return 1
`)

type usersRepo struct {
	s *Store
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	var rec userRecord
	if err := getJSON(ctx, r.s.rdb, r.s.userKey(id), &rec); err != nil {
		return domain.User{}, err
	}
	return rec.domain(), nil
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	id, err := r.s.rdb.Get(ctx, r.s.usernameKey(username)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.User{}, store.ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return r.GetUserByID(ctx, id)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	raw, err := json.Marshal(newUserRecord(u))
	if err != nil {
		return err
	}

	created, err := createUserScript.Run(ctx, r.s.rdb,
		[]string{r.s.usernameKey(u.Username), r.s.userKey(u.ID)},
		u.ID, raw,
	).Int()
	if err != nil {
		return err
	}
	if created == 0 {
		return store.ErrAlreadyExists
	}
	return nil
}

func (r *usersRepo) SetMFASecret(ctx context.Context, userID, secret string, now time.Time) error {
	return r.update(ctx, userID, func(rec *userRecord, _ redis.Pipeliner) error {
		if rec.MFAEnabledAt != 0 {
			return store.ErrConflict
		}
		rec.MFASecret = secret
		rec.UpdatedAt = now.UnixMilli()
		return nil
	})
}

func (r *usersRepo) EnableMFA(ctx context.Context, userID, secret string, now time.Time) error {
	return r.update(ctx, userID, func(rec *userRecord, _ redis.Pipeliner) error {
		if rec.MFAEnabledAt != 0 || rec.MFASecret == "" || rec.MFASecret != secret {
			return store.ErrConflict
		}
		rec.MFAEnabledAt = now.UnixMilli()
		rec.UpdatedAt = now.UnixMilli()
		return nil
	})
}

func (r *usersRepo) SetRefreshToken(ctx context.Context, userID, hash string, expiresAt, now time.Time) error {
	return r.update(ctx, userID, func(rec *userRecord, pipe redis.Pipeliner) error {
		r.replaceRefresh(ctx, pipe, rec, hash, expiresAt, now)
		return nil
	})
}

func (r *usersRepo) RotateRefreshToken(
	ctx context.Context,
	presentedHash, nextHash string,
	nextExpiresAt, now time.Time,
) (domain.User, error) {
	idxKey := r.s.refreshKey(presentedHash)

	for range maxWatchRetries {
		userID, err := r.s.rdb.Get(ctx, idxKey).Result()
		if errors.Is(err, redis.Nil) {
			return domain.User{}, store.ErrNotFound
		}
		if err != nil {
			return domain.User{}, err
		}

		var rotated domain.User
		err = r.s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			// The index entry must still point at the same user, otherwise
			// another redeemer already won.
			current, err := tx.Get(ctx, idxKey).Result()
			if errors.Is(err, redis.Nil) || current != userID {
				return store.ErrNotFound
			}
			if err != nil {
				return err
			}

			var rec userRecord
			if err := getJSON(ctx, tx, r.s.userKey(userID), &rec); err != nil {
				return err
			}
			if rec.RefreshTokenHash != presentedHash || rec.RefreshTokenExpiresAt <= now.UnixMilli() {
				return store.ErrNotFound
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				r.replaceRefresh(ctx, pipe, &rec, nextHash, nextExpiresAt, now)
				return r.writeUser(ctx, pipe, rec)
			})
			rotated = rec.domain()
			return err
		}, idxKey, r.s.userKey(userID))

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.User{}, err
		}
		return rotated, nil
	}
	return domain.User{}, store.ErrConflict
}

func (r *usersRepo) ClearExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	ids, err := r.s.rdb.ZRangeByScore(ctx, r.s.refreshExpiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	var cleared int64
	for _, id := range ids {
		var dropped bool
		err := r.update(ctx, id, func(rec *userRecord, pipe redis.Pipeliner) error {
			dropped = false
			if rec.RefreshTokenExpiresAt > now.UnixMilli() {
				return nil // rotated since the range query
			}
			pipe.ZRem(ctx, r.s.refreshExpiryKey(), id)
			if rec.RefreshTokenHash != "" {
				pipe.Del(ctx, r.s.refreshKey(rec.RefreshTokenHash))
				dropped = true
			}
			rec.RefreshTokenHash = ""
			rec.RefreshTokenExpiresAt = 0
			rec.UpdatedAt = now.UnixMilli()
			return nil
		})
		if errors.Is(err, store.ErrNotFound) {
			r.s.rdb.ZRem(ctx, r.s.refreshExpiryKey(), id)
			continue
		}
		if err != nil {
			return cleared, err
		}
		if dropped {
			cleared++
		}
	}
	return cleared, nil
}

// replaceRefresh queues the index changes for swapping rec's refresh token
// and updates rec in place.
func (r *usersRepo) replaceRefresh(
	ctx context.Context,
	pipe redis.Pipeliner,
	rec *userRecord,
	hash string,
	expiresAt, now time.Time,
) {
	if rec.RefreshTokenHash != "" {
		pipe.Del(ctx, r.s.refreshKey(rec.RefreshTokenHash))
	}
	ttl := expiresAt.Sub(now)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	pipe.Set(ctx, r.s.refreshKey(hash), rec.ID, ttl)
	pipe.ZAdd(ctx, r.s.refreshExpiryKey(), redis.Z{Score: float64(expiresAt.UnixMilli()), Member: rec.ID})

	rec.RefreshTokenHash = hash
	rec.RefreshTokenExpiresAt = expiresAt.UnixMilli()
	rec.UpdatedAt = now.UnixMilli()
}

func (r *usersRepo) writeUser(ctx context.Context, pipe redis.Pipeliner, rec userRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe.Set(ctx, r.s.userKey(rec.ID), raw, 0)
	return nil
}

// update runs a watched read-modify-write on one user record. mutate may
// queue extra commands on pipe; they commit together with the record.
func (r *usersRepo) update(
	ctx context.Context,
	userID string,
	mutate func(rec *userRecord, pipe redis.Pipeliner) error,
) error {
	key := r.s.userKey(userID)

	for range maxWatchRetries {
		err := r.s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			var rec userRecord
			if err := getJSON(ctx, tx, key, &rec); err != nil {
				return err
			}

			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if err := mutate(&rec, pipe); err != nil {
					return err
				}
				return r.writeUser(ctx, pipe, rec)
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return store.ErrConflict
}

func millisPtr(ms int64) *time.Time {
	if ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
