// Package redis implements store.Store on top of Redis. Records are JSON
// documents; every conditional write is either a WATCH/MULTI transaction or
// a Lua script so that concurrent replicas never interleave a read and a
// write on the same record.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the driver.
const DefaultPrefix = "gatekeeper:"

// schemaVersion is recorded by ApplyMigrations so that a future layout
// change can detect old data.
const schemaVersion = 1

// maxWatchRetries bounds optimistic retries for internal read-modify-write
// cycles that are not surfaced to callers as conflicts.
const maxWatchRetries = 16

type Store struct {
	rdb    *redis.Client
	prefix string
}

var _ store.Store = (*Store)(nil)

// Options configures NewStore.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, opts Options) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewStore(rdb, opts.Prefix), nil
}

// NewStore wraps an existing client. An empty prefix uses DefaultPrefix.
func NewStore(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) Users() store.Users                       { return &usersRepo{s: s} }
func (s *Store) ApprovalRequests() store.ApprovalRequests { return &approvalsRepo{s: s} }

// ApplyMigrations records the layout version. Redis needs no schema, but a
// store written by a newer layout is refused.
func (s *Store) ApplyMigrations() error {
	ctx := context.Background()
	key := s.key("meta", "schema_version")

	current, err := s.rdb.Get(ctx, key).Int()
	switch {
	case errors.Is(err, redis.Nil):
		return s.rdb.Set(ctx, key, schemaVersion, 0).Err()
	case err != nil:
		return err
	case current > schemaVersion:
		return fmt.Errorf("redis store: layout version %d is newer than supported %d", current, schemaVersion)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) key(parts ...string) string {
	return s.prefix + strings.Join(parts, ":")
}

func (s *Store) userKey(id string) string              { return s.key("user", id) }
func (s *Store) usernameKey(name string) string        { return s.key("username", name) }
func (s *Store) refreshKey(hash string) string         { return s.key("refresh", hash) }
func (s *Store) refreshExpiryKey() string              { return s.key("refresh_expiry") }
func (s *Store) approvalKey(id string) string          { return s.key("approval", id) }
func (s *Store) userApprovalsKey(userID string) string { return s.key("user_approvals", userID) }
func (s *Store) pendingApprovalsKey() string           { return s.key("approvals_pending") }

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// getJSON decodes the document at key into v.
func getJSON(ctx context.Context, c getter, key string, v any) error {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
