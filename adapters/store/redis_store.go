package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lwb-io/authkit/core"
	"github.com/lwb-io/authkit/ports"
)

const (
	revokedPrefix = "authkit:revoked:"
	userPrefix    = "authkit:user:"
)

// RedisRevocationStore is a Redis implementation of the RevocationStore.
// Entries expire on their own once the revoked token would have expired
// anyway, keeping the set bounded.
type RedisRevocationStore struct {
	client *redis.Client
}

// NewRedisRevocationStore creates a Redis-backed revocation store.
func NewRedisRevocationStore(client *redis.Client) ports.RevocationStore {
	return &RedisRevocationStore{client: client}
}

// Revoke marks a token hash as revoked with the given TTL.
func (s *RedisRevocationStore) Revoke(ctx context.Context, tokenHash string, ttl time.Duration) error {
	if err := s.client.Set(ctx, revokedPrefix+tokenHash, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked checks whether a token hash is in the revocation set.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedPrefix+tokenHash).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return n > 0, nil
}

// RedisUserStore persists users as JSON values keyed by lowercased username,
// with a secondary id → username index for lookups by user ID.
type RedisUserStore struct {
	client *redis.Client
}

// NewRedisUserStore creates a Redis-backed user store.
func NewRedisUserStore(client *redis.Client) ports.UserStore {
	return &RedisUserStore{client: client}
}

type redisUser struct {
	User         core.User `json:"user"`
	PasswordHash string    `json:"passwordHash,omitempty"`
}

func userKey(username string) string { return userPrefix + strings.ToLower(username) }

func idKey(userID string) string { return userPrefix + "id:" + userID }

// Create inserts a new user, failing with core.ErrUserExists on conflict.
func (s *RedisUserStore) Create(ctx context.Context, username, passwordHash string) (*core.User, error) {
	rec := redisUser{
		User: core.User{
			ID:        uuid.New().String(),
			Username:  strings.ToLower(username),
			CreatedAt: time.Now(),
		},
		PasswordHash: passwordHash,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user: %w", err)
	}

	ok, err := s.client.SetNX(ctx, userKey(username), raw, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to store user: %w", err)
	}
	if !ok {
		return nil, core.ErrUserExists
	}
	if err := s.client.Set(ctx, idKey(rec.User.ID), rec.User.Username, 0).Err(); err != nil {
		return nil, fmt.Errorf("failed to index user: %w", err)
	}
	u := rec.User
	return &u, nil
}

// FindByUsername loads a user record and its password hash.
func (s *RedisUserStore) FindByUsername(ctx context.Context, username string) (*core.User, string, error) {
	raw, err := s.client.Get(ctx, userKey(username)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, "", core.ErrInvalidCreds
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load user: %w", err)
	}
	var rec redisUser
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, "", fmt.Errorf("failed to decode user: %w", err)
	}
	u := rec.User
	return &u, rec.PasswordHash, nil
}

// UpsertByEmail returns the user for the email, creating it on first sight.
func (s *RedisUserStore) UpsertByEmail(ctx context.Context, email string) (*core.User, bool, error) {
	if u, _, err := s.FindByUsername(ctx, email); err == nil {
		return u, false, nil
	} else if !errors.Is(err, core.ErrInvalidCreds) {
		return nil, false, err
	}

	rec := redisUser{
		User: core.User{
			ID:        uuid.New().String(),
			Username:  strings.ToLower(email),
			Email:     strings.ToLower(email),
			CreatedAt: time.Now(),
		},
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode user: %w", err)
	}
	created, err := s.client.SetNX(ctx, userKey(email), raw, 0).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to store user: %w", err)
	}
	if !created {
		// Lost the race to a concurrent upsert; read the winner.
		u, _, err := s.FindByUsername(ctx, email)
		return u, false, err
	}
	if err := s.client.Set(ctx, idKey(rec.User.ID), rec.User.Username, 0).Err(); err != nil {
		return nil, false, fmt.Errorf("failed to index user: %w", err)
	}
	u := rec.User
	return &u, true, nil
}

// TouchLastLogin records a successful login time on the user record.
func (s *RedisUserStore) TouchLastLogin(ctx context.Context, userID string) error {
	username, err := s.client.Get(ctx, idKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve user id: %w", err)
	}
	raw, err := s.client.Get(ctx, userKey(username)).Bytes()
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	var rec redisUser
	if err := json.Unmarshal(raw, &rec); err != nil {
		return fmt.Errorf("failed to decode user: %w", err)
	}
	rec.User.LastLogin = time.Now()
	out, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	if err := s.client.Set(ctx, userKey(username), out, 0).Err(); err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}
	return nil
}
