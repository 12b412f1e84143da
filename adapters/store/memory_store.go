package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lwb-io/authkit/core"
	"github.com/lwb-io/authkit/ports"
)

// MemoryRevocationStore keeps revoked token hashes in a map. Intended for
// tests and single-process deployments.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	expires map[string]time.Time
}

// NewMemoryRevocationStore creates an empty in-memory revocation store.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{expires: make(map[string]time.Time)}
}

// Revoke records a token hash until its TTL elapses.
func (s *MemoryRevocationStore) Revoke(ctx context.Context, tokenHash string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expires[tokenHash] = time.Now().Add(ttl)
	return nil
}

// IsRevoked reports whether the hash is in the set and not yet aged out.
func (s *MemoryRevocationStore) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exp, ok := s.expires[tokenHash]
	return ok && time.Now().Before(exp), nil
}

type memoryUser struct {
	user         core.User
	passwordHash string
}

// MemoryUserStore is an in-memory UserStore for tests and local runs.
type MemoryUserStore struct {
	mu         sync.RWMutex
	byUsername map[string]*memoryUser
}

// NewMemoryUserStore creates an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{byUsername: make(map[string]*memoryUser)}
}

// Create inserts a new user keyed by lowercased username.
func (s *MemoryUserStore) Create(ctx context.Context, username, passwordHash string) (*core.User, error) {
	key := strings.ToLower(username)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byUsername[key]; ok {
		return nil, core.ErrUserExists
	}
	rec := &memoryUser{
		user: core.User{
			ID:        uuid.New().String(),
			Username:  key,
			CreatedAt: time.Now(),
		},
		passwordHash: passwordHash,
	}
	s.byUsername[key] = rec
	u := rec.user
	return &u, nil
}

// FindByUsername returns the user and its stored password hash.
func (s *MemoryUserStore) FindByUsername(ctx context.Context, username string) (*core.User, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byUsername[strings.ToLower(username)]
	if !ok {
		return nil, "", core.ErrInvalidCreds
	}
	u := rec.user
	return &u, rec.passwordHash, nil
}

// UpsertByEmail returns the user registered under the email, creating it on
// first sight. Federated accounts carry no password hash.
func (s *MemoryUserStore) UpsertByEmail(ctx context.Context, email string) (*core.User, bool, error) {
	key := strings.ToLower(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.byUsername[key]; ok {
		u := rec.user
		return &u, false, nil
	}
	rec := &memoryUser{
		user: core.User{
			ID:        uuid.New().String(),
			Username:  key,
			Email:     key,
			CreatedAt: time.Now(),
		},
	}
	s.byUsername[key] = rec
	u := rec.user
	return &u, true, nil
}

// TouchLastLogin records the login time for the user.
func (s *MemoryUserStore) TouchLastLogin(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.byUsername {
		if rec.user.ID == userID {
			rec.user.LastLogin = time.Now()
			return nil
		}
	}
	return nil
}

var (
	_ ports.RevocationStore = (*MemoryRevocationStore)(nil)
	_ ports.UserStore       = (*MemoryUserStore)(nil)
)
