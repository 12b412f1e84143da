package ports

import (
	"context"
	"time"

	"github.com/lwb-io/authkit/core"
)

// RevocationStore records tokens that must be rejected before their embedded
// expiry. Entries are keyed by SHA-256 of the token, never the raw token.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenHash string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)
}

// UserStore persists registered principals.
type UserStore interface {
	// Create inserts a new user with an argon2id password hash. Returns
	// core.ErrUserExists when the username is taken.
	Create(ctx context.Context, username, passwordHash string) (*core.User, error)

	// FindByUsername returns the user and its password hash, or
	// core.ErrInvalidCreds when no such user exists.
	FindByUsername(ctx context.Context, username string) (*core.User, string, error)

	// UpsertByEmail returns the user for a federated identity, creating it on
	// first sight. The second return reports whether a new record was created.
	UpsertByEmail(ctx context.Context, email string) (*core.User, bool, error)

	// TouchLastLogin records a successful login.
	TouchLastLogin(ctx context.Context, userID string) error
}
