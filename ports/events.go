package ports

import "context"

// EventPublisher notifies other instances about auth lifecycle events.
// Publishing is always best-effort; callers never fail an operation on a
// publish error.
type EventPublisher interface {
	PublishRegistered(ctx context.Context, userID, username string) error
	PublishRevoked(ctx context.Context, tokenHash string) error
}
