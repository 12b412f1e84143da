package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/lwb-io/authkit/ports"
)

const (
	// TopicRegistered carries RegisteredEvent messages.
	TopicRegistered = "auth.registered"

	// TopicRevoked carries RevokedEvent messages.
	TopicRevoked = "auth.revoked"
)

// RegisteredEvent announces a newly created user.
type RegisteredEvent struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// RevokedEvent announces a revoked session token. Only the hash travels on
// the wire; subscribers never see raw tokens.
type RevokedEvent struct {
	TokenHash string `json:"token_hash"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill-backed publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishRegistered publishes a user-registered event.
func (p *WatermillPublisher) PublishRegistered(ctx context.Context, userID, username string) error {
	return p.publish(TopicRegistered, RegisteredEvent{UserID: userID, Username: username})
}

// PublishRevoked publishes a token-revoked event.
func (p *WatermillPublisher) PublishRevoked(ctx context.Context, tokenHash string) error {
	return p.publish(TopicRevoked, RevokedEvent{TokenHash: tokenHash})
}

func (p *WatermillPublisher) publish(topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := message.NewMessage(uuid.New().String(), payload)
	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
