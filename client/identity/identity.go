// Package identity acquires federated identity credentials for the sign-in
// flow. Acquisition strategies are chained from least to most intrusive:
// a cached credential, a refresh without user interaction, and finally the
// interactive browser flow.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lwb-io/authkit/core"
)

// Credential is an acquired identity assertion.
type Credential struct {
	IDToken string
	Expiry  time.Time
}

// TokenSource is one acquisition strategy.
type TokenSource interface {
	// Name identifies the strategy in logs.
	Name() string

	// Token attempts to produce a credential. core.ErrNoCredential means the
	// strategy has nothing to offer and the chain should move on.
	Token(ctx context.Context) (*Credential, error)
}

// Chain tries each source in order and returns the first credential. Earlier
// failures are logged and swallowed; only the final source's failure reaches
// the caller, classified for region blocking. The chain is lazy: sources
// after a hit are never consulted.
type Chain struct {
	sources []TokenSource
	logger  *slog.Logger
}

// NewChain builds a chain over the given sources, least intrusive first.
func NewChain(logger *slog.Logger, sources ...TokenSource) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{sources: sources, logger: logger}
}

// Token runs the chain. Context cancellation aborts between sources.
func (c *Chain) Token(ctx context.Context) (*Credential, error) {
	if len(c.sources) == 0 {
		return nil, core.ErrNoCredential
	}
	var lastErr error
	for i, src := range c.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cred, err := src.Token(ctx)
		if err == nil {
			c.logger.Debug("credential acquired", "source", src.Name())
			return cred, nil
		}
		lastErr = err
		if i < len(c.sources)-1 {
			c.logger.Debug("credential source failed, trying next", "source", src.Name(), "error", err)
		}
	}
	return nil, classifyRegionBlock(fmt.Errorf("acquire credential: %w", lastErr))
}

// SourceFunc adapts a function into a TokenSource.
type SourceFunc struct {
	ID string
	Fn func(ctx context.Context) (*Credential, error)
}

func (s SourceFunc) Name() string { return s.ID }

func (s SourceFunc) Token(ctx context.Context) (*Credential, error) { return s.Fn(ctx) }
