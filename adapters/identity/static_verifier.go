package identity

import (
	"context"
	"sync"

	"github.com/lwb-io/authkit/core"
	"github.com/lwb-io/authkit/ports"
)

// StaticVerifier accepts a fixed set of tokens. Used in tests and local
// development where no real identity provider is reachable.
type StaticVerifier struct {
	mu     sync.RWMutex
	tokens map[string]ports.IdentityClaims
}

// NewStaticVerifier creates an empty static verifier.
func NewStaticVerifier() *StaticVerifier {
	return &StaticVerifier{tokens: make(map[string]ports.IdentityClaims)}
}

// Allow registers a token and the claims it should resolve to.
func (v *StaticVerifier) Allow(idToken string, claims ports.IdentityClaims) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tokens[idToken] = claims
}

// Verify resolves a registered token or fails with core.ErrUnauthorized.
func (v *StaticVerifier) Verify(ctx context.Context, idToken string) (*ports.IdentityClaims, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	claims, ok := v.tokens[idToken]
	if !ok {
		return nil, core.ErrUnauthorized
	}
	c := claims
	return &c, nil
}

var _ ports.IdentityVerifier = (*StaticVerifier)(nil)
