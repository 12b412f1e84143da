// Package identity adapts federated identity providers to the
// ports.IdentityVerifier interface.
package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/lwb-io/authkit/core"
	"github.com/lwb-io/authkit/ports"
)

// OIDCVerifier validates identity assertion tokens against an OpenID Connect
// issuer's published keys.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the issuer configuration and builds a verifier
// bound to the given audience (client ID).
func NewOIDCVerifier(ctx context.Context, issuerURL, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC issuer: %w", err)
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// Verify checks the token's signature, issuer, audience and expiry, and
// returns the profile claims it asserts.
func (v *OIDCVerifier) Verify(ctx context.Context, idToken string) (*ports.IdentityClaims, error) {
	tok, err := v.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrUnauthorized, err)
	}
	var claims struct {
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := tok.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: bad identity claims", core.ErrUnauthorized)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: identity token carries no email", core.ErrUnauthorized)
	}
	return &ports.IdentityClaims{
		Subject: tok.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}, nil
}

var _ ports.IdentityVerifier = (*OIDCVerifier)(nil)
