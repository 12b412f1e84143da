package ports

import "context"

// IdentityClaims are the profile fields extracted from a verified federated
// identity assertion token.
type IdentityClaims struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// IdentityVerifier checks a federated identity assertion token with its
// issuing provider and returns the claims it asserts.
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (*IdentityClaims, error)
}
