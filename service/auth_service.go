// Package service implements the backend authentication business logic:
// proof-of-work gated registration, password login, session validation,
// token rotation and revocation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lwb-io/authkit/altcha"
	"github.com/lwb-io/authkit/core"
	"github.com/lwb-io/authkit/ports"
)

const (
	// minRevocationTTL keeps a revocation entry around even when the token
	// already expired, guarding against slightly skewed clocks.
	minRevocationTTL = time.Hour

	// identityRevocationTTL is the retention for revoked identity tokens,
	// whose real expiry the backend cannot read.
	identityRevocationTTL = 24 * time.Hour
)

// AuthService handles authentication business logic.
type AuthService struct {
	tokenizer   ports.Tokenizer
	users       ports.UserStore
	revocations ports.RevocationStore
	verifier    ports.IdentityVerifier
	events      ports.EventPublisher
	challenges  *altcha.Issuer
	logger      *slog.Logger
}

// NewAuthService creates a new authentication service. events may be nil
// when no broker is configured; logger nil falls back to slog.Default.
func NewAuthService(
	tokenizer ports.Tokenizer,
	users ports.UserStore,
	revocations ports.RevocationStore,
	verifier ports.IdentityVerifier,
	events ports.EventPublisher,
	challenges *altcha.Issuer,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		tokenizer:   tokenizer,
		users:       users,
		revocations: revocations,
		verifier:    verifier,
		events:      events,
		challenges:  challenges,
		logger:      logger,
	}
}

// IssueChallenge returns a fresh proof-of-work challenge.
func (s *AuthService) IssueChallenge() (*altcha.Challenge, error) {
	return s.challenges.Issue()
}

// Register creates a user from a username, password and solved proof-of-work
// payload, and mints a session token for it. The payload is mandatory:
// password registration has no alternative anti-abuse signal.
func (s *AuthService) Register(ctx context.Context, username, password, altchaPayload string) (*core.User, string, error) {
	if altchaPayload == "" {
		return nil, "", fmt.Errorf("%w: payload required", core.ErrAltchaFailed)
	}
	if err := s.challenges.Verify(altchaPayload); err != nil {
		return nil, "", err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, "", err
	}

	user, err := s.users.Create(ctx, username, hash)
	if err != nil {
		return nil, "", err
	}

	token, _, err := s.tokenizer.Mint(user.ID, core.KindPassword)
	if err != nil {
		return nil, "", fmt.Errorf("failed to mint session token: %w", err)
	}

	if s.events != nil {
		if err := s.events.PublishRegistered(ctx, user.ID, user.Username); err != nil {
			s.logger.Warn("failed to publish registered event", "err", err)
		}
	}
	return user, token, nil
}

// Login verifies a username/password pair and mints a session token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*core.User, string, error) {
	user, hash, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, "", err
	}
	if hash == "" {
		// Federated account without a password.
		return nil, "", core.ErrInvalidCreds
	}

	ok, err := VerifyPassword(hash, password)
	if err != nil {
		return nil, "", fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return nil, "", core.ErrInvalidCreds
	}

	if err := s.users.TouchLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to record last login", "user", user.ID, "err", err)
	}

	token, _, err := s.tokenizer.Mint(user.ID, core.KindPassword)
	if err != nil {
		return nil, "", fmt.Errorf("failed to mint session token: %w", err)
	}
	return user, token, nil
}

// ValidateSession checks a password-issued session token: revocation first
// (no signature work for known-bad tokens), then signature and expiry.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*core.Session, error) {
	revoked, err := s.revocations.IsRevoked(ctx, core.HashToken(token))
	if err != nil {
		return nil, fmt.Errorf("failed to check revocation: %w", err)
	}
	if revoked {
		return nil, core.ErrTokenRevoked
	}
	return s.tokenizer.Parse(token)
}

// ExchangeIdentityToken verifies a federated identity assertion token and
// upserts the user it identifies. The verified assertion doubles as the
// anti-abuse signal, so no proof-of-work is demanded here.
func (s *AuthService) ExchangeIdentityToken(ctx context.Context, idToken string) (*core.User, bool, error) {
	claims, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, false, err
	}

	user, created, err := s.users.UpsertByEmail(ctx, claims.Email)
	if err != nil {
		return nil, false, err
	}
	user.DisplayName = claims.Name
	user.AvatarURL = claims.Picture

	if created && s.events != nil {
		if err := s.events.PublishRegistered(ctx, user.ID, user.Username); err != nil {
			s.logger.Warn("failed to publish registered event", "err", err)
		}
	}
	return user, created, nil
}

// ValidateIdentityToken checks a federated identity token: local revocation
// first, then the provider's verification.
func (s *AuthService) ValidateIdentityToken(ctx context.Context, idToken string) error {
	revoked, err := s.revocations.IsRevoked(ctx, core.HashToken(idToken))
	if err != nil {
		return fmt.Errorf("failed to check revocation: %w", err)
	}
	if revoked {
		return core.ErrTokenRevoked
	}
	_, err = s.verifier.Verify(ctx, idToken)
	return err
}

// Refresh rotates a session token: the old token must still validate, a
// fresh token is minted for the same subject, and the superseded token is
// revoked for its remaining lifetime so it cannot be replayed.
func (s *AuthService) Refresh(ctx context.Context, token string) (string, *core.Session, error) {
	old, err := s.ValidateSession(ctx, token)
	if err != nil {
		return "", nil, err
	}

	fresh, session, err := s.tokenizer.Mint(old.Subject, old.Kind)
	if err != nil {
		return "", nil, fmt.Errorf("failed to mint session token: %w", err)
	}

	ttl := old.Remaining(time.Now())
	if ttl < minRevocationTTL {
		ttl = minRevocationTTL
	}
	if err := s.revocations.Revoke(ctx, core.HashToken(token), ttl); err != nil {
		return "", nil, fmt.Errorf("failed to revoke superseded token: %w", err)
	}
	return fresh, session, nil
}

// Revoke adds a token to the revocation set. Always succeeds for well-formed
// requests: an unparsable token is still revoked for a fixed retention
// window, because revocation is the safety-critical side.
func (s *AuthService) Revoke(ctx context.Context, token string) error {
	ttl := identityRevocationTTL
	if session, err := s.tokenizer.Parse(token); err == nil || errors.Is(err, core.ErrTokenExpired) {
		if session != nil {
			if remaining := session.Remaining(time.Now()); remaining > minRevocationTTL {
				ttl = remaining
			} else {
				ttl = minRevocationTTL
			}
		} else {
			ttl = minRevocationTTL
		}
	}

	hash := core.HashToken(token)
	if err := s.revocations.Revoke(ctx, hash, ttl); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if s.events != nil {
		if err := s.events.PublishRevoked(ctx, hash); err != nil {
			s.logger.Warn("failed to publish revoked event", "err", err)
		}
	}
	return nil
}
