// Package session ties the client pieces together: credential acquisition,
// backend exchange, persistence, validation, and proactive refresh.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/lwb-io/authkit/altcha"
	"github.com/lwb-io/authkit/client"
	"github.com/lwb-io/authkit/client/credstore"
	"github.com/lwb-io/authkit/client/identity"
	"github.com/lwb-io/authkit/client/validator"
	"github.com/lwb-io/authkit/core"
)

const (
	// DefaultLeadTime is subtracted from a token's embedded expiry so refresh
	// happens before the backend starts rejecting the token.
	DefaultLeadTime = 5 * time.Minute

	// fallbackLifetime approximates a session's lifetime when the token
	// carries no readable expiry.
	fallbackLifetime = 50 * time.Minute

	// backgroundValidateTimeout bounds the fire-and-forget validation that
	// follows a sign-in.
	backgroundValidateTimeout = 30 * time.Second
)

// Backend is the slice of the API client the facade needs.
type Backend interface {
	Challenge(ctx context.Context) ([]byte, error)
	Register(ctx context.Context, username, password, altchaPayload string) (*client.AuthResult, error)
	Login(ctx context.Context, username, password string) (*client.AuthResult, error)
	ExchangeIdentityToken(ctx context.Context, idToken string) (*core.User, error)
	Refresh(ctx context.Context, token string) (*client.RefreshResult, error)
}

// SessionValidator is the slice of the validator the facade needs.
type SessionValidator interface {
	Validate(ctx context.Context, token string, kind core.TokenKind) (validator.Status, error)
	Revoke(ctx context.Context, token string) error
}

// CredentialSource yields a federated identity credential.
type CredentialSource interface {
	Token(ctx context.Context) (*identity.Credential, error)
}

// Facade is the client's single entry point for the auth lifecycle.
type Facade struct {
	backend       Backend
	store         credstore.Store
	validator     SessionValidator
	chain         CredentialSource
	refreshSource CredentialSource
	lead          time.Duration
	logger        *slog.Logger
	now           func() time.Time

	refreshing singleflight.Group
}

// Config assembles a Facade. Chain may be nil when only password auth is
// wired; Lead defaults to DefaultLeadTime.
type Config struct {
	Backend   Backend
	Store     credstore.Store
	Validator SessionValidator
	Chain     CredentialSource

	// RefreshSource renews federated sessions without user interaction,
	// typically the provider's silent and frictionless sources chained.
	// Nil leaves identity sessions without a refresh path.
	RefreshSource CredentialSource

	Lead   time.Duration
	Logger *slog.Logger
}

// New builds a Facade.
func New(cfg Config) *Facade {
	lead := cfg.Lead
	if lead <= 0 {
		lead = DefaultLeadTime
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{
		backend:       cfg.Backend,
		store:         cfg.Store,
		validator:     cfg.Validator,
		chain:         cfg.Chain,
		refreshSource: cfg.RefreshSource,
		lead:          lead,
		logger:        logger,
		now:           time.Now,
	}
}

// SignInWithIdentityToken acquires a federated credential, exchanges it for
// an application user, and persists the session. The immediate refresh and
// the follow-up validation are best-effort: a stale-but-valid token is an
// acceptable sign-in outcome.
func (f *Facade) SignInWithIdentityToken(ctx context.Context) (*core.User, error) {
	if f.chain == nil {
		return nil, core.ErrNoCredential
	}
	cred, err := f.chain.Token(ctx)
	if err != nil {
		return nil, err
	}

	user, err := f.backend.ExchangeIdentityToken(ctx, cred.IDToken)
	if err != nil {
		return nil, err
	}

	if err := f.persist(cred.IDToken, core.KindIdentity, cred.Expiry, user); err != nil {
		return nil, err
	}

	if _, err := f.Refresh(ctx, true); err != nil {
		f.logger.Warn("post-signin refresh failed", "error", err)
	}

	go f.validateCurrentDetached()

	return user, nil
}

// RegisterWithPassword creates a password account. The facade fetches a
// fresh proof-of-work challenge, solves it locally, and attaches the
// solution; solving is CPU-bound and honors ctx.
func (f *Facade) RegisterWithPassword(ctx context.Context, username, password string) (*core.User, error) {
	raw, err := f.backend.Challenge(ctx)
	if err != nil {
		return nil, err
	}
	var challenge altcha.Challenge
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return nil, &core.UnexpectedError{Detail: "malformed challenge"}
	}
	solution, err := altcha.Solve(ctx, &challenge)
	if err != nil {
		return nil, fmt.Errorf("solve challenge: %w", err)
	}
	payload, err := solution.Encode()
	if err != nil {
		return nil, err
	}

	res, err := f.backend.Register(ctx, username, password, payload)
	if err != nil {
		return nil, err
	}
	if err := f.persist(res.Token, core.KindPassword, time.Time{}, &res.User); err != nil {
		return nil, err
	}
	return &res.User, nil
}

// LoginWithPassword authenticates an existing password account. Login never
// demands a proof-of-work solution.
func (f *Facade) LoginWithPassword(ctx context.Context, username, password string) (*core.User, error) {
	res, err := f.backend.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if err := f.persist(res.Token, core.KindPassword, time.Time{}, &res.User); err != nil {
		return nil, err
	}
	return &res.User, nil
}

// CurrentUser returns the signed-in user's profile, nil when signed out.
func (f *Facade) CurrentUser() (*core.User, error) {
	user, err := f.store.Profile()
	if errors.Is(err, core.ErrNoCredential) {
		return nil, nil
	}
	return user, err
}

// Refresh renews the session. Without force, a token still outside its lead
// window is left alone. The stored kind routes the renewal: password tokens
// rotate through the backend, identity tokens through the provider's
// non-interactive source (the backend cannot mint provider assertions).
// Concurrent calls are deduplicated; every caller gets the winner's token.
func (f *Facade) Refresh(ctx context.Context, force bool) (string, error) {
	token, err := f.store.Token()
	if errors.Is(err, core.ErrNoCredential) {
		return "", core.ErrNoUser
	}
	if err != nil {
		return "", err
	}

	if !force {
		if exp, err := f.store.Expiry(); err == nil && exp.Sub(f.now()) > f.lead {
			return token, nil
		}
	}

	kind, err := f.store.TokenKind()
	if err != nil {
		kind = core.ClassifyToken(token)
	}

	fresh, err, _ := f.refreshing.Do("refresh", func() (any, error) {
		if kind == core.KindIdentity {
			return f.refreshIdentity(ctx)
		}
		res, err := f.backend.Refresh(ctx, token)
		if err != nil {
			return nil, err
		}
		exp := time.Unix(res.ExpiresAt, 0)
		if res.ExpiresAt == 0 {
			exp = time.Time{}
		}
		if err := f.persistToken(res.Token, exp); err != nil {
			return nil, err
		}
		return res.Token, nil
	})
	if err != nil {
		return "", err
	}
	return fresh.(string), nil
}

// refreshIdentity renews a federated session by asking the provider for a
// fresh assertion. The provider re-verifies the ID token; persisting it is
// all that is left to do here.
func (f *Facade) refreshIdentity(ctx context.Context) (any, error) {
	if f.refreshSource == nil {
		return nil, fmt.Errorf("renew identity credential: %w", core.ErrNoCredential)
	}
	cred, err := f.refreshSource.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("renew identity credential: %w", err)
	}
	if err := f.persistToken(cred.IDToken, cred.Expiry); err != nil {
		return nil, err
	}
	return cred.IDToken, nil
}

// SignOut revokes the current token on a best-effort basis and clears the
// credential store unconditionally.
func (f *Facade) SignOut(ctx context.Context) error {
	if token, err := f.store.Token(); err == nil && token != "" {
		if err := f.validator.Revoke(ctx, token); err != nil {
			f.logger.Warn("sign-out revocation failed", "error", err)
		}
	}
	return f.store.Clear()
}

// ValidateCurrent checks the stored token against the backend.
func (f *Facade) ValidateCurrent(ctx context.Context) (validator.Status, error) {
	token, err := f.store.Token()
	if errors.Is(err, core.ErrNoCredential) {
		return validator.StatusUnauthorized, core.ErrNoUser
	}
	if err != nil {
		return validator.StatusUnexpected, err
	}
	kind, err := f.store.TokenKind()
	if err != nil {
		kind = core.KindUnknown
	}
	return f.validator.Validate(ctx, token, kind)
}

func (f *Facade) validateCurrentDetached() {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundValidateTimeout)
	defer cancel()
	if status, err := f.ValidateCurrent(ctx); err != nil {
		f.logger.Warn("post-signin validation failed", "status", status.String(), "error", err)
	}
}

// persist stores the full credential set. Token and expiry are written
// back-to-back; a torn read between them only costs one extra refresh.
func (f *Facade) persist(token string, kind core.TokenKind, expiry time.Time, user *core.User) error {
	if err := f.persistToken(token, expiry); err != nil {
		return err
	}
	if err := f.store.PutTokenKind(kind); err != nil {
		return err
	}
	return f.store.PutProfile(user)
}

func (f *Facade) persistToken(token string, expiry time.Time) error {
	if expiry.IsZero() {
		expiry = tokenExpiry(token)
	}
	if expiry.IsZero() {
		expiry = f.now().Add(fallbackLifetime)
	} else {
		expiry = expiry.Add(-f.lead)
	}
	if err := f.store.PutToken(token); err != nil {
		return err
	}
	return f.store.PutExpiry(expiry)
}

// tokenExpiry reads the exp claim without verifying the signature. The
// client holds no signing key; the value only schedules refresh, the backend
// remains the authority on validity.
func tokenExpiry(token string) time.Time {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
