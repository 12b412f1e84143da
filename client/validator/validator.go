// Package validator decides whether a stored session token is still good.
// It checks the local revocation registry first (revoked is revoked, no
// network involved), then asks the backend, retrying transient failures with
// exponential backoff.
//
// StatusRevoked is a refinement of the unauthorized family: the outcome is
// terminal and the error unwraps to the same "sign in again" handling, but
// the status lets callers tell a local revocation hit from a backend 401.
package validator

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/lwb-io/authkit/client/revoked"
	"github.com/lwb-io/authkit/core"
)

// Status is the outcome of a validation run.
type Status int

const (
	StatusValid Status = iota
	StatusRevoked
	StatusUnauthorized
	StatusServerError
	StatusNetworkError
	StatusUnexpected
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusRevoked:
		return "revoked"
	case StatusUnauthorized:
		return "unauthorized"
	case StatusServerError:
		return "server_error"
	case StatusNetworkError:
		return "network_error"
	default:
		return "unexpected"
	}
}

// Backend is the slice of the API client the validator needs.
type Backend interface {
	ValidateSession(ctx context.Context, token string) error
	ValidateIdentity(ctx context.Context, idToken string) error
	Revoke(ctx context.Context, token string) error
}

// Policy bounds the retry loop. The delay before attempt n (n ≥ 2) is
// BaseDelay * Multiplier^(n-2); the first attempt runs immediately.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultPolicy matches the production retry budget.
var DefaultPolicy = Policy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond, Multiplier: 2.0}

func (p Policy) delay(attempt int) time.Duration {
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
}

// Validator runs the validation state machine.
type Validator struct {
	backend  Backend
	registry revoked.Registry
	policy   Policy
	observer Observer
	logger   *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Validator.
type Option func(*Validator)

// WithPolicy overrides the retry policy.
func WithPolicy(p Policy) Option {
	return func(v *Validator) { v.policy = p }
}

// WithObserver attaches an observer. Combine several with Combine.
func WithObserver(o Observer) Option {
	return func(v *Validator) { v.observer = o }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// New builds a Validator over the given backend and local registry.
func New(backend Backend, registry revoked.Registry, opts ...Option) *Validator {
	v := &Validator{
		backend:  backend,
		registry: registry,
		policy:   DefaultPolicy,
		observer: Noop{},
		logger:   slog.Default(),
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks the token. The kind routes the check to the matching
// backend endpoint; KindUnknown falls back to shape classification.
func (v *Validator) Validate(ctx context.Context, token string, kind core.TokenKind) (Status, error) {
	if token == "" {
		return StatusUnauthorized, core.ErrNoCredential
	}

	if ok, err := v.registry.IsRevoked(token); err != nil {
		v.logger.Warn("revocation registry lookup failed", "error", err)
	} else if ok {
		v.observer.OnResult(StatusRevoked, 0, core.ErrTokenRevoked)
		return StatusRevoked, core.ErrTokenRevoked
	}

	if kind == core.KindUnknown {
		kind = core.ClassifyToken(token)
		v.logger.Debug("token kind unrecorded, classified by shape", "kind", string(kind))
	}

	var (
		status   Status
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= v.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := v.policy.delay(attempt - 1)
			v.observer.OnRetry(attempt, delay)
			if err := v.sleep(ctx, delay); err != nil {
				return StatusUnexpected, err
			}
		}
		v.observer.OnAttempt(attempt, kind)

		lastErr = v.check(ctx, token, kind)
		status = classify(lastErr)
		attempts = attempt
		v.logger.Debug("validation attempt", "attempt", attempt, "status", status.String())
		if !retryable(status, lastErr) {
			break
		}
	}

	v.observer.OnResult(status, attempts, lastErr)
	if status == StatusValid {
		return status, nil
	}
	return status, lastErr
}

// Revoke marks the token revoked locally, always, then tells the backend on
// a best-effort basis. A backend failure never unwinds the local mark.
func (v *Validator) Revoke(ctx context.Context, token string) error {
	if err := v.registry.MarkRevoked(token); err != nil {
		return err
	}
	if err := v.backend.Revoke(ctx, token); err != nil {
		v.logger.Warn("remote revocation failed", "error", err)
	}
	return nil
}

func (v *Validator) check(ctx context.Context, token string, kind core.TokenKind) error {
	if kind == core.KindIdentity {
		return v.backend.ValidateIdentity(ctx, token)
	}
	return v.backend.ValidateSession(ctx, token)
}

func classify(err error) Status {
	var se *core.ServerError
	switch {
	case err == nil:
		return StatusValid
	case errors.Is(err, core.ErrUnauthorized), errors.Is(err, core.ErrInvalidCreds),
		errors.Is(err, core.ErrTokenExpired), errors.Is(err, core.ErrTokenRevoked):
		return StatusUnauthorized
	case errors.As(err, &se):
		return StatusServerError
	case errors.Is(err, core.ErrNetwork):
		return StatusNetworkError
	default:
		return StatusUnexpected
	}
}

func retryable(status Status, err error) bool {
	switch status {
	case StatusNetworkError:
		return true
	case StatusServerError:
		var se *core.ServerError
		return errors.As(err, &se) && se.Retryable()
	default:
		return false
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
