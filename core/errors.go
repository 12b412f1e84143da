package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTokenExpired  = errors.New("token has expired")
	ErrTokenRevoked  = errors.New("token has been revoked")
	ErrInvalidToken  = errors.New("invalid token")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNetwork       = errors.New("network failure")
	ErrNoUser        = errors.New("no current user")
	ErrUserExists    = errors.New("user already exists")
	ErrInvalidCreds  = errors.New("invalid credentials")
	ErrAltchaFailed  = errors.New("proof-of-work verification failed")
	ErrAltchaExpired = errors.New("proof-of-work challenge expired")
	ErrNoCredential  = errors.New("no credential available")
)

// ServerError carries a 5xx status from the backend. RetryAfter is non-zero
// only when the response carried an explicit retry hint; without the hint the
// failure is terminal.
type ServerError struct {
	Code       int
	RetryAfter time.Duration
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: HTTP %d", e.Code)
}

// Retryable reports whether the backend invited another attempt.
func (e *ServerError) Retryable() bool { return e.RetryAfter > 0 }

// UnexpectedError wraps an outcome outside the known taxonomy. Terminal.
type UnexpectedError struct {
	Detail string
}

func (e *UnexpectedError) Error() string {
	return "unexpected auth failure: " + e.Detail
}

// RegionBlockedError marks a federated sign-in rejected because the identity
// provider is unreachable from the user's region. The UI offers password
// auth in response instead of a generic retry.
type RegionBlockedError struct {
	Cause error
}

func (e *RegionBlockedError) Error() string {
	return "identity provider blocked in this region"
}

func (e *RegionBlockedError) Unwrap() error { return e.Cause }
