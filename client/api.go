// Package client is the HTTP client for the auth backend. It speaks the
// backend's JSON endpoints and maps response statuses onto the core error
// taxonomy so callers branch on errors.Is instead of status codes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/lwb-io/authkit/core"
)

const defaultTimeout = 15 * time.Second

// Diagnostic headers the backend sets on failed registrations.
const (
	headerAltchaExpired = "X-Altcha-Expired"
	headerRetryAfter    = "Retry-After"
)

// API is a thin client over the auth backend.
type API struct {
	baseURL string
	http    *http.Client
}

// Option configures an API client.
type Option func(*API)

// WithHTTPClient swaps the underlying http.Client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(a *API) { a.http = c }
}

// New builds an API client for the given base URL (no trailing slash).
func New(baseURL string, opts ...Option) *API {
	a := &API{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AuthResult is the backend's answer to register and login.
type AuthResult struct {
	User  core.User `json:"user"`
	Token string    `json:"token"`
}

// RefreshResult is the backend's answer to a token rotation.
type RefreshResult struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Challenge fetches a fresh proof-of-work puzzle as raw JSON. The altcha
// package decodes it; the client does not interpret the fields.
func (a *API) Challenge(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/altcha/challenge", nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp)
	}
	return io.ReadAll(resp.Body)
}

// Register creates a password account. The altcha payload is mandatory.
func (a *API) Register(ctx context.Context, username, password, altchaPayload string) (*AuthResult, error) {
	var out AuthResult
	err := a.post(ctx, "/v1/auth/pwd/register", map[string]string{
		"username": username,
		"password": password,
		"altcha":   altchaPayload,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Login authenticates a password account.
func (a *API) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	var out AuthResult
	err := a.post(ctx, "/v1/auth/pwd/login", map[string]string{
		"username": username,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ExchangeIdentityToken upserts a user from a verified federated assertion.
func (a *API) ExchangeIdentityToken(ctx context.Context, idToken string) (*core.User, error) {
	var out struct {
		User core.User `json:"user"`
	}
	err := a.post(ctx, "/v1/auth/register", map[string]string{"idToken": idToken}, &out)
	if err != nil {
		return nil, err
	}
	return &out.User, nil
}

// ValidateSession checks a password-issued session token with the backend.
func (a *API) ValidateSession(ctx context.Context, token string) error {
	return a.post(ctx, "/v1/auth/pwd/validate", map[string]string{"token": token}, nil)
}

// ValidateIdentity checks a federated identity token with the backend.
func (a *API) ValidateIdentity(ctx context.Context, idToken string) error {
	return a.post(ctx, "/v1/auth/validate", map[string]string{"idToken": idToken}, nil)
}

// Refresh rotates a session token.
func (a *API) Refresh(ctx context.Context, token string) (*RefreshResult, error) {
	var out RefreshResult
	err := a.post(ctx, "/v1/auth/pwd/refresh", map[string]string{"token": token}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Revoke tells the backend to blacklist a token.
func (a *API) Revoke(ctx context.Context, token string) error {
	return a.post(ctx, "/v1/auth/revoke", map[string]string{"token": token}, nil)
}

func (a *API) post(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return classify(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &core.UnexpectedError{Detail: "malformed response body"}
	}
	return nil
}

// classify turns a non-2xx response into the taxonomy the rest of the client
// branches on. The body's error string is informative only; the status code
// and diagnostic headers decide the mapping.
func classify(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusConflict:
		return core.ErrUserExists
	case resp.StatusCode == http.StatusUnauthorized:
		return unauthorizedError(resp)
	case resp.StatusCode == http.StatusBadRequest:
		if resp.Header.Get(headerAltchaExpired) != "" {
			return core.ErrAltchaExpired
		}
		if reason := errorField(resp); reason == "altcha_failed" {
			return core.ErrAltchaFailed
		}
		// A 400 the proof-of-work markers do not explain means the backend
		// rejected the credential material itself. Terminal, same family as
		// a 401.
		return core.ErrUnauthorized
	case resp.StatusCode >= 500:
		return &core.ServerError{Code: resp.StatusCode, RetryAfter: retryAfter(resp)}
	default:
		return &core.UnexpectedError{Detail: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
}

func unauthorizedError(resp *http.Response) error {
	if errorField(resp) == "invalid_credentials" {
		return core.ErrInvalidCreds
	}
	return core.ErrUnauthorized
}

func errorField(resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ""
	}
	return body.Error
}

func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get(headerRetryAfter)
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
