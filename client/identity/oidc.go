package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/lwb-io/authkit/core"
)

// UIContext is the platform capability the interactive flow needs: a way to
// put an URL in front of the user.
type UIContext interface {
	OpenURL(url string) error
}

// interactiveTimeout bounds how long the redirect listener waits for the
// user to finish the browser flow.
const interactiveTimeout = 5 * time.Minute

// Provider acquires identity credentials from an OIDC issuer. It exposes
// the three chain strategies as TokenSources.
type Provider struct {
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
	ui       UIContext
	logger   *slog.Logger

	mu      sync.Mutex
	current *oauth2.Token
}

// ProviderConfig configures an OIDC provider.
type ProviderConfig struct {
	IssuerURL    string
	ClientID     string
	RedirectAddr string // host:port for the loopback redirect listener
	Scopes       []string
	Logger       *slog.Logger
}

// NewProvider discovers the issuer and builds a Provider.
func NewProvider(ctx context.Context, cfg ProviderConfig, ui UIContext) (*Provider, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("identity: discover issuer: %w", err)
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		oauth: oauth2.Config{
			ClientID:    cfg.ClientID,
			Endpoint:    provider.Endpoint(),
			RedirectURL: "http://" + cfg.RedirectAddr + "/callback",
			Scopes:      scopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		ui:       ui,
		logger:   logger,
	}, nil
}

// Silent returns the cached credential if its ID token is still valid.
func (p *Provider) Silent() TokenSource {
	return SourceFunc{ID: "silent", Fn: func(ctx context.Context) (*Credential, error) {
		p.mu.Lock()
		tok := p.current
		p.mu.Unlock()
		if tok == nil {
			return nil, core.ErrNoCredential
		}
		return p.credentialFrom(ctx, tok)
	}}
}

// Frictionless redeems the stored refresh token without user interaction.
func (p *Provider) Frictionless() TokenSource {
	return SourceFunc{ID: "frictionless", Fn: func(ctx context.Context) (*Credential, error) {
		p.mu.Lock()
		tok := p.current
		p.mu.Unlock()
		if tok == nil || tok.RefreshToken == "" {
			return nil, core.ErrNoCredential
		}
		fresh, err := p.oauth.TokenSource(ctx, tok).Token()
		if err != nil {
			return nil, fmt.Errorf("identity: refresh grant: %w", err)
		}
		p.remember(fresh)
		return p.credentialFrom(ctx, fresh)
	}}
}

// Interactive runs the authorization-code flow through the user's browser,
// listening on the configured loopback address for the redirect.
func (p *Provider) Interactive() TokenSource {
	return SourceFunc{ID: "interactive", Fn: p.interactive}
}

func (p *Provider) interactive(ctx context.Context) (*Credential, error) {
	if p.ui == nil {
		return nil, core.ErrNoCredential
	}
	ctx, cancel := context.WithTimeout(ctx, interactiveTimeout)
	defer cancel()

	ln, err := net.Listen("tcp", redirectHost(p.oauth.RedirectURL))
	if err != nil {
		return nil, fmt.Errorf("identity: redirect listener: %w", err)
	}
	defer ln.Close()

	state := uuid.NewString()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			errCh <- fmt.Errorf("identity: state mismatch")
			return
		}
		if e := r.URL.Query().Get("error"); e != "" {
			http.Error(w, e, http.StatusBadRequest)
			errCh <- fmt.Errorf("identity: authorization denied: %s", e)
			return
		}
		fmt.Fprintln(w, "Signed in. You can close this window.")
		codeCh <- r.URL.Query().Get("code")
	})
	srv := &http.Server{Handler: mux}
	go srv.Serve(ln)
	defer srv.Close()

	if err := p.ui.OpenURL(p.oauth.AuthCodeURL(state)); err != nil {
		return nil, fmt.Errorf("identity: open browser: %w", err)
	}

	var code string
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-errCh:
		return nil, err
	case code = <-codeCh:
	}

	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("identity: code exchange: %w", err)
	}
	p.remember(tok)
	return p.credentialFrom(ctx, tok)
}

func (p *Provider) remember(tok *oauth2.Token) {
	p.mu.Lock()
	p.current = tok
	p.mu.Unlock()
}

func (p *Provider) credentialFrom(ctx context.Context, tok *oauth2.Token) (*Credential, error) {
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, core.ErrNoCredential
	}
	idToken, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("identity: verify id token: %w", err)
	}
	return &Credential{IDToken: raw, Expiry: idToken.Expiry}, nil
}

func redirectHost(redirectURL string) string {
	// RedirectURL is always "http://host:port/callback", built above.
	host, _, _ := strings.Cut(strings.TrimPrefix(redirectURL, "http://"), "/")
	return host
}
