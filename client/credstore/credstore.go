// Package credstore persists the client's credential material: the current
// session token, its kind, its lead-adjusted expiry, and the signed-in user's
// profile. Implementations must keep the token confidential at rest.
package credstore

import (
	"sync"
	"time"

	"github.com/lwb-io/authkit/core"
)

// Store is the credential persistence contract. Reads of absent values
// return core.ErrNoCredential. Clear wipes everything and is idempotent.
type Store interface {
	PutToken(token string) error
	Token() (string, error)

	PutTokenKind(kind core.TokenKind) error
	TokenKind() (core.TokenKind, error)

	PutExpiry(at time.Time) error
	Expiry() (time.Time, error)

	PutProfile(user *core.User) error
	Profile() (*core.User, error)

	Clear() error
}

// Memory is an in-process Store for tests and ephemeral sessions.
type Memory struct {
	mu      sync.RWMutex
	token   string
	kind    core.TokenKind
	expiry  time.Time
	profile *core.User

	hasToken  bool
	hasKind   bool
	hasExpiry bool
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) PutToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.hasToken = true
	return nil
}

func (m *Memory) Token() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasToken {
		return "", core.ErrNoCredential
	}
	return m.token, nil
}

func (m *Memory) PutTokenKind(kind core.TokenKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kind = kind
	m.hasKind = true
	return nil
}

func (m *Memory) TokenKind() (core.TokenKind, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasKind {
		return core.KindUnknown, core.ErrNoCredential
	}
	return m.kind, nil
}

func (m *Memory) PutExpiry(at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiry = at
	m.hasExpiry = true
	return nil
}

func (m *Memory) Expiry() (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasExpiry {
		return time.Time{}, core.ErrNoCredential
	}
	return m.expiry, nil
}

func (m *Memory) PutProfile(user *core.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := *user
	m.profile = &u
	return nil
}

func (m *Memory) Profile() (*core.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.profile == nil {
		return nil, core.ErrNoCredential
	}
	u := *m.profile
	return &u, nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.kind, m.expiry, m.profile = "", core.KindUnknown, time.Time{}, nil
	m.hasToken, m.hasKind, m.hasExpiry = false, false, false
	return nil
}
