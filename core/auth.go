package core

import (
	"strings"
	"time"
)

// TokenKind tags a session token with the flow that issued it. Routing by
// kind replaces the structural guess the legacy client made (two delimiter
// characters and a short overall length meant "password token").
type TokenKind string

const (
	// KindPassword marks tokens minted by the password login/registration flow.
	KindPassword TokenKind = "pwd"

	// KindIdentity marks federated identity assertion tokens obtained from an
	// external provider and exchanged with the backend.
	KindIdentity TokenKind = "idp"

	// KindUnknown is returned when no kind was recorded and the token shape
	// is ambiguous.
	KindUnknown TokenKind = ""
)

// maxPasswordTokenLen is the length bound of the legacy shape heuristic.
const maxPasswordTokenLen = 300

// ClassifyToken guesses the kind of a token from its shape. It exists only
// for tokens persisted before the kind was recorded alongside them; callers
// should prefer the stored kind.
func ClassifyToken(token string) TokenKind {
	if token == "" {
		return KindUnknown
	}
	if strings.Count(token, ".") == 2 && len(token) < maxPasswordTokenLen {
		return KindPassword
	}
	return KindIdentity
}

// User is a registered principal.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	LastLogin   time.Time `json:"lastLogin,omitempty"`
}

// Session is the decoded view of a session token.
type Session struct {
	ID        string    // Unique token identifier (jti)
	Subject   string    // User ID the token was minted for
	Kind      TokenKind // Flow that issued the token
	IssuedAt  time.Time // When the token was minted
	ExpiresAt time.Time // When the token stops being valid
}

// Remaining reports how long the session is still valid for, zero if expired.
func (s *Session) Remaining(now time.Time) time.Duration {
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
