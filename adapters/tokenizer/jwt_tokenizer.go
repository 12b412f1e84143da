package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lwb-io/authkit/core"
	"github.com/lwb-io/authkit/ports"
)

// AudienceSession is the audience claim every session token carries.
const AudienceSession = "auth:session"

// DefaultSessionTTL is how long a minted session token stays valid.
const DefaultSessionTTL = time.Hour

// JWTTokenizer implements the Tokenizer interface using HS256 JWTs.
type JWTTokenizer struct {
	secret []byte
	ttl    time.Duration

	now func() time.Time
}

// NewJWTTokenizer creates a tokenizer signing with the given secret. A zero
// ttl falls back to DefaultSessionTTL.
func NewJWTTokenizer(secret []byte, ttl time.Duration) ports.Tokenizer {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &JWTTokenizer{secret: secret, ttl: ttl, now: time.Now}
}

// Mint issues a signed session token for the subject.
func (j *JWTTokenizer) Mint(subject string, kind core.TokenKind) (string, *core.Session, error) {
	now := j.now()
	session := &core.Session{
		ID:        uuid.New().String(),
		Subject:   subject,
		Kind:      kind,
		IssuedAt:  now,
		ExpiresAt: now.Add(j.ttl),
	}

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.Subject,
			ID:        session.ID,
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
		Kind: string(kind),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, session, nil
}

// Parse verifies a session token and returns its decoded session.
func (j *JWTTokenizer) Parse(tokenStr string) (*core.Session, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithAudience(AudienceSession), jwt.WithTimeFunc(func() time.Time { return j.now() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, core.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, core.ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return nil, core.ErrInvalidToken
	}

	session := &core.Session{
		ID:      claims.ID,
		Subject: claims.Subject,
		Kind:    core.TokenKind(claims.Kind),
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}
