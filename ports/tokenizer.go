package ports

import "github.com/lwb-io/authkit/core"

// Tokenizer converts between sessions and opaque signed tokens.
type Tokenizer interface {
	// Mint issues a signed token for the subject, tagged with its kind.
	Mint(subject string, kind core.TokenKind) (token string, session *core.Session, err error)

	// Parse verifies the signature and registered claims of a token and
	// returns its decoded session. Expired or malformed tokens fail with
	// core.ErrTokenExpired / core.ErrInvalidToken.
	Parse(token string) (*core.Session, error)
}
