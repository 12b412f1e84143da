package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims combine the registered claims with the kind tag that routes
// validation without guessing from token shape.
type SessionClaims struct {
	jwt.RegisteredClaims
	Kind string `json:"kind"`
}
