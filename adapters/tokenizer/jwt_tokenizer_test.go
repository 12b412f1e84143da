package tokenizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwb-io/authkit/core"
)

func TestMintAndParse(t *testing.T) {
	tk := NewJWTTokenizer([]byte("secret"), time.Hour)

	token, session, err := tk.Mint("user-1", core.KindPassword)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, "user-1", session.Subject)
	assert.Equal(t, core.KindPassword, session.Kind)

	parsed, err := tk.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, session.ID, parsed.ID)
	assert.Equal(t, "user-1", parsed.Subject)
	assert.Equal(t, core.KindPassword, parsed.Kind)
	assert.WithinDuration(t, session.ExpiresAt, parsed.ExpiresAt, time.Second)
}

func TestParseExpired(t *testing.T) {
	tk := NewJWTTokenizer([]byte("secret"), time.Minute).(*JWTTokenizer)

	token, _, err := tk.Mint("user-1", core.KindPassword)
	require.NoError(t, err)

	tk.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = tk.Parse(token)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestParseWrongSecret(t *testing.T) {
	a := NewJWTTokenizer([]byte("one"), time.Hour)
	b := NewJWTTokenizer([]byte("two"), time.Hour)

	token, _, err := a.Mint("user-1", core.KindPassword)
	require.NoError(t, err)

	_, err = b.Parse(token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestParseGarbage(t *testing.T) {
	tk := NewJWTTokenizer([]byte("secret"), time.Hour)
	_, err := tk.Parse("definitely.not.ajwt")
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}
