package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwb-io/authkit/adapters/identity"
	"github.com/lwb-io/authkit/adapters/store"
	"github.com/lwb-io/authkit/adapters/tokenizer"
	"github.com/lwb-io/authkit/altcha"
	"github.com/lwb-io/authkit/ports"
	"github.com/lwb-io/authkit/service"
)

const powSecret = "pow-secret"

type testServer struct {
	router   *gin.Engine
	verifier *identity.StaticVerifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	verifier := identity.NewStaticVerifier()
	svc := service.NewAuthService(
		tokenizer.NewJWTTokenizer([]byte("token-secret"), time.Hour),
		store.NewMemoryUserStore(),
		store.NewMemoryRevocationStore(),
		verifier,
		nil,
		altcha.NewIssuer(altcha.Options{Secret: powSecret, PrefixLen: 2}),
		nil,
	)
	return &testServer{router: SetupRouter(svc), verifier: verifier}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func solvedPayload(t *testing.T, ttl time.Duration) string {
	t.Helper()
	issuer := altcha.NewIssuer(altcha.Options{Secret: powSecret, PrefixLen: 2, TTL: ttl})
	c, err := issuer.Issue()
	require.NoError(t, err)
	sol, err := altcha.Solve(context.Background(), c)
	require.NoError(t, err)
	payload, err := sol.Encode()
	require.NoError(t, err)
	return payload
}

func TestChallengeEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/v1/altcha/challenge", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var c altcha.Challenge
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.NotEmpty(t, c.Salt)
	assert.NotEmpty(t, c.Signature)
	assert.Greater(t, c.Expires, time.Now().Unix())
}

func TestRegisterSuccess(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/v1/auth/pwd/register", gin.H{
		"username": "alice",
		"password": "password123",
		"altcha":   solvedPayload(t, altcha.DefaultTTL),
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var res struct {
		User struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"user"`
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.NotEmpty(t, res.User.ID)
	assert.Equal(t, "alice", res.User.Username)
	assert.NotEmpty(t, res.Token)
}

func TestRegisterExpiredPuzzle(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/v1/auth/pwd/register", gin.H{
		"username": "alice",
		"password": "password123",
		"altcha":   solvedPayload(t, -10*time.Second),
	}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderAltchaExpired))
	assert.JSONEq(t, `{"error":"altcha_failed"}`, w.Body.String())
}

func TestRegisterBadPuzzle(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/v1/auth/pwd/register", gin.H{
		"username": "alice",
		"password": "password123",
		"altcha":   "bm90IGEgcGF5bG9hZA==",
	}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "altcha_failed", w.Header().Get(HeaderAuthReason))
	assert.Empty(t, w.Header().Get(HeaderAltchaExpired))
}

func TestRegisterDuplicate(t *testing.T) {
	s := newTestServer(t)
	body := func() gin.H {
		return gin.H{"username": "alice", "password": "password123", "altcha": solvedPayload(t, altcha.DefaultTTL)}
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/auth/pwd/register", body(), nil).Code)

	w := s.do(t, http.MethodPost, "/v1/auth/pwd/register", body(), nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"user_exists"}`, w.Body.String())
}

func registerAlice(t *testing.T, s *testServer) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/auth/pwd/register", gin.H{
		"username": "alice",
		"password": "password123",
		"altcha":   solvedPayload(t, altcha.DefaultTTL),
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res.Token
}

func TestLoginEndpoint(t *testing.T) {
	s := newTestServer(t)
	registerAlice(t, s)

	w := s.do(t, http.MethodPost, "/v1/auth/pwd/login", gin.H{"username": "alice", "password": "password123"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/v1/auth/pwd/login", gin.H{"username": "alice", "password": "nope-wrong"}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"invalid_credentials"}`, w.Body.String())
}

func TestValidateAndRevoke(t *testing.T) {
	s := newTestServer(t)
	token := registerAlice(t, s)

	w := s.do(t, http.MethodPost, "/v1/auth/pwd/validate", gin.H{"token": token}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/v1/auth/revoke", gin.H{"token": token}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/v1/auth/pwd/validate", gin.H{"token": token}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	s := newTestServer(t)
	token := registerAlice(t, s)

	w := s.do(t, http.MethodPost, "/v1/auth/pwd/refresh", gin.H{"token": token}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Token     string `json:"token"`
		ExpiresAt int64  `json:"expiresAt"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.NotEqual(t, token, res.Token)
	assert.Greater(t, res.ExpiresAt, time.Now().Unix())

	// Old token is gone, the fresh one works.
	require.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/v1/auth/pwd/validate", gin.H{"token": token}, nil).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/auth/pwd/validate", gin.H{"token": res.Token}, nil).Code)
}

func TestIdentityEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.verifier.Allow("idp-token", ports.IdentityClaims{Subject: "sub", Email: "a@example.com"})

	w := s.do(t, http.MethodPost, "/v1/auth/register", gin.H{"idToken": "idp-token"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodPost, "/v1/auth/register", gin.H{"idToken": "idp-token"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/auth/validate", gin.H{"idToken": "idp-token"}, nil).Code)
	require.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/v1/auth/validate", gin.H{"idToken": "forged"}, nil).Code)
}

func TestSessionMiddleware(t *testing.T) {
	s := newTestServer(t)
	token := registerAlice(t, s)

	w := s.do(t, http.MethodGet, "/v1/api/me", nil, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/v1/api/me", nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/v1/api/me", nil, map[string]string{"Authorization": "Bearer forged.token.here"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
