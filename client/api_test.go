package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwb-io/authkit/core"
)

func TestRegisterAndLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/auth/pwd/register":
			w.Write([]byte(`{"user":{"id":"u1","username":"alice"},"token":"tok-1"}`))
		case "/v1/auth/pwd/login":
			w.Write([]byte(`{"user":{"id":"u1","username":"alice"},"token":"tok-2"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	api := New(srv.URL)
	res, err := api.Register(context.Background(), "alice", "password123", "payload")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.User.Username)
	assert.Equal(t, "tok-1", res.Token)

	res, err = api.Login(context.Background(), "alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", res.Token)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		header  map[string]string
		body    string
		wantErr error
	}{
		{"conflict", http.StatusConflict, nil, `{"error":"user_exists"}`, core.ErrUserExists},
		{"bad credentials", http.StatusUnauthorized, nil, `{"error":"invalid_credentials"}`, core.ErrInvalidCreds},
		{"unauthorized", http.StatusUnauthorized, nil, `{"error":"invalid_token"}`, core.ErrUnauthorized},
		{"altcha failed", http.StatusBadRequest, nil, `{"error":"altcha_failed"}`, core.ErrAltchaFailed},
		{"altcha expired", http.StatusBadRequest, map[string]string{"X-Altcha-Expired": "1"}, `{"error":"altcha_failed"}`, core.ErrAltchaExpired},
		{"plain bad request", http.StatusBadRequest, nil, `{"error":"bad_request"}`, core.ErrUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tc.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL).Register(context.Background(), "alice", "pw", "x")
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestServerErrorCarriesRetryHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := New(srv.URL).ValidateSession(context.Background(), "tok")
	var se *core.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.Equal(t, 2*time.Second, se.RetryAfter)
	assert.True(t, se.Retryable())
}

func TestServerErrorWithoutHintIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New(srv.URL).ValidateSession(context.Background(), "tok")
	var se *core.ServerError
	require.ErrorAs(t, err, &se)
	assert.False(t, se.Retryable())
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	err := New(srv.URL).ValidateSession(context.Background(), "tok")
	assert.ErrorIs(t, err, core.ErrNetwork)
}
