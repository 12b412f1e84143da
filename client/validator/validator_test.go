package validator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwb-io/authkit/client/revoked"
	"github.com/lwb-io/authkit/core"
)

// fakeBackend scripts one error per attempt; nil means the attempt succeeds.
type fakeBackend struct {
	script        []error
	sessionCalls  int
	identityCalls int
	revokeCalls   int
	revokeErr     error
}

func (f *fakeBackend) next() error {
	i := f.sessionCalls + f.identityCalls - 1
	if i < len(f.script) {
		return f.script[i]
	}
	return nil
}

func (f *fakeBackend) ValidateSession(ctx context.Context, token string) error {
	f.sessionCalls++
	return f.next()
}

func (f *fakeBackend) ValidateIdentity(ctx context.Context, idToken string) error {
	f.identityCalls++
	return f.next()
}

func (f *fakeBackend) Revoke(ctx context.Context, token string) error {
	f.revokeCalls++
	return f.revokeErr
}

type recordingObserver struct {
	attempts []int
	retries  []time.Duration
	status   Status
	final    int
}

func (r *recordingObserver) OnAttempt(attempt int, kind core.TokenKind) {
	r.attempts = append(r.attempts, attempt)
}

func (r *recordingObserver) OnResult(status Status, attempts int, err error) {
	r.status = status
	r.final = attempts
}

func (r *recordingObserver) OnRetry(nextAttempt int, delay time.Duration) {
	r.retries = append(r.retries, delay)
}

func newTestValidator(backend *fakeBackend, obs Observer) *Validator {
	v := New(backend, revoked.NewMemory(), WithObserver(obs))
	v.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return v
}

func TestValidTokenFirstAttempt(t *testing.T) {
	backend := &fakeBackend{}
	obs := &recordingObserver{}
	v := newTestValidator(backend, obs)

	status, err := v.Validate(context.Background(), "tok.with.dots", core.KindPassword)
	require.NoError(t, err)
	assert.Equal(t, StatusValid, status)
	assert.Equal(t, 1, backend.sessionCalls)
	assert.Equal(t, []int{1}, obs.attempts)
	assert.Empty(t, obs.retries)
}

func TestRevokedShortCircuitsWithoutNetwork(t *testing.T) {
	backend := &fakeBackend{}
	registry := revoked.NewMemory()
	require.NoError(t, registry.MarkRevoked("tok"))
	v := New(backend, registry)
	v.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	status, err := v.Validate(context.Background(), "tok", core.KindPassword)
	assert.Equal(t, StatusRevoked, status)
	assert.ErrorIs(t, err, core.ErrTokenRevoked)
	assert.Zero(t, backend.sessionCalls)
	assert.Zero(t, backend.identityCalls)

	// The refined status still belongs to the unauthorized family.
	assert.Equal(t, StatusUnauthorized, classify(err))
}

func TestUnauthorizedIsTerminal(t *testing.T) {
	backend := &fakeBackend{script: []error{core.ErrUnauthorized}}
	obs := &recordingObserver{}
	v := newTestValidator(backend, obs)

	status, err := v.Validate(context.Background(), "tok", core.KindPassword)
	assert.Equal(t, StatusUnauthorized, status)
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	assert.Equal(t, 1, backend.sessionCalls)
	assert.Equal(t, 1, obs.final)
}

func TestNetworkFailureRetriesToBudget(t *testing.T) {
	netErr := func() error { return core.ErrNetwork }
	backend := &fakeBackend{script: []error{netErr(), netErr(), netErr()}}
	obs := &recordingObserver{}
	v := newTestValidator(backend, obs)

	status, err := v.Validate(context.Background(), "tok", core.KindPassword)
	assert.Equal(t, StatusNetworkError, status)
	assert.ErrorIs(t, err, core.ErrNetwork)
	assert.Equal(t, 3, backend.sessionCalls)
	assert.Equal(t, []int{1, 2, 3}, obs.attempts)
	// Backoff doubles: 50ms then 100ms, no delay before the first attempt.
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 100 * time.Millisecond}, obs.retries)
}

func TestNetworkFailureThenSuccess(t *testing.T) {
	backend := &fakeBackend{script: []error{core.ErrNetwork, nil}}
	obs := &recordingObserver{}
	v := newTestValidator(backend, obs)

	status, err := v.Validate(context.Background(), "tok", core.KindPassword)
	require.NoError(t, err)
	assert.Equal(t, StatusValid, status)
	assert.Equal(t, 2, backend.sessionCalls)
	assert.Equal(t, 2, obs.final)
}

func TestServerErrorRetriedOnlyWithHint(t *testing.T) {
	hinted := &core.ServerError{Code: 503, RetryAfter: time.Second}
	backend := &fakeBackend{script: []error{hinted, hinted, hinted}}
	v := newTestValidator(backend, &recordingObserver{})

	status, _ := v.Validate(context.Background(), "tok", core.KindPassword)
	assert.Equal(t, StatusServerError, status)
	assert.Equal(t, 3, backend.sessionCalls)

	bare := &core.ServerError{Code: 500}
	backend = &fakeBackend{script: []error{bare}}
	v = newTestValidator(backend, &recordingObserver{})

	status, _ = v.Validate(context.Background(), "tok", core.KindPassword)
	assert.Equal(t, StatusServerError, status)
	assert.Equal(t, 1, backend.sessionCalls, "5xx without Retry-After must not be retried")
}

func TestKindRoutesEndpoint(t *testing.T) {
	backend := &fakeBackend{}
	v := newTestValidator(backend, &recordingObserver{})

	_, err := v.Validate(context.Background(), "opaque-identity-token", core.KindIdentity)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.identityCalls)
	assert.Zero(t, backend.sessionCalls)
}

func TestUnknownKindFallsBackToShape(t *testing.T) {
	backend := &fakeBackend{}
	v := newTestValidator(backend, &recordingObserver{})

	// Two dots and short: treated as a signed session token.
	_, err := v.Validate(context.Background(), "aaa.bbb.ccc", core.KindUnknown)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.sessionCalls)

	// Anything else goes to the identity endpoint.
	_, err = v.Validate(context.Background(), "opaque-blob", core.KindUnknown)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.identityCalls)
}

func TestEmptyTokenIsUnauthorized(t *testing.T) {
	backend := &fakeBackend{}
	v := newTestValidator(backend, &recordingObserver{})

	status, err := v.Validate(context.Background(), "", core.KindPassword)
	assert.Equal(t, StatusUnauthorized, status)
	assert.ErrorIs(t, err, core.ErrNoCredential)
	assert.Zero(t, backend.sessionCalls)
}

func TestRevokeMarksLocallyEvenWhenRemoteFails(t *testing.T) {
	backend := &fakeBackend{revokeErr: errors.New("backend down")}
	registry := revoked.NewMemory()
	v := New(backend, registry)

	require.NoError(t, v.Revoke(context.Background(), "tok"))
	assert.Equal(t, 1, backend.revokeCalls)

	ok, err := registry.IsRevoked("tok")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCombineFlattensAndDropsNoops(t *testing.T) {
	a, b := &recordingObserver{}, &recordingObserver{}
	combined := Combine(Noop{}, a, Combine(b, Noop{}))

	combined.OnAttempt(1, core.KindPassword)
	assert.Equal(t, []int{1}, a.attempts)
	assert.Equal(t, []int{1}, b.attempts)

	assert.IsType(t, Noop{}, Combine())
	assert.Equal(t, a, Combine(a))
}
