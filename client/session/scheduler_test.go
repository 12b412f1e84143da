package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwb-io/authkit/client/credstore"
	"github.com/lwb-io/authkit/client/validator"
)

type countingRefresher struct {
	refreshes atomic.Int64
	validates atomic.Int64
}

func (r *countingRefresher) Refresh(ctx context.Context, force bool) (string, error) {
	r.refreshes.Add(1)
	return "fresh-token", nil
}

func (r *countingRefresher) ValidateCurrent(ctx context.Context) (validator.Status, error) {
	r.validates.Add(1)
	return validator.StatusValid, nil
}

func newTestScheduler(t *testing.T, store credstore.Store) (*AutoRefreshScheduler, *countingRefresher) {
	t.Helper()
	refresher := &countingRefresher{}
	s := NewAutoRefreshScheduler(SchedulerConfig{
		Facade: refresher,
		Store:  store,
		Lead:   5 * time.Minute,
		Poll:   time.Second,
	})
	t.Cleanup(s.Stop)
	return s, refresher
}

func TestSchedulerRefreshesInsideLeadWindow(t *testing.T) {
	store := credstore.NewMemory()
	require.NoError(t, store.PutToken("tok"))
	require.NoError(t, store.PutExpiry(time.Now().Add(100*time.Second)))

	s, refresher := newTestScheduler(t, store)
	s.Start()

	assert.Eventually(t, func() bool {
		return refresher.refreshes.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestSchedulerIdlesOutsideLeadWindow(t *testing.T) {
	store := credstore.NewMemory()
	require.NoError(t, store.PutToken("tok"))
	require.NoError(t, store.PutExpiry(time.Now().Add(time.Hour)))

	s, refresher := newTestScheduler(t, store)
	s.Start()

	time.Sleep(2500 * time.Millisecond)
	assert.Zero(t, refresher.refreshes.Load())
}

func TestSchedulerIdlesWithoutCredentials(t *testing.T) {
	s, refresher := newTestScheduler(t, credstore.NewMemory())
	s.Start()

	time.Sleep(1500 * time.Millisecond)
	assert.Zero(t, refresher.refreshes.Load())
	assert.Zero(t, refresher.validates.Load(), "no startup validation without a token")
}

func TestSchedulerValidatesExistingSessionOnStart(t *testing.T) {
	store := credstore.NewMemory()
	require.NoError(t, store.PutToken("tok"))
	require.NoError(t, store.PutExpiry(time.Now().Add(time.Hour)))

	s, refresher := newTestScheduler(t, store)
	s.Start()

	assert.Eventually(t, func() bool {
		return refresher.validates.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSchedulerStartIsIdempotent(t *testing.T) {
	store := credstore.NewMemory()
	require.NoError(t, store.PutToken("tok"))
	require.NoError(t, store.PutExpiry(time.Now().Add(100*time.Second)))

	s, _ := newTestScheduler(t, store)
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()

	// Restart after stop works.
	s.Start()
	s.Stop()
}

func TestSchedulerStopHaltsLoop(t *testing.T) {
	store := credstore.NewMemory()
	require.NoError(t, store.PutToken("tok"))
	require.NoError(t, store.PutExpiry(time.Now().Add(100*time.Second)))

	s, refresher := newTestScheduler(t, store)
	s.Start()
	require.Eventually(t, func() bool {
		return refresher.refreshes.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)
	s.Stop()

	before := refresher.refreshes.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, before, refresher.refreshes.Load())
}
