package identity

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwb-io/authkit/core"
)

type countingSource struct {
	name  string
	cred  *Credential
	err   error
	calls int
}

func (s *countingSource) Name() string { return s.name }

func (s *countingSource) Token(ctx context.Context) (*Credential, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.cred, nil
}

func TestChainReturnsFirstHit(t *testing.T) {
	silent := &countingSource{name: "silent", cred: &Credential{IDToken: "cached"}}
	interactive := &countingSource{name: "interactive", cred: &Credential{IDToken: "fresh"}}
	chain := NewChain(nil, silent, interactive)

	cred, err := chain.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached", cred.IDToken)
	assert.Zero(t, interactive.calls, "later sources must not run after a hit")
}

func TestChainSwallowsIntermediateFailures(t *testing.T) {
	silent := &countingSource{name: "silent", err: core.ErrNoCredential}
	frictionless := &countingSource{name: "frictionless", err: errors.New("refresh expired")}
	interactive := &countingSource{name: "interactive", cred: &Credential{IDToken: "fresh"}}
	chain := NewChain(nil, silent, frictionless, interactive)

	cred, err := chain.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", cred.IDToken)
	assert.Equal(t, 1, silent.calls)
	assert.Equal(t, 1, frictionless.calls)
}

func TestChainSurfacesFinalFailure(t *testing.T) {
	boom := errors.New("user closed the browser")
	chain := NewChain(nil,
		&countingSource{name: "silent", err: core.ErrNoCredential},
		&countingSource{name: "interactive", err: boom},
	)

	_, err := chain.Token(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestChainHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &countingSource{name: "silent", cred: &Credential{IDToken: "x"}}
	_, err := NewChain(nil, src).Token(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, src.calls)
}

func TestChainEmpty(t *testing.T) {
	_, err := NewChain(nil).Token(context.Background())
	assert.ErrorIs(t, err, core.ErrNoCredential)
}

func TestRegionBlockClassification(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		blocked bool
	}{
		{"forbidden front door", errors.New("provider returned 403 Forbidden"), true},
		{"assertion permission", fmt.Errorf("call failed: %w", errors.New("verifyAssertion: PERMISSION_DENIED")), true},
		{"wrapped deep", fmt.Errorf("a: %w", fmt.Errorf("b: %w", errors.New("HTTP 403 forbidden by policy"))), true},
		{"plain failure", errors.New("connection reset"), false},
		{"403 without forbidden", errors.New("status 403"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyRegionBlock(tc.err)
			var rb *core.RegionBlockedError
			if tc.blocked {
				require.ErrorAs(t, got, &rb)
				assert.ErrorIs(t, rb.Cause, tc.err)
			} else {
				assert.False(t, errors.As(got, &rb))
			}
		})
	}
}

func TestChainClassifiesRegionBlockOnFinalSource(t *testing.T) {
	chain := NewChain(nil,
		&countingSource{name: "silent", err: core.ErrNoCredential},
		&countingSource{name: "interactive", err: errors.New("idp: 403 forbidden for this region")},
	)

	_, err := chain.Token(context.Background())
	var rb *core.RegionBlockedError
	assert.ErrorAs(t, err, &rb)
}
