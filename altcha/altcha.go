// Package altcha implements the proof-of-work challenge protecting
// registration against automated abuse. The server issues an HMAC-signed
// puzzle, the client brute-forces a number whose salted hash starts with the
// challenge prefix, and the server verifies the returned payload without
// keeping any per-challenge state: the signature binds every field of the
// puzzle it issued.
package altcha

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"

	"github.com/lwb-io/authkit/core"
)

// Supported hash algorithms, named as the widget protocol names them.
const (
	AlgSHA1   = "SHA-1"
	AlgSHA256 = "SHA-256"
	AlgSHA512 = "SHA-512"
)

const (
	saltBytes = 12
	minPrefix = 2
	maxPrefix = 6

	// DefaultMaxNumber bounds the client's search space. Expected solve cost
	// is 16^len(prefix)/2 hash operations, so the bound mostly guards against
	// malformed challenges rather than setting difficulty.
	DefaultMaxNumber int64 = 200_000

	// DefaultPrefixLen balances solve latency against abuse cost.
	DefaultPrefixLen = 3

	// DefaultTTL is how long an issued challenge stays verifiable.
	DefaultTTL = 5 * time.Minute

	// solveCancelStride is how many iterations Solve runs between context
	// checks.
	solveCancelStride = 4096
)

// ErrSolutionNotFound is returned when no number within the search bound
// satisfies the challenge. This indicates a malformed or impossibly hard
// challenge and must not be retried.
var ErrSolutionNotFound = errors.New("altcha: no solution found within search bound")

// Challenge is an issued puzzle. Immutable once signed.
type Challenge struct {
	Algorithm string `json:"algorithm"`
	Challenge string `json:"challenge"` // hex digest prefix to match
	Salt      string `json:"salt"`
	MaxNumber int64  `json:"maxnumber"`
	Expires   int64  `json:"expires"` // unix seconds, server clock
	Signature string `json:"signature"`
}

// Solution is the client's answer, transported base64(JSON).
type Solution struct {
	Algorithm string `json:"algorithm"`
	Challenge string `json:"challenge"`
	Salt      string `json:"salt"`
	Number    int64  `json:"number"`
	Expires   int64  `json:"expires"`
	Signature string `json:"signature"`
}

// Encode serializes the solution for transport.
func (s *Solution) Encode() (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("altcha: encode solution: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeSolution parses a base64 payload produced by Encode (or by the
// upstream widget, which uses the same shape).
func DecodeSolution(payload string) (*Solution, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64", core.ErrAltchaFailed)
	}
	var s Solution
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: bad payload", core.ErrAltchaFailed)
	}
	return &s, nil
}

// Options configure an Issuer. Zero values fall back to defaults.
type Options struct {
	Secret    string
	Algorithm string
	PrefixLen int
	MaxNumber int64
	TTL       time.Duration
}

// Issuer creates and verifies challenges with a shared HMAC secret.
type Issuer struct {
	secret    []byte
	algorithm string
	prefixLen int
	maxNumber int64
	ttl       time.Duration

	now func() time.Time
}

// NewIssuer builds an Issuer, clamping the prefix length into [2,6].
func NewIssuer(opts Options) *Issuer {
	alg := normalizeAlgorithm(opts.Algorithm)
	prefixLen := opts.PrefixLen
	if prefixLen == 0 {
		prefixLen = DefaultPrefixLen
	}
	if prefixLen < minPrefix {
		prefixLen = minPrefix
	}
	if prefixLen > maxPrefix {
		prefixLen = maxPrefix
	}
	maxNumber := opts.MaxNumber
	if maxNumber <= 0 {
		maxNumber = DefaultMaxNumber
	}
	ttl := opts.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		secret:    []byte(opts.Secret),
		algorithm: alg,
		prefixLen: prefixLen,
		maxNumber: maxNumber,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Issue creates a fresh signed challenge.
func (i *Issuer) Issue() (*Challenge, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("altcha: generate salt: %w", err)
	}
	prefixSrc := make([]byte, maxPrefix)
	if _, err := rand.Read(prefixSrc); err != nil {
		return nil, fmt.Errorf("altcha: generate prefix: %w", err)
	}

	c := &Challenge{
		Algorithm: i.algorithm,
		Challenge: hex.EncodeToString(prefixSrc)[:i.prefixLen],
		Salt:      hex.EncodeToString(salt),
		MaxNumber: i.maxNumber,
		Expires:   i.now().Add(i.ttl).Unix(),
	}
	c.Signature = i.sign(c.Algorithm, c.Challenge, c.Salt, c.Expires)
	return c, nil
}

// Verify checks a solution payload. The signature is checked first so a
// client cannot probe the hash condition with garbage signatures, then the
// expiry (server clock is authoritative), then the hash condition itself.
func (i *Issuer) Verify(payload string) error {
	s, err := DecodeSolution(payload)
	if err != nil {
		return err
	}

	alg := normalizeAlgorithm(s.Algorithm)
	expected := i.sign(alg, s.Challenge, s.Salt, s.Expires)
	if !signaturesEqual(expected, s.Signature) {
		return fmt.Errorf("%w: bad signature", core.ErrAltchaFailed)
	}

	if s.Expires > 0 && i.now().Unix() > s.Expires {
		return core.ErrAltchaExpired
	}

	digest, err := hexDigest(alg, s.Salt+strconv.FormatInt(s.Number, 10))
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrAltchaFailed, err)
	}
	if !strings.HasPrefix(digest, s.Challenge) {
		return fmt.Errorf("%w: hash condition not met", core.ErrAltchaFailed)
	}
	return nil
}

// Solve brute-forces the challenge: the first n in [0, maxnumber] such that
// hexdigest(salt + decimal(n)) starts with the challenge prefix. CPU-bound;
// run it off any UI-facing goroutine. The context aborts the search early.
func Solve(ctx context.Context, c *Challenge) (*Solution, error) {
	alg := normalizeAlgorithm(c.Algorithm)
	h, err := hasherFor(alg)
	if err != nil {
		return nil, err
	}

	var sum []byte
	for n := int64(0); n <= c.MaxNumber; n++ {
		if n%solveCancelStride == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		h.Reset()
		h.Write([]byte(c.Salt))
		h.Write([]byte(strconv.FormatInt(n, 10)))
		sum = h.Sum(sum[:0])
		if strings.HasPrefix(hex.EncodeToString(sum), c.Challenge) {
			return &Solution{
				Algorithm: alg,
				Challenge: c.Challenge,
				Salt:      c.Salt,
				Number:    n,
				Expires:   c.Expires,
				Signature: c.Signature,
			}, nil
		}
	}
	return nil, ErrSolutionNotFound
}

// sign binds every issued field. The search bound is an issuer parameter,
// not a per-solution degree of freedom, so the issuer's own value goes into
// the MAC regardless of what a payload claims.
func (i *Issuer) sign(algorithm, challenge, salt string, expires int64) string {
	mac := hmac.New(sha256.New, i.secret)
	fmt.Fprintf(mac, "%s|%s|%s|%d|%d", algorithm, challenge, salt, i.maxNumber, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

func signaturesEqual(expected, got string) bool {
	eb, err1 := hex.DecodeString(expected)
	gb, err2 := hex.DecodeString(got)
	if err1 != nil || err2 != nil {
		return false
	}
	return hmac.Equal(eb, gb)
}

func hasherFor(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case AlgSHA1:
		return sha1.New(), nil
	case AlgSHA512:
		return sha512.New(), nil
	case AlgSHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("altcha: unsupported algorithm %q", algorithm)
	}
}

func hexDigest(algorithm, input string) (string, error) {
	h, err := hasherFor(algorithm)
	if err != nil {
		return "", err
	}
	h.Write([]byte(input))
	return hex.EncodeToString(h.Sum(nil)), nil
}

func normalizeAlgorithm(a string) string {
	switch strings.ToUpper(a) {
	case "SHA-1", "SHA1":
		return AlgSHA1
	case "SHA-512", "SHA512":
		return AlgSHA512
	default:
		return AlgSHA256
	}
}
