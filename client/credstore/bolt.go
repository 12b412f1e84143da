package credstore

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/lwb-io/authkit/core"
)

// KeySize is the required length of the at-rest encryption key.
const KeySize = chacha20poly1305.KeySize

var bucketCredentials = []byte("credentials")

var (
	keyToken   = []byte("token")
	keyKind    = []byte("kind")
	keyExpiry  = []byte("expiry")
	keyProfile = []byte("profile")
)

// Bolt is a file-backed Store. Every value is sealed with XChaCha20-Poly1305
// under the caller-supplied key; the random nonce is prefixed to the
// ciphertext. The token never touches the file in plaintext.
type Bolt struct {
	db  *bbolt.DB
	key []byte
}

// OpenBolt opens (creating if needed) the credential database at path.
// The key must be exactly KeySize bytes; it is the platform owner's job to
// source and protect it.
func OpenBolt(path string, key []byte) (*Bolt, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("credstore: key must be %d bytes, got %d", KeySize, len(key))
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("credstore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCredentials)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("credstore: init bucket: %w", err)
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &Bolt{db: db, key: k}, nil
}

// Close releases the underlying database file.
func (b *Bolt) Close() error { return b.db.Close() }

func (b *Bolt) PutToken(token string) error { return b.putSealed(keyToken, []byte(token)) }

func (b *Bolt) Token() (string, error) {
	raw, err := b.getSealed(keyToken)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (b *Bolt) PutTokenKind(kind core.TokenKind) error {
	return b.putSealed(keyKind, []byte(kind))
}

func (b *Bolt) TokenKind() (core.TokenKind, error) {
	raw, err := b.getSealed(keyKind)
	if err != nil {
		return core.KindUnknown, err
	}
	return core.TokenKind(raw), nil
}

func (b *Bolt) PutExpiry(at time.Time) error {
	return b.putSealed(keyExpiry, []byte(strconv.FormatInt(at.Unix(), 10)))
}

func (b *Bolt) Expiry() (time.Time, error) {
	raw, err := b.getSealed(keyExpiry)
	if err != nil {
		return time.Time{}, err
	}
	secs, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("credstore: corrupt expiry: %w", err)
	}
	return time.Unix(secs, 0), nil
}

func (b *Bolt) PutProfile(user *core.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return b.putSealed(keyProfile, raw)
}

func (b *Bolt) Profile() (*core.User, error) {
	raw, err := b.getSealed(keyProfile)
	if err != nil {
		return nil, err
	}
	var u core.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("credstore: corrupt profile: %w", err)
	}
	return &u, nil
}

// Clear removes every credential key in one transaction, so a crash cannot
// leave a token behind without its kind or expiry. Clearing an already empty
// store succeeds.
func (b *Bolt) Clear() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucketCredentials)
		for _, k := range [][]byte{keyToken, keyKind, keyExpiry, keyProfile} {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Bolt) putSealed(key, plaintext []byte) error {
	sealed, err := b.seal(plaintext)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCredentials).Put(key, sealed)
	})
}

func (b *Bolt) getSealed(key []byte) ([]byte, error) {
	var sealed []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketCredentials).Get(key)
		if v == nil {
			return core.ErrNoCredential
		}
		sealed = make([]byte, len(v))
		copy(sealed, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b.open(sealed)
}

func (b *Bolt) seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("credstore: nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (b *Bolt) open(sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("credstore: sealed value too short")
	}
	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("credstore: unseal: %w", err)
	}
	return plaintext, nil
}
