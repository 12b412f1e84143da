// Package revoked keeps the client's local record of tokens it has revoked.
// The registry stores token hashes, never tokens, and is append-only: once a
// token is marked revoked it stays revoked for the life of the registry.
package revoked

import (
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/lwb-io/authkit/core"
)

// Registry answers "did this client revoke that token?" without any network
// traffic. Implementations must be safe for concurrent use.
type Registry interface {
	MarkRevoked(token string) error
	IsRevoked(token string) (bool, error)
}

// Memory is an in-process Registry.
type Memory struct {
	mu     sync.RWMutex
	hashes map[string]struct{}
}

// NewMemory builds an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{hashes: make(map[string]struct{})}
}

func (m *Memory) MarkRevoked(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[core.HashToken(token)] = struct{}{}
	return nil
}

func (m *Memory) IsRevoked(token string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.hashes[core.HashToken(token)]
	return ok, nil
}

var bucketRevoked = []byte("revoked")

// Bolt is a file-backed Registry so revocations survive restarts.
type Bolt struct {
	db *bbolt.DB
}

// OpenBolt opens (creating if needed) the revocation database at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("revoked: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRevoked)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("revoked: init bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Close releases the underlying database file.
func (b *Bolt) Close() error { return b.db.Close() }

func (b *Bolt) MarkRevoked(token string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRevoked).Put([]byte(core.HashToken(token)), []byte{1})
	})
}

func (b *Bolt) IsRevoked(token string) (bool, error) {
	var found bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketRevoked).Get([]byte(core.HashToken(token))) != nil
		return nil
	})
	return found, err
}
