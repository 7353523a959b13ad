// Package blobstore persists chunk bytes received by a backup target,
// keyed by the same content hash pkg/chunkstore uses for bookkeeping.
// Grounded on the same pkg/kv ordered namespace every other zone-core
// store builds on, rather than a dedicated blob backend, since the
// module already treats kv.Store as the durable substrate for anything
// smaller than a chunk's worth of bytes.
package blobstore

import (
	"fmt"

	"github.com/wugren/buckyos/pkg/kv"
)

// Store persists chunk bytes by content hash.
type Store struct {
	kv kv.Store
}

// New creates a Store over the given key/value backend.
func New(store kv.Store) *Store {
	return &Store{kv: store}
}

func blobKey(hash string) string { return fmt.Sprintf("blobs/%s", hash) }

// Put writes a chunk's bytes under its content hash, overwriting any
// previous write (idempotent under retry).
func (s *Store) Put(hash string, data []byte) error {
	return s.kv.Set(blobKey(hash), string(data))
}

// Get returns a chunk's bytes, or kv.ErrKeyNotFound if it was never
// uploaded.
func (s *Store) Get(hash string) ([]byte, error) {
	raw, err := s.kv.Get(blobKey(hash))
	if err != nil {
		return nil, err
	}
	return []byte(raw), nil
}

// Has reports whether a chunk's bytes have already been stored.
func (s *Store) Has(hash string) (bool, error) {
	_, err := s.kv.Get(blobKey(hash))
	if err == kv.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
