// Package chunkstore tracks which content-addressed chunks have already
// been pushed to, or uploaded onto, a remote chunk server, so the backup
// engine's retry loop never re-sends a chunk it already landed. This is
// the Go form of the original task.rs bookkeeping calls
// is_chunk_info_pushed/chunk_info_pushed and
// is_chunk_uploaded/chunk_uploaded, generalized onto pkg/kv instead of an
// ad hoc in-process map so the bookkeeping survives a restart.
package chunkstore

import (
	"fmt"
	"strings"

	"github.com/wugren/buckyos/pkg/kv"
)

// Store tracks chunk push/upload bookkeeping keyed by content hash, so
// identical chunks shared across files are only pushed and uploaded once.
type Store struct {
	kv kv.Store
}

// New creates a Store over the given key/value backend.
func New(store kv.Store) *Store {
	return &Store{kv: store}
}

func infoKey(hash string) string   { return fmt.Sprintf("chunks/%s/info", hash) }
func uploadKey(hash string) string { return fmt.Sprintf("chunks/%s/uploaded", hash) }

// IsInfoPushed reports whether this chunk's metadata has already been
// pushed to a remote chunk manager.
func (s *Store) IsInfoPushed(hash string) (bool, error) {
	return s.exists(infoKey(hash))
}

// MarkInfoPushed records that this chunk's metadata has been pushed.
func (s *Store) MarkInfoPushed(hash string, length int64) error {
	return s.kv.Set(infoKey(hash), fmt.Sprintf("%d", length))
}

// IsUploaded reports whether this chunk's bytes have already landed on a
// remote chunk server.
func (s *Store) IsUploaded(hash string) (bool, error) {
	return s.exists(uploadKey(hash))
}

// MarkUploaded records that this chunk's bytes have been uploaded.
func (s *Store) MarkUploaded(hash string) error {
	return s.kv.Set(uploadKey(hash), "1")
}

// Counts returns the number of distinct chunk hashes with pushed metadata
// and the number with uploaded bytes, for metrics reporting. Both counts
// are global across every task, which is the whole point of keying this
// store by content hash rather than by task.
func (s *Store) Counts() (pushed, uploaded int, err error) {
	keys, err := s.kv.ListKeys("chunks/")
	if err != nil {
		return 0, 0, fmt.Errorf("chunkstore: list: %w", err)
	}
	for _, k := range keys {
		switch {
		case strings.HasSuffix(k, "/info"):
			pushed++
		case strings.HasSuffix(k, "/uploaded"):
			uploaded++
		}
	}
	return pushed, uploaded, nil
}

func (s *Store) exists(key string) (bool, error) {
	_, err := s.kv.Get(key)
	if err == kv.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
