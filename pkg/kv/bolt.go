package kv

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var rootBucket = []byte("kv")

// BoltStore is a bbolt-backed Store: every key lives in a single bucket,
// keyed verbatim, so range scans over bbolt's naturally sorted b-tree give
// us ListPrefix/ListKeys/ListDirectChildren for free.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (creating if absent) a bbolt database file at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create root bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (b *BoltStore) Get(key string) (string, error) {
	var value string
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(rootBucket).Get([]byte(key))
		if v == nil {
			return ErrKeyNotFound
		}
		value = string(v)
		return nil
	})
	return value, err
}

func (b *BoltStore) Set(key, value string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(rootBucket).Put([]byte(key), []byte(value))
	})
}

func (b *BoltStore) Create(key, value string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(rootBucket)
		if bucket.Get([]byte(key)) != nil {
			return ErrKeyExists
		}
		return bucket.Put([]byte(key), []byte(value))
	})
}

func (b *BoltStore) Delete(key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(rootBucket)
		if bucket.Get([]byte(key)) == nil {
			return ErrKeyNotFound
		}
		return bucket.Delete([]byte(key))
	})
}

func (b *BoltStore) ListPrefix(prefix string) (map[string]string, error) {
	out := make(map[string]string)
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(rootBucket).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && hasPrefix(k, p); k, v = c.Next() {
			out[string(k)] = string(v)
		}
		return nil
	})
	return out, err
}

func (b *BoltStore) ListKeys(prefix string) ([]string, error) {
	var out []string
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(rootBucket).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && hasPrefix(k, p); k, _ = c.Next() {
			out = append(out, string(k))
		}
		return nil
	})
	return out, err
}

func (b *BoltStore) ListDirectChildren(prefix string) ([]string, error) {
	var keys []string
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(rootBucket).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && hasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return directChildren(prefix, func(yield func(key string) bool) {
		for _, k := range keys {
			if !yield(k) {
				return
			}
		}
	}), nil
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}
