// Package kv provides the ordered, persistent key/value store the zone
// core's config, trust-key, session and object-map layers are all built
// on top of: a flat string->string namespace with compare-and-swap create
// and delete, plus prefix listing for the "directory" shaped keys
// ("users/alice/settings", "devices/dev1/...").
package kv

import (
	"errors"
	"fmt"
)

// ErrKeyNotFound is returned by Get, Delete and CAS operations that
// require an existing key.
var ErrKeyNotFound = errors.New("kv: key not found")

// ErrKeyExists is returned by Create when the key is already present.
var ErrKeyExists = errors.New("kv: key already exists")

// ErrTooLarge reports a value over a size limit. Neither MemStore nor
// BoltStore enforces a size limit, so neither returns it.
var ErrTooLarge = errors.New("kv: value too large")

// Store is an ordered, persistent key/value namespace.
type Store interface {
	// Get returns the value at key, or ErrKeyNotFound.
	Get(key string) (string, error)

	// Set writes key unconditionally, creating or overwriting it.
	Set(key, value string) error

	// Create writes key only if it does not already exist
	// (compare-and-swap against "absent"). Returns ErrKeyExists otherwise.
	Create(key, value string) error

	// Delete removes key, or returns ErrKeyNotFound if absent.
	Delete(key string) error

	// ListPrefix returns every key/value pair whose key has the given
	// prefix.
	ListPrefix(prefix string) (map[string]string, error)

	// ListKeys returns every key with the given prefix, without values.
	ListKeys(prefix string) ([]string, error)

	// ListDirectChildren returns the immediate "path segment" children of
	// prefix: given keys "a/b/c" and "a/b/d/e" under prefix "a/b", it
	// returns ["c", "d"], not "d/e".
	ListDirectChildren(prefix string) ([]string, error)

	// Close releases any underlying resources.
	Close() error
}

func keyTooLargeErr(key string, size, max int) error {
	return fmt.Errorf("%w: key %q is %d bytes, max %d", ErrTooLarge, key, size, max)
}
