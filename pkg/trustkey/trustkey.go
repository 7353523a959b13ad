// Package trustkey resolves a credential's "kid" to the Ed25519 public
// key that should verify it: the zone owner's key for kid "root", or a
// device's trust key loaded from the zone's config store otherwise. A
// resolved key is cached, mirroring the verify hub's TRUSTKEY_CACHE.
package trustkey

import (
	"crypto/ed25519"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/wugren/buckyos/pkg/kv"
	"github.com/wugren/buckyos/pkg/zonetypes"
)

const rootKid = "root"

// Resolver resolves a kid to a verification key, consulting an LRU cache
// before falling back to the zone's config store.
type Resolver struct {
	store    kv.Store
	rootKey  ed25519.PublicKey
	cache    *lru.Cache
	mu       sync.RWMutex
}

// NewResolver creates a Resolver backed by store, with rootKey as the
// zone owner's trust key (used to verify kid == "root").
func NewResolver(store kv.Store, rootKey ed25519.PublicKey, cacheSize int) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create trust key cache: %w", err)
	}
	return &Resolver{store: store, rootKey: rootKey, cache: cache}, nil
}

// Resolve returns the public key that should verify a credential with the
// given kid.
func (r *Resolver) Resolve(kid string) (ed25519.PublicKey, error) {
	if kid == rootKid {
		r.mu.RLock()
		defer r.mu.RUnlock()
		if r.rootKey == nil {
			return nil, fmt.Errorf("trustkey: root key not configured")
		}
		return r.rootKey, nil
	}

	if cached, ok := r.cache.Get(kid); ok {
		return cached.(ed25519.PublicKey), nil
	}

	key, err := r.loadDeviceKey(kid)
	if err != nil {
		return nil, err
	}
	r.cache.Add(kid, key)
	return key, nil
}

// Register installs a device's trust key directly into the config store
// under "trustkeys/<kid>", used during device enrollment.
func (r *Resolver) Register(tk *zonetypes.TrustKey) error {
	if tk.Kid == "" {
		return fmt.Errorf("trustkey: empty kid")
	}
	return r.store.Set(trustKeyStoreKey(tk.Kid), string(tk.PublicJWK))
}

func (r *Resolver) loadDeviceKey(kid string) (ed25519.PublicKey, error) {
	raw, err := r.store.Get(trustKeyStoreKey(kid))
	if err != nil {
		return nil, fmt.Errorf("trustkey: resolve kid %q: %w", kid, err)
	}
	key := ed25519.PublicKey(raw)
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("trustkey: kid %q has invalid key size %d", kid, len(key))
	}
	return key, nil
}

func trustKeyStoreKey(kid string) string {
	return "trustkeys/" + kid
}

// Invalidate evicts a cached key, used after a device's trust key is
// rotated or revoked.
func (r *Resolver) Invalidate(kid string) {
	r.cache.Remove(kid)
}
