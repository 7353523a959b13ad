// Package objectmap implements the zone's content-addressed object map:
// a sorted key -> object-id collection whose id is itself a hash of its
// contents, so two object maps with the same entries always produce the
// same id regardless of insertion order. Grounded on ndn-lib's
// ObjectMapBuilder (object_map/builder.rs): put/get/remove/iterate while
// building, then build() regenerates the Merkle tree, picks a storage
// mode by cardinality, and freezes the result into an immutable ObjectMap.
package objectmap

import (
	"encoding/base32"
	"encoding/json"
	"fmt"

	"github.com/wugren/buckyos/pkg/kv"
	"github.com/wugren/buckyos/pkg/metrics"
	"github.com/wugren/buckyos/pkg/security"
	"github.com/wugren/buckyos/pkg/zonetypes"
)

// StorageMode names the storage tier an object map's entry count falls in,
// chosen by entry count at build time. Build records the mode on the
// ObjectMap but does not move entries between storages: they stay where
// the Builder put them (memory for NewBuilder, the KV store for
// NewHugeBuilder).
type StorageMode string

const (
	// ModeSimple is selected for up to SimpleModeMaxEntries entries.
	ModeSimple StorageMode = "simple"
	// ModeNormal is selected for more than SimpleModeMaxEntries and up to
	// NormalModeMaxEntries entries.
	ModeNormal StorageMode = "normal"
	// ModeHuge is selected for more than NormalModeMaxEntries entries.
	ModeHuge StorageMode = "huge"
)

const (
	// SimpleModeMaxEntries is the cardinality boundary between simple and
	// normal mode.
	SimpleModeMaxEntries = 128
	// NormalModeMaxEntries is the cardinality boundary between normal and
	// huge mode.
	NormalModeMaxEntries = 16384
)

// SelectMode picks a storage mode for a given entry count.
func SelectMode(count int) StorageMode {
	switch {
	case count <= SimpleModeMaxEntries:
		return ModeSimple
	case count <= NormalModeMaxEntries:
		return ModeNormal
	default:
		return ModeHuge
	}
}

// Builder accumulates object map entries before freezing them into an
// ObjectMap via Build.
type Builder struct {
	storage innerStorage
}

// NewBuilder creates an in-memory Builder, suitable for simple/normal
// mode maps.
func NewBuilder() *Builder {
	return &Builder{storage: newMemStorage()}
}

// NewHugeBuilder creates a Builder backed directly by the zone's KV store,
// for callers who already know the map will be huge (e.g. rebuilding an
// existing huge-mode map).
func NewHugeBuilder(store kv.Store, prefix string) *Builder {
	return &Builder{storage: newKVStorage(store, prefix)}
}

// FromObjectMap creates a Builder seeded with a copy of om's entries.
// Object maps are content-identities: never mutate one in place, always
// clone into a fresh builder first, matching from_object_map's
// clone_storage_for_modify.
func FromObjectMap(om *ObjectMap) *Builder {
	return &Builder{storage: om.storage.clone()}
}

// PutObject binds key to objID (and an optional declared size).
func (b *Builder) PutObject(key, objID string, size *int64) {
	b.storage.put(key, objID, size)
}

// GetObject returns the object id bound to key, if any.
func (b *Builder) GetObject(key string) (string, *int64, bool) {
	return b.storage.get(key)
}

// RemoveObject unbinds key, returning the object id it held.
func (b *Builder) RemoveObject(key string) (string, bool) {
	return b.storage.remove(key)
}

// IsObjectExist reports whether key is currently bound.
func (b *Builder) IsObjectExist(key string) bool {
	return b.storage.exists(key)
}

// Iter returns every entry, sorted by key.
func (b *Builder) Iter() []zonetypes.ObjectMapEntry {
	keys := b.storage.sortedKeys()
	out := make([]zonetypes.ObjectMapEntry, 0, len(keys))
	for _, k := range keys {
		objID, size, _ := b.storage.get(k)
		out = append(out, zonetypes.ObjectMapEntry{Key: k, ObjID: objID, Size: size})
	}
	return out
}

// Body is the serialized, content-addressed summary of an object map:
// its hash method, Merkle root and entry count. The object map's id is
// the hash of this body, not of the entries directly, so two structurally
// distinct storage layouts with identical entries still converge on the
// same id.
type Body struct {
	HashMethod string `json:"hash_method"`
	RootHash   string `json:"root_hash"`
	TotalCount int    `json:"total_count"`
}

// ObjectMap is a frozen, content-addressed key -> object-id collection.
type ObjectMap struct {
	ObjID string
	Body  Body
	Mode  StorageMode

	storage innerStorage
}

// Build freezes the builder's current entries into an ObjectMap: it
// regenerates the Merkle tree over the sorted entries, computes the root
// hash and the map's own content id, and selects a storage mode from the
// final entry count.
func (b *Builder) Build() (*ObjectMap, error) {
	entries := b.Iter()

	leaves := make([][]byte, len(entries))
	for i, e := range entries {
		leaves[i] = hasher.HashLeaf(leafBytes(e))
	}
	root := merkleRoot(leaves)

	body := Body{
		HashMethod: "sha256",
		RootHash:   base32.StdEncoding.EncodeToString(root),
		TotalCount: len(entries),
	}

	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("objectmap: marshal body: %w", err)
	}
	objID := security.HashContent(bodyJSON)
	mode := SelectMode(len(entries))
	metrics.ObjectMapsBuiltTotal.WithLabelValues(string(mode)).Inc()

	return &ObjectMap{
		ObjID:   objID,
		Body:    body,
		Mode:    mode,
		storage: b.storage,
	}, nil
}

func leafBytes(e zonetypes.ObjectMapEntry) []byte {
	size := int64(-1)
	if e.Size != nil {
		size = *e.Size
	}
	return []byte(fmt.Sprintf("%s\x00%s\x00%d", e.Key, e.ObjID, size))
}

// RootHash returns the map's Merkle root, base32-encoded.
func (om *ObjectMap) RootHash() string { return om.Body.RootHash }

// TotalCount returns the map's entry count.
func (om *ObjectMap) TotalCount() int { return om.Body.TotalCount }

// GetObject looks up a key in a built (frozen) object map.
func (om *ObjectMap) GetObject(key string) (string, *int64, bool) {
	return om.storage.get(key)
}

// Iter returns every entry in a built object map, sorted by key.
func (om *ObjectMap) Iter() []zonetypes.ObjectMapEntry {
	keys := om.storage.sortedKeys()
	out := make([]zonetypes.ObjectMapEntry, 0, len(keys))
	for _, k := range keys {
		objID, size, _ := om.storage.get(k)
		out = append(out, zonetypes.ObjectMapEntry{Key: k, ObjID: objID, Size: size})
	}
	return out
}
