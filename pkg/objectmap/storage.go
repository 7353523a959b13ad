package objectmap

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/wugren/buckyos/pkg/kv"
)

// innerStorage is the pluggable backing for an object map's entries.
// Grounded on ndn-lib's ObjectMapInnerStorage trait: a small map keeps
// everything in memory, a huge one is backed by the zone's persistent KV
// store so it can hold more entries than comfortably fit in memory.
type innerStorage interface {
	put(key, objID string, size *int64)
	get(key string) (objID string, size *int64, ok bool)
	remove(key string) (objID string, ok bool)
	exists(key string) bool
	count() int
	sortedKeys() []string
	clone() innerStorage
}

// memStorage is an in-memory map, used for "simple" and "normal" mode
// object maps.
type memStorage struct {
	entries map[string]memEntry
}

type memEntry struct {
	objID string
	size  *int64
}

func newMemStorage() *memStorage {
	return &memStorage{entries: make(map[string]memEntry)}
}

func (m *memStorage) put(key, objID string, size *int64) {
	m.entries[key] = memEntry{objID: objID, size: size}
}

func (m *memStorage) get(key string) (string, *int64, bool) {
	e, ok := m.entries[key]
	if !ok {
		return "", nil, false
	}
	return e.objID, e.size, true
}

func (m *memStorage) remove(key string) (string, bool) {
	e, ok := m.entries[key]
	if !ok {
		return "", false
	}
	delete(m.entries, key)
	return e.objID, true
}

func (m *memStorage) exists(key string) bool {
	_, ok := m.entries[key]
	return ok
}

func (m *memStorage) count() int { return len(m.entries) }

func (m *memStorage) sortedKeys() []string {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *memStorage) clone() innerStorage {
	cp := newMemStorage()
	for k, v := range m.entries {
		cp.entries[k] = v
	}
	return cp
}

// kvStorage backs a "huge" mode object map with the zone's persistent KV
// store, namespaced under a caller-chosen prefix.
type kvStorage struct {
	kv     kv.Store
	prefix string
}

func newKVStorage(store kv.Store, prefix string) *kvStorage {
	return &kvStorage{kv: store, prefix: prefix}
}

func (k *kvStorage) entryKey(key string) string {
	return fmt.Sprintf("%s/entries/%s", k.prefix, key)
}

func (k *kvStorage) put(key, objID string, size *int64) {
	_ = k.kv.Set(k.entryKey(key), encodeEntry(objID, size))
}

func (k *kvStorage) get(key string) (string, *int64, bool) {
	raw, err := k.kv.Get(k.entryKey(key))
	if err != nil {
		return "", nil, false
	}
	objID, size := decodeEntry(raw)
	return objID, size, true
}

func (k *kvStorage) remove(key string) (string, bool) {
	objID, size, ok := k.get(key)
	_ = size
	if !ok {
		return "", false
	}
	_ = k.kv.Delete(k.entryKey(key))
	return objID, true
}

func (k *kvStorage) exists(key string) bool {
	_, _, ok := k.get(key)
	return ok
}

func (k *kvStorage) count() int {
	keys, err := k.kv.ListKeys(k.prefix + "/entries/")
	if err != nil {
		return 0
	}
	return len(keys)
}

func (k *kvStorage) sortedKeys() []string {
	full, err := k.kv.ListKeys(k.prefix + "/entries/")
	if err != nil {
		return nil
	}
	prefixLen := len(k.prefix + "/entries/")
	keys := make([]string, len(full))
	for i, f := range full {
		keys[i] = f[prefixLen:]
	}
	sort.Strings(keys)
	return keys
}

func (k *kvStorage) clone() innerStorage {
	cp := newKVStorage(k.kv, k.prefix+"-clone-"+uuid.NewString())
	for _, key := range k.sortedKeys() {
		objID, size, _ := k.get(key)
		cp.put(key, objID, size)
	}
	return cp
}

func encodeEntry(objID string, size *int64) string {
	if size == nil {
		return "0:" + objID
	}
	return fmt.Sprintf("%d:%s", *size, objID)
}

func decodeEntry(raw string) (objID string, size *int64) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == ':' {
			var n int64
			fmt.Sscanf(raw[:i], "%d", &n)
			objID = raw[i+1:]
			if n != 0 {
				size = &n
			}
			return
		}
	}
	return raw, nil
}
