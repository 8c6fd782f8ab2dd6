// Package ledger provides the namespaced key-value capability that contract
// and bank state is written to. A Store is scoped to one chain instance; the
// ABCI application wraps it in a Cache per transaction so that a call either
// commits all of its writes or none of them. MemStore is the in-memory
// backend used by tests; internal/storage provides the durable one.
package ledger

import (
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned by Item.Load when the value was never saved.
var ErrNotFound = errors.New("not found")

// Store is the persistent map a contract instance reads and writes.
type Store interface {
	Save(namespace, key string, value []byte) error
	// Load reports found=false for absent keys; that is not an error.
	Load(namespace, key string) (value []byte, found bool, err error)
	// Remove of an absent key is a no-op.
	Remove(namespace, key string) error
}

// Op is a single buffered write. Delete ops carry no value.
type Op struct {
	Namespace string
	Key       string
	Value     []byte
	Delete    bool
}

// Batcher is implemented by stores that can apply several ops atomically.
type Batcher interface {
	ApplyBatch(ops []Op) error
}

// Iterator is implemented by stores that can walk every entry.
type Iterator interface {
	Each(fn func(namespace, key string, value []byte) error) error
}

// MemStore is a thread-safe in-memory Store.
type MemStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[string]map[string][]byte),
	}
}

func (m *MemStore) Save(namespace, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveLocked(namespace, key, value)
	return nil
}

func (m *MemStore) Load(namespace, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[namespace][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemStore) Remove(namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[namespace], key)
	return nil
}

// ApplyBatch applies ops under a single lock.
func (m *MemStore) ApplyBatch(ops []Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		if op.Delete {
			delete(m.data[op.Namespace], op.Key)
			continue
		}
		m.saveLocked(op.Namespace, op.Key, op.Value)
	}
	return nil
}

// Each walks a copy of every entry in namespace/key order.
func (m *MemStore) Each(fn func(namespace, key string, value []byte) error) error {
	m.mu.RLock()
	var ops []Op
	for ns, entries := range m.data {
		for k, v := range entries {
			ops = append(ops, Op{Namespace: ns, Key: k, Value: append([]byte(nil), v...)})
		}
	}
	m.mu.RUnlock()

	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Namespace == ops[j].Namespace {
			return ops[i].Key < ops[j].Key
		}
		return ops[i].Namespace < ops[j].Namespace
	})
	for _, op := range ops {
		if err := fn(op.Namespace, op.Key, op.Value); err != nil {
			return err
		}
	}
	return nil
}

// Keys returns the sorted keys of a namespace. Test helper.
func (m *MemStore) Keys(namespace string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data[namespace]))
	for k := range m.data[namespace] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Count returns the number of keys in a namespace.
func (m *MemStore) Count(namespace string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data[namespace]), nil
}

func (m *MemStore) saveLocked(namespace, key string, value []byte) {
	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string][]byte)
		m.data[namespace] = ns
	}
	ns[key] = append([]byte(nil), value...)
}
