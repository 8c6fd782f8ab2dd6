package ledger

import (
	"fmt"
	"sort"
)

type cacheKey struct {
	namespace string
	key       string
}

type cacheEntry struct {
	value   []byte
	deleted bool
}

// Cache buffers writes over a parent Store. Reads see buffered writes first.
// Nothing reaches the parent until Write; dropping the Cache discards the
// buffered writes.
type Cache struct {
	parent Store
	dirty  map[cacheKey]cacheEntry
}

func NewCache(parent Store) *Cache {
	return &Cache{
		parent: parent,
		dirty:  make(map[cacheKey]cacheEntry),
	}
}

func (c *Cache) Save(namespace, key string, value []byte) error {
	c.dirty[cacheKey{namespace, key}] = cacheEntry{value: append([]byte(nil), value...)}
	return nil
}

func (c *Cache) Load(namespace, key string) ([]byte, bool, error) {
	if e, ok := c.dirty[cacheKey{namespace, key}]; ok {
		if e.deleted {
			return nil, false, nil
		}
		return append([]byte(nil), e.value...), true, nil
	}
	return c.parent.Load(namespace, key)
}

func (c *Cache) Remove(namespace, key string) error {
	c.dirty[cacheKey{namespace, key}] = cacheEntry{deleted: true}
	return nil
}

// Ops returns the buffered writes in namespace/key order.
func (c *Cache) Ops() []Op {
	keys := make([]cacheKey, 0, len(c.dirty))
	for k := range c.dirty {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].namespace == keys[j].namespace {
			return keys[i].key < keys[j].key
		}
		return keys[i].namespace < keys[j].namespace
	})
	ops := make([]Op, 0, len(keys))
	for _, k := range keys {
		e := c.dirty[k]
		ops = append(ops, Op{Namespace: k.namespace, Key: k.key, Value: e.value, Delete: e.deleted})
	}
	return ops
}

// Write flushes buffered writes to the parent, atomically when the parent is
// a Batcher, and resets the buffer.
func (c *Cache) Write() error {
	ops := c.Ops()
	if len(ops) == 0 {
		return nil
	}
	if b, ok := c.parent.(Batcher); ok {
		if err := b.ApplyBatch(ops); err != nil {
			return fmt.Errorf("apply batch: %w", err)
		}
	} else {
		for _, op := range ops {
			var err error
			if op.Delete {
				err = c.parent.Remove(op.Namespace, op.Key)
			} else {
				err = c.parent.Save(op.Namespace, op.Key, op.Value)
			}
			if err != nil {
				return fmt.Errorf("write %s/%s: %w", op.Namespace, op.Key, err)
			}
		}
	}
	c.dirty = make(map[cacheKey]cacheEntry)
	return nil
}

// Discard drops every buffered write.
func (c *Cache) Discard() {
	c.dirty = make(map[cacheKey]cacheEntry)
}

// ApplyBatch buffers ops, so a nested Cache flushes into this one in a
// single step.
func (c *Cache) ApplyBatch(ops []Op) error {
	for _, op := range ops {
		k := cacheKey{op.Namespace, op.Key}
		if op.Delete {
			c.dirty[k] = cacheEntry{deleted: true}
			continue
		}
		c.dirty[k] = cacheEntry{value: append([]byte(nil), op.Value...)}
	}
	return nil
}
