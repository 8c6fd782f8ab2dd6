package ledger

import (
	"encoding/json"
	"fmt"
)

// Item is a single JSON-encoded value stored under a fixed namespace key.
type Item[T any] struct {
	namespace string
}

// NewItem declares an item. The namespace must be unique per store.
func NewItem[T any](namespace string) Item[T] {
	return Item[T]{namespace: namespace}
}

const itemKey = ""

func (i Item[T]) Save(s Store, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", i.namespace, err)
	}
	return s.Save(i.namespace, itemKey, raw)
}

// MayLoad returns ok=false when the item was never saved.
func (i Item[T]) MayLoad(s Store) (T, bool, error) {
	var v T
	raw, found, err := s.Load(i.namespace, itemKey)
	if err != nil || !found {
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decode %s: %w", i.namespace, err)
	}
	return v, true, nil
}

// Load is MayLoad with absence reported as ErrNotFound.
func (i Item[T]) Load(s Store) (T, error) {
	v, ok, err := i.MayLoad(s)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, fmt.Errorf("%s: %w", i.namespace, ErrNotFound)
	}
	return v, nil
}

// Map is a string-keyed collection of JSON-encoded values.
type Map[V any] struct {
	namespace string
}

func NewMap[V any](namespace string) Map[V] {
	return Map[V]{namespace: namespace}
}

func (m Map[V]) Save(s Store, key string, v V) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", m.namespace, key, err)
	}
	return s.Save(m.namespace, key, raw)
}

func (m Map[V]) MayLoad(s Store, key string) (V, bool, error) {
	var v V
	raw, found, err := s.Load(m.namespace, key)
	if err != nil || !found {
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decode %s/%s: %w", m.namespace, key, err)
	}
	return v, true, nil
}

func (m Map[V]) Has(s Store, key string) (bool, error) {
	_, found, err := s.Load(m.namespace, key)
	return found, err
}

func (m Map[V]) Remove(s Store, key string) error {
	return s.Remove(m.namespace, key)
}

// Update loads the current value (if any), applies fn and saves the result.
func (m Map[V]) Update(s Store, key string, fn func(current V, found bool) (V, error)) (V, error) {
	current, found, err := m.MayLoad(s, key)
	if err != nil {
		return current, err
	}
	next, err := fn(current, found)
	if err != nil {
		return next, err
	}
	if err := m.Save(s, key, next); err != nil {
		return next, err
	}
	return next, nil
}
