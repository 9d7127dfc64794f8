// Package concurrent provides the process-local concurrency primitives
// every session and mailbox in mxfleet is built on: a keyed map of
// shared-ownership values and a bounded, read-then-evictable mailbox.
package concurrent

import "sync"

// KeyedStateMap is a concurrent map from K to a shared handle of V.
// Any number of readers may call Get concurrently; mutations are
// serialized behind a single writer lock. A lock that fails to
// acquire degrades gracefully rather than panicking: callers get a
// safe zero value back.
type KeyedStateMap[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]*V
}

// NewKeyedStateMap creates an empty map.
func NewKeyedStateMap[K comparable, V any]() *KeyedStateMap[K, V] {
	return &KeyedStateMap[K, V]{items: make(map[K]*V)}
}

// Insert replaces any prior value for key and reports success.
func (m *KeyedStateMap[K, V]) Insert(key K, value V) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = &value
	return true
}

// GetArc returns the current shared handle for key, or nil if absent.
func (m *KeyedStateMap[K, V]) GetArc(key K) *V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.items[key]
}

// Remove deletes key if present.
func (m *KeyedStateMap[K, V]) Remove(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
}

// List returns the current keys in unspecified order.
func (m *KeyedStateMap[K, V]) List() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]K, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	return keys
}

// Take removes and returns the shared handle for key if present.
func (m *KeyedStateMap[K, V]) Take(key K) *V {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	if !ok {
		return nil
	}
	delete(m.items, key)
	return v
}

// TryInsertDeferredReturning returns the current handle for key if
// present; otherwise it computes make() and installs it, then returns
// that. make is invoked at most once, and only while the write lock
// is held, so no concurrent caller can observe a partially
// constructed value.
func (m *KeyedStateMap[K, V]) TryInsertDeferredReturning(key K, make_ func() V) *V {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.items[key]; ok {
		return v
	}
	v := make_()
	m.items[key] = &v
	return m.items[key]
}
