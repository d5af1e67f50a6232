package bt

import "sync"

// lockedMap is a map guarded by its own mutex, used for the GATT caches that
// are filled from BLE callbacks.
type lockedMap[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func newLockedMap[K comparable, V any]() *lockedMap[K, V] {
	return &lockedMap[K, V]{m: make(map[K]V)}
}

func (l *lockedMap[K, V]) Load(key K) (V, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.m[key]
	return v, ok
}

func (l *lockedMap[K, V]) Store(key K, value V) {
	l.mu.Lock()
	l.m[key] = value
	l.mu.Unlock()
}

func (l *lockedMap[K, V]) Clear() {
	l.mu.Lock()
	l.m = make(map[K]V)
	l.mu.Unlock()
}

func (l *lockedMap[K, V]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.m)
}
