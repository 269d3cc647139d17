// Package state holds process-wide values that other components observe.
package state

import "sync"

// Listener is notified after a key changes. deleted is true when the key
// was removed, in which case v is the zero value.
type Listener[K comparable, V any] func(key K, v V, deleted bool)

// Store is a keyed value container with change notification. It is safe
// for concurrent use. Listeners run synchronously on the writer's
// goroutine, outside the store lock, and must not block.
type Store[K comparable, V any] struct {
	mu        sync.RWMutex
	values    map[K]V
	listeners map[uint64]Listener[K, V]
	nextID    uint64
}

func New[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{
		values:    make(map[K]V),
		listeners: make(map[uint64]Listener[K, V]),
	}
}

func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Store[K, V]) Set(key K, v V) {
	s.mu.Lock()
	s.values[key] = v
	ls := s.listenersLocked()
	s.mu.Unlock()

	for _, l := range ls {
		l(key, v, false)
	}
}

// Update applies fn to the current value (zero value and false when the key
// is absent) and stores the result.
func (s *Store[K, V]) Update(key K, fn func(cur V, ok bool) V) V {
	s.mu.Lock()
	cur, ok := s.values[key]
	next := fn(cur, ok)
	s.values[key] = next
	ls := s.listenersLocked()
	s.mu.Unlock()

	for _, l := range ls {
		l(key, next, false)
	}
	return next
}

func (s *Store[K, V]) Delete(key K) {
	s.mu.Lock()
	_, ok := s.values[key]
	delete(s.values, key)
	ls := s.listenersLocked()
	s.mu.Unlock()

	if !ok {
		return
	}
	var zero V
	for _, l := range ls {
		l(key, zero, true)
	}
}

// Keys returns the current keys in no particular order.
func (s *Store[K, V]) Keys() []K {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]K, 0, len(s.values))
	for k := range s.values {
		out = append(out, k)
	}
	return out
}

// Snapshot returns a copy of all values.
func (s *Store[K, V]) Snapshot() map[K]V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[K]V, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Subscribe registers l and returns a function that removes it.
func (s *Store[K, V]) Subscribe(l Listener[K, V]) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store[K, V]) listenersLocked() []Listener[K, V] {
	out := make([]Listener[K, V], 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l)
	}
	return out
}
