package inmemory

import "sync"

// kvStore is a mutex guarded map.
type kvStore[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]V
}

func newKVStore[K comparable, V any]() *kvStore[K, V] {
	return &kvStore[K, V]{
		m: make(map[K]V),
	}
}

func (s *kvStore[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func (s *kvStore[K, V]) Get(key K) (value V, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok = s.m[key]
	return
}

// Swap sets the value and returns the previous one.
func (s *kvStore[K, V]) Swap(key K, value V) (prev V, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok = s.m[key]
	s.m[key] = value
	return
}

func (s *kvStore[K, V]) Delete(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

// ForEach calls fn on a snapshot of the entries until fn returns false.
func (s *kvStore[K, V]) ForEach(fn func(key K, value V) bool) {
	s.mu.Lock()
	snapshot := make(map[K]V, len(s.m))
	for k, v := range s.m {
		snapshot[k] = v
	}
	s.mu.Unlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}
