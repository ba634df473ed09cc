// Package registry provides a concurrency-safe registry of live values
// keyed by ID, used to keep hydrated navigation sessions addressable
// across server requests.
package registry

import (
	"fmt"
	"sync"
)

// Registry maps IDs to live values. Safe for concurrent use.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
}

// New creates an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[string]T)}
}

// Put stores a value under the given ID, overwriting any previous entry.
func (r *Registry[T]) Put(id string, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = v
}

// Get looks up a value by ID.
func (r *Registry[T]) Get(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[id]
	return v, ok
}

// MustGet looks up a value by ID, returning an error when absent.
func (r *Registry[T]) MustGet(id string) (T, error) {
	v, ok := r.Get(id)
	if !ok {
		var zero T
		return zero, fmt.Errorf("not registered: %s", id)
	}
	return v, nil
}

// Remove deletes an entry, if present.
func (r *Registry[T]) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// IDs returns the registered IDs.
func (r *Registry[T]) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of entries.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
