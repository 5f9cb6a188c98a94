// Package registry implements the sorted-by-id container discipline shared
// by every entity registry in the kernel (stations, routes, cohorts, forces,
// factions, ...): insertion rejects duplicates, storage stays sorted
// ascending by primary id, and iteration visits entries in id order.
package registry

import (
	"errors"
	"sort"
)

// ErrDuplicateID is returned by Insert when the id is already present.
var ErrDuplicateID = errors.New("registry: duplicate id")

// ErrNotFound is returned by Remove/Get when the id is absent.
var ErrNotFound = errors.New("registry: not found")

// ErrCapacity is returned by Insert once the registry is at capacity.
var ErrCapacity = errors.New("registry: at capacity")

// Registry is a capacity-bounded, id-sorted store of T, keyed by a uint64
// primary id extracted via idOf. Zero capacity means unbounded.
type Registry[T any] struct {
	items    []T
	idOf     func(T) uint64
	capacity int
}

// New creates a Registry. capacity <= 0 means unbounded.
func New[T any](capacity int, idOf func(T) uint64) *Registry[T] {
	return &Registry[T]{idOf: idOf, capacity: capacity}
}

func (r *Registry[T]) search(id uint64) (int, bool) {
	i := sort.Search(len(r.items), func(i int) bool { return r.idOf(r.items[i]) >= id })
	if i < len(r.items) && r.idOf(r.items[i]) == id {
		return i, true
	}
	return i, false
}

// Insert adds item under its id, rejecting duplicates and over-capacity
// inserts, keeping storage sorted ascending by id.
func (r *Registry[T]) Insert(item T) error {
	id := r.idOf(item)
	i, found := r.search(id)
	if found {
		return ErrDuplicateID
	}
	if r.capacity > 0 && len(r.items) >= r.capacity {
		return ErrCapacity
	}
	r.items = append(r.items, item)
	copy(r.items[i+1:], r.items[i:len(r.items)-1])
	r.items[i] = item
	return nil
}

// Find returns the item with the given id and whether it was present.
func (r *Registry[T]) Find(id uint64) (T, bool) {
	i, found := r.search(id)
	if !found {
		var zero T
		return zero, false
	}
	return r.items[i], true
}

// Index returns the slice index of id, or -1 if absent — for callers that
// need to mutate in place via All()/MutateAt.
func (r *Registry[T]) Index(id uint64) int {
	i, found := r.search(id)
	if !found {
		return -1
	}
	return i
}

// MutateAt applies fn to the item at slice index i in place.
func (r *Registry[T]) MutateAt(i int, fn func(*T)) {
	fn(&r.items[i])
}

// Remove deletes the item with the given id, preserving sort order.
func (r *Registry[T]) Remove(id uint64) error {
	i, found := r.search(id)
	if !found {
		return ErrNotFound
	}
	r.items = append(r.items[:i], r.items[i+1:]...)
	return nil
}

// Len returns the number of stored items.
func (r *Registry[T]) Len() int { return len(r.items) }

// Capacity returns the configured capacity (0 = unbounded).
func (r *Registry[T]) Capacity() int { return r.capacity }

// All returns the backing slice in ascending id order. Callers must not
// retain it across a mutating call.
func (r *Registry[T]) All() []T { return r.items }

// Each visits every item in ascending id order.
func (r *Registry[T]) Each(fn func(T)) {
	for _, item := range r.items {
		fn(item)
	}
}
