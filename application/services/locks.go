package services

import (
	"sync"

	"bms-backend/domain/core/valueobjects"
)

// LockRegistry serializes mutations per coordinate within this process.
// Appends and snapshots to the same lineage take its lock; independent
// lineages proceed in parallel. Entries are refcounted so the map does not
// grow with every coordinate ever touched.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*coordinateLock
}

type coordinateLock struct {
	mu   sync.Mutex
	refs int
}

// NewLockRegistry creates an empty registry
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[string]*coordinateLock)}
}

// Lock acquires the lock for a coordinate and returns its release function
func (r *LockRegistry) Lock(id valueobjects.CoordinateID) func() {
	key := id.String()

	r.mu.Lock()
	entry, ok := r.locks[key]
	if !ok {
		entry = &coordinateLock{}
		r.locks[key] = entry
	}
	entry.refs++
	r.mu.Unlock()

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()

			r.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(r.locks, key)
			}
			r.mu.Unlock()
		})
	}
}
