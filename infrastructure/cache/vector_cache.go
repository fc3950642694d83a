// Package cache holds the in-process embedding cache. Entries are pinned to
// the chain head they were computed from; readers must compare the stored
// head hash against the coordinate's current one before trusting a hit.
package cache

import (
	"sync"

	"bms-backend/application/ports"
	"bms-backend/domain/core/valueobjects"
)

// VectorCache is a mutex-guarded map from coordinate to cached embedding
type VectorCache struct {
	mu      sync.RWMutex
	entries map[string]ports.VectorCacheEntry
}

// NewVectorCache creates an empty cache
func NewVectorCache() *VectorCache {
	return &VectorCache{
		entries: make(map[string]ports.VectorCacheEntry),
	}
}

// Get retrieves the entry for a coordinate
func (c *VectorCache) Get(id valueobjects.CoordinateID) (ports.VectorCacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[id.String()]
	return entry, ok
}

// Put stores the entry for a coordinate, displacing any previous one
func (c *VectorCache) Put(id valueobjects.CoordinateID, entry ports.VectorCacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id.String()] = entry
}

// Invalidate drops the entry for a coordinate
func (c *VectorCache) Invalidate(id valueobjects.CoordinateID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id.String())
}

// Len returns the number of cached entries
func (c *VectorCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ ports.VectorCache = (*VectorCache)(nil)
