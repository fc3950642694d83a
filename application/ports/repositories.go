package ports

import (
	"context"
	"time"

	"bms-backend/domain/core/entities"
	"bms-backend/domain/core/valueobjects"
	"bms-backend/domain/events"
)

// CoordinateRepository defines the interface for lineage bookkeeping
// This is a port in hexagonal architecture - the domain doesn't know about the implementation
type CoordinateRepository interface {
	// Save persists a coordinate (create or update head bookkeeping)
	Save(ctx context.Context, coordinate *entities.Coordinate) error

	// GetByID retrieves a coordinate by its address
	GetByID(ctx context.Context, id valueobjects.CoordinateID) (*entities.Coordinate, error)

	// Exists reports whether an address is already occupied
	Exists(ctx context.Context, id valueobjects.CoordinateID) (bool, error)

	// List retrieves coordinates ordered by address, up to limit
	List(ctx context.Context, limit int) ([]*entities.Coordinate, error)

	// Count returns the number of coordinates
	Count(ctx context.Context) (int, error)
}

// DeltaRepository defines the interface for the append-only delta log
type DeltaRepository interface {
	// Append commits a delta at its position. The write is conditional on
	// the position being unoccupied; losing that race is a conflict.
	Append(ctx context.Context, delta *entities.Delta) error

	// GetRange retrieves deltas for a coordinate with position in
	// [from, to], ordered by position ascending.
	GetRange(ctx context.Context, id valueobjects.CoordinateID, from, to int) ([]*entities.Delta, error)

	// GetAll retrieves the full chain for a coordinate from genesis,
	// ordered by position ascending.
	GetAll(ctx context.Context, id valueobjects.CoordinateID) ([]*entities.Delta, error)

	// GetByPosition retrieves a single delta
	GetByPosition(ctx context.Context, id valueobjects.CoordinateID, position int) (*entities.Delta, error)

	// Count returns the number of deltas across all coordinates
	Count(ctx context.Context) (int, error)
}

// SnapshotRepository defines the interface for checkpoint persistence
type SnapshotRepository interface {
	// Save persists a snapshot
	Save(ctx context.Context, snapshot *entities.Snapshot) error

	// GetLatestAtOrBefore retrieves the most recent snapshot with
	// position <= position, or nil when none exists.
	GetLatestAtOrBefore(ctx context.Context, id valueobjects.CoordinateID, position int) (*entities.Snapshot, error)

	// Count returns the number of snapshots across all coordinates
	Count(ctx context.Context) (int, error)
}

// Embedder turns text into a fixed-dimension vector
type Embedder interface {
	// Embed computes the embedding for one text
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the vector length every embedding must have
	Dimension() int
}

// VectorCacheEntry is one cached embedding, pinned to the canonical-byte
// digest of the head state it was computed from.
type VectorCacheEntry struct {
	HeadStateHash valueobjects.Hash
	Vector        []float32
	Author        string
	CachedAt      time.Time
}

// VectorCache defines the interface for the in-process embedding cache.
// Entries are advisory: a hit is only usable when the caller re-derives the
// head state's hash and it matches. The cache is never persisted.
type VectorCache interface {
	// Get retrieves the entry for a coordinate
	Get(id valueobjects.CoordinateID) (VectorCacheEntry, bool)

	// Put stores the entry for a coordinate, displacing any previous one
	Put(id valueobjects.CoordinateID, entry VectorCacheEntry)

	// Invalidate drops the entry for a coordinate
	Invalidate(id valueobjects.CoordinateID)

	// Len returns the number of cached entries
	Len() int
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}
