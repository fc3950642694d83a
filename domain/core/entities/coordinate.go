package entities

import (
	"time"

	"bms-backend/domain/core/valueobjects"
	"bms-backend/domain/events"
	pkgerrors "bms-backend/pkg/errors"
)

// Coordinate is the aggregate root of one state lineage: a content-derived
// address plus the bookkeeping of its append-only delta chain.
// This is a rich domain model with encapsulated business logic
type Coordinate struct {
	// Private fields ensure encapsulation
	id                   valueobjects.CoordinateID
	alias                string
	metadata             map[string]string
	createdBy            string
	createdAt            time.Time
	updatedAt            time.Time
	headPosition         int
	headChainHash        valueobjects.Hash
	headStateHash        valueobjects.Hash
	lastSnapshotPosition int

	// Domain events that occurred during this aggregate's lifetime
	events []events.DomainEvent
}

// NewCoordinate opens a new lineage at the given address
func NewCoordinate(id valueobjects.CoordinateID, alias, createdBy string, metadata map[string]string, createdAt time.Time) (*Coordinate, error) {
	if id.IsEmpty() {
		return nil, pkgerrors.NewValidationError("coordinate ID cannot be empty")
	}
	if metadata == nil {
		metadata = map[string]string{}
	}

	coord := &Coordinate{
		id:        id,
		alias:     alias,
		metadata:  metadata,
		createdBy: createdBy,
		createdAt: createdAt,
		updatedAt: createdAt,
		events:    []events.DomainEvent{},
	}

	coord.addEvent(events.NewCoordinateCreated(id, alias, createdBy, createdAt))

	return coord, nil
}

// ReconstructCoordinate rebuilds a coordinate from repository data with
// preserved timestamps and chain position.
func ReconstructCoordinate(
	id valueobjects.CoordinateID,
	alias, createdBy string,
	metadata map[string]string,
	createdAt, updatedAt time.Time,
	headPosition int,
	headChainHash, headStateHash valueobjects.Hash,
	lastSnapshotPosition int,
) (*Coordinate, error) {
	if id.IsEmpty() {
		return nil, pkgerrors.NewValidationError("coordinate ID cannot be empty")
	}
	if headPosition < 0 {
		return nil, pkgerrors.NewValidationError("head position cannot be negative")
	}
	if metadata == nil {
		metadata = map[string]string{}
	}

	return &Coordinate{
		id:                   id,
		alias:                alias,
		metadata:             metadata,
		createdBy:            createdBy,
		createdAt:            createdAt,
		updatedAt:            updatedAt,
		headPosition:         headPosition,
		headChainHash:        headChainHash,
		headStateHash:        headStateHash,
		lastSnapshotPosition: lastSnapshotPosition,
		events:               []events.DomainEvent{},
	}, nil
}

// ID returns the coordinate's address
func (c *Coordinate) ID() valueobjects.CoordinateID {
	return c.id
}

// Alias returns the optional human-readable name
func (c *Coordinate) Alias() string {
	return c.alias
}

// CreatedBy returns who opened the lineage
func (c *Coordinate) CreatedBy() string {
	return c.createdBy
}

// Metadata returns a copy of the free-form metadata
func (c *Coordinate) Metadata() map[string]string {
	meta := make(map[string]string, len(c.metadata))
	for k, v := range c.metadata {
		meta[k] = v
	}
	return meta
}

// HeadPosition returns the position of the newest committed delta;
// 0 means the lineage has no deltas yet.
func (c *Coordinate) HeadPosition() int {
	return c.headPosition
}

// HeadChainHash returns the chain hash at the head
func (c *Coordinate) HeadChainHash() valueobjects.Hash {
	return c.headChainHash
}

// HeadStateHash returns the digest of the canonical bytes of the head state,
// recorded at append time. Reconstructing the head must reproduce it; empty
// while the lineage has no deltas.
func (c *Coordinate) HeadStateHash() valueobjects.Hash {
	return c.headStateHash
}

// LastSnapshotPosition returns the position of the newest checkpoint;
// 0 means none exists.
func (c *Coordinate) LastSnapshotPosition() int {
	return c.lastSnapshotPosition
}

// CreatedAt returns when the lineage was opened
func (c *Coordinate) CreatedAt() time.Time {
	return c.createdAt
}

// UpdatedAt returns when the lineage last changed
func (c *Coordinate) UpdatedAt() time.Time {
	return c.updatedAt
}

// RecordAppend advances the head to a freshly committed delta. The delta
// must extend the current head exactly: next position, chained on the
// current head hash. stateHash is the canonical-byte digest of the state the
// delta produced.
func (c *Coordinate) RecordAppend(delta *Delta, stateHash valueobjects.Hash) error {
	if !delta.CoordinateID().Equals(c.id) {
		return pkgerrors.NewValidationError("delta belongs to a different coordinate")
	}
	if delta.Position() != c.headPosition+1 {
		return pkgerrors.NewConflictError("delta does not extend the current head")
	}
	if !delta.ParentChainHash().Equals(c.headChainHash) {
		return pkgerrors.NewConflictError("delta is not chained on the current head")
	}

	c.headPosition = delta.Position()
	c.headChainHash = delta.ChainHash()
	c.headStateHash = stateHash
	c.updatedAt = delta.CreatedAt()

	c.addEvent(events.NewDeltaAppended(
		c.id,
		delta.ID(),
		delta.Position(),
		delta.DeltaHash(),
		delta.ChainHash(),
		delta.Author(),
		delta.CreatedAt(),
	))

	return nil
}

// RecordSnapshot notes a checkpoint written for this lineage
func (c *Coordinate) RecordSnapshot(snapshot *Snapshot) error {
	if !snapshot.CoordinateID().Equals(c.id) {
		return pkgerrors.NewValidationError("snapshot belongs to a different coordinate")
	}
	if snapshot.Position() > c.headPosition {
		return pkgerrors.NewValidationError("snapshot position is past the head")
	}

	if snapshot.Position() > c.lastSnapshotPosition {
		c.lastSnapshotPosition = snapshot.Position()
	}
	c.updatedAt = snapshot.CreatedAt()

	c.addEvent(events.NewSnapshotCreated(
		c.id,
		snapshot.ID(),
		snapshot.Position(),
		snapshot.StateHash(),
		snapshot.CreatedAt(),
	))

	return nil
}

// GetUncommittedEvents returns all uncommitted domain events
func (c *Coordinate) GetUncommittedEvents() []events.DomainEvent {
	return c.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (c *Coordinate) MarkEventsAsCommitted() {
	c.events = []events.DomainEvent{}
}

// addEvent adds a domain event to the uncommitted list
func (c *Coordinate) addEvent(event events.DomainEvent) {
	c.events = append(c.events, event)
}
