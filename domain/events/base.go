package events

import (
	"time"

	"bms-backend/domain/core/valueobjects"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// Coordinate Events

// CoordinateCreated is raised when a new state lineage is opened
type CoordinateCreated struct {
	BaseEvent
	CoordinateID valueobjects.CoordinateID `json:"coordinate_id"`
	Alias        string                    `json:"alias,omitempty"`
	Author       string                    `json:"author,omitempty"`
}

// NewCoordinateCreated creates a CoordinateCreated event
func NewCoordinateCreated(coordinateID valueobjects.CoordinateID, alias, author string, timestamp time.Time) CoordinateCreated {
	return CoordinateCreated{
		BaseEvent: BaseEvent{
			AggregateID: coordinateID.String(),
			EventType:   "coordinate.created",
			Timestamp:   timestamp,
			Version:     1,
		},
		CoordinateID: coordinateID,
		Alias:        alias,
		Author:       author,
	}
}

// DeltaAppended is raised when a delta is committed to a lineage
type DeltaAppended struct {
	BaseEvent
	CoordinateID valueobjects.CoordinateID `json:"coordinate_id"`
	DeltaID      string                    `json:"delta_id"`
	Position     int                       `json:"position"`
	DeltaHash    valueobjects.Hash         `json:"delta_hash"`
	ChainHash    valueobjects.Hash         `json:"chain_hash"`
	Author       string                    `json:"author,omitempty"`
}

// NewDeltaAppended creates a DeltaAppended event
func NewDeltaAppended(coordinateID valueobjects.CoordinateID, deltaID string, position int, deltaHash, chainHash valueobjects.Hash, author string, timestamp time.Time) DeltaAppended {
	return DeltaAppended{
		BaseEvent: BaseEvent{
			AggregateID: coordinateID.String(),
			EventType:   "delta.appended",
			Timestamp:   timestamp,
			Version:     1,
		},
		CoordinateID: coordinateID,
		DeltaID:      deltaID,
		Position:     position,
		DeltaHash:    deltaHash,
		ChainHash:    chainHash,
		Author:       author,
	}
}

// SnapshotCreated is raised when a checkpoint is written for a lineage
type SnapshotCreated struct {
	BaseEvent
	CoordinateID valueobjects.CoordinateID `json:"coordinate_id"`
	SnapshotID   string                    `json:"snapshot_id"`
	Position     int                       `json:"position"`
	StateHash    valueobjects.Hash         `json:"state_hash"`
}

// NewSnapshotCreated creates a SnapshotCreated event
func NewSnapshotCreated(coordinateID valueobjects.CoordinateID, snapshotID string, position int, stateHash valueobjects.Hash, timestamp time.Time) SnapshotCreated {
	return SnapshotCreated{
		BaseEvent: BaseEvent{
			AggregateID: coordinateID.String(),
			EventType:   "snapshot.created",
			Timestamp:   timestamp,
			Version:     1,
		},
		CoordinateID: coordinateID,
		SnapshotID:   snapshotID,
		Position:     position,
		StateHash:    stateHash,
	}
}
