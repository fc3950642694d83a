package entities

import (
	"time"

	"github.com/google/uuid"

	"bms-backend/domain/core/valueobjects"
	pkgerrors "bms-backend/pkg/errors"
)

// Snapshot is a full-state checkpoint at one chain position. It stores the
// reconstructed state verbatim so replay can start here instead of genesis,
// plus a content hash so the stored state can be checked against the chain.
type Snapshot struct {
	id           string
	coordinateID valueobjects.CoordinateID
	position     int
	state        valueobjects.State
	stateHash    valueobjects.Hash
	createdAt    time.Time
}

// NewSnapshot checkpoints a reconstructed state at the given position.
// The state hash is derived from the canonical bytes, never supplied.
func NewSnapshot(coordinateID valueobjects.CoordinateID, position int, state valueobjects.State, createdAt time.Time) (*Snapshot, error) {
	if coordinateID.IsEmpty() {
		return nil, pkgerrors.NewValidationError("coordinate ID cannot be empty")
	}
	if position < 1 {
		return nil, pkgerrors.NewValidationError("snapshot position must be at least 1")
	}

	canonical, err := state.CanonicalBytes()
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		id:           uuid.New().String(),
		coordinateID: coordinateID,
		position:     position,
		state:        state,
		stateHash:    valueobjects.NewHash(canonical),
		createdAt:    createdAt,
	}, nil
}

// ReconstructSnapshot rebuilds a snapshot from repository data
func ReconstructSnapshot(
	id string,
	coordinateID valueobjects.CoordinateID,
	position int,
	state valueobjects.State,
	stateHash valueobjects.Hash,
	createdAt time.Time,
) (*Snapshot, error) {
	if coordinateID.IsEmpty() {
		return nil, pkgerrors.NewValidationError("coordinate ID cannot be empty")
	}
	if position < 1 {
		return nil, pkgerrors.NewValidationError("snapshot position must be at least 1")
	}

	return &Snapshot{
		id:           id,
		coordinateID: coordinateID,
		position:     position,
		state:        state,
		stateHash:    stateHash,
		createdAt:    createdAt,
	}, nil
}

// ID returns the snapshot's identifier
func (s *Snapshot) ID() string {
	return s.id
}

// CoordinateID returns the lineage this snapshot belongs to
func (s *Snapshot) CoordinateID() valueobjects.CoordinateID {
	return s.coordinateID
}

// Position returns the chain position the snapshot captures
func (s *Snapshot) Position() int {
	return s.position
}

// State returns the checkpointed state
func (s *Snapshot) State() valueobjects.State {
	return s.state
}

// StateHash returns the digest of the state's canonical bytes
func (s *Snapshot) StateHash() valueobjects.Hash {
	return s.stateHash
}

// CreatedAt returns when the snapshot was written
func (s *Snapshot) CreatedAt() time.Time {
	return s.createdAt
}

// VerifyState recomputes the state hash and compares it to the stored one
func (s *Snapshot) VerifyState() (bool, error) {
	canonical, err := s.state.CanonicalBytes()
	if err != nil {
		return false, err
	}
	return valueobjects.NewHash(canonical).Equals(s.stateHash), nil
}
