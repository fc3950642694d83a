package entities

import (
	"time"

	"bms-backend/domain/core/valueobjects"
	"bms-backend/domain/versioning"
	pkgerrors "bms-backend/pkg/errors"
)

// deltaIDHexChars is how much of the delta hash becomes the short ID
const deltaIDHexChars = 32

// Delta is one committed change in a lineage: a patch op list plus the
// hashes that pin it into the Merkle chain. Deltas are immutable once
// committed.
type Delta struct {
	id              string
	coordinateID    valueobjects.CoordinateID
	position        int
	ops             []versioning.Op
	deltaHash       valueobjects.Hash
	parentChainHash valueobjects.Hash
	chainHash       valueobjects.Hash
	author          string
	tags            []string
	oversize        bool
	createdAt       time.Time
}

// NewDelta commits an op list at the next chain position. Both hashes are
// derived here, never supplied: the delta hash from the canonical op bytes,
// the chain hash by linking on the parent.
func NewDelta(
	coordinateID valueobjects.CoordinateID,
	position int,
	ops []versioning.Op,
	parentChainHash valueobjects.Hash,
	author string,
	tags []string,
	oversize bool,
	createdAt time.Time,
) (*Delta, error) {
	if coordinateID.IsEmpty() {
		return nil, pkgerrors.NewValidationError("coordinate ID cannot be empty")
	}
	if position < 1 {
		return nil, pkgerrors.NewValidationError("delta position must be at least 1")
	}
	if len(ops) == 0 {
		return nil, pkgerrors.NewValidationError("delta must contain at least one operation")
	}

	deltaHash, err := versioning.HashOps(ops)
	if err != nil {
		return nil, err
	}
	chainHash := versioning.ChainLink(parentChainHash, deltaHash)

	return &Delta{
		id:              deltaHash.String()[:deltaIDHexChars],
		coordinateID:    coordinateID,
		position:        position,
		ops:             ops,
		deltaHash:       deltaHash,
		parentChainHash: parentChainHash,
		chainHash:       chainHash,
		author:          author,
		tags:            tags,
		oversize:        oversize,
		createdAt:       createdAt,
	}, nil
}

// ReconstructDelta rebuilds a delta from repository data. Stored hashes are
// taken verbatim; verification recomputes them separately.
func ReconstructDelta(
	id string,
	coordinateID valueobjects.CoordinateID,
	position int,
	ops []versioning.Op,
	deltaHash, parentChainHash, chainHash valueobjects.Hash,
	author string,
	tags []string,
	oversize bool,
	createdAt time.Time,
) (*Delta, error) {
	if coordinateID.IsEmpty() {
		return nil, pkgerrors.NewValidationError("coordinate ID cannot be empty")
	}
	if position < 1 {
		return nil, pkgerrors.NewValidationError("delta position must be at least 1")
	}

	return &Delta{
		id:              id,
		coordinateID:    coordinateID,
		position:        position,
		ops:             ops,
		deltaHash:       deltaHash,
		parentChainHash: parentChainHash,
		chainHash:       chainHash,
		author:          author,
		tags:            tags,
		oversize:        oversize,
		createdAt:       createdAt,
	}, nil
}

// ID returns the delta's short identifier
func (d *Delta) ID() string {
	return d.id
}

// CoordinateID returns the lineage this delta belongs to
func (d *Delta) CoordinateID() valueobjects.CoordinateID {
	return d.coordinateID
}

// Position returns the 1-based chain position
func (d *Delta) Position() int {
	return d.position
}

// Ops returns the patch operations. The returned slice must not be mutated.
func (d *Delta) Ops() []versioning.Op {
	return d.ops
}

// DeltaHash returns the digest of the canonical op bytes
func (d *Delta) DeltaHash() valueobjects.Hash {
	return d.deltaHash
}

// ParentChainHash returns the chain hash this delta links on;
// empty for the genesis delta.
func (d *Delta) ParentChainHash() valueobjects.Hash {
	return d.parentChainHash
}

// ChainHash returns this delta's position in the Merkle chain
func (d *Delta) ChainHash() valueobjects.Hash {
	return d.chainHash
}

// Author returns who committed the delta
func (d *Delta) Author() string {
	return d.author
}

// Tags returns a copy of the delta's tags
func (d *Delta) Tags() []string {
	tags := make([]string, len(d.tags))
	copy(tags, d.tags)
	return tags
}

// Oversize reports whether this delta tripped the early-checkpoint threshold
func (d *Delta) Oversize() bool {
	return d.oversize
}

// CreatedAt returns when the delta was committed
func (d *Delta) CreatedAt() time.Time {
	return d.createdAt
}
