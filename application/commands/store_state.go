package commands

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"bms-backend/application/ports"
	"bms-backend/application/services"
	"bms-backend/domain/config"
	"bms-backend/domain/core/entities"
	"bms-backend/domain/core/valueobjects"
	"bms-backend/domain/versioning"
)

// StoreStateCommand records a full state document. With no coordinate it
// opens a new lineage at a content-derived address; with one it appends the
// diff against the current head.
type StoreStateCommand struct {
	Coordinate string            `json:"coordinate,omitempty" validate:"omitempty,len=26"`
	State      json.RawMessage   `json:"state" validate:"required"`
	Author     string            `json:"author,omitempty" validate:"max=200"`
	Tags       []string          `json:"tags,omitempty" validate:"max=20,dive,min=1,max=50"`
	Alias      string            `json:"alias,omitempty" validate:"max=200"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Validate validates the command
func (cmd StoreStateCommand) Validate() error {
	if len(cmd.State) == 0 {
		return errors.New("state is required")
	}
	return nil
}

// StoreStateResult describes what storing changed
type StoreStateResult struct {
	Coordinate      string `json:"coordinate"`
	Created         bool   `json:"created"`
	Unchanged       bool   `json:"unchanged"`
	Position        int    `json:"position"`
	DeltaID         string `json:"delta_id,omitempty"`
	DeltaHash       string `json:"delta_hash,omitempty"`
	ChainHash       string `json:"chain_hash,omitempty"`
	SnapshotCreated bool   `json:"snapshot_created"`
}

// StoreStateHandler handles the StoreStateCommand
type StoreStateHandler struct {
	coordinates   ports.CoordinateRepository
	deltas        ports.DeltaRepository
	snapshots     ports.SnapshotRepository
	reconstructor *services.Reconstructor
	locks         *services.LockRegistry
	vectorCache   ports.VectorCache
	publisher     ports.EventPublisher
	policy        *versioning.SnapshotPolicy
	cfg           *config.DomainConfig
	logger        *zap.Logger
}

// NewStoreStateHandler creates a new handler instance
func NewStoreStateHandler(
	coordinates ports.CoordinateRepository,
	deltas ports.DeltaRepository,
	snapshots ports.SnapshotRepository,
	reconstructor *services.Reconstructor,
	locks *services.LockRegistry,
	vectorCache ports.VectorCache,
	publisher ports.EventPublisher,
	cfg *config.DomainConfig,
	logger *zap.Logger,
) *StoreStateHandler {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &StoreStateHandler{
		coordinates:   coordinates,
		deltas:        deltas,
		snapshots:     snapshots,
		reconstructor: reconstructor,
		locks:         locks,
		vectorCache:   vectorCache,
		publisher:     publisher,
		policy:        versioning.NewSnapshotPolicy(cfg),
		cfg:           cfg,
		logger:        logger,
	}
}

// Handle executes the store state command
func (h *StoreStateHandler) Handle(ctx context.Context, cmd StoreStateCommand) (*StoreStateResult, error) {
	nextState, err := valueobjects.ParseState(cmd.State)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	var coordinate *entities.Coordinate
	created := false
	if cmd.Coordinate == "" {
		coordinate, err = h.openLineage(ctx, nextState, cmd, now)
		if err != nil {
			return nil, err
		}
		created = true
	} else {
		id, err := valueobjects.ParseCoordinateID(cmd.Coordinate)
		if err != nil {
			return nil, err
		}
		coordinate, err = h.coordinates.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	unlock := h.locks.Lock(coordinate.ID())
	defer unlock()

	if !created {
		// Re-read under the lock so the head is current.
		coordinate, err = h.coordinates.GetByID(ctx, coordinate.ID())
		if err != nil {
			return nil, err
		}
	}

	prevState, err := h.reconstructor.ReconstructAt(ctx, coordinate.ID(), coordinate.HeadPosition())
	if err != nil {
		return nil, err
	}

	ops, err := versioning.Compute(prevState, nextState)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		// Storing an identical state is a no-op, not an error.
		return &StoreStateResult{
			Coordinate: coordinate.ID().String(),
			Created:    created,
			Unchanged:  true,
			Position:   coordinate.HeadPosition(),
		}, nil
	}

	oversize := h.policy.IsOversize(ops)
	delta, err := entities.NewDelta(
		coordinate.ID(),
		coordinate.HeadPosition()+1,
		ops,
		coordinate.HeadChainHash(),
		cmd.Author,
		cmd.Tags,
		oversize,
		now,
	)
	if err != nil {
		return nil, err
	}

	headHash, err := nextState.CanonicalHash()
	if err != nil {
		return nil, err
	}

	if err := h.deltas.Append(ctx, delta); err != nil {
		return nil, err
	}
	if err := coordinate.RecordAppend(delta, headHash); err != nil {
		return nil, err
	}

	result := &StoreStateResult{
		Coordinate: coordinate.ID().String(),
		Created:    created,
		Position:   delta.Position(),
		DeltaID:    delta.ID(),
		DeltaHash:  delta.DeltaHash().String(),
		ChainHash:  delta.ChainHash().String(),
	}

	if h.policy.ShouldSnapshot(delta.Position(), oversize) {
		snapshot, err := entities.NewSnapshot(coordinate.ID(), delta.Position(), nextState, now)
		if err != nil {
			return nil, err
		}
		if err := h.snapshots.Save(ctx, snapshot); err != nil {
			return nil, err
		}
		if err := coordinate.RecordSnapshot(snapshot); err != nil {
			return nil, err
		}
		result.SnapshotCreated = true
		h.logger.Info("snapshot created",
			zap.String("coordinate", coordinate.ID().String()),
			zap.Int("position", snapshot.Position()),
			zap.Bool("oversize_trigger", oversize))
	}

	if err := h.coordinates.Save(ctx, coordinate); err != nil {
		return nil, err
	}

	// The cached embedding no longer matches the head; drop it eagerly.
	h.vectorCache.Invalidate(coordinate.ID())

	h.publishEvents(ctx, coordinate)

	h.logger.Info("state stored",
		zap.String("coordinate", coordinate.ID().String()),
		zap.Int("position", delta.Position()),
		zap.Int("ops", len(ops)),
		zap.Bool("created", created))

	return result, nil
}

// openLineage derives a fresh address for the content and registers the
// coordinate before any delta is written.
func (h *StoreStateHandler) openLineage(ctx context.Context, state valueobjects.State, cmd StoreStateCommand, now time.Time) (*entities.Coordinate, error) {
	canonical, err := state.CanonicalBytes()
	if err != nil {
		return nil, err
	}

	id, err := valueobjects.GenerateCoordinateID(ctx, canonical, now, h.cfg.CoordinateMaxRetries, h.coordinates.Exists)
	if err != nil {
		return nil, err
	}

	coordinate, err := entities.NewCoordinate(id, cmd.Alias, cmd.Author, cmd.Metadata, now)
	if err != nil {
		return nil, err
	}
	if err := h.coordinates.Save(ctx, coordinate); err != nil {
		return nil, err
	}
	return coordinate, nil
}

func (h *StoreStateHandler) publishEvents(ctx context.Context, coordinate *entities.Coordinate) {
	evts := coordinate.GetUncommittedEvents()
	if len(evts) == 0 {
		return
	}
	if err := h.publisher.PublishBatch(ctx, evts); err != nil {
		// Events are observability, not the system of record.
		h.logger.Warn("failed to publish domain events",
			zap.String("coordinate", coordinate.ID().String()),
			zap.Error(err))
	}
	coordinate.MarkEventsAsCommitted()
}
