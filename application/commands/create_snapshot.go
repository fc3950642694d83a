package commands

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"bms-backend/application/ports"
	"bms-backend/application/services"
	"bms-backend/domain/core/entities"
	"bms-backend/domain/core/valueobjects"
	pkgerrors "bms-backend/pkg/errors"
)

// CreateSnapshotCommand checkpoints a lineage at its current head on demand
type CreateSnapshotCommand struct {
	Coordinate string `json:"coordinate" validate:"required,len=26"`
}

// Validate validates the command
func (cmd CreateSnapshotCommand) Validate() error {
	if cmd.Coordinate == "" {
		return errors.New("coordinate is required")
	}
	return nil
}

// CreateSnapshotResult identifies the written checkpoint
type CreateSnapshotResult struct {
	Coordinate string `json:"coordinate"`
	SnapshotID string `json:"snapshot_id"`
	Position   int    `json:"position"`
	StateHash  string `json:"state_hash"`
}

// CreateSnapshotHandler handles the CreateSnapshotCommand
type CreateSnapshotHandler struct {
	coordinates   ports.CoordinateRepository
	snapshots     ports.SnapshotRepository
	reconstructor *services.Reconstructor
	locks         *services.LockRegistry
	publisher     ports.EventPublisher
	logger        *zap.Logger
}

// NewCreateSnapshotHandler creates a new handler instance
func NewCreateSnapshotHandler(
	coordinates ports.CoordinateRepository,
	snapshots ports.SnapshotRepository,
	reconstructor *services.Reconstructor,
	locks *services.LockRegistry,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *CreateSnapshotHandler {
	return &CreateSnapshotHandler{
		coordinates:   coordinates,
		snapshots:     snapshots,
		reconstructor: reconstructor,
		locks:         locks,
		publisher:     publisher,
		logger:        logger,
	}
}

// Handle executes the create snapshot command
func (h *CreateSnapshotHandler) Handle(ctx context.Context, cmd CreateSnapshotCommand) (*CreateSnapshotResult, error) {
	id, err := valueobjects.ParseCoordinateID(cmd.Coordinate)
	if err != nil {
		return nil, err
	}

	unlock := h.locks.Lock(id)
	defer unlock()

	coordinate, err := h.coordinates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if coordinate.HeadPosition() == 0 {
		return nil, pkgerrors.NewValidationError("lineage has no deltas to checkpoint")
	}

	state, err := h.reconstructor.ReconstructHead(ctx, coordinate)
	if err != nil {
		return nil, err
	}

	snapshot, err := entities.NewSnapshot(id, coordinate.HeadPosition(), state, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := h.snapshots.Save(ctx, snapshot); err != nil {
		return nil, err
	}
	if err := coordinate.RecordSnapshot(snapshot); err != nil {
		return nil, err
	}
	if err := h.coordinates.Save(ctx, coordinate); err != nil {
		return nil, err
	}

	if err := h.publisher.PublishBatch(ctx, coordinate.GetUncommittedEvents()); err != nil {
		h.logger.Warn("failed to publish domain events",
			zap.String("coordinate", id.String()),
			zap.Error(err))
	}
	coordinate.MarkEventsAsCommitted()

	h.logger.Info("on-demand snapshot created",
		zap.String("coordinate", id.String()),
		zap.Int("position", snapshot.Position()))

	return &CreateSnapshotResult{
		Coordinate: id.String(),
		SnapshotID: snapshot.ID(),
		Position:   snapshot.Position(),
		StateHash:  snapshot.StateHash().String(),
	}, nil
}
