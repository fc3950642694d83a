package queries

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"bms-backend/application/ports"
	"bms-backend/application/services"
	"bms-backend/domain/core/valueobjects"
	pkgerrors "bms-backend/pkg/errors"
)

// RecallStateQuery rebuilds the state of a lineage. Position 0 (or absent)
// means the current head.
type RecallStateQuery struct {
	Coordinate string `json:"coordinate" validate:"required,len=26"`
	Position   int    `json:"position,omitempty" validate:"min=0"`
}

// Validate validates the query
func (q RecallStateQuery) Validate() error {
	if q.Coordinate == "" {
		return errors.New("coordinate is required")
	}
	if q.Position < 0 {
		return errors.New("position cannot be negative")
	}
	return nil
}

// RecallStateResult carries the reconstructed state
type RecallStateResult struct {
	Coordinate   string             `json:"coordinate"`
	Position     int                `json:"position"`
	HeadPosition int                `json:"head_position"`
	State        valueobjects.State `json:"state"`
}

// RecallStateHandler handles the RecallStateQuery
type RecallStateHandler struct {
	coordinates   ports.CoordinateRepository
	reconstructor *services.Reconstructor
	logger        *zap.Logger
}

// NewRecallStateHandler creates a new handler instance
func NewRecallStateHandler(coordinates ports.CoordinateRepository, reconstructor *services.Reconstructor, logger *zap.Logger) *RecallStateHandler {
	return &RecallStateHandler{
		coordinates:   coordinates,
		reconstructor: reconstructor,
		logger:        logger,
	}
}

// Handle executes the recall state query
func (h *RecallStateHandler) Handle(ctx context.Context, query RecallStateQuery) (*RecallStateResult, error) {
	id, err := valueobjects.ParseCoordinateID(query.Coordinate)
	if err != nil {
		return nil, err
	}

	coordinate, err := h.coordinates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	position := query.Position
	if position == 0 {
		position = coordinate.HeadPosition()
	}
	if position > coordinate.HeadPosition() {
		return nil, pkgerrors.NewValidationError("position is past the head").
			WithDetail("head_position", coordinate.HeadPosition())
	}

	state, err := h.reconstructor.ReconstructAt(ctx, id, position)
	if err != nil {
		return nil, err
	}

	return &RecallStateResult{
		Coordinate:   id.String(),
		Position:     position,
		HeadPosition: coordinate.HeadPosition(),
		State:        state,
	}, nil
}
