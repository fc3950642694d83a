package queries

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"bms-backend/application/ports"
	"bms-backend/domain/core/valueobjects"
	"bms-backend/domain/versioning"
)

// VerifyChainQuery checks the integrity of a lineage from genesis
type VerifyChainQuery struct {
	Coordinate string `json:"coordinate" validate:"required,len=26"`
}

// Validate validates the query
func (q VerifyChainQuery) Validate() error {
	if q.Coordinate == "" {
		return errors.New("coordinate is required")
	}
	return nil
}

// VerifyChainResult is the integrity report for one lineage
type VerifyChainResult struct {
	Coordinate string `json:"coordinate"`
	versioning.ChainReport
}

// VerifyChainHandler handles the VerifyChainQuery
type VerifyChainHandler struct {
	coordinates ports.CoordinateRepository
	deltas      ports.DeltaRepository
	logger      *zap.Logger
}

// NewVerifyChainHandler creates a new handler instance
func NewVerifyChainHandler(coordinates ports.CoordinateRepository, deltas ports.DeltaRepository, logger *zap.Logger) *VerifyChainHandler {
	return &VerifyChainHandler{
		coordinates: coordinates,
		deltas:      deltas,
		logger:      logger,
	}
}

// Handle executes the verify chain query. A broken chain is reported, never
// returned as an error.
func (h *VerifyChainHandler) Handle(ctx context.Context, query VerifyChainQuery) (*VerifyChainResult, error) {
	id, err := valueobjects.ParseCoordinateID(query.Coordinate)
	if err != nil {
		return nil, err
	}
	if _, err := h.coordinates.GetByID(ctx, id); err != nil {
		return nil, err
	}

	deltas, err := h.deltas.GetAll(ctx, id)
	if err != nil {
		return nil, err
	}

	entries := make([]versioning.ChainEntry, len(deltas))
	for i, d := range deltas {
		entries[i] = d
	}

	report, err := versioning.VerifyChain(entries)
	if err != nil {
		return nil, err
	}

	if !report.ChainValid {
		h.logger.Warn("chain verification found a break",
			zap.String("coordinate", id.String()),
			zap.Int("position", report.FirstBreak.Position),
			zap.String("kind", string(report.FirstBreak.Kind)))
	}

	return &VerifyChainResult{
		Coordinate:  id.String(),
		ChainReport: report,
	}, nil
}
