package queries

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"bms-backend/application/ports"
	"bms-backend/domain/config"
)

// ListCoordinatesQuery lists known lineages
type ListCoordinatesQuery struct {
	Limit int `json:"limit,omitempty" validate:"min=0"`
}

// Validate validates the query
func (q ListCoordinatesQuery) Validate() error {
	if q.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	return nil
}

// CoordinateSummary is the listing view of one lineage
type CoordinateSummary struct {
	Coordinate           string    `json:"coordinate"`
	Alias                string    `json:"alias,omitempty"`
	CreatedBy            string    `json:"created_by,omitempty"`
	HeadPosition         int       `json:"head_position"`
	LastSnapshotPosition int       `json:"last_snapshot_position"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// ListCoordinatesResult carries the listing
type ListCoordinatesResult struct {
	Coordinates []CoordinateSummary `json:"coordinates"`
	Total       int                 `json:"total"`
}

// ListCoordinatesHandler handles the ListCoordinatesQuery
type ListCoordinatesHandler struct {
	coordinates ports.CoordinateRepository
	cfg         *config.DomainConfig
	logger      *zap.Logger
}

// NewListCoordinatesHandler creates a new handler instance
func NewListCoordinatesHandler(coordinates ports.CoordinateRepository, cfg *config.DomainConfig, logger *zap.Logger) *ListCoordinatesHandler {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &ListCoordinatesHandler{
		coordinates: coordinates,
		cfg:         cfg,
		logger:      logger,
	}
}

// Handle executes the list coordinates query
func (h *ListCoordinatesHandler) Handle(ctx context.Context, query ListCoordinatesQuery) (*ListCoordinatesResult, error) {
	limit := query.Limit
	if limit <= 0 || limit > h.cfg.MaxCoordinatesPerQuery {
		limit = h.cfg.MaxCoordinatesPerQuery
	}

	coordinates, err := h.coordinates.List(ctx, limit)
	if err != nil {
		return nil, err
	}

	summaries := make([]CoordinateSummary, 0, len(coordinates))
	for _, c := range coordinates {
		summaries = append(summaries, CoordinateSummary{
			Coordinate:           c.ID().String(),
			Alias:                c.Alias(),
			CreatedBy:            c.CreatedBy(),
			HeadPosition:         c.HeadPosition(),
			LastSnapshotPosition: c.LastSnapshotPosition(),
			CreatedAt:            c.CreatedAt(),
			UpdatedAt:            c.UpdatedAt(),
		})
	}

	return &ListCoordinatesResult{Coordinates: summaries, Total: len(summaries)}, nil
}
