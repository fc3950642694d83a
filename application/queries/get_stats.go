package queries

import (
	"context"

	"go.uber.org/zap"

	"bms-backend/application/ports"
)

// GetStatsQuery reports store-wide counters
type GetStatsQuery struct{}

// Validate validates the query
func (q GetStatsQuery) Validate() error {
	return nil
}

// GetStatsResult carries the counters
type GetStatsResult struct {
	Coordinates   int `json:"coordinates"`
	Deltas        int `json:"deltas"`
	Snapshots     int `json:"snapshots"`
	CachedVectors int `json:"cached_vectors"`
}

// GetStatsHandler handles the GetStatsQuery
type GetStatsHandler struct {
	coordinates ports.CoordinateRepository
	deltas      ports.DeltaRepository
	snapshots   ports.SnapshotRepository
	cache       ports.VectorCache
	logger      *zap.Logger
}

// NewGetStatsHandler creates a new handler instance
func NewGetStatsHandler(
	coordinates ports.CoordinateRepository,
	deltas ports.DeltaRepository,
	snapshots ports.SnapshotRepository,
	cache ports.VectorCache,
	logger *zap.Logger,
) *GetStatsHandler {
	return &GetStatsHandler{
		coordinates: coordinates,
		deltas:      deltas,
		snapshots:   snapshots,
		cache:       cache,
		logger:      logger,
	}
}

// Handle executes the stats query
func (h *GetStatsHandler) Handle(ctx context.Context, _ GetStatsQuery) (*GetStatsResult, error) {
	coordinates, err := h.coordinates.Count(ctx)
	if err != nil {
		return nil, err
	}
	deltas, err := h.deltas.Count(ctx)
	if err != nil {
		return nil, err
	}
	snapshots, err := h.snapshots.Count(ctx)
	if err != nil {
		return nil, err
	}

	return &GetStatsResult{
		Coordinates:   coordinates,
		Deltas:        deltas,
		Snapshots:     snapshots,
		CachedVectors: h.cache.Len(),
	}, nil
}
