package dynamodb

import (
	"context"

	"bms-backend/application/ports"
	"bms-backend/domain/core/entities"
	"bms-backend/domain/core/valueobjects"
)

// The three repository ports share one table and one client; these thin
// views carve the shared Store into the shapes the application expects.

// CoordinateRepository adapts Store to ports.CoordinateRepository
type CoordinateRepository struct {
	store *Store
}

// NewCoordinateRepository creates the coordinate view of the store
func NewCoordinateRepository(store *Store) *CoordinateRepository {
	return &CoordinateRepository{store: store}
}

func (r *CoordinateRepository) Save(ctx context.Context, coordinate *entities.Coordinate) error {
	return r.store.Save(ctx, coordinate)
}

func (r *CoordinateRepository) GetByID(ctx context.Context, id valueobjects.CoordinateID) (*entities.Coordinate, error) {
	return r.store.GetByID(ctx, id)
}

func (r *CoordinateRepository) Exists(ctx context.Context, id valueobjects.CoordinateID) (bool, error) {
	return r.store.Exists(ctx, id)
}

func (r *CoordinateRepository) List(ctx context.Context, limit int) ([]*entities.Coordinate, error) {
	return r.store.List(ctx, limit)
}

func (r *CoordinateRepository) Count(ctx context.Context) (int, error) {
	return r.store.Count(ctx)
}

// DeltaRepository adapts Store to ports.DeltaRepository
type DeltaRepository struct {
	store *Store
}

// NewDeltaRepository creates the delta view of the store
func NewDeltaRepository(store *Store) *DeltaRepository {
	return &DeltaRepository{store: store}
}

func (r *DeltaRepository) Append(ctx context.Context, delta *entities.Delta) error {
	return r.store.Append(ctx, delta)
}

func (r *DeltaRepository) GetRange(ctx context.Context, id valueobjects.CoordinateID, from, to int) ([]*entities.Delta, error) {
	return r.store.GetRange(ctx, id, from, to)
}

func (r *DeltaRepository) GetAll(ctx context.Context, id valueobjects.CoordinateID) ([]*entities.Delta, error) {
	return r.store.GetAll(ctx, id)
}

func (r *DeltaRepository) GetByPosition(ctx context.Context, id valueobjects.CoordinateID, position int) (*entities.Delta, error) {
	return r.store.GetByPosition(ctx, id, position)
}

func (r *DeltaRepository) Count(ctx context.Context) (int, error) {
	return r.store.CountDeltas(ctx)
}

// SnapshotRepository adapts Store to ports.SnapshotRepository
type SnapshotRepository struct {
	store *Store
}

// NewSnapshotRepository creates the snapshot view of the store
func NewSnapshotRepository(store *Store) *SnapshotRepository {
	return &SnapshotRepository{store: store}
}

func (r *SnapshotRepository) Save(ctx context.Context, snapshot *entities.Snapshot) error {
	return r.store.SaveSnapshot(ctx, snapshot)
}

func (r *SnapshotRepository) GetLatestAtOrBefore(ctx context.Context, id valueobjects.CoordinateID, position int) (*entities.Snapshot, error) {
	return r.store.GetLatestAtOrBefore(ctx, id, position)
}

func (r *SnapshotRepository) Count(ctx context.Context) (int, error) {
	return r.store.CountSnapshots(ctx)
}

var (
	_ ports.CoordinateRepository = (*CoordinateRepository)(nil)
	_ ports.DeltaRepository      = (*DeltaRepository)(nil)
	_ ports.SnapshotRepository   = (*SnapshotRepository)(nil)
)
