// Package memory keeps lineages in process memory. It is the reference
// implementation of the storage ports and the backend the tests run against;
// the delta log for each coordinate is a position-indexed slice, so replay
// reads are O(1) per position.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bms-backend/application/ports"
	"bms-backend/domain/core/entities"
	"bms-backend/domain/core/valueobjects"
	pkgerrors "bms-backend/pkg/errors"
)

// Store holds all lineages in memory
type Store struct {
	mu          sync.RWMutex
	coordinates map[string]*entities.Coordinate
	deltas      map[string][]*entities.Delta    // position 1 at index 0
	snapshots   map[string][]*entities.Snapshot // sorted by position ascending
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		coordinates: make(map[string]*entities.Coordinate),
		deltas:      make(map[string][]*entities.Delta),
		snapshots:   make(map[string][]*entities.Snapshot),
	}
}

// Coordinate operations

// cloneCoordinate detaches a coordinate from its caller. Callers mutate their
// instance through RecordAppend while readers hold theirs, so the store never
// shares a pointer across the repository boundary.
func cloneCoordinate(c *entities.Coordinate) (*entities.Coordinate, error) {
	return entities.ReconstructCoordinate(
		c.ID(), c.Alias(), c.CreatedBy(), c.Metadata(),
		c.CreatedAt(), c.UpdatedAt(),
		c.HeadPosition(), c.HeadChainHash(), c.HeadStateHash(),
		c.LastSnapshotPosition(),
	)
}

func (s *Store) saveCoordinate(_ context.Context, coordinate *entities.Coordinate) error {
	stored, err := cloneCoordinate(coordinate)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coordinates[stored.ID().String()] = stored
	return nil
}

func (s *Store) getCoordinate(_ context.Context, id valueobjects.CoordinateID) (*entities.Coordinate, error) {
	s.mu.RLock()
	coordinate, ok := s.coordinates[id.String()]
	s.mu.RUnlock()
	if !ok {
		return nil, pkgerrors.NewNotFoundError("coordinate")
	}
	return cloneCoordinate(coordinate)
}

func (s *Store) coordinateExists(_ context.Context, id valueobjects.CoordinateID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.coordinates[id.String()]
	return ok, nil
}

func (s *Store) listCoordinates(_ context.Context, limit int) ([]*entities.Coordinate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.coordinates))
	for k := range s.coordinates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if limit > 0 && limit < len(keys) {
		keys = keys[:limit]
	}
	coordinates := make([]*entities.Coordinate, len(keys))
	for i, k := range keys {
		coordinate, err := cloneCoordinate(s.coordinates[k])
		if err != nil {
			return nil, err
		}
		coordinates[i] = coordinate
	}
	return coordinates, nil
}

func (s *Store) countCoordinates(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.coordinates), nil
}

// Delta operations

func (s *Store) appendDelta(_ context.Context, delta *entities.Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := delta.CoordinateID().String()
	log := s.deltas[key]
	if delta.Position() != len(log)+1 {
		return pkgerrors.NewConflictError(fmt.Sprintf("position %d already occupied for coordinate %s", delta.Position(), key))
	}
	s.deltas[key] = append(log, delta)
	return nil
}

func (s *Store) getDeltaRange(_ context.Context, id valueobjects.CoordinateID, from, to int) ([]*entities.Delta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.deltas[id.String()]
	if from < 1 {
		from = 1
	}
	if to > len(log) {
		to = len(log)
	}
	if from > to {
		return nil, nil
	}
	out := make([]*entities.Delta, to-from+1)
	copy(out, log[from-1:to])
	return out, nil
}

func (s *Store) getAllDeltas(ctx context.Context, id valueobjects.CoordinateID) ([]*entities.Delta, error) {
	s.mu.RLock()
	length := len(s.deltas[id.String()])
	s.mu.RUnlock()
	return s.getDeltaRange(ctx, id, 1, length)
}

func (s *Store) getDeltaByPosition(_ context.Context, id valueobjects.CoordinateID, position int) (*entities.Delta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.deltas[id.String()]
	if position < 1 || position > len(log) {
		return nil, pkgerrors.NewNotFoundError("delta")
	}
	return log[position-1], nil
}

func (s *Store) countDeltas(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, log := range s.deltas {
		total += len(log)
	}
	return total, nil
}

// Snapshot operations

func (s *Store) saveSnapshot(_ context.Context, snapshot *entities.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := snapshot.CoordinateID().String()
	snaps := append(s.snapshots[key], snapshot)
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Position() < snaps[j].Position() })
	s.snapshots[key] = snaps
	return nil
}

func (s *Store) latestSnapshotAtOrBefore(_ context.Context, id valueobjects.CoordinateID, position int) (*entities.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *entities.Snapshot
	for _, snap := range s.snapshots[id.String()] {
		if snap.Position() > position {
			break
		}
		best = snap
	}
	return best, nil
}

func (s *Store) countSnapshots(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, snaps := range s.snapshots {
		total += len(snaps)
	}
	return total, nil
}

// Repository views

// CoordinateRepository adapts Store to ports.CoordinateRepository
type CoordinateRepository struct{ store *Store }

// NewCoordinateRepository creates the coordinate view of the store
func NewCoordinateRepository(store *Store) *CoordinateRepository {
	return &CoordinateRepository{store: store}
}

func (r *CoordinateRepository) Save(ctx context.Context, c *entities.Coordinate) error {
	return r.store.saveCoordinate(ctx, c)
}
func (r *CoordinateRepository) GetByID(ctx context.Context, id valueobjects.CoordinateID) (*entities.Coordinate, error) {
	return r.store.getCoordinate(ctx, id)
}
func (r *CoordinateRepository) Exists(ctx context.Context, id valueobjects.CoordinateID) (bool, error) {
	return r.store.coordinateExists(ctx, id)
}
func (r *CoordinateRepository) List(ctx context.Context, limit int) ([]*entities.Coordinate, error) {
	return r.store.listCoordinates(ctx, limit)
}
func (r *CoordinateRepository) Count(ctx context.Context) (int, error) {
	return r.store.countCoordinates(ctx)
}

// DeltaRepository adapts Store to ports.DeltaRepository
type DeltaRepository struct{ store *Store }

// NewDeltaRepository creates the delta view of the store
func NewDeltaRepository(store *Store) *DeltaRepository {
	return &DeltaRepository{store: store}
}

func (r *DeltaRepository) Append(ctx context.Context, d *entities.Delta) error {
	return r.store.appendDelta(ctx, d)
}
func (r *DeltaRepository) GetRange(ctx context.Context, id valueobjects.CoordinateID, from, to int) ([]*entities.Delta, error) {
	return r.store.getDeltaRange(ctx, id, from, to)
}
func (r *DeltaRepository) GetAll(ctx context.Context, id valueobjects.CoordinateID) ([]*entities.Delta, error) {
	return r.store.getAllDeltas(ctx, id)
}
func (r *DeltaRepository) GetByPosition(ctx context.Context, id valueobjects.CoordinateID, position int) (*entities.Delta, error) {
	return r.store.getDeltaByPosition(ctx, id, position)
}
func (r *DeltaRepository) Count(ctx context.Context) (int, error) {
	return r.store.countDeltas(ctx)
}

// SnapshotRepository adapts Store to ports.SnapshotRepository
type SnapshotRepository struct{ store *Store }

// NewSnapshotRepository creates the snapshot view of the store
func NewSnapshotRepository(store *Store) *SnapshotRepository {
	return &SnapshotRepository{store: store}
}

func (r *SnapshotRepository) Save(ctx context.Context, snap *entities.Snapshot) error {
	return r.store.saveSnapshot(ctx, snap)
}
func (r *SnapshotRepository) GetLatestAtOrBefore(ctx context.Context, id valueobjects.CoordinateID, position int) (*entities.Snapshot, error) {
	return r.store.latestSnapshotAtOrBefore(ctx, id, position)
}
func (r *SnapshotRepository) Count(ctx context.Context) (int, error) {
	return r.store.countSnapshots(ctx)
}

var (
	_ ports.CoordinateRepository = (*CoordinateRepository)(nil)
	_ ports.DeltaRepository      = (*DeltaRepository)(nil)
	_ ports.SnapshotRepository   = (*SnapshotRepository)(nil)
)
