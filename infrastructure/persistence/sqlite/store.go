// Package sqlite persists lineages in SQLite through the
// ncruces/go-sqlite3 database/sql driver. Suited to single-node and CLI
// deployments where DynamoDB is overkill.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"bms-backend/application/ports"
	"bms-backend/domain/core/entities"
	"bms-backend/domain/core/valueobjects"
	"bms-backend/domain/versioning"
	pkgerrors "bms-backend/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS coordinates (
    id TEXT PRIMARY KEY,
    alias TEXT NOT NULL DEFAULT '',
    created_by TEXT NOT NULL DEFAULT '',
    metadata TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    head_position INTEGER NOT NULL DEFAULT 0,
    head_chain_hash TEXT NOT NULL DEFAULT '',
    head_state_hash TEXT NOT NULL DEFAULT '',
    last_snapshot_position INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS deltas (
    coordinate_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    delta_id TEXT NOT NULL,
    ops TEXT NOT NULL,
    delta_hash TEXT NOT NULL,
    parent_chain_hash TEXT NOT NULL DEFAULT '',
    chain_hash TEXT NOT NULL,
    author TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]',
    oversize INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    PRIMARY KEY (coordinate_id, position)
);

CREATE TABLE IF NOT EXISTS snapshots (
    snapshot_id TEXT PRIMARY KEY,
    coordinate_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    state TEXT NOT NULL,
    state_hash TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_coord_pos ON snapshots(coordinate_id, position);
`

// Store holds the database handle shared by the repository views
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at dsn and ensures the schema.
// Use ":memory:" for an ephemeral store.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("open sqlite", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, pkgerrors.NewDatabaseError("create schema", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// CoordinateRepository is the coordinates-table view
type CoordinateRepository struct{ store *Store }

// NewCoordinateRepository creates the coordinate view of the store
func NewCoordinateRepository(store *Store) *CoordinateRepository {
	return &CoordinateRepository{store: store}
}

func (r *CoordinateRepository) Save(ctx context.Context, coordinate *entities.Coordinate) error {
	metadata, err := json.Marshal(coordinate.Metadata())
	if err != nil {
		return pkgerrors.NewDatabaseError("marshal coordinate metadata", err)
	}

	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO coordinates (id, alias, created_by, metadata, created_at, updated_at,
			head_position, head_chain_hash, head_state_hash, last_snapshot_position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			alias = excluded.alias,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at,
			head_position = excluded.head_position,
			head_chain_hash = excluded.head_chain_hash,
			head_state_hash = excluded.head_state_hash,
			last_snapshot_position = excluded.last_snapshot_position
	`, coordinate.ID().String(), coordinate.Alias(), coordinate.CreatedBy(), string(metadata),
		coordinate.CreatedAt().UTC().Format(time.RFC3339Nano),
		coordinate.UpdatedAt().UTC().Format(time.RFC3339Nano),
		coordinate.HeadPosition(), coordinate.HeadChainHash().String(),
		coordinate.HeadStateHash().String(), coordinate.LastSnapshotPosition())
	if err != nil {
		return pkgerrors.NewDatabaseError("save coordinate", err)
	}
	return nil
}

func (r *CoordinateRepository) GetByID(ctx context.Context, id valueobjects.CoordinateID) (*entities.Coordinate, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT id, alias, created_by, metadata, created_at, updated_at,
			head_position, head_chain_hash, head_state_hash, last_snapshot_position
		FROM coordinates WHERE id = ?
	`, id.String())

	coordinate, err := scanCoordinate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.NewNotFoundError("coordinate")
	}
	return coordinate, err
}

func (r *CoordinateRepository) Exists(ctx context.Context, id valueobjects.CoordinateID) (bool, error) {
	var one int
	err := r.store.db.QueryRowContext(ctx, `SELECT 1 FROM coordinates WHERE id = ?`, id.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, pkgerrors.NewDatabaseError("check coordinate", err)
	}
	return true, nil
}

func (r *CoordinateRepository) List(ctx context.Context, limit int) ([]*entities.Coordinate, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, alias, created_by, metadata, created_at, updated_at,
			head_position, head_chain_hash, head_state_hash, last_snapshot_position
		FROM coordinates ORDER BY id LIMIT ?
	`, limit)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("list coordinates", err)
	}
	defer rows.Close()

	var coordinates []*entities.Coordinate
	for rows.Next() {
		coordinate, err := scanCoordinate(rows)
		if err != nil {
			return nil, err
		}
		coordinates = append(coordinates, coordinate)
	}
	return coordinates, rows.Err()
}

func (r *CoordinateRepository) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.store.db, "coordinates")
}

// DeltaRepository is the deltas-table view
type DeltaRepository struct{ store *Store }

// NewDeltaRepository creates the delta view of the store
func NewDeltaRepository(store *Store) *DeltaRepository {
	return &DeltaRepository{store: store}
}

func (r *DeltaRepository) Append(ctx context.Context, delta *entities.Delta) error {
	ops, err := versioning.OpsCanonicalBytes(delta.Ops())
	if err != nil {
		return err
	}
	tags, err := json.Marshal(delta.Tags())
	if err != nil {
		return pkgerrors.NewDatabaseError("marshal delta tags", err)
	}

	// The primary key on (coordinate_id, position) makes the append
	// conditional; a racing writer hits the constraint and loses.
	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO deltas (coordinate_id, position, delta_id, ops, delta_hash,
			parent_chain_hash, chain_hash, author, tags, oversize, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, delta.CoordinateID().String(), delta.Position(), delta.ID(), string(ops),
		delta.DeltaHash().String(), delta.ParentChainHash().String(), delta.ChainHash().String(),
		delta.Author(), string(tags), boolToInt(delta.Oversize()),
		delta.CreatedAt().UTC().Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "PRIMARY KEY") {
			return pkgerrors.NewConflictError(fmt.Sprintf("position %d already occupied for coordinate %s", delta.Position(), delta.CoordinateID()))
		}
		return pkgerrors.NewDatabaseError("append delta", err)
	}
	return nil
}

func (r *DeltaRepository) GetRange(ctx context.Context, id valueobjects.CoordinateID, from, to int) ([]*entities.Delta, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT coordinate_id, position, delta_id, ops, delta_hash,
			parent_chain_hash, chain_hash, author, tags, oversize, created_at
		FROM deltas
		WHERE coordinate_id = ? AND position BETWEEN ? AND ?
		ORDER BY position
	`, id.String(), from, to)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("query deltas", err)
	}
	defer rows.Close()
	return scanDeltas(rows)
}

func (r *DeltaRepository) GetAll(ctx context.Context, id valueobjects.CoordinateID) ([]*entities.Delta, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT coordinate_id, position, delta_id, ops, delta_hash,
			parent_chain_hash, chain_hash, author, tags, oversize, created_at
		FROM deltas WHERE coordinate_id = ? ORDER BY position
	`, id.String())
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("query deltas", err)
	}
	defer rows.Close()
	return scanDeltas(rows)
}

func (r *DeltaRepository) GetByPosition(ctx context.Context, id valueobjects.CoordinateID, position int) (*entities.Delta, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT coordinate_id, position, delta_id, ops, delta_hash,
			parent_chain_hash, chain_hash, author, tags, oversize, created_at
		FROM deltas WHERE coordinate_id = ? AND position = ?
	`, id.String(), position)

	delta, err := scanDelta(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.NewNotFoundError("delta")
	}
	return delta, err
}

func (r *DeltaRepository) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.store.db, "deltas")
}

// SnapshotRepository is the snapshots-table view
type SnapshotRepository struct{ store *Store }

// NewSnapshotRepository creates the snapshot view of the store
func NewSnapshotRepository(store *Store) *SnapshotRepository {
	return &SnapshotRepository{store: store}
}

func (r *SnapshotRepository) Save(ctx context.Context, snapshot *entities.Snapshot) error {
	canonical, err := snapshot.State().CanonicalBytes()
	if err != nil {
		return err
	}

	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO snapshots (snapshot_id, coordinate_id, position, state, state_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, snapshot.ID(), snapshot.CoordinateID().String(), snapshot.Position(),
		string(canonical), snapshot.StateHash().String(),
		snapshot.CreatedAt().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return pkgerrors.NewDatabaseError("save snapshot", err)
	}
	return nil
}

func (r *SnapshotRepository) GetLatestAtOrBefore(ctx context.Context, id valueobjects.CoordinateID, position int) (*entities.Snapshot, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT snapshot_id, coordinate_id, position, state, state_hash, created_at
		FROM snapshots
		WHERE coordinate_id = ? AND position <= ?
		ORDER BY position DESC LIMIT 1
	`, id.String(), position)

	var (
		snapshotID, coordID, state, stateHash, createdAt string
		pos                                              int
	)
	err := row.Scan(&snapshotID, &coordID, &pos, &state, &stateHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("query snapshots", err)
	}

	cid, err := valueobjects.ParseCoordinateID(coordID)
	if err != nil {
		return nil, err
	}
	parsedState, err := valueobjects.ParseState([]byte(state))
	if err != nil {
		return nil, err
	}
	hash, err := valueobjects.ParseHash(stateHash)
	if err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("parse snapshot timestamp", err)
	}
	return entities.ReconstructSnapshot(snapshotID, cid, pos, parsedState, hash, ts)
}

func (r *SnapshotRepository) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.store.db, "snapshots")
}

// Scanning helpers

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCoordinate(row rowScanner) (*entities.Coordinate, error) {
	var (
		id, alias, createdBy, metadata, createdAt, updatedAt string
		headChainHash, headStateHash                         string
		headPosition, lastSnapshotPosition                   int
	)
	if err := row.Scan(&id, &alias, &createdBy, &metadata, &createdAt, &updatedAt,
		&headPosition, &headChainHash, &headStateHash, &lastSnapshotPosition); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, pkgerrors.NewDatabaseError("scan coordinate", err)
	}

	cid, err := valueobjects.ParseCoordinateID(id)
	if err != nil {
		return nil, err
	}
	chainHash, err := valueobjects.ParseHash(headChainHash)
	if err != nil {
		return nil, err
	}
	stateHash, err := valueobjects.ParseHash(headStateHash)
	if err != nil {
		return nil, err
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(metadata), &meta); err != nil {
		return nil, pkgerrors.NewDatabaseError("parse coordinate metadata", err)
	}
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("parse coordinate timestamps", err)
	}
	updated, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("parse coordinate timestamps", err)
	}
	return entities.ReconstructCoordinate(cid, alias, createdBy, meta, created, updated,
		headPosition, chainHash, stateHash, lastSnapshotPosition)
}

func scanDelta(row rowScanner) (*entities.Delta, error) {
	var (
		coordID, deltaID, ops, deltaHash, parentHash, chainHash, author, tags, createdAt string
		position, oversize                                                               int
	)
	if err := row.Scan(&coordID, &position, &deltaID, &ops, &deltaHash,
		&parentHash, &chainHash, &author, &tags, &oversize, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, pkgerrors.NewDatabaseError("scan delta", err)
	}

	cid, err := valueobjects.ParseCoordinateID(coordID)
	if err != nil {
		return nil, err
	}
	parsedOps, err := versioning.ParseOps([]byte(ops))
	if err != nil {
		return nil, err
	}
	dh, err := valueobjects.ParseHash(deltaHash)
	if err != nil {
		return nil, err
	}
	ph, err := valueobjects.ParseHash(parentHash)
	if err != nil {
		return nil, err
	}
	ch, err := valueobjects.ParseHash(chainHash)
	if err != nil {
		return nil, err
	}
	var parsedTags []string
	if err := json.Unmarshal([]byte(tags), &parsedTags); err != nil {
		return nil, pkgerrors.NewDatabaseError("parse delta tags", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("parse delta timestamp", err)
	}
	return entities.ReconstructDelta(deltaID, cid, position, parsedOps,
		dh, ph, ch, author, parsedTags, oversize != 0, ts)
}

func scanDeltas(rows *sql.Rows) ([]*entities.Delta, error) {
	var deltas []*entities.Delta
	for rows.Next() {
		delta, err := scanDelta(rows)
		if err != nil {
			return nil, err
		}
		deltas = append(deltas, delta)
	}
	return deltas, rows.Err()
}

func countRows(ctx context.Context, db *sql.DB, table string) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count); err != nil {
		return 0, pkgerrors.NewDatabaseError("count "+table, err)
	}
	return count, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var (
	_ ports.CoordinateRepository = (*CoordinateRepository)(nil)
	_ ports.DeltaRepository      = (*DeltaRepository)(nil)
	_ ports.SnapshotRepository   = (*SnapshotRepository)(nil)
)
