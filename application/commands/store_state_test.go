package commands

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bms-backend/application/services"
	"bms-backend/domain/config"
	"bms-backend/domain/core/valueobjects"
	"bms-backend/domain/versioning"
	"bms-backend/infrastructure/cache"
	"bms-backend/infrastructure/messaging/noop"
	"bms-backend/infrastructure/persistence/memory"
	pkgerrors "bms-backend/pkg/errors"
)

type storeFixture struct {
	handler     *StoreStateHandler
	snapshotter *CreateSnapshotHandler
	store       *memory.Store
	cache       *cache.VectorCache
	deltas      *memory.DeltaRepository
}

func newStoreFixture(t *testing.T, cfg *config.DomainConfig) *storeFixture {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	store := memory.NewStore()
	coordinates := memory.NewCoordinateRepository(store)
	deltas := memory.NewDeltaRepository(store)
	snapshots := memory.NewSnapshotRepository(store)

	logger := zap.NewNop()
	reconstructor := services.NewReconstructor(deltas, snapshots, logger)
	locks := services.NewLockRegistry()
	vectorCache := cache.NewVectorCache()
	publisher := noop.NewPublisher(logger)

	return &storeFixture{
		handler: NewStoreStateHandler(
			coordinates, deltas, snapshots, reconstructor, locks, vectorCache, publisher, cfg, logger),
		snapshotter: NewCreateSnapshotHandler(
			coordinates, snapshots, reconstructor, locks, publisher, logger),
		store:  store,
		cache:  vectorCache,
		deltas: deltas,
	}
}

func mustCoordinate(t *testing.T, raw string) valueobjects.CoordinateID {
	t.Helper()
	id, err := valueobjects.ParseCoordinateID(raw)
	require.NoError(t, err)
	return id
}

func (f *storeFixture) store1(t *testing.T, coordinate, state string) *StoreStateResult {
	t.Helper()
	result, err := f.handler.Handle(context.Background(), StoreStateCommand{
		Coordinate: coordinate,
		State:      json.RawMessage(state),
		Author:     "tester",
	})
	require.NoError(t, err)
	return result
}

func TestStoreState_OpensLineage(t *testing.T) {
	f := newStoreFixture(t, nil)

	result := f.store1(t, "", `{"note":"hello"}`)

	assert.True(t, result.Created)
	assert.False(t, result.Unchanged)
	assert.Equal(t, 1, result.Position)
	assert.Len(t, result.Coordinate, 26)
	assert.NotEmpty(t, result.DeltaID)
	assert.Len(t, result.DeltaHash, 64)
	assert.Len(t, result.ChainHash, 64)
	assert.False(t, result.SnapshotCreated)
}

func TestStoreState_AppendsToExistingLineage(t *testing.T) {
	f := newStoreFixture(t, nil)

	first := f.store1(t, "", `{"note":"hello"}`)
	second := f.store1(t, first.Coordinate, `{"note":"hello","mood":"calm"}`)

	assert.False(t, second.Created)
	assert.Equal(t, first.Coordinate, second.Coordinate)
	assert.Equal(t, 2, second.Position)
	assert.NotEqual(t, first.ChainHash, second.ChainHash)

	// The committed deltas form a valid chain.
	all, err := f.deltas.GetAll(context.Background(), mustCoordinate(t, first.Coordinate))
	require.NoError(t, err)
	entries := make([]versioning.ChainEntry, len(all))
	for i, d := range all {
		entries[i] = d
	}
	report, err := versioning.VerifyChain(entries)
	require.NoError(t, err)
	assert.True(t, report.ChainValid)
	assert.Equal(t, 2, report.VerifiedDeltas)
}

func TestStoreState_IdenticalStateIsNoOp(t *testing.T) {
	f := newStoreFixture(t, nil)

	first := f.store1(t, "", `{"note":"same"}`)
	repeat := f.store1(t, first.Coordinate, `{"note":"same"}`)

	assert.True(t, repeat.Unchanged)
	assert.Equal(t, 1, repeat.Position)
	assert.Empty(t, repeat.DeltaID)
}

func TestStoreState_EquivalentEncodingIsNoOp(t *testing.T) {
	f := newStoreFixture(t, nil)

	first := f.store1(t, "", `{"a":1.0,"b":2}`)
	repeat := f.store1(t, first.Coordinate, `{"b":2,"a":1}`)

	assert.True(t, repeat.Unchanged)
}

func TestStoreState_SnapshotOnInterval(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	cfg.SnapshotInterval = 3
	f := newStoreFixture(t, cfg)

	first := f.store1(t, "", `{"n":1}`)
	assert.False(t, first.SnapshotCreated)

	second := f.store1(t, first.Coordinate, `{"n":2}`)
	assert.False(t, second.SnapshotCreated)

	third := f.store1(t, first.Coordinate, `{"n":3}`)
	assert.True(t, third.SnapshotCreated)

	fourth := f.store1(t, first.Coordinate, `{"n":4}`)
	assert.False(t, fourth.SnapshotCreated)
}

func TestStoreState_OversizeForcesSnapshot(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	cfg.OversizeDeltaOps = 2
	f := newStoreFixture(t, cfg)

	// Three new keys produce three ops, over the two-op threshold.
	result := f.store1(t, "", `{"a":1,"b":2,"c":3}`)
	assert.True(t, result.SnapshotCreated)
}

func TestStoreState_InvalidStateRejected(t *testing.T) {
	f := newStoreFixture(t, nil)

	_, err := f.handler.Handle(context.Background(), StoreStateCommand{
		State: json.RawMessage(`{"broken":`),
	})
	require.Error(t, err)
}

func TestStoreState_UnknownCoordinateRejected(t *testing.T) {
	f := newStoreFixture(t, nil)

	_, err := f.handler.Handle(context.Background(), StoreStateCommand{
		Coordinate: "ABCDEFGHIJKLMNOPQRSTUVWXYZ",
		State:      json.RawMessage(`{"n":1}`),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeNotFound))
}

func TestCreateSnapshot_AtHead(t *testing.T) {
	f := newStoreFixture(t, nil)

	first := f.store1(t, "", `{"n":1}`)
	f.store1(t, first.Coordinate, `{"n":2}`)

	result, err := f.snapshotter.Handle(context.Background(), CreateSnapshotCommand{Coordinate: first.Coordinate})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Position)
	assert.NotEmpty(t, result.SnapshotID)
	assert.Len(t, result.StateHash, 64)
}

func TestCreateSnapshot_EmptyLineageRejected(t *testing.T) {
	f := newStoreFixture(t, nil)

	// Storing the genesis state opens the lineage but writes no delta.
	opened := f.store1(t, "", `{}`)
	assert.True(t, opened.Created)
	assert.True(t, opened.Unchanged)
	assert.Equal(t, 0, opened.Position)

	_, err := f.snapshotter.Handle(context.Background(), CreateSnapshotCommand{Coordinate: opened.Coordinate})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeValidation))
}
