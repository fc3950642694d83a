package queries

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bms-backend/application/commands"
	"bms-backend/application/services"
	"bms-backend/domain/config"
	"bms-backend/domain/core/entities"
	"bms-backend/domain/core/valueobjects"
	"bms-backend/domain/versioning"
	"bms-backend/infrastructure/cache"
	"bms-backend/infrastructure/messaging/noop"
	"bms-backend/infrastructure/persistence/memory"
	pkgerrors "bms-backend/pkg/errors"
)

type queryFixture struct {
	store       *commands.StoreStateHandler
	recall      *RecallStateHandler
	verify      *VerifyChainHandler
	list        *ListCoordinatesHandler
	stats       *GetStatsHandler
	coordinates *memory.CoordinateRepository
	deltas      *memory.DeltaRepository
	cache       *cache.VectorCache
}

func newQueryFixture(t *testing.T) *queryFixture {
	t.Helper()

	store := memory.NewStore()
	coordinates := memory.NewCoordinateRepository(store)
	deltas := memory.NewDeltaRepository(store)
	snapshots := memory.NewSnapshotRepository(store)

	logger := zap.NewNop()
	cfg := config.DefaultDomainConfig()
	reconstructor := services.NewReconstructor(deltas, snapshots, logger)
	locks := services.NewLockRegistry()
	vectorCache := cache.NewVectorCache()
	publisher := noop.NewPublisher(logger)

	return &queryFixture{
		store: commands.NewStoreStateHandler(
			coordinates, deltas, snapshots, reconstructor, locks, vectorCache, publisher, cfg, logger),
		recall:      NewRecallStateHandler(coordinates, reconstructor, logger),
		verify:      NewVerifyChainHandler(coordinates, deltas, logger),
		list:        NewListCoordinatesHandler(coordinates, cfg, logger),
		stats:       NewGetStatsHandler(coordinates, deltas, snapshots, vectorCache, logger),
		coordinates: coordinates,
		deltas:      deltas,
		cache:       vectorCache,
	}
}

func (f *queryFixture) commit(t *testing.T, coordinate, state string) *commands.StoreStateResult {
	t.Helper()
	result, err := f.store.Handle(context.Background(), commands.StoreStateCommand{
		Coordinate: coordinate,
		State:      json.RawMessage(state),
		Author:     "tester",
	})
	require.NoError(t, err)
	return result
}

func TestRecallState_HeadAndHistory(t *testing.T) {
	f := newQueryFixture(t)
	ctx := context.Background()

	first := f.commit(t, "", `{"title":"draft"}`)
	f.commit(t, first.Coordinate, `{"title":"final","body":"text"}`)

	head, err := f.recall.Handle(ctx, RecallStateQuery{Coordinate: first.Coordinate})
	require.NoError(t, err)
	assert.Equal(t, 2, head.Position)
	assert.Equal(t, 2, head.HeadPosition)
	assert.True(t, head.State.Equals(mustParse(t, `{"title":"final","body":"text"}`)))

	past, err := f.recall.Handle(ctx, RecallStateQuery{Coordinate: first.Coordinate, Position: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, past.Position)
	assert.Equal(t, 2, past.HeadPosition)
	assert.True(t, past.State.Equals(mustParse(t, `{"title":"draft"}`)))
}

func TestRecallState_PastHeadRejected(t *testing.T) {
	f := newQueryFixture(t)

	first := f.commit(t, "", `{"n":1}`)

	_, err := f.recall.Handle(context.Background(), RecallStateQuery{Coordinate: first.Coordinate, Position: 9})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeValidation))

	appErr := pkgerrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, 1, appErr.Details["head_position"])
}

func TestRecallState_UnknownCoordinate(t *testing.T) {
	f := newQueryFixture(t)

	_, err := f.recall.Handle(context.Background(), RecallStateQuery{Coordinate: "ABCDEFGHIJKLMNOPQRSTUVWXYZ"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeNotFound))
}

func TestVerifyChain_IntactLineage(t *testing.T) {
	f := newQueryFixture(t)

	first := f.commit(t, "", `{"n":1}`)
	f.commit(t, first.Coordinate, `{"n":2}`)
	f.commit(t, first.Coordinate, `{"n":3}`)

	result, err := f.verify.Handle(context.Background(), VerifyChainQuery{Coordinate: first.Coordinate})
	require.NoError(t, err)
	assert.Equal(t, first.Coordinate, result.Coordinate)
	assert.True(t, result.ChainValid)
	assert.Equal(t, 3, result.TotalDeltas)
	assert.Equal(t, 3, result.VerifiedDeltas)
	assert.Nil(t, result.FirstBreak)
}

func TestVerifyChain_TamperedChainHash(t *testing.T) {
	f := newQueryFixture(t)
	ctx := context.Background()

	first := f.commit(t, "", `{"n":1}`)
	second := f.commit(t, first.Coordinate, `{"n":2}`)

	id, err := valueobjects.ParseCoordinateID(first.Coordinate)
	require.NoError(t, err)
	parent, err := valueobjects.ParseHash(second.ChainHash)
	require.NoError(t, err)

	// A delta whose stored chain hash does not derive from its parent link.
	ops := []versioning.Op{versioning.NewAddOp("/x", valueobjects.String_("v"))}
	deltaHash, err := versioning.HashOps(ops)
	require.NoError(t, err)
	forged, err := entities.ReconstructDelta(
		"badbadbadbadbadbadbadbadbadbad00", id, 3, ops,
		deltaHash, parent, valueobjects.NewHash([]byte("forged")),
		"tester", nil, false, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, f.deltas.Append(ctx, forged))

	result, err := f.verify.Handle(ctx, VerifyChainQuery{Coordinate: first.Coordinate})
	require.NoError(t, err)
	assert.False(t, result.ChainValid)
	assert.Equal(t, 3, result.TotalDeltas)
	assert.Equal(t, 2, result.VerifiedDeltas)
	require.NotNil(t, result.FirstBreak)
	assert.Equal(t, 3, result.FirstBreak.Position)
	assert.Equal(t, versioning.BreakChainHash, result.FirstBreak.Kind)
}

func TestVerifyChain_TamperedOps(t *testing.T) {
	f := newQueryFixture(t)
	ctx := context.Background()

	first := f.commit(t, "", `{"n":1}`)

	id, err := valueobjects.ParseCoordinateID(first.Coordinate)
	require.NoError(t, err)
	parent, err := valueobjects.ParseHash(first.ChainHash)
	require.NoError(t, err)

	// Ops swapped out after the fact: the stored delta hash covers different
	// bytes than what is now on disk.
	ops := []versioning.Op{versioning.NewAddOp("/x", valueobjects.String_("swapped"))}
	staleHash := valueobjects.NewHash([]byte("original ops"))
	forged, err := entities.ReconstructDelta(
		"badbadbadbadbadbadbadbadbadbad01", id, 2, ops,
		staleHash, parent, versioning.ChainLink(parent, staleHash),
		"tester", nil, false, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, f.deltas.Append(ctx, forged))

	result, err := f.verify.Handle(ctx, VerifyChainQuery{Coordinate: first.Coordinate})
	require.NoError(t, err)
	assert.False(t, result.ChainValid)
	assert.Equal(t, 1, result.VerifiedDeltas)
	require.NotNil(t, result.FirstBreak)
	assert.Equal(t, 2, result.FirstBreak.Position)
	assert.Equal(t, versioning.BreakDeltaHash, result.FirstBreak.Kind)
}

func TestVerifyChain_UnknownCoordinate(t *testing.T) {
	f := newQueryFixture(t)

	_, err := f.verify.Handle(context.Background(), VerifyChainQuery{Coordinate: "ABCDEFGHIJKLMNOPQRSTUVWXYZ"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeNotFound))
}

func TestListCoordinates_SummariesAndLimit(t *testing.T) {
	f := newQueryFixture(t)
	ctx := context.Background()

	a := f.commit(t, "", `{"n":1}`)
	b := f.commit(t, "", `{"n":2}`)
	f.commit(t, b.Coordinate, `{"n":3}`)

	result, err := f.list.Handle(ctx, ListCoordinatesQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)

	byID := map[string]CoordinateSummary{}
	for _, s := range result.Coordinates {
		byID[s.Coordinate] = s
	}
	assert.Equal(t, 1, byID[a.Coordinate].HeadPosition)
	assert.Equal(t, 2, byID[b.Coordinate].HeadPosition)
	assert.Equal(t, "tester", byID[a.Coordinate].CreatedBy)

	limited, err := f.list.Handle(ctx, ListCoordinatesQuery{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, limited.Total)
}

func TestGetStats_Counters(t *testing.T) {
	f := newQueryFixture(t)
	ctx := context.Background()

	first := f.commit(t, "", `{"n":1}`)
	f.commit(t, first.Coordinate, `{"n":2}`)
	f.commit(t, "", `{"m":1}`)

	result, err := f.stats.Handle(ctx, GetStatsQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Coordinates)
	assert.Equal(t, 3, result.Deltas)
	assert.Equal(t, 0, result.Snapshots)
	assert.Equal(t, 0, result.CachedVectors)
}

func mustParse(t *testing.T, raw string) valueobjects.State {
	t.Helper()
	state, err := valueobjects.ParseState([]byte(raw))
	require.NoError(t, err)
	return state
}
