package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bms-backend/application/ports"
	"bms-backend/domain/core/entities"
	"bms-backend/domain/core/valueobjects"
	"bms-backend/domain/versioning"
	"bms-backend/infrastructure/persistence/memory"
	pkgerrors "bms-backend/pkg/errors"
)

func mustState(t *testing.T, raw string) valueobjects.State {
	t.Helper()
	state, err := valueobjects.ParseState([]byte(raw))
	require.NoError(t, err)
	return state
}

// appendStates commits a sequence of full states as chained deltas and
// returns the coordinate.
func appendStates(t *testing.T, deltas ports.DeltaRepository, raws []string) valueobjects.CoordinateID {
	t.Helper()
	id := valueobjects.NewCoordinateID([]byte(raws[0]), time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), 0)

	prev := valueobjects.EmptyObject()
	parent := valueobjects.EmptyHash
	for i, raw := range raws {
		next := mustState(t, raw)
		ops, err := versioning.Compute(prev, next)
		require.NoError(t, err)
		require.NotEmpty(t, ops)

		delta, err := entities.NewDelta(id, i+1, ops, parent, "tester", nil, false, time.Now().UTC())
		require.NoError(t, err)
		require.NoError(t, deltas.Append(context.Background(), delta))

		prev = next
		parent = delta.ChainHash()
	}
	return id
}

func TestReconstructAt_PositionZeroIsEmptyObject(t *testing.T) {
	store := memory.NewStore()
	r := NewReconstructor(memory.NewDeltaRepository(store), memory.NewSnapshotRepository(store), zap.NewNop())

	id := valueobjects.NewCoordinateID([]byte("x"), time.Now().UTC(), 0)
	state, err := r.ReconstructAt(context.Background(), id, 0)
	require.NoError(t, err)

	canonical, err := state.CanonicalString()
	require.NoError(t, err)
	assert.Equal(t, "{}", canonical)
}

func TestReconstructAt_NegativePosition(t *testing.T) {
	store := memory.NewStore()
	r := NewReconstructor(memory.NewDeltaRepository(store), memory.NewSnapshotRepository(store), zap.NewNop())

	_, err := r.ReconstructAt(context.Background(), valueobjects.NewCoordinateID([]byte("x"), time.Now().UTC(), 0), -1)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeValidation))
}

func TestReconstructAt_ReplaysEveryPosition(t *testing.T) {
	store := memory.NewStore()
	deltas := memory.NewDeltaRepository(store)
	r := NewReconstructor(deltas, memory.NewSnapshotRepository(store), zap.NewNop())

	raws := []string{
		`{"title":"draft"}`,
		`{"title":"draft","body":"text"}`,
		`{"title":"final","body":"text","tags":["a"]}`,
	}
	id := appendStates(t, deltas, raws)

	for i, raw := range raws {
		state, err := r.ReconstructAt(context.Background(), id, i+1)
		require.NoError(t, err)
		assert.True(t, state.Equals(mustState(t, raw)), "position %d", i+1)
	}
}

func TestReconstructAt_UsesSnapshotBase(t *testing.T) {
	store := memory.NewStore()
	deltas := memory.NewDeltaRepository(store)
	snapshots := memory.NewSnapshotRepository(store)
	r := NewReconstructor(deltas, snapshots, zap.NewNop())

	raws := []string{
		`{"n":1}`,
		`{"n":2}`,
		`{"n":3}`,
	}
	id := appendStates(t, deltas, raws)

	// A snapshot whose state deliberately disagrees with the delta log
	// proves reconstruction starts from it rather than replaying from
	// genesis.
	marker := mustState(t, `{"n":2,"from_snapshot":true}`)
	snapshot, err := entities.NewSnapshot(id, 2, marker, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, snapshots.Save(context.Background(), snapshot))

	atSnapshot, err := r.ReconstructAt(context.Background(), id, 2)
	require.NoError(t, err)
	assert.True(t, atSnapshot.Equals(marker))

	// One delta past the snapshot: delta 3 replaces /n on top of the
	// snapshot state.
	past, err := r.ReconstructAt(context.Background(), id, 3)
	require.NoError(t, err)
	assert.True(t, past.Equals(mustState(t, `{"n":3,"from_snapshot":true}`)))
}

// gappyDeltaRepo serves a delta log with a hole in it
type gappyDeltaRepo struct {
	ports.DeltaRepository
	skip int
}

func (g *gappyDeltaRepo) GetRange(ctx context.Context, id valueobjects.CoordinateID, from, to int) ([]*entities.Delta, error) {
	all, err := g.DeltaRepository.GetRange(ctx, id, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]*entities.Delta, 0, len(all))
	for _, d := range all {
		if d.Position() == g.skip {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func TestReconstructAt_MissingDeltaIsChainGap(t *testing.T) {
	store := memory.NewStore()
	deltas := memory.NewDeltaRepository(store)
	id := appendStates(t, deltas, []string{`{"n":1}`, `{"n":2}`, `{"n":3}`})

	r := NewReconstructor(&gappyDeltaRepo{DeltaRepository: deltas, skip: 2}, memory.NewSnapshotRepository(store), zap.NewNop())

	_, err := r.ReconstructAt(context.Background(), id, 3)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeChainGap))
}

func TestReconstructAt_TruncatedLogIsChainGap(t *testing.T) {
	store := memory.NewStore()
	deltas := memory.NewDeltaRepository(store)
	r := NewReconstructor(deltas, memory.NewSnapshotRepository(store), zap.NewNop())

	id := appendStates(t, deltas, []string{`{"n":1}`})

	_, err := r.ReconstructAt(context.Background(), id, 5)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeChainGap))
}

func TestReconstructAt_BrokenParentLinkIsChainBroken(t *testing.T) {
	store := memory.NewStore()
	deltas := memory.NewDeltaRepository(store)
	r := NewReconstructor(deltas, memory.NewSnapshotRepository(store), zap.NewNop())

	id := appendStates(t, deltas, []string{`{"n":1}`, `{"n":2}`})

	// A delta whose parent link disagrees with its predecessor's chain hash
	// occupies the next position but does not extend the chain.
	ops, err := versioning.Compute(mustState(t, `{"n":2}`), mustState(t, `{"n":3}`))
	require.NoError(t, err)
	forged, err := entities.NewDelta(id, 3, ops, valueobjects.NewHash([]byte("forged-parent")), "", nil, false, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, deltas.Append(context.Background(), forged))

	_, err = r.ReconstructAt(context.Background(), id, 3)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeChainBroken))

	// Positions before the break still replay.
	state, err := r.ReconstructAt(context.Background(), id, 2)
	require.NoError(t, err)
	assert.True(t, state.Equals(mustState(t, `{"n":2}`)))
}

// recordingDeltaRepo remembers the bounds of every range read
type recordingDeltaRepo struct {
	ports.DeltaRepository
	from, to int
}

func (r *recordingDeltaRepo) GetRange(ctx context.Context, id valueobjects.CoordinateID, from, to int) ([]*entities.Delta, error) {
	r.from, r.to = from, to
	return r.DeltaRepository.GetRange(ctx, id, from, to)
}

func TestReconstructAt_ReplayBoundedBySnapshotInterval(t *testing.T) {
	store := memory.NewStore()
	deltas := memory.NewDeltaRepository(store)
	snapshots := memory.NewSnapshotRepository(store)

	const total = 300
	raws := make([]string, total)
	for i := range raws {
		raws[i] = fmt.Sprintf(`{"n":%d}`, i+1)
	}
	id := appendStates(t, deltas, raws)

	// Checkpoints at the cadence the store path writes them.
	for _, pos := range []int{128, 256} {
		snapshot, err := entities.NewSnapshot(id, pos, mustState(t, raws[pos-1]), time.Now().UTC())
		require.NoError(t, err)
		require.NoError(t, snapshots.Save(context.Background(), snapshot))
	}

	recording := &recordingDeltaRepo{DeltaRepository: deltas}
	r := NewReconstructor(recording, snapshots, zap.NewNop())

	state, err := r.ReconstructAt(context.Background(), id, total)
	require.NoError(t, err)
	assert.True(t, state.Equals(mustState(t, fmt.Sprintf(`{"n":%d}`, total))))

	// Replay started right after the newest checkpoint and never touched
	// more deltas than one snapshot interval covers.
	assert.Equal(t, 257, recording.from)
	assert.Equal(t, total, recording.to)
	assert.LessOrEqual(t, recording.to-recording.from+1, 128)

	// A target between checkpoints replays from the one before it.
	_, err = r.ReconstructAt(context.Background(), id, 200)
	require.NoError(t, err)
	assert.Equal(t, 129, recording.from)
	assert.Equal(t, 200, recording.to)
}
