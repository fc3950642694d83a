package versioning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bms-backend/domain/core/valueobjects"
)

type testEntry struct {
	position  int
	ops       []Op
	deltaHash valueobjects.Hash
	chainHash valueobjects.Hash
}

func (e testEntry) Position() int                { return e.position }
func (e testEntry) Ops() []Op                    { return e.ops }
func (e testEntry) DeltaHash() valueobjects.Hash { return e.deltaHash }
func (e testEntry) ChainHash() valueobjects.Hash { return e.chainHash }

// buildChain links n single-op deltas the way the store path does
func buildChain(t *testing.T, n int) []ChainEntry {
	t.Helper()
	entries := make([]ChainEntry, 0, n)
	parent := valueobjects.EmptyHash
	for i := 1; i <= n; i++ {
		ops := []Op{NewAddOp("/k", valueobjects.Int(int64(i)))}
		deltaHash, err := HashOps(ops)
		require.NoError(t, err)
		chainHash := ChainLink(parent, deltaHash)
		entries = append(entries, testEntry{
			position:  i,
			ops:       ops,
			deltaHash: deltaHash,
			chainHash: chainHash,
		})
		parent = chainHash
	}
	return entries
}

func TestChainLink_GenesisUsesEmptyParent(t *testing.T) {
	ops := []Op{NewAddOp("/a", valueobjects.Int(1))}
	deltaHash, err := HashOps(ops)
	require.NoError(t, err)

	genesis := ChainLink(valueobjects.EmptyHash, deltaHash)
	// The sentinel contributes zero bytes, so the genesis link is the
	// digest of the delta hash alone.
	assert.True(t, genesis.Equals(valueobjects.NewHash(deltaHash.Bytes())))
	assert.False(t, genesis.Equals(deltaHash))
}

func TestHashOps_SensitiveToOpOrder(t *testing.T) {
	a := []Op{NewAddOp("/a", valueobjects.Int(1)), NewRemoveOp("/b")}
	b := []Op{NewRemoveOp("/b"), NewAddOp("/a", valueobjects.Int(1))}

	ha, err := HashOps(a)
	require.NoError(t, err)
	hb, err := HashOps(b)
	require.NoError(t, err)
	assert.False(t, ha.Equals(hb))
}

func TestVerifyChain_Intact(t *testing.T) {
	entries := buildChain(t, 5)

	report, err := VerifyChain(entries)
	require.NoError(t, err)
	assert.True(t, report.ChainValid)
	assert.Equal(t, 5, report.TotalDeltas)
	assert.Equal(t, 5, report.VerifiedDeltas)
	assert.Nil(t, report.FirstBreak)
}

func TestVerifyChain_Empty(t *testing.T) {
	report, err := VerifyChain(nil)
	require.NoError(t, err)
	assert.True(t, report.ChainValid)
	assert.Equal(t, 0, report.TotalDeltas)
}

func TestVerifyChain_TamperedOps(t *testing.T) {
	entries := buildChain(t, 5)
	tampered := entries[2].(testEntry)
	tampered.ops = []Op{NewAddOp("/k", valueobjects.Int(999))}
	entries[2] = tampered

	report, err := VerifyChain(entries)
	require.NoError(t, err)
	assert.False(t, report.ChainValid)
	assert.Equal(t, 2, report.VerifiedDeltas)
	require.NotNil(t, report.FirstBreak)
	assert.Equal(t, 3, report.FirstBreak.Position)
	assert.Equal(t, BreakDeltaHash, report.FirstBreak.Kind)
}

func TestVerifyChain_TamperedChainHash(t *testing.T) {
	entries := buildChain(t, 4)
	tampered := entries[1].(testEntry)
	tampered.chainHash = valueobjects.NewHash([]byte("forged"))
	entries[1] = tampered

	report, err := VerifyChain(entries)
	require.NoError(t, err)
	assert.False(t, report.ChainValid)
	assert.Equal(t, 1, report.VerifiedDeltas)
	require.NotNil(t, report.FirstBreak)
	assert.Equal(t, 2, report.FirstBreak.Position)
	assert.Equal(t, BreakChainHash, report.FirstBreak.Kind)
}

func TestVerifyChain_BreakInvalidatesSuffix(t *testing.T) {
	// A tampered link at position 2 must fail even though positions 3+
	// were computed from the tampered value and are self-consistent.
	ops := []Op{NewAddOp("/k", valueobjects.Int(1))}
	deltaHash, err := HashOps(ops)
	require.NoError(t, err)

	forgedParent := valueobjects.NewHash([]byte("forged-parent"))
	entries := []ChainEntry{
		testEntry{position: 1, ops: ops, deltaHash: deltaHash, chainHash: ChainLink(valueobjects.EmptyHash, deltaHash)},
		testEntry{position: 2, ops: ops, deltaHash: deltaHash, chainHash: ChainLink(forgedParent, deltaHash)},
		testEntry{position: 3, ops: ops, deltaHash: deltaHash, chainHash: ChainLink(ChainLink(forgedParent, deltaHash), deltaHash)},
	}

	report, err := VerifyChain(entries)
	require.NoError(t, err)
	assert.False(t, report.ChainValid)
	require.NotNil(t, report.FirstBreak)
	assert.Equal(t, 2, report.FirstBreak.Position)
}

func TestVerifyChain_SequenceGap(t *testing.T) {
	entries := buildChain(t, 4)
	// Drop position 2.
	gapped := []ChainEntry{entries[0], entries[2], entries[3]}

	report, err := VerifyChain(gapped)
	require.NoError(t, err)
	assert.False(t, report.ChainValid)
	require.NotNil(t, report.FirstBreak)
	assert.Equal(t, 2, report.FirstBreak.Position)
	assert.Equal(t, BreakSequence, report.FirstBreak.Kind)
}

func TestSnapshotPolicy(t *testing.T) {
	policy := NewSnapshotPolicy(nil)

	assert.False(t, policy.ShouldSnapshot(1, false))
	assert.False(t, policy.ShouldSnapshot(127, false))
	assert.True(t, policy.ShouldSnapshot(128, false))
	assert.True(t, policy.ShouldSnapshot(256, false))
	assert.True(t, policy.ShouldSnapshot(5, true), "oversize forces a checkpoint")
}

func TestSnapshotPolicy_Oversize(t *testing.T) {
	policy := NewSnapshotPolicy(nil)

	small := []Op{NewAddOp("/a", valueobjects.Int(1))}
	assert.False(t, policy.IsOversize(small))

	many := make([]Op, 64)
	for i := range many {
		many[i] = NewAddOp("/a", valueobjects.Int(int64(i)))
	}
	assert.True(t, policy.IsOversize(many))
}
