package versioning

import (
	"bms-backend/domain/core/valueobjects"
)

// HashOps computes the delta hash: the digest of the canonical op bytes
func HashOps(ops []Op) (valueobjects.Hash, error) {
	b, err := OpsCanonicalBytes(ops)
	if err != nil {
		return valueobjects.Hash{}, err
	}
	return valueobjects.NewHash(b), nil
}

// ChainLink derives a delta's chain hash from its parent's chain hash. The
// genesis delta links against the empty sentinel, which contributes zero
// bytes, so every position uses the same derivation.
func ChainLink(parent valueobjects.Hash, deltaHash valueobjects.Hash) valueobjects.Hash {
	return valueobjects.NewHashConcat(parent.Bytes(), deltaHash.Bytes())
}

// ChainEntry is the read surface verification needs from a stored delta
type ChainEntry interface {
	Position() int
	Ops() []Op
	DeltaHash() valueobjects.Hash
	ChainHash() valueobjects.Hash
}

// BreakKind classifies what failed at the first broken position
type BreakKind string

const (
	// BreakDeltaHash means the stored ops no longer hash to the stored delta hash
	BreakDeltaHash BreakKind = "delta_hash_mismatch"
	// BreakChainHash means the stored chain hash does not match the parent link
	BreakChainHash BreakKind = "chain_hash_mismatch"
	// BreakSequence means a position is missing or out of order
	BreakSequence BreakKind = "sequence_gap"
)

// ChainBreak pinpoints the first verification failure
type ChainBreak struct {
	Position int               `json:"position"`
	Kind     BreakKind         `json:"kind"`
	Expected valueobjects.Hash `json:"expected"`
	Actual   valueobjects.Hash `json:"actual"`
}

// ChainReport is the outcome of verifying one lineage from genesis. A broken
// chain is a finding, not an error: the report carries the first break and
// how far verification got.
type ChainReport struct {
	ChainValid     bool        `json:"chain_valid"`
	TotalDeltas    int         `json:"total_deltas"`
	VerifiedDeltas int         `json:"verified_deltas"`
	FirstBreak     *ChainBreak `json:"first_break,omitempty"`
}

// VerifyChain replays entries from genesis, recomputing each delta hash from
// its stored ops and each chain hash from the recomputed parent link, and
// comparing both against what was stored. Entries must be the full sequence
// starting at position 1; verification stops at the first mismatch.
func VerifyChain(entries []ChainEntry) (ChainReport, error) {
	report := ChainReport{ChainValid: true, TotalDeltas: len(entries)}

	parent := valueobjects.EmptyHash
	for i, entry := range entries {
		expectedPos := i + 1
		if entry.Position() != expectedPos {
			report.ChainValid = false
			report.FirstBreak = &ChainBreak{
				Position: expectedPos,
				Kind:     BreakSequence,
			}
			return report, nil
		}

		deltaHash, err := HashOps(entry.Ops())
		if err != nil {
			return ChainReport{}, err
		}
		if !deltaHash.Equals(entry.DeltaHash()) {
			report.ChainValid = false
			report.FirstBreak = &ChainBreak{
				Position: entry.Position(),
				Kind:     BreakDeltaHash,
				Expected: deltaHash,
				Actual:   entry.DeltaHash(),
			}
			return report, nil
		}

		chainHash := ChainLink(parent, deltaHash)
		if !chainHash.Equals(entry.ChainHash()) {
			report.ChainValid = false
			report.FirstBreak = &ChainBreak{
				Position: entry.Position(),
				Kind:     BreakChainHash,
				Expected: chainHash,
				Actual:   entry.ChainHash(),
			}
			return report, nil
		}

		parent = chainHash
		report.VerifiedDeltas++
	}

	return report, nil
}
