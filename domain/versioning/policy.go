package versioning

import (
	"bms-backend/domain/config"
)

// SnapshotPolicy decides when a lineage earns a checkpoint
type SnapshotPolicy struct {
	cfg *config.DomainConfig
}

// NewSnapshotPolicy builds a policy from domain configuration
func NewSnapshotPolicy(cfg *config.DomainConfig) *SnapshotPolicy {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &SnapshotPolicy{cfg: cfg}
}

// IsOversize flags a delta large enough to warrant an early checkpoint,
// either by op count or by serialized size.
func (p *SnapshotPolicy) IsOversize(ops []Op) bool {
	if len(ops) >= p.cfg.OversizeDeltaOps {
		return true
	}
	b, err := OpsCanonicalBytes(ops)
	if err != nil {
		// Unserializable ops never reach storage, so size is moot here.
		return false
	}
	return len(b) >= p.cfg.OversizeDeltaBytes
}

// ShouldSnapshot reports whether a checkpoint is due after committing the
// delta at position. Cadence is every SnapshotInterval deltas; an oversize
// delta forces one immediately so replay never crosses it twice.
func (p *SnapshotPolicy) ShouldSnapshot(position int, oversize bool) bool {
	if oversize {
		return true
	}
	if p.cfg.SnapshotInterval <= 0 {
		return false
	}
	return position%p.cfg.SnapshotInterval == 0
}
