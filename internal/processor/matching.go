package processor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rawblock/empi-engine/internal/audit"
	"github.com/rawblock/empi-engine/internal/graph"
	"github.com/rawblock/empi-engine/pkg/models"
)

// AffirmMatching implements affirm_matching({record_id_low, record_id_high}):
// +1 to the edge's weight, then re-settles both endpoints' components. A
// pair with no existing edge is dberrors.EdgeNotFound — the mandated fix for
// the original's unchecked nil dereference.
func (p *Processor) AffirmMatching(ctx context.Context, auditor *audit.Auditor, recordIDLow, recordIDHigh int64) error {
	return p.adjustMatching(ctx, auditor, recordIDLow, recordIDHigh, +1, matchAffirmLogTable, models.ProcAffirmed)
}

// DenyMatching implements deny_matching({record_id_low, record_id_high}):
// -1 to the edge's weight, then re-settles both endpoints' components.
func (p *Processor) DenyMatching(ctx context.Context, auditor *audit.Auditor, recordIDLow, recordIDHigh int64) error {
	return p.adjustMatching(ctx, auditor, recordIDLow, recordIDHigh, -1, matchDenyLogTable, models.ProcDenied)
}

func (p *Processor) adjustMatching(ctx context.Context, auditor *audit.Auditor, recordIDLow, recordIDHigh int64, delta float64, logTable, terminalState string) error {
	low, high := orderedPair(recordIDLow, recordIDHigh)

	procID, transactionKey, err := p.stamp(ctx, auditor, 0, 0)
	if err != nil {
		return fmt.Errorf("stamp: %w", err)
	}
	now := time.Now()

	etlID, weight, found, err := p.store.FindMatchRow(ctx, low, high)
	if err != nil {
		return fmt.Errorf("find match: %w", err)
	}
	if !found {
		return edgeNotFound(low, high)
	}

	// Rounded so an affirm followed by a deny restores the stored weight
	// exactly; plain float addition leaves 0.3+1-1 at 0.30000000000000004.
	newWeight := math.Round((weight+delta)*1e10) / 1e10
	if err := p.store.SetMatchWeight(ctx, low, high, newWeight, auditor.User, transactionKey, now); err != nil {
		return fmt.Errorf("set match weight: %w", err)
	}
	if err := p.store.SetProcessRecordID(ctx, procID, etlID); err != nil {
		return fmt.Errorf("set process record id: %w", err)
	}

	done := map[int64]struct{}{}
	for _, seed := range []int64{low, high} {
		component, err := graph.Expand(ctx, p.store, seed, p.mode.Threshold)
		if err != nil {
			return fmt.Errorf("expand component for %d: %w", seed, err)
		}
		members := make([]int64, 0, len(component.RecordIDs))
		for id := range component.RecordIDs {
			members = append(members, id)
		}
		if err := p.recomputeNeighborhoods(ctx, members, done, auditor.BatchID, procID, transactionKey, now); err != nil {
			return fmt.Errorf("recompute neighborhoods: %w", err)
		}
	}

	logEtlID, err := auditor.Minter().Mint(ctx)
	if err != nil {
		return fmt.Errorf("mint match action log id: %w", err)
	}
	if err := p.store.InsertMatchActionLog(ctx, logTable, models.MatchActionLog{
		EtlID: logEtlID, RecordIDLow: low, RecordIDHigh: high, TransactionKey: transactionKey,
		TouchedBy: auditor.User, TouchedTS: now,
	}); err != nil {
		return fmt.Errorf("insert match action log: %w", err)
	}

	return p.finish(ctx, auditor.BatchID, procID, terminalState)
}
