package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/rawblock/empi-engine/internal/audit"
	"github.com/rawblock/empi-engine/internal/graph"
	"github.com/rawblock/empi-engine/pkg/models"
)

// DeactivateDemographic implements deactivate_demographic({record_id}):
// captures the record's connected component before touching anything,
// invalidates it out of the graph, deletes its now-stale Group rows (both
// as a member and as a former enterprise_id), then re-settles every other
// record that had been in its pre-deactivation component around new minima.
func (p *Processor) DeactivateDemographic(ctx context.Context, auditor *audit.Auditor, recordID int64) error {
	procID, transactionKey, err := p.stamp(ctx, auditor, 0, recordID)
	if err != nil {
		return fmt.Errorf("stamp: %w", err)
	}
	now := time.Now()

	preComponent, err := graph.Expand(ctx, p.store, recordID, p.mode.Threshold)
	if err != nil {
		return fmt.Errorf("expand pre-deactivation component: %w", err)
	}

	if err := p.store.SetDemographicActive(ctx, recordID, false, auditor.User, transactionKey, now); err != nil {
		return fmt.Errorf("set inactive: %w", err)
	}
	if err := p.store.InvalidateEdgesFor(ctx, recordID); err != nil {
		return fmt.Errorf("invalidate edges: %w", err)
	}
	if err := p.store.DeleteGroupsForComponent(ctx, recordID); err != nil {
		return fmt.Errorf("delete groups: %w", err)
	}

	done := map[int64]struct{}{}
	seeds := make([]int64, 0, len(preComponent.RecordIDs))
	for id := range preComponent.RecordIDs {
		seeds = append(seeds, id)
	}
	if err := p.recomputeNeighborhoods(ctx, seeds, done, auditor.BatchID, procID, transactionKey, now); err != nil {
		return fmt.Errorf("recompute neighborhood: %w", err)
	}

	if err := p.store.SetProcessRecordID(ctx, procID, recordID); err != nil {
		return fmt.Errorf("set process record id: %w", err)
	}
	if err := p.store.DeleteAllInvalidEdges(ctx); err != nil {
		return fmt.Errorf("sweep invalid edges: %w", err)
	}

	etlID, err := auditor.Minter().Mint(ctx)
	if err != nil {
		return fmt.Errorf("mint deactivate log id: %w", err)
	}
	if err := p.store.InsertActionLog(ctx, deactivateLogTable, models.ActionLog{
		EtlID: etlID, RecordID: recordID, TransactionKey: transactionKey, TouchedBy: auditor.User, TouchedTS: now,
	}); err != nil {
		return fmt.Errorf("insert deactivate log: %w", err)
	}

	return p.finish(ctx, auditor.BatchID, procID, models.ProcDeactivated)
}

// DeleteDemographic implements delete_demographic({record_id}): deactivate,
// archive, then hard-delete the Demographic row.
func (p *Processor) DeleteDemographic(ctx context.Context, auditor *audit.Auditor, recordID int64) error {
	procID, transactionKey, err := p.stamp(ctx, auditor, 0, recordID)
	if err != nil {
		return fmt.Errorf("stamp: %w", err)
	}

	if err := p.DeactivateDemographic(ctx, auditor, recordID); err != nil {
		return fmt.Errorf("deactivate before delete: %w", err)
	}
	if _, err := p.ArchiveDemographic(ctx, auditor, recordID); err != nil {
		return fmt.Errorf("archive before delete: %w", err)
	}
	if err := p.store.DeleteDemographic(ctx, recordID); err != nil {
		return fmt.Errorf("delete demographic: %w", err)
	}

	if err := p.store.SetProcessRecordID(ctx, procID, recordID); err != nil {
		return fmt.Errorf("set process record id: %w", err)
	}

	etlID, err := auditor.Minter().Mint(ctx)
	if err != nil {
		return fmt.Errorf("mint delete log id: %w", err)
	}
	if err := p.store.InsertActionLog(ctx, deleteLogTable, models.ActionLog{
		EtlID: etlID, RecordID: recordID, TransactionKey: transactionKey, TouchedBy: auditor.User, TouchedTS: time.Now(),
	}); err != nil {
		return fmt.Errorf("insert delete log: %w", err)
	}

	return p.finish(ctx, auditor.BatchID, procID, models.ProcDeleted("DEMOGRAPHIC"))
}
