package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/rawblock/empi-engine/internal/audit"
	"github.com/rawblock/empi-engine/internal/dberrors"
	"github.com/rawblock/empi-engine/pkg/models"
)

// DeleteAction implements delete_action({batch_id, proc_id, action}): undoes
// a prior delete_demographic, match_affirm, or match_deny identified by the
// batch/proc pair that produced it. "delete" restores the archived
// demographic by re-ingesting it as a brand-new record (through the normal
// demographic() path, so it mints a fresh record_id and re-enters the
// graph); "affirm"/"deny" apply the opposite adjustment to the edge weight
// they originally changed.
func (p *Processor) DeleteAction(ctx context.Context, auditor *audit.Auditor, payloadBatchID, payloadProcID int64, action string) error {
	procID, transactionKey, err := p.stamp(ctx, auditor, 0, 0)
	if err != nil {
		return fmt.Errorf("stamp: %w", err)
	}
	now := time.Now()
	targetKey := fmt.Sprintf("%d_%d", payloadBatchID, payloadProcID)

	var recordID int64
	switch action {
	case "delete":
		recordID, err = p.undoDelete(ctx, auditor, targetKey)
	case "affirm":
		err = p.undoAffirm(ctx, auditor, targetKey)
	case "deny":
		err = p.undoDeny(ctx, auditor, targetKey)
	default:
		err = dberrors.New(dberrors.ValidationFailure, fmt.Sprintf("unknown delete_action action %q", action))
	}
	if err != nil {
		return err
	}

	if recordID != 0 {
		if err := p.store.SetProcessRecordID(ctx, procID, recordID); err != nil {
			return fmt.Errorf("set process record id: %w", err)
		}
	}

	etlID, err := auditor.Minter().Mint(ctx)
	if err != nil {
		return fmt.Errorf("mint delete_action log id: %w", err)
	}
	if err := p.store.InsertDeleteActionLog(ctx, models.DeleteActionLog{
		EtlID: etlID, BatchID: payloadBatchID, ProcID: payloadProcID, Action: action,
		TransactionKey: transactionKey, TouchedBy: auditor.User, TouchedTS: now,
	}); err != nil {
		return fmt.Errorf("insert delete_action log: %w", err)
	}

	return p.finish(ctx, auditor.BatchID, procID, models.ProcDeleted(action))
}

// undoDelete restores the archived demographic named by a delete_log row as
// a new record, then drops the archive row.
func (p *Processor) undoDelete(ctx context.Context, auditor *audit.Auditor, targetKey string) (int64, error) {
	recordID, found, err := p.store.FindDeleteLogRecordID(ctx, targetKey)
	if err != nil {
		return 0, fmt.Errorf("find delete log: %w", err)
	}
	if !found {
		return 0, dberrors.New(dberrors.ValidationFailure, "no delete_log row for transaction key "+targetKey)
	}

	archive, found, err := p.store.GetArchive(ctx, recordID)
	if err != nil {
		return 0, fmt.Errorf("load archive: %w", err)
	}
	if !found {
		return 0, dberrors.New(dberrors.ValidationFailure, fmt.Sprintf("no archive row for record %d", recordID))
	}

	restored := map[string]interface{}{
		"given_name":             archive.GivenName,
		"middle_name":            archive.MiddleName,
		"family_name":            archive.FamilyName,
		"gender":                 archive.Gender,
		"address_1":              archive.Address1,
		"address_2":              archive.Address2,
		"city":                   archive.City,
		"state":                  archive.State,
		"postal_code":            archive.PostalCode,
		"social_security_number": archive.SSN,
		"organization_key":       archive.Organization,
		"system_key":             archive.System,
		"system_id":              archive.SystemID,
	}
	if archive.NameDay != nil {
		restored["name_day"] = *archive.NameDay
	}

	metrics, err := p.Demographic(ctx, auditor, IngestPayload{Demographics: []map[string]interface{}{restored}})
	if err != nil {
		return 0, fmt.Errorf("re-ingest archived record: %w", err)
	}
	if err := p.store.DeleteArchive(ctx, archive.ArchiveID); err != nil {
		return 0, fmt.Errorf("delete archive: %w", err)
	}

	var newRecordID int64
	if len(metrics.AffectedRecords) > 0 {
		newRecordID = metrics.AffectedRecords[0].RecordID
	}
	return newRecordID, nil
}

func (p *Processor) undoAffirm(ctx context.Context, auditor *audit.Auditor, targetKey string) error {
	low, high, found, err := p.store.FindMatchAffirmLog(ctx, targetKey)
	if err != nil {
		return fmt.Errorf("find affirm log: %w", err)
	}
	if !found {
		return dberrors.New(dberrors.ValidationFailure, "no match_affirm_log row for transaction key "+targetKey)
	}
	return p.DenyMatching(ctx, auditor, low, high)
}

func (p *Processor) undoDeny(ctx context.Context, auditor *audit.Auditor, targetKey string) error {
	low, high, found, err := p.store.FindMatchDenyLog(ctx, targetKey)
	if err != nil {
		return fmt.Errorf("find deny log: %w", err)
	}
	if !found {
		return dberrors.New(dberrors.ValidationFailure, "no match_deny_log row for transaction key "+targetKey)
	}
	return p.AffirmMatching(ctx, auditor, low, high)
}
