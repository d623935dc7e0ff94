package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/rawblock/empi-engine/internal/audit"
	"github.com/rawblock/empi-engine/internal/dberrors"
	"github.com/rawblock/empi-engine/internal/engine"
	"github.com/rawblock/empi-engine/internal/graph"
	"github.com/rawblock/empi-engine/pkg/models"
)

// requiredDemographicFields are the keys a demographic row must carry to be
// ingestible; absence of any of them is a MissingField error for that row.
var requiredDemographicFields = []string{"given_name", "family_name"}

// IngestPayload is the demographic operation's POST body: one or more raw
// demographic rows plus any telecoms attached to each.
type IngestPayload struct {
	Demographics []map[string]interface{}
}

// AffectedRecord names one successfully posted row.
type AffectedRecord struct {
	BatchID        int64
	ProcID         int64
	RecordID       int64
	TransactionKey string
}

// IngestMetrics summarizes one demographic() call across every row in the
// payload.
type IngestMetrics struct {
	AffectedRecords []AffectedRecord
	ErrorCount      int
	ErrorRows       []int
	ProcIDs         []int64
	PendingCount    int
	RecordCount     int
	SkippedCount    int
	TelecomsCount   int
}

func getString(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func hasKey(m map[string]interface{}, key string) bool {
	v, ok := m[key]
	return ok && v != nil
}

// Demographic implements demographic (ingest): parse each row, mint a
// record_id, compute derived keys, insert, and wire the new record into the
// graph via activate_demographic. A row lacking a required field is counted
// as an error and skipped; a uq_hash collision is counted as skipped (not an
// error) — both leave the batch running.
func (p *Processor) Demographic(ctx context.Context, auditor *audit.Auditor, payload IngestPayload) (IngestMetrics, error) {
	metrics := IngestMetrics{}

	for i, raw := range payload.Demographics {
		rowIndex := i + 1
		foreignRecordID := int64(0)
		if fid, ok := raw["foreign_record_id"].(int64); ok {
			foreignRecordID = fid
		} else if ffid, ok := raw["foreign_record_id"].(float64); ok {
			foreignRecordID = int64(ffid)
		}

		procID, transactionKey, err := p.stamp(ctx, auditor, rowIndex, foreignRecordID)
		if err != nil {
			return metrics, fmt.Errorf("stamp row %d: %w", rowIndex, err)
		}
		metrics.ProcIDs = append(metrics.ProcIDs, procID)

		for _, field := range requiredDemographicFields {
			if !hasKey(raw, field) {
				metrics.ErrorCount++
				metrics.ErrorRows = append(metrics.ErrorRows, rowIndex)
				raw = nil
				break
			}
		}
		if raw == nil {
			continue
		}

		nameDay, err := parseNameDay(raw["name_day"])
		if err != nil {
			metrics.ErrorCount++
			metrics.ErrorRows = append(metrics.ErrorRows, rowIndex)
			continue
		}

		recordID, err := auditor.Minter().Mint(ctx)
		if err != nil {
			return metrics, fmt.Errorf("mint record id: %w", err)
		}

		d := models.Demographic{
			RecordID:       recordID,
			GivenName:      getString(raw, "given_name"),
			MiddleName:     getString(raw, "middle_name"),
			FamilyName:     getString(raw, "family_name"),
			NameDay:        nameDay,
			Gender:         getString(raw, "gender"),
			Address1:       getString(raw, "address_1"),
			Address2:       getString(raw, "address_2"),
			City:           getString(raw, "city"),
			State:          getString(raw, "state"),
			PostalCode:     getString(raw, "postal_code"),
			SSN:            getString(raw, "social_security_number"),
			Organization:   getString(raw, "organization_key"),
			System:         getString(raw, "system_key"),
			SystemID:       getString(raw, "system_id"),
			IsActive:       false,
			TransactionKey: transactionKey,
		}
		applyRecordMetadata(&d, auditor.User, time.Now())
		metrics.RecordCount++

		if err := p.store.InsertDemographic(ctx, d); err != nil {
			if dberrors.Is(err, dberrors.DuplicateRecord) {
				metrics.SkippedCount++
				continue
			}
			return metrics, fmt.Errorf("insert demographic row %d: %w", rowIndex, err)
		}

		if telecoms, ok := raw["telecoms"].([]interface{}); ok {
			for _, tc := range telecoms {
				tm, ok := tc.(map[string]interface{})
				if !ok {
					continue
				}
				telecomID, err := auditor.Minter().Mint(ctx)
				if err != nil {
					return metrics, fmt.Errorf("mint telecom id: %w", err)
				}
				t := models.Telecom{
					TelecomID:      telecomID,
					RecordID:       recordID,
					TelecomSystem:  getString(tm, "telecom_system"),
					Value:          getString(tm, "value"),
					Use:            getString(tm, "use"),
					TouchedBy:      auditor.User,
					TouchedTS:      time.Now(),
					TransactionKey: transactionKey,
				}
				if err := p.store.InsertTelecom(ctx, t); err != nil {
					return metrics, fmt.Errorf("insert telecom for row %d: %w", rowIndex, err)
				}
				metrics.TelecomsCount++
			}
		}

		metrics.AffectedRecords = append(metrics.AffectedRecords, AffectedRecord{
			BatchID: auditor.BatchID, ProcID: procID, RecordID: recordID, TransactionKey: transactionKey,
		})
		metrics.PendingCount++

		if err := p.store.SetProcessRecordID(ctx, procID, recordID); err != nil {
			return metrics, fmt.Errorf("set process record id: %w", err)
		}
		if err := p.store.SetProcessState(ctx, procID, models.ProcPosted); err != nil {
			return metrics, fmt.Errorf("set process posted: %w", err)
		}
		if err := p.ActivateDemographic(ctx, auditor, recordID); err != nil {
			return metrics, fmt.Errorf("activate row %d: %w", rowIndex, err)
		}
	}

	return metrics, nil
}

// ActivateDemographic implements activate_demographic({record_id}): marks
// the record active, revalidates any previously invalidated incident edges,
// scores it against coarse candidates, and feeds the resulting matches
// straight to the cursor (not through the recursor — the record's full
// component settles lazily as later activity touches it).
func (p *Processor) ActivateDemographic(ctx context.Context, auditor *audit.Auditor, recordID int64) error {
	procID, transactionKey, err := p.stamp(ctx, auditor, 0, recordID)
	if err != nil {
		return fmt.Errorf("stamp: %w", err)
	}
	now := time.Now()

	if err := p.store.SetDemographicActive(ctx, recordID, true, auditor.User, transactionKey, now); err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if err := p.store.RevalidateEdgesFor(ctx, recordID); err != nil {
		return fmt.Errorf("revalidate edges: %w", err)
	}
	if err := p.store.SetProcessRecordID(ctx, procID, recordID); err != nil {
		return fmt.Errorf("set process record id: %w", err)
	}

	record, found, err := p.store.GetDemographic(ctx, recordID)
	if err != nil {
		return fmt.Errorf("load demographic: %w", err)
	}
	if !found {
		return dberrors.New(dberrors.InternalError, fmt.Sprintf("record %d vanished during activation", recordID))
	}

	fineMatches, _, err := engine.ComputeAllMatches(ctx, p.store, record, p.mode)
	if err != nil {
		return fmt.Errorf("compute matches: %w", err)
	}
	triples := make([]graph.Triple, 0, len(fineMatches))
	for _, fm := range fineMatches {
		triples = append(triples, graph.Triple{Low: fm.RecordAID, High: fm.RecordBID, Weight: fm.Score})
	}
	if err := p.runCursor(ctx, triples, auditor.BatchID, procID, transactionKey, now); err != nil {
		return fmt.Errorf("run cursor: %w", err)
	}

	etlID, err := auditor.Minter().Mint(ctx)
	if err != nil {
		return fmt.Errorf("mint activate log id: %w", err)
	}
	if err := p.store.InsertActionLog(ctx, activateLogTable, models.ActionLog{
		EtlID: etlID, RecordID: recordID, TransactionKey: transactionKey, TouchedBy: auditor.User, TouchedTS: now,
	}); err != nil {
		return fmt.Errorf("insert activate log: %w", err)
	}

	return p.finish(ctx, auditor.BatchID, procID, models.ProcActivated)
}

// ArchiveDemographic implements archive_demographic(record_id): snapshots
// the current Demographic row, preserving its prior transaction_key as
// archive_transaction_key.
func (p *Processor) ArchiveDemographic(ctx context.Context, auditor *audit.Auditor, recordID int64) (int64, error) {
	procID, transactionKey, err := p.stamp(ctx, auditor, 0, recordID)
	if err != nil {
		return 0, fmt.Errorf("stamp: %w", err)
	}
	now := time.Now()

	record, found, err := p.store.GetDemographic(ctx, recordID)
	if err != nil {
		return 0, fmt.Errorf("load demographic: %w", err)
	}
	if !found {
		return 0, dberrors.New(dberrors.InternalError, fmt.Sprintf("record %d not found for archive", recordID))
	}

	archiveID, err := auditor.Minter().Mint(ctx)
	if err != nil {
		return 0, fmt.Errorf("mint archive id: %w", err)
	}
	archive := models.DemographicArchive{
		ArchiveID: archiveID, RecordID: record.RecordID, GivenName: record.GivenName,
		MiddleName: record.MiddleName, FamilyName: record.FamilyName, NameDay: record.NameDay,
		Gender: record.Gender, Address1: record.Address1, Address2: record.Address2, City: record.City,
		State: record.State, PostalCode: record.PostalCode, SSN: record.SSN, Organization: record.Organization,
		System: record.System, SystemID: record.SystemID, UQHash: record.UQHash, CompositeKey: record.CompositeKey,
		CompositeName: record.CompositeName, CompositeNameDayPostal: record.CompositeNameDayPostal,
		ArchiveTransactionKey: record.TransactionKey, TransactionKey: transactionKey,
		TouchedBy: auditor.User, TouchedTS: now,
	}
	if err := p.store.InsertArchive(ctx, archive); err != nil {
		return 0, fmt.Errorf("insert archive: %w", err)
	}
	if err := p.store.SetProcessRecordID(ctx, procID, archiveID); err != nil {
		return 0, fmt.Errorf("set process record id: %w", err)
	}
	if err := p.finish(ctx, auditor.BatchID, procID, models.ProcArchived); err != nil {
		return 0, err
	}
	return archiveID, nil
}
