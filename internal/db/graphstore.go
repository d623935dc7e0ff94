package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rawblock/empi-engine/internal/graph"
	"github.com/rawblock/empi-engine/pkg/models"
)

// EdgesForRecord implements graph.EdgeStore: every edge touching record_id
// on either side, regardless of is_valid (the recursor decides how to use
// validity; this layer just reports every touched edge).
func (s *Store) EdgesForRecord(ctx context.Context, recordID int64) ([]graph.Edge, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record_id_low, record_id_high, match_weight, is_valid FROM enterprise_match
		 WHERE record_id_low = $1 OR record_id_high = $1`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []graph.Edge
	for rows.Next() {
		var e graph.Edge
		if err := rows.Scan(&e.Low, &e.High, &e.Weight, &e.IsValid); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FindMatch implements graph.CursorStore.
func (s *Store) FindMatch(ctx context.Context, low, high int64) (int64, bool, error) {
	var etlID int64
	err := s.pool.QueryRow(ctx,
		`SELECT etl_id FROM enterprise_match WHERE record_id_low = $1 AND record_id_high = $2`,
		low, high,
	).Scan(&etlID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	return etlID, err == nil, err
}

// InsertMatch implements graph.CursorStore. ON CONFLICT DO NOTHING guards
// against a concurrent insert of the same ordered pair; InsertMatch then
// re-reads the row via FindMatch (resolveMatchID) and returns the existing
// etl_id in that case.
func (s *Store) InsertMatch(ctx context.Context, low, high int64, weight float64, transactionKey string, ts time.Time) (int64, error) {
	etlID, err := s.MintID(ctx, "system", "graph-cursor", ts)
	if err != nil {
		return 0, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO enterprise_match (etl_id, record_id_low, record_id_high, match_weight, is_valid, touched_by, touched_ts, transaction_key)
		 VALUES ($1,$2,$3,$4,true,$5,$6,$7)
		 ON CONFLICT (record_id_low, record_id_high) DO NOTHING`,
		etlID, low, high, weight, "system", ts, transactionKey,
	)
	if err != nil {
		return 0, err
	}
	return s.resolveMatchID(ctx, low, high, etlID)
}

// resolveMatchID re-reads the row after an insert: if the insert landed, its
// own etl_id is correct; if ON CONFLICT DO NOTHING suppressed it, the
// existing row's etl_id is used instead.
func (s *Store) resolveMatchID(ctx context.Context, low, high, attemptedID int64) (int64, error) {
	existingID, found, err := s.FindMatch(ctx, low, high)
	if err != nil {
		return 0, err
	}
	if found {
		return existingID, nil
	}
	return attemptedID, nil
}

// InvalidateMatch implements graph.CursorStore.
func (s *Store) InvalidateMatch(ctx context.Context, low, high int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE enterprise_match SET is_valid = false WHERE record_id_low = $1 AND record_id_high = $2`,
		low, high,
	)
	return err
}

// RevalidateEdgesFor flips is_valid back to true on every edge incident to
// recordID that is currently invalid — used by activate_demographic.
func (s *Store) RevalidateEdgesFor(ctx context.Context, recordID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE enterprise_match SET is_valid = true
		 WHERE (record_id_low = $1 OR record_id_high = $1) AND is_valid = false`,
		recordID,
	)
	return err
}

// InvalidateEdgesFor sets is_valid=false on every edge incident to
// recordID — used by deactivate_demographic.
func (s *Store) InvalidateEdgesFor(ctx context.Context, recordID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE enterprise_match SET is_valid = false WHERE record_id_low = $1 OR record_id_high = $1`,
		recordID,
	)
	return err
}

// DeleteAllInvalidEdges hard-deletes every invalid EnterpriseMatch row
// table-wide, the final step of deactivate_demographic. This mirrors the
// original's unscoped cleanup: any edge invalidated by any deactivation, not
// only the one just processed, is swept.
func (s *Store) DeleteAllInvalidEdges(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM enterprise_match WHERE is_valid = false`)
	return err
}

// FindMatchRow locates the ordered edge between low and high, returning its
// etl_id and weight together so affirm/deny can stamp the owning Process row
// and adjust the weight in one lookup. found=false (never an error) is the
// dberrors.EdgeNotFound signal the caller raises.
func (s *Store) FindMatchRow(ctx context.Context, low, high int64) (etlID int64, weight float64, found bool, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT etl_id, match_weight FROM enterprise_match WHERE record_id_low = $1 AND record_id_high = $2`,
		low, high,
	).Scan(&etlID, &weight)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, false, nil
	}
	return etlID, weight, err == nil, err
}

// SetMatchWeight updates an existing edge's weight and audit stamp —
// affirm/deny's +1/-1 adjustment.
func (s *Store) SetMatchWeight(ctx context.Context, low, high int64, weight float64, touchedBy, transactionKey string, ts time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE enterprise_match SET match_weight = $1, touched_by = $2, touched_ts = $3, transaction_key = $4
		 WHERE record_id_low = $5 AND record_id_high = $6`,
		weight, touchedBy, ts, transactionKey, low, high,
	)
	return err
}

// DeleteGroupsForComponent removes the record's own group row AND any group
// row whose enterprise_id equals record_id (§9 Open Question: both
// deletions are preserved so the component is fully reseeded).
func (s *Store) DeleteGroupsForComponent(ctx context.Context, recordID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM enterprise_group WHERE record_id = $1`, recordID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM enterprise_group WHERE enterprise_id = $1`, recordID)
	return err
}

// UpsertGroup implements graph.CursorStore: change-only-if-different, per
// §9's resolved Open Question (minimizes Bulletin noise).
func (s *Store) UpsertGroup(ctx context.Context, recordID, enterpriseID int64, transactionKey string, ts time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO enterprise_group (record_id, enterprise_id, touched_by, touched_ts, transaction_key)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (record_id) DO UPDATE
		   SET enterprise_id = excluded.enterprise_id,
		       touched_ts = excluded.touched_ts,
		       transaction_key = excluded.transaction_key
		 WHERE enterprise_group.enterprise_id != excluded.enterprise_id`,
		recordID, enterpriseID, "system", ts, transactionKey,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// InsertBulletin implements graph.CursorStore.
func (s *Store) InsertBulletin(ctx context.Context, batchID, procID, recordID, enterpriseID int64, ts time.Time) (int64, error) {
	etlID, err := s.MintID(ctx, "system", "graph-cursor", ts)
	if err != nil {
		return 0, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO bulletin (etl_id, batch_id, proc_id, record_id, enterprise_id, touched_ts)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		etlID, batchID, procID, recordID, enterpriseID, ts,
	)
	return etlID, err
}

// InsertActionLog appends a row to one of the simple (record_id-keyed)
// action-log tables: activate_log, deactivate_log, or delete_log.
func (s *Store) InsertActionLog(ctx context.Context, table string, log models.ActionLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+table+` (etl_id, record_id, transaction_key, touched_by, touched_ts)
		 VALUES ($1,$2,$3,$4,$5)`,
		log.EtlID, log.RecordID, log.TransactionKey, log.TouchedBy, log.TouchedTS,
	)
	return err
}

// InsertMatchActionLog appends to match_affirm_log or match_deny_log.
func (s *Store) InsertMatchActionLog(ctx context.Context, table string, log models.MatchActionLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+table+` (etl_id, record_id_low, record_id_high, transaction_key, touched_by, touched_ts)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		log.EtlID, log.RecordIDLow, log.RecordIDHigh, log.TransactionKey, log.TouchedBy, log.TouchedTS,
	)
	return err
}

// InsertDeleteActionLog appends to delete_action_log.
func (s *Store) InsertDeleteActionLog(ctx context.Context, log models.DeleteActionLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO delete_action_log (etl_id, batch_id, proc_id, action, transaction_key, touched_by, touched_ts)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		log.EtlID, log.BatchID, log.ProcID, log.Action, log.TransactionKey, log.TouchedBy, log.TouchedTS,
	)
	return err
}

// FindActivateLogRecordID and the Find*Log methods below look up a prior
// action-log row by the transaction_key that produced it, for delete_action's
// undo paths. The caller builds transactionKey from the target's batch_id and
// proc_id in "{batch_id}_{proc_id}" form; each method reads one log table.
func (s *Store) FindActivateLogRecordID(ctx context.Context, transactionKey string) (int64, bool, error) {
	return s.findRecordIDByTxKey(ctx, "activate_log", transactionKey)
}

func (s *Store) FindDeleteLogRecordID(ctx context.Context, transactionKey string) (int64, bool, error) {
	return s.findRecordIDByTxKey(ctx, "delete_log", transactionKey)
}

func (s *Store) FindMatchAffirmLog(ctx context.Context, transactionKey string) (low, high int64, found bool, err error) {
	return s.findPairByTxKey(ctx, "match_affirm_log", transactionKey)
}

func (s *Store) FindMatchDenyLog(ctx context.Context, transactionKey string) (low, high int64, found bool, err error) {
	return s.findPairByTxKey(ctx, "match_deny_log", transactionKey)
}

func (s *Store) findRecordIDByTxKey(ctx context.Context, table, transactionKey string) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT record_id FROM `+table+` WHERE transaction_key = $1`, transactionKey).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	return id, err == nil, err
}

func (s *Store) findPairByTxKey(ctx context.Context, table, transactionKey string) (int64, int64, bool, error) {
	var low, high int64
	err := s.pool.QueryRow(ctx,
		`SELECT record_id_low, record_id_high FROM `+table+` WHERE transaction_key = $1`, transactionKey,
	).Scan(&low, &high)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, false, nil
	}
	return low, high, err == nil, err
}
