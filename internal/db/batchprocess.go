package db

import (
	"context"
	"time"

	"github.com/rawblock/empi-engine/pkg/models"
)

// InsertBatch implements audit.Store.
func (s *Store) InsertBatch(ctx context.Context, batchID int64, action, user string, ts time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO batch (batch_id, state, "user", action, created_ts) VALUES ($1, $2, $3, $4, $5)`,
		batchID, models.BatchStarting, user, action, ts,
	)
	return err
}

// InsertProcess implements audit.Store.
func (s *Store) InsertProcess(ctx context.Context, proc models.Process) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO process (proc_id, batch_id, row_index, proc_record_id, state, transaction_key, created_ts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		proc.ProcID, proc.BatchID, proc.RowIndex, proc.ProcRecordID, proc.State, proc.TransactionKey, proc.CreatedTS,
	)
	return err
}

// SetBatchState implements audit.Store.
func (s *Store) SetBatchState(ctx context.Context, batchID int64, state string) error {
	_, err := s.pool.Exec(ctx, `UPDATE batch SET state = $1 WHERE batch_id = $2`, state, batchID)
	return err
}

// SetProcessState updates a single Process row's state, used by every
// processor once a row's work concludes.
func (s *Store) SetProcessState(ctx context.Context, procID int64, state string) error {
	_, err := s.pool.Exec(ctx, `UPDATE process SET state = $1 WHERE proc_id = $2`, state, procID)
	return err
}

// SetProcessRecordID records which entity a Process row ultimately acted on.
func (s *Store) SetProcessRecordID(ctx context.Context, procID, recordID int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE process SET proc_record_id = $1 WHERE proc_id = $2`, recordID, procID)
	return err
}

// BatchAction implements graph.CursorStore: find the processor/endpoint
// name that owns transactionKey's batch, so the cursor can gate group
// writes during deactivate/delete.
func (s *Store) BatchAction(ctx context.Context, transactionKey string) (string, error) {
	var batchID int64
	err := s.pool.QueryRow(ctx,
		`SELECT batch_id FROM process WHERE transaction_key = $1`, transactionKey,
	).Scan(&batchID)
	if err != nil {
		return "", err
	}
	var action string
	err = s.pool.QueryRow(ctx, `SELECT action FROM batch WHERE batch_id = $1`, batchID).Scan(&action)
	return action, err
}

// PendingCount returns how many Process rows in batchID are still PENDING.
func (s *Store) PendingCount(ctx context.Context, batchID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM process WHERE batch_id = $1 AND state = $2`,
		batchID, models.ProcPending,
	).Scan(&n)
	return n, err
}
