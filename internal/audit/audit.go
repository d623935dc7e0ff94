// Package audit implements the per-request batch scope and per-row process
// stamping described in the auditor component: a Batch row is opened on
// entry and closed (to PENDING, never COMPUTED directly) on clean exit; a
// Process row is minted for every row of work within the batch.
package audit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rawblock/empi-engine/internal/idgen"
	"github.com/rawblock/empi-engine/pkg/models"
)

// Store is everything the auditor needs from persistence.
type Store interface {
	InsertBatch(ctx context.Context, batchID int64, action, user string, ts time.Time) error
	InsertProcess(ctx context.Context, proc models.Process) error
	SetBatchState(ctx context.Context, batchID int64, state string) error
}

// Auditor is a scoped acquisition of one batch. Open it with New, always
// release it with Close (typically via defer) — Close never propagates the
// error it is given; it logs and leaves the batch non-COMPUTED instead.
type Auditor struct {
	store   Store
	minter  *idgen.Minter
	BatchID int64
	User    string
	Action  string
}

// New mints a batch_id, inserts Batch(STARTING), and returns the opened
// Auditor scope.
func New(ctx context.Context, store Store, minter *idgen.Minter, user, action string) (*Auditor, error) {
	scoped := minter.WithUser(user)
	batchID, err := scoped.Mint(ctx)
	if err != nil {
		return nil, fmt.Errorf("mint batch id: %w", err)
	}
	if err := store.InsertBatch(ctx, batchID, action, user, time.Now()); err != nil {
		return nil, fmt.Errorf("insert batch: %w", err)
	}
	return &Auditor{store: store, minter: scoped, BatchID: batchID, User: user, Action: action}, nil
}

// Minter returns the user-scoped minter backing this batch, so callers that
// need to mint record/archive/action-log ids outside of Stamp's proc_id mint
// still stamp them with the batch's requesting user rather than a
// process-wide service account.
func (a *Auditor) Minter() *idgen.Minter {
	return a.minter
}

// Stamp mints a proc_id for rowIndex, builds its transaction_key, inserts a
// PENDING Process row, and returns both ids for the caller to carry through
// the rest of the row's processing.
func (a *Auditor) Stamp(ctx context.Context, rowIndex int, foreignRecordID int64) (procID int64, transactionKey string, err error) {
	procID, err = a.minter.Mint(ctx)
	if err != nil {
		return 0, "", fmt.Errorf("mint proc id: %w", err)
	}
	transactionKey = fmt.Sprintf("%d_%d", a.BatchID, procID)
	proc := models.Process{
		ProcID:         procID,
		BatchID:        a.BatchID,
		RowIndex:       rowIndex,
		ProcRecordID:   foreignRecordID,
		State:          models.ProcPending,
		TransactionKey: transactionKey,
		CreatedTS:      time.Now(),
	}
	if err := a.store.InsertProcess(ctx, proc); err != nil {
		return 0, "", fmt.Errorf("insert process: %w", err)
	}
	return procID, transactionKey, nil
}

// Close ends the batch scope. Call via defer, passing the address of a
// named error return so Close can observe whether the scope's work
// succeeded. On a non-nil *errp, the error is logged and the batch is left
// non-COMPUTED; the error itself is never propagated further. On success
// the batch transitions to PENDING, from which a later update_status call
// may promote it to COMPUTED.
func (a *Auditor) Close(errp *error) {
	if errp != nil && *errp != nil {
		log.Printf("[audit] batch %d exited with error: %v", a.BatchID, *errp)
		return
	}
	if err := a.store.SetBatchState(context.Background(), a.BatchID, models.BatchPending); err != nil {
		log.Printf("[audit] batch %d: failed to mark PENDING: %v", a.BatchID, err)
	}
}
