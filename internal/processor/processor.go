// Package processor implements the ten operations that mutate or query the
// EMPI store: demographic (ingest), activate/deactivate/delete/archive
// demographic, match affirm/deny, delete_action (undo), and query_records /
// update_status. Every mutating operation runs inside an audit.Auditor scope
// supplied by its caller (the HTTP layer or CLI).
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rawblock/empi-engine/internal/audit"
	"github.com/rawblock/empi-engine/internal/dberrors"
	"github.com/rawblock/empi-engine/internal/engine"
	"github.com/rawblock/empi-engine/internal/graph"
	"github.com/rawblock/empi-engine/pkg/models"
)

var errUnsupportedNameDay = errors.New("name_day must be a \"YYYYMMDD\" string or a timestamp")

// Store is everything the processor needs from persistence, beyond what the
// audit.Auditor already owns.
type Store interface {
	engine.CoarseFinder
	graph.EdgeStore
	graph.CursorStore

	GetDemographic(ctx context.Context, recordID int64) (models.Demographic, bool, error)
	InsertDemographic(ctx context.Context, d models.Demographic) error
	SetDemographicActive(ctx context.Context, recordID int64, active bool, touchedBy, transactionKey string, ts time.Time) error
	DeleteDemographic(ctx context.Context, recordID int64) error
	InsertArchive(ctx context.Context, a models.DemographicArchive) error
	GetArchive(ctx context.Context, recordID int64) (models.DemographicArchive, bool, error)
	DeleteArchive(ctx context.Context, archiveID int64) error
	InsertTelecom(ctx context.Context, t models.Telecom) error

	SetProcessState(ctx context.Context, procID int64, state string) error
	SetProcessRecordID(ctx context.Context, procID, recordID int64) error
	PendingCount(ctx context.Context, batchID int64) (int, error)
	SetBatchState(ctx context.Context, batchID int64, state string) error

	RevalidateEdgesFor(ctx context.Context, recordID int64) error
	InvalidateEdgesFor(ctx context.Context, recordID int64) error
	DeleteAllInvalidEdges(ctx context.Context) error
	FindMatchRow(ctx context.Context, low, high int64) (etlID int64, weight float64, found bool, err error)
	SetMatchWeight(ctx context.Context, low, high int64, weight float64, touchedBy, transactionKey string, ts time.Time) error
	DeleteGroupsForComponent(ctx context.Context, recordID int64) error

	InsertActionLog(ctx context.Context, table string, log models.ActionLog) error
	InsertMatchActionLog(ctx context.Context, table string, log models.MatchActionLog) error
	InsertDeleteActionLog(ctx context.Context, log models.DeleteActionLog) error

	FindActivateLogRecordID(ctx context.Context, transactionKey string) (int64, bool, error)
	FindDeleteLogRecordID(ctx context.Context, transactionKey string) (int64, bool, error)
	FindMatchAffirmLog(ctx context.Context, transactionKey string) (low, high int64, found bool, err error)
	FindMatchDenyLog(ctx context.Context, transactionKey string) (low, high int64, found bool, err error)

	QueryRecords(ctx context.Context, endpoint models.Endpoint, filter map[string]interface{}) ([]map[string]interface{}, error)
}

// Action-log table names, one per operation that appends to a log.
const (
	activateLogTable    = "activate_log"
	deactivateLogTable  = "deactivate_log"
	deleteLogTable      = "delete_log"
	matchAffirmLogTable = "match_affirm_log"
	matchDenyLogTable   = "match_deny_log"
)

// Processor wires a Store and an optional Bulletin notifier into the ten
// EMPI operations. One Processor is shared across requests; an audit.Auditor
// scopes each individual call and supplies the user-scoped minter every id
// mint goes through, so every etl_id_source row is stamped with the actual
// requesting user rather than a process-wide service account.
type Processor struct {
	store  Store
	notify graph.Notifier
	mode   engine.Mode
}

// New builds a Processor using the toy matching mode — the only mode wired
// to a real scorer.
func New(store Store, notify graph.Notifier) *Processor {
	return &Processor{store: store, notify: notify, mode: engine.ToyMode}
}

// stamp mints a proc_id/transaction_key for one row of work within auditor's
// batch. foreignRecordID is whatever upstream id (if any) the row names
// before a record_id has been minted for it.
func (p *Processor) stamp(ctx context.Context, auditor *audit.Auditor, rowIndex int, foreignRecordID int64) (procID int64, transactionKey string, err error) {
	return auditor.Stamp(ctx, rowIndex, foreignRecordID)
}

// finish marks procID's terminal state and, if the owning batch has no
// PENDING rows left, promotes it to COMPUTED.
func (p *Processor) finish(ctx context.Context, batchID, procID int64, state string) error {
	if err := p.store.SetProcessState(ctx, procID, state); err != nil {
		return fmt.Errorf("set process state: %w", err)
	}
	return p.maybeComputeBatch(ctx, batchID)
}

func (p *Processor) maybeComputeBatch(ctx context.Context, batchID int64) error {
	pending, err := p.store.PendingCount(ctx, batchID)
	if err != nil {
		return fmt.Errorf("pending count: %w", err)
	}
	if pending == 0 {
		if err := p.store.SetBatchState(ctx, batchID, models.BatchComputed); err != nil {
			return fmt.Errorf("set batch computed: %w", err)
		}
	}
	return nil
}

// UpdateStatus implements update_status directly: the HTTP/CLI layer calls
// this for a bare status transition that doesn't flow through one of the
// other operations.
func (p *Processor) UpdateStatus(ctx context.Context, batchID, procID int64, status string) error {
	return p.finish(ctx, batchID, procID, status)
}

// QueryRecords implements the generic read path shared by every GET
// endpoint.
func (p *Processor) QueryRecords(ctx context.Context, endpoint models.Endpoint, filter map[string]interface{}) ([]map[string]interface{}, error) {
	delete(filter, "user")
	return p.store.QueryRecords(ctx, endpoint, filter)
}

// recomputeNeighborhood expands seed's current connected component and
// rewrites match/group/bulletin rows for it. Used by deactivate, affirm, and
// deny, which must re-settle the component(s) around the records they
// touched rather than just the edge they changed.
func (p *Processor) recomputeNeighborhood(ctx context.Context, seed, batchID, procID int64, transactionKey string, now time.Time) error {
	component, err := graph.Expand(ctx, p.store, seed, p.mode.Threshold)
	if err != nil {
		return fmt.Errorf("expand component for %d: %w", seed, err)
	}
	return graph.Run(ctx, p.store, p.notify, component.Triples, batchID, procID, transactionKey, p.mode.Threshold, now)
}

// recomputeNeighborhoods does recomputeNeighborhood for every id in seeds,
// skipping any id already present in done (and recording every id it
// processes into done) so no seed is recomputed twice. Only the seed itself
// is recorded, so two seeds in the same component each rewrite it.
func (p *Processor) recomputeNeighborhoods(ctx context.Context, seeds []int64, done map[int64]struct{}, batchID, procID int64, transactionKey string, now time.Time) error {
	for _, seed := range seeds {
		if _, skip := done[seed]; skip {
			continue
		}
		if err := p.recomputeNeighborhood(ctx, seed, batchID, procID, transactionKey, now); err != nil {
			return err
		}
		done[seed] = struct{}{}
	}
	return nil
}

// runCursor rewrites match/group/bulletin rows for exactly the triples
// given — used by activate, where the freshly computed matches are fed to
// the cursor directly rather than via a recursor expansion.
func (p *Processor) runCursor(ctx context.Context, triples []graph.Triple, batchID, procID int64, transactionKey string, now time.Time) error {
	return graph.Run(ctx, p.store, p.notify, triples, batchID, procID, transactionKey, p.mode.Threshold, now)
}

func orderedPair(a, b int64) (low, high int64) {
	if a <= b {
		return a, b
	}
	return b, a
}

// edgeNotFound is a convenience constructor so callers read
// "dberrors.New(dberrors.EdgeNotFound, ...)" in one place.
func edgeNotFound(low, high int64) error {
	return dberrors.New(dberrors.EdgeNotFound, fmt.Sprintf("no EnterpriseMatch edge between %d and %d", low, high))
}
