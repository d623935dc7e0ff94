package graph

import (
	"context"
	"time"
)

// MatchWrite is the outcome of upserting one EnterpriseMatch edge: the
// edge's etl_id, whether it already existed, and the ordered pair.
type MatchWrite struct {
	EtlID   int64
	Low     int64
	High    int64
	Existed bool
}

// CursorStore is everything the cursor needs from persistence. A single
// implementation (internal/db) backs it; each method runs as its own
// statement on the connection pool, so a Run call is not wrapped in one
// Postgres transaction.
type CursorStore interface {
	// FindMatch returns the existing edge for (low, high), if any.
	FindMatch(ctx context.Context, low, high int64) (etlID int64, found bool, err error)
	// InsertMatch inserts a new valid EnterpriseMatch row and returns its
	// minted etl_id. Uses ON CONFLICT DO NOTHING at the storage layer: a
	// concurrent insert of the same pair is resolved by re-reading via
	// FindMatch.
	InsertMatch(ctx context.Context, low, high int64, weight float64, transactionKey string, ts time.Time) (etlID int64, err error)
	// InvalidateMatch sets is_valid=false on the (low, high) edge.
	InvalidateMatch(ctx context.Context, low, high int64) error
	// BatchAction returns the processor/endpoint name that owns
	// transactionKey's batch, used to gate group writes during
	// deactivate/delete.
	BatchAction(ctx context.Context, transactionKey string) (string, error)
	// UpsertGroup writes (or leaves unchanged) an EnterpriseGroup row for
	// recordID, changing its enterprise_id only if the stored value
	// differs. Returns whether a write actually happened.
	UpsertGroup(ctx context.Context, recordID, enterpriseID int64, transactionKey string, ts time.Time) (changed bool, err error)
	// InsertBulletin appends a Bulletin row for a group row that was
	// actually written, minting its own etl_id.
	InsertBulletin(ctx context.Context, batchID, procID, recordID, enterpriseID int64, ts time.Time) (etlID int64, err error)
}

// Notifier is given every Bulletin row the cursor writes, for the live
// feed (§6 Bulletin live feed addition). Optional: pass nil to skip.
type Notifier interface {
	PublishBulletin(batchID, procID, recordID, enterpriseID int64, ts time.Time)
}

// Actions that suppress EnterpriseGroup writes: the caller is in the middle
// of disassembling a component and group rows would immediately be stale.
const (
	ActionDeactivateDemographic = "deactivate_demographic"
	ActionDeleteDemographic     = "delete_demographic"
)

var groupWriteSuppressedFor = map[string]bool{
	ActionDeactivateDemographic: true,
	ActionDeleteDemographic:     true,
}

// EnterpriseID computes the minimum record_id among every distinct endpoint
// across triples — the canonical identity of the component.
func EnterpriseID(triples []Triple) (int64, bool) {
	var min int64
	found := false
	consider := func(id int64) {
		if !found || id < min {
			min = id
			found = true
		}
	}
	for _, t := range triples {
		if t.Low != t.High {
			consider(t.Low)
			consider(t.High)
		}
	}
	return min, found
}

// Run rewrites match/group/bulletin tables for one component: upserts or
// invalidates every edge in triples against threshold, then (unless the
// owning batch is mid-deactivation/deletion) upserts EnterpriseGroup rows
// and appends a Bulletin for every row actually changed.
func Run(ctx context.Context, store CursorStore, notify Notifier, triples []Triple, batchID, procID int64, transactionKey string, threshold float64, now time.Time) error {
	enterpriseID, ok := EnterpriseID(triples)
	if !ok {
		return nil
	}

	var kept []MatchWrite
	for _, t := range triples {
		low, high := t.Low, t.High
		if low > high {
			low, high = high, low
		}
		if t.Weight >= threshold {
			etlID, found, err := store.FindMatch(ctx, low, high)
			if err != nil {
				return err
			}
			if !found {
				etlID, err = store.InsertMatch(ctx, low, high, t.Weight, transactionKey, now)
				if err != nil {
					return err
				}
			}
			kept = append(kept, MatchWrite{EtlID: etlID, Low: low, High: high, Existed: found})
		} else {
			if err := store.InvalidateMatch(ctx, low, high); err != nil {
				return err
			}
		}
	}

	groupSet := map[int64]struct{}{}
	for _, m := range kept {
		groupSet[m.Low] = struct{}{}
		groupSet[m.High] = struct{}{}
	}

	action, err := store.BatchAction(ctx, transactionKey)
	if err != nil {
		return err
	}
	if groupWriteSuppressedFor[action] {
		return nil
	}

	for recordID := range groupSet {
		changed, err := store.UpsertGroup(ctx, recordID, enterpriseID, transactionKey, now)
		if err != nil {
			return err
		}
		if !changed {
			continue
		}
		etlID, err := store.InsertBulletin(ctx, batchID, procID, recordID, enterpriseID, now)
		if err != nil {
			return err
		}
		_ = etlID
		if notify != nil {
			notify.PublishBulletin(batchID, procID, recordID, enterpriseID, now)
		}
	}

	return nil
}
