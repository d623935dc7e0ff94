// Package idgen implements the single monotonic ID source shared by every
// entity kind in the system: batch, proc, record, etl, and action-log ids
// are all minted from the same number-line, so a minimum-id comparison
// anywhere in the system is globally meaningful.
package idgen

import (
	"context"
	"time"
)

// Version identifies the minting application/build, stamped onto every
// ETLIDSource row alongside the requesting user.
const Version = "empi-engine/1"

// Store persists one ETLIDSource row per mint and returns the new id.
type Store interface {
	MintID(ctx context.Context, user, version string, ts time.Time) (int64, error)
}

// Minter mints ids on behalf of a fixed user.
type Minter struct {
	store Store
	user  string
}

// New builds a Minter that stamps every mint with user.
func New(store Store, user string) *Minter {
	return &Minter{store: store, user: user}
}

// Mint allocates the next id in the shared number-line.
func (m *Minter) Mint(ctx context.Context) (int64, error) {
	return m.store.MintID(ctx, m.user, Version, time.Now())
}

// WithUser returns a Minter for the same store stamping a different user.
// audit.New calls this once per request to scope a service-wide Minter down
// to the batch's actual requesting user, so every id minted through the
// resulting Auditor — batch_id, proc_id, and anything the caller mints via
// Auditor.Minter() — carries that user rather than the service account.
func (m *Minter) WithUser(user string) *Minter {
	return &Minter{store: m.store, user: user}
}
