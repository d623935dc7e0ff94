package db

import (
	"context"
	"time"
)

// MintID implements idgen.Store: every call inserts an ETLIDSource row and
// returns the new monotonic id. This is the single number-line every other
// table's primary key is drawn from.
func (s *Store) MintID(ctx context.Context, user, version string, ts time.Time) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO etl_id_source ("user", version, created_ts) VALUES ($1, $2, $3) RETURNING etl_id`,
		user, version, ts,
	).Scan(&id)
	return id, err
}
