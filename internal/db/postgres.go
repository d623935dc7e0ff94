// Package db is the Postgres-backed persistence layer: connection pooling,
// schema management, and the repository methods the audit/idgen/engine/
// graph/processor packages depend on.
package db

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps a pgxpool.Pool and implements every repository interface the
// rest of the engine needs (idgen.Store, audit.Store, engine.CoarseFinder,
// graph.EdgeStore, graph.CursorStore, plus the generic query_records path).
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pooled connection to databaseURL and verifies it with a
// ping before returning.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	log.Println("connected to postgres")
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Pool exposes the underlying pgxpool.Pool for callers (CLI's create_db,
// tests) that need raw access.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// InitSchema creates every table this engine needs, idempotently (CREATE
// TABLE IF NOT EXISTS throughout schema.sql).
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// DropSchema drops every table this engine owns, for the CLI's create_db
// (drop+create) flow.
func (s *Store) DropSchema(ctx context.Context) error {
	const dropStmt = `
DROP TABLE IF EXISTS delete_action_log, match_deny_log, match_affirm_log,
    delete_log, deactivate_log, activate_log, bulletin, enterprise_group,
    enterprise_match, crosswalk_bind, crosswalk, telecom,
    demographic_archive, demographic, process, batch, etl_id_source
    CASCADE;`
	if _, err := s.pool.Exec(ctx, dropStmt); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	return nil
}
