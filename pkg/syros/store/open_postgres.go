package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // Postgres driver
)

// PoolOptions bounds the connection pool backing a LogStore
// (lease_store/log_store.pool_size). Pools are always bounded; back-pressure
// rides database/sql's internal wait queue up to the per-call timeout.
type PoolOptions struct {
	MaxOpenConns int
	MaxIdleConns int
	ConnTimeout  time.Duration
}

// DefaultPoolOptions is the default pool bound.
var DefaultPoolOptions = PoolOptions{
	MaxOpenConns: 10,
	MaxIdleConns: 10,
	ConnTimeout:  30 * time.Second,
}

// OpenPostgres opens a Postgres-backed log store and migrates the
// sagas/events schema (jsonb payload columns, unique(stream_id, version)).
func OpenPostgres(dsn string, opts PoolOptions) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := migratePostgres(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func migratePostgres(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sagas (
			id uuid PRIMARY KEY,
			name text NOT NULL,
			status text NOT NULL,
			current_step int,
			steps jsonb NOT NULL,
			created_at timestamptz NOT NULL,
			updated_at timestamptz NOT NULL,
			metadata jsonb,
			version int NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sagas_status ON sagas(status)`,
		`CREATE INDEX IF NOT EXISTS idx_sagas_name ON sagas(name)`,
		`CREATE TABLE IF NOT EXISTS events (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			stream_id text NOT NULL,
			version int NOT NULL,
			event_type text NOT NULL,
			data jsonb NOT NULL,
			metadata jsonb,
			created_at timestamptz NOT NULL DEFAULT now(),
			UNIQUE(stream_id, version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_stream ON events(stream_id, version)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate postgres schema: %w", err)
		}
	}
	return nil
}
