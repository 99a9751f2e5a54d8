package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// OpenSQLite opens (creating if necessary) a SQLite-backed log store and
// migrates the sagas/events schema. path may be a file path or ":memory:"
// for tests.
//
// The file is created with restrictive permissions before sql.Open ever
// touches it, closing the TOCTOU window where it would otherwise be briefly
// world-readable; saga payloads and event data may be sensitive.
func OpenSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			f, createErr := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
			if createErr == nil {
				if closeErr := f.Close(); closeErr != nil {
					slog.Warn("failed to close log store file after creation",
						slog.String("path", path),
						slog.String("error", closeErr.Error()))
				}
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if path == ":memory:" {
		// database/sql pools connections; a fresh connection to ":memory:"
		// is a distinct, empty database, so an in-memory store must be
		// pinned to a single connection or later queries would miss the
		// schema migrated below.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, err
	}

	if path != ":memory:" {
		if err := os.Chmod(path, 0600); err != nil {
			slog.Warn("failed to set restrictive permissions on log store file",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}

	return db, nil
}

func migrateSQLite(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sagas (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			current_step INTEGER,
			steps TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			metadata TEXT,
			version INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sagas_status ON sagas(status)`,
		`CREATE INDEX IF NOT EXISTS idx_sagas_name ON sagas(name)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT NOT NULL,
			stream_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			data TEXT NOT NULL,
			metadata TEXT,
			created_at TEXT NOT NULL,
			PRIMARY KEY (stream_id, version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_stream ON events(stream_id, version)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate sqlite schema: %w", err)
		}
	}
	return nil
}

// DefaultTimeFormat is the textual timestamp format used by the SQLite
// backend, which has no native timestamptz type.
const DefaultTimeFormat = time.RFC3339Nano
