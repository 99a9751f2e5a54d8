package store

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Dialect distinguishes the two LogStore-capable SQL backends this module
// ships. Queries against sagas/events differ only in placeholder syntax and
// JSON column type, so saga.SQLStore and event.Store branch on Dialect
// rather than needing a full query-builder dependency.
type Dialect int

const (
	// SQLite backs the embeddable, single-process log store.
	SQLite Dialect = iota

	// Postgres backs the production log store (jsonb payload columns).
	Postgres
)

// Placeholder returns the positional parameter marker for the nth (1-based)
// bind variable under this dialect.
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// IsUniqueViolation reports whether err is a uniqueness-constraint failure
// from either supported backend: lib/pq's structured *pq.Error for
// Postgres (SQLSTATE 23505), or the text modernc.org/sqlite's driver
// surfaces for SQLite (it does not expose a typed error for this case).
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsNoRows reports whether err is database/sql's sentinel for "no matching row".
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
