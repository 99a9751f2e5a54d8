package store

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolationRecognizesPQError(t *testing.T) {
	err := &pq.Error{Code: "23505"}
	assert.True(t, IsUniqueViolation(err))

	other := &pq.Error{Code: "23503"}
	assert.False(t, IsUniqueViolation(other))
}

func TestIsUniqueViolationRecognizesSQLiteText(t *testing.T) {
	err := errors.New("constraint failed: UNIQUE constraint failed: events.stream_id, events.version")
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(errors.New("some other failure")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestDialectPlaceholder(t *testing.T) {
	assert.Equal(t, "?", SQLite.Placeholder(1))
	assert.Equal(t, "?", SQLite.Placeholder(12))
	assert.Equal(t, "$1", Postgres.Placeholder(1))
	assert.Equal(t, "$12", Postgres.Placeholder(12))
}

func TestOpenSQLiteMigratesSchema(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(`INSERT INTO sagas (id, name, status, current_step, steps, created_at, updated_at, metadata)
		VALUES ('s1', 'order', 'Pending', 0, '[]', '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z', '{}')`)
	assert.NoError(t, err)

	_, err = db.Exec(`INSERT INTO events (id, stream_id, version, event_type, data, metadata, created_at)
		VALUES ('e1', 'stream-a', 1, 'created', '{}', '{}', '2026-01-01T00:00:00Z')`)
	assert.NoError(t, err)

	_, err = db.Exec(`INSERT INTO events (id, stream_id, version, event_type, data, metadata, created_at)
		VALUES ('e2', 'stream-a', 1, 'created', '{}', '{}', '2026-01-01T00:00:00Z')`)
	assert.Error(t, err, "duplicate (stream_id, version) must violate the unique constraint")
	assert.True(t, IsUniqueViolation(err))
}
