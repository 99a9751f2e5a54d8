package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/wendelmax/syros/pkg/syros/config"
	"github.com/wendelmax/syros/pkg/syros/idgen"
	"github.com/wendelmax/syros/pkg/syros/observability"
	"github.com/wendelmax/syros/pkg/syros/store"
	"github.com/wendelmax/syros/pkg/syros/syroserr"
)

// Store is the EventStore's SQL-backed implementation over the shared
// events table created by store.OpenSQLite/store.OpenPostgres.
type Store struct {
	db              *sql.DB
	dialect         store.Dialect
	conflictRetries int

	logger  *slog.Logger
	metrics observability.MetricsRecorder
}

// NewStore wraps db (already migrated by store.OpenSQLite/OpenPostgres).
// conflictRetries <= 0 uses DefaultAppendConflictRetries.
func NewStore(db *sql.DB, dialect store.Dialect, conflictRetries int) *Store {
	if conflictRetries <= 0 {
		conflictRetries = DefaultAppendConflictRetries
	}
	return &Store{db: db, dialect: dialect, conflictRetries: conflictRetries, metrics: observability.NoopMetrics{}}
}

// NewStoreFromConfig wraps db the same way NewStore does, taking
// conflictRetries from cfg's event.append_conflict_retries option.
func NewStoreFromConfig(db *sql.DB, dialect store.Dialect, cfg config.Config) *Store {
	return NewStore(db, dialect, cfg.Event().AppendConflictRetries)
}

// SetLogger attaches a structured logger for append-conflict retries.
func (s *Store) SetLogger(logger *slog.Logger) { s.logger = logger }

// SetMetrics attaches a metrics recorder for append latency and retry counts.
func (s *Store) SetMetrics(metrics observability.MetricsRecorder) {
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	s.metrics = metrics
}

// Append assigns the next version for streamID and inserts the event,
// retrying the read-compute-insert cycle when a concurrent appender wins the
// unique-constraint race. Returns VersionConflict if the retry budget is
// exhausted.
func (s *Store) Append(ctx context.Context, streamID, eventType string, data []byte, metadata map[string]string) (*Event, error) {
	if streamID == "" {
		return nil, syroserr.New(syroserr.InvalidArgument, "stream_id must not be empty")
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, syroserr.Wrap(syroserr.Internal, err, "marshal event metadata")
	}

	started := time.Now()
	var lastErr error
	for attempt := 0; attempt <= s.conflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, syroserr.Wrap(syroserr.Internal, err, "append cancelled")
		}
		if attempt > 0 {
			observability.LogEventAppendConflict(s.logger, streamID, attempt)
		}

		version, err := s.nextVersion(ctx, streamID)
		if err != nil {
			return nil, err
		}

		ev := &Event{
			ID:        idgen.New(),
			StreamID:  streamID,
			Version:   version,
			EventType: eventType,
			Data:      data,
			Metadata:  metadata,
			CreatedAt: time.Now().UTC(),
		}

		q := fmt.Sprintf(`INSERT INTO events (id, stream_id, version, event_type, data, metadata, created_at)
			VALUES (%s, %s, %s, %s, %s, %s, %s)`,
			s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
			s.dialect.Placeholder(4), s.dialect.Placeholder(5), s.dialect.Placeholder(6),
			s.dialect.Placeholder(7))

		// data/metadata are bound as strings, not []byte: lib/pq encodes a
		// []byte argument as a bytea literal, which Postgres cannot
		// implicitly cast into the jsonb columns this table uses.
		_, err = s.db.ExecContext(ctx, q, ev.ID, ev.StreamID, ev.Version, ev.EventType,
			string(ev.Data), string(metaJSON), ev.CreatedAt.Format(time.RFC3339Nano))
		if err == nil {
			s.metrics.RecordEventAppend(ctx, time.Since(started), attempt)
			observability.LogEventAppended(s.logger, streamID, ev.ID, ev.Version, attempt)
			return ev, nil
		}
		if !store.IsUniqueViolation(err) {
			return nil, syroserr.Wrap(syroserr.StoreKind(err), err, "insert event")
		}
		lastErr = err
	}

	return nil, syroserr.Wrap(syroserr.VersionConflict, lastErr,
		"append to stream %q exceeded conflict retry budget (%d)", streamID, s.conflictRetries)
}

func (s *Store) nextVersion(ctx context.Context, streamID string) (int, error) {
	q := fmt.Sprintf(`SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = %s`, s.dialect.Placeholder(1))
	var max int
	if err := s.db.QueryRowContext(ctx, q, streamID).Scan(&max); err != nil {
		return 0, syroserr.Wrap(syroserr.StoreKind(err), err, "read max version for stream %q", streamID)
	}
	return max + 1, nil
}

// Read returns events from streamID in ascending version order, starting at
// fromVersion (1 if <= 0) and returning at most limit events (DefaultReadLimit
// if <= 0, capped at MaxReadLimit). A fromVersion beyond the stream's last
// version yields an empty slice, not an error.
func (s *Store) Read(ctx context.Context, streamID string, fromVersion, limit int) ([]*Event, error) {
	if streamID == "" {
		return nil, syroserr.New(syroserr.InvalidArgument, "stream_id must not be empty")
	}
	if fromVersion <= 0 {
		fromVersion = 1
	}
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	if limit > MaxReadLimit {
		limit = MaxReadLimit
	}

	q := fmt.Sprintf(`SELECT id, stream_id, version, event_type, data, metadata, created_at
		FROM events WHERE stream_id = %s AND version >= %s
		ORDER BY version ASC LIMIT %d`,
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), limit)

	rows, err := s.db.QueryContext(ctx, q, streamID, fromVersion)
	if err != nil {
		return nil, syroserr.Wrap(syroserr.StoreKind(err), err, "read stream %q", streamID)
	}
	defer rows.Close()

	events := make([]*Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, syroserr.Wrap(syroserr.Internal, err, "scan event row")
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, syroserr.Wrap(syroserr.StoreKind(err), err, "read stream %q", streamID)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var (
		ev        Event
		metaJSON  []byte
		createdAt string
	)
	if err := row.Scan(&ev.ID, &ev.StreamID, &ev.Version, &ev.EventType, &ev.Data, &metaJSON, &createdAt); err != nil {
		return nil, err
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &ev.Metadata); err != nil {
			return nil, err
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		ev.CreatedAt = t
	}
	return &ev, nil
}

// StreamInfo summarizes streamID's version range and event count. A stream
// with no events returns a zero-valued StreamInfo (EventCount 0), not an error.
func (s *Store) StreamInfo(ctx context.Context, streamID string) (*StreamInfo, error) {
	if streamID == "" {
		return nil, syroserr.New(syroserr.InvalidArgument, "stream_id must not be empty")
	}

	q := fmt.Sprintf(`SELECT COUNT(*), COALESCE(MIN(version), 0), COALESCE(MAX(version), 0)
		FROM events WHERE stream_id = %s`, s.dialect.Placeholder(1))

	info := &StreamInfo{StreamID: streamID}
	if err := s.db.QueryRowContext(ctx, q, streamID).Scan(&info.EventCount, &info.FirstVersion, &info.LastVersion); err != nil {
		return nil, syroserr.Wrap(syroserr.StoreKind(err), err, "stream_info %q", streamID)
	}
	return info, nil
}
