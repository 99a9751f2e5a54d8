package saga

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wendelmax/syros/pkg/syros/store"
	"github.com/wendelmax/syros/pkg/syros/syroserr"
)

// SQLStore persists sagas in the shared sagas table created by
// store.OpenSQLite/store.OpenPostgres. Steps and metadata are
// serialized as JSON text/jsonb; status and current_step stay as native
// columns so List can filter and order without deserializing every row.
type SQLStore struct {
	db      *sql.DB
	dialect store.Dialect
}

// NewSQLStore wraps db (already migrated by store.OpenSQLite/OpenPostgres).
func NewSQLStore(db *sql.DB, dialect store.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

var _ Store = (*SQLStore)(nil)

type sagaRow struct {
	Steps      []Step      `json:"steps"`
	StepStates []StepState `json:"step_states"`
}

func (s *SQLStore) timeLayout() string {
	return time.RFC3339Nano
}

// Create inserts a new saga row.
func (s *SQLStore) Create(sg *Saga) error {
	payload, err := json.Marshal(sagaRow{Steps: sg.Steps, StepStates: sg.StepStates})
	if err != nil {
		return syroserr.Wrap(syroserr.Internal, err, "marshal saga payload")
	}
	metadata, err := json.Marshal(sg.Metadata)
	if err != nil {
		return syroserr.Wrap(syroserr.Internal, err, "marshal saga metadata")
	}

	q := fmt.Sprintf(`INSERT INTO sagas (id, name, status, current_step, steps, created_at, updated_at, metadata, version)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
		s.dialect.Placeholder(4), s.dialect.Placeholder(5), s.dialect.Placeholder(6),
		s.dialect.Placeholder(7), s.dialect.Placeholder(8), s.dialect.Placeholder(9))

	// steps/metadata are bound as strings: lib/pq would otherwise encode a
	// []byte argument as a bytea literal, which Postgres cannot implicitly
	// cast into this table's jsonb columns.
	_, err = s.db.Exec(q, sg.ID, sg.Name, string(sg.Status), currentStepValue(sg.CurrentStep),
		string(payload), sg.CreatedAt.Format(s.timeLayout()), sg.UpdatedAt.Format(s.timeLayout()), string(metadata), sg.Version)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return syroserr.Wrap(syroserr.Internal, err, "saga already exists: %s", sg.ID)
		}
		return syroserr.Wrap(syroserr.StoreKind(err), err, "insert saga")
	}
	return nil
}

// Update replaces the row for sg.ID, but only if its stored version still
// equals expectedVersion: a compare-and-swap on the row's version column so
// two racing Update calls for the same saga can't silently clobber one
// another. On success sg.Version is advanced to
// expectedVersion+1 to match what was just persisted.
func (s *SQLStore) Update(sg *Saga, expectedVersion int) error {
	payload, err := json.Marshal(sagaRow{Steps: sg.Steps, StepStates: sg.StepStates})
	if err != nil {
		return syroserr.Wrap(syroserr.Internal, err, "marshal saga payload")
	}
	metadata, err := json.Marshal(sg.Metadata)
	if err != nil {
		return syroserr.Wrap(syroserr.Internal, err, "marshal saga metadata")
	}
	newVersion := expectedVersion + 1

	q := fmt.Sprintf(`UPDATE sagas SET name=%s, status=%s, current_step=%s, steps=%s, updated_at=%s, metadata=%s, version=%s
		WHERE id=%s AND version=%s`,
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
		s.dialect.Placeholder(4), s.dialect.Placeholder(5), s.dialect.Placeholder(6),
		s.dialect.Placeholder(7), s.dialect.Placeholder(8), s.dialect.Placeholder(9))

	res, err := s.db.Exec(q, sg.Name, string(sg.Status), currentStepValue(sg.CurrentStep),
		string(payload), sg.UpdatedAt.Format(s.timeLayout()), string(metadata), newVersion, sg.ID, expectedVersion)
	if err != nil {
		return syroserr.Wrap(syroserr.StoreKind(err), err, "update saga")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return syroserr.Wrap(syroserr.Internal, err, "update saga: rows affected")
	}
	if n == 0 {
		// Either the saga doesn't exist, or it does but its version has
		// already moved on under a racing writer; disambiguate with a read.
		if _, getErr := s.Get(sg.ID); getErr != nil {
			return getErr
		}
		return syroserr.New(syroserr.VersionConflict,
			"saga %q: expected version %d, but it has since changed", sg.ID, expectedVersion)
	}
	sg.Version = newVersion
	return nil
}

// Get loads the saga row for id.
func (s *SQLStore) Get(id string) (*Saga, error) {
	q := fmt.Sprintf(`SELECT id, name, status, current_step, steps, created_at, updated_at, metadata, version
		FROM sagas WHERE id=%s`, s.dialect.Placeholder(1))

	row := s.db.QueryRow(q, id)
	sg, err := scanSaga(row)
	if err != nil {
		if store.IsNoRows(err) {
			return nil, syroserr.New(syroserr.SagaNotFound, "saga not found: %s", id)
		}
		return nil, syroserr.Wrap(syroserr.StoreKind(err), err, "get saga")
	}
	return sg, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSaga(row rowScanner) (*Saga, error) {
	var (
		sg          Saga
		currentStep sql.NullInt64
		payload     []byte
		metadata    []byte
		createdAt   string
		updatedAt   string
		status      string
	)
	if err := row.Scan(&sg.ID, &sg.Name, &status, &currentStep, &payload, &createdAt, &updatedAt, &metadata, &sg.Version); err != nil {
		return nil, err
	}
	sg.Status = Status(status)
	if currentStep.Valid {
		cs := int(currentStep.Int64)
		sg.CurrentStep = &cs
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		sg.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		sg.UpdatedAt = t
	}

	var body sagaRow
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, err
	}
	sg.Steps = body.Steps
	sg.StepStates = body.StepStates

	if len(metadata) > 0 {
		var md map[string]string
		if err := json.Unmarshal(metadata, &md); err != nil {
			return nil, err
		}
		sg.Metadata = md
	}
	return &sg, nil
}

// List returns sagas matching filter, newest-created last.
func (s *SQLStore) List(filter ListFilter) ([]*Saga, error) {
	q := `SELECT id, name, status, current_step, steps, created_at, updated_at, metadata, version FROM sagas WHERE 1=1`
	var args []any
	n := 0
	if filter.Name != "" {
		n++
		q += fmt.Sprintf(" AND name=%s", s.dialect.Placeholder(n))
		args = append(args, filter.Name)
	}
	if filter.Status != "" {
		n++
		q += fmt.Sprintf(" AND status=%s", s.dialect.Placeholder(n))
		args = append(args, string(filter.Status))
	}
	q += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		q += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, syroserr.Wrap(syroserr.StoreKind(err), err, "list sagas")
	}
	defer rows.Close()

	var out []*Saga
	for rows.Next() {
		sg, err := scanSaga(rows)
		if err != nil {
			return nil, syroserr.Wrap(syroserr.Internal, err, "scan saga row")
		}
		out = append(out, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, syroserr.Wrap(syroserr.StoreKind(err), err, "list sagas")
	}
	return out, nil
}

// Delete removes the saga row for id. Idempotent, matching MemoryStore.
func (s *SQLStore) Delete(id string) error {
	q := fmt.Sprintf(`DELETE FROM sagas WHERE id=%s`, s.dialect.Placeholder(1))
	_, err := s.db.Exec(q, id)
	if err != nil {
		return syroserr.Wrap(syroserr.StoreKind(err), err, "delete saga")
	}
	return nil
}

func currentStepValue(cs *int) any {
	if cs == nil {
		return nil
	}
	return *cs
}
