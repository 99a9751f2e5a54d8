package saga

import (
	"sort"
	"sync"

	"github.com/wendelmax/syros/pkg/syros/syroserr"
)

// Store persists Saga records. Update is a full replace: the orchestrator
// always writes back a whole Saga after every state transition.
//
// Update is a compare-and-swap keyed on expectedVersion, not a blind
// overwrite: the caller passes the Version it last read (normally s.Version
// itself, carried on the record since the preceding Get/Create), and Update
// rejects the write with VersionConflict if the stored record has moved on
// since; two concurrent Execute/Cancel calls racing on the same saga ID
// must not silently clobber one another's transition. On
// success, s.Version is advanced to expectedVersion+1 so the caller's next
// Update call is already primed with the right token.
type Store interface {
	Create(s *Saga) error
	Update(s *Saga, expectedVersion int) error
	Get(id string) (*Saga, error)
	List(filter ListFilter) ([]*Saga, error)
	Delete(id string) error
}

// ListFilter narrows List results, mirroring the usual saga ListFilter shape.
type ListFilter struct {
	Name   string
	Status Status
	Limit  int
	Offset int
}

// MemoryStore is an in-process Store for tests and single-process use.
// Every read and write goes through Clone so callers can never mutate the
// store's internal state through a returned pointer.
type MemoryStore struct {
	mu    sync.RWMutex
	sagas map[string]*Saga
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sagas: make(map[string]*Saga)}
}

var _ Store = (*MemoryStore)(nil)

// Create stores s, failing if s.ID already exists.
func (m *MemoryStore) Create(s *Saga) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sagas[s.ID]; exists {
		return syroserr.New(syroserr.Internal, "saga already exists: "+s.ID)
	}
	m.sagas[s.ID] = s.Clone()
	return nil
}

// Update replaces the stored record for s.ID, failing if it does not exist
// or if its stored Version does not equal expectedVersion.
func (m *MemoryStore) Update(s *Saga, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, exists := m.sagas[s.ID]
	if !exists {
		return syroserr.New(syroserr.SagaNotFound, "saga not found: "+s.ID)
	}
	if existing.Version != expectedVersion {
		return syroserr.New(syroserr.VersionConflict,
			"saga %q: expected version %d, found %d", s.ID, expectedVersion, existing.Version)
	}
	s.Version = expectedVersion + 1
	m.sagas[s.ID] = s.Clone()
	return nil
}

// Get returns a copy of the saga record for id.
func (m *MemoryStore) Get(id string) (*Saga, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sagas[id]
	if !ok {
		return nil, syroserr.New(syroserr.SagaNotFound, "saga not found: "+id)
	}
	return s.Clone(), nil
}

// List returns copies of sagas matching filter, ordered by CreatedAt.
func (m *MemoryStore) List(filter ListFilter) ([]*Saga, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*Saga, 0, len(m.sagas))
	for _, s := range m.sagas {
		if filter.Name != "" && s.Name != filter.Name {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		matched = append(matched, s)
	}

	sortByCreatedAt(matched)

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*Saga{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}

	out := make([]*Saga, len(matched))
	for i, s := range matched {
		out[i] = s.Clone()
	}
	return out, nil
}

// Delete removes the saga record for id. Deleting a missing id is a no-op,
// matching the usual idempotent Delete semantics.
func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sagas, id)
	return nil
}

func sortByCreatedAt(sagas []*Saga) {
	sort.Slice(sagas, func(i, j int) bool {
		return sagas[i].CreatedAt.Before(sagas[j].CreatedAt)
	})
}
