package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wendelmax/syros/pkg/syros/clock"
	"github.com/wendelmax/syros/pkg/syros/config"
	"github.com/wendelmax/syros/pkg/syros/observability"
	"github.com/wendelmax/syros/pkg/syros/store"
	"github.com/wendelmax/syros/pkg/syros/syroserr"
)

// Manager implements CacheManager over a store.LeaseStore, with an
// in-process tag→keys secondary index guarded by a single RWMutex.
type Manager struct {
	leases store.LeaseStore
	clock  clock.Clock

	mu       sync.RWMutex
	tagIndex map[string]map[string]struct{} // tag -> set(key)
	keyTags  map[string][]string            // key -> tags (presence also tracks "known live")

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	logger     *slog.Logger
	metrics    observability.MetricsRecorder
	defaultTTL time.Duration
}

// NewManager builds a cache Manager backed by leases. Set calls that omit a
// ttl fall back to DefaultTTL; call SetDefaultTTL or build with
// NewManagerFromConfig to override it via cache.default_ttl_ms.
func NewManager(leases store.LeaseStore, c clock.Clock) *Manager {
	return &Manager{
		leases:     leases,
		clock:      c,
		tagIndex:   make(map[string]map[string]struct{}),
		keyTags:    make(map[string][]string),
		metrics:    observability.NoopMetrics{},
		defaultTTL: DefaultTTL,
	}
}

// NewManagerFromConfig builds a Manager the same way NewManager does, then
// applies cfg's cache.default_ttl_ms option.
func NewManagerFromConfig(leases store.LeaseStore, c clock.Clock, cfg config.Config) *Manager {
	m := NewManager(leases, c)
	m.SetDefaultTTL(cfg.Cache().DefaultTTL)
	return m
}

// SetDefaultTTL overrides the ttl applied by Set when called with ttl <= 0.
// A non-positive value is ignored.
func (m *Manager) SetDefaultTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.defaultTTL = ttl
}

// SetLogger attaches a structured logger for cache eviction events.
func (m *Manager) SetLogger(logger *slog.Logger) { m.logger = logger }

// SetMetrics attaches a metrics recorder for hit/miss counts and hit ratio.
func (m *Manager) SetMetrics(metrics observability.MetricsRecorder) {
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	m.metrics = metrics
}

// Set writes key/value with the given ttl (DefaultTTL if <= 0) and tags,
// replacing any existing entry for key. Writing over an existing key first
// repairs the tag index so it never reflects the entry's stale tag set.
func (m *Manager) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	if key == "" {
		return syroserr.New(syroserr.InvalidArgument, "key must not be empty")
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	entry := (&entryRecord{Value: value, Tags: tags}).marshal()
	if err := m.forceSet(ctx, key, entry, ttl); err != nil {
		return syroserr.Wrap(syroserr.StoreKind(err), err, "set cache key %q", key)
	}

	m.mu.Lock()
	m.removeFromTagsLocked(key)
	m.keyTags[key] = append([]string(nil), tags...)
	for _, tag := range tags {
		set, ok := m.tagIndex[tag]
		if !ok {
			set = make(map[string]struct{})
			m.tagIndex[tag] = set
		}
		set[key] = struct{}{}
	}
	m.mu.Unlock()

	return nil
}

// forceSet writes key unconditionally: SetNX if absent, otherwise a
// Get-then-CompareAndSwap loop, since LeaseStore exposes no unconditional
// Set primitive of its own, only SET-IF-ABSENT plus compare-based
// delete/swap.
func (m *Manager) forceSet(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	for {
		ok, err := m.leases.SetNX(ctx, key, value, ttl)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		current, exists, err := m.leases.Get(ctx, key)
		if err != nil {
			return err
		}
		if !exists {
			continue // raced with a delete/expiry; retry SetNX
		}
		swapped, err := m.leases.CompareAndSwap(ctx, key, current, value, ttl)
		if err != nil {
			return err
		}
		if swapped {
			return nil
		}
		// lost the race to a concurrent writer; retry
	}
}

// Get reads key. A miss (absent or expired) repairs the tag index for key
// before returning, so the index never references a dead entry.
func (m *Manager) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, syroserr.New(syroserr.InvalidArgument, "key must not be empty")
	}

	raw, ok, err := m.leases.Get(ctx, key)
	if err != nil {
		return nil, false, syroserr.Wrap(syroserr.StoreKind(err), err, "get cache key %q", key)
	}
	if !ok {
		m.recordMiss(ctx, key)
		return nil, false, nil
	}

	entry, valid := unmarshalEntry(raw)
	if !valid {
		m.misses.Add(1)
		m.metrics.RecordCacheAccess(ctx, false)
		m.recordHitRatio(ctx)
		return nil, false, nil
	}
	m.hits.Add(1)
	m.metrics.RecordCacheAccess(ctx, true)
	m.recordHitRatio(ctx)
	return entry.Value, true, nil
}

func (m *Manager) recordMiss(ctx context.Context, key string) {
	m.misses.Add(1)
	m.mu.Lock()
	m.removeFromTagsLocked(key)
	m.mu.Unlock()
	observability.LogCacheExpired(m.logger, key)
	m.metrics.RecordCacheAccess(ctx, false)
	m.recordHitRatio(ctx)
}

func (m *Manager) recordHitRatio(ctx context.Context) {
	hits, misses := m.hits.Load(), m.misses.Load()
	if hits+misses == 0 {
		return
	}
	m.metrics.RecordCacheHitRatio(ctx, float64(hits)/float64(hits+misses))
}

// Delete removes key and repairs the tag index. Returns existed=true iff a
// live entry was actually removed.
func (m *Manager) Delete(ctx context.Context, key string) (existed bool, err error) {
	if key == "" {
		return false, syroserr.New(syroserr.InvalidArgument, "key must not be empty")
	}

	existed, err = m.leases.Delete(ctx, key)
	if err != nil {
		return false, syroserr.Wrap(syroserr.StoreKind(err), err, "delete cache key %q", key)
	}

	m.mu.Lock()
	m.removeFromTagsLocked(key)
	m.mu.Unlock()

	return existed, nil
}

// InvalidateTag deletes every key currently indexed under tag, repairing
// each key's membership in every other tag's set, then drops tag itself.
func (m *Manager) InvalidateTag(ctx context.Context, tag string) (countInvalidated int, err error) {
	if tag == "" {
		return 0, syroserr.New(syroserr.InvalidArgument, "tag must not be empty")
	}

	m.mu.Lock()
	set, ok := m.tagIndex[tag]
	if !ok {
		m.mu.Unlock()
		return 0, nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	m.mu.Unlock()

	for _, key := range keys {
		if _, derr := m.leases.Delete(ctx, key); derr != nil {
			return countInvalidated, syroserr.Wrap(syroserr.StoreKind(derr), derr, "invalidate_tag %q: delete key %q", tag, key)
		}
		m.mu.Lock()
		m.removeFromTagsLocked(key)
		m.mu.Unlock()
		countInvalidated++
	}

	m.mu.Lock()
	delete(m.tagIndex, tag)
	m.mu.Unlock()

	m.evictions.Add(int64(countInvalidated))
	observability.LogCacheInvalidateTag(m.logger, tag, countInvalidated)
	return countInvalidated, nil
}

// Stats returns the manager's current index size and cumulative counters.
// Entries is the count of keys this process believes are live (a live key
// is tracked from Set until a Delete, expiry-discovered miss, or
// InvalidateTag removes it); it does not query the lease store directly.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Entries:   len(m.keyTags),
		TagCount:  len(m.tagIndex),
		HitCount:  m.hits.Load(),
		MissCount: m.misses.Load(),
		Evictions: m.evictions.Load(),
	}
}

// removeFromTagsLocked removes key from every tag set it currently appears
// in and drops its keyTags entry. Callers must hold m.mu for writing.
func (m *Manager) removeFromTagsLocked(key string) {
	for _, tag := range m.keyTags[key] {
		if set, ok := m.tagIndex[tag]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(m.tagIndex, tag)
			}
		}
	}
	delete(m.keyTags, key)
}
