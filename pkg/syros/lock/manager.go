package lock

import (
	"context"
	"log/slog"
	"time"

	"github.com/wendelmax/syros/pkg/syros/clock"
	"github.com/wendelmax/syros/pkg/syros/config"
	"github.com/wendelmax/syros/pkg/syros/idgen"
	"github.com/wendelmax/syros/pkg/syros/observability"
	"github.com/wendelmax/syros/pkg/syros/store"
	"github.com/wendelmax/syros/pkg/syros/syroserr"
)

// Manager implements LockManager over a store.LeaseStore.
type Manager struct {
	leases  store.LeaseStore
	clock   clock.Clock
	logger  *slog.Logger
	metrics observability.MetricsRecorder

	minPoll time.Duration
	maxPoll time.Duration
}

// NewManager builds a Manager backed by leases, using c as the time source
// for acquired_at/expires_at and for the bounded-wait poll loop. Logging and
// metrics are no-ops until SetLogger/SetMetrics are called. The poll bounds
// start at their package defaults; call SetPollBounds or build with
// NewManagerFromConfig to override them via
// lock.wait_poll_min_ms/wait_poll_max_ms.
func NewManager(leases store.LeaseStore, c clock.Clock) *Manager {
	return &Manager{
		leases:  leases,
		clock:   c,
		metrics: observability.NoopMetrics{},
		minPoll: defaultMinPollInterval,
		maxPoll: defaultMaxPollInterval,
	}
}

// NewManagerFromConfig builds a Manager the same way NewManager does, then
// applies cfg's lock.* options to the acquire poll bounds.
func NewManagerFromConfig(leases store.LeaseStore, c clock.Clock, cfg config.Config) *Manager {
	m := NewManager(leases, c)
	opts := cfg.Lock()
	m.SetPollBounds(opts.WaitPollMin, opts.WaitPollMax)
	return m
}

// SetPollBounds overrides the bounded-wait poll interval range used by
// Acquire. Values <= 0, or a max below min, are ignored and the previous
// bounds are kept.
func (m *Manager) SetPollBounds(min, max time.Duration) {
	if min <= 0 || max <= 0 || max < min {
		return
	}
	m.minPoll = min
	m.maxPoll = max
}

// SetLogger attaches a structured logger for lock lifecycle events.
func (m *Manager) SetLogger(logger *slog.Logger) { m.logger = logger }

// SetMetrics attaches a metrics recorder for acquire latency and outcomes.
func (m *Manager) SetMetrics(metrics observability.MetricsRecorder) {
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	m.metrics = metrics
}

// Acquire attempts to atomically create a lease for key. If key is already
// held and waitTimeout is 0, Acquire fails immediately with LockConflict. If
// waitTimeout is positive, Acquire polls with bounded exponential backoff
// (50ms to 500ms unless changed by SetPollBounds) until the key frees or
// waitTimeout elapses, at which point
// it fails with WaitTimeout. Cancelling ctx mid-wait abandons the wait with
// no side effects.
func (m *Manager) Acquire(ctx context.Context, key, owner string, ttl time.Duration, metadata map[string]string, waitTimeout time.Duration) (*AcquireResult, error) {
	if key == "" {
		return nil, syroserr.New(syroserr.InvalidArgument, "key must not be empty")
	}
	if owner == "" {
		return nil, syroserr.New(syroserr.InvalidArgument, "owner must not be empty")
	}
	if ttl <= 0 {
		return nil, syroserr.New(syroserr.InvalidArgument, "ttl_seconds must be positive")
	}

	started := m.clock.Now()
	result, acquired, err := m.tryAcquire(ctx, key, owner, ttl, metadata)
	if err != nil {
		return nil, err
	}
	if acquired {
		m.recordAcquire(ctx, key, owner, result, 0, true)
		return result, nil
	}
	if waitTimeout <= 0 {
		m.metrics.RecordLockAcquire(ctx, 0, false)
		return nil, syroserr.New(syroserr.LockConflict, "key %q is held by another owner", key)
	}

	deadline := m.clock.Now().Add(waitTimeout)
	interval := m.minPoll
	for {
		remaining := deadline.Sub(m.clock.Now())
		if remaining <= 0 {
			waited := m.clock.Now().Sub(started)
			m.metrics.RecordLockAcquire(ctx, waited, false)
			observability.LogLockWaitTimeout(m.logger, key, owner, float64(waited.Milliseconds()))
			return nil, syroserr.New(syroserr.WaitTimeout, "acquire of key %q timed out after %s", key, waitTimeout)
		}

		wait := interval
		if wait > remaining {
			wait = remaining
		}
		if err := m.clock.Sleep(ctx, wait); err != nil {
			return nil, syroserr.Wrap(syroserr.Internal, err, "acquire wait cancelled")
		}

		result, acquired, err = m.tryAcquire(ctx, key, owner, ttl, metadata)
		if err != nil {
			return nil, err
		}
		if acquired {
			m.recordAcquire(ctx, key, owner, result, m.clock.Now().Sub(started), true)
			return result, nil
		}

		interval *= 2
		if interval > m.maxPoll {
			interval = m.maxPoll
		}
	}
}

func (m *Manager) recordAcquire(ctx context.Context, key, owner string, result *AcquireResult, waited time.Duration, success bool) {
	m.metrics.RecordLockAcquire(ctx, waited, success)
	observability.LogLockAcquired(m.logger, key, result.LockID, owner, float64(waited.Milliseconds()))
}

func (m *Manager) tryAcquire(ctx context.Context, key, owner string, ttl time.Duration, metadata map[string]string) (*AcquireResult, bool, error) {
	now := m.clock.Now()
	rec := &record{
		LockID:     idgen.New(),
		Owner:      owner,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
		Metadata:   metadata,
	}

	ok, err := m.leases.SetNX(ctx, key, rec.marshal(), ttl)
	if err != nil {
		return nil, false, syroserr.Wrap(syroserr.StoreKind(err), err, "acquire lease for key %q", key)
	}
	if !ok {
		return nil, false, nil
	}
	return &AcquireResult{LockID: rec.LockID, AcquiredAt: rec.AcquiredAt, ExpiresAt: rec.ExpiresAt}, true, nil
}

// Release removes the lease for key iff its current holder matches both
// lockID and owner. A release targeting a stale or mismatched lock is not
// an error: it reports Released=false so clients can retry idempotently.
func (m *Manager) Release(ctx context.Context, key, lockID, owner string) (released bool, err error) {
	if key == "" || lockID == "" {
		return false, syroserr.New(syroserr.InvalidArgument, "key and lock_id must not be empty")
	}

	current, ok, err := m.leases.Get(ctx, key)
	if err != nil {
		return false, syroserr.Wrap(syroserr.StoreKind(err), err, "read lease for key %q", key)
	}
	if !ok {
		return false, nil
	}
	rec, valid := unmarshalRecord(current)
	if !valid || rec.LockID != lockID || rec.Owner != owner {
		return false, nil
	}

	deleted, err := m.leases.CompareAndDelete(ctx, key, current)
	if err != nil {
		return false, syroserr.Wrap(syroserr.StoreKind(err), err, "release lease for key %q", key)
	}
	observability.LogLockReleased(m.logger, key, lockID, deleted)
	return deleted, nil
}

// Extend pushes out the expiry of the lock held by lockID on key to
// now + additional. LockNotFound if no live record exists; LockConflict if a
// live record exists under a different lock_id.
func (m *Manager) Extend(ctx context.Context, key, lockID string, additional time.Duration) (*ExtendResult, error) {
	if key == "" || lockID == "" {
		return nil, syroserr.New(syroserr.InvalidArgument, "key and lock_id must not be empty")
	}
	if additional <= 0 {
		return nil, syroserr.New(syroserr.InvalidArgument, "additional_seconds must be positive")
	}

	current, ok, err := m.leases.Get(ctx, key)
	if err != nil {
		return nil, syroserr.Wrap(syroserr.StoreKind(err), err, "read lease for key %q", key)
	}
	if !ok {
		return nil, syroserr.New(syroserr.LockNotFound, "no live lock for key %q", key)
	}
	rec, valid := unmarshalRecord(current)
	if !valid || rec.LockID != lockID {
		return nil, syroserr.New(syroserr.LockConflict, "key %q is held by a different lock_id", key)
	}

	newExpiry := m.clock.Now().Add(additional)
	updated := &record{LockID: rec.LockID, Owner: rec.Owner, AcquiredAt: rec.AcquiredAt, ExpiresAt: newExpiry, Metadata: rec.Metadata}

	swapped, err := m.leases.CompareAndSwap(ctx, key, current, updated.marshal(), additional)
	if err != nil {
		return nil, syroserr.Wrap(syroserr.StoreKind(err), err, "extend lease for key %q", key)
	}
	if !swapped {
		return nil, syroserr.New(syroserr.LockConflict, "key %q changed concurrently during extend", key)
	}
	return &ExtendResult{NewExpiresAt: newExpiry}, nil
}

// Status reports whether key is currently held, without side effects.
// is_locked=false on a record that has expired but not yet been swept by the
// lease store is fine; a subsequent Acquire will succeed.
func (m *Manager) Status(ctx context.Context, key string) (*Status, error) {
	if key == "" {
		return nil, syroserr.New(syroserr.InvalidArgument, "key must not be empty")
	}

	current, ok, err := m.leases.Get(ctx, key)
	if err != nil {
		return nil, syroserr.Wrap(syroserr.StoreKind(err), err, "read lease for key %q", key)
	}
	if !ok {
		return &Status{IsLocked: false}, nil
	}
	rec, valid := unmarshalRecord(current)
	if !valid {
		return &Status{IsLocked: false}, nil
	}
	return &Status{
		IsLocked:   true,
		LockID:     rec.LockID,
		Owner:      rec.Owner,
		AcquiredAt: rec.AcquiredAt,
		ExpiresAt:  rec.ExpiresAt,
		Metadata:   rec.Metadata,
	}, nil
}
