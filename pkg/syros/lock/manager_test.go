package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wendelmax/syros/pkg/syros/clock"
	"github.com/wendelmax/syros/pkg/syros/config"
	"github.com/wendelmax/syros/pkg/syros/store"
	"github.com/wendelmax/syros/pkg/syros/syroserr"
)

func newTestManager() (*Manager, *clock.FixedClock) {
	c := clock.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewManager(store.NewMemoryLeaseStore(), c), c
}

func TestAcquireGrantsFreshLockID(t *testing.T) {
	m, _ := newTestManager()
	res, err := m.Acquire(context.Background(), "r", "owner-1", 30*time.Second, nil, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, res.LockID)
	assert.True(t, res.ExpiresAt.After(res.AcquiredAt))
}

func TestAcquireConflictsWithoutWait(t *testing.T) {
	m, _ := newTestManager()
	_, err := m.Acquire(context.Background(), "r", "owner-1", 30*time.Second, nil, 0)
	require.NoError(t, err)

	_, err = m.Acquire(context.Background(), "r", "owner-2", 30*time.Second, nil, 0)
	assert.True(t, syroserr.Is(err, syroserr.LockConflict))
}

func TestAcquireRejectsZeroTTL(t *testing.T) {
	m, _ := newTestManager()
	_, err := m.Acquire(context.Background(), "r", "owner-1", 0, nil, 0)
	assert.True(t, syroserr.Is(err, syroserr.InvalidArgument))
}

func TestReleaseIsIdempotent(t *testing.T) {
	m, _ := newTestManager()
	res, err := m.Acquire(context.Background(), "r", "owner-1", 30*time.Second, nil, 0)
	require.NoError(t, err)

	released, err := m.Release(context.Background(), "r", res.LockID, "owner-1")
	require.NoError(t, err)
	assert.True(t, released)

	released, err = m.Release(context.Background(), "r", res.LockID, "owner-1")
	require.NoError(t, err)
	assert.False(t, released, "second release of an already-released lock must not error")
}

func TestReleaseWithWrongOwnerFails(t *testing.T) {
	m, _ := newTestManager()
	res, err := m.Acquire(context.Background(), "r", "owner-1", 30*time.Second, nil, 0)
	require.NoError(t, err)

	released, err := m.Release(context.Background(), "r", res.LockID, "owner-2")
	require.NoError(t, err)
	assert.False(t, released)
}

func TestExtendPushesOutExpiry(t *testing.T) {
	m, c := newTestManager()
	res, err := m.Acquire(context.Background(), "r", "owner-1", 30*time.Second, nil, 0)
	require.NoError(t, err)

	c.Advance(10 * time.Second)
	ext, err := m.Extend(context.Background(), "r", res.LockID, 60*time.Second)
	require.NoError(t, err)
	assert.True(t, ext.NewExpiresAt.After(res.ExpiresAt))
}

func TestExtendFailsOnMismatchedLockID(t *testing.T) {
	m, _ := newTestManager()
	_, err := m.Acquire(context.Background(), "r", "owner-1", 30*time.Second, nil, 0)
	require.NoError(t, err)

	_, err = m.Extend(context.Background(), "r", "not-the-lock-id", 10*time.Second)
	assert.True(t, syroserr.Is(err, syroserr.LockConflict))
}

func TestExtendFailsWhenNoLiveLock(t *testing.T) {
	m, _ := newTestManager()
	_, err := m.Extend(context.Background(), "r", "whatever", 10*time.Second)
	assert.True(t, syroserr.Is(err, syroserr.LockNotFound))
}

func TestStatusReflectsHeldAndFreeKeys(t *testing.T) {
	m, _ := newTestManager()
	st, err := m.Status(context.Background(), "r")
	require.NoError(t, err)
	assert.False(t, st.IsLocked)

	res, err := m.Acquire(context.Background(), "r", "owner-1", 30*time.Second, map[string]string{"job": "x"}, 0)
	require.NoError(t, err)

	st, err = m.Status(context.Background(), "r")
	require.NoError(t, err)
	assert.True(t, st.IsLocked)
	assert.Equal(t, res.LockID, st.LockID)
	assert.Equal(t, "owner-1", st.Owner)
	assert.Equal(t, "x", st.Metadata["job"])
}

func TestAcquireWithWaitSucceedsAfterRelease(t *testing.T) {
	// Uses a real SystemClock (not the FixedClock the other tests share):
	// this test depends on a background release racing a real wait loop,
	// and FixedClock.Sleep advances without actually blocking.
	m := NewManager(store.NewMemoryLeaseStore(), clock.SystemClock{})
	res, err := m.Acquire(context.Background(), "r", "owner-1", 30*time.Second, nil, 0)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = m.Release(context.Background(), "r", res.LockID, "owner-1")
	}()

	waited, err := m.Acquire(context.Background(), "r", "owner-2", 30*time.Second, nil, 2*time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, res.LockID, waited.LockID)
}

func TestAcquireWaitTimesOut(t *testing.T) {
	m := NewManager(store.NewMemoryLeaseStore(), clock.SystemClock{})
	_, err := m.Acquire(context.Background(), "r", "owner-1", 30*time.Second, nil, 0)
	require.NoError(t, err)

	_, err = m.Acquire(context.Background(), "r", "owner-2", 30*time.Second, nil, 300*time.Millisecond)
	assert.True(t, syroserr.Is(err, syroserr.WaitTimeout))
}

func TestNewManagerFromConfigAppliesPollBounds(t *testing.T) {
	cfg := config.New(map[string]any{
		"lock.wait_poll_min_ms": 5,
		"lock.wait_poll_max_ms": 20,
	})
	m := NewManagerFromConfig(store.NewMemoryLeaseStore(), clock.SystemClock{}, cfg)
	assert.Equal(t, 5*time.Millisecond, m.minPoll)
	assert.Equal(t, 20*time.Millisecond, m.maxPoll)
}

func TestSetPollBoundsIgnoresInvalidValues(t *testing.T) {
	m, _ := newTestManager()
	before := m.minPoll
	m.SetPollBounds(0, time.Second)
	assert.Equal(t, before, m.minPoll, "non-positive min must be rejected")
	m.SetPollBounds(time.Second, 10*time.Millisecond)
	assert.Equal(t, before, m.minPoll, "max below min must be rejected")
}

func TestMutualExclusionUnderContention(t *testing.T) {
	m, _ := newTestManager()
	const n = 10
	var wg sync.WaitGroup
	successes := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Acquire(context.Background(), "r", "owner", 30*time.Second, nil, 0)
			successes[i] = err == nil
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range successes {
		if ok {
			count++
		}
	}
	assert.Equal(t, 1, count, "exactly one acquire must succeed under contention")
}
