package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLeaseStore is the production LeaseStore, backing LockManager and
// CacheManager against a shared Redis instance: atomic SET NX EX for
// acquisition, and Lua-scripted compare-and-delete /
// compare-and-swap so the "check the owner, then mutate" sequences release
// and extend need are race-free without a client-side lock.
type RedisLeaseStore struct {
	client redis.UniversalClient
}

// NewRedisLeaseStore wraps an existing Redis client. The caller owns the
// client's lifecycle (pool sizing, TLS, auth); this store only issues
// commands against it.
func NewRedisLeaseStore(client redis.UniversalClient) *RedisLeaseStore {
	return &RedisLeaseStore{client: client}
}

// compareAndDeleteScript deletes key only if its current value equals ARGV[1].
var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// compareAndSwapScript replaces key's value and TTL only if its current
// value equals ARGV[1].
var compareAndSwapScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	return 1
else
	return 0
end
`)

// SetNX implements LeaseStore.
func (s *RedisLeaseStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Get implements LeaseStore.
func (s *RedisLeaseStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// CompareAndDelete implements LeaseStore.
func (s *RedisLeaseStore) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	res, err := compareAndDeleteScript.Run(ctx, s.client, []string{key}, expected).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// CompareAndSwap implements LeaseStore.
func (s *RedisLeaseStore) CompareAndSwap(ctx context.Context, key string, expected, newValue []byte, ttl time.Duration) (bool, error) {
	res, err := compareAndSwapScript.Run(ctx, s.client, []string{key}, expected, newValue, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Delete implements LeaseStore.
func (s *RedisLeaseStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Compile-time check that RedisLeaseStore implements LeaseStore.
var _ LeaseStore = (*RedisLeaseStore)(nil)
