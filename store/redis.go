package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// compareAndSwapLua performs GET -> compare -> SET/DEL atomically.
// KEYS[1] = key
// ARGV[1] = "1" when an old value is expected, "0" when the key must be absent
// ARGV[2] = expected old value
// ARGV[3] = "1" to delete instead of set
// ARGV[4] = next value
// ARGV[5] = ttl in milliseconds (0 = no expiry)
//
// Returns 1 when the swap happened, 0 otherwise.
var compareAndSwapLua = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if ARGV[1] == '1' then
  if not current or current ~= ARGV[2] then
    return 0
  end
elseif current then
  return 0
end

if ARGV[3] == '1' then
  redis.call('DEL', KEYS[1])
  return 1
end

local ttl = tonumber(ARGV[5])
if ttl > 0 then
  redis.call('SET', KEYS[1], ARGV[4], 'PX', ttl)
else
  redis.call('SET', KEYS[1], ARGV[4])
end
return 1
`)

// RedisStore is a [Store] backed by Redis. State survives process restarts
// and can be shared by several instances.
type RedisStore struct {
	redis redis.UniversalClient
}

// NewRedisStore wraps an existing go-redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{redis: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return data, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.redis.Set(ctx, key, value, redisTTL(ttl)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, key string, old, next []byte, ttl time.Duration) (bool, error) {
	expectOld := "0"
	if old != nil {
		expectOld = "1"
	}
	del := "0"
	if next == nil {
		del = "1"
	}

	res, err := compareAndSwapLua.Run(ctx, s.redis,
		[]string{key},
		expectOld,
		string(old),
		del,
		string(next),
		redisTTL(ttl).Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res == 1, nil
}

// Ping reports whether the backing Redis answers.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// redisTTL rounds sub-millisecond TTLs up so PX never receives 0.
func redisTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	if ttl < time.Millisecond {
		return time.Millisecond
	}
	return ttl
}
