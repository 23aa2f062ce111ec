package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript bumps the counter and stamps the window TTL atomically on the
// first hit, so a crash between INCR and EXPIRE cannot leave an immortal key.
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// RedisCounterStore implements CounterStore on shared redis so windows are
// enforced across all service instances.
type RedisCounterStore struct {
	client *redis.Client
}

func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

func (s *RedisCounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	res, err := incrScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, err
	}

	count := res[0]
	ttlMs := res[1]
	if ttlMs < 0 {
		ttlMs = window.Milliseconds()
	}
	return count, time.Now().Add(time.Duration(ttlMs) * time.Millisecond), nil
}

// peekScript reads the counter and its TTL without touching either.
var peekScript = redis.NewScript(`
local count = redis.call("GET", KEYS[1])
if not count then
	return {0, -1}
end
local ttl = redis.call("PTTL", KEYS[1])
return {tonumber(count), ttl}
`)

func (s *RedisCounterStore) Peek(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	res, err := peekScript.Run(ctx, s.client, []string{key}).Int64Slice()
	if err != nil {
		return 0, time.Time{}, err
	}

	count := res[0]
	ttlMs := res[1]
	if count == 0 {
		return 0, time.Time{}, nil
	}
	if ttlMs < 0 {
		ttlMs = window.Milliseconds()
	}
	return count, time.Now().Add(time.Duration(ttlMs) * time.Millisecond), nil
}
