package concurrency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when the caller still holds it, so an
// expired lock re-acquired by another worker is never released by mistake.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLockStore implements LockStore on a shared redis instance, which makes
// the lock correct across multiple service instances.
type RedisLockStore struct {
	client *redis.Client
}

func NewRedisLockStore(client *redis.Client) *RedisLockStore {
	return &RedisLockStore{client: client}
}

func (s *RedisLockStore) Acquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, holder, ttl).Result()
}

func (s *RedisLockStore) Release(ctx context.Context, key, holder string) (bool, error) {
	deleted, err := releaseScript.Run(ctx, s.client, []string{key}, holder).Int()
	if err != nil {
		return false, err
	}
	return deleted == 1, nil
}
