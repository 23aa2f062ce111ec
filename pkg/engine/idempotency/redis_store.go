package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps idempotency records in redis so dedup holds across
// service instances.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, record Record, ttl time.Duration) (bool, *Record, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return false, nil, fmt.Errorf("marshal idempotency record: %w", err)
	}

	claimed, err := s.client.SetNX(ctx, record.Key, payload, ttl).Result()
	if err != nil {
		return false, nil, err
	}
	if claimed {
		return true, nil, nil
	}

	raw, err := s.client.Get(ctx, record.Key).Bytes()
	if err == redis.Nil {
		// Expired between SETNX and GET. Treat as claimed by retrying once.
		claimed, err := s.client.SetNX(ctx, record.Key, payload, ttl).Result()
		if err != nil {
			return false, nil, err
		}
		return claimed, nil, nil
	}
	if err != nil {
		return false, nil, err
	}

	var existing Record
	if err := json.Unmarshal(raw, &existing); err != nil {
		return false, nil, fmt.Errorf("unmarshal idempotency record: %w", err)
	}
	return false, &existing, nil
}

func (s *RedisStore) Overwrite(ctx context.Context, record Record, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}
	return s.client.Set(ctx, record.Key, payload, ttl).Err()
}
