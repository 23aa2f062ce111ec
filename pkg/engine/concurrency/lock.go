// Package concurrency provides the per-session mutual exclusion primitive.
// Locks are TTL bounded so a crashed holder can never deadlock a session.
package concurrency

import (
	"context"
	"fmt"
	"time"

	"audience-engine-be/internal/pkg/logger"
)

// LockStore is the atomic backend for session locks.
type LockStore interface {
	// Acquire sets the lock iff it is not held. Non-blocking.
	Acquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error)

	// Release deletes the lock iff holder still owns it.
	Release(ctx context.Context, key, holder string) (bool, error)
}

// Manager coordinates session locks.
type Manager struct {
	store  LockStore
	ttl    time.Duration
	logger logger.ILogger
}

func NewManager(store LockStore, ttl time.Duration, log logger.ILogger) *Manager {
	return &Manager{store: store, ttl: ttl, logger: log}
}

// AcquireLock attempts a non-blocking acquisition. A false return means the
// session is mid-pipeline elsewhere and the caller should surface
// "try again shortly" rather than queue.
func (m *Manager) AcquireLock(ctx context.Context, sessionId, holderId string) (bool, error) {
	acquired, err := m.store.Acquire(ctx, lockKey(sessionId), holderId, m.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire session lock: %w", err)
	}
	return acquired, nil
}

// ReleaseLock frees the lock if holderId still owns it. Safe to call from a
// deferred cleanup path; failures are logged, not returned, because by the
// time release runs the response is already decided.
func (m *Manager) ReleaseLock(ctx context.Context, sessionId, holderId string) {
	released, err := m.store.Release(ctx, lockKey(sessionId), holderId)
	if err != nil {
		m.logger.Error("Concurrency", "lock release failed", map[string]interface{}{
			"sessionId": sessionId,
			"error":     err.Error(),
		})
		return
	}
	if !released {
		// Expired and possibly re-acquired by someone else. The TTL already
		// healed it; just record the fact.
		m.logger.Warn("Concurrency", "lock was not held at release", map[string]interface{}{
			"sessionId": sessionId,
			"holderId":  holderId,
		})
	}
}

// WithLock runs fn under the session lock with a bounded backoff retry on
// contention.
func (m *Manager) WithLock(ctx context.Context, sessionId, holderId string, retries int, fn func() error) error {
	acquired := false
	for attempt := 0; attempt < retries; attempt++ {
		ok, err := m.AcquireLock(ctx, sessionId, holderId)
		if err != nil {
			return err
		}
		if ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 100 * time.Millisecond):
		}
	}
	if !acquired {
		return fmt.Errorf("failed to acquire lock for session %s after %d attempts", sessionId, retries)
	}

	defer m.ReleaseLock(ctx, sessionId, holderId)
	return fn()
}

func lockKey(sessionId string) string {
	return "lock:session:" + sessionId
}
