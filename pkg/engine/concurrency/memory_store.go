package concurrency

import (
	"context"
	"sync"
	"time"
)

// MemoryLockStore is a single-process LockStore used in tests. It mirrors
// the redis semantics including TTL expiry and owner-checked release.
type MemoryLockStore struct {
	mu    sync.Mutex
	locks map[string]memoryLock
}

type memoryLock struct {
	holder    string
	expiresAt time.Time
}

func NewMemoryLockStore() *MemoryLockStore {
	return &MemoryLockStore{locks: make(map[string]memoryLock)}
}

func (s *MemoryLockStore) Acquire(_ context.Context, key, holder string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.locks[key]; ok && existing.expiresAt.After(now) {
		return false, nil
	}
	s.locks[key] = memoryLock{holder: holder, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *MemoryLockStore) Release(_ context.Context, key, holder string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.locks[key]
	if !ok || existing.holder != holder || existing.expiresAt.Before(time.Now()) {
		return false, nil
	}
	delete(s.locks, key)
	return true, nil
}

// Prune drops expired locks. Releases already delete eagerly; this catches
// locks whose holder died before releasing.
func (s *MemoryLockStore) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, l := range s.locks {
		if l.expiresAt.Before(now) {
			delete(s.locks, key)
		}
	}
}
