package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a single-process Store used in tests and as the in-process
// fallback when redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
}

type memoryRecord struct {
	record    Record
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryRecord)}
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, record Record, ttl time.Duration) (bool, *Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.records[record.Key]; ok && existing.expiresAt.After(now) {
		r := existing.record
		return false, &r, nil
	}
	s.records[record.Key] = memoryRecord{record: record, expiresAt: now.Add(ttl)}
	return true, nil, nil
}

func (s *MemoryStore) Overwrite(_ context.Context, record Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.Key] = memoryRecord{record: record, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Prune drops expired records. The container sweeps periodically when the
// in-process fallback is active.
func (s *MemoryStore) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, r := range s.records {
		if now.After(r.expiresAt) {
			delete(s.records, key)
		}
	}
}
