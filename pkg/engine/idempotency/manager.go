// Package idempotency collapses retried and duplicate requests onto a single
// execution. The first claimant of a key runs the pipeline; everyone else
// gets the recorded result.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"audience-engine-be/internal/pkg/logger"
)

// Record status values.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Record is the stored claim for one idempotency key.
type Record struct {
	Key       string          `json:"key"`
	Status    string          `json:"status"`
	ClaimedBy string          `json:"claimedBy"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Store is the atomic backend for idempotency records.
type Store interface {
	// PutIfAbsent stores the record iff the key is free. Returns the record
	// already present otherwise.
	PutIfAbsent(ctx context.Context, record Record, ttl time.Duration) (claimed bool, existing *Record, err error)

	// Overwrite replaces the record unconditionally, keeping the TTL window.
	Overwrite(ctx context.Context, record Record, ttl time.Duration) error
}

// ClaimResult reports whether the caller may execute and, on replay, what the
// original execution produced.
type ClaimResult struct {
	Allowed      bool
	Replayed     bool
	CachedResult json.RawMessage
}

// Manager implements claim/complete on top of a Store.
type Manager struct {
	store  Store
	ttl    time.Duration
	logger logger.ILogger
}

func NewManager(store Store, ttl time.Duration, log logger.ILogger) *Manager {
	return &Manager{store: store, ttl: ttl, logger: log}
}

// Claim attempts to own the key. Semantics:
//   - key free: caller proceeds
//   - completed: caller must replay the cached result, not execute
//   - pending: another worker is executing right now; caller must not run
//   - failed: the previous attempt is retryable, caller takes over
//
// A store error fails open: losing dedup for one request is better than
// refusing the message.
func (m *Manager) Claim(ctx context.Context, key, claimantId string) ClaimResult {
	record := Record{
		Key:       key,
		Status:    StatusPending,
		ClaimedBy: claimantId,
		CreatedAt: time.Now().UTC(),
	}

	claimed, existing, err := m.store.PutIfAbsent(ctx, record, m.ttl)
	if err != nil {
		m.logger.Error("Idempotency", "claim failed, allowing request", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return ClaimResult{Allowed: true}
	}
	if claimed {
		return ClaimResult{Allowed: true}
	}
	if existing == nil {
		// Lost the claim race and the winner's record is not readable yet
		// (it expired or has not replicated). Treat as pending.
		return ClaimResult{Allowed: false}
	}

	switch existing.Status {
	case StatusCompleted:
		return ClaimResult{Allowed: false, Replayed: true, CachedResult: existing.Result}
	case StatusFailed:
		record.CreatedAt = time.Now().UTC()
		if err := m.store.Overwrite(ctx, record, m.ttl); err != nil {
			m.logger.Warn("Idempotency", "failed to reclaim failed key", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		return ClaimResult{Allowed: true}
	default: // pending
		return ClaimResult{Allowed: false}
	}
}

// Complete stores the final payload. Subsequent claims replay it verbatim.
func (m *Manager) Complete(ctx context.Context, key, claimantId string, result json.RawMessage) error {
	record := Record{
		Key:       key,
		Status:    StatusCompleted,
		ClaimedBy: claimantId,
		Result:    result,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.Overwrite(ctx, record, m.ttl); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Fail marks the claim retryable so the next duplicate executes again.
func (m *Manager) Fail(ctx context.Context, key, claimantId string) {
	record := Record{
		Key:       key,
		Status:    StatusFailed,
		ClaimedBy: claimantId,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.Overwrite(ctx, record, m.ttl); err != nil {
		m.logger.Warn("Idempotency", "failed to mark key failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

// BuildKey constructs the deterministic key for one logical request.
func BuildKey(accountId, sessionId, messageHash, clientMessageId string) string {
	return strings.Join([]string{"idem", accountId, sessionId, messageHash, clientMessageId}, ":")
}

// HashMessage digests the message text so transport retries with a different
// envelope still collapse onto the same key.
func HashMessage(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}
