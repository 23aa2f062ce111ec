package idempotency

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(string, string, map[string]interface{}) {}
func (nopLogger) Info(string, string, map[string]interface{})  {}
func (nopLogger) Warn(string, string, map[string]interface{})  {}
func (nopLogger) Error(string, string, map[string]interface{}) {}
func (nopLogger) Sync() error                                  { return nil }

func newTestManager() *Manager {
	return NewManager(NewMemoryStore(), time.Minute, nopLogger{})
}

func TestClaimFirstWins(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	first := m.Claim(ctx, "idem:a:s:h:m1", "worker-1")
	assert.True(t, first.Allowed)
	assert.False(t, first.Replayed)

	// Duplicate while still pending must not run.
	second := m.Claim(ctx, "idem:a:s:h:m1", "worker-2")
	assert.False(t, second.Allowed)
	assert.False(t, second.Replayed)
}

func TestClaimReplaysCompletedResult(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	key := "idem:a:s:h:m2"

	claim := m.Claim(ctx, key, "worker-1")
	require.True(t, claim.Allowed)

	result := json.RawMessage(`{"text":"היי! איך אפשר לעזור?"}`)
	require.NoError(t, m.Complete(ctx, key, "worker-1", result))

	replay := m.Claim(ctx, key, "worker-2")
	assert.False(t, replay.Allowed)
	assert.True(t, replay.Replayed)
	assert.JSONEq(t, string(result), string(replay.CachedResult))
}

func TestClaimRetriesAfterFailure(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	key := "idem:a:s:h:m3"

	claim := m.Claim(ctx, key, "worker-1")
	require.True(t, claim.Allowed)

	m.Fail(ctx, key, "worker-1")

	retry := m.Claim(ctx, key, "worker-2")
	assert.True(t, retry.Allowed, "failed attempts must be retryable")
	assert.False(t, retry.Replayed)

	// And the retry claim now holds the key as pending.
	third := m.Claim(ctx, key, "worker-3")
	assert.False(t, third.Allowed)
}

func TestClaimExpiredKeyIsFree(t *testing.T) {
	m := NewManager(NewMemoryStore(), 10*time.Millisecond, nopLogger{})
	ctx := context.Background()
	key := "idem:a:s:h:m4"

	require.True(t, m.Claim(ctx, key, "worker-1").Allowed)
	time.Sleep(20 * time.Millisecond)

	assert.True(t, m.Claim(ctx, key, "worker-2").Allowed)
}

// racingStore simulates the redis expiry race: the key is taken, but the
// winning record expires before it can be read back.
type racingStore struct{}

func (racingStore) PutIfAbsent(context.Context, Record, time.Duration) (bool, *Record, error) {
	return false, nil, nil
}

func (racingStore) Overwrite(context.Context, Record, time.Duration) error { return nil }

func TestClaimLostRaceWithoutRecordIsPending(t *testing.T) {
	m := NewManager(racingStore{}, time.Minute, nopLogger{})

	claim := m.Claim(context.Background(), "idem:a:s:h:m5", "worker-1")
	assert.False(t, claim.Allowed)
	assert.False(t, claim.Replayed)
}

func TestBuildKey(t *testing.T) {
	key := BuildKey("acct-1", "sess-1", "deadbeef", "client-42")
	assert.Equal(t, "idem:acct-1:sess-1:deadbeef:client-42", key)
}

func TestHashMessageStable(t *testing.T) {
	a := HashMessage("יש לי בעיה עם הזמנה 12345")
	b := HashMessage("יש לי בעיה עם הזמנה 12345")
	c := HashMessage("הודעה אחרת")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}
