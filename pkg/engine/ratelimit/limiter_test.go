package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type nopLogger struct{}

func (nopLogger) Debug(string, string, map[string]interface{}) {}
func (nopLogger) Info(string, string, map[string]interface{})  {}
func (nopLogger) Warn(string, string, map[string]interface{})  {}
func (nopLogger) Error(string, string, map[string]interface{}) {}
func (nopLogger) Sync() error                                  { return nil }

func testConfig() Config {
	return Config{
		Session: Rule{Limit: 3, Window: time.Minute},
		Anon:    Rule{Limit: 5, Window: time.Minute},
		Account: Rule{Limit: 10, Window: time.Minute},
		Action:  Rule{Limit: 2, Window: time.Minute},
	}
}

func TestCheckMessageWithinLimit(t *testing.T) {
	l := NewLimiter(NewMemoryCounterStore(), testConfig(), nopLogger{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v := l.CheckMessage(ctx, "acct", "sess", "anon")
		assert.True(t, v.Allowed, "message %d should pass", i+1)
	}
}

func TestCheckMessageBlocksSessionScopeFirst(t *testing.T) {
	l := NewLimiter(NewMemoryCounterStore(), testConfig(), nopLogger{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.CheckMessage(ctx, "acct", "sess", "anon")
	}

	v := l.CheckMessage(ctx, "acct", "sess", "anon")
	assert.False(t, v.Allowed)
	assert.Equal(t, ScopeSession, v.Scope, "session is the tightest scope and must trip first")
	assert.EqualValues(t, 4, v.Count)
	assert.EqualValues(t, 0, v.Remaining)
}

func TestCheckMessageAccountScopeAcrossSessions(t *testing.T) {
	l := NewLimiter(NewMemoryCounterStore(), testConfig(), nopLogger{})
	ctx := context.Background()

	// Spread 10 messages over many sessions and visitors so only the
	// account counter accumulates.
	for i := 0; i < 10; i++ {
		v := l.CheckMessage(ctx, "acct", fmt.Sprintf("sess-%d", i), fmt.Sprintf("anon-%d", i))
		assert.True(t, v.Allowed)
	}

	v := l.CheckMessage(ctx, "acct", "sess-new", "anon-new")
	assert.False(t, v.Allowed)
	assert.Equal(t, ScopeAccount, v.Scope)
}

func TestCheckMessageWindowReset(t *testing.T) {
	cfg := testConfig()
	cfg.Session = Rule{Limit: 1, Window: 20 * time.Millisecond}
	l := NewLimiter(NewMemoryCounterStore(), cfg, nopLogger{})
	ctx := context.Background()

	assert.True(t, l.CheckMessage(ctx, "acct", "sess", "anon").Allowed)
	assert.False(t, l.CheckMessage(ctx, "acct", "sess", "anon").Allowed)

	time.Sleep(30 * time.Millisecond)
	assert.True(t, l.CheckMessage(ctx, "acct", "sess", "anon").Allowed, "new window must reset the counter")
}

func TestCheckAction(t *testing.T) {
	l := NewLimiter(NewMemoryCounterStore(), testConfig(), nopLogger{})
	ctx := context.Background()

	assert.True(t, l.CheckAction(ctx, "sess").Allowed)
	assert.True(t, l.CheckAction(ctx, "sess").Allowed)

	v := l.CheckAction(ctx, "sess")
	assert.False(t, v.Allowed)
	assert.Equal(t, ScopeAction, v.Scope)
}

func TestSessionRemainingDoesNotConsume(t *testing.T) {
	l := NewLimiter(NewMemoryCounterStore(), testConfig(), nopLogger{})
	ctx := context.Background()

	remaining, _ := l.SessionRemaining(ctx, "sess")
	assert.EqualValues(t, 3, remaining, "an untouched session has the full allowance")

	l.CheckMessage(ctx, "acct", "sess", "anon")
	l.CheckMessage(ctx, "acct", "sess", "anon")

	remaining, resetAt := l.SessionRemaining(ctx, "sess")
	assert.EqualValues(t, 1, remaining)
	assert.False(t, resetAt.IsZero())

	// Peeking twice must not move the counter.
	remaining, _ = l.SessionRemaining(ctx, "sess")
	assert.EqualValues(t, 1, remaining)
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, fmt.Errorf("store down")
}

func (failingStore) Peek(context.Context, string, time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, fmt.Errorf("store down")
}

func TestCheckMessageFailsOpenOnStoreError(t *testing.T) {
	l := NewLimiter(failingStore{}, testConfig(), nopLogger{})

	v := l.CheckMessage(context.Background(), "acct", "sess", "anon")
	assert.True(t, v.Allowed, "a broken counter store must not block traffic")

	remaining, _ := l.SessionRemaining(context.Background(), "sess")
	assert.EqualValues(t, 3, remaining, "a broken peek assumes the full allowance")
}
