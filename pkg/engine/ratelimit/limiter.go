// Package ratelimit implements fixed-window request counting per session,
// anonymous visitor, and account, plus a separate counter for quick actions.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"audience-engine-be/internal/pkg/logger"
)

// Scope names reported back to policy checks.
const (
	ScopeSession = "session"
	ScopeAnon    = "anon"
	ScopeAccount = "account"
	ScopeAction  = "action"
)

// CounterStore increments a windowed counter and reports the new value.
type CounterStore interface {
	// Increment bumps the counter for key, starting a fresh window when none
	// is active, and returns the count within the current window along with
	// the window's expiry time.
	Increment(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)

	// Peek reads the current count without consuming any allowance. A key
	// with no active window reads as zero.
	Peek(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Rule describes one scope's ceiling.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Config carries the rules for all scopes.
type Config struct {
	Session Rule
	Anon    Rule
	Account Rule
	Action  Rule
}

// Verdict is the outcome of one scope check.
type Verdict struct {
	Scope     string
	Allowed   bool
	Count     int64
	Limit     int
	Remaining int64
	ResetAt   time.Time
}

// Limiter checks the message scopes in tightest-first order and stops at the
// first exceeded one.
type Limiter struct {
	store  CounterStore
	config Config
	logger logger.ILogger
}

func NewLimiter(store CounterStore, config Config, log logger.ILogger) *Limiter {
	return &Limiter{store: store, config: config, logger: log}
}

// CheckMessage runs the session, anon, and account counters for one inbound
// message. The returned verdict is the first scope that blocked, or the
// account scope verdict when everything passed. A store error fails open.
func (l *Limiter) CheckMessage(ctx context.Context, accountId, sessionId, anonId string) Verdict {
	checks := []struct {
		scope string
		key   string
		rule  Rule
	}{
		{ScopeSession, "rl:session:" + sessionId, l.config.Session},
		{ScopeAnon, "rl:anon:" + accountId + ":" + anonId, l.config.Anon},
		{ScopeAccount, "rl:account:" + accountId, l.config.Account},
	}

	var last Verdict
	for _, c := range checks {
		v := l.check(ctx, c.scope, c.key, c.rule)
		if !v.Allowed {
			return v
		}
		last = v
	}
	return last
}

// SessionRemaining reports how many messages the session may still send in
// the current window, without consuming allowance. Guards and context
// snapshots read this before the request's own counter tick. A store error
// fails open to the full limit.
func (l *Limiter) SessionRemaining(ctx context.Context, sessionId string) (int64, time.Time) {
	rule := l.config.Session
	count, resetAt, err := l.store.Peek(ctx, "rl:session:"+sessionId, rule.Window)
	if err != nil {
		l.logger.Warn("RateLimit", "counter peek failed, assuming full allowance", map[string]interface{}{
			"sessionId": sessionId,
			"error":     err.Error(),
		})
		return int64(rule.Limit), time.Now().Add(rule.Window)
	}

	remaining := int64(rule.Limit) - count
	if remaining < 0 {
		remaining = 0
	}
	if resetAt.IsZero() {
		resetAt = time.Now().Add(rule.Window)
	}
	return remaining, resetAt
}

// CheckAction counts quick action clicks per session.
func (l *Limiter) CheckAction(ctx context.Context, sessionId string) Verdict {
	return l.check(ctx, ScopeAction, "rl:action:"+sessionId, l.config.Action)
}

func (l *Limiter) check(ctx context.Context, scope, key string, rule Rule) Verdict {
	count, resetAt, err := l.store.Increment(ctx, key, rule.Window)
	if err != nil {
		l.logger.Error("RateLimit", "counter increment failed, allowing request", map[string]interface{}{
			"scope": scope,
			"error": err.Error(),
		})
		return Verdict{Scope: scope, Allowed: true, Limit: rule.Limit, ResetAt: time.Now().Add(rule.Window)}
	}

	remaining := int64(rule.Limit) - count
	if remaining < 0 {
		remaining = 0
	}
	return Verdict{
		Scope:     scope,
		Allowed:   count <= int64(rule.Limit),
		Count:     count,
		Limit:     rule.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// Summary renders the verdict for logs and event payloads.
func (v Verdict) Summary() string {
	return fmt.Sprintf("%s %d/%d", v.Scope, v.Count, v.Limit)
}
