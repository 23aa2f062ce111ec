package policy

import (
	"context"
	"fmt"
	"time"

	"audience-engine-be/internal/metrics"
	"audience-engine-be/pkg/engine/decision"
	"audience-engine-be/pkg/engine/ratelimit"
)

const (
	rateLimitPolicyId   = "rate_limit"
	rateLimitPolicyName = "Rate Limiting"
)

// checkRateLimit counts this message against the session, anon, and account
// windows. The tightest scope blocks first. An account overage does not get
// a visible reply; the handler downgrades to notification_only so the owner
// hears about it instead.
func checkRateLimit(ctx context.Context, limiter *ratelimit.Limiter, input Input) CheckResult {
	applied := Applied{
		Id:        rateLimitPolicyId,
		Name:      rateLimitPolicyName,
		Category:  CategoryRateLimit,
		Result:    ResultAllow,
		AppliedAt: time.Now().UTC(),
	}

	verdict := limiter.CheckMessage(ctx,
		input.Ctx.Account.Id,
		input.Ctx.Session.Id,
		input.Ctx.User.AnonId,
	)
	if verdict.Allowed {
		return CheckResult{Allowed: true, AppliedPolicies: []Applied{applied}}
	}

	applied.Result = ResultBlock
	metrics.RateLimitHits.WithLabelValues(string(verdict.Scope)).Inc()
	result := CheckResult{
		Allowed:         false,
		BlockedByRule:   rateLimitPolicyId,
		AppliedPolicies: []Applied{applied},
	}

	switch verdict.Scope {
	case ratelimit.ScopeSession:
		retryAfter := int(time.Until(verdict.ResetAt).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		result.BlockedReason = fmt.Sprintf("רגע, אתה שולח יותר מדי הודעות. נסה שוב בעוד %d שניות", retryAfter)
		result.Overrides = &Overrides{
			Handler:               decision.HandlerChat,
			ForceResponseTemplate: "rate_limit_exceeded",
			UIDirectives: map[string]interface{}{
				"responseLength":   "short",
				"showQuickActions": []string{"נסה שוב בעוד דקה"},
			},
		}
	case ratelimit.ScopeAccount:
		result.BlockedReason = "הגעת למגבלת ההודעות. נסה שוב בעוד כמה דקות"
		result.Overrides = &Overrides{
			Handler:               decision.HandlerNotificationOnly,
			ForceResponseTemplate: "account_rate_limit",
		}
	default: // anon
		result.BlockedReason = "יותר מדי פעולות. נסה שוב בעוד כמה דקות"
	}
	return result
}
