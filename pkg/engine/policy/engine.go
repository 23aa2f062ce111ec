package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"audience-engine-be/internal/pkg/logger"
	"audience-engine-be/pkg/engine/decision"
	"audience-engine-be/pkg/engine/ratelimit"
)

// Engine runs the policy checks in a fixed order: security level first
// (blocking), then public privacy (overriding), then rate limits (blocking),
// then budget (overriding). The first block short-circuits.
type Engine struct {
	limiter *ratelimit.Limiter
	logger  logger.ILogger
}

func NewEngine(limiter *ratelimit.Limiter, log logger.ILogger) *Engine {
	return &Engine{limiter: limiter, logger: log}
}

// Check evaluates all policies against the input.
func (e *Engine) Check(ctx context.Context, input Input) CheckResult {
	var allApplied []Applied
	var allWarnings []Warning
	combined := &Overrides{}

	security := checkSecurityLevel(input)
	allApplied = append(allApplied, security.AppliedPolicies...)
	if !security.Allowed {
		security.AppliedPolicies = allApplied
		return security
	}
	allWarnings = append(allWarnings, security.Warnings...)
	combined = mergeOverrides(combined, security.Overrides)

	privacy := checkPublicPrivacy(input)
	allApplied = append(allApplied, privacy.AppliedPolicies...)
	allWarnings = append(allWarnings, privacy.Warnings...)
	combined = mergeOverrides(combined, privacy.Overrides)

	rate := checkRateLimit(ctx, e.limiter, input)
	allApplied = append(allApplied, rate.AppliedPolicies...)
	if !rate.Allowed {
		rate.Warnings = allWarnings
		rate.AppliedPolicies = allApplied
		return rate
	}
	allWarnings = append(allWarnings, rate.Warnings...)
	combined = mergeOverrides(combined, rate.Overrides)

	budget := checkBudget(input)
	allApplied = append(allApplied, budget.AppliedPolicies...)
	allWarnings = append(allWarnings, budget.Warnings...)
	combined = mergeOverrides(combined, budget.Overrides)

	result := CheckResult{
		Allowed:         true,
		Warnings:        allWarnings,
		AppliedPolicies: allApplied,
	}
	if !combined.isEmpty() {
		result.Overrides = combined
	}
	return result
}

// CheckAction limits quick action clicks separately from messages.
func (e *Engine) CheckAction(ctx context.Context, sessionId string) ratelimit.Verdict {
	return e.limiter.CheckAction(ctx, sessionId)
}

// ApplyOverrides folds policy overrides into the decision. UI directives
// merge shallowly; removeFromContext filters the context list.
func ApplyOverrides(d *decision.Result, overrides *Overrides) *decision.Result {
	if overrides == nil {
		return d
	}

	updated := *d

	if overrides.Handler != "" {
		updated.Handler = overrides.Handler
	}
	if overrides.SecurityLevel != "" {
		updated.SecurityLevel = overrides.SecurityLevel
	}
	if len(overrides.UIDirectives) > 0 {
		mergeUIDirectives(&updated.UIDirectives, overrides.UIDirectives)
	}
	if len(overrides.RemoveFromContext) > 0 {
		updated.ContextToInclude = removeStrings(updated.ContextToInclude, overrides.RemoveFromContext)
		updated.ResponseStrategy.ContextToInclude = updated.ContextToInclude
	}
	if overrides.ForceResponseTemplate != "" {
		updated.ResponseStrategy.Type = "template"
		updated.ResponseStrategy.TemplateId = overrides.ForceResponseTemplate
	}
	if overrides.ForceShortResponse {
		updated.UIDirectives.ResponseLength = "short"
	}
	return &updated
}

func mergeUIDirectives(target *decision.UIDirectives, partial map[string]interface{}) {
	base := map[string]interface{}{}
	if raw, err := json.Marshal(target); err == nil {
		_ = json.Unmarshal(raw, &base)
	}
	for k, v := range partial {
		if v == nil || v == "" {
			delete(base, k)
			continue
		}
		base[k] = v
	}
	if raw, err := json.Marshal(base); err == nil {
		fresh := decision.UIDirectives{}
		if json.Unmarshal(raw, &fresh) == nil {
			*target = fresh
		}
	}
}

func mergeOverrides(base, override *Overrides) *Overrides {
	if override == nil {
		return base
	}

	merged := *base
	if override.Handler != "" {
		merged.Handler = override.Handler
	}
	if override.SecurityLevel != "" {
		merged.SecurityLevel = override.SecurityLevel
	}
	if override.ForceResponseTemplate != "" {
		merged.ForceResponseTemplate = override.ForceResponseTemplate
	}
	merged.ForceShortResponse = merged.ForceShortResponse || override.ForceShortResponse

	if len(override.UIDirectives) > 0 {
		if merged.UIDirectives == nil {
			merged.UIDirectives = map[string]interface{}{}
		}
		for k, v := range override.UIDirectives {
			merged.UIDirectives[k] = v
		}
	}
	for _, item := range override.RemoveFromContext {
		if !containsString(merged.RemoveFromContext, item) {
			merged.RemoveFromContext = append(merged.RemoveFromContext, item)
		}
	}
	return &merged
}

func (o *Overrides) isEmpty() bool {
	return o.Handler == "" &&
		o.SecurityLevel == "" &&
		len(o.UIDirectives) == 0 &&
		len(o.RemoveFromContext) == 0 &&
		o.ForceResponseTemplate == "" &&
		!o.ForceShortResponse
}

func removeStrings(items, toRemove []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if !containsString(toRemove, item) {
			out = append(out, item)
		}
	}
	return out
}

// Summary renders the combined verdict for logs and event payloads.
func Summary(result CheckResult) string {
	parts := []string{"allowed"}
	if !result.Allowed {
		parts = []string{"blocked"}
	}
	if result.BlockedByRule != "" {
		parts = append(parts, "by:"+result.BlockedByRule)
	}
	if len(result.Warnings) > 0 {
		parts = append(parts, fmt.Sprintf("warnings:%d", len(result.Warnings)))
	}
	if result.Overrides != nil && !result.Overrides.isEmpty() {
		parts = append(parts, "overrides")
	}
	parts = append(parts, fmt.Sprintf("policies:%d", len(result.AppliedPolicies)))
	return strings.Join(parts, " ")
}
