package decision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"audience-engine-be/internal/pkg/logger"
)

// Engine is the deterministic rule pass. Same context, understanding, and
// rule set always produce the same decision.
type Engine struct {
	registry RuleRegistry
	logger   logger.ILogger
}

func NewEngine(registry RuleRegistry, log logger.ILogger) *Engine {
	return &Engine{registry: registry, logger: log}
}

// Decide builds the default decision and folds every matching rule into it,
// in ascending priority order.
func (e *Engine) Decide(ctx context.Context, input Input) *Result {
	decision := buildDefaultDecision(input)
	rules := e.registry.RulesFor(ctx, input.Ctx.Account.Id)

	root := newEvalRoot(input, decision)
	applied := make([]Application, 0, 4)

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if rule.Mode != "both" && rule.Mode != input.Ctx.Account.Mode {
			continue
		}
		if rule.AccountId != "" && rule.AccountId != input.Ctx.Account.Id {
			continue
		}

		if !conditionsMatch(root, rule.Conditions) {
			continue
		}

		for _, action := range rule.Actions {
			applyAction(decision, action, input.Ctx)
		}
		root.refreshDecision(decision)

		applied = append(applied, Application{
			RuleId:    rule.Id,
			Name:      rule.Name,
			Category:  rule.Category,
			Priority:  rule.Priority,
			AppliedAt: time.Now().UTC(),
		})
	}

	decision.RulesApplied = applied
	if len(applied) > 0 {
		names := make([]string, len(applied))
		for i, a := range applied {
			names[i] = a.Name
		}
		decision.Reasoning = fmt.Sprintf("Applied %d rules: %s", len(applied), strings.Join(names, ", "))
	} else {
		decision.Reasoning = "No rules matched, using default decision"
	}

	e.logger.Debug("Decision", "decision made", map[string]interface{}{
		"handler":       decision.Handler,
		"action":        decision.Action,
		"securityLevel": decision.SecurityLevel,
		"rulesApplied":  len(applied),
		"model":         ModelSummary(decision),
	})
	return decision
}

func conditionsMatch(root *evalRoot, conditions []Condition) bool {
	for _, cond := range conditions {
		if !root.matches(cond) {
			return false
		}
	}
	return true
}

// UISummary renders the UI directives for logs.
func UISummary(d *Result) string {
	var parts []string
	if d.UIDirectives.ShowCardList != "" {
		parts = append(parts, "cards:"+d.UIDirectives.ShowCardList)
	}
	if d.UIDirectives.ShowForm != "" {
		parts = append(parts, "form:"+d.UIDirectives.ShowForm)
	}
	if p := d.UIDirectives.ShowProgress; p != nil {
		parts = append(parts, fmt.Sprintf("progress:%d/%d", p.Current, p.Total))
	}
	if n := len(d.UIDirectives.ShowQuickActions); n > 0 {
		parts = append(parts, fmt.Sprintf("actions:%d", n))
	}
	if d.UIDirectives.Tone != "" {
		parts = append(parts, "tone:"+d.UIDirectives.Tone)
	}
	if d.UIDirectives.ResponseLength != "" {
		parts = append(parts, "length:"+d.UIDirectives.ResponseLength)
	}
	if len(parts) == 0 {
		return "default"
	}
	return strings.Join(parts, ", ")
}

// ModelSummary renders the model strategy for logs.
func ModelSummary(d *Result) string {
	return fmt.Sprintf("%s:%dtok", d.ModelStrategy.Model, d.ModelStrategy.MaxTokens)
}
