package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"audience-engine-be/internal/model"
	"audience-engine-be/internal/pkg/logger"
	"audience-engine-be/internal/repository/contract"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// RuleRegistry supplies the rule set for one account, already sorted by
// ascending priority.
type RuleRegistry interface {
	RulesFor(ctx context.Context, accountId string) []Rule
}

// StaticRegistry serves only the builtin rules. Used in tests and as the
// degraded mode when the rules table is unreachable at startup.
type StaticRegistry struct {
	rules []Rule
}

func NewStaticRegistry(extra ...Rule) *StaticRegistry {
	rules := append(builtinRules(), extra...)
	sortRules(rules)
	return &StaticRegistry{rules: rules}
}

func (r *StaticRegistry) RulesFor(_ context.Context, _ string) []Rule {
	return r.rules
}

// DBRegistry layers database rules (global plus account-scoped) over the
// builtins. Loads are cached; the account's rules_version invalidates the
// account layer when the owner publishes changes.
type DBRegistry struct {
	rules    contract.DecisionRuleRepository
	accounts contract.AccountRepository
	cache    *cache.Cache
	validate *validator.Validate
	logger   logger.ILogger
}

func NewDBRegistry(
	rules contract.DecisionRuleRepository,
	accounts contract.AccountRepository,
	ttl time.Duration,
	log logger.ILogger,
) *DBRegistry {
	return &DBRegistry{
		rules:    rules,
		accounts: accounts,
		cache:    cache.New(ttl, 2*ttl),
		validate: validator.New(),
		logger:   log,
	}
}

func (r *DBRegistry) RulesFor(ctx context.Context, accountId string) []Rule {
	combined := builtinRules()
	combined = append(combined, r.globalRules(ctx)...)
	if id, err := uuid.Parse(accountId); err == nil {
		combined = append(combined, r.accountRules(ctx, id)...)
	}
	sortRules(combined)
	return combined
}

// Invalidate drops the cached account layer, e.g. after a publish.
func (r *DBRegistry) Invalidate(accountId string) {
	r.cache.Delete("rules:account:" + accountId)
}

func (r *DBRegistry) globalRules(ctx context.Context) []Rule {
	if cached, found := r.cache.Get("rules:global"); found {
		return cached.([]Rule)
	}

	rows, err := r.rules.FindGlobalEnabled(ctx)
	if err != nil {
		r.logger.Error("RuleRegistry", "failed to load global rules", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	rules := r.convert(rows)
	r.cache.Set("rules:global", rules, cache.DefaultExpiration)
	return rules
}

func (r *DBRegistry) accountRules(ctx context.Context, accountId uuid.UUID) []Rule {
	cacheKey := "rules:account:" + accountId.String()

	version, err := r.accounts.GetRulesVersion(ctx, accountId)
	if err != nil {
		r.logger.Warn("RuleRegistry", "failed to read rules version", map[string]interface{}{
			"accountId": accountId.String(),
			"error":     err.Error(),
		})
		version = -1
	}

	if cached, found := r.cache.Get(cacheKey); found {
		entry := cached.(accountRuleEntry)
		if version < 0 || entry.version == version {
			return entry.rules
		}
	}

	rows, err := r.rules.FindByAccountEnabled(ctx, accountId)
	if err != nil {
		r.logger.Error("RuleRegistry", "failed to load account rules", map[string]interface{}{
			"accountId": accountId,
			"error":     err.Error(),
		})
		return nil
	}

	rules := r.convert(rows)
	r.cache.Set(cacheKey, accountRuleEntry{rules: rules, version: version}, cache.DefaultExpiration)
	return rules
}

type accountRuleEntry struct {
	rules   []Rule
	version int
}

// convert maps database rows to rules, dropping any row that fails
// validation. A malformed rule must never take down decisioning.
func (r *DBRegistry) convert(rows []*model.DecisionRule) []Rule {
	out := make([]Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := ruleFromModel(row)
		if err != nil {
			r.logger.Warn("RuleRegistry", "skipping invalid rule", map[string]interface{}{
				"ruleId": row.Id.String(),
				"error":  err.Error(),
			})
			continue
		}
		if err := r.validate.Struct(rule); err != nil {
			r.logger.Warn("RuleRegistry", "skipping rule failing validation", map[string]interface{}{
				"ruleId": rule.Id,
				"error":  err.Error(),
			})
			continue
		}
		if err := compileRulePatterns(rule); err != nil {
			r.logger.Warn("RuleRegistry", "skipping rule with bad pattern", map[string]interface{}{
				"ruleId": rule.Id,
				"error":  err.Error(),
			})
			continue
		}
		out = append(out, *rule)
	}
	return out
}

func ruleFromModel(row *model.DecisionRule) (*Rule, error) {
	rule := &Rule{
		Id:          row.Id.String(),
		Name:        row.Name,
		Description: row.Description,
		Category:    row.Category,
		Priority:    row.Priority,
		Mode:        row.Mode,
		Enabled:     row.Enabled,
	}
	if row.AccountId != nil {
		rule.AccountId = row.AccountId.String()
	}
	if rule.Mode == "" {
		rule.Mode = "both"
	}

	if err := json.Unmarshal(row.Conditions, &rule.Conditions); err != nil {
		return nil, fmt.Errorf("decode conditions: %w", err)
	}
	if err := json.Unmarshal(row.Actions, &rule.Actions); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	return rule, nil
}

// compileRulePatterns pre-compiles matches conditions so a broken regex is
// rejected at load time, not silently skipped per message.
func compileRulePatterns(rule *Rule) error {
	for _, cond := range rule.Conditions {
		if cond.Operator != OpMatches {
			continue
		}
		pattern, ok := cond.Value.(string)
		if !ok {
			return fmt.Errorf("matches condition on %s has non-string pattern", cond.Field)
		}
		if _, err := compilePattern(pattern); err != nil {
			return fmt.Errorf("pattern %q: %w", pattern, err)
		}
	}
	return nil
}

func sortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })
}
