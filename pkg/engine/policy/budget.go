package policy

import (
	"fmt"
	"math"
	"time"
)

const (
	budgetPolicyId   = "cost_budget"
	budgetPolicyName = "Cost Budget Enforcement"

	budgetCriticalRatio = 0.9
	budgetWarningRatio  = 0.75
)

// checkBudget watches the account's spend against its ceiling. Past 90% the
// response is forced short; past 75% it only warns. Messages are never
// blocked over budget; the owner gets squeezed, not silenced.
func checkBudget(input Input) CheckResult {
	applied := Applied{
		Id:        budgetPolicyId,
		Name:      budgetPolicyName,
		Category:  CategoryCost,
		Result:    ResultAllow,
		AppliedAt: time.Now().UTC(),
	}

	ceiling := input.Ctx.Limits.CostCeiling
	if ceiling <= 0 {
		return CheckResult{Allowed: true, AppliedPolicies: []Applied{applied}}
	}
	ratio := input.Ctx.Limits.CostUsed / ceiling

	if ratio > budgetCriticalRatio {
		applied.Result = ResultOverride
		return CheckResult{
			Allowed: true,
			Warnings: []Warning{{
				Code:     "cost_budget_critical",
				Message:  fmt.Sprintf("תקציב עלויות כמעט נגמר (%d%%)", int(math.Round(ratio*100))),
				Severity: SeverityHigh,
			}},
			Overrides: &Overrides{
				ForceShortResponse: true,
				UIDirectives: map[string]interface{}{
					"responseLength": "short",
				},
			},
			AppliedPolicies: []Applied{applied},
		}
	}

	if ratio > budgetWarningRatio {
		applied.Result = ResultWarn
		return CheckResult{
			Allowed: true,
			Warnings: []Warning{{
				Code:     "cost_budget_warning",
				Message:  fmt.Sprintf("תקציב עלויות מתקרב למגבלה (%d%%)", int(math.Round(ratio*100))),
				Severity: SeverityMedium,
			}},
			AppliedPolicies: []Applied{applied},
		}
	}

	return CheckResult{Allowed: true, AppliedPolicies: []Applied{applied}}
}
