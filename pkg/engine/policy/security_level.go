package policy

import (
	"fmt"
	"time"

	"audience-engine-be/pkg/engine/decision"
)

const (
	securityLevelPolicyId   = "security_level"
	securityLevelPolicyName = "Security Level Enforcement"
)

// checkSecurityLevel enforces the decision's required security level against
// the caller's auth state. owner_only without ownership blocks; authenticated
// without auth downgrades to public with the private context stripped.
func checkSecurityLevel(input Input) CheckResult {
	applied := Applied{
		Id:        securityLevelPolicyId,
		Name:      securityLevelPolicyName,
		Category:  CategorySecurity,
		AppliedAt: time.Now().UTC(),
	}

	switch input.Decision.SecurityLevel {
	case decision.SecurityPublic:
		applied.Result = ResultAllow
		return CheckResult{Allowed: true, AppliedPolicies: []Applied{applied}}

	case decision.SecurityOwnerOnly:
		if !input.Security.Auth.IsOwner {
			applied.Result = ResultBlock
			return CheckResult{
				Allowed:       false,
				BlockedReason: "פעולה זו דורשת התחברות כבעל החשבון",
				BlockedByRule: securityLevelPolicyId,
				Overrides: &Overrides{
					Handler:               decision.HandlerChat,
					SecurityLevel:         decision.SecurityPublic,
					ForceResponseTemplate: "auth_required",
					RemoveFromContext:     []string{"orderDetails", "supportHistory", "privateNotes", "customerPhone"},
					UIDirectives: map[string]interface{}{
						"showQuickActions": []string{"התחבר לדשבורד", "חזרה לצ'אט"},
						"showForm":         "",
						"showCardList":     "",
					},
				},
				AppliedPolicies: []Applied{applied},
			}
		}
		applied.Result = ResultAllow
		return CheckResult{Allowed: true, AppliedPolicies: []Applied{applied}}

	case decision.SecurityAuthenticated:
		if !input.Security.Auth.IsAuthenticated {
			applied.Result = ResultOverride
			return CheckResult{
				Allowed: true,
				Warnings: []Warning{{
					Code:     "auth_downgrade",
					Message:  "תוכן מוגבל - נדרשת התחברות לצפייה בפרטים נוספים",
					Severity: SeverityMedium,
				}},
				Overrides: &Overrides{
					SecurityLevel:     decision.SecurityPublic,
					RemoveFromContext: []string{"orderDetails", "supportHistory", "privateNotes"},
					UIDirectives: map[string]interface{}{
						"showQuickActions": []string{"התחבר לצפייה בפרטים נוספים"},
					},
				},
				AppliedPolicies: []Applied{applied},
			}
		}
		applied.Result = ResultAllow
		return CheckResult{Allowed: true, AppliedPolicies: []Applied{applied}}

	default:
		applied.Result = ResultWarn
		return CheckResult{
			Allowed: true,
			Warnings: []Warning{{
				Code:     "unknown_security_level",
				Message:  fmt.Sprintf("Unknown security level: %s", input.Decision.SecurityLevel),
				Severity: SeverityLow,
			}},
			AppliedPolicies: []Applied{applied},
		}
	}
}
