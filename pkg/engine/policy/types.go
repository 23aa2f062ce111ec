// Package policy enforces security levels, privacy, rate limits, and budget
// after the decision engine and before any handler runs. Policies are pure
// checks; they return overrides and never mutate the decision themselves.
package policy

import (
	"time"

	"audience-engine-be/pkg/engine/decision"
	"audience-engine-be/pkg/engine/enginectx"
	"audience-engine-be/pkg/engine/understanding"
)

// Policy categories.
const (
	CategorySecurity  = "security"
	CategoryPrivacy   = "privacy"
	CategoryRateLimit = "rate_limit"
	CategoryCost      = "cost"
)

// Applied policy results.
const (
	ResultAllow    = "allow"
	ResultBlock    = "block"
	ResultOverride = "override"
	ResultWarn     = "warn"
)

// Warning severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Overrides are the corrections a policy imposes on the decision. The
// orchestrator applies them after all checks pass.
type Overrides struct {
	Handler               string                 `json:"handler,omitempty"`
	SecurityLevel         string                 `json:"securityLevel,omitempty"`
	UIDirectives          map[string]interface{} `json:"uiDirectives,omitempty"`
	RemoveFromContext     []string               `json:"removeFromContext,omitempty"`
	ForceResponseTemplate string                 `json:"forceResponseTemplate,omitempty"`
	ForceShortResponse    bool                   `json:"forceShortResponse,omitempty"`
}

// Warning flags something that passed but needs attention.
type Warning struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// Applied records one policy evaluation for the audit trail.
type Applied struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Result    string    `json:"result"`
	AppliedAt time.Time `json:"appliedAt"`
}

// CheckResult is one policy's verdict, and also the combined verdict of the
// whole engine.
type CheckResult struct {
	Allowed         bool       `json:"allowed"`
	BlockedReason   string     `json:"blockedReason,omitempty"`
	BlockedByRule   string     `json:"blockedByRule,omitempty"`
	Overrides       *Overrides `json:"overrides,omitempty"`
	Warnings        []Warning  `json:"warnings,omitempty"`
	AppliedPolicies []Applied  `json:"appliedPolicies"`
}

// AuthContext describes who is asking.
type AuthContext struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	IsOwner         bool   `json:"isOwner"`
	UserId          string `json:"userId,omitempty"`
	Role            string `json:"role,omitempty"`
}

// Consents are the end user's communication permissions.
type Consents struct {
	AllowEscalationToHuman bool `json:"allowEscalationToHuman"`
	AllowWhatsapp          bool `json:"allowWhatsapp"`
	AllowEmail             bool `json:"allowEmail"`
}

// SecurityContext describes the channel and auth state of the request.
type SecurityContext struct {
	Channel   string      `json:"channel"` // public_chat | dashboard | api | webhook
	Auth      AuthContext `json:"auth"`
	IPHash    string      `json:"ipHash,omitempty"`
	UserAgent string      `json:"userAgent,omitempty"`
	Consents  Consents    `json:"consents"`
}

// Input bundles everything the policy checks read.
type Input struct {
	Ctx           *enginectx.EngineContext
	Understanding *understanding.Result
	Decision      *decision.Result
	Security      SecurityContext
	TraceId       string
	RequestId     string
}

// BuildSecurityContext derives the channel and the default auth state from
// the request source. Dashboard requests act as the owner; everything else
// starts anonymous until JWT middleware upgrades it.
func BuildSecurityContext(ctx *enginectx.EngineContext, userAgent string) SecurityContext {
	channel := "public_chat"
	switch ctx.Request.Source {
	case "api", "cron":
		channel = "api"
	case "webhook":
		channel = "webhook"
	case "dashboard":
		channel = "dashboard"
	}

	auth := AuthContext{}
	if channel == "dashboard" {
		auth = AuthContext{IsAuthenticated: true, IsOwner: true, Role: "owner"}
	}

	return SecurityContext{
		Channel:   channel,
		Auth:      auth,
		IPHash:    ctx.Request.IPHash,
		UserAgent: userAgent,
		Consents: Consents{
			AllowEscalationToHuman: true,
			AllowWhatsapp:          true,
			AllowEmail:             false,
		},
	}
}
