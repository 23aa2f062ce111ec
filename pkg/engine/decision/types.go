// Package decision turns an understanding result and the request context into
// a routing decision: which handler answers, with what model budget, UI
// directives, and security level. The engine is a deterministic rule pass
// over a default decision; no model calls happen here.
package decision

import (
	"time"

	"audience-engine-be/pkg/engine/enginectx"
	"audience-engine-be/pkg/engine/understanding"
)

// Rule categories, evaluated in this order within equal priorities.
const (
	CategoryEscalation      = "escalation"
	CategoryRouting         = "routing"
	CategorySecurity        = "security"
	CategoryCost            = "cost"
	CategoryPersonalization = "personalization"
)

// Condition operators.
const (
	OpEq          = "eq"
	OpNeq         = "neq"
	OpGt          = "gt"
	OpGte         = "gte"
	OpLt          = "lt"
	OpLte         = "lte"
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpMatches     = "matches"
	OpIn          = "in"
	OpNotIn       = "not_in"
	OpExists      = "exists"
	OpNotExists   = "not_exists"
)

// Action types.
const (
	ActionSetHandler          = "set_handler"
	ActionSetAction           = "set_action"
	ActionSetSecurityLevel    = "set_security_level"
	ActionSetModel            = "set_model"
	ActionSetUI               = "set_ui"
	ActionTransitionState     = "transition_state"
	ActionAppendContext       = "append_context"
	ActionSetResponseStrategy = "set_response_strategy"
)

// Handler and action enums for the decision itself.
const (
	HandlerChat             = "chat"
	HandlerSupportFlow      = "support_flow"
	HandlerSalesFlow        = "sales_flow"
	HandlerHuman            = "human"
	HandlerNotificationOnly = "notification_only"

	ActRespond  = "respond"
	ActClarify  = "clarify"
	ActEscalate = "escalate"
	ActNotify   = "notify"
	ActDefer    = "defer"
)

// Security levels, weakest to strongest.
const (
	SecurityPublic        = "public"
	SecurityAuthenticated = "authenticated"
	SecurityOwnerOnly     = "owner_only"
)

// Model tiers.
const (
	ModelNano     = "nano"
	ModelStandard = "standard"
	ModelFull     = "full"
)

// Condition is one predicate of a rule. Field is a dotted path rooted at
// ctx, understanding, or decision.
type Condition struct {
	Field    string      `json:"field" validate:"required"`
	Operator string      `json:"operator" validate:"required,oneof=eq neq gt gte lt lte contains not_contains matches in not_in exists not_exists"`
	Value    interface{} `json:"value"`
}

// Action is one mutation a matched rule applies to the decision.
type Action struct {
	Type   string      `json:"type" validate:"required,oneof=set_handler set_action set_security_level set_model set_ui transition_state append_context set_response_strategy"`
	Value  interface{} `json:"value,omitempty"`
	To     string      `json:"to,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

// Rule is one decision rule, builtin or loaded from the database.
type Rule struct {
	Id          string      `json:"id" validate:"required"`
	Name        string      `json:"name" validate:"required"`
	Description string      `json:"description,omitempty"`
	Category    string      `json:"category" validate:"required,oneof=routing escalation personalization cost security"`
	Priority    int         `json:"priority"`
	Mode        string      `json:"mode" validate:"oneof=creator brand both"`
	AccountId   string      `json:"accountId,omitempty"`
	Enabled     bool        `json:"enabled"`
	Conditions  []Condition `json:"conditions" validate:"dive"`
	Actions     []Action    `json:"actions" validate:"required,min=1,dive"`
}

// Application records one rule that fired, for the audit trail.
type Application struct {
	RuleId    string    `json:"ruleId"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Priority  int       `json:"priority"`
	AppliedAt time.Time `json:"appliedAt"`
}

// ProgressDirective drives the client's step indicator.
type ProgressDirective struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Label   string `json:"label"`
}

// NextBestAction is one suggested follow-up button.
type NextBestAction struct {
	Id      string                 `json:"id"`
	Label   string                 `json:"label"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// UIDirectives tell the client what to render around the response text.
type UIDirectives struct {
	Layout           string             `json:"layout,omitempty"` // chat | cards_first | form_first
	ShowCardList     string             `json:"showCardList,omitempty"`
	ShowQuickActions []string           `json:"showQuickActions,omitempty"`
	ShowProgress     *ProgressDirective `json:"showProgress,omitempty"`
	ShowForm         string             `json:"showForm,omitempty"`
	Tone             string             `json:"tone,omitempty"`
	ResponseLength   string             `json:"responseLength,omitempty"`
	NextBestActions  []NextBestAction   `json:"nextBestActions,omitempty"`
}

// ModelStrategy bounds the responder's model call.
type ModelStrategy struct {
	Model       string  `json:"model"`
	Fallback    string  `json:"fallback,omitempty"`
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature,omitempty"`
	TimeoutMs   int     `json:"timeoutMs,omitempty"`
	Retries     int     `json:"retries,omitempty"`
}

// StateTransition is a requested state change; the orchestrator commits it
// under the session lock.
type StateTransition struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// ResponseStrategy tells the responder how to assemble its prompt.
type ResponseStrategy struct {
	Type             string   `json:"type"` // direct | with_context | with_search | template
	ContextToInclude []string `json:"contextToInclude,omitempty"`
	TemplateId       string   `json:"templateId,omitempty"`
}

// CostEstimate is filled in by the responder after the model call.
type CostEstimate struct {
	InputTokens   int     `json:"inputTokens"`
	OutputTokens  int     `json:"outputTokens"`
	EstimatedCost float64 `json:"estimatedCost"`
	ModelUsed     string  `json:"modelUsed"`
}

// Result is the full decision handed to policy and then to the handler.
type Result struct {
	Action   string `json:"action"`
	Handler  string `json:"handler"`
	Priority int    `json:"priority"`

	StateTransition *StateTransition `json:"stateTransition,omitempty"`

	ResponseStrategy ResponseStrategy `json:"responseStrategy"`
	ContextToInclude []string         `json:"contextToInclude"`

	UIDirectives UIDirectives `json:"uiDirectives"`
	Channel      string       `json:"channel"`

	ModelStrategy ModelStrategy `json:"modelStrategy"`

	SecurityLevel string `json:"securityLevel"`

	CostEstimate CostEstimate `json:"costEstimate"`

	Reasoning    string        `json:"reasoning"`
	RulesApplied []Application `json:"rulesApplied"`

	IdempotencyKey string `json:"idempotencyKey"`
	TraceId        string `json:"traceId"`
	RequestId      string `json:"requestId"`
}

// Input bundles everything the engine evaluates against.
type Input struct {
	Ctx           *enginectx.EngineContext
	Understanding *understanding.Result
	TraceId       string
	RequestId     string
}
