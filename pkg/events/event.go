package events

import "time"

// EventType is the closed set of pipeline events.
type EventType string

const (
	// Interaction
	MessageReceived    EventType = "message_received"
	QuickActionClicked EventType = "quick_action_clicked"
	FormSubmitted      EventType = "form_submitted"

	// Understanding
	IntentDetected    EventType = "intent_detected"
	EntitiesExtracted EventType = "entities_extracted"
	RiskFlagged       EventType = "risk_flagged"

	// Decision
	DecisionMade  EventType = "decision_made"
	PolicyChecked EventType = "policy_checked"
	PolicyBlocked EventType = "policy_blocked"
	PolicyWarning EventType = "policy_warning"

	// State
	StateChanged EventType = "state_changed"
	FlowStarted  EventType = "flow_started"

	// Action
	ResponseSent EventType = "response_sent"

	// Outcome
	CouponCopied EventType = "coupon_copied"
	LinkClicked  EventType = "link_clicked"

	// Cost
	RateLimitHit EventType = "rate_limit_hit"
	CostWarning  EventType = "cost_threshold_warning"

	// System
	SessionStarted EventType = "session_started"
	ErrorOccurred  EventType = "error_occurred"
	LockAcquired   EventType = "lock_acquired"
	LockReleased   EventType = "lock_released"
)

// Category groups event types for filtering and analytics routing.
type Category string

const (
	CategoryInteraction   Category = "interaction"
	CategoryUnderstanding Category = "understanding"
	CategoryDecision      Category = "decision"
	CategoryState         Category = "state"
	CategoryAction        Category = "action"
	CategoryOutcome       Category = "outcome"
	CategoryCost          Category = "cost"
	CategorySystem        Category = "system"
)

var categories = map[EventType]Category{
	MessageReceived:    CategoryInteraction,
	QuickActionClicked: CategoryInteraction,
	FormSubmitted:      CategoryInteraction,

	IntentDetected:    CategoryUnderstanding,
	EntitiesExtracted: CategoryUnderstanding,
	RiskFlagged:       CategoryUnderstanding,

	DecisionMade:  CategoryDecision,
	PolicyChecked: CategoryDecision,
	PolicyBlocked: CategoryDecision,
	PolicyWarning: CategoryDecision,

	StateChanged: CategoryState,
	FlowStarted:  CategoryState,

	ResponseSent: CategoryAction,

	CouponCopied: CategoryOutcome,
	LinkClicked:  CategoryOutcome,

	RateLimitHit: CategoryCost,
	CostWarning:  CategoryCost,

	SessionStarted: CategorySystem,
	ErrorOccurred:  CategorySystem,
	LockAcquired:   CategorySystem,
	LockReleased:   CategorySystem,
}

// CategoryOf returns the category for a type, defaulting to system.
func CategoryOf(t EventType) Category {
	if c, ok := categories[t]; ok {
		return c
	}
	return CategorySystem
}

// Metadata carries trace and cost context on every event.
type Metadata struct {
	Source         string  `json:"source"`
	EngineVersion  string  `json:"engineVersion"`
	TraceID        string  `json:"traceId"`
	RequestID      string  `json:"requestId"`
	LatencyMs      int64   `json:"latencyMs,omitempty"`
	Cost           float64 `json:"cost,omitempty"`
	TokensUsed     int     `json:"tokensUsed,omitempty"`
	IdempotencyKey string  `json:"idempotencyKey,omitempty"`
	SecurityLevel  string  `json:"securityLevel,omitempty"`
}

// EngineEvent is one immutable entry of the append-only pipeline log.
// Payloads must never contain raw PII; callers mask before emitting.
type EngineEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Category  Category               `json:"category"`
	AccountID string                 `json:"accountId"`
	SessionID string                 `json:"sessionId"`
	Mode      string                 `json:"mode"`
	Payload   map[string]interface{} `json:"payload"`
	Metadata  Metadata               `json:"metadata"`
	CreatedAt time.Time              `json:"createdAt"`
}
