// Package understanding classifies inbound messages into intent, entities,
// risk flags, and routing hints. Classification goes through the configured
// model, falls back to a secondary model, and finally to keyword heuristics,
// so the pipeline always receives a result.
package understanding

import "time"

// Intent is the coarse classification of one message.
type Intent string

const (
	IntentGeneral      Intent = "general"
	IntentSupport      Intent = "support"
	IntentSales        Intent = "sales"
	IntentCoupon       Intent = "coupon"
	IntentHandoffHuman Intent = "handoff_human"
	IntentAbuse        Intent = "abuse"
	IntentUnknown      Intent = "unknown"
)

// Handler names a downstream response path.
const (
	HandlerChat        = "chat"
	HandlerSupportFlow = "support_flow"
	HandlerSalesFlow   = "sales_flow"
	HandlerHuman       = "human"
)

// Urgency and sentiment enumerations.
const (
	UrgencyLow      = "low"
	UrgencyMedium   = "medium"
	UrgencyHigh     = "high"
	UrgencyCritical = "critical"

	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// Entities holds everything extracted from the message text.
type Entities struct {
	Brands       []string          `json:"brands"`
	Coupons      []string          `json:"coupons"`
	Products     []string          `json:"products"`
	OrderNumbers []string          `json:"orderNumbers"`
	PhoneNumbers []string          `json:"phoneNumbers"`
	Platforms    []string          `json:"platforms"`
	Custom       map[string]string `json:"custom,omitempty"`
}

// RiskFlags mark content categories that need policy attention.
type RiskFlags struct {
	Privacy    bool `json:"privacy"`
	Legal      bool `json:"legal"`
	Medical    bool `json:"medical"`
	Harassment bool `json:"harassment"`
	Financial  bool `json:"financial"`
}

// UIHints suggest widgets for the client to render.
type UIHints struct {
	ShowForm         string   `json:"showForm,omitempty"`
	ShowCardList     string   `json:"showCardList,omitempty"`
	ShowQuickActions []string `json:"showQuickActions,omitempty"`
}

// RouteHints carry the classifier's routing suggestion to the decision engine.
type RouteHints struct {
	SuggestedHandler string   `json:"suggestedHandler"`
	SuggestedUI      *UIHints `json:"suggestedUi,omitempty"`
}

// Result is the full understanding of one message.
type Result struct {
	Intent     Intent   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Topic      string   `json:"topic"`
	Entities   Entities `json:"entities"`
	Urgency    string   `json:"urgency"`
	Sentiment  string   `json:"sentiment"`
	IsRepeat   bool     `json:"isRepeat"`

	Ambiguity                []string `json:"ambiguity"`
	SuggestedClarifications []string `json:"suggestedClarifications"`

	Risk          RiskFlags `json:"risk"`
	RequiresHuman bool      `json:"requiresHuman"`

	RouteHints RouteHints `json:"routeHints"`

	SearchKeywords   []string `json:"searchKeywords"`
	PIIDetectedPaths []string `json:"piiDetectedPaths"`

	RawInput       string        `json:"rawInput"`
	ProcessingTime time.Duration `json:"-"`
	UsedFallback   bool          `json:"-"`
}

// Input identifies the message and the account context for classification.
type Input struct {
	Message        string
	AccountId      string
	Mode           string
	Brands         []string
	PreviousIntent string
	SessionId      string
}

// HandlerForIntent maps an intent to its default response handler.
func HandlerForIntent(intent Intent) string {
	switch intent {
	case IntentSupport:
		return HandlerSupportFlow
	case IntentSales:
		return HandlerSalesFlow
	case IntentHandoffHuman, IntentAbuse:
		return HandlerHuman
	default:
		return HandlerChat
	}
}
