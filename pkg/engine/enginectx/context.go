// Package enginectx defines the per-request snapshot every engine reads.
// The context is built fresh for each message and never mutated in place;
// stages that need a changed view build a new value.
package enginectx

import "time"

// AccountMode selects which rule scope applies.
const (
	ModeCreator = "creator"
	ModeBrand   = "brand"
)

// SecurityConfig carries the account's security defaults.
type SecurityConfig struct {
	PublicChatAllowed     bool `json:"publicChatAllowed"`
	RequireAuthForSupport bool `json:"requireAuthForSupport"`
	RateLimitOverride     int  `json:"rateLimitOverride,omitempty"`
}

// FeatureFlags gates optional flows per account.
type FeatureFlags struct {
	SupportFlowEnabled bool `json:"supportFlowEnabled"`
	SalesFlowEnabled   bool `json:"salesFlowEnabled"`
	AnalyticsEnabled   bool `json:"analyticsEnabled"`
}

// AccountContext is the stable part, cached for the account cache TTL.
type AccountContext struct {
	Id       string         `json:"id"`
	Mode     string         `json:"mode"` // creator | brand
	Plan     string         `json:"plan"` // free | pro | enterprise
	Language string         `json:"language"`
	Timezone string         `json:"timezone"`
	Security SecurityConfig `json:"security"`
	Features FeatureFlags   `json:"features"`
}

// SessionContext is volatile and loaded fresh every request. Version backs
// optimistic concurrency and must never come from a cache.
type SessionContext struct {
	Id           string    `json:"id"`
	State        string    `json:"state"`
	Version      int       `json:"version"`
	MessageCount int       `json:"messageCount"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	IsNew        bool      `json:"isNew"`
}

// UserContext tracks the anonymous end user.
type UserContext struct {
	AnonId          string `json:"anonId"`
	IsRepeatVisitor bool   `json:"isRepeatVisitor"`
}

// KnowledgeRefs are opaque pointers into the retrieval subsystem. The engine
// never dereferences them; the responder does.
type KnowledgeRefs struct {
	BrandsRef       string   `json:"brandsRef"`
	ContentIndexRef string   `json:"contentIndexRef"`
	PersonaRef      string   `json:"personaRef"`
	BrandNames      []string `json:"brandNames,omitempty"` // known brand names, fed to the classifier
}

// LimitsContext is the cost-control snapshot, refreshed per request.
type LimitsContext struct {
	TokenBudgetRemaining int       `json:"tokenBudgetRemaining"`
	TokenBudgetTotal     int       `json:"tokenBudgetTotal"`
	CostCeiling          float64   `json:"costCeiling"`
	CostUsed             float64   `json:"costUsed"`
	RateLimitRemaining   int       `json:"rateLimitRemaining"`
	RateLimitResetAt     time.Time `json:"rateLimitResetAt"`
}

// RequestContext is always new.
type RequestContext struct {
	RequestId       string    `json:"requestId"`
	TraceId         string    `json:"traceId"`
	Timestamp       time.Time `json:"timestamp"`
	Source          string    `json:"source"` // chat | api | webhook
	ClientMessageId string    `json:"clientMessageId"`
	IPHash          string    `json:"ipHash"`
}

// EngineContext is the full snapshot handed to Understanding, Decision and
// Policy. Treat as read-only.
type EngineContext struct {
	Account   AccountContext `json:"account"`
	Session   SessionContext `json:"session"`
	User      UserContext    `json:"user"`
	Knowledge KnowledgeRefs  `json:"knowledge"`
	Limits    LimitsContext  `json:"limits"`
	Request   RequestContext `json:"request"`
}
