package understanding

import (
	"regexp"
	"strings"
)

var (
	phonePattern = regexp.MustCompile(`0\d{9}|05\d{8}|\+972\d{9}`)
	orderPattern = regexp.MustCompile(`#?\d{5,10}|הזמנה\s*\d+`)
)

// keyword groups for the offline classifier. Hebrew first, English aliases
// so mixed-language sessions still route.
var (
	couponKeywords  = []string{"קופון", "הנחה", "קוד", "coupon", "discount", "promo code"}
	supportKeywords = []string{"בעיה", "תקלה", "לא עובד", "הזמנה", "problem", "issue", "not working", "broken", "my order"}
	salesKeywords   = []string{"מחיר", "לקנות", "כמה עולה", "price", "buy", "how much"}
	humanKeywords   = []string{"אדם", "נציג", "אמיתי", "human", "agent", "real person"}
)

// classifyHeuristic is the last-resort classifier when both models fail. It
// always succeeds and always reports confidence 0.5 so downstream low
// confidence rules can compensate.
func classifyHeuristic(message string) *Result {
	lower := strings.ToLower(message)

	intent := IntentGeneral
	topic := "general"
	handler := HandlerChat

	switch {
	case containsAny(lower, couponKeywords):
		intent = IntentCoupon
		topic = "coupons"
	case containsAny(lower, supportKeywords):
		intent = IntentSupport
		topic = "support"
		handler = HandlerSupportFlow
	case containsAny(lower, salesKeywords):
		intent = IntentSales
		topic = "pricing"
		handler = HandlerSalesFlow
	case containsAny(lower, humanKeywords):
		intent = IntentHandoffHuman
		topic = "escalation"
		handler = HandlerHuman
	}

	phones := phonePattern.FindAllString(message, -1)
	orders := orderPattern.FindAllString(message, -1)

	result := &Result{
		Intent:     intent,
		Confidence: 0.5,
		Topic:      topic,
		Entities: Entities{
			Brands:       []string{},
			Coupons:      []string{},
			Products:     []string{},
			OrderNumbers: orders,
			PhoneNumbers: phones,
			Platforms:    []string{},
		},
		Urgency:                 UrgencyLow,
		Sentiment:               SentimentNeutral,
		Ambiguity:               []string{"Fallback analysis used"},
		SuggestedClarifications: []string{},
		Risk: RiskFlags{
			Privacy: len(phones) > 0,
		},
		RouteHints:       RouteHints{SuggestedHandler: handler},
		SearchKeywords:   []string{},
		PIIDetectedPaths: []string{},
		RawInput:         message,
		UsedFallback:     true,
	}
	if len(phones) > 0 {
		result.PIIDetectedPaths = []string{"entities.phoneNumbers"}
	}
	return result
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
