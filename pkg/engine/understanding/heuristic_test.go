package understanding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyHeuristicIntents(t *testing.T) {
	tests := []struct {
		name       string
		message    string
		wantIntent Intent
		wantRoute  string
	}{
		{"coupon hebrew", "יש קופון לצ'יטה?", IntentCoupon, HandlerChat},
		{"discount hebrew", "יש הנחה באתר?", IntentCoupon, HandlerChat},
		{"support hebrew", "יש לי בעיה עם ההזמנה שלי", IntentSupport, HandlerSupportFlow},
		{"support english", "my order is broken", IntentSupport, HandlerSupportFlow},
		{"sales hebrew", "כמה עולה הסט הזה?", IntentSales, HandlerSalesFlow},
		{"sales english", "how much does it cost to buy", IntentSales, HandlerSalesFlow},
		{"human hebrew", "אפשר לדבר עם נציג?", IntentHandoffHuman, HandlerHuman},
		{"general", "איזה יופי של סטורי העלית היום", IntentGeneral, HandlerChat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := classifyHeuristic(tt.message)

			assert.Equal(t, tt.wantIntent, r.Intent)
			assert.Equal(t, tt.wantRoute, r.RouteHints.SuggestedHandler)
			assert.Equal(t, 0.5, r.Confidence, "heuristic confidence is fixed")
			assert.True(t, r.UsedFallback)
			assert.Equal(t, []string{"Fallback analysis used"}, r.Ambiguity)
		})
	}
}

func TestClassifyHeuristicExtractsPhoneAndFlagsPrivacy(t *testing.T) {
	r := classifyHeuristic("תחזרו אלי ל 0541234567 יש תקלה")

	assert.Equal(t, IntentSupport, r.Intent)
	assert.Equal(t, []string{"0541234567"}, r.Entities.PhoneNumbers)
	assert.True(t, r.Risk.Privacy)
	assert.Equal(t, []string{"entities.phoneNumbers"}, r.PIIDetectedPaths)
}

func TestClassifyHeuristicExtractsOrderNumbers(t *testing.T) {
	r := classifyHeuristic("בעיה עם הזמנה #12345")

	assert.Equal(t, IntentSupport, r.Intent)
	assert.NotEmpty(t, r.Entities.OrderNumbers)
	assert.False(t, r.Risk.Privacy, "order numbers alone are not a privacy flag")
}

func TestNormalizeClampsAndCoerces(t *testing.T) {
	raw := map[string]interface{}{
		"intent":     "definitely_not_an_intent",
		"confidence": 7.5,
		"urgency":    "apocalyptic",
		"sentiment":  "meh",
	}

	r := normalize(raw)

	assert.Equal(t, IntentUnknown, r.Intent)
	assert.Equal(t, 1.0, r.Confidence)
	assert.Equal(t, UrgencyLow, r.Urgency)
	assert.Equal(t, SentimentNeutral, r.Sentiment)
}

func TestNormalizeDerivesPrivacyFromPhones(t *testing.T) {
	raw := map[string]interface{}{
		"intent":     "support",
		"confidence": 0.9,
		"entities": map[string]interface{}{
			"phoneNumbers": []interface{}{"0541234567"},
		},
		"risk": map[string]interface{}{
			"privacy": false, // model lied, normalize must correct it
		},
	}

	r := normalize(raw)

	assert.True(t, r.Risk.Privacy)
	assert.Equal(t, []string{"entities.phoneNumbers"}, r.PIIDetectedPaths)
}

func TestNormalizeDerivesRequiresHuman(t *testing.T) {
	r := normalize(map[string]interface{}{
		"intent":     "handoff_human",
		"confidence": 0.8,
	})
	assert.True(t, r.RequiresHuman)

	r = normalize(map[string]interface{}{
		"intent":     "general",
		"confidence": 0.8,
		"risk":       map[string]interface{}{"harassment": true},
	})
	assert.True(t, r.RequiresHuman)
}

func TestNormalizeRejectsUnknownHandlerHint(t *testing.T) {
	r := normalize(map[string]interface{}{
		"intent":     "sales",
		"confidence": 0.9,
		"routeHints": map[string]interface{}{"suggestedHandler": "shell_exec"},
	})

	assert.Equal(t, HandlerSalesFlow, r.RouteHints.SuggestedHandler)
}

func TestHandlerForIntent(t *testing.T) {
	assert.Equal(t, HandlerSupportFlow, HandlerForIntent(IntentSupport))
	assert.Equal(t, HandlerSalesFlow, HandlerForIntent(IntentSales))
	assert.Equal(t, HandlerHuman, HandlerForIntent(IntentHandoffHuman))
	assert.Equal(t, HandlerHuman, HandlerForIntent(IntentAbuse))
	assert.Equal(t, HandlerChat, HandlerForIntent(IntentCoupon))
	assert.Equal(t, HandlerChat, HandlerForIntent(IntentGeneral))
}
