package understanding

// normalize coerces a decoded model response into a valid Result. Model
// output is untrusted: enums are checked against their domains, confidence is
// clamped to [0,1], and the derived flags (privacy, requiresHuman, PII paths)
// are recomputed so a lying model cannot drop them.
func normalize(raw map[string]interface{}) *Result {
	intent := coerceIntent(stringOf(raw["intent"]))
	entities := normalizeEntities(mapOf(raw["entities"]))

	risk := normalizeRisk(mapOf(raw["risk"]))
	risk.Privacy = risk.Privacy || len(entities.PhoneNumbers) > 0

	hints := normalizeRouteHints(mapOf(raw["routeHints"]), intent)

	result := &Result{
		Intent:                  intent,
		Confidence:              clamp01(floatOf(raw["confidence"], 0.5)),
		Topic:                   stringOr(raw["topic"], "general"),
		Entities:                entities,
		Urgency:                 oneOf(stringOf(raw["urgency"]), []string{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical}, UrgencyLow),
		Sentiment:               oneOf(stringOf(raw["sentiment"]), []string{SentimentPositive, SentimentNeutral, SentimentNegative}, SentimentNeutral),
		IsRepeat:                boolOf(raw["isRepeat"]),
		Ambiguity:               stringsOf(raw["ambiguity"]),
		SuggestedClarifications: stringsOf(raw["suggestedClarifications"]),
		Risk:                    risk,
		RequiresHuman:           boolOf(raw["requiresHuman"]) || intent == IntentHandoffHuman || risk.Harassment,
		RouteHints:              hints,
		SearchKeywords:          stringsOf(raw["searchKeywords"]),
		PIIDetectedPaths:        stringsOf(raw["piiDetectedPaths"]),
	}

	if len(result.PIIDetectedPaths) == 0 && len(entities.PhoneNumbers) > 0 {
		result.PIIDetectedPaths = []string{"entities.phoneNumbers"}
	}
	return result
}

func coerceIntent(s string) Intent {
	switch Intent(s) {
	case IntentGeneral, IntentSupport, IntentSales, IntentCoupon, IntentHandoffHuman, IntentAbuse, IntentUnknown:
		return Intent(s)
	default:
		return IntentUnknown
	}
}

func normalizeEntities(raw map[string]interface{}) Entities {
	return Entities{
		Brands:       stringsOf(raw["brands"]),
		Coupons:      stringsOf(raw["coupons"]),
		Products:     stringsOf(raw["products"]),
		OrderNumbers: stringsOf(raw["orderNumbers"]),
		PhoneNumbers: stringsOf(raw["phoneNumbers"]),
		Platforms:    stringsOf(raw["platforms"]),
	}
}

func normalizeRisk(raw map[string]interface{}) RiskFlags {
	return RiskFlags{
		Privacy:    boolOf(raw["privacy"]),
		Legal:      boolOf(raw["legal"]),
		Medical:    boolOf(raw["medical"]),
		Harassment: boolOf(raw["harassment"]),
		Financial:  boolOf(raw["financial"]),
	}
}

func normalizeRouteHints(raw map[string]interface{}, intent Intent) RouteHints {
	handler := stringOf(raw["suggestedHandler"])
	switch handler {
	case HandlerChat, HandlerSupportFlow, HandlerSalesFlow, HandlerHuman:
	default:
		handler = HandlerForIntent(intent)
	}

	hints := RouteHints{SuggestedHandler: handler}
	if ui := mapOf(raw["suggestedUi"]); len(ui) > 0 {
		hints.SuggestedUI = &UIHints{
			ShowForm:         stringOf(ui["showForm"]),
			ShowCardList:     stringOf(ui["showCardList"]),
			ShowQuickActions: stringsOf(ui["showQuickActions"]),
		}
	}
	return hints
}

// loose decoding helpers

func stringOf(v interface{}) string {
	s, _ := v.(string)
	return s
}

func stringOr(v interface{}, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func oneOf(s string, allowed []string, fallback string) string {
	for _, a := range allowed {
		if s == a {
			return s
		}
	}
	return fallback
}

func floatOf(v interface{}, fallback float64) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return fallback
}

func boolOf(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func mapOf(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func stringsOf(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
