package decision

// Builtin rules ship with the engine and apply to every account. Database
// rules are layered on top by the registry. Priority is ascending: lower
// numbers run first.

func builtinRules() []Rule {
	rules := make([]Rule, 0, 32)
	rules = append(rules, escalationRules()...)
	rules = append(rules, routingRules()...)
	rules = append(rules, securityRules()...)
	rules = append(rules, costRules()...)
	rules = append(rules, personalizationRules()...)
	return rules
}

func routingRules() []Rule {
	return []Rule{
		{
			Id:       "routing_coupon",
			Name:     "Coupon intent routes to chat + brand cards",
			Category: CategoryRouting,
			Priority: 10,
			Mode:     "both",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "understanding.intent", Operator: OpEq, Value: "coupon"},
			},
			Actions: []Action{
				{Type: ActionSetAction, Value: ActRespond},
				{Type: ActionSetHandler, Value: HandlerChat},
				{Type: ActionSetUI, Value: map[string]interface{}{
					"showCardList":     "brands",
					"showQuickActions": []interface{}{"העתק קופון", "פתח אתר", "בעיה בקופון"},
					"responseLength":   "short",
					"layout":           "cards_first",
				}},
				{Type: ActionAppendContext, Value: []interface{}{"brands", "coupon_policy", "persona"}},
				{Type: ActionSetModel, Value: map[string]interface{}{"model": "nano", "maxTokens": 220, "fallback": "standard"}},
			},
		},
		{
			Id:       "routing_support",
			Name:     "Support intent routes to support flow",
			Category: CategoryRouting,
			Priority: 11,
			Mode:     "both",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "understanding.intent", Operator: OpEq, Value: "support"},
			},
			Actions: []Action{
				{Type: ActionSetAction, Value: ActRespond},
				{Type: ActionSetHandler, Value: HandlerSupportFlow},
				{Type: ActionTransitionState, To: "Support.CollectBrand", Reason: "support_flow_start"},
				{Type: ActionSetUI, Value: map[string]interface{}{
					"showProgress":     map[string]interface{}{"current": 1, "total": 5, "label": "פותחים פנייה"},
					"responseLength":   "short",
					"tone":             "empathetic",
					"layout":           "chat",
					"showQuickActions": []interface{}{},
				}},
				{Type: ActionSetModel, Value: map[string]interface{}{"model": "nano", "maxTokens": 180, "fallback": "standard"}},
				{Type: ActionAppendContext, Value: []interface{}{"brands", "support_policy", "persona"}},
			},
		},
		{
			Id:       "routing_sales",
			Name:     "Sales intent routes to sales flow",
			Category: CategoryRouting,
			Priority: 12,
			Mode:     "both",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "understanding.intent", Operator: OpEq, Value: "sales"},
			},
			Actions: []Action{
				{Type: ActionSetAction, Value: ActRespond},
				{Type: ActionSetHandler, Value: HandlerSalesFlow},
				{Type: ActionSetUI, Value: map[string]interface{}{
					"showCardList":     "products",
					"showQuickActions": []interface{}{"מחירים", "מבצעים", "המלצה אישית"},
					"responseLength":   "standard",
					"layout":           "cards_first",
				}},
				{Type: ActionSetModel, Value: map[string]interface{}{"model": "standard", "maxTokens": 350, "fallback": "standard"}},
				{Type: ActionAppendContext, Value: []interface{}{"products", "brands", "pricing", "persona"}},
			},
		},
		{
			Id:       "routing_content_request",
			Name:     "Content request shows content cards",
			Category: CategoryRouting,
			Priority: 13,
			Mode:     "creator",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "understanding.topic", Operator: OpMatches, Value: "recipe|content|tip|מתכון"},
			},
			Actions: []Action{
				{Type: ActionSetAction, Value: ActRespond},
				{Type: ActionSetHandler, Value: HandlerChat},
				{Type: ActionSetUI, Value: map[string]interface{}{
					"showCardList":   "content",
					"responseLength": "standard",
					"layout":         "chat",
				}},
				{Type: ActionAppendContext, Value: []interface{}{"content", "persona"}},
			},
		},
		{
			Id:       "routing_general",
			Name:     "General intent routes to chat",
			Category: CategoryRouting,
			Priority: 15,
			Mode:     "both",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "understanding.intent", Operator: OpEq, Value: "general"},
			},
			Actions: []Action{
				{Type: ActionSetAction, Value: ActRespond},
				{Type: ActionSetHandler, Value: HandlerChat},
				{Type: ActionSetUI, Value: map[string]interface{}{
					"showQuickActions": []interface{}{"קופונים", "המלצות", "בעיה בהזמנה"},
					"responseLength":   "standard",
					"layout":           "chat",
				}},
				{Type: ActionSetModel, Value: map[string]interface{}{"model": "nano", "maxTokens": 300, "fallback": "standard"}},
				{Type: ActionAppendContext, Value: []interface{}{"persona", "content"}},
			},
		},
	}
}

func escalationRules() []Rule {
	return []Rule{
		{
			Id:       "escalation_abuse",
			Name:     "Abuse detected -> block and notify",
			Category: CategoryEscalation,
			Priority: 5,
			Mode:     "both",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "understanding.intent", Operator: OpEq, Value: "abuse"},
			},
			Actions: []Action{
				{Type: ActionSetAction, Value: ActNotify},
				{Type: ActionSetHandler, Value: HandlerNotificationOnly},
				{Type: ActionSetSecurityLevel, Value: SecurityOwnerOnly},
				{Type: ActionSetUI, Value: map[string]interface{}{"responseLength": "short", "tone": "professional"}},
				{Type: ActionSetModel, Value: map[string]interface{}{"model": "nano", "maxTokens": 80}},
			},
		},
		{
			Id:       "escalation_low_confidence",
			Name:     "Low confidence -> clarify with quick actions",
			Category: CategoryEscalation,
			Priority: 20,
			Mode:     "both",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "understanding.confidence", Operator: OpLt, Value: 0.45},
			},
			Actions: []Action{
				{Type: ActionSetAction, Value: ActClarify},
				{Type: ActionSetHandler, Value: HandlerChat},
				{Type: ActionSetUI, Value: map[string]interface{}{
					"showQuickActions": []interface{}{},
					"responseLength":   "short",
					"tone":             "professional",
					"layout":           "chat",
				}},
				{Type: ActionSetModel, Value: map[string]interface{}{"model": "nano", "maxTokens": 180, "fallback": "standard"}},
				{Type: ActionAppendContext, Value: []interface{}{"suggestedClarifications", "persona"}},
			},
		},
		{
			Id:       "escalation_requires_human",
			Name:     "Requires human -> handoff",
			Category: CategoryEscalation,
			Priority: 21,
			Mode:     "both",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "understanding.requiresHuman", Operator: OpEq, Value: true},
			},
			Actions: []Action{
				{Type: ActionSetAction, Value: ActEscalate},
				{Type: ActionSetHandler, Value: HandlerHuman},
				{Type: ActionSetUI, Value: map[string]interface{}{
					"responseLength":   "short",
					"tone":             "empathetic",
					"showQuickActions": []interface{}{},
				}},
				{Type: ActionSetModel, Value: map[string]interface{}{"model": "nano", "maxTokens": 140}},
			},
		},
		{
			Id:       "escalation_handoff_intent",
			Name:     "Handoff intent -> notify human",
			Category: CategoryEscalation,
			Priority: 22,
			Mode:     "both",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "understanding.intent", Operator: OpEq, Value: "handoff_human"},
			},
			Actions: []Action{
				{Type: ActionSetAction, Value: ActEscalate},
				{Type: ActionSetHandler, Value: HandlerHuman},
				{Type: ActionSetUI, Value: map[string]interface{}{"responseLength": "short", "tone": "empathetic"}},
				{Type: ActionSetModel, Value: map[string]interface{}{"model": "nano", "maxTokens": 120}},
			},
		},
		{
			Id:       "escalation_high_urgency",
			Name:     "High urgency -> prioritize response",
			Category: CategoryEscalation,
			Priority: 23,
			Mode:     "both",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "understanding.urgency", Operator: OpEq, Value: "critical"},
			},
			Actions: []Action{
				{Type: ActionSetUI, Value: map[string]interface{}{"tone": "empathetic", "responseLength": "standard"}},
				{Type: ActionSetModel, Value: map[string]interface{}{"model": "standard", "maxTokens": 350}},
			},
		},
	}
}

func securityRules() []Rule {
	return []Rule{
		{
			Id:       "security_harassment",
			Name:     "Harassment risk -> owner only",
			Category: CategorySecurity,
			Priority: 29,
			Mode:     "both",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "understanding.risk.harassment", Operator: OpEq, Value: true},
			},
			Actions: []Action{
				{Type: ActionSetSecurityLevel, Value: SecurityOwnerOnly},
				{Type: ActionSetAction, Value: ActNotify},
			},
		},
		{
			Id:       "security_privacy_risk",
			Name:     "Privacy risk -> elevate security level",
			Category: CategorySecurity,
			Priority: 30,
			Mode:     "both",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "understanding.risk.privacy", Operator: OpEq, Value: true},
			},
			Actions: []Action{
				{Type: ActionSetSecurityLevel, Value: SecurityAuthenticated},
				{Type: ActionAppendContext, Value: []interface{}{"privacy_notice"}},
			},
		},
		{
			Id:       "security_order_details",
			Name:     "Order number detected -> require auth",
			Category: CategorySecurity,
			Priority: 31,
			Mode:     "both",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "understanding.entities.orderNumbers", Operator: OpExists, Value: true},
			},
			Actions: []Action{
				{Type: ActionSetSecurityLevel, Value: SecurityAuthenticated},
			},
		},
		{
			Id:       "security_phone_detected",
			Name:     "Phone number detected -> flag for redaction",
			Category: CategorySecurity,
			Priority: 32,
			Mode:     "both",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "understanding.entities.phoneNumbers", Operator: OpExists, Value: true},
			},
			Actions: []Action{
				{Type: ActionSetSecurityLevel, Value: SecurityAuthenticated},
				{Type: ActionAppendContext, Value: []interface{}{"pii_handling"}},
			},
		},
	}
}

func costRules() []Rule {
	return []Rule{
		{
			Id:       "cost_very_low_budget",
			Name:     "Very low budget -> minimal response",
			Category: CategoryCost,
			Priority: 39,
			Mode:     "both",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "ctx.limits.tokenBudgetRemaining", Operator: OpLt, Value: 1000},
			},
			Actions: []Action{
				{Type: ActionSetModel, Value: map[string]interface{}{"model": "nano", "maxTokens": 80, "fallback": "nano"}},
				{Type: ActionSetUI, Value: map[string]interface{}{"responseLength": "short"}},
				{Type: ActionSetAction, Value: ActClarify},
			},
		},
		{
			Id:       "cost_low_budget",
			Name:     "Low token budget -> force nano + short",
			Category: CategoryCost,
			Priority: 40,
			Mode:     "both",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "ctx.limits.tokenBudgetRemaining", Operator: OpLt, Value: 5000},
			},
			Actions: []Action{
				{Type: ActionSetModel, Value: map[string]interface{}{"model": "nano", "maxTokens": 160, "fallback": "nano"}},
				{Type: ActionSetUI, Value: map[string]interface{}{"responseLength": "short"}},
			},
		},
		{
			Id:       "cost_rate_limited",
			Name:     "Low rate limit -> short response",
			Category: CategoryCost,
			Priority: 41,
			Mode:     "both",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "ctx.limits.rateLimitRemaining", Operator: OpLt, Value: 10},
			},
			Actions: []Action{
				{Type: ActionSetModel, Value: map[string]interface{}{"model": "nano", "maxTokens": 120}},
				{Type: ActionSetUI, Value: map[string]interface{}{"responseLength": "short"}},
			},
		},
		{
			Id:       "cost_budget_warning",
			Name:     "Budget approaching limit -> optimize",
			Category: CategoryCost,
			Priority: 42,
			Mode:     "both",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "ctx.limits.costUsed", Operator: OpGt, Value: 80},
			},
			Actions: []Action{
				{Type: ActionSetModel, Value: map[string]interface{}{"model": "nano", "maxTokens": 200}},
			},
		},
	}
}

func personalizationRules() []Rule {
	return []Rule{
		{
			Id:       "tone_creator",
			Name:     "Creator mode -> casual friendly tone",
			Category: CategoryPersonalization,
			Priority: 50,
			Mode:     "creator",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "ctx.account.mode", Operator: OpEq, Value: "creator"},
			},
			Actions: []Action{
				{Type: ActionSetUI, Value: map[string]interface{}{"tone": "casual"}},
			},
		},
		{
			Id:       "tone_brand",
			Name:     "Brand mode -> professional tone",
			Category: CategoryPersonalization,
			Priority: 51,
			Mode:     "brand",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "ctx.account.mode", Operator: OpEq, Value: "brand"},
			},
			Actions: []Action{
				{Type: ActionSetUI, Value: map[string]interface{}{"tone": "professional"}},
			},
		},
		{
			Id:       "repeat_user_shorter",
			Name:     "Repeat visitor -> shorter greetings",
			Category: CategoryPersonalization,
			Priority: 52,
			Mode:     "both",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "ctx.user.isRepeatVisitor", Operator: OpEq, Value: true},
				{Field: "understanding.intent", Operator: OpEq, Value: "general"},
			},
			Actions: []Action{
				{Type: ActionSetUI, Value: map[string]interface{}{"responseLength": "short"}},
				{Type: ActionSetModel, Value: map[string]interface{}{"maxTokens": 180}},
			},
		},
		{
			Id:       "negative_sentiment_empathy",
			Name:     "Negative sentiment -> empathetic tone",
			Category: CategoryPersonalization,
			Priority: 53,
			Mode:     "both",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "understanding.sentiment", Operator: OpEq, Value: "negative"},
			},
			Actions: []Action{
				{Type: ActionSetUI, Value: map[string]interface{}{"tone": "empathetic"}},
			},
		},
		{
			Id:       "positive_sentiment_casual",
			Name:     "Positive sentiment -> keep casual",
			Category: CategoryPersonalization,
			Priority: 54,
			Mode:     "creator",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "understanding.sentiment", Operator: OpEq, Value: "positive"},
			},
			Actions: []Action{
				{Type: ActionSetUI, Value: map[string]interface{}{"tone": "casual"}},
			},
		},
		{
			Id:       "brand_mentioned_highlight",
			Name:     "Brand mentioned -> include brand context",
			Category: CategoryPersonalization,
			Priority: 55,
			Mode:     "both",
			Enabled:  true,
			Conditions: []Condition{
				{Field: "understanding.entities.brands", Operator: OpExists, Value: true},
			},
			Actions: []Action{
				{Type: ActionAppendContext, Value: []interface{}{"brands"}},
				{Type: ActionSetUI, Value: map[string]interface{}{"showCardList": "brands"}},
			},
		},
	}
}
