package decision

import (
	"fmt"

	"audience-engine-be/pkg/engine/enginectx"
	"audience-engine-be/pkg/engine/understanding"
)

// buildDefaultDecision is the baseline every rule pass starts from. Rules
// only ever narrow or redirect it; they never start from nothing.
func buildDefaultDecision(input Input) *Result {
	tone := "professional"
	if input.Ctx.Account.Mode == enginectx.ModeCreator {
		tone = "casual"
	}

	return &Result{
		Action:   defaultActionForIntent(input.Understanding.Intent),
		Handler:  understanding.HandlerForIntent(input.Understanding.Intent),
		Priority: 5,
		ResponseStrategy: ResponseStrategy{
			Type:             "with_context",
			ContextToInclude: []string{"persona", "brands"},
		},
		ContextToInclude: []string{"persona", "brands"},
		UIDirectives: UIDirectives{
			Layout:           "chat",
			Tone:             tone,
			ResponseLength:   "standard",
			ShowQuickActions: []string{"קופונים", "המלצות", "בעיה בהזמנה"},
		},
		Channel: "chat",
		ModelStrategy: ModelStrategy{
			Model:       ModelNano,
			Fallback:    ModelStandard,
			MaxTokens:   300,
			Temperature: 0.7,
			TimeoutMs:   30000,
			Retries:     2,
		},
		SecurityLevel: SecurityPublic,
		CostEstimate:  CostEstimate{ModelUsed: ModelNano},
		Reasoning:     fmt.Sprintf("Default decision for intent: %s", input.Understanding.Intent),
		RulesApplied:  []Application{},
		IdempotencyKey: fmt.Sprintf("dec:%s:%s:%d",
			input.Ctx.Account.Id, input.Ctx.Session.Id, input.Ctx.Session.Version),
		TraceId:   input.TraceId,
		RequestId: input.RequestId,
	}
}

func defaultActionForIntent(intent understanding.Intent) string {
	switch intent {
	case understanding.IntentHandoffHuman:
		return ActEscalate
	case understanding.IntentAbuse:
		return ActNotify
	case understanding.IntentUnknown:
		return ActClarify
	default:
		return ActRespond
	}
}
