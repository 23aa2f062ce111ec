package statemachine

import (
	"sort"

	"audience-engine-be/pkg/engine/enginectx"
)

// Trigger is an event that may move a session between states. Triggers are
// events, never states.
type Trigger string

const (
	TriggerMessageReceived     Trigger = "message_received"
	TriggerQuickActionSelected Trigger = "quick_action_selected"
	TriggerBrandSelected       Trigger = "brand_selected"
	TriggerFormSubmitted       Trigger = "form_submitted"
	TriggerCancelled           Trigger = "cancelled"

	TriggerIntentDetectedSupport Trigger = "intent_detected_support"
	TriggerIntentDetectedSales   Trigger = "intent_detected_sales"
	TriggerIntentDetectedChat    Trigger = "intent_detected_chat"
	TriggerIntentAmbiguous       Trigger = "intent_ambiguous"
	TriggerValidationPassed      Trigger = "validation_passed"
	TriggerValidationFailed      Trigger = "validation_failed"
	TriggerActionCompleted       Trigger = "action_completed"
	TriggerActionFailed          Trigger = "action_failed"
	TriggerTimeout               Trigger = "timeout"

	TriggerEscalateToHuman Trigger = "escalate_to_human"
	TriggerHumanResponded  Trigger = "human_responded"
)

// Guard is a predicate evaluated against the request context before a
// transition is allowed. Guards never mutate.
type Guard struct {
	Name    string
	Check   func(ctx *enginectx.EngineContext) bool
	Message string
}

var (
	guardNotRateLimited = Guard{
		Name: "not_rate_limited",
		Check: func(ctx *enginectx.EngineContext) bool {
			return ctx.Limits.RateLimitRemaining > 0
		},
		Message: "rate limit exceeded",
	}
	guardHasBudget = Guard{
		Name: "has_budget",
		Check: func(ctx *enginectx.EngineContext) bool {
			return ctx.Limits.CostUsed < ctx.Limits.CostCeiling
		},
		Message: "budget exceeded",
	}
)

// Transition is one guarded edge in the state graph.
type Transition struct {
	From     []State
	To       State
	Trigger  Trigger
	Guards   []Guard
	Priority int // lower wins when several edges share a trigger
}

var transitions = []Transition{
	// Intent routing out of idle and active chat.
	{
		From:    []State{StateIdle, StateChatActive},
		To:      StateChatActive,
		Trigger: TriggerIntentDetectedChat,
		Guards:  []Guard{guardNotRateLimited},
	},
	{
		From:    []State{StateIdle, StateChatActive, StateChatClarifying},
		To:      StateSupportCollectBrand,
		Trigger: TriggerIntentDetectedSupport,
		Guards:  []Guard{guardNotRateLimited},
	},
	{
		From:    []State{StateIdle, StateChatActive, StateChatClarifying},
		To:      StateSalesBrowsing,
		Trigger: TriggerIntentDetectedSales,
		Guards:  []Guard{guardNotRateLimited},
	},
	{
		From:    []State{StateIdle, StateChatActive},
		To:      StateChatClarifying,
		Trigger: TriggerIntentAmbiguous,
		Guards:  []Guard{guardNotRateLimited},
	},
	{
		From:    []State{StateChatClarifying},
		To:      StateChatActive,
		Trigger: TriggerIntentDetectedChat,
		Guards:  []Guard{guardNotRateLimited},
	},

	// Support flow.
	{
		From:    []State{StateSupportCollectBrand},
		To:      StateSupportCollectName,
		Trigger: TriggerBrandSelected,
	},
	{
		From:    []State{StateSupportCollectName},
		To:      StateSupportCollectOrder,
		Trigger: TriggerFormSubmitted,
	},
	{
		From:    []State{StateSupportCollectOrder},
		To:      StateSupportCollectProblem,
		Trigger: TriggerFormSubmitted,
	},
	{
		From:    []State{StateSupportCollectProblem},
		To:      StateSupportCollectPhone,
		Trigger: TriggerFormSubmitted,
	},
	{
		From:    []State{StateSupportCollectPhone},
		To:      StateSupportConfirming,
		Trigger: TriggerFormSubmitted,
	},
	{
		From:    []State{StateSupportConfirming},
		To:      StateSupportSending,
		Trigger: TriggerValidationPassed,
	},
	{
		From:    []State{StateSupportConfirming},
		To:      StateSupportCollectPhone,
		Trigger: TriggerValidationFailed,
	},
	{
		From:    []State{StateSupportSending},
		To:      StateSupportComplete,
		Trigger: TriggerActionCompleted,
	},
	{
		From:    []State{StateSupportSending},
		To:      StateError,
		Trigger: TriggerActionFailed,
	},
	{
		From: []State{
			StateSupportCollectBrand,
			StateSupportCollectName,
			StateSupportCollectOrder,
			StateSupportCollectProblem,
			StateSupportCollectPhone,
			StateSupportConfirming,
		},
		To:      StateSupportCancelled,
		Trigger: TriggerCancelled,
	},
	{
		From: []State{
			StateSupportCollectBrand,
			StateSupportCollectName,
			StateSupportCollectOrder,
			StateSupportCollectProblem,
			StateSupportCollectPhone,
		},
		To:      StateSupportCancelled,
		Trigger: TriggerTimeout,
	},

	// Sales flow.
	{
		From:    []State{StateSalesBrowsing},
		To:      StateSalesRecommending,
		Trigger: TriggerQuickActionSelected,
	},
	{
		From:    []State{StateSalesRecommending},
		To:      StateSalesComparing,
		Trigger: TriggerQuickActionSelected,
	},
	{
		From:    []State{StateSalesBrowsing, StateSalesRecommending, StateSalesComparing},
		To:      StateSalesCheckout,
		Trigger: TriggerValidationPassed,
	},
	{
		From:    []State{StateSalesCheckout},
		To:      StateSalesComplete,
		Trigger: TriggerActionCompleted,
	},

	// Terminal states wake back to idle on the next message.
	{
		From:    []State{StateSupportComplete, StateSupportCancelled, StateSalesComplete, StateComplete},
		To:      StateIdle,
		Trigger: TriggerMessageReceived,
		Guards:  []Guard{guardNotRateLimited},
	},

	// Human escalation and return.
	{
		From:    []State{StateChatActive, StateChatClarifying, StateIdle},
		To:      StateChatWaitingForHuman,
		Trigger: TriggerEscalateToHuman,
	},
	{
		From:    []State{StateChatWaitingForHuman},
		To:      StateChatActive,
		Trigger: TriggerHumanResponded,
	},
	{
		From:    []State{StateChatClarifying},
		To:      StateIdle,
		Trigger: TriggerTimeout,
	},
}

// edgesFrom returns the transitions leaving state for trigger, priority order.
func edgesFrom(state State, trigger Trigger) []Transition {
	var out []Transition
	for _, t := range transitions {
		if t.Trigger != trigger {
			continue
		}
		for _, from := range t.From {
			if from == state {
				out = append(out, t)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}
