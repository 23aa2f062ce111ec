package decision

import (
	"encoding/json"

	"audience-engine-be/pkg/engine/enginectx"
)

// applyAction mutates the decision per one rule action. Partial-object
// actions (set_model, set_ui, set_response_strategy) merge shallowly: keys
// present in the action value replace the current ones, including arrays.
func applyAction(decision *Result, action Action, ctx *enginectx.EngineContext) {
	switch action.Type {
	case ActionSetHandler:
		if v, ok := action.Value.(string); ok {
			decision.Handler = v
		}

	case ActionSetAction:
		if v, ok := action.Value.(string); ok {
			decision.Action = v
		}

	case ActionSetSecurityLevel:
		if v, ok := action.Value.(string); ok {
			decision.SecurityLevel = v
		}

	case ActionSetModel:
		overlayStruct(&decision.ModelStrategy, action.Value)

	case ActionSetUI:
		overlayStruct(&decision.UIDirectives, action.Value)

	case ActionTransitionState:
		reason := action.Reason
		if reason == "" {
			reason = action.Type
		}
		decision.StateTransition = &StateTransition{
			From:   ctx.Session.State,
			To:     action.To,
			Reason: reason,
		}

	case ActionAppendContext:
		decision.ContextToInclude = unionStrings(decision.ContextToInclude, stringSlice(action.Value))
		decision.ResponseStrategy.ContextToInclude = decision.ContextToInclude

	case ActionSetResponseStrategy:
		overlayStruct(&decision.ResponseStrategy, action.Value)
	}
}

// overlayStruct merges a partial value (a map decoded from rule JSON) onto
// target, key by key, through the struct's json tags.
func overlayStruct(target interface{}, partial interface{}) {
	partialMap, ok := partial.(map[string]interface{})
	if !ok || len(partialMap) == 0 {
		return
	}

	base := map[string]interface{}{}
	if raw, err := json.Marshal(target); err == nil {
		_ = json.Unmarshal(raw, &base)
	}
	for k, v := range partialMap {
		base[k] = v
	}
	if raw, err := json.Marshal(base); err == nil {
		_ = json.Unmarshal(raw, target)
	}
}

// unionStrings appends additions not already present, preserving order.
func unionStrings(base, additions []string) []string {
	seen := make(map[string]bool, len(base))
	out := make([]string, 0, len(base)+len(additions))
	for _, s := range base {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range additions {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func stringSlice(v interface{}) []string {
	switch items := v.(type) {
	case []string:
		return items
	case []interface{}:
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
