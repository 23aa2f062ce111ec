package statemachine

import (
	"fmt"

	"audience-engine-be/internal/pkg/logger"
	"audience-engine-be/pkg/engine/enginectx"
)

// Machine resolves transitions against the static edge table. It is pure:
// the caller commits the resolved state under the session lock with a
// version check.
type Machine struct {
	logger logger.ILogger
}

func NewMachine(log logger.ILogger) *Machine {
	return &Machine{logger: log}
}

// Resolution is the outcome of a transition request.
type Resolution struct {
	From    State
	To      State
	Trigger Trigger
	// GuardFailure holds the message of the first failed guard when the
	// transition was refused for guard reasons.
	GuardFailure string
}

// Resolve finds the transition for (state, trigger) and evaluates its guards.
// No matching edge is an error; a failed guard is a refusal, reported in the
// resolution without error.
func (m *Machine) Resolve(state State, trigger Trigger, ctx *enginectx.EngineContext) (*Resolution, error) {
	if !IsKnown(state) {
		return nil, fmt.Errorf("unknown state %q", state)
	}

	edges := edgesFrom(state, trigger)
	if len(edges) == 0 {
		return nil, fmt.Errorf("no transition from %s on %s", state, trigger)
	}

	for _, edge := range edges {
		if msg, ok := m.guardsPass(edge, ctx); !ok {
			m.logger.Debug("StateMachine", "guard refused transition", map[string]interface{}{
				"from":    string(state),
				"to":      string(edge.To),
				"trigger": string(trigger),
				"guard":   msg,
			})
			return &Resolution{From: state, To: state, Trigger: trigger, GuardFailure: msg}, nil
		}
		return &Resolution{From: state, To: edge.To, Trigger: trigger}, nil
	}
	return nil, fmt.Errorf("no transition from %s on %s", state, trigger)
}

// CanTransition reports whether the trigger would move the session, without
// resolving a target.
func (m *Machine) CanTransition(state State, trigger Trigger, ctx *enginectx.EngineContext) bool {
	for _, edge := range edgesFrom(state, trigger) {
		if _, ok := m.guardsPass(edge, ctx); ok {
			return true
		}
	}
	return false
}

// AllowedTriggers lists the triggers with at least one edge out of state.
func (m *Machine) AllowedTriggers(state State) []Trigger {
	seen := make(map[Trigger]bool)
	var out []Trigger
	for _, t := range transitions {
		for _, from := range t.From {
			if from == state && !seen[t.Trigger] {
				seen[t.Trigger] = true
				out = append(out, t.Trigger)
			}
		}
	}
	return out
}

func (m *Machine) guardsPass(edge Transition, ctx *enginectx.EngineContext) (string, bool) {
	for _, g := range edge.Guards {
		if !g.Check(ctx) {
			return g.Message, false
		}
	}
	return "", true
}

// TriggerTo finds the trigger of an edge from one state directly to another.
// Decision rules request transitions by target state; the orchestrator maps
// the target back to an edge so guards and priorities still apply.
func TriggerTo(from, to State) (Trigger, bool) {
	for _, t := range transitions {
		if t.To != to {
			continue
		}
		for _, f := range t.From {
			if f == from {
				return t.Trigger, true
			}
		}
	}
	return "", false
}

// TriggerForIntent maps a detected intent to the transition trigger the
// pipeline fires after understanding.
func TriggerForIntent(intent string) Trigger {
	switch intent {
	case "support":
		return TriggerIntentDetectedSupport
	case "sales", "coupon":
		return TriggerIntentDetectedSales
	case "handoff_human":
		return TriggerEscalateToHuman
	case "unknown":
		return TriggerIntentAmbiguous
	default:
		return TriggerIntentDetectedChat
	}
}
