// Package statemachine defines the hierarchical conversation states and the
// guarded transition table between them. The machine only resolves and
// validates transitions; committing the new state is the caller's job, under
// the session lock and version check.
package statemachine

import "strings"

// State is a single concrete conversation state. Sub-states are written
// Parent.Child, e.g. Support.CollectPhone.
type State string

const (
	StateIdle State = "Idle"

	StateChatActive          State = "Chat.Active"
	StateChatClarifying      State = "Chat.Clarifying"
	StateChatWaitingForHuman State = "Chat.WaitingForHuman"

	StateSupportCollectBrand   State = "Support.CollectBrand"
	StateSupportCollectName    State = "Support.CollectName"
	StateSupportCollectOrder   State = "Support.CollectOrder"
	StateSupportCollectProblem State = "Support.CollectProblem"
	StateSupportCollectPhone   State = "Support.CollectPhone"
	StateSupportConfirming     State = "Support.Confirming"
	StateSupportSending        State = "Support.Sending"
	StateSupportComplete       State = "Support.Complete"
	StateSupportCancelled      State = "Support.Cancelled"

	StateSalesBrowsing     State = "Sales.Browsing"
	StateSalesRecommending State = "Sales.Recommending"
	StateSalesComparing    State = "Sales.Comparing"
	StateSalesCheckout     State = "Sales.Checkout"
	StateSalesComplete     State = "Sales.Complete"

	StateComplete State = "Complete"
	StateError    State = "Error"
)

// Metadata describes a state's standing properties.
type Metadata struct {
	Parent        string
	IsTerminal    bool
	AllowsInput   bool
	Timeout       int64 // milliseconds, 0 = no timeout
	TimeoutTarget State
}

var stateMetadata = map[State]Metadata{
	StateIdle: {AllowsInput: true},

	StateChatActive:          {Parent: "Chat", AllowsInput: true},
	StateChatClarifying:      {Parent: "Chat", AllowsInput: true, Timeout: 300000, TimeoutTarget: StateIdle},
	StateChatWaitingForHuman: {Parent: "Chat"},

	StateSupportCollectBrand:   {Parent: "Support", AllowsInput: true, Timeout: 600000, TimeoutTarget: StateSupportCancelled},
	StateSupportCollectName:    {Parent: "Support", AllowsInput: true},
	StateSupportCollectOrder:   {Parent: "Support", AllowsInput: true},
	StateSupportCollectProblem: {Parent: "Support", AllowsInput: true},
	StateSupportCollectPhone:   {Parent: "Support", AllowsInput: true},
	StateSupportConfirming:     {Parent: "Support", AllowsInput: true},
	StateSupportSending:        {Parent: "Support"},
	StateSupportComplete:       {Parent: "Support", IsTerminal: true},
	StateSupportCancelled:      {Parent: "Support", IsTerminal: true},

	StateSalesBrowsing:     {Parent: "Sales", AllowsInput: true},
	StateSalesRecommending: {Parent: "Sales", AllowsInput: true},
	StateSalesComparing:    {Parent: "Sales", AllowsInput: true},
	StateSalesCheckout:     {Parent: "Sales", AllowsInput: true},
	StateSalesComplete:     {Parent: "Sales", IsTerminal: true},

	StateComplete: {IsTerminal: true},
	StateError:    {IsTerminal: true},
}

// MetadataOf returns the state's metadata. Unknown states get zero metadata,
// which reads as non-terminal and input-refusing.
func MetadataOf(state State) Metadata {
	return stateMetadata[state]
}

// IsKnown reports whether the state exists in the metadata table.
func IsKnown(state State) bool {
	_, ok := stateMetadata[state]
	return ok
}

// FlowOf returns the top-level flow a state belongs to, e.g. "Support" for
// Support.CollectPhone and "Idle" for Idle.
func FlowOf(state State) string {
	if meta, ok := stateMetadata[state]; ok && meta.Parent != "" {
		return meta.Parent
	}
	if idx := strings.Index(string(state), "."); idx > 0 {
		return string(state)[:idx]
	}
	return string(state)
}

// IsInFlow reports whether the state belongs to the given flow.
func IsInFlow(state State, flow string) bool {
	return FlowOf(state) == flow
}

// IsTerminal reports whether the state ends its flow.
func IsTerminal(state State) bool {
	return stateMetadata[state].IsTerminal
}

// AllowsInput reports whether the state accepts user messages.
func AllowsInput(state State) bool {
	return stateMetadata[state].AllowsInput
}
