package dto

import (
	"encoding/json"

	"audience-engine-be/pkg/engine/decision"
)

type ChatMessageRequest struct {
	AccountId       string `json:"account_id" validate:"required,uuid4"`
	SessionId       string `json:"session_id,omitempty" validate:"omitempty,uuid4"`
	AnonId          string `json:"anon_id,omitempty"`
	Message         string `json:"message" validate:"required,min=1,max=2000"`
	ClientMessageId string `json:"client_message_id,omitempty"`
	Source          string `json:"source,omitempty" validate:"omitempty,oneof=public_chat dashboard widget"`

	// Filled by middleware, not by the client.
	IPHash    string `json:"-"`
	UserAgent string `json:"-"`
}

type ChatMessageResponse struct {
	SessionId    string                 `json:"session_id"`
	State        string                 `json:"state"`
	Text         string                 `json:"text,omitempty"`
	UIDirectives *decision.UIDirectives `json:"ui_directives,omitempty"`
	Blocked      bool                   `json:"blocked"`
	Reason       string                 `json:"reason,omitempty"`
	Cached       bool                   `json:"cached"`
	CachedResult json.RawMessage        `json:"cached_result,omitempty"`
	TraceId      string                 `json:"trace_id"`
}

type ChatActionRequest struct {
	AccountId  string `json:"account_id" validate:"required,uuid4"`
	SessionId  string `json:"session_id" validate:"required,uuid4"`
	ActionType string `json:"action_type" validate:"required,oneof=quick_action coupon_copied link_clicked form_submitted"`
	ActionId   string `json:"action_id,omitempty"`
	Label      string `json:"label,omitempty"`
}

type ChatActionResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}
