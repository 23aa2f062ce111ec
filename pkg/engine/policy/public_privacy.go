package policy

import (
	"regexp"
	"strings"
	"time"

	"audience-engine-be/pkg/engine/decision"
	"audience-engine-be/pkg/engine/understanding"
)

const (
	publicPrivacyPolicyId   = "no_public_order_details"
	publicPrivacyPolicyName = "No Public Order Details"
)

// checkPublicPrivacy keeps sensitive collection out of the public channel.
// It never blocks; it rewrites the decision so order and phone forms are
// replaced with private-channel quick actions.
func checkPublicPrivacy(input Input) CheckResult {
	applied := Applied{
		Id:        publicPrivacyPolicyId,
		Name:      publicPrivacyPolicyName,
		Category:  CategoryPrivacy,
		Result:    ResultAllow,
		AppliedAt: time.Now().UTC(),
	}

	if input.Security.Channel != "public_chat" {
		return CheckResult{Allowed: true, AppliedPolicies: []Applied{applied}}
	}

	var issues []string
	overrides := &Overrides{}
	ui := map[string]interface{}{}

	if input.Decision.UIDirectives.ShowForm == "order" {
		issues = append(issues, "order_form_blocked")
		ui["showForm"] = ""
		ui["showQuickActions"] = []string{"אשלח פרטים בפרטי", "צריך עזרה אחרת"}
	}

	if input.Decision.UIDirectives.ShowForm == "phone" {
		issues = append(issues, "phone_form_blocked")
		ui["showForm"] = ""
		ui["showQuickActions"] = []string{"אשלח טלפון בוואטסאפ", "צריך עזרה אחרת"}
	}

	if len(input.Understanding.PIIDetectedPaths) > 0 {
		issues = append(issues, "pii_in_message")
		overrides.ForceShortResponse = true
	}

	if containsString(input.Decision.ContextToInclude, "orderDetails") {
		issues = append(issues, "order_context_blocked")
		overrides.RemoveFromContext = append(overrides.RemoveFromContext,
			"orderDetails", "orderHistory", "customerPhone")
	}

	// Public support flow continues without the forms or progress bar; the
	// handler falls back to quick-action based collection.
	if input.Understanding.Intent == understanding.IntentSupport &&
		input.Decision.Handler == decision.HandlerSupportFlow {
		issues = append(issues, "support_flow_public_limited")
		ui["showQuickActions"] = []string{"פנייה דרך וואטסאפ", "פנייה דרך מייל", "להמשיך בצ'אט (ללא פרטי הזמנה)"}
		ui["showForm"] = ""
		ui["showProgress"] = nil
	}

	if len(issues) == 0 {
		return CheckResult{Allowed: true, AppliedPolicies: []Applied{applied}}
	}

	if len(ui) > 0 {
		overrides.UIDirectives = ui
	}
	warnings := make([]Warning, len(issues))
	for i, issue := range issues {
		warnings[i] = Warning{
			Code:     issue,
			Message:  "Blocked public collection of sensitive data: " + issue,
			Severity: SeverityMedium,
		}
	}

	applied.Result = ResultOverride
	return CheckResult{
		Allowed:         true,
		Warnings:        warnings,
		Overrides:       overrides,
		AppliedPolicies: []Applied{applied},
	}
}

var nonDigits = regexp.MustCompile(`\D`)

// MaskOrderNumber hides all but the last four digits, e.g. 12345678 becomes
// ****5678.
func MaskOrderNumber(orderNumber string) string {
	if len(orderNumber) <= 4 {
		return "****"
	}
	return "****" + orderNumber[len(orderNumber)-4:]
}

// MaskPhoneNumber keeps the prefix and last four digits, e.g. 0541234567
// becomes 054***4567.
func MaskPhoneNumber(phone string) string {
	cleaned := nonDigits.ReplaceAllString(phone, "")
	if len(cleaned) < 7 {
		return "***"
	}
	return cleaned[:3] + "***" + cleaned[len(cleaned)-4:]
}

// ScrubResponse masks detected order and phone numbers in outbound text.
// The orchestrator runs this on every public-channel response so a handler
// echoing the user's own message never leaks the raw identifiers.
func ScrubResponse(text string, entities understanding.Entities) string {
	for _, orderNumber := range entities.OrderNumbers {
		if orderNumber == "" {
			continue
		}
		text = strings.ReplaceAll(text, orderNumber, MaskOrderNumber(orderNumber))
	}
	for _, phone := range entities.PhoneNumbers {
		if phone == "" {
			continue
		}
		text = strings.ReplaceAll(text, phone, MaskPhoneNumber(phone))
	}
	return text
}

func containsString(items []string, needle string) bool {
	for _, item := range items {
		if strings.EqualFold(item, needle) {
			return true
		}
	}
	return false
}
