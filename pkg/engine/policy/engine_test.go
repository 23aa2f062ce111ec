package policy

import (
	"context"
	"testing"
	"time"

	"audience-engine-be/pkg/engine/decision"
	"audience-engine-be/pkg/engine/enginectx"
	"audience-engine-be/pkg/engine/ratelimit"
	"audience-engine-be/pkg/engine/understanding"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(string, string, map[string]interface{}) {}
func (nopLogger) Info(string, string, map[string]interface{})  {}
func (nopLogger) Warn(string, string, map[string]interface{})  {}
func (nopLogger) Error(string, string, map[string]interface{}) {}
func (nopLogger) Sync() error                                  { return nil }

func testLimiter(sessionLimit int) *ratelimit.Limiter {
	return ratelimit.NewLimiter(ratelimit.NewMemoryCounterStore(), ratelimit.Config{
		Session: ratelimit.Rule{Limit: sessionLimit, Window: time.Minute},
		Anon:    ratelimit.Rule{Limit: 100, Window: time.Minute},
		Account: ratelimit.Rule{Limit: 1000, Window: time.Minute},
		Action:  ratelimit.Rule{Limit: 30, Window: time.Minute},
	}, nopLogger{})
}

func testInput(securityLevel string) Input {
	return Input{
		Ctx: &enginectx.EngineContext{
			Account: enginectx.AccountContext{Id: "acct-1", Mode: "creator"},
			Session: enginectx.SessionContext{Id: "sess-1", Version: 1},
			User:    enginectx.UserContext{AnonId: "anon-1"},
			Limits:  enginectx.LimitsContext{CostCeiling: 10, CostUsed: 1},
		},
		Understanding: &understanding.Result{Intent: understanding.IntentGeneral},
		Decision: &decision.Result{
			Handler:          decision.HandlerChat,
			Action:           decision.ActRespond,
			SecurityLevel:    securityLevel,
			ContextToInclude: []string{"persona", "brands"},
		},
		Security: SecurityContext{
			Channel: "public_chat",
			Auth:    AuthContext{},
			Consents: Consents{
				AllowEscalationToHuman: true,
				AllowWhatsapp:          true,
			},
		},
	}
}

func TestCheckOwnerOnlyBlocksAnonymous(t *testing.T) {
	e := NewEngine(testLimiter(100), nopLogger{})
	input := testInput(decision.SecurityOwnerOnly)

	result := e.Check(context.Background(), input)

	assert.False(t, result.Allowed)
	assert.Equal(t, "security_level", result.BlockedByRule)
	assert.Equal(t, "פעולה זו דורשת התחברות כבעל החשבון", result.BlockedReason)
	require.NotNil(t, result.Overrides)
	assert.Equal(t, decision.HandlerChat, result.Overrides.Handler)
	assert.Equal(t, "auth_required", result.Overrides.ForceResponseTemplate)
	assert.Contains(t, result.Overrides.RemoveFromContext, "orderDetails")
}

func TestCheckOwnerOnlyAllowsOwner(t *testing.T) {
	e := NewEngine(testLimiter(100), nopLogger{})
	input := testInput(decision.SecurityOwnerOnly)
	input.Security.Auth = AuthContext{IsAuthenticated: true, IsOwner: true, Role: "owner"}

	result := e.Check(context.Background(), input)

	assert.True(t, result.Allowed)
	assert.Nil(t, result.Overrides)
}

func TestCheckAuthenticatedDowngradesAnonymous(t *testing.T) {
	e := NewEngine(testLimiter(100), nopLogger{})
	input := testInput(decision.SecurityAuthenticated)

	result := e.Check(context.Background(), input)

	assert.True(t, result.Allowed, "downgrade, not block")
	require.NotNil(t, result.Overrides)
	assert.Equal(t, decision.SecurityPublic, result.Overrides.SecurityLevel)
	assert.Contains(t, result.Overrides.RemoveFromContext, "supportHistory")

	var codes []string
	for _, w := range result.Warnings {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, "auth_downgrade")
}

func TestCheckPublicSupportFlowLosesForms(t *testing.T) {
	e := NewEngine(testLimiter(100), nopLogger{})
	input := testInput(decision.SecurityPublic)
	input.Understanding.Intent = understanding.IntentSupport
	input.Decision.Handler = decision.HandlerSupportFlow
	input.Decision.UIDirectives.ShowProgress = &decision.ProgressDirective{Current: 1, Total: 5}

	result := e.Check(context.Background(), input)

	assert.True(t, result.Allowed)
	require.NotNil(t, result.Overrides)
	quickActions, ok := result.Overrides.UIDirectives["showQuickActions"].([]string)
	require.True(t, ok)
	assert.Contains(t, quickActions, "פנייה דרך וואטסאפ")

	var codes []string
	for _, w := range result.Warnings {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, "support_flow_public_limited")
}

func TestCheckDashboardChannelSkipsPrivacy(t *testing.T) {
	e := NewEngine(testLimiter(100), nopLogger{})
	input := testInput(decision.SecurityPublic)
	input.Security.Channel = "dashboard"
	input.Security.Auth = AuthContext{IsAuthenticated: true, IsOwner: true}
	input.Understanding.Intent = understanding.IntentSupport
	input.Decision.Handler = decision.HandlerSupportFlow
	input.Decision.UIDirectives.ShowForm = "order"

	result := e.Check(context.Background(), input)

	assert.True(t, result.Allowed)
	assert.Nil(t, result.Overrides, "owner on dashboard keeps forms")
}

func TestCheckSessionRateLimitBlocks(t *testing.T) {
	e := NewEngine(testLimiter(1), nopLogger{})
	ctx := context.Background()

	first := e.Check(ctx, testInput(decision.SecurityPublic))
	assert.True(t, first.Allowed)

	second := e.Check(ctx, testInput(decision.SecurityPublic))
	assert.False(t, second.Allowed)
	assert.Equal(t, "rate_limit", second.BlockedByRule)
	assert.Contains(t, second.BlockedReason, "יותר מדי הודעות")
	require.NotNil(t, second.Overrides)
	assert.Equal(t, "rate_limit_exceeded", second.Overrides.ForceResponseTemplate)
}

func TestCheckBudgetCriticalForcesShort(t *testing.T) {
	e := NewEngine(testLimiter(100), nopLogger{})
	input := testInput(decision.SecurityPublic)
	input.Ctx.Limits.CostUsed = 9.5 // 95%

	result := e.Check(context.Background(), input)

	assert.True(t, result.Allowed, "budget never blocks")
	require.NotNil(t, result.Overrides)
	assert.True(t, result.Overrides.ForceShortResponse)

	require.NotEmpty(t, result.Warnings)
	assert.Equal(t, "cost_budget_critical", result.Warnings[0].Code)
	assert.Equal(t, SeverityHigh, result.Warnings[0].Severity)
}

func TestCheckBudgetWarningOnly(t *testing.T) {
	e := NewEngine(testLimiter(100), nopLogger{})
	input := testInput(decision.SecurityPublic)
	input.Ctx.Limits.CostUsed = 8 // 80%

	result := e.Check(context.Background(), input)

	assert.True(t, result.Allowed)
	assert.Nil(t, result.Overrides)
	require.NotEmpty(t, result.Warnings)
	assert.Equal(t, "cost_budget_warning", result.Warnings[0].Code)
}

func TestApplyOverrides(t *testing.T) {
	d := &decision.Result{
		Handler:          decision.HandlerSupportFlow,
		SecurityLevel:    decision.SecurityAuthenticated,
		ContextToInclude: []string{"persona", "orderDetails", "brands"},
		UIDirectives: decision.UIDirectives{
			ShowForm:       "order",
			Tone:           "empathetic",
			ResponseLength: "standard",
		},
		ResponseStrategy: decision.ResponseStrategy{
			Type:             "with_context",
			ContextToInclude: []string{"persona", "orderDetails", "brands"},
		},
	}

	updated := ApplyOverrides(d, &Overrides{
		Handler:           decision.HandlerChat,
		SecurityLevel:     decision.SecurityPublic,
		RemoveFromContext: []string{"orderDetails"},
		UIDirectives: map[string]interface{}{
			"showForm":         "", // empty deletes the key
			"showQuickActions": []string{"אשלח פרטים בפרטי"},
		},
		ForceResponseTemplate: "auth_required",
		ForceShortResponse:    true,
	})

	assert.Equal(t, decision.HandlerChat, updated.Handler)
	assert.Equal(t, decision.SecurityPublic, updated.SecurityLevel)
	assert.Empty(t, updated.UIDirectives.ShowForm)
	assert.Equal(t, []string{"אשלח פרטים בפרטי"}, updated.UIDirectives.ShowQuickActions)
	assert.Equal(t, "empathetic", updated.UIDirectives.Tone, "unrelated directives survive the merge")
	assert.Equal(t, []string{"persona", "brands"}, updated.ContextToInclude)
	assert.Equal(t, "template", updated.ResponseStrategy.Type)
	assert.Equal(t, "auth_required", updated.ResponseStrategy.TemplateId)
	assert.Equal(t, "short", updated.UIDirectives.ResponseLength)

	// Original is untouched.
	assert.Equal(t, decision.HandlerSupportFlow, d.Handler)
	assert.Equal(t, "order", d.UIDirectives.ShowForm)
}

func TestMaskOrderNumber(t *testing.T) {
	assert.Equal(t, "****5678", MaskOrderNumber("12345678"))
	assert.Equal(t, "****", MaskOrderNumber("123"))
}

func TestMaskPhoneNumber(t *testing.T) {
	assert.Equal(t, "054***4567", MaskPhoneNumber("0541234567"))
	assert.Equal(t, "054***4567", MaskPhoneNumber("054-123-4567"))
	assert.Equal(t, "***", MaskPhoneNumber("123"))
}

func TestScrubResponseMasksDetectedEntities(t *testing.T) {
	entities := understanding.Entities{
		OrderNumbers: []string{"12345678"},
		PhoneNumbers: []string{"0541234567"},
	}

	scrubbed := ScrubResponse("ההזמנה 12345678 תישלח, נתקשר ל-0541234567", entities)
	assert.NotContains(t, scrubbed, "12345678")
	assert.NotContains(t, scrubbed, "0541234567")
	assert.Contains(t, scrubbed, "****5678")
	assert.Contains(t, scrubbed, "054***4567")

	// Text without the detected values passes through untouched.
	assert.Equal(t, "תודה רבה!", ScrubResponse("תודה רבה!", entities))
}

func TestBuildSecurityContext(t *testing.T) {
	ctx := &enginectx.EngineContext{
		Request: enginectx.RequestContext{Source: "dashboard", IPHash: "abc"},
	}
	sc := BuildSecurityContext(ctx, "test-agent")
	assert.Equal(t, "dashboard", sc.Channel)
	assert.True(t, sc.Auth.IsOwner)

	ctx.Request.Source = "widget"
	sc = BuildSecurityContext(ctx, "test-agent")
	assert.Equal(t, "public_chat", sc.Channel)
	assert.False(t, sc.Auth.IsAuthenticated)
	assert.True(t, sc.Consents.AllowEscalationToHuman)
}
