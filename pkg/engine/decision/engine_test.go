package decision

import (
	"context"
	"testing"

	"audience-engine-be/pkg/engine/enginectx"
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

func testCtx(mode string) *enginectx.EngineContext {
	return &enginectx.EngineContext{
		Account: enginectx.AccountContext{
			Id:       "acct-1",
			Mode:     mode,
			Plan:     "pro",
			Language: "he",
		},
		Session: enginectx.SessionContext{
			Id:      "sess-1",
			State:   "Idle",
			Version: 3,
		},
		Limits: enginectx.LimitsContext{
			TokenBudgetRemaining: 50000,
			TokenBudgetTotal:     100000,
			CostCeiling:          10,
			CostUsed:             1,
			RateLimitRemaining:   50,
		},
	}
}

func testUnderstanding(intent understanding.Intent, confidence float64) *understanding.Result {
	return &understanding.Result{
		Intent:     intent,
		Confidence: confidence,
		Topic:      "general",
		Urgency:    understanding.UrgencyLow,
		Sentiment:  understanding.SentimentNeutral,
	}
}

func newTestEngine() *Engine {
	return NewEngine(NewStaticRegistry(), nopLogger{})
}

func TestDecideDefaultForGeneralIntent(t *testing.T) {
	e := newTestEngine()

	d := e.Decide(context.Background(), Input{
		Ctx:           testCtx(enginectx.ModeCreator),
		Understanding: testUnderstanding(understanding.IntentGeneral, 0.9),
	})

	assert.Equal(t, HandlerChat, d.Handler)
	assert.Equal(t, ActRespond, d.Action)
	assert.Equal(t, SecurityPublic, d.SecurityLevel)
	assert.Equal(t, "casual", d.UIDirectives.Tone)
	assert.Equal(t, ModelNano, d.ModelStrategy.Model)
	assert.Equal(t, "dec:acct-1:sess-1:3", d.IdempotencyKey)
}

func TestDecideCouponRouting(t *testing.T) {
	e := newTestEngine()

	d := e.Decide(context.Background(), Input{
		Ctx:           testCtx(enginectx.ModeCreator),
		Understanding: testUnderstanding(understanding.IntentCoupon, 0.9),
	})

	assert.Equal(t, HandlerChat, d.Handler)
	assert.Equal(t, "brands", d.UIDirectives.ShowCardList)
	assert.Equal(t, "cards_first", d.UIDirectives.Layout)
	assert.Equal(t, "short", d.UIDirectives.ResponseLength)
	assert.Equal(t, 220, d.ModelStrategy.MaxTokens)
	assert.Contains(t, d.ContextToInclude, "coupon_policy")
	assert.Contains(t, ruleIds(d), "routing_coupon")
}

func TestDecideSupportRoutingRecordsTransition(t *testing.T) {
	e := newTestEngine()

	d := e.Decide(context.Background(), Input{
		Ctx:           testCtx(enginectx.ModeCreator),
		Understanding: testUnderstanding(understanding.IntentSupport, 0.9),
	})

	assert.Equal(t, HandlerSupportFlow, d.Handler)
	require.NotNil(t, d.StateTransition)
	assert.Equal(t, "Idle", d.StateTransition.From)
	assert.Equal(t, "Support.CollectBrand", d.StateTransition.To)
	assert.Equal(t, "empathetic", d.UIDirectives.Tone)
	require.NotNil(t, d.UIDirectives.ShowProgress)
	assert.Equal(t, 1, d.UIDirectives.ShowProgress.Current)
	assert.Equal(t, 5, d.UIDirectives.ShowProgress.Total)
}

func TestDecideLowConfidenceClarifies(t *testing.T) {
	e := newTestEngine()

	d := e.Decide(context.Background(), Input{
		Ctx:           testCtx(enginectx.ModeCreator),
		Understanding: testUnderstanding(understanding.IntentGeneral, 0.3),
	})

	assert.Equal(t, ActClarify, d.Action)
	assert.Contains(t, ruleIds(d), "escalation_low_confidence")
}

func TestDecideAbuseGoesOwnerOnly(t *testing.T) {
	e := newTestEngine()

	d := e.Decide(context.Background(), Input{
		Ctx:           testCtx(enginectx.ModeCreator),
		Understanding: testUnderstanding(understanding.IntentAbuse, 0.95),
	})

	assert.Equal(t, ActNotify, d.Action)
	assert.Equal(t, HandlerNotificationOnly, d.Handler)
	assert.Equal(t, SecurityOwnerOnly, d.SecurityLevel)
}

func TestDecidePhoneEntityElevatesSecurity(t *testing.T) {
	e := newTestEngine()
	u := testUnderstanding(understanding.IntentGeneral, 0.9)
	u.Entities.PhoneNumbers = []string{"0541234567"}

	d := e.Decide(context.Background(), Input{
		Ctx:           testCtx(enginectx.ModeCreator),
		Understanding: u,
	})

	assert.Equal(t, SecurityAuthenticated, d.SecurityLevel)
	assert.Contains(t, d.ContextToInclude, "pii_handling")
}

func TestDecideLowBudgetForcesNano(t *testing.T) {
	e := newTestEngine()
	ctx := testCtx(enginectx.ModeCreator)
	ctx.Limits.TokenBudgetRemaining = 3000

	d := e.Decide(context.Background(), Input{
		Ctx:           ctx,
		Understanding: testUnderstanding(understanding.IntentSales, 0.9),
	})

	// routing_sales sets standard/350, then cost_low_budget overrides.
	assert.Equal(t, ModelNano, d.ModelStrategy.Model)
	assert.Equal(t, 160, d.ModelStrategy.MaxTokens)
	assert.Equal(t, "short", d.UIDirectives.ResponseLength)
	assert.Equal(t, HandlerSalesFlow, d.Handler, "routing survives the cost clamp")
}

func TestDecideModeFiltering(t *testing.T) {
	e := newTestEngine()

	d := e.Decide(context.Background(), Input{
		Ctx:           testCtx(enginectx.ModeBrand),
		Understanding: testUnderstanding(understanding.IntentGeneral, 0.9),
	})

	ids := ruleIds(d)
	assert.Contains(t, ids, "tone_brand")
	assert.NotContains(t, ids, "tone_creator")
	assert.Equal(t, "professional", d.UIDirectives.Tone)
}

func TestDecideAccountScopedRule(t *testing.T) {
	otherAccount := Rule{
		Id:        "custom_other",
		Name:      "Belongs to someone else",
		Category:  CategoryRouting,
		Priority:  60,
		Mode:      "both",
		AccountId: "acct-other",
		Enabled:   true,
		Conditions: []Condition{
			{Field: "understanding.intent", Operator: OpEq, Value: "general"},
		},
		Actions: []Action{{Type: ActionSetHandler, Value: HandlerHuman}},
	}
	e := NewEngine(NewStaticRegistry(otherAccount), nopLogger{})

	d := e.Decide(context.Background(), Input{
		Ctx:           testCtx(enginectx.ModeCreator),
		Understanding: testUnderstanding(understanding.IntentGeneral, 0.9),
	})

	assert.NotContains(t, ruleIds(d), "custom_other")
	assert.Equal(t, HandlerChat, d.Handler)
}

func TestDecideIsDeterministic(t *testing.T) {
	e := newTestEngine()
	input := Input{
		Ctx:           testCtx(enginectx.ModeCreator),
		Understanding: testUnderstanding(understanding.IntentCoupon, 0.8),
	}

	a := e.Decide(context.Background(), input)
	b := e.Decide(context.Background(), input)

	assert.Equal(t, a.Handler, b.Handler)
	assert.Equal(t, a.Action, b.Action)
	assert.Equal(t, a.SecurityLevel, b.SecurityLevel)
	assert.Equal(t, a.UIDirectives, b.UIDirectives)
	assert.Equal(t, a.ModelStrategy, b.ModelStrategy)
	assert.Equal(t, a.ContextToInclude, b.ContextToInclude)
	assert.Equal(t, ruleIds(a), ruleIds(b))
}

func TestRulesSeeEarlierMutations(t *testing.T) {
	// The second rule matches on what the first one wrote.
	first := Rule{
		Id: "chain_1", Name: "chain 1", Category: CategoryRouting, Priority: 101,
		Mode: "both", Enabled: true,
		Conditions: []Condition{{Field: "understanding.intent", Operator: OpEq, Value: "general"}},
		Actions:    []Action{{Type: ActionSetSecurityLevel, Value: SecurityAuthenticated}},
	}
	second := Rule{
		Id: "chain_2", Name: "chain 2", Category: CategorySecurity, Priority: 102,
		Mode: "both", Enabled: true,
		Conditions: []Condition{{Field: "decision.securityLevel", Operator: OpEq, Value: SecurityAuthenticated}},
		Actions:    []Action{{Type: ActionSetAction, Value: ActDefer}},
	}
	e := NewEngine(NewStaticRegistry(first, second), nopLogger{})

	d := e.Decide(context.Background(), Input{
		Ctx:           testCtx(enginectx.ModeCreator),
		Understanding: testUnderstanding(understanding.IntentGeneral, 0.9),
	})

	assert.Equal(t, ActDefer, d.Action)
	assert.Contains(t, ruleIds(d), "chain_2")
}

func ruleIds(d *Result) []string {
	out := make([]string, len(d.RulesApplied))
	for i, a := range d.RulesApplied {
		out[i] = a.RuleId
	}
	return out
}
