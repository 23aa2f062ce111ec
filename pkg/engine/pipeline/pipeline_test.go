package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"audience-engine-be/internal/model"
	"audience-engine-be/pkg/engine/concurrency"
	"audience-engine-be/pkg/engine/decision"
	"audience-engine-be/pkg/engine/enginectx"
	"audience-engine-be/pkg/engine/idempotency"
	"audience-engine-be/pkg/engine/policy"
	"audience-engine-be/pkg/engine/ratelimit"
	"audience-engine-be/pkg/engine/statemachine"
	"audience-engine-be/pkg/engine/understanding"
	"audience-engine-be/pkg/events"
	"audience-engine-be/pkg/llm"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(string, string, map[string]interface{}) {}
func (nopLogger) Info(string, string, map[string]interface{})  {}
func (nopLogger) Warn(string, string, map[string]interface{})  {}
func (nopLogger) Error(string, string, map[string]interface{}) {}
func (nopLogger) Sync() error                                  { return nil }

type fakeAccountRepo struct{}

func (fakeAccountRepo) FindById(context.Context, uuid.UUID) (*model.Account, error) {
	return nil, nil // builder falls back to account defaults
}

func (fakeAccountRepo) GetRulesVersion(context.Context, uuid.UUID) (int, error) {
	return 0, nil
}

type fakeSessionRepo struct {
	mu      sync.Mutex
	rows    map[uuid.UUID]*model.ChatSession
	failCAS bool
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{rows: map[uuid.UUID]*model.ChatSession{}}
}

func (r *fakeSessionRepo) seed(row *model.ChatSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *row
	r.rows[row.Id] = &cp
}

func (r *fakeSessionRepo) get(id uuid.UUID) *model.ChatSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[id]; ok {
		cp := *row
		return &cp
	}
	return nil
}

func (r *fakeSessionRepo) Create(_ context.Context, session *model.ChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *session
	r.rows[session.Id] = &cp
	return nil
}

func (r *fakeSessionRepo) FindById(_ context.Context, id uuid.UUID) (*model.ChatSession, error) {
	return r.get(id), nil
}

func (r *fakeSessionRepo) Touch(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[id]; ok {
		row.LastActiveAt = time.Now().UTC()
		row.MessageCount++
	}
	return nil
}

func (r *fakeSessionRepo) CompareAndSwapState(_ context.Context, id uuid.UUID, expectedVersion int, newState string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCAS {
		return false, nil
	}
	row, ok := r.rows[id]
	if !ok || row.Version != expectedVersion {
		return false, nil
	}
	row.State = newState
	row.Version++
	return true, nil
}

func (r *fakeSessionRepo) CheckAndIncrementVersion(_ context.Context, id uuid.UUID, expectedVersion int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.Version != expectedVersion {
		return false, nil
	}
	row.Version++
	return true, nil
}

type fakeUsageRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*model.AccountUsage
}

func newFakeUsageRepo() *fakeUsageRepo {
	return &fakeUsageRepo{rows: map[uuid.UUID]*model.AccountUsage{}}
}

func (r *fakeUsageRepo) seed(accountId uuid.UUID, tokens int64, cost float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[accountId] = &model.AccountUsage{AccountId: accountId, TokensUsed: tokens, CostUsed: cost}
}

func (r *fakeUsageRepo) get(accountId uuid.UUID) *model.AccountUsage {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[accountId]; ok {
		cp := *row
		return &cp
	}
	return nil
}

func (r *fakeUsageRepo) GetCurrent(_ context.Context, accountId uuid.UUID) (*model.AccountUsage, error) {
	return r.get(accountId), nil
}

func (r *fakeUsageRepo) AddUsage(_ context.Context, accountId uuid.UUID, tokens int, cost float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[accountId]
	if !ok {
		row = &model.AccountUsage{AccountId: accountId}
		r.rows[accountId] = row
	}
	row.TokensUsed += int64(tokens)
	row.CostUsed += cost
	return nil
}

// offlineProvider forces the classifier down to the keyword heuristics.
type offlineProvider struct{}

func (offlineProvider) Chat(context.Context, []llm.Message, ...llm.Option) (string, error) {
	return "", fmt.Errorf("model offline")
}

func (offlineProvider) Generate(context.Context, string, ...llm.Option) (string, error) {
	return "", fmt.Errorf("model offline")
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.EngineEvent
}

func (p *capturePublisher) Publish(_ string, msgs ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, msg := range msgs {
		var event events.EngineEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			return err
		}
		p.events = append(p.events, event)
	}
	return nil
}

func (p *capturePublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type stubHandler struct{}

func (stubHandler) Handle(_ context.Context, _ *HandlerRequest) (*HandlerResponse, error) {
	return &HandlerResponse{Text: "קיבלתי, ממשיכים", TokensUsed: 40, Cost: 0.0005}, nil
}

// echoHandler repeats the inbound message, the worst case for leaking
// identifiers back onto the public channel.
type echoHandler struct{}

func (echoHandler) Handle(_ context.Context, req *HandlerRequest) (*HandlerResponse, error) {
	return &HandlerResponse{Text: "קיבלתי: " + req.Message, TokensUsed: 10, Cost: 0.0001}, nil
}

type testEnv struct {
	pipeline *Pipeline
	sessions *fakeSessionRepo
	usage    *fakeUsageRepo
	locks    *concurrency.Manager
	pub      *capturePublisher
}

func newTestEnv(sessionLimit int, extraRules ...decision.Rule) *testEnv {
	log := nopLogger{}
	sessions := newFakeSessionRepo()
	usage := newFakeUsageRepo()
	pub := &capturePublisher{}
	locks := concurrency.NewManager(concurrency.NewMemoryLockStore(), 5*time.Second, log)

	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryCounterStore(), ratelimit.Config{
		Session: ratelimit.Rule{Limit: sessionLimit, Window: time.Minute},
		Anon:    ratelimit.Rule{Limit: 1000, Window: time.Minute},
		Account: ratelimit.Rule{Limit: 1000, Window: time.Minute},
		Action:  ratelimit.Rule{Limit: 100, Window: time.Minute},
	}, log)

	p := New(Config{
		Builder: enginectx.NewBuilder(fakeAccountRepo{}, sessions, usage, limiter, time.Minute, enginectx.BuilderDefaults{
			TokenBudget: 50000,
			CostCeiling: 10,
		}, log),
		Locks:         locks,
		Idempotency:   idempotency.NewManager(idempotency.NewMemoryStore(), time.Minute, log),
		Classifier:    understanding.NewEngine(offlineProvider{}, "primary", "fallback", 50*time.Millisecond, log),
		Decider:       decision.NewEngine(decision.NewStaticRegistry(extraRules...), log),
		Policies:      policy.NewEngine(limiter, log),
		Machine:       statemachine.NewMachine(log),
		Sessions:      sessions,
		Usage:         usage,
		Emitter:       events.NewEmitter(pub, "engine.events", log),
		Handler:       stubHandler{},
		EngineVersion: "test",
		Logger:        log,
	})

	return &testEnv{pipeline: p, sessions: sessions, usage: usage, locks: locks, pub: pub}
}

func TestProcessMessageSupportFlowEndToEnd(t *testing.T) {
	env := newTestEnv(100)
	ctx := context.Background()

	res, err := env.pipeline.ProcessMessage(ctx, MessageInput{
		AccountId:       uuid.New(),
		AnonId:          "anon-1",
		Message:         "יש לי בעיה עם הזמנה #12345",
		ClientMessageId: "msg-1",
		Source:          "widget",
	})

	require.NoError(t, err)
	assert.False(t, res.Blocked)
	assert.False(t, res.Replayed)
	assert.Equal(t, string(statemachine.StateSupportCollectBrand), res.State)
	require.NotNil(t, res.Response)
	assert.NotEmpty(t, res.Response.Text)
	assert.NotEmpty(t, res.TraceId)

	sid, err := uuid.Parse(res.SessionId)
	require.NoError(t, err)
	row := env.sessions.get(sid)
	require.NotNil(t, row, "a new session row is created when no id is given")
	assert.Equal(t, string(statemachine.StateSupportCollectBrand), row.State)
	assert.Equal(t, 1, row.Version, "the state commit bumps the version")

	types := env.pub.types()
	for _, want := range []events.EventType{
		events.SessionStarted,
		events.MessageReceived,
		events.IntentDetected,
		events.DecisionMade,
		events.PolicyChecked,
		events.StateChanged,
		events.FlowStarted,
		events.ResponseSent,
		events.LockReleased,
	} {
		assert.Contains(t, types, want)
	}
}

func TestProcessMessageReplaysDuplicate(t *testing.T) {
	env := newTestEnv(100)
	ctx := context.Background()
	accountId := uuid.New()

	input := MessageInput{
		AccountId:       accountId,
		AnonId:          "anon-1",
		Message:         "שלום, מה נשמע?",
		ClientMessageId: "msg-1",
		Source:          "widget",
	}

	first, err := env.pipeline.ProcessMessage(ctx, input)
	require.NoError(t, err)
	require.NotNil(t, first.Response)

	sid, err := uuid.Parse(first.SessionId)
	require.NoError(t, err)
	input.SessionId = &sid

	second, err := env.pipeline.ProcessMessage(ctx, input)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Nil(t, second.Response, "a replay carries the cached payload, not a fresh response")
	require.NotEmpty(t, second.Cached)

	var cached MessageResult
	require.NoError(t, json.Unmarshal(second.Cached, &cached))
	assert.Equal(t, first.SessionId, cached.SessionId)
	assert.Equal(t, first.TraceId, cached.TraceId)
}

func TestProcessMessageLockContention(t *testing.T) {
	env := newTestEnv(100)
	ctx := context.Background()
	accountId := uuid.New()
	sid := uuid.New()
	env.sessions.seed(&model.ChatSession{
		Id:           sid,
		AccountId:    accountId,
		State:        string(statemachine.StateChatActive),
		LastActiveAt: time.Now().UTC(),
	})

	acquired, err := env.locks.AcquireLock(ctx, sid.String(), "other-request")
	require.NoError(t, err)
	require.True(t, acquired)

	_, err = env.pipeline.ProcessMessage(ctx, MessageInput{
		AccountId:       accountId,
		SessionId:       &sid,
		AnonId:          "anon-1",
		Message:         "שלום",
		ClientMessageId: "msg-1",
		Source:          "widget",
	})
	assert.ErrorIs(t, err, ErrLockContention)
}

func TestProcessMessageRateLimitBlocked(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()
	accountId := uuid.New()

	first, err := env.pipeline.ProcessMessage(ctx, MessageInput{
		AccountId:       accountId,
		AnonId:          "anon-1",
		Message:         "שלום",
		ClientMessageId: "msg-1",
		Source:          "widget",
	})
	require.NoError(t, err)
	assert.False(t, first.Blocked)

	sid, err := uuid.Parse(first.SessionId)
	require.NoError(t, err)

	second, err := env.pipeline.ProcessMessage(ctx, MessageInput{
		AccountId:       accountId,
		SessionId:       &sid,
		AnonId:          "anon-1",
		Message:         "עוד הודעה",
		ClientMessageId: "msg-2",
		Source:          "widget",
	})
	require.NoError(t, err)
	assert.True(t, second.Blocked)
	assert.Contains(t, second.Reason, "יותר מדי הודעות")
	assert.Nil(t, second.Response)

	types := env.pub.types()
	assert.Contains(t, types, events.PolicyBlocked)
	assert.Contains(t, types, events.RateLimitHit)

	// Blocked outcomes are not cached; the same message retries cleanly.
	third, err := env.pipeline.ProcessMessage(ctx, MessageInput{
		AccountId:       accountId,
		SessionId:       &sid,
		AnonId:          "anon-1",
		Message:         "עוד הודעה",
		ClientMessageId: "msg-2",
		Source:          "widget",
	})
	require.NoError(t, err)
	assert.False(t, third.Replayed)
	assert.True(t, third.Blocked)
}

func TestProcessMessageTerminalStateWakes(t *testing.T) {
	env := newTestEnv(100)
	ctx := context.Background()
	accountId := uuid.New()
	sid := uuid.New()
	env.sessions.seed(&model.ChatSession{
		Id:           sid,
		AccountId:    accountId,
		State:        string(statemachine.StateSupportComplete),
		Version:      3,
		LastActiveAt: time.Now().UTC(),
	})

	res, err := env.pipeline.ProcessMessage(ctx, MessageInput{
		AccountId:       accountId,
		SessionId:       &sid,
		AnonId:          "anon-1",
		Message:         "יש לי עוד בעיה",
		ClientMessageId: "msg-1",
		Source:          "widget",
	})

	require.NoError(t, err)
	assert.Equal(t, string(statemachine.StateIdle), res.State,
		"a terminal session wakes on the raw message before the intent routes")

	row := env.sessions.get(sid)
	assert.Equal(t, 4, row.Version)
}

func TestProcessMessageSessionConflict(t *testing.T) {
	env := newTestEnv(100)
	env.sessions.failCAS = true
	ctx := context.Background()

	_, err := env.pipeline.ProcessMessage(ctx, MessageInput{
		AccountId:       uuid.New(),
		AnonId:          "anon-1",
		Message:         "יש לי בעיה עם ההזמנה",
		ClientMessageId: "msg-1",
		Source:          "widget",
	})
	assert.ErrorIs(t, err, ErrSessionConflict)
}

func TestProcessMessageAccumulatesUsage(t *testing.T) {
	env := newTestEnv(100)
	ctx := context.Background()
	accountId := uuid.New()

	res, err := env.pipeline.ProcessMessage(ctx, MessageInput{
		AccountId:       accountId,
		AnonId:          "anon-1",
		Message:         "שלום, מה נשמע?",
		ClientMessageId: "msg-1",
		Source:          "widget",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Response)

	row := env.usage.get(accountId)
	require.NotNil(t, row, "the handler's spend is written back after dispatch")
	assert.EqualValues(t, 40, row.TokensUsed)
	assert.InDelta(t, 0.0005, row.CostUsed, 1e-9)
}

func TestProcessMessageBudgetCriticalFromAccumulatedSpend(t *testing.T) {
	env := newTestEnv(100)
	ctx := context.Background()
	accountId := uuid.New()
	env.usage.seed(accountId, 45000, 9.5) // 95% of the 10.0 ceiling

	res, err := env.pipeline.ProcessMessage(ctx, MessageInput{
		AccountId:       accountId,
		AnonId:          "anon-1",
		Message:         "שלום, מה נשמע?",
		ClientMessageId: "msg-1",
		Source:          "widget",
	})
	require.NoError(t, err)
	assert.False(t, res.Blocked)

	codes := make([]string, 0, len(res.Policy.Warnings))
	for _, w := range res.Policy.Warnings {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, "cost_budget_critical")
	assert.Contains(t, env.pub.types(), events.CostWarning)
	assert.Equal(t, "short", res.Decision.UIDirectives.ResponseLength)
}

func TestProcessMessageRuleRequestedTransition(t *testing.T) {
	env := newTestEnv(100, decision.Rule{
		Id:       "route-general-to-clarify",
		Name:     "Clarify vague openers",
		Category: decision.CategoryRouting,
		Priority: 500,
		Mode:     "both",
		Enabled:  true,
		Conditions: []decision.Condition{
			{Field: "understanding.intent", Operator: decision.OpEq, Value: "general"},
		},
		Actions: []decision.Action{
			{Type: decision.ActionTransitionState, To: string(statemachine.StateChatClarifying), Reason: "collect_more_detail"},
		},
	})
	ctx := context.Background()

	res, err := env.pipeline.ProcessMessage(ctx, MessageInput{
		AccountId:       uuid.New(),
		AnonId:          "anon-1",
		Message:         "שלום, מה נשמע?",
		ClientMessageId: "msg-1",
		Source:          "widget",
	})

	require.NoError(t, err)
	assert.Equal(t, string(statemachine.StateChatClarifying), res.State,
		"a rule's requested target wins over the intent's default route")

	sid, err := uuid.Parse(res.SessionId)
	require.NoError(t, err)
	assert.Equal(t, string(statemachine.StateChatClarifying), env.sessions.get(sid).State)
}

func TestProcessMessageRuleTransitionWithoutEdgeKeepsIntentRoute(t *testing.T) {
	env := newTestEnv(100, decision.Rule{
		Id:       "route-general-nowhere",
		Name:     "Unreachable target",
		Category: decision.CategoryRouting,
		Priority: 500,
		Mode:     "both",
		Enabled:  true,
		Conditions: []decision.Condition{
			{Field: "understanding.intent", Operator: decision.OpEq, Value: "general"},
		},
		Actions: []decision.Action{
			{Type: decision.ActionTransitionState, To: string(statemachine.StateSupportSending), Reason: "bad_target"},
		},
	})
	ctx := context.Background()

	res, err := env.pipeline.ProcessMessage(ctx, MessageInput{
		AccountId:       uuid.New(),
		AnonId:          "anon-1",
		Message:         "שלום, מה נשמע?",
		ClientMessageId: "msg-1",
		Source:          "widget",
	})

	require.NoError(t, err)
	assert.Equal(t, string(statemachine.StateChatActive), res.State,
		"a target with no edge from the current state falls back to the intent route")
}

func TestProcessMessagePublicResponseScrubbed(t *testing.T) {
	env := newTestEnv(100)
	env.pipeline.SetHandler(echoHandler{})
	ctx := context.Background()

	res, err := env.pipeline.ProcessMessage(ctx, MessageInput{
		AccountId:       uuid.New(),
		AnonId:          "anon-1",
		Message:         "יש לי בעיה עם הזמנה #87654321",
		ClientMessageId: "msg-1",
		Source:          "widget",
	})

	require.NoError(t, err)
	require.NotNil(t, res.Response)
	assert.NotContains(t, res.Response.Text, "87654321",
		"raw order numbers never echo back on the public channel")
	assert.Contains(t, res.Response.Text, "4321")
}
