// Package pipeline is the orchestrator. One inbound message flows through
// context building, locking, idempotency, understanding, decision, policy,
// the guarded state commit, and finally the response handler, with events
// emitted at every stage.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"audience-engine-be/internal/metrics"
	"audience-engine-be/internal/pkg/logger"
	"audience-engine-be/internal/repository/contract"
	"audience-engine-be/pkg/engine/concurrency"
	"audience-engine-be/pkg/engine/decision"
	"audience-engine-be/pkg/engine/enginectx"
	"audience-engine-be/pkg/engine/idempotency"
	"audience-engine-be/pkg/engine/policy"
	"audience-engine-be/pkg/engine/statemachine"
	"audience-engine-be/pkg/engine/understanding"
	"audience-engine-be/pkg/events"

	"github.com/google/uuid"
)

// Sentinel errors the transport layer maps to status codes.
var (
	// ErrLockContention: the session is mid-pipeline in another request.
	ErrLockContention = errors.New("session is processing another message")

	// ErrSessionConflict: the optimistic version check lost to a concurrent
	// writer between context build and state commit.
	ErrSessionConflict = errors.New("session was modified by another request")

	// ErrFatalInfra: a dependency the pipeline cannot proceed without.
	ErrFatalInfra = errors.New("engine infrastructure failure")
)

// MessageInput is one inbound chat message.
type MessageInput struct {
	AccountId       uuid.UUID
	SessionId       *uuid.UUID
	AnonId          string
	Message         string
	ClientMessageId string
	Source          string
	IPHash          string
	UserAgent       string

	// Security is filled by auth middleware when the caller carries a JWT.
	// Nil derives the anonymous default from the request source.
	Security *policy.SecurityContext
}

// HandlerRequest is what the orchestrator hands to the response handler
// after every engine has had its say.
type HandlerRequest struct {
	Ctx           *enginectx.EngineContext
	Understanding *understanding.Result
	Decision      *decision.Result
	Policy        policy.CheckResult
	Message       string
	State         statemachine.State
}

// HandlerResponse is the handler's reply.
type HandlerResponse struct {
	Text         string                 `json:"text"`
	UIDirectives decision.UIDirectives  `json:"uiDirectives"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	TokensUsed   int                    `json:"tokensUsed,omitempty"`
	Cost         float64                `json:"cost,omitempty"`
}

// Handler produces the user-facing response for a fully decided message.
type Handler interface {
	Handle(ctx context.Context, req *HandlerRequest) (*HandlerResponse, error)
}

// MessageResult is the pipeline outcome returned to the transport.
type MessageResult struct {
	SessionId string             `json:"sessionId"`
	State     string             `json:"state"`
	Response  *HandlerResponse   `json:"response,omitempty"`
	Blocked   bool               `json:"blocked"`
	Reason    string             `json:"reason,omitempty"`
	Replayed  bool               `json:"replayed"`
	Cached    json.RawMessage    `json:"-"`
	Decision  *decision.Result   `json:"-"`
	Policy    policy.CheckResult `json:"-"`
	TraceId   string             `json:"traceId"`
	RequestId string             `json:"requestId"`
}

// Pipeline wires the engines together.
type Pipeline struct {
	builder       *enginectx.Builder
	locks         *concurrency.Manager
	idem          *idempotency.Manager
	classifier    *understanding.Engine
	decider       *decision.Engine
	policies      *policy.Engine
	machine       *statemachine.Machine
	sessions      contract.ChatSessionRepository
	usage         contract.AccountUsageRepository
	emitter       *events.Emitter
	handler       Handler
	engineVersion string
	logger        logger.ILogger
}

type Config struct {
	Builder       *enginectx.Builder
	Locks         *concurrency.Manager
	Idempotency   *idempotency.Manager
	Classifier    *understanding.Engine
	Decider       *decision.Engine
	Policies      *policy.Engine
	Machine       *statemachine.Machine
	Sessions      contract.ChatSessionRepository
	Usage         contract.AccountUsageRepository
	Emitter       *events.Emitter
	Handler       Handler
	EngineVersion string
	Logger        logger.ILogger
}

func New(cfg Config) *Pipeline {
	return &Pipeline{
		builder:       cfg.Builder,
		locks:         cfg.Locks,
		idem:          cfg.Idempotency,
		classifier:    cfg.Classifier,
		decider:       cfg.Decider,
		policies:      cfg.Policies,
		machine:       cfg.Machine,
		sessions:      cfg.Sessions,
		usage:         cfg.Usage,
		emitter:       cfg.Emitter,
		handler:       cfg.Handler,
		engineVersion: cfg.EngineVersion,
		logger:        cfg.Logger,
	}
}

// SetHandler installs the response handler after construction. The handler
// usually sits in the service layer, which itself depends on the pipeline,
// so the container closes the cycle here.
func (p *Pipeline) SetHandler(h Handler) {
	p.handler = h
}

// ProcessMessage runs the full pipeline for one message.
func (p *Pipeline) ProcessMessage(ctx context.Context, input MessageInput) (*MessageResult, error) {
	started := time.Now()
	requestId := uuid.NewString()
	traceId := uuid.NewString()

	ectx, err := p.builder.Build(ctx, enginectx.BuildInput{
		AccountId:       input.AccountId,
		SessionId:       input.SessionId,
		AnonId:          input.AnonId,
		RequestId:       requestId,
		TraceId:         traceId,
		ClientMessageId: input.ClientMessageId,
		Source:          input.Source,
		IPHash:          input.IPHash,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: build context: %v", ErrFatalInfra, err)
	}

	sessionId := ectx.Session.Id
	meta := events.Metadata{
		Source:        input.Source,
		EngineVersion: p.engineVersion,
		TraceID:       traceId,
		RequestID:     requestId,
	}

	// Per-session mutual exclusion. Contention is surfaced, never queued.
	acquired, err := p.locks.AcquireLock(ctx, sessionId, requestId)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFatalInfra, err)
	}
	if !acquired {
		return nil, ErrLockContention
	}
	defer p.locks.ReleaseLock(context.WithoutCancel(ctx), sessionId, requestId)

	p.emit(events.LockAcquired, ectx, meta, map[string]interface{}{"holderId": requestId})
	defer p.emit(events.LockReleased, ectx, meta, map[string]interface{}{"holderId": requestId})

	if ectx.Session.IsNew {
		p.emit(events.SessionStarted, ectx, meta, map[string]interface{}{"anonId": input.AnonId})
	}

	// Idempotency: duplicates of an in-flight or completed message never
	// run the engines twice.
	messageHash := idempotency.HashMessage(input.Message)
	idemKey := idempotency.BuildKey(ectx.Account.Id, sessionId, messageHash, input.ClientMessageId)
	meta.IdempotencyKey = idemKey

	claim := p.idem.Claim(ctx, idemKey, requestId)
	if !claim.Allowed {
		if claim.Replayed {
			return &MessageResult{
				SessionId: sessionId,
				State:     ectx.Session.State,
				Replayed:  true,
				Cached:    claim.CachedResult,
				TraceId:   traceId,
				RequestId: requestId,
			}, nil
		}
		// Pending elsewhere behaves like lock contention.
		return nil, ErrLockContention
	}

	p.emit(events.MessageReceived, ectx, meta, map[string]interface{}{
		"messageLength":   len(input.Message),
		"clientMessageId": input.ClientMessageId,
	})

	result, err := p.run(ctx, ectx, input, idemKey, requestId, traceId, meta, started)
	if err != nil {
		p.idem.Fail(context.WithoutCancel(ctx), idemKey, requestId)
		p.emit(events.ErrorOccurred, ectx, meta, map[string]interface{}{
			"error": err.Error(),
			"stage": "pipeline",
		})
		return nil, err
	}
	return result, nil
}

// run is the pipeline body after lock and idempotency are held.
func (p *Pipeline) run(
	ctx context.Context,
	ectx *enginectx.EngineContext,
	input MessageInput,
	idemKey, requestId, traceId string,
	meta events.Metadata,
	started time.Time,
) (*MessageResult, error) {
	u := p.classifier.Classify(ctx, understanding.Input{
		Message:   input.Message,
		AccountId: ectx.Account.Id,
		Mode:      ectx.Account.Mode,
		Brands:    ectx.Knowledge.BrandNames,
		SessionId: ectx.Session.Id,
	})

	metrics.ClassifierLatency.Observe(u.ProcessingTime.Seconds())
	metrics.IntentDetected.WithLabelValues(string(u.Intent), strconv.FormatBool(u.UsedFallback)).Inc()
	p.emit(events.IntentDetected, ectx, meta, map[string]interface{}{
		"intent":       string(u.Intent),
		"confidence":   u.Confidence,
		"topic":        u.Topic,
		"usedFallback": u.UsedFallback,
	})
	if len(u.Entities.Brands)+len(u.Entities.OrderNumbers)+len(u.Entities.PhoneNumbers)+len(u.Entities.Coupons) > 0 {
		p.emit(events.EntitiesExtracted, ectx, meta, map[string]interface{}{
			"brands":       len(u.Entities.Brands),
			"orderNumbers": len(u.Entities.OrderNumbers),
			"phoneNumbers": len(u.Entities.PhoneNumbers),
			"coupons":      len(u.Entities.Coupons),
		})
	}
	if u.Risk.Privacy || u.Risk.Harassment || u.Risk.Legal || u.Risk.Medical || u.Risk.Financial {
		p.emit(events.RiskFlagged, ectx, meta, map[string]interface{}{
			"privacy":    u.Risk.Privacy,
			"harassment": u.Risk.Harassment,
		})
	}

	d := p.decider.Decide(ctx, decision.Input{
		Ctx:           ectx,
		Understanding: u,
		TraceId:       traceId,
		RequestId:     requestId,
	})
	p.emit(events.DecisionMade, ectx, meta, map[string]interface{}{
		"handler":       d.Handler,
		"action":        d.Action,
		"securityLevel": d.SecurityLevel,
		"rulesApplied":  len(d.RulesApplied),
		"model":         decision.ModelSummary(d),
	})

	security := policy.BuildSecurityContext(ectx, input.UserAgent)
	if input.Security != nil {
		security = *input.Security
	}
	verdict := p.policies.Check(ctx, policy.Input{
		Ctx:           ectx,
		Understanding: u,
		Decision:      d,
		Security:      security,
		TraceId:       traceId,
		RequestId:     requestId,
	})
	meta.SecurityLevel = d.SecurityLevel
	p.emit(events.PolicyChecked, ectx, meta, map[string]interface{}{
		"summary": policy.Summary(verdict),
	})
	for _, w := range verdict.Warnings {
		p.emit(events.PolicyWarning, ectx, meta, map[string]interface{}{
			"code":     w.Code,
			"severity": w.Severity,
		})
		if w.Code == "cost_budget_warning" || w.Code == "cost_budget_critical" {
			p.emit(events.CostWarning, ectx, meta, map[string]interface{}{"code": w.Code})
		}
	}

	if !verdict.Allowed {
		metrics.PolicyBlocks.WithLabelValues(verdict.BlockedByRule).Inc()
		p.emit(events.PolicyBlocked, ectx, meta, map[string]interface{}{
			"rule":   verdict.BlockedByRule,
			"reason": verdict.BlockedReason,
		})
		if verdict.BlockedByRule == "rate_limit" {
			p.emit(events.RateLimitHit, ectx, meta, nil)
		}
		// Blocked outcomes are time dependent (auth state, windows), so the
		// claim is released for a later retry rather than cached.
		p.idem.Fail(context.WithoutCancel(ctx), idemKey, requestId)

		blocked := policy.ApplyOverrides(d, verdict.Overrides)
		return &MessageResult{
			SessionId: ectx.Session.Id,
			State:     ectx.Session.State,
			Blocked:   true,
			Reason:    verdict.BlockedReason,
			Decision:  blocked,
			Policy:    verdict,
			TraceId:   traceId,
			RequestId: requestId,
		}, nil
	}

	d = policy.ApplyOverrides(d, verdict.Overrides)

	state, err := p.commitState(ctx, ectx, u, d, meta)
	if err != nil {
		return nil, err
	}

	resp, err := p.handler.Handle(ctx, &HandlerRequest{
		Ctx:           ectx,
		Understanding: u,
		Decision:      d,
		Policy:        verdict,
		Message:       input.Message,
		State:         state,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: handler: %v", ErrFatalInfra, err)
	}

	if security.Channel == "public_chat" {
		resp.Text = policy.ScrubResponse(resp.Text, u.Entities)
	}

	if sid, err := uuid.Parse(ectx.Session.Id); err == nil {
		if err := p.sessions.Touch(ctx, sid); err != nil {
			p.logger.Warn("Pipeline", "session touch failed", map[string]interface{}{
				"sessionId": ectx.Session.Id,
				"error":     err.Error(),
			})
		}
	}

	// The next request's budget snapshot reads this accumulator back.
	if p.usage != nil && (resp.TokensUsed > 0 || resp.Cost > 0) {
		if aid, perr := uuid.Parse(ectx.Account.Id); perr == nil {
			if err := p.usage.AddUsage(ctx, aid, resp.TokensUsed, resp.Cost); err != nil {
				p.logger.Warn("Pipeline", "usage accumulation failed", map[string]interface{}{
					"accountId": ectx.Account.Id,
					"error":     err.Error(),
				})
			}
		}
	}

	metrics.PipelineLatency.WithLabelValues(d.Handler).Observe(time.Since(started).Seconds())
	metrics.TokensUsed.Add(float64(resp.TokensUsed))

	meta.LatencyMs = time.Since(started).Milliseconds()
	meta.TokensUsed = resp.TokensUsed
	meta.Cost = resp.Cost
	p.emit(events.ResponseSent, ectx, meta, map[string]interface{}{
		"responseLength": len(resp.Text),
		"handler":        d.Handler,
		"state":          string(state),
	})

	result := &MessageResult{
		SessionId: ectx.Session.Id,
		State:     string(state),
		Response:  resp,
		Decision:  d,
		Policy:    verdict,
		TraceId:   traceId,
		RequestId: requestId,
	}

	if payload, err := json.Marshal(result); err == nil {
		if err := p.idem.Complete(ctx, idemKey, requestId, payload); err != nil {
			p.logger.Warn("Pipeline", "idempotency complete failed", map[string]interface{}{
				"key":   idemKey,
				"error": err.Error(),
			})
		}
	}
	return result, nil
}

// commitState resolves the transition for the detected intent and commits it
// with the optimistic version check. A lost race is ErrSessionConflict; the
// caller retries from a fresh context.
func (p *Pipeline) commitState(
	ctx context.Context,
	ectx *enginectx.EngineContext,
	u *understanding.Result,
	d *decision.Result,
	meta events.Metadata,
) (statemachine.State, error) {
	current := statemachine.State(ectx.Session.State)
	trigger := statemachine.TriggerForIntent(string(u.Intent))

	// Terminal states wake on the raw message first, then route the intent
	// from the fresh state on the next turn.
	if statemachine.IsTerminal(current) {
		trigger = statemachine.TriggerMessageReceived
	} else if d.StateTransition != nil {
		// A rule requested an explicit target. Map it back to an edge so
		// guards still apply; an unreachable target keeps the intent route.
		target := statemachine.State(d.StateTransition.To)
		if t, ok := statemachine.TriggerTo(current, target); ok {
			trigger = t
		} else {
			p.logger.Warn("Pipeline", "requested transition has no edge", map[string]interface{}{
				"from":   string(current),
				"to":     d.StateTransition.To,
				"reason": d.StateTransition.Reason,
			})
		}
	}

	resolution, err := p.machine.Resolve(current, trigger, ectx)
	if err != nil {
		// No edge for this trigger means the message continues the current
		// flow (e.g. a support answer inside Support.CollectProblem).
		p.logger.Debug("Pipeline", "no transition, staying in state", map[string]interface{}{
			"state":   string(current),
			"trigger": string(trigger),
		})
		return current, nil
	}
	if resolution.GuardFailure != "" || resolution.To == current {
		return current, nil
	}

	sid, err := uuid.Parse(ectx.Session.Id)
	if err != nil {
		return current, fmt.Errorf("%w: bad session id: %v", ErrFatalInfra, err)
	}

	swapped, err := p.sessions.CompareAndSwapState(ctx, sid, ectx.Session.Version, string(resolution.To))
	if err != nil {
		return current, fmt.Errorf("%w: state commit: %v", ErrFatalInfra, err)
	}
	if !swapped {
		return current, ErrSessionConflict
	}
	ectx.Session.Version++
	ectx.Session.State = string(resolution.To)

	metrics.StateTransitions.WithLabelValues(string(resolution.Trigger)).Inc()
	p.emit(events.StateChanged, ectx, meta, map[string]interface{}{
		"from":    string(resolution.From),
		"to":      string(resolution.To),
		"trigger": string(resolution.Trigger),
	})
	if statemachine.FlowOf(resolution.To) != statemachine.FlowOf(resolution.From) &&
		!statemachine.IsTerminal(resolution.To) {
		p.emit(events.FlowStarted, ectx, meta, map[string]interface{}{
			"flow": statemachine.FlowOf(resolution.To),
		})
	}
	return resolution.To, nil
}

func (p *Pipeline) emit(eventType events.EventType, ectx *enginectx.EngineContext, meta events.Metadata, payload map[string]interface{}) {
	p.emitter.Emit(events.EngineEvent{
		Type:      eventType,
		AccountID: ectx.Account.Id,
		SessionID: ectx.Session.Id,
		Mode:      ectx.Account.Mode,
		Payload:   payload,
		Metadata:  meta,
	})
}
