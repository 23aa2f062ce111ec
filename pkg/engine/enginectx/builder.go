package enginectx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"audience-engine-be/internal/model"
	"audience-engine-be/internal/pkg/logger"
	"audience-engine-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// BuildInput identifies the request the context is being built for.
type BuildInput struct {
	AccountId       uuid.UUID
	SessionId       *uuid.UUID // nil creates a new session
	AnonId          string
	RequestId       string
	TraceId         string
	ClientMessageId string
	Source          string
	IPHash          string
}

// Defaults applied when the account row carries no limits of its own.
type BuilderDefaults struct {
	TokenBudget int
	CostCeiling float64
}

// RateProbe reads the session's remaining message allowance without
// consuming it. The rate limiter implements this.
type RateProbe interface {
	SessionRemaining(ctx context.Context, sessionId string) (remaining int64, resetAt time.Time)
}

// Builder assembles an EngineContext from the stores. Account data is cached
// (stable part); session and limits are read fresh on every call.
type Builder struct {
	accounts contract.AccountRepository
	sessions contract.ChatSessionRepository
	usage    contract.AccountUsageRepository
	rate     RateProbe
	cache    *cache.Cache
	defaults BuilderDefaults
	logger   logger.ILogger
}

func NewBuilder(
	accounts contract.AccountRepository,
	sessions contract.ChatSessionRepository,
	usage contract.AccountUsageRepository,
	rate RateProbe,
	accountCacheTTL time.Duration,
	defaults BuilderDefaults,
	log logger.ILogger,
) *Builder {
	return &Builder{
		accounts: accounts,
		sessions: sessions,
		usage:    usage,
		rate:     rate,
		cache:    cache.New(accountCacheTTL, 2*accountCacheTTL),
		defaults: defaults,
		logger:   log,
	}
}

// Build assembles the full snapshot. A missing session id creates a new
// session row so the rest of the pipeline always has one to lock.
func (b *Builder) Build(ctx context.Context, input BuildInput) (*EngineContext, error) {
	account, err := b.loadAccount(ctx, input.AccountId)
	if err != nil {
		return nil, fmt.Errorf("load account context: %w", err)
	}

	session, err := b.loadOrCreateSession(ctx, input.AccountId, input.SessionId, input.AnonId)
	if err != nil {
		return nil, fmt.Errorf("load session context: %w", err)
	}

	return &EngineContext{
		Account: *account,
		Session: *session,
		User: UserContext{
			AnonId:          input.AnonId,
			IsRepeatVisitor: session.MessageCount > 0,
		},
		Knowledge: KnowledgeRefs{
			BrandsRef:       "brands:" + account.Id,
			ContentIndexRef: "content:" + account.Id,
			PersonaRef:      "persona:" + account.Id,
		},
		Limits: b.loadLimits(ctx, input.AccountId, session.Id),
		Request: RequestContext{
			RequestId:       input.RequestId,
			TraceId:         input.TraceId,
			Timestamp:       time.Now().UTC(),
			Source:          input.Source,
			ClientMessageId: input.ClientMessageId,
			IPHash:          input.IPHash,
		},
	}, nil
}

// loadLimits builds the cost-control snapshot from the usage accumulator and
// the rate limiter. Both reads fail open: a broken store yields the full
// default allowance rather than refusing the message.
func (b *Builder) loadLimits(ctx context.Context, accountId uuid.UUID, sessionId string) LimitsContext {
	limits := LimitsContext{
		TokenBudgetRemaining: b.defaults.TokenBudget,
		TokenBudgetTotal:     b.defaults.TokenBudget,
		CostCeiling:          b.defaults.CostCeiling,
		RateLimitRemaining:   1,
		RateLimitResetAt:     time.Now().Add(time.Minute),
	}

	if b.usage != nil {
		row, err := b.usage.GetCurrent(ctx, accountId)
		if err != nil {
			b.logger.Warn("ContextBuilder", "usage lookup failed, using defaults", map[string]interface{}{
				"accountId": accountId.String(),
				"error":     err.Error(),
			})
		} else if row != nil {
			limits.CostUsed = row.CostUsed
			limits.TokenBudgetRemaining = b.defaults.TokenBudget - int(row.TokensUsed)
			if limits.TokenBudgetRemaining < 0 {
				limits.TokenBudgetRemaining = 0
			}
		}
	}

	if b.rate != nil {
		remaining, resetAt := b.rate.SessionRemaining(ctx, sessionId)
		limits.RateLimitRemaining = int(remaining)
		limits.RateLimitResetAt = resetAt
	}
	return limits
}

// InvalidateAccount drops the cached stable part, e.g. after settings change.
func (b *Builder) InvalidateAccount(accountId uuid.UUID) {
	b.cache.Delete("account:" + accountId.String())
}

func (b *Builder) loadAccount(ctx context.Context, accountId uuid.UUID) (*AccountContext, error) {
	cacheKey := "account:" + accountId.String()
	if cached, found := b.cache.Get(cacheKey); found {
		ac := cached.(AccountContext)
		return &ac, nil
	}

	row, err := b.accounts.FindById(ctx, accountId)
	if err != nil {
		return nil, err
	}

	ac := AccountContext{
		Id:       accountId.String(),
		Mode:     ModeCreator,
		Plan:     "free",
		Language: "he",
		Timezone: "Asia/Jerusalem",
		Security: SecurityConfig{PublicChatAllowed: true},
		Features: FeatureFlags{SupportFlowEnabled: true, AnalyticsEnabled: true},
	}

	if row != nil {
		ac.Mode = row.Mode
		ac.Plan = row.Plan
		ac.Language = row.Language
		ac.Timezone = row.Timezone
		if len(row.SecurityConfig) > 0 {
			if err := json.Unmarshal(row.SecurityConfig, &ac.Security); err != nil {
				b.logger.Warn("ContextBuilder", "invalid security config, using defaults", map[string]interface{}{
					"accountId": ac.Id,
				})
			}
		}
		if len(row.Features) > 0 {
			if err := json.Unmarshal(row.Features, &ac.Features); err != nil {
				b.logger.Warn("ContextBuilder", "invalid feature flags, using defaults", map[string]interface{}{
					"accountId": ac.Id,
				})
			}
		}
	}

	b.cache.Set(cacheKey, ac, cache.DefaultExpiration)
	return &ac, nil
}

func (b *Builder) loadOrCreateSession(ctx context.Context, accountId uuid.UUID, sessionId *uuid.UUID, anonId string) (*SessionContext, error) {
	if sessionId != nil {
		row, err := b.sessions.FindById(ctx, *sessionId)
		if err != nil {
			return nil, err
		}
		if row != nil {
			return &SessionContext{
				Id:           row.Id.String(),
				State:        row.State,
				Version:      row.Version,
				MessageCount: row.MessageCount,
				LastActiveAt: row.LastActiveAt,
			}, nil
		}
		// Unknown id falls through to creation so a stale client keeps working.
	}

	row := &model.ChatSession{
		Id:           uuid.New(),
		AccountId:    accountId,
		AnonId:       anonId,
		State:        "Chat.Active",
		Version:      0,
		LastActiveAt: time.Now().UTC(),
	}
	if err := b.sessions.Create(ctx, row); err != nil {
		return nil, err
	}

	return &SessionContext{
		Id:           row.Id.String(),
		State:        row.State,
		Version:      row.Version,
		LastActiveAt: row.LastActiveAt,
		IsNew:        true,
	}, nil
}
