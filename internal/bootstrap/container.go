package bootstrap

import (
	"context"
	"log"
	"time"

	"audience-engine-be/internal/config"
	"audience-engine-be/internal/controller"
	"audience-engine-be/internal/pkg/logger"
	"audience-engine-be/internal/repository/implementation"
	"audience-engine-be/internal/service"
	"audience-engine-be/pkg/engine/concurrency"
	"audience-engine-be/pkg/engine/decision"
	"audience-engine-be/pkg/engine/enginectx"
	"audience-engine-be/pkg/engine/idempotency"
	"audience-engine-be/pkg/engine/pipeline"
	"audience-engine-be/pkg/engine/policy"
	"audience-engine-be/pkg/engine/ratelimit"
	"audience-engine-be/pkg/engine/statemachine"
	"audience-engine-be/pkg/engine/understanding"
	"audience-engine-be/pkg/events"
	"audience-engine-be/pkg/llm/factory"

	pktNats "audience-engine-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ChatController  controller.IChatController
	AdminController controller.IAdminController

	// Background services, run from main
	ConsumerService service.IConsumerService

	// Held for shutdown
	NatsPublisher *pktNats.Publisher
	PubSub        *gochannel.GoChannel

	stopSweeper func()
}

// Shutdown stops background workers and closes the messaging connections.
func (c *Container) Shutdown() {
	if c.stopSweeper != nil {
		c.stopSweeper()
	}
	if c.NatsPublisher != nil {
		c.NatsPublisher.Close()
	}
	if c.PubSub != nil {
		_ = c.PubSub.Close()
	}
}

// startSweeper prunes the given stores on a fixed interval until the
// returned stop function is called.
func startSweeper(every time.Duration, stores ...interface{ Prune() }) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				for _, s := range stores {
					s.Prune()
				}
			}
		}
	}()
	return func() { close(done) }
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Infrastructure
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}

	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	redisUp := true
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v. Using in-memory stores", err)
		redisUp = false
	}

	// 4. Repositories
	accountRepo := implementation.NewAccountRepository(db)
	sessionRepo := implementation.NewChatSessionRepository(db)
	ruleRepo := implementation.NewDecisionRuleRepository(db)
	eventRepo := implementation.NewEngineEventRepository(db)
	usageRepo := implementation.NewAccountUsageRepository(db)

	// 5. Engine substrate. Redis backs the distributed stores; a single-node
	// dev setup without Redis degrades to in-process equivalents.
	var lockStore concurrency.LockStore
	var idemStore idempotency.Store
	var counterStore ratelimit.CounterStore
	var stopSweeper func()
	if redisUp {
		lockStore = concurrency.NewRedisLockStore(rdb)
		idemStore = idempotency.NewRedisStore(rdb)
		counterStore = ratelimit.NewRedisCounterStore(rdb)
	} else {
		memLocks := concurrency.NewMemoryLockStore()
		memIdem := idempotency.NewMemoryStore()
		memCounters := ratelimit.NewMemoryCounterStore()
		lockStore = memLocks
		idemStore = memIdem
		counterStore = memCounters

		// The in-process stores expire lazily; sweep them so dead keys do
		// not accumulate over the process lifetime.
		stopSweeper = startSweeper(cfg.Limits.FallbackCleanupEvery, memLocks, memIdem, memCounters)
	}

	locks := concurrency.NewManager(lockStore, cfg.Limits.LockTTL, sysLogger)
	idem := idempotency.NewManager(idemStore, cfg.Limits.IdempotencyTTL, sysLogger)
	limiter := ratelimit.NewLimiter(counterStore, ratelimit.Config{
		Session: ratelimit.Rule{Limit: cfg.Limits.SessionRateLimit, Window: cfg.Limits.SessionRateWindow},
		Anon:    ratelimit.Rule{Limit: cfg.Limits.AnonRateLimit, Window: cfg.Limits.AnonRateWindow},
		Account: ratelimit.Rule{Limit: cfg.Limits.AccountRateLimit, Window: cfg.Limits.AccountRateWindow},
		Action:  ratelimit.Rule{Limit: cfg.Limits.ActionRateLimit, Window: cfg.Limits.ActionRateWindow},
	}, sysLogger)

	// 6. Classifier LLM
	apiKey := cfg.Classifier.OpenAIAPIKey
	llmProvider, err := factory.NewLLMProvider(
		cfg.Classifier.Provider,
		cfg.Classifier.Model,
		cfg.Classifier.OllamaBaseURL,
		apiKey,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Classifier.Provider, cfg.Classifier.Model)

	// 7. Engines
	builder := enginectx.NewBuilder(
		accountRepo,
		sessionRepo,
		usageRepo,
		limiter,
		cfg.Limits.AccountCacheTTL,
		enginectx.BuilderDefaults{
			TokenBudget: cfg.Limits.DefaultTokenBudget,
			CostCeiling: cfg.Limits.DefaultCostCeiling,
		},
		sysLogger,
	)

	classifier := understanding.NewEngine(
		llmProvider,
		cfg.Classifier.Model,
		cfg.Classifier.FallbackModel,
		time.Duration(cfg.Classifier.TimeoutMs)*time.Millisecond,
		sysLogger,
	)

	registry := decision.NewDBRegistry(ruleRepo, accountRepo, cfg.Limits.RuleCacheTTL, sysLogger)
	decider := decision.NewEngine(registry, sysLogger)
	policies := policy.NewEngine(limiter, sysLogger)
	machine := statemachine.NewMachine(sysLogger)

	eventLogger := logger.NewIsolatedLogger(cfg.App.EventLogFilePath)
	emitter := events.NewEmitter(pubSub, cfg.App.EventTopic, eventLogger)

	engine := pipeline.New(pipeline.Config{
		Builder:       builder,
		Locks:         locks,
		Idempotency:   idem,
		Classifier:    classifier,
		Decider:       decider,
		Policies:      policies,
		Machine:       machine,
		Sessions:      sessionRepo,
		Usage:         usageRepo,
		Emitter:       emitter,
		EngineVersion: cfg.App.EngineVersion,
		Logger:        sysLogger,
	})

	// 8. Services. The chat service is also the pipeline's response handler.
	chatService := service.NewChatService(engine, policies, llmProvider, emitter, sysLogger)
	engine.SetHandler(chatService.(pipeline.Handler))

	consumerService := service.NewConsumerService(
		pubSub,
		cfg.App.EventTopic,
		eventRepo,
		natsPub,
		eventLogger,
	)

	// 9. Controllers
	chatController := controller.NewChatController(chatService)
	adminController := controller.NewAdminController(registry, builder)

	return &Container{
		ChatController:  chatController,
		AdminController: adminController,
		ConsumerService: consumerService,
		NatsPublisher:   natsPub,
		PubSub:          pubSub,
		stopSweeper:     stopSweeper,
	}
}
