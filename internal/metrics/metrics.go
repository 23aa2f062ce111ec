// Package metrics exposes the pipeline's Prometheus instruments. All
// instruments are registered on the default registry and served on
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "messages_processed_total",
		Help:      "Messages that completed the pipeline, by outcome.",
	}, []string{"outcome"}) // completed | blocked | replayed | error

	PolicyBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "policy_blocks_total",
		Help:      "Messages blocked by a policy, by policy id.",
	}, []string{"policy"})

	RateLimitHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "rate_limit_hits_total",
		Help:      "Rate limit rejections, by scope.",
	}, []string{"scope"})

	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "state_transitions_total",
		Help:      "Committed session state transitions, by trigger.",
	}, []string{"trigger"})

	IntentDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "intent_detected_total",
		Help:      "Classified intents, split by fallback usage.",
	}, []string{"intent", "fallback"})

	PipelineLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "engine",
		Name:      "pipeline_latency_seconds",
		Help:      "End to end message processing latency.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"handler"})

	ClassifierLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "engine",
		Name:      "classifier_latency_seconds",
		Help:      "Understanding engine latency including fallbacks.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8},
	})

	TokensUsed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "tokens_used_total",
		Help:      "Tokens consumed by response generation.",
	})

	LockContention = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "lock_contention_total",
		Help:      "Messages turned away because the session was busy.",
	})
)
