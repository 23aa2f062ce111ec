package understanding

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"audience-engine-be/internal/pkg/logger"
	"audience-engine-be/pkg/llm"
)

// Engine classifies messages. Primary model first, fallback model second,
// keyword heuristics last. Classify never returns an error to the caller;
// the worst case is a low-confidence heuristic result.
type Engine struct {
	provider      llm.LLMProvider
	model         string
	fallbackModel string
	timeout       time.Duration
	logger        logger.ILogger
}

func NewEngine(provider llm.LLMProvider, model, fallbackModel string, timeout time.Duration, log logger.ILogger) *Engine {
	return &Engine{
		provider:      provider,
		model:         model,
		fallbackModel: fallbackModel,
		timeout:       timeout,
		logger:        log,
	}
}

// Classify analyzes one message.
func (e *Engine) Classify(ctx context.Context, input Input) *Result {
	start := time.Now()

	result, err := e.callModel(ctx, input, e.model)
	if err != nil {
		e.logger.Warn("Understanding", "primary model failed, trying fallback", map[string]interface{}{
			"model": e.model,
			"error": err.Error(),
		})

		result, err = e.callModel(ctx, input, e.fallbackModel)
		if err != nil {
			e.logger.Error("Understanding", "fallback model failed, using heuristics", map[string]interface{}{
				"model": e.fallbackModel,
				"error": err.Error(),
			})
			result = classifyHeuristic(input.Message)
		}
	}

	result.RawInput = input.Message
	result.ProcessingTime = time.Since(start)
	return result
}

func (e *Engine) callModel(ctx context.Context, input Input, model string) (*Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	history := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "system", Content: contextPrompt(input.Mode, input.Brands)},
		{Role: "user", Content: userPrompt(input.Message)},
	}

	raw, err := e.provider.Chat(callCtx, history,
		llm.WithModel(model),
		llm.WithTemperature(0),
	)
	if err != nil {
		return nil, fmt.Errorf("understanding call: %w", err)
	}

	parsed, err := decodeModelJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("understanding response: %w", err)
	}
	return normalize(parsed), nil
}

// decodeModelJSON tolerates markdown code fences around the JSON body, which
// some models emit despite instructions.
func decodeModelJSON(raw string) (map[string]interface{}, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}
