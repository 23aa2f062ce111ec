package events

import (
	"encoding/json"
	"time"

	"audience-engine-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// Publisher is the subset of watermill's publisher the emitter needs.
type Publisher interface {
	Publish(topic string, messages ...*message.Message) error
}

// Emitter appends pipeline events onto the in-process bus. Delivery to the
// durable log happens in the consumer worker, so emitting never blocks the
// request path and never surfaces an error to the caller.
type Emitter struct {
	publisher Publisher
	topic     string
	logger    logger.ILogger
}

func NewEmitter(publisher Publisher, topic string, log logger.ILogger) *Emitter {
	return &Emitter{
		publisher: publisher,
		topic:     topic,
		logger:    log,
	}
}

// Emit fills in ID, category and timestamp, then publishes. Failures are
// logged and swallowed.
func (e *Emitter) Emit(event EngineEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Category == "" {
		event.Category = CategoryOf(event.Type)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		e.logger.Error("EventEmitter", "failed to marshal event", map[string]interface{}{
			"type":  string(event.Type),
			"error": err.Error(),
		})
		return
	}

	msg := message.NewMessage(event.ID, data)
	msg.Metadata.Set("type", string(event.Type))
	msg.Metadata.Set("category", string(event.Category))

	if err := e.publisher.Publish(e.topic, msg); err != nil {
		e.logger.Error("EventEmitter", "failed to publish event", map[string]interface{}{
			"type":  string(event.Type),
			"error": err.Error(),
		})
	}
}
