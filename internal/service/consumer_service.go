package service

import (
	"context"
	"encoding/json"
	"time"

	"audience-engine-be/internal/model"
	"audience-engine-be/internal/pkg/logger"
	"audience-engine-be/internal/repository/contract"
	"audience-engine-be/pkg/events"
	natspub "audience-engine-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService drains the in-process event bus: each event is persisted
// to Postgres for dashboard queries and appended to the JetStream log for
// external consumers. The request path never waits on either write.
type consumerService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	eventRepo contract.EngineEventRepository
	publisher *natspub.Publisher
	logger    logger.ILogger
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	eventRepo contract.EngineEventRepository,
	publisher *natspub.Publisher,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:    pubSub,
		topicName: topicName,
		eventRepo: eventRepo,
		publisher: publisher,
		logger:    log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var event events.EngineEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		cs.logger.Error("ConsumerService", "failed to unmarshal event", map[string]interface{}{
			"messageId": msg.UUID,
			"error":     err.Error(),
		})
		msg.Ack() // invalid payloads would never succeed, drop them
		return
	}

	row, err := cs.toRow(event)
	if err != nil {
		cs.logger.Error("ConsumerService", "failed to map event", map[string]interface{}{
			"eventId": event.ID,
			"error":   err.Error(),
		})
		msg.Ack()
		return
	}

	if err := cs.eventRepo.Append(ctx, row); err != nil {
		cs.logger.Error("ConsumerService", "failed to persist event", map[string]interface{}{
			"eventId": event.ID,
			"type":    string(event.Type),
			"error":   err.Error(),
		})
		msg.Nack() // retriable, the DB may be back on redelivery
		return
	}

	if cs.publisher != nil {
		if err := cs.publisher.Publish(ctx, event); err != nil {
			// The Postgres row already landed; losing the stream copy is
			// logged but does not hold up the bus.
			cs.logger.Warn("ConsumerService", "failed to publish event to stream", map[string]interface{}{
				"eventId": event.ID,
				"type":    string(event.Type),
				"error":   err.Error(),
			})
		}
	}

	msg.Ack()
}

func (cs *consumerService) toRow(event events.EngineEvent) (*model.EngineEvent, error) {
	id, err := uuid.Parse(event.ID)
	if err != nil {
		id = uuid.New()
	}
	accountId, err := uuid.Parse(event.AccountID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return nil, err
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return &model.EngineEvent{
		Id:        id,
		Type:      string(event.Type),
		Category:  string(event.Category),
		AccountId: accountId,
		SessionId: event.SessionID,
		Mode:      event.Mode,
		Payload:   payload,
		Metadata:  metadata,
		CreatedAt: createdAt,
	}, nil
}
