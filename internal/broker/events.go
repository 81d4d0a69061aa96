package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"claim-service/internal/models"
	"claim-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
	origin   string
}

// NewEventPublisher creates a new event publisher. origin identifies this
// replica so its own events can be recognised when consumed.
func NewEventPublisher(producer *Producer, origin string) *EventPublisher {
	return &EventPublisher{producer: producer, origin: origin}
}

func (ep *EventPublisher) stamp(base *models.BaseEvent, eventType string) {
	if base.EventID == "" {
		base.EventID = uuid.New().String()
	}
	if base.Timestamp.IsZero() {
		base.Timestamp = time.Now()
	}
	base.EventType = eventType
	base.Origin = ep.origin
}

func claimKey(id int64) string {
	return fmt.Sprintf("claim-%d", id)
}

// PublishClaimCreated publishes ClaimCreated event
func (ep *EventPublisher) PublishClaimCreated(ctx context.Context, event *models.ClaimCreatedEvent) error {
	ep.stamp(&event.BaseEvent, models.EventTypeClaimCreated)
	return ep.producer.PublishEvent(ctx, claimKey(event.ClaimID), event)
}

// PublishClaimSubmitted publishes ClaimSubmitted event
func (ep *EventPublisher) PublishClaimSubmitted(ctx context.Context, event *models.ClaimSubmittedEvent) error {
	ep.stamp(&event.BaseEvent, models.EventTypeClaimSubmitted)
	return ep.producer.PublishEvent(ctx, claimKey(event.ClaimID), event)
}

// PublishClaimDecided publishes ClaimApproved or ClaimRejected
func (ep *EventPublisher) PublishClaimDecided(ctx context.Context, approved bool, event *models.ClaimDecidedEvent) error {
	eventType := models.EventTypeClaimRejected
	if approved {
		eventType = models.EventTypeClaimApproved
	}
	ep.stamp(&event.BaseEvent, eventType)
	return ep.producer.PublishEvent(ctx, claimKey(event.ClaimID), event)
}

// PublishPaymentCreated publishes PaymentCreated event
func (ep *EventPublisher) PublishPaymentCreated(ctx context.Context, event *models.PaymentEvent) error {
	ep.stamp(&event.BaseEvent, models.EventTypePaymentCreated)
	return ep.producer.PublishEvent(ctx, claimKey(event.ClaimID), event)
}

// PublishPaymentStatusChanged publishes PaymentStatusChanged event
func (ep *EventPublisher) PublishPaymentStatusChanged(ctx context.Context, event *models.PaymentEvent) error {
	ep.stamp(&event.BaseEvent, models.EventTypePaymentStatusChanged)
	return ep.producer.PublishEvent(ctx, claimKey(event.ClaimID), event)
}

// PublishCampaignDeleted publishes CampaignDeleted event
func (ep *EventPublisher) PublishCampaignDeleted(ctx context.Context, event *models.CampaignDeletedEvent) error {
	ep.stamp(&event.BaseEvent, models.EventTypeCampaignDeleted)
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("campaign-%d", event.CampaignID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	origin            string
	logger            *zap.Logger
	onClaimSubmitted  func(context.Context, *models.ClaimSubmittedEvent) error
	onCampaignDeleted func(context.Context, *models.CampaignDeletedEvent) error
}

// NewEventHandler creates a new event handler that ignores events
// published under origin
func NewEventHandler(origin string) *EventHandler {
	return &EventHandler{origin: origin, logger: util.GetLogger()}
}

// OnClaimSubmitted registers a handler for ClaimSubmitted events
func (eh *EventHandler) OnClaimSubmitted(handler func(context.Context, *models.ClaimSubmittedEvent) error) {
	eh.onClaimSubmitted = handler
}

// OnCampaignDeleted registers a handler for CampaignDeleted events
func (eh *EventHandler) OnCampaignDeleted(handler func(context.Context, *models.CampaignDeletedEvent) error) {
	eh.onCampaignDeleted = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	if eh.origin != "" && baseEvent.Origin == eh.origin {
		return nil
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeClaimSubmitted:
		if eh.onClaimSubmitted != nil {
			var event models.ClaimSubmittedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ClaimSubmitted event: %w", err)
			}
			return eh.onClaimSubmitted(ctx, &event)
		}

	case models.EventTypeCampaignDeleted:
		if eh.onCampaignDeleted != nil {
			var event models.CampaignDeletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal CampaignDeleted event: %w", err)
			}
			return eh.onCampaignDeleted(ctx, &event)
		}
	}

	return nil
}
