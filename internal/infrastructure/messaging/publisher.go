// Package messaging publishes ontology cache invalidations to AWS EventBridge
// so that every instance serving the API drops the same entries.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DetailTypeCacheInvalidated is the EventBridge detail type of invalidation
// events.
const DetailTypeCacheInvalidated = "OntologyCacheInvalidated"

// API is the subset of the EventBridge client used by the publisher.
type API interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// CacheInvalidatedEvent is the detail of an invalidation event. Origin
// identifies the publishing instance so it can ignore its own events.
type CacheInvalidatedEvent struct {
	EventID    string `json:"event_id"`
	Scope      string `json:"scope"`
	Origin     string `json:"origin"`
	OccurredAt string `json:"occurred_at"`
}

// EventBridgePublisher publishes invalidation events to an event bus.
type EventBridgePublisher struct {
	client   API
	eventBus string
	source   string
	origin   string
	now      func() time.Time
	logger   *zap.Logger
}

// NewEventBridgePublisher creates a publisher. origin names this instance.
func NewEventBridgePublisher(client API, eventBus, source, origin string, logger *zap.Logger) *EventBridgePublisher {
	if eventBus == "" {
		eventBus = "default"
	}
	if source == "" {
		source = "opensilex-backend"
	}
	if origin == "" {
		origin = uuid.NewString()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBridgePublisher{
		client:   client,
		eventBus: eventBus,
		source:   source,
		origin:   origin,
		now:      time.Now,
		logger:   logger,
	}
}

// Origin returns the identifier stamped on published events.
func (p *EventBridgePublisher) Origin() string {
	return p.origin
}

// PublishInvalidation publishes one invalidation event.
func (p *EventBridgePublisher) PublishInvalidation(ctx context.Context, scope string) error {
	occurred := p.now().UTC()
	event := CacheInvalidatedEvent{
		EventID:    uuid.NewString(),
		Scope:      scope,
		Origin:     p.origin,
		OccurredAt: occurred.Format(time.RFC3339),
	}
	detail, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event detail: %w", err)
	}

	output, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{{
			EventBusName: aws.String(p.eventBus),
			Source:       aws.String(p.source),
			DetailType:   aws.String(DetailTypeCacheInvalidated),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(occurred),
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to put events: %w", err)
	}

	if output.FailedEntryCount > 0 {
		for i, entry := range output.Entries {
			if entry.ErrorCode != nil {
				p.logger.Error("EventBridge rejected event",
					zap.Int("entry", i),
					zap.String("code", aws.ToString(entry.ErrorCode)),
					zap.String("message", aws.ToString(entry.ErrorMessage)),
				)
			}
		}
		return fmt.Errorf("%d events failed to publish", output.FailedEntryCount)
	}

	p.logger.Debug("Published cache invalidation event",
		zap.String("event_id", event.EventID),
		zap.String("scope", scope),
	)
	return nil
}

// DecodeInvalidation reads the detail of an invalidation event and reports
// whether it was published by another instance than origin.
func DecodeInvalidation(detailType string, detail json.RawMessage, origin string) (CacheInvalidatedEvent, bool, error) {
	var event CacheInvalidatedEvent
	if detailType != DetailTypeCacheInvalidated {
		return event, false, nil
	}
	if err := json.Unmarshal(detail, &event); err != nil {
		return event, false, fmt.Errorf("failed to unmarshal event detail: %w", err)
	}
	return event, event.Origin != origin, nil
}
