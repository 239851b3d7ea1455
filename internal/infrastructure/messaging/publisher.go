// Package messaging publishes change events for committed saves to EventBridge.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"
)

// Change kinds.
const (
	KindAdded    = "Added"
	KindModified = "Modified"
	KindRemoved  = "Removed"
)

// ChangeEvent describes one committed entity change.
type ChangeEvent struct {
	Kind       string    `json:"kind"`
	Entity     string    `json:"entity"`
	ID         int64     `json:"id"`
	Version    uint32    `json:"version"`
	OccurredAt time.Time `json:"occurredAt"`
}

// DetailType is the EventBridge detail-type, e.g. "Product.Added".
func (e ChangeEvent) DetailType() string { return e.Entity + "." + e.Kind }

// Publisher delivers change events.
type Publisher interface {
	Publish(ctx context.Context, events []ChangeEvent) error
}

// Client is the subset of the EventBridge API the publisher uses.
type Client interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridge limits PutEvents to 10 entries.
const batchSize = 10

// EventBridgePublisher implements Publisher with AWS EventBridge.
type EventBridgePublisher struct {
	client       Client
	eventBusName string
	source       string
	logger       *zap.Logger
}

func NewEventBridgePublisher(client Client, eventBusName, source string, logger *zap.Logger) *EventBridgePublisher {
	return &EventBridgePublisher{
		client:       client,
		eventBusName: eventBusName,
		source:       source,
		logger:       logger,
	}
}

// Publish sends events in batches of ten. It stops at the first failed batch.
func (p *EventBridgePublisher) Publish(ctx context.Context, events []ChangeEvent) error {
	for i := 0; i < len(events); i += batchSize {
		end := min(i+batchSize, len(events))
		if err := p.publishBatch(ctx, events[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *EventBridgePublisher) publishBatch(ctx context.Context, events []ChangeEvent) error {
	entries := make([]types.PutEventsRequestEntry, 0, len(events))
	for _, event := range events {
		detail, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal %s event: %w", event.DetailType(), err)
		}
		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(p.eventBusName),
			Source:       aws.String(p.source),
			DetailType:   aws.String(event.DetailType()),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(event.OccurredAt),
		})
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return fmt.Errorf("failed to publish events to EventBridge: %w", err)
	}
	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil {
				p.logger.Error("Failed to publish event",
					zap.String("detailType", events[i].DetailType()),
					zap.String("errorCode", aws.ToString(entry.ErrorCode)),
					zap.String("errorMessage", aws.ToString(entry.ErrorMessage)),
				)
			}
		}
		return fmt.Errorf("%d events failed to publish", result.FailedEntryCount)
	}

	p.logger.Debug("Events published to EventBridge",
		zap.Int("count", len(entries)),
		zap.String("eventBus", p.eventBusName),
	)
	return nil
}
