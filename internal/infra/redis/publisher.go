package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kislikjeka/coopledger/internal/events"
)

// DefaultEventChannel is the channel prefix events are published under
const DefaultEventChannel = "coopledger.events"

// EventPublisher publishes domain events as JSON on Redis pub/sub,
// one channel per event type: {channel}.{type}
type EventPublisher struct {
	client  *redis.Client
	channel string
}

// NewEventPublisher creates a publisher. An empty channel uses DefaultEventChannel.
func NewEventPublisher(client *redis.Client, channel string) *EventPublisher {
	if channel == "" {
		channel = DefaultEventChannel
	}
	return &EventPublisher{client: client, channel: channel}
}

// Channel returns the channel an event type is published on
func (p *EventPublisher) Channel(eventType events.Type) string {
	return p.channel + "." + string(eventType)
}

// Publish sends the event to its channel
func (p *EventPublisher) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(event.Type), data).Err(); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.Type, err)
	}
	return nil
}
