// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

// Package events carries notification events from their producers (the API
// mutation handlers and the scheduler) to the broadcast hub over an
// in-process Watermill pub/sub. Producers never touch the hub directly;
// they publish to the bus and the bridge fans the events out.
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/cmcapp/pulse/internal/hub"
	"github.com/cmcapp/pulse/internal/logging"
	"github.com/cmcapp/pulse/internal/models"
)

// TopicNotifications is the single topic notification events travel on.
const TopicNotifications = "notifications.events"

const metadataEventType = "event_type"

// Bus is the in-process event pipeline.
type Bus struct {
	pubsub *gochannel.GoChannel

	mu     sync.Mutex
	closed bool
}

// NewBus creates the pub/sub channel. bufferSize bounds the per-subscriber
// output channel; zero uses an unbuffered channel.
func NewBus(bufferSize int64) *Bus {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: bufferSize,
	}, NewLoggerAdapter())
	return &Bus{pubsub: pubsub}
}

// PublishNew announces a freshly created or dispatched notification.
func (b *Bus) PublishNew(ctx context.Context, n *models.Notification) error {
	return b.publish(ctx, hub.EventNewNotification, n)
}

// PublishDelete announces a tombstone for a removed notification.
func (b *Bus) PublishDelete(ctx context.Context, id uuid.UUID) error {
	return b.publish(ctx, hub.EventDeleteNotification, map[string]string{"id": id.String()})
}

func (b *Bus) publish(ctx context.Context, eventType string, data interface{}) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("event bus is closed")
	}
	b.mu.Unlock()

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metadataEventType, eventType)
	msg.SetContext(ctx)

	if err := b.pubsub.Publish(TopicNotifications, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return nil
}

// Subscribe returns the raw message stream. Exposed for tests and for
// additional consumers beyond the hub bridge.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, TopicNotifications)
}

// Close shuts the pub/sub down. Subscribers see their channels closed.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}

// Bridge consumes the bus and forwards decoded events to the hub. It runs
// as a supervised service.
type Bridge struct {
	bus *Bus
	hub *hub.Hub
}

// NewBridge wires the bus to the hub.
func NewBridge(bus *Bus, h *hub.Hub) *Bridge {
	return &Bridge{bus: bus, hub: h}
}

// Serve consumes messages until the context is canceled or the bus closes.
func (br *Bridge) Serve(ctx context.Context) error {
	messages, err := br.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", TopicNotifications, err)
	}

	logging.Info().Str("topic", TopicNotifications).Msg("Event bridge started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				logging.Info().Msg("Event bus closed, stopping bridge")
				return nil
			}
			br.forward(msg)
			msg.Ack()
		}
	}
}

func (br *Bridge) String() string { return "event-bridge" }

// forward decodes a bus message into a typed hub event and broadcasts it.
// Undecodable messages are logged and dropped; they would fail for every
// retry as well.
func (br *Bridge) forward(msg *message.Message) {
	eventType := msg.Metadata.Get(metadataEventType)
	switch eventType {
	case hub.EventNewNotification:
		var n models.Notification
		if err := json.Unmarshal(msg.Payload, &n); err != nil {
			logging.Error().Err(err).Str("message_id", msg.UUID).Msg("Failed to decode notification event")
			return
		}
		br.hub.Broadcast(hub.NewNotificationEvent(&n))
	case hub.EventDeleteNotification:
		var tombstone map[string]string
		if err := json.Unmarshal(msg.Payload, &tombstone); err != nil {
			logging.Error().Err(err).Str("message_id", msg.UUID).Msg("Failed to decode delete event")
			return
		}
		br.hub.Broadcast(hub.DeleteEvent(tombstone["id"]))
	default:
		logging.Warn().Str("event_type", eventType).Str("message_id", msg.UUID).Msg("Unknown event type on bus")
	}
}
