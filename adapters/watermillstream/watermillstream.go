// Package watermillstream implements eventstream.Transport on top of
// Watermill's SQL transport, so committed messages are published onto a
// durable Postgres-backed topic the same way the rest of this project's
// inter-service eventing works.
package watermillstream

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	wmessage "github.com/ThreeDotsLabs/watermill/message"

	"github.com/ghuser/txbus/eventstream"
	"github.com/ghuser/txbus/pkg/events"
)

// Transport publishes serialized records onto a single Watermill topic via
// an EventBus.
type Transport struct {
	bus   *events.EventBus
	topic string
}

// New returns a Transport publishing onto topic through bus.
func New(bus *events.EventBus, topic string) *Transport {
	return &Transport{bus: bus, topic: topic}
}

// Initialize is a no-op: the EventBus's publisher creates its schema
// tables automatically on first use.
func (t *Transport) Initialize(ctx context.Context) error { return nil }

// SendMessageSerialized publishes rec's JSON payload as a single Watermill
// message, carrying the wire type in metadata so subscribers can route
// without unmarshaling the payload first.
func (t *Transport) SendMessageSerialized(ctx context.Context, rec eventstream.Record) error {
	msg := wmessage.NewMessage(watermill.NewUUID(), rec.Payload)
	msg.Metadata.Set("message_id", rec.ID)
	msg.Metadata.Set("message_type", rec.Type)
	msg.Metadata.Set("created_at", rec.CreatedAt)
	if err := t.bus.Publish(ctx, t.topic, msg); err != nil {
		return fmt.Errorf("watermillstream: publish: %w", err)
	}
	return nil
}

var _ eventstream.Transport = (*Transport)(nil)
