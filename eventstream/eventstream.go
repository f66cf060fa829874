// Package eventstream serializes committed messages to a wire record and
// hands them to a pluggable Transport. The wire record drops the fields
// that only matter internally (Published flag, ad-hoc Extra metadata) and
// derives a type tag from the message's name and version.
package eventstream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ghuser/txbus/message"
)

// Record is the serialized form of a message placed on the wire.
type Record struct {
	ID        string          `json:"id"`
	CreatedAt string          `json:"created_at"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// Transport delivers a serialized record to wherever messages are
// published. Initialize is called once before the first Send.
type Transport interface {
	Initialize(ctx context.Context) error
	SendMessageSerialized(ctx context.Context, rec Record) error
}

// SinkholeTransport discards every record; the default when no real
// transport is configured.
type SinkholeTransport struct{}

func (SinkholeTransport) Initialize(context.Context) error { return nil }

func (SinkholeTransport) SendMessageSerialized(context.Context, Record) error { return nil }

// Publisher serializes and forwards messages whose Published flag is set.
// It implements messagestore.Publisher.
type Publisher struct {
	transport   Transport
	initialized bool
}

// NewPublisher returns a Publisher delegating to transport.
func NewPublisher(transport Transport) *Publisher {
	return &Publisher{transport: transport}
}

// Publish serializes msg to a Record and sends it over the transport.
// Messages whose Published flag is false are silently skipped, mirroring
// the public/private distinction at the message-store level.
func (p *Publisher) Publish(ctx context.Context, msg message.Message) error {
	if !msg.Meta().Published {
		return nil
	}
	if !p.initialized {
		if err := p.transport.Initialize(ctx); err != nil {
			return fmt.Errorf("eventstream: initialize transport: %w", err)
		}
		p.initialized = true
	}
	rec, err := serialize(msg)
	if err != nil {
		return fmt.Errorf("eventstream: serialize: %w", err)
	}
	if err := p.transport.SendMessageSerialized(ctx, rec); err != nil {
		return fmt.Errorf("eventstream: send: %w", err)
	}
	return nil
}

// serialize builds the wire Record for msg: id and created_at come from
// its Metadata, type is "<name>_v<version>", and payload is the message's
// JSON encoding with id/created_at/metadata stripped.
func serialize(msg message.Message) (Record, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return Record{}, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Record{}, err
	}
	delete(fields, "metadata")
	payload, err := json.Marshal(fields)
	if err != nil {
		return Record{}, err
	}
	meta := msg.Meta()
	return Record{
		ID:        meta.ID,
		CreatedAt: meta.CreatedAt.Format("2006-01-02T15:04:05.000000Z07:00"),
		Type:      fmt.Sprintf("%s_v%d", msg.Name(), msg.Version()),
		Payload:   payload,
	}, nil
}
