package eventstream_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ghuser/txbus/eventstream"
	"github.com/ghuser/txbus/message"
)

type testEvent struct {
	message.EventBase
	Amount int `json:"amount"`
}

func (testEvent) Name() string { return "widget_sold" }
func (testEvent) Version() int { return 2 }

type recordingTransport struct {
	records []eventstream.Record
}

func (t *recordingTransport) Initialize(context.Context) error { return nil }
func (t *recordingTransport) SendMessageSerialized(ctx context.Context, rec eventstream.Record) error {
	t.records = append(t.records, rec)
	return nil
}

func TestPublish_SkipsUnpublishedMessages(t *testing.T) {
	transport := &recordingTransport{}
	pub := eventstream.NewPublisher(transport)

	evt := testEvent{EventBase: message.EventBase{Base: message.NewBase()}, Amount: 3}
	if err := pub.Publish(context.Background(), &evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(transport.records) != 0 {
		t.Fatal("expected an unpublished message to be skipped")
	}
}

func TestPublish_SerializesTypeAndStripsMetadata(t *testing.T) {
	transport := &recordingTransport{}
	pub := eventstream.NewPublisher(transport)

	evt := testEvent{EventBase: message.EventBase{Base: message.NewBase()}, Amount: 3}
	evt.Metadata.Published = true
	if err := pub.Publish(context.Background(), &evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(transport.records) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(transport.records))
	}
	rec := transport.records[0]
	if rec.Type != "widget_sold_v2" {
		t.Fatalf("expected type widget_sold_v2, got %s", rec.Type)
	}
	if rec.ID != evt.Metadata.ID {
		t.Fatalf("expected record id to match message id")
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		t.Fatalf("invalid payload json: %v", err)
	}
	if _, hasMetadata := payload["metadata"]; hasMetadata {
		t.Fatal("expected payload to exclude metadata")
	}
	if payload["amount"].(float64) != 3 {
		t.Fatalf("expected amount 3 in payload, got %v", payload["amount"])
	}
}
