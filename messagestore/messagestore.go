// Package messagestore appends processed messages to a durable log and
// buffers them for publication, flushing the buffer to the event stream
// only when the owning transaction commits.
package messagestore

import (
	"context"
	"fmt"

	"github.com/ghuser/txbus/message"
)

// Backend persists the append-only log. Adapters (e.g. Postgres) implement
// this against their own schema; SinkholeBackend is a default that
// discards every message.
type Backend interface {
	Append(ctx context.Context, msg message.Message) error
}

// Publisher is the event-stream side of a flush: it receives messages in
// append order once the owning transaction has committed.
type Publisher interface {
	Publish(ctx context.Context, msg message.Message) error
}

// Store is the message store used by a single transaction: every processed
// message is appended to the backend immediately, and also buffered in an
// outbox that is only drained to the Publisher on Flush (called by the
// transaction on commit). A rolled-back transaction never flushes, so
// unpublished messages are simply discarded along with the outbox.
type Store struct {
	backend   Backend
	publisher Publisher
	outbox    []message.Message
}

// New returns a Store writing to backend and flushing to publisher.
func New(backend Backend, publisher Publisher) *Store {
	return &Store{backend: backend, publisher: publisher}
}

// Append writes msg to the durable log and queues it in the outbox.
func (s *Store) Append(ctx context.Context, msg message.Message) error {
	if err := s.backend.Append(ctx, msg); err != nil {
		return fmt.Errorf("messagestore: append: %w", err)
	}
	s.outbox = append(s.outbox, msg)
	return nil
}

// Flush drains the outbox, publishing each message in append order. Only
// call this after a successful commit. The outbox is cleared regardless
// of whether publication succeeds partway through, matching at-most-once
// delivery of a given flush attempt.
func (s *Store) Flush(ctx context.Context) error {
	pending := s.outbox
	s.outbox = nil
	for _, msg := range pending {
		if !msg.Meta().Published {
			continue
		}
		if err := s.publisher.Publish(ctx, msg); err != nil {
			return fmt.Errorf("messagestore: flush: %w", err)
		}
	}
	return nil
}

// Discard clears the outbox without publishing, used when a transaction
// rolls back.
func (s *Store) Discard() {
	s.outbox = nil
}

// SinkholeBackend discards everything; useful for tests and as a default.
type SinkholeBackend struct{}

func (SinkholeBackend) Append(context.Context, message.Message) error { return nil }

// SinkholePublisher discards everything; the default when no event-stream
// transport is configured.
type SinkholePublisher struct{}

func (SinkholePublisher) Publish(context.Context, message.Message) error { return nil }
