// Package message defines the Command and Event variants that flow through
// the bus, plus the equality and metadata rules shared by both.
package message

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Metadata carries identity and bookkeeping fields attached to every message.
// Extra holds application-defined fields that ride along with a message but
// are not part of its equality or wire payload.
type Metadata struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Published bool           `json:"-"`
	Extra     map[string]any `json:"-"`
}

// newMetadata returns a Metadata with a fresh time-sortable identifier.
func newMetadata() Metadata {
	return Metadata{
		ID:        uuid.Must(uuid.NewV7()).String(),
		CreatedAt: time.Now().UTC(),
	}
}

// Message is the common contract satisfied by both Command and Event.
// Name and Version identify the message type on the wire (see eventstream);
// Meta exposes the bookkeeping fields. The package-level Equal compares two
// messages structurally, ignoring ID and CreatedAt.
type Message interface {
	Name() string
	Version() int
	Meta() Metadata
	setPublished(bool)
}

// Command is handled by at most one registered handler and its return
// value is propagated back to the caller of Handle.
type Command interface {
	Message
	isCommand()
}

// Event is delivered to zero or more registered handlers; return values
// from event handlers are discarded.
type Event interface {
	Message
	isEvent()
}

// Base embeds the bookkeeping fields shared by generated Command and Event
// types. Embed it (not pointer-embed) in domain message structs.
type Base struct {
	Metadata Metadata `json:"metadata"`
}

// NewBase returns a Base with a fresh ID and creation timestamp.
func NewBase() Base {
	return Base{Metadata: newMetadata()}
}

func (b Base) Meta() Metadata { return b.Metadata }

func (b *Base) setPublished(p bool) { b.Metadata.Published = p }

// CommandBase is embedded by concrete command types to satisfy Command.
type CommandBase struct{ Base }

func (CommandBase) isCommand() {}

// EventBase is embedded by concrete event types to satisfy Event.
type EventBase struct{ Base }

func (EventBase) isEvent() {}

// Equal reports whether a and b carry the same payload, ignoring the
// message ID and creation timestamp (mirrors the identity-agnostic equality
// used by domain tests). Two messages of different concrete types are
// never equal.
func Equal(a, b Message) bool {
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	var ma, mb map[string]any
	if err := json.Unmarshal(ja, &ma); err != nil {
		return false
	}
	if err := json.Unmarshal(jb, &mb); err != nil {
		return false
	}
	// "metadata" only ever carries id/created_at on the wire (Published and
	// Extra are excluded from JSON); dropping the whole key ignores identity.
	delete(ma, "metadata")
	delete(mb, "metadata")
	ba, _ := json.Marshal(ma)
	bb, _ := json.Marshal(mb)
	return string(ba) == string(bb)
}
