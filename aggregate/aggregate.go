// Package aggregate provides the base type for domain entities that record
// the messages they raise as a side effect of state changes, for later
// collection by a unit of work.
package aggregate

import "github.com/ghuser/txbus/message"

// Root is embedded by domain entities that need to raise messages. Raise
// appends to an internal buffer; CollectMessages drains (not copies) it so
// each message is collected exactly once.
type Root struct {
	messages []message.Message
}

// Raise buffers msg for later collection by the owning unit of work.
func (r *Root) Raise(msg message.Message) {
	r.messages = append(r.messages, msg)
}

// CollectMessages returns and clears the buffered messages.
func (r *Root) CollectMessages() []message.Message {
	if len(r.messages) == 0 {
		return nil
	}
	out := r.messages
	r.messages = nil
	return out
}

// HasMessages reports whether any message is waiting to be collected.
func (r *Root) HasMessages() bool {
	return len(r.messages) > 0
}
