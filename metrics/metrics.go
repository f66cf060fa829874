// Package metrics defines the observability hooks a unit of work and
// dispatch loop report through, independent of any particular backend.
package metrics

import "github.com/ghuser/txbus/message"

// Store receives counters and gauges describing transaction lifecycle and
// message throughput. A concrete backend (e.g. Prometheus) implements
// this; Noop is the default when no backend is configured.
type Store interface {
	// IncTransactionsStarted increments the total count of transactions
	// that have begun and the number currently in progress.
	IncTransactionsStarted()
	// IncTransactionsClosed increments the closed-transaction counter for
	// the given terminal status ("committed" or "rolled_back") and
	// decrements the in-progress gauge.
	IncTransactionsClosed(status string)
	// IncTransactionsFailed increments the count of transactions that
	// closed in the rolled_back state, whether the rollback followed an
	// error or an explicit Rollback call.
	IncTransactionsFailed()
	// IncMessagesProcessed increments the per-name/version counter for a
	// message that completed dispatch.
	IncMessagesProcessed(name string, version int)
}

// Noop implements Store with no-ops; the default when no metrics backend
// is wired in.
type Noop struct{}

func (Noop) IncTransactionsStarted()         {}
func (Noop) IncTransactionsClosed(string)    {}
func (Noop) IncTransactionsFailed()          {}
func (Noop) IncMessagesProcessed(string, int) {}

// NameVersion is a small helper so callers can pass a message directly.
func NameVersion(msg message.Message) (string, int) {
	return msg.Name(), msg.Version()
}
