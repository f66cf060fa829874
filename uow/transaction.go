// Package uow implements the unit-of-work transaction state machine:
// running, then committed or rolled back, then closed. A transaction may
// also be detached mid-flight so a caller can stream results from it after
// the enclosing Run call returns, closing it explicitly later.
package uow

import (
	"context"
	"fmt"

	"github.com/ghuser/txbus/message"
	"github.com/ghuser/txbus/messagestore"
	"github.com/ghuser/txbus/metrics"
	"github.com/ghuser/txbus/repository"
)

// Status is one of the four states a Transaction can be in.
type Status int

const (
	StatusRunning Status = iota
	StatusCommitted
	StatusRolledBack
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCommitted:
		return "committed"
	case StatusRolledBack:
		return "rolled_back"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TransactionError reports a misuse of the transaction state machine, such
// as committing twice or leaving a transaction open.
type TransactionError struct{ Msg string }

func (e *TransactionError) Error() string { return e.Msg }

// Dependency is implemented by anything registered or passed transiently
// into a handler that needs to react to how the surrounding transaction
// concluded. Either hook may be a no-op.
type Dependency interface {
	OnAfterCommit(ctx context.Context) error
	OnAfterRollback(ctx context.Context) error
}

// UnitOfWork is implemented by the storage-specific unit of work: it owns
// the underlying storage transaction and the repositories drawn from it.
// Repositories is called by CollectNewMessages, which the dispatch loop
// runs after every handler invocation, to collect raised messages from
// every aggregate touched during the transaction.
// MessageBackend is called once after Begin to bind the message store's
// append-only log to the same storage transaction.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Repositories() []repository.Repository
	MessageBackend() messagestore.Backend
}

// Transaction wraps a UnitOfWork with the running/committed/rolled_back/
// closed state machine, the hook list fired after commit or rollback, and
// the message store that collects and flushes raised messages.
type Transaction struct {
	uow      UnitOfWork
	store    *messagestore.Store
	metrics  metrics.Store
	status   Status
	detached bool
	hooks    []Dependency
}

// newTransaction begins uow and returns a running Transaction. Internal:
// callers go through Run. The message store is built only after Begin, so
// its backend can bind to the same storage transaction uow just opened.
func newTransaction(ctx context.Context, u UnitOfWork, publisher messagestore.Publisher, m metrics.Store) (*Transaction, error) {
	if m == nil {
		m = metrics.Noop{}
	}
	if err := u.Begin(ctx); err != nil {
		return nil, fmt.Errorf("uow: begin: %w", err)
	}
	m.IncTransactionsStarted()
	store := messagestore.New(u.MessageBackend(), publisher)
	return &Transaction{uow: u, store: store, metrics: m, status: StatusRunning}, nil
}

// Status returns the transaction's current state.
func (t *Transaction) Status() Status { return t.status }

// UnitOfWork returns the wrapped storage unit of work, for message
// collection by the dispatch loop.
func (t *Transaction) UnitOfWork() UnitOfWork { return t.uow }

// MessageStore returns the message store backing this transaction.
func (t *Transaction) MessageStore() *messagestore.Store { return t.store }

// AddHook registers dep to receive OnAfterCommit/OnAfterRollback once this
// transaction concludes. Safe to call multiple times with the same
// instance only if the caller wants multiple firings; callers resolving
// named dependencies should attach each instance once.
func (t *Transaction) AddHook(dep Dependency) {
	t.hooks = append(t.hooks, dep)
}

// Commit ends the transaction successfully, firing OnAfterCommit on every
// attached hook in attachment order. Only valid from running.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.status != StatusRunning {
		return &TransactionError{fmt.Sprintf("Transaction already closed (%s)", t.status)}
	}
	if err := t.uow.Commit(ctx); err != nil {
		return fmt.Errorf("uow: commit: %w", err)
	}
	t.status = StatusCommitted
	for _, h := range t.hooks {
		if err := h.OnAfterCommit(ctx); err != nil {
			return fmt.Errorf("uow: on-after-commit hook: %w", err)
		}
	}
	return nil
}

// Rollback discards the transaction, firing OnAfterRollback on every
// attached hook in attachment order. Only valid from running.
func (t *Transaction) Rollback(ctx context.Context) error {
	if t.status != StatusRunning {
		return &TransactionError{fmt.Sprintf("Transaction already closed (%s)", t.status)}
	}
	if err := t.uow.Rollback(ctx); err != nil {
		return fmt.Errorf("uow: rollback: %w", err)
	}
	t.status = StatusRolledBack
	t.store.Discard()
	for _, h := range t.hooks {
		if err := h.OnAfterRollback(ctx); err != nil {
			return fmt.Errorf("uow: on-after-rollback hook: %w", err)
		}
	}
	return nil
}

// Detach suppresses the "must be explicitly closed" check that would
// otherwise fire when Run's scope exits with the transaction still
// running. Use it to keep a lazily-evaluated query result (e.g. a cursor
// opened inside the transaction) valid after the handler returns; the
// caller must call Close explicitly once done with it.
func (t *Transaction) Detach() {
	t.detached = true
}

// Close finalizes a detached transaction. If the transaction is still
// running (the only legal case: Detach was called and nothing else
// concluded it), Close performs an implicit rollback so the underlying
// storage transaction is never left open. If it already concluded via
// Commit or Rollback, Close just flushes (on commit) and marks it closed.
func (t *Transaction) Close(ctx context.Context) error {
	switch t.status {
	case StatusClosed:
		return &TransactionError{"Transaction is closed"}
	case StatusRunning:
		if err := t.Rollback(ctx); err != nil {
			return err
		}
	}
	return t.finish(ctx)
}

// exitScope is invoked by Run when the handler function returns. It is the
// non-detached counterpart of Close: a still-running, non-detached
// transaction at scope exit is a bug (the handler forgot to conclude it),
// so this raises rather than silently rolling back.
func (t *Transaction) exitScope(ctx context.Context) error {
	if t.detached {
		return nil
	}
	if t.status == StatusRunning {
		return &TransactionError{"Transaction must be explicitly close. Missing commit/rollback call."}
	}
	return t.finish(ctx)
}

// finish transitions a concluded (committed or rolled back) transaction
// to closed, flushing the outbox on commit, and reports the terminal
// status to metrics.
func (t *Transaction) finish(ctx context.Context) error {
	switch t.status {
	case StatusCommitted:
		if err := t.store.Flush(ctx); err != nil {
			return err
		}
		t.metrics.IncTransactionsClosed(StatusCommitted.String())
	case StatusRolledBack:
		t.metrics.IncTransactionsClosed(StatusRolledBack.String())
		t.metrics.IncTransactionsFailed()
	}
	t.status = StatusClosed
	return nil
}

// Run begins a Transaction over u, invokes fn, and concludes the
// transaction: a panic or returned error triggers Rollback before the
// panic is re-raised or the error is returned; otherwise the transaction
// must have been committed or rolled back by fn (directly, or via the
// dispatch loop running inside it) or Run returns a TransactionError.
func Run(ctx context.Context, u UnitOfWork, publisher messagestore.Publisher, m metrics.Store, fn func(ctx context.Context, tx *Transaction) (any, error)) (result any, err error) {
	tx, err := newTransaction(ctx, u, publisher, m)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			if tx.status == StatusRunning {
				_ = tx.Rollback(ctx)
			}
			_ = tx.exitScope(ctx)
			panic(r)
		}
	}()

	result, err = fn(ctx, tx)
	if err != nil {
		if tx.status == StatusRunning {
			_ = tx.Rollback(ctx)
		}
		if cerr := tx.exitScope(ctx); cerr != nil {
			return nil, cerr
		}
		return nil, err
	}
	if cerr := tx.exitScope(ctx); cerr != nil {
		return nil, cerr
	}
	return result, nil
}

// CollectNewMessages drains every aggregate touched by every repository
// the unit of work exposes, returning their raised messages in the order
// the repositories (and, within a repository, its aggregates) are
// reported. Call this after each handler invocation to feed freshly
// raised messages back into the dispatch loop.
func CollectNewMessages(u UnitOfWork) []message.Message {
	var out []message.Message
	for _, repo := range u.Repositories() {
		for _, root := range repo.Seen() {
			out = append(out, root.CollectMessages()...)
		}
	}
	return out
}
