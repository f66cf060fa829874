// Package postgresstore implements messagestore.Backend and uow.UnitOfWork
// against PostgreSQL via database/sql, so a message's append-only log
// entry and its owning aggregate's rows land in the same SQL transaction.
package postgresstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ghuser/txbus/message"
	"github.com/ghuser/txbus/messagestore"
	"github.com/ghuser/txbus/pkg/database"
	"github.com/ghuser/txbus/repository"
)

// Backend appends messages to the messagebus_messages table within a
// single SQL transaction.
type Backend struct {
	tx *sql.Tx
}

// NewBackend returns a Backend that writes through tx.
func NewBackend(tx *sql.Tx) *Backend { return &Backend{tx: tx} }

// Append inserts msg's wire fields into the append-only log.
func (b *Backend) Append(ctx context.Context, msg message.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("postgresstore: marshal: %w", err)
	}
	meta := msg.Meta()
	_, err = b.tx.ExecContext(ctx, `
		INSERT INTO messagebus_messages (id, name, version, created_at, published, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, meta.ID, msg.Name(), msg.Version(), meta.CreatedAt, meta.Published, payload)
	if err != nil {
		return fmt.Errorf("postgresstore: insert: %w", err)
	}
	return nil
}

// RepositoryFactory builds a repository bound to tx, for the currently
// open transaction.
type RepositoryFactory func(tx *sql.Tx) repository.Repository

// UnitOfWork implements uow.UnitOfWork against a *database.Database pool,
// handing every repository the same *sql.Tx so their writes and the
// message log commit or roll back together.
type UnitOfWork struct {
	pool         *database.Database
	factories    []RepositoryFactory
	tx           *sql.Tx
	repositories []repository.Repository
}

// New returns a UnitOfWork over pool. factories is called once per Begin
// to build the repositories exposed by Repositories.
func New(pool *database.Database, factories ...RepositoryFactory) *UnitOfWork {
	return &UnitOfWork{pool: pool, factories: factories}
}

// Tx returns the currently open transaction, or nil before Begin.
func (u *UnitOfWork) Tx() *sql.Tx { return u.tx }

// Begin opens the underlying SQL transaction and builds this run's
// repositories against it.
func (u *UnitOfWork) Begin(ctx context.Context) error {
	tx, err := u.pool.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgresstore: begin: %w", err)
	}
	u.tx = tx
	u.repositories = make([]repository.Repository, 0, len(u.factories))
	for _, f := range u.factories {
		u.repositories = append(u.repositories, f(tx))
	}
	return nil
}

// Commit commits the underlying SQL transaction.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("postgresstore: commit: %w", err)
	}
	return nil
}

// Rollback rolls back the underlying SQL transaction.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if err := u.tx.Rollback(); err != nil {
		return fmt.Errorf("postgresstore: rollback: %w", err)
	}
	return nil
}

// Repositories returns the repositories built for the currently open
// transaction.
func (u *UnitOfWork) Repositories() []repository.Repository {
	return u.repositories
}

// MessageBackend returns a Backend bound to the currently open
// transaction, so the message log commits atomically with domain writes.
func (u *UnitOfWork) MessageBackend() messagestore.Backend {
	return NewBackend(u.tx)
}
