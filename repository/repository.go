// Package repository defines the Repository contract used by a unit of work
// to track touched aggregates and the Result type used by repository
// operations to report outcomes without relying on panics or sentinel
// error wrapping alone.
package repository

import "github.com/ghuser/txbus/aggregate"

// ErrKind classifies why a repository operation did not return a value.
type ErrKind string

const (
	// ErrNotFound indicates the requested aggregate does not exist.
	ErrNotFound ErrKind = "not_found"
	// ErrConflict indicates a uniqueness or optimistic-concurrency violation.
	ErrConflict ErrKind = "conflict"
	// ErrBackend indicates a failure in the underlying storage backend.
	ErrBackend ErrKind = "backend"
)

// RepoError is returned inside a failed Result, carrying a classification
// alongside the underlying cause.
type RepoError struct {
	Kind  ErrKind
	Cause error
}

func (e *RepoError) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Cause.Error()
	}
	return string(e.Kind)
}

func (e *RepoError) Unwrap() error { return e.Cause }

// Result is a minimal Ok/Err sum type, used instead of exceptions so a
// handler can branch on the outcome of a repository call explicitly.
type Result[T any] struct {
	value T
	err   *RepoError
	ok    bool
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] { return Result[T]{value: v, ok: true} }

// Err wraps a failure.
func Err[T any](err *RepoError) Result[T] { return Result[T]{err: err} }

// IsOk reports whether the result carries a value.
func (r Result[T]) IsOk() bool { return r.ok }

// Unwrap returns the value and the error; exactly one is the zero value.
func (r Result[T]) Unwrap() (T, *RepoError) { return r.value, r.err }

// Repository is implemented by every aggregate-specific repository. Seen
// returns the aggregates touched since construction, deduplicated, so a
// unit of work can collect their raised messages exactly once per commit.
type Repository interface {
	Seen() []*aggregate.Root
}

// Tracker is embedded by concrete repositories to implement Seen via an
// ordered, dedup'd buffer of touched aggregate pointers.
type Tracker struct {
	index map[*aggregate.Root]struct{}
	seen  []*aggregate.Root
}

// Track records root as touched, deduplicating by identity and preserving
// first-touch order.
func (t *Tracker) Track(root *aggregate.Root) {
	if t.index == nil {
		t.index = make(map[*aggregate.Root]struct{})
	}
	if _, ok := t.index[root]; ok {
		return
	}
	t.index[root] = struct{}{}
	t.seen = append(t.seen, root)
}

// Seen returns the tracked aggregates in the order they were first tracked.
func (t *Tracker) Seen() []*aggregate.Root {
	return t.seen
}
