// Package bus implements the dispatch engine: handler registration keyed
// by concrete message type, dependency resolution (registered and
// transient), and the FIFO loop that drains handler-raised follow-up
// messages breadth-first within a single transaction.
package bus

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/ghuser/txbus/message"
	"github.com/ghuser/txbus/metrics"
	"github.com/ghuser/txbus/uow"
)

// DependencyFactory builds a fresh instance of a registered dependency.
// Called once per Handle invocation that actually needs it.
type DependencyFactory func() uow.Dependency

// DependencyDecl is a handler's declaration of a single named dependency.
type DependencyDecl struct {
	Name     string
	Optional bool
}

// DependencySet is the resolved dependency values passed into a handler,
// keyed by declared name. A missing optional dependency is a nil value.
type DependencySet map[string]uow.Dependency

// Get returns the dependency registered under name, or nil.
func (d DependencySet) Get(name string) uow.Dependency { return d[name] }

// CommandHandler processes a command inside tx and returns the command's
// result value.
type CommandHandler[M message.Command] func(ctx context.Context, cmd M, tx *uow.Transaction, deps DependencySet) (any, error)

// EventHandler reacts to an event inside tx. Its return value is discarded
// by the dispatch loop.
type EventHandler[M message.Event] func(ctx context.Context, evt M, tx *uow.Transaction, deps DependencySet) error

type commandHook struct {
	deps []DependencyDecl
	call func(ctx context.Context, msg message.Command, tx *uow.Transaction, deps DependencySet) (any, error)
}

type eventHook struct {
	deps []DependencyDecl
	call func(ctx context.Context, msg message.Event, tx *uow.Transaction, deps DependencySet) error
}

// Registration identifies a previously registered handler so it can be
// removed later via Unregister. Go function values cannot reliably be
// compared for identity, so registration returns an opaque token instead
// of requiring the same handler value back.
type Registration struct {
	msgType   reflect.Type
	isCommand bool
	token     any
}

// Scanner is the external collaborator responsible for discovering and
// registering handlers under a package path. Only the contract is part of
// this package; concrete discovery (reflection over build tags, codegen,
// an explicit manifest) is an adapter's job.
type Scanner interface {
	Scan(ctx context.Context, b *Bus, pkgPath string) error
}

// Bus holds every registered command/event handler and named dependency
// factory, and dispatches messages through them.
type Bus struct {
	mu           sync.RWMutex
	commands     map[reflect.Type]*commandHook
	events       map[reflect.Type][]*eventHook
	dependencies map[string]DependencyFactory
	metrics      metrics.Store
}

// New returns an empty Bus. dependencies maps a name used in
// DependencyDecl to a factory invoked lazily the first time a handler
// needs it during a given Handle call. m may be nil (defaults to a no-op
// metrics store).
func New(dependencies map[string]DependencyFactory, m metrics.Store) *Bus {
	if m == nil {
		m = metrics.Noop{}
	}
	if dependencies == nil {
		dependencies = map[string]DependencyFactory{}
	}
	return &Bus{
		commands:     make(map[reflect.Type]*commandHook),
		events:       make(map[reflect.Type][]*eventHook),
		dependencies: dependencies,
		metrics:      m,
	}
}

// RegisterCommand binds handler as the single handler for command type M.
// Registering a second handler for the same type is a ConfigurationError.
func RegisterCommand[M message.Command](b *Bus, deps []DependencyDecl, handler CommandHandler[M]) (Registration, error) {
	var zero M
	t := reflect.TypeOf(zero)
	if t == nil {
		t = reflect.TypeOf(&zero).Elem()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.commands[t]; exists {
		return Registration{}, &ConfigurationError{fmt.Sprintf("%s command has been registered twice", t)}
	}
	hook := &commandHook{
		deps: deps,
		call: func(ctx context.Context, msg message.Command, tx *uow.Transaction, ds DependencySet) (any, error) {
			m, ok := msg.(M)
			if !ok {
				return nil, fmt.Errorf("bus: %T is not a %s", msg, t)
			}
			return handler(ctx, m, tx, ds)
		},
	}
	b.commands[t] = hook
	return Registration{msgType: t, isCommand: true, token: hook}, nil
}

// RegisterEvent appends handler to the list of handlers invoked for event
// type M. Multiple handlers may be registered for the same event type.
func RegisterEvent[M message.Event](b *Bus, deps []DependencyDecl, handler EventHandler[M]) (Registration, error) {
	var zero M
	t := reflect.TypeOf(zero)
	if t == nil {
		t = reflect.TypeOf(&zero).Elem()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	hook := &eventHook{
		deps: deps,
		call: func(ctx context.Context, msg message.Event, tx *uow.Transaction, ds DependencySet) error {
			m, ok := msg.(M)
			if !ok {
				return fmt.Errorf("bus: %T is not a %s", msg, t)
			}
			return handler(ctx, m, tx, ds)
		},
	}
	b.events[t] = append(b.events[t], hook)
	return Registration{msgType: t, isCommand: false, token: hook}, nil
}

// Unregister removes the handler identified by reg. Removing a command
// handler that is no longer registered, or an event handler not found in
// its type's handler list, is a ConfigurationError.
func (b *Bus) Unregister(reg Registration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if reg.isCommand {
		hook, ok := b.commands[reg.msgType]
		if !ok || hook != reg.token {
			return &ConfigurationError{fmt.Sprintf("%s command handler is not registered", reg.msgType)}
		}
		delete(b.commands, reg.msgType)
		return nil
	}
	hooks := b.events[reg.msgType]
	for i, h := range hooks {
		if h == reg.token {
			b.events[reg.msgType] = append(hooks[:i], hooks[i+1:]...)
			return nil
		}
	}
	return &ConfigurationError{fmt.Sprintf("%s event handler is not registered", reg.msgType)}
}

// Scan invokes scanner to discover and register handlers under pkgPath.
// Relative package paths are rejected; discovery must resolve an absolute
// import path.
func (b *Bus) Scan(ctx context.Context, scanner Scanner, pkgPath string) error {
	if strings.HasPrefix(pkgPath, ".") {
		return &ConfigurationError{fmt.Sprintf("scan: relative package path not supported: %s", pkgPath)}
	}
	return scanner.Scan(ctx, b, pkgPath)
}

// Handle dispatches msg within tx: if msg is a Command, the single
// registered handler runs and its result becomes Handle's return value;
// if msg is an Event, every registered handler runs in registration order
// and their results are discarded. Every message raised by a handler
// (collected from the transaction's touched aggregates after it runs) is
// appended to the same FIFO queue and processed breadth-first, so a
// command's immediate follow-up events are dispatched before any message
// those events themselves raise. transient supplies per-call dependency
// values that take precedence over registered factories. Every dispatched
// message (including msg itself) is appended to the transaction's message
// store exactly once, in the order it was processed.
func (b *Bus) Handle(ctx context.Context, tx *uow.Transaction, msg message.Message, transient map[string]uow.Dependency) (any, error) {
	queue := []message.Message{msg}
	cache := map[string]uow.Dependency{}
	var result any
	first := true

	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]

		switch v := m.(type) {
		case message.Command:
			t := reflect.TypeOf(v)
			b.mu.RLock()
			hook, ok := b.commands[t]
			b.mu.RUnlock()
			if ok {
				deps, err := b.resolveDeps(hook.deps, tx, transient, cache)
				if err != nil {
					return nil, err
				}
				res, err := hook.call(ctx, v, tx, deps)
				if err != nil {
					return nil, err
				}
				if first {
					result = res
				}
				queue = append(queue, uow.CollectNewMessages(tx.UnitOfWork())...)
			}
		case message.Event:
			t := reflect.TypeOf(v)
			b.mu.RLock()
			hooks := append([]*eventHook(nil), b.events[t]...)
			b.mu.RUnlock()
			for _, hook := range hooks {
				deps, err := b.resolveDeps(hook.deps, tx, transient, cache)
				if err != nil {
					return nil, err
				}
				if err := hook.call(ctx, v, tx, deps); err != nil {
					return nil, err
				}
				queue = append(queue, uow.CollectNewMessages(tx.UnitOfWork())...)
			}
		default:
			return nil, fmt.Errorf("bus: %T is neither a Command nor an Event", m)
		}

		if err := tx.MessageStore().Append(ctx, m); err != nil {
			return nil, err
		}
		name, version := metrics.NameVersion(m)
		b.metrics.IncMessagesProcessed(name, version)
		first = false
	}
	return result, nil
}

// resolveDeps resolves decls against transient overrides, then registered
// factories, caching each resolved instance by name so repeated handlers
// within the same Handle call share (and attach only once) the same
// instance.
func (b *Bus) resolveDeps(decls []DependencyDecl, tx *uow.Transaction, transient map[string]uow.Dependency, cache map[string]uow.Dependency) (DependencySet, error) {
	out := make(DependencySet, len(decls))
	for _, d := range decls {
		if dep, ok := cache[d.Name]; ok {
			out[d.Name] = dep
			continue
		}
		var dep uow.Dependency
		if t, ok := transient[d.Name]; ok {
			dep = t
		} else {
			b.mu.RLock()
			factory, ok := b.dependencies[d.Name]
			b.mu.RUnlock()
			if ok {
				dep = factory()
			} else if !d.Optional {
				return nil, &MissingDependencyError{fmt.Sprintf("Missing messagebus dependency '%s'", d.Name)}
			}
		}
		if dep != nil {
			tx.AddHook(dep)
			cache[d.Name] = dep
		}
		out[d.Name] = dep
	}
	return out, nil
}
