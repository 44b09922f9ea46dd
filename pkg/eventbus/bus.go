package eventbus

import (
	"context"
	"sync"

	"github.com/flywheeldev/hotswap/pkg/commandqueue"
	"github.com/flywheeldev/hotswap/pkg/runtimeiface"
)

// Handler is one registered (name, predicate, callback) triple, typically
// registered by a plugin manager through the plugin registry. Owner scopes
// the handler to a loader subtree; a nil Owner is eligible for every
// event. Deferred handlers are enqueued to the command queue instead of
// run inline, merged by (plugin-name, event-kind, class-identity).
type Handler struct {
	Name      string
	Owner     runtimeiface.Loader
	Predicate func(Event) bool
	Callback  func(Event)
	Deferred  bool
}

type registration struct {
	id uint64
	Handler
}

// Bus dispatches events to registered handlers: a set of handlers keyed
// by registration order behind a sync.RWMutex, invoked directly rather
// than over a channel, since handler ordering and per-loader eligibility
// matter here, not backpressure.
type Bus struct {
	mu       sync.RWMutex
	handlers []registration
	nextID   uint64

	queue        *commandqueue.Queue
	onHandlerErr func(handlerName string, ev Event, recovered any)
}

// New constructs a Bus. queue is where Deferred handlers are submitted;
// onHandlerErr, if non-nil, observes a handler panic so callers can log
// it without the bus importing a logging package.
func New(queue *commandqueue.Queue, onHandlerErr func(handlerName string, ev Event, recovered any)) *Bus {
	return &Bus{queue: queue, onHandlerErr: onHandlerErr}
}

// Register adds a handler, returning an id usable with Unregister.
func (b *Bus) Register(h Handler) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers = append(b.handlers, registration{id: id, Handler: h})
	return id
}

// Unregister removes a previously registered handler. It is a no-op if id
// is unknown (already removed, e.g. by plugin teardown).
func (b *Bus) Unregister(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, r := range b.handlers {
		if r.id == id {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return
		}
	}
}

// UnregisterOwner removes every handler owned by loader, used when a
// loader is reclaimed and its plugin managers tear down.
func (b *Bus) UnregisterOwner(loader runtimeiface.Loader) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.handlers[:0]
	for _, r := range b.handlers {
		if r.Owner != loader {
			kept = append(kept, r)
		}
	}
	b.handlers = kept
}

// Dispatch delivers ev to every eligible handler, in registration order,
// synchronously on the calling goroutine unless a handler is Deferred.
func (b *Bus) Dispatch(ev Event) {
	b.mu.RLock()
	handlers := append([]registration(nil), b.handlers...)
	b.mu.RUnlock()

	for _, r := range handlers {
		if !b.eligible(r.Handler, ev) {
			continue
		}
		if r.Predicate != nil && !r.Predicate(ev) {
			continue
		}
		if r.Deferred {
			b.deferDispatch(r.Handler, ev)
			continue
		}
		b.invoke(r.Handler, ev)
	}
}

func (b *Bus) eligible(h Handler, ev Event) bool {
	if h.Owner == nil {
		return true
	}
	if ev.Loader == nil {
		return false
	}
	return isLoaderOrAncestor(h.Owner, ev.Loader)
}

// isLoaderOrAncestor reports whether owner is loader itself or an
// ancestor of it — that identity's loader, or a parent of it.
func isLoaderOrAncestor(owner, loader runtimeiface.Loader) bool {
	current := loader
	for i := 0; i < 64 && current != nil; i++ {
		if current == owner {
			return true
		}
		pl, ok := current.(runtimeiface.ParentLoader)
		if !ok {
			return false
		}
		parent, hasParent := pl.Parent()
		if !hasParent {
			return false
		}
		current = parent
	}
	return false
}

func (b *Bus) deferDispatch(h Handler, ev Event) {
	if b.queue == nil {
		b.invoke(h, ev)
		return
	}
	key := commandqueue.MergeKey{Plugin: h.Name, Kind: ev.Kind.String(), Identity: ev.Identity.String()}
	b.queue.Submit(ev.Loader, key, 0, func(_ context.Context, _ runtimeiface.Loader) {
		b.invoke(h, ev)
	})
}

func (b *Bus) invoke(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil && b.onHandlerErr != nil {
			b.onHandlerErr(h.Name, ev, r)
		}
	}()
	h.Callback(ev)
}
