// Package loaderreg is the loader registry: a weak-keyed map from
// class-loader to its per-plugin manager set, backed by Go's weak package
// and runtime.AddCleanup so the registry never holds a strong reference
// back to a loader the host has otherwise dropped.
package loaderreg

import (
	"runtime"
	"sync"
	"weak"

	"github.com/flywheeldev/hotswap/pkg/runtimeiface"
)

// Entry is what the registry keeps per loader: the loader handle itself
// and the set of plugin managers activated in it, keyed by plugin name.
// pkg/plugin owns the values' concrete type; loaderreg stores them opaquely
// to avoid a dependency in the wrong direction.
type Entry struct {
	Loader   runtimeiface.Loader
	Managers map[string]any
}

// Registry is the weak-keyed loader table.
type Registry struct {
	mu      sync.Mutex
	entries map[runtimeiface.Loader]*Entry
	order   []runtimeiface.Loader

	onReclaimed func(runtimeiface.Loader)
}

// New constructs an empty registry. onReclaimed, if non-nil, is invoked
// (on whatever goroutine detected the reclamation — a cleanup goroutine
// for GC-tracked loaders, or the calling goroutine for an explicit Drop)
// once a loader leaves the registry, so callers can fire a
// pkg/eventbus.LoaderReclaimed event and drive plugin teardown.
func New(onReclaimed func(runtimeiface.Loader)) *Registry {
	return &Registry{
		entries:     make(map[runtimeiface.Loader]*Entry),
		onReclaimed: onReclaimed,
	}
}

// GetOrCreate returns the entry for loader, creating one if absent. The
// second return value reports whether the entry was just created, so
// callers can fire pkg/eventbus.LoaderCreated exactly once per loader.
func (r *Registry) GetOrCreate(loader runtimeiface.Loader) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[loader]; ok {
		return e, false
	}
	e := &Entry{Loader: loader, Managers: make(map[string]any)}
	r.entries[loader] = e
	r.order = append(r.order, loader)
	return e, true
}

// Drop removes loader's entry, if present, and notifies onReclaimed. It is
// the common path for both an explicit unload and a GC-detected
// reclamation, which fires LoaderReclaimed on detection.
func (r *Registry) Drop(loader runtimeiface.Loader) {
	r.mu.Lock()
	_, existed := r.entries[loader]
	if existed {
		delete(r.entries, loader)
		for i, l := range r.order {
			if l == loader {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if existed && r.onReclaimed != nil {
		r.onReclaimed(loader)
	}
}

// IsReclaimed reports whether loader is no longer present in the
// registry. pkg/commandqueue wires this in as its reclamation check.
func (r *Registry) IsReclaimed(loader runtimeiface.Loader) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[loader]
	return !ok
}

// Range calls fn for every currently-registered entry, in a stable
// snapshot taken under lock, so iteration order stays stable within a
// single traversal even while other goroutines may submit. fn must not
// call back into the registry.
func (r *Registry) Range(fn func(*Entry) bool) {
	r.mu.Lock()
	snapshot := make([]*Entry, 0, len(r.order))
	for _, loader := range r.order {
		if e, ok := r.entries[loader]; ok {
			snapshot = append(snapshot, e)
		}
	}
	r.mu.Unlock()

	for _, e := range snapshot {
		if !fn(e) {
			return
		}
	}
}

// adapter is the Loader identity handle the rest of the engine uses once
// a host loader has been Track-ed: it carries only a weak.Pointer back to
// the host's real loader object, never a strong one.
type adapter[T any] struct {
	name string
	w    weak.Pointer[T]
}

func (a *adapter[T]) LoaderName() string { return a.name }

// Track registers ptr — the exact pointer the host itself holds strongly
// for one class-loader — with r, and returns the runtimeiface.Loader
// handle the rest of the engine should use for that loader from now on.
// Once ptr becomes unreachable to the host, r drops the entry and fires
// onReclaimed automatically via runtime.AddCleanup.
func Track[T any](r *Registry, ptr *T, name string) runtimeiface.Loader {
	a := &adapter[T]{name: name, w: weak.Make(ptr)}
	var handle runtimeiface.Loader = a
	r.GetOrCreate(handle)
	runtime.AddCleanup(ptr, func(lost runtimeiface.Loader) {
		r.Drop(lost)
	}, handle)
	return handle
}
