// Package pipeline implements the transformer pipeline: the runtime's
// class-load hook, a registry of plugin-contributed TransformerDescriptors,
// and a transformed-bytes cache keyed by (class-name, source-hash) so a
// repeat load with identical input skips re-running the chain. The cache
// is read under a read lock and filled under a write lock, so no lock is
// held across a transformer run; a concurrent double insert is harmless.
package pipeline

import (
	"context"
	"sort"
	"sync"

	"github.com/flywheeldev/hotswap/pkg/classform"
	"github.com/flywheeldev/hotswap/pkg/eventbus"
	"github.com/flywheeldev/hotswap/pkg/runtimeiface"
)

type registration struct {
	id     uint64
	loader runtimeiface.Loader // nil: registered globally, matches in every loader
	TransformerDescriptor
}

// OnTransformerError is invoked when a transformer's Transform call returns
// an error or panics; the pipeline discards its contribution and continues
// with the pre-transformer bytes.
type OnTransformerError func(transformerName, class string, err error)

type cacheEntry struct {
	bytes []byte
	form  *classform.ClassForm
}

// Pipeline is the class-load hook plus transformer registry. It
// implements runtimeiface.ClassLoadHook.
type Pipeline struct {
	mu     sync.RWMutex
	regs   []registration
	nextID uint64

	bus            *eventbus.Bus
	onTransformErr OnTransformerError

	firstLoadMu sync.Mutex
	seen        map[string]struct{} // ClassIdentity.String() already loaded once

	cacheMu sync.RWMutex
	cache   map[string]cacheEntry // (class-name + "@" + source-hash) -> entry
}

// New constructs an empty pipeline. bus receives the class-loaded events
// this pipeline fires after every run; onErr, if non-nil, observes
// discarded transformer failures.
func New(bus *eventbus.Bus, onErr OnTransformerError) *Pipeline {
	return &Pipeline{
		bus:            bus,
		onTransformErr: onErr,
		seen:           make(map[string]struct{}),
		cache:          make(map[string]cacheEntry),
	}
}

// Register adds desc to the pipeline, scoped to loader (nil for a
// globally-applicable transformer, registered once at startup for
// built-ins). It returns an id usable with Unregister.
func (p *Pipeline) Register(loader runtimeiface.Loader, desc TransformerDescriptor) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.regs = append(p.regs, registration{id: p.nextID, loader: loader, TransformerDescriptor: desc})
	return p.nextID
}

// Unregister removes a single transformer by id.
func (p *Pipeline) Unregister(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, r := range p.regs {
		if r.id == id {
			p.regs = append(p.regs[:i], p.regs[i+1:]...)
			return
		}
	}
}

// UnregisterLoader removes every transformer scoped to loader, the
// teardown half of a plugin manager's lifecycle: tearing a manager down
// unregisters every transformer that was scoped to it.
func (p *Pipeline) UnregisterLoader(loader runtimeiface.Loader) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.regs[:0]
	for _, r := range p.regs {
		if r.loader != loader {
			kept = append(kept, r)
		}
	}
	p.regs = kept
}

type matched struct {
	registration
	rank int
}

// matching returns the registrations matching identity, in invocation
// order: by specificity (exact > glob > all), then by Priority ascending,
// stable on registration order for ties.
func (p *Pipeline) matching(identity runtimeiface.ClassIdentity) []matched {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []matched
	for _, r := range p.regs {
		if r.loader != nil && r.loader != identity.Loader {
			continue
		}
		rank, ok := specificity(r.Pattern, identity.Name)
		if !ok {
			continue
		}
		out = append(out, matched{registration: r, rank: rank})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].rank != out[j].rank {
			return out[i].rank > out[j].rank
		}
		return out[i].Priority < out[j].Priority
	})
	return out
}

// firstLoad reports whether this is the first time identity has been seen
// by the pipeline, recording it as seen either way.
func (p *Pipeline) firstLoad(identity runtimeiface.ClassIdentity) bool {
	key := identity.String()
	p.firstLoadMu.Lock()
	defer p.firstLoadMu.Unlock()
	if _, ok := p.seen[key]; ok {
		return false
	}
	p.seen[key] = struct{}{}
	return true
}

// Run executes the pipeline for one class load: matches transformers,
// invokes them in order, re-matches on class-name change, caches the
// result, and fires a ClassLoaded event. It is the function wired as
// runtimeiface.ClassLoadHook.OnClassLoad.
func (p *Pipeline) Run(ctx context.Context, name string, loader runtimeiface.Loader, original []byte) ([]byte, error) {
	identity := runtimeiface.ClassIdentity{Name: name, Loader: loader}
	isFirst := p.firstLoad(identity)

	cacheKey := name + "@" + classform.SourceHash(original)
	p.cacheMu.RLock()
	if entry, ok := p.cache[cacheKey]; ok {
		p.cacheMu.RUnlock()
		p.fireLoaded(identity, entry.form)
		return entry.bytes, nil
	}
	p.cacheMu.RUnlock()

	final, err := p.transform(ctx, identity, isFirst, original)
	if err != nil {
		return nil, err
	}

	form, formErr := classform.ReadForm(identity.Name, "", final)

	p.cacheMu.Lock()
	if formErr == nil {
		p.cache[cacheKey] = cacheEntry{bytes: final, form: form}
	}
	p.cacheMu.Unlock()

	p.fireLoaded(identity, form)
	return final, nil
}

// transform runs the matched chain against current, re-matching whenever a
// transformer renames the class. visited prevents a transformer id from
// running twice across a rename; since it only grows and the
// registration set is finite, the loop always terminates.
func (p *Pipeline) transform(ctx context.Context, identity runtimeiface.ClassIdentity, isFirst bool, current []byte) ([]byte, error) {
	visited := make(map[uint64]bool)
	name := identity.Name

	for {
		next := p.nextUnvisited(name, identity.Loader, visited)
		if next == nil {
			return current, nil
		}
		visited[next.id] = true
		if !next.EveryLoad && !isFirst {
			continue
		}

		out, err := p.invoke(ctx, *next, identity, current)
		if err != nil {
			if p.onTransformErr != nil {
				p.onTransformErr(next.Name, identity.Name, err)
			}
			continue
		}
		current = out

		if form, ferr := classform.ReadForm(name, "", current); ferr == nil && form.Name != name {
			name = form.Name
		}
	}
}

// nextUnvisited returns the highest-ranked registration matching name that
// is not yet in visited, or nil once the chain is exhausted.
func (p *Pipeline) nextUnvisited(name string, loader runtimeiface.Loader, visited map[uint64]bool) *matched {
	for _, m := range p.matching(runtimeiface.ClassIdentity{Name: name, Loader: loader}) {
		if !visited[m.id] {
			m := m
			return &m
		}
	}
	return nil
}

// invoke runs one transformer, converting a panic into an error so a
// misbehaving transformer cannot bring down the class-load hook: it is
// logged and its contribution discarded.
func (p *Pipeline) invoke(ctx context.Context, m matched, identity runtimeiface.ClassIdentity, source []byte) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, panicError{value: r}
		}
	}()
	return m.Transform(ctx, identity, source)
}

type panicError struct{ value any }

func (e panicError) Error() string { return "transformer panicked" }

func (p *Pipeline) fireLoaded(identity runtimeiface.ClassIdentity, form *classform.ClassForm) {
	if p.bus == nil {
		return
	}
	p.bus.Dispatch(eventbus.ClassLoaded(identity, form))
}

// Hook adapts Run to runtimeiface.ClassLoadHook for wiring into a host
// runtime's class-load hook attachment point.
func (p *Pipeline) Hook() runtimeiface.ClassLoadHook {
	return runtimeiface.ClassLoadHookFunc(p.Run)
}
