// Package fakeruntime is an in-memory implementation of runtimeiface used
// by tests and end-to-end scenarios. It stands in for a real host: it
// tracks loaded classes per loader, serves reflective reads, and applies
// redefinitions, with hooks to simulate transient or permanent
// native-redefine failures.
//
// It lives in its own package rather than alongside a single test file
// because runtimeiface has no concrete implementation anywhere else in
// this module.
package fakeruntime

import (
	"context"
	"sync"

	"github.com/flywheeldev/hotswap/pkg/diff"
	"github.com/flywheeldev/hotswap/pkg/errorsx"
	"github.com/flywheeldev/hotswap/pkg/runtimeiface"
)

// Loader is a fake class loader. It implements runtimeiface.Loader and
// runtimeiface.ParentLoader.
type Loader struct {
	Name   string
	parent *Loader
}

// NewLoader constructs a root loader.
func NewLoader(name string) *Loader { return &Loader{Name: name} }

// Child constructs a loader parented to l.
func (l *Loader) Child(name string) *Loader { return &Loader{Name: name, parent: l} }

func (l *Loader) LoaderName() string { return l.Name }

func (l *Loader) Parent() (runtimeiface.Loader, bool) {
	if l.parent == nil {
		return nil, false
	}
	return l.parent, true
}

type loadedClass struct {
	bytes   []byte
	version string
}

// Runtime is the in-memory host. It implements runtimeiface.ReflectiveReader
// and runtimeiface.RedefinePrimitive, and exposes LoadClass to seed state
// directly and LoadClassThroughHook to simulate a fresh class load through
// an optional ClassLoadHook.
type Runtime struct {
	mu      sync.Mutex
	classes map[runtimeiface.Loader]map[string]loadedClass

	// ClassifyFunc overrides the default ClassifyChange verdict (always
	// Redefinable) for scenario tests that need the runtime to refuse a
	// body-only diff.
	ClassifyFunc func(d diff.Diff) runtimeiface.Classification

	// FailTransientCount makes the first N Redefine calls (counted since
	// New, see RedefineCallCount) fail with a
	// transient error before succeeding (or permanently failing, if
	// FailPermanent is also set once the count is exhausted).
	FailTransientCount int
	FailPermanent      bool

	redefineCalls int
}

// New constructs an empty Runtime.
func New() *Runtime {
	return &Runtime{classes: make(map[runtimeiface.Loader]map[string]loadedClass)}
}

// LoadClass installs initial bytes for identity, as if the host had
// loaded it directly (no hook invoked). Used to seed a scenario's
// "currently loaded" state before a redefinition request arrives.
func (r *Runtime) LoadClass(identity runtimeiface.ClassIdentity, bytes []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.set(identity, bytes, "")
}

// LoadClassThroughHook simulates the host loading a class, running it
// through hook first — every class the runtime loads passes through the
// hook — and storing whatever bytes the hook returns.
func (r *Runtime) LoadClassThroughHook(ctx context.Context, hook runtimeiface.ClassLoadHook, identity runtimeiface.ClassIdentity, original []byte) ([]byte, error) {
	final := original
	if hook != nil {
		out, err := hook.OnClassLoad(ctx, identity.Name, identity.Loader, original)
		if err != nil {
			return nil, err
		}
		final = out
	}
	r.mu.Lock()
	r.set(identity, final, "")
	r.mu.Unlock()
	return final, nil
}

func (r *Runtime) set(identity runtimeiface.ClassIdentity, bytes []byte, version string) {
	byName, ok := r.classes[identity.Loader]
	if !ok {
		byName = make(map[string]loadedClass)
		r.classes[identity.Loader] = byName
	}
	byName[identity.Name] = loadedClass{bytes: bytes, version: version}
}

// ReadClass implements runtimeiface.ReflectiveReader.
func (r *Runtime) ReadClass(ctx context.Context, identity runtimeiface.ClassIdentity) ([]byte, runtimeiface.ClassMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byName, ok := r.classes[identity.Loader]
	if !ok {
		return nil, runtimeiface.ClassMetadata{}, errorsx.UnresolvedIdentity(identity.Name, "no such loader")
	}
	c, ok := byName[identity.Name]
	if !ok {
		return nil, runtimeiface.ClassMetadata{}, errorsx.UnresolvedIdentity(identity.Name, "class not loaded")
	}
	return c.bytes, runtimeiface.ClassMetadata{Version: c.version}, nil
}

// SetVersion records the metadata version reported for identity,
// consulted by plugin activation's version-constraint check.
func (r *Runtime) SetVersion(identity runtimeiface.ClassIdentity, version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byName, ok := r.classes[identity.Loader]
	if !ok {
		byName = make(map[string]loadedClass)
		r.classes[identity.Loader] = byName
	}
	c := byName[identity.Name]
	c.version = version
	byName[identity.Name] = c
}

// Redefine implements runtimeiface.RedefinePrimitive. It applies the whole
// batch atomically, after consulting FailTransientCount/FailPermanent.
func (r *Runtime) Redefine(ctx context.Context, batch []runtimeiface.RedefinitionPair) error {
	r.mu.Lock()
	r.redefineCalls++
	attempt := r.redefineCalls
	r.mu.Unlock()

	if attempt <= r.FailTransientCount {
		return errorsx.RedefineTransient(batch[0].Identity.Name, "runtime busy", nil)
	}
	if r.FailPermanent {
		return errorsx.RedefinePermanent(batch[0].Identity.Name, "change rejected by runtime", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pair := range batch {
		r.set(pair.Identity, pair.NewBytes, "")
	}
	return nil
}

// ClassifyChange implements runtimeiface.RedefinePrimitive.
func (r *Runtime) ClassifyChange(d diff.Diff) runtimeiface.Classification {
	if r.ClassifyFunc != nil {
		return r.ClassifyFunc(d)
	}
	return runtimeiface.Redefinable
}

// RedefineCallCount reports how many times Redefine has been invoked,
// for assertions on retry behaviour.
func (r *Runtime) RedefineCallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.redefineCalls
}
