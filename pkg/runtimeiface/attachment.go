// Package runtimeiface defines the three capabilities a host runtime must
// provide for the hot-swap engine to attach to it: a class-load hook, a
// reflective reader, and a native redefine primitive. The engine never
// reaches into the host directly; every host-specific concern is
// expressed through these interfaces, which a real embedding supplies and
// pkg/fakeruntime exercises for tests.
package runtimeiface

import (
	"context"

	"github.com/flywheeldev/hotswap/pkg/diff"
)

// Loader is an opaque handle identifying a class-loader. Two Loader values
// compare equal iff they name the same loader. The engine never dereferences
// a Loader's contents; it only uses it as a map/weak-pointer key and passes
// it back to the host.
type Loader interface {
	// LoaderName is a human-readable label for logs and diagnostics; it is
	// not used for identity (pointer/interface equality is).
	LoaderName() string
}

// ParentLoader is implemented by a Loader that sits in a loader hierarchy.
// The event bus consults it to decide whether a handler owned by an
// ancestor loader is eligible for an event scoped to a descendant's class
// identity. A Loader that does not implement ParentLoader is its own root.
type ParentLoader interface {
	Parent() (Loader, bool)
}

// ClassIdentity is the (binary class name, owning loader) pair that
// uniquely identifies a class within the runtime.
type ClassIdentity struct {
	Name   string
	Loader Loader
}

func (id ClassIdentity) String() string {
	name := "<nil-loader>"
	if id.Loader != nil {
		name = id.Loader.LoaderName()
	}
	return id.Name + "@" + name
}

// ClassLoadHook receives every class the runtime loads and may return
// replacement bytes to define instead of the original. Returning the
// original bytes unmodified is always valid — a transformer may abstain.
type ClassLoadHook interface {
	OnClassLoad(ctx context.Context, name string, loader Loader, original []byte) ([]byte, error)
}

// ClassLoadHookFunc adapts a plain function to a ClassLoadHook.
type ClassLoadHookFunc func(ctx context.Context, name string, loader Loader, original []byte) ([]byte, error)

func (f ClassLoadHookFunc) OnClassLoad(ctx context.Context, name string, loader Loader, original []byte) ([]byte, error) {
	return f(ctx, name, loader, original)
}

// ReflectiveReader reads the current bytes and metadata of an
// already-loaded class, without triggering a new load.
type ReflectiveReader interface {
	ReadClass(ctx context.Context, identity ClassIdentity) (bytes []byte, meta ClassMetadata, err error)
}

// ClassMetadata is whatever the host can report about a loaded class
// beyond its raw bytes, including a version attribute consumed by plugin
// activation's version check.
type ClassMetadata struct {
	Version string
}

// RedefinitionPair is one (currently-loaded class, new bytes) member of a
// batch passed to RedefinePrimitive.Redefine.
type RedefinitionPair struct {
	Identity ClassIdentity
	NewBytes []byte
}

// RedefinePrimitive is the runtime's native facility for replacing a
// loaded class's bytecode in place, subject to the constraint that only
// method bodies (plus annotations/attributes) may change in a single
// call. Implementations decide, via ClassifyChange, which diffs are
// within that constraint for this host — the exact boundary is
// runtime-dependent and deliberately left to each implementation.
type RedefinePrimitive interface {
	// Redefine atomically applies every pair in the batch. A transient
	// failure should be wrapped with errorsx.RedefineTransient; a
	// permanent one with errorsx.RedefinePermanent.
	Redefine(ctx context.Context, batch []RedefinitionPair) error

	// ClassifyChange reports whether d can be applied through Redefine at
	// all, for this host. pkg/scheduler consults this only after its own
	// rule already passed d as a candidate: a method signature or field
	// type change is always Structural, and a member added/removed, a
	// supertype change or an interface change is Structural when the
	// scheduler's fingerprint policy tracks that category. A host may
	// still reject any remaining diff, such as a body-only or
	// annotation-only one, that its own redefinition facility cannot
	// express.
	ClassifyChange(d diff.Diff) Classification
}

// Classification is RedefinePrimitive.ClassifyChange's verdict on one diff.
type Classification int

const (
	// Redefinable means the change can be applied via Redefine without
	// reloading the class.
	Redefinable Classification = iota
	// Structural means the change requires a full reload; Redefine must
	// not be called with this pair.
	Structural
)

func (c Classification) String() string {
	if c == Structural {
		return "structural"
	}
	return "redefinable"
}
