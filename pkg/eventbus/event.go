// Package eventbus delivers typed engine events to plugin handlers with
// per-loader dispatch eligibility, synchronous or deferred invocation, and
// handler-failure containment.
package eventbus

import (
	"github.com/flywheeldev/hotswap/pkg/classform"
	"github.com/flywheeldev/hotswap/pkg/diff"
	"github.com/flywheeldev/hotswap/pkg/runtimeiface"
)

// Kind discriminates the four event shapes the bus dispatches.
type Kind int

const (
	ClassLoadedKind Kind = iota
	ClassRedefinedKind
	LoaderCreatedKind
	LoaderReclaimedKind
)

func (k Kind) String() string {
	switch k {
	case ClassLoadedKind:
		return "class-loaded"
	case ClassRedefinedKind:
		return "class-redefined"
	case LoaderCreatedKind:
		return "loader-created"
	case LoaderReclaimedKind:
		return "loader-reclaimed"
	default:
		return "unknown"
	}
}

// Event is the single typed payload dispatched to handlers. Only the
// fields relevant to Kind are populated.
type Event struct {
	Kind     Kind
	Identity runtimeiface.ClassIdentity
	Form     *classform.ClassForm
	OldForm  *classform.ClassForm
	NewForm  *classform.ClassForm
	Diff     diff.Diff
	// Classification reports whether the scheduler applied this
	// redefinition in place or skipped the native primitive because the
	// change was structural; only meaningful on ClassRedefinedKind.
	Classification runtimeiface.Classification
	Loader         runtimeiface.Loader
}

// ClassLoaded builds a ClassLoadedKind event.
func ClassLoaded(identity runtimeiface.ClassIdentity, form *classform.ClassForm) Event {
	return Event{Kind: ClassLoadedKind, Identity: identity, Form: form, Loader: identity.Loader}
}

// ClassRedefined builds a ClassRedefinedKind event.
func ClassRedefined(identity runtimeiface.ClassIdentity, oldForm, newForm *classform.ClassForm, d diff.Diff, classification runtimeiface.Classification) Event {
	return Event{Kind: ClassRedefinedKind, Identity: identity, OldForm: oldForm, NewForm: newForm, Diff: d, Classification: classification, Loader: identity.Loader}
}

// LoaderCreated builds a LoaderCreatedKind event.
func LoaderCreated(loader runtimeiface.Loader) Event {
	return Event{Kind: LoaderCreatedKind, Loader: loader}
}

// LoaderReclaimed builds a LoaderReclaimedKind event.
func LoaderReclaimed(loader runtimeiface.Loader) Event {
	return Event{Kind: LoaderReclaimedKind, Loader: loader}
}
