package plugin

import (
	"context"

	"github.com/flywheeldev/hotswap/pkg/eventbus"
	"github.com/flywheeldev/hotswap/pkg/pipeline"
	"github.com/flywheeldev/hotswap/pkg/runtimeiface"
)

// PluginDescriptor is the declarative record a plugin author registers at
// startup. It is discovered once; nothing here is mutated after Discover.
type PluginDescriptor struct {
	// Name uniquely identifies the plugin across the registry.
	Name string
	// Description is a human-readable summary, surfaced in logs/status.
	Description string
	// Dependencies names other plugins that must already be discovered
	// before this one activates in a loader; Discover rejects a descriptor
	// whose dependency is missing.
	Dependencies []string
	// Probes are class names that must be visible in a loader before this
	// plugin activates there.
	Probes []string
	// VersionConstraint is a github.com/hashicorp/go-version constraint
	// expression (e.g. ">= 1.0, < 2.0") checked against the first matching
	// probe class's ClassMetadata.Version. Empty means no constraint.
	VersionConstraint string
	// Transformers are registered with the pipeline, scoped to the
	// activating loader, on activation.
	Transformers []pipeline.TransformerDescriptor
	// EventHandlers are registered with the event bus, scoped to the
	// activating loader (Owner is filled in by Registry at activation
	// time; any value set here is ignored).
	EventHandlers []eventbus.Handler
	// Install constructs a copy of the plugin's own runtime code inside
	// the target loader. Optional; nil means the plugin needs no
	// per-loader installation step beyond its transformers/handlers.
	Install func(ctx context.Context, loader runtimeiface.Loader) error
	// Init runs last, once activation has fully wired the plugin into its
	// loader.
	Init func(ctx context.Context, m *Manager) error
}

// Manager is the runtime instantiation of a PluginDescriptor against one
// class-loader. Lifecycle: created on first probe match, destroyed when
// the loader is reclaimed — discovered, then activated, then torn down,
// with no reactivation.
type Manager struct {
	Descriptor PluginDescriptor
	Loader     runtimeiface.Loader

	transformerIDs []uint64
	handlerIDs     []uint64
}
