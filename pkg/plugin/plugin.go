// Package plugin implements the plugin registry: discovers
// PluginDescriptors at startup, and on a matching ClassLoaded event
// instantiates a PluginManager per (plugin, loader), wiring its
// transformers into the transformer pipeline and its event handlers into
// the event bus. Torn down when the owning loader is reclaimed.
//
// Activation runs in three phases: probe-match and version-check decides
// whether the plugin applies to this loader at all, registering
// transformers and handlers wires the plugin into the pipeline and bus,
// and the Init callback hands control to the plugin itself.
package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/flywheeldev/hotswap/pkg/eventbus"
	hsversion "github.com/hashicorp/go-version"

	"github.com/flywheeldev/hotswap/pkg/pipeline"
	"github.com/flywheeldev/hotswap/pkg/runtimeiface"
)

type managerKey struct {
	loader runtimeiface.Loader
	plugin string
}

// OnActivateError observes a descriptor whose version check or Install
// step failed; activation for that (plugin, loader) pair is abandoned.
type OnActivateError func(plugin string, loader runtimeiface.Loader, err error)

// Registry is the C8 plugin registry.
type Registry struct {
	mu          sync.Mutex
	descriptors []PluginDescriptor
	byName      map[string]bool
	disabled    map[string]bool
	managers    map[managerKey]*Manager

	pipeline *pipeline.Pipeline
	bus      *eventbus.Bus
	reader   runtimeiface.ReflectiveReader

	onActivateErr OnActivateError
}

// New constructs a registry wired to the transformer pipeline, event
// bus, and reflective reader the host runtime supplies. disabledPlugins
// names descriptors to skip during Discover.
func New(pl *pipeline.Pipeline, bus *eventbus.Bus, reader runtimeiface.ReflectiveReader, disabledPlugins []string, onActivateErr OnActivateError) *Registry {
	disabled := make(map[string]bool, len(disabledPlugins))
	for _, name := range disabledPlugins {
		disabled[name] = true
	}
	r := &Registry{
		byName:        make(map[string]bool),
		disabled:      disabled,
		managers:      make(map[managerKey]*Manager),
		pipeline:      pl,
		bus:           bus,
		reader:        reader,
		onActivateErr: onActivateErr,
	}
	if bus != nil {
		bus.Register(eventbus.Handler{
			Name:     "plugin-registry:activate",
			Callback: r.onClassLoaded,
		})
		bus.Register(eventbus.Handler{
			Name:     "plugin-registry:teardown",
			Callback: r.onLoaderReclaimed,
		})
	}
	return r
}

// Discover registers desc for future activation. It is an error for desc
// to name a Dependencies entry that has not itself been discovered yet,
// so callers should Discover in dependency order. A descriptor is
// discovered once at startup.
func (r *Registry) Discover(desc PluginDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disabled[desc.Name] {
		return nil
	}
	for _, dep := range desc.Dependencies {
		if !r.byName[dep] {
			return fmt.Errorf("plugin %s: dependency %s not discovered yet", desc.Name, dep)
		}
	}
	r.descriptors = append(r.descriptors, desc)
	r.byName[desc.Name] = true
	return nil
}

// Descriptors returns the discovered (non-disabled) descriptors, in
// discovery order.
func (r *Registry) Descriptors() []PluginDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PluginDescriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Manager returns the activated manager for (pluginName, loader), if any.
func (r *Registry) Manager(pluginName string, loader runtimeiface.Loader) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.managers[managerKey{loader: loader, plugin: pluginName}]
	return m, ok
}

// onClassLoaded is the event-bus handler that drives activation: on any
// ClassLoaded for a class whose name is a probe of some not-yet-
// activated plugin, it instantiates a PluginManager.
func (r *Registry) onClassLoaded(ev eventbus.Event) {
	if ev.Kind != eventbus.ClassLoadedKind || ev.Loader == nil {
		return
	}

	for _, desc := range r.pendingProbeMatches(ev.Identity.Name, ev.Loader) {
		r.activate(desc, ev.Loader)
	}
}

// pendingProbeMatches returns descriptors whose probes include className
// and that have no manager yet for loader.
func (r *Registry) pendingProbeMatches(className string, loader runtimeiface.Loader) []PluginDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []PluginDescriptor
	for _, desc := range r.descriptors {
		if r.managers[managerKey{loader: loader, plugin: desc.Name}] != nil {
			continue
		}
		for _, probe := range desc.Probes {
			if probe == className {
				out = append(out, desc)
				break
			}
		}
	}
	return out
}

// activate runs the three activation phases for (desc, loader):
// version-gated discovery, transformer/handler wiring, and init.
func (r *Registry) activate(desc PluginDescriptor, loader runtimeiface.Loader) {
	ctx := context.Background()

	if ok, err := r.versionSatisfied(ctx, desc, loader); err != nil {
		r.reportErr(desc.Name, loader, err)
		return
	} else if !ok {
		return
	}

	m := &Manager{Descriptor: desc, Loader: loader}

	if desc.Install != nil {
		if err := desc.Install(ctx, loader); err != nil {
			r.reportErr(desc.Name, loader, err)
			return
		}
	}

	if r.pipeline != nil {
		for _, td := range desc.Transformers {
			m.transformerIDs = append(m.transformerIDs, r.pipeline.Register(loader, td))
		}
	}
	if r.bus != nil {
		for _, h := range desc.EventHandlers {
			h.Owner = loader
			m.handlerIDs = append(m.handlerIDs, r.bus.Register(h))
		}
	}

	r.mu.Lock()
	r.managers[managerKey{loader: loader, plugin: desc.Name}] = m
	r.mu.Unlock()

	if desc.Init != nil {
		if err := desc.Init(ctx, m); err != nil {
			r.reportErr(desc.Name, loader, err)
		}
	}
}

// versionSatisfied checks the descriptor's VersionConstraint (if any)
// against the first matching probe class's reported version. No
// constraint and no reader both mean "satisfied".
func (r *Registry) versionSatisfied(ctx context.Context, desc PluginDescriptor, loader runtimeiface.Loader) (bool, error) {
	if desc.VersionConstraint == "" || r.reader == nil {
		return true, nil
	}

	constraint, err := hsversion.NewConstraint(desc.VersionConstraint)
	if err != nil {
		return false, fmt.Errorf("plugin %s: invalid version constraint %q: %w", desc.Name, desc.VersionConstraint, err)
	}

	for _, probe := range desc.Probes {
		_, meta, err := r.reader.ReadClass(ctx, runtimeiface.ClassIdentity{Name: probe, Loader: loader})
		if err != nil || meta.Version == "" {
			continue
		}
		v, err := hsversion.NewVersion(meta.Version)
		if err != nil {
			continue
		}
		return constraint.Check(v), nil
	}
	// No probe declared a version attribute: spec treats an undeclared
	// attribute as satisfying the expression by default.
	return true, nil
}

// onLoaderReclaimed is the event-bus handler that tears every manager
// scoped to the reclaimed loader down, driven by the loader registry's
// LoaderReclaimed event.
func (r *Registry) onLoaderReclaimed(ev eventbus.Event) {
	if ev.Kind != eventbus.LoaderReclaimedKind || ev.Loader == nil {
		return
	}
	r.Teardown(ev.Loader)
}

// Teardown unregisters every transformer and handler belonging to any
// manager scoped to loader, and drops those managers. Safe to call
// directly (e.g. on explicit unload) as well as from the reclaim handler.
func (r *Registry) Teardown(loader runtimeiface.Loader) {
	r.mu.Lock()
	var removed []*Manager
	for k, m := range r.managers {
		if k.loader == loader {
			removed = append(removed, m)
			delete(r.managers, k)
		}
	}
	r.mu.Unlock()

	if len(removed) == 0 {
		return
	}
	if r.pipeline != nil {
		r.pipeline.UnregisterLoader(loader)
	}
	if r.bus != nil {
		r.bus.UnregisterOwner(loader)
	}
}

func (r *Registry) reportErr(pluginName string, loader runtimeiface.Loader, err error) {
	if r.onActivateErr != nil {
		r.onActivateErr(pluginName, loader, err)
	}
}
