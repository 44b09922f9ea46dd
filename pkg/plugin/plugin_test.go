package plugin

import (
	"context"
	"testing"

	"github.com/flywheeldev/hotswap/pkg/eventbus"
	"github.com/flywheeldev/hotswap/pkg/pipeline"
	"github.com/flywheeldev/hotswap/pkg/runtimeiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct{ name string }

func (l fakeLoader) LoaderName() string { return l.name }

type fakeReader struct {
	versions map[string]string // class name -> version
}

func (f fakeReader) ReadClass(ctx context.Context, identity runtimeiface.ClassIdentity) ([]byte, runtimeiface.ClassMetadata, error) {
	return nil, runtimeiface.ClassMetadata{Version: f.versions[identity.Name]}, nil
}

func newHarness(reader runtimeiface.ReflectiveReader, disabled []string, onErr OnActivateError) (*Registry, *pipeline.Pipeline, *eventbus.Bus) {
	bus := eventbus.New(nil, nil)
	pl := pipeline.New(bus, nil)
	reg := New(pl, bus, reader, disabled, onErr)
	return reg, pl, bus
}

func TestDiscoverRejectsMissingDependency(t *testing.T) {
	reg, _, _ := newHarness(nil, nil, nil)
	err := reg.Discover(PluginDescriptor{Name: "b", Dependencies: []string{"a"}})
	assert.Error(t, err)
}

func TestDiscoverSkipsDisabledPlugin(t *testing.T) {
	reg, _, _ := newHarness(nil, []string{"skip-me"}, nil)
	require.NoError(t, reg.Discover(PluginDescriptor{Name: "skip-me"}))
	assert.Empty(t, reg.Descriptors())
}

func TestActivateOnProbeMatchRegistersTransformerAndHandler(t *testing.T) {
	reg, _, bus := newHarness(nil, nil, nil)

	var initCalled bool
	var handlerFired bool
	require.NoError(t, reg.Discover(PluginDescriptor{
		Name:   "demo",
		Probes: []string{"p.Probe"},
		Transformers: []pipeline.TransformerDescriptor{{
			Name: "demo-transform", Pattern: "all", EveryLoad: true,
			Transform: func(ctx context.Context, identity runtimeiface.ClassIdentity, source []byte) ([]byte, error) {
				return source, nil
			},
		}},
		EventHandlers: []eventbus.Handler{{
			Name:     "demo-handler",
			Callback: func(ev eventbus.Event) { handlerFired = true },
		}},
		Init: func(ctx context.Context, m *Manager) error { initCalled = true; return nil },
	}))

	loader := fakeLoader{"L"}
	bus.Dispatch(eventbus.ClassLoaded(runtimeiface.ClassIdentity{Name: "p.Probe", Loader: loader}, nil))

	m, ok := reg.Manager("demo", loader)
	require.True(t, ok)
	assert.True(t, initCalled)
	assert.Len(t, m.transformerIDs, 1)
	assert.Len(t, m.handlerIDs, 1)

	bus.Dispatch(eventbus.ClassLoaded(runtimeiface.ClassIdentity{Name: "p.Other", Loader: loader}, nil))
	assert.True(t, handlerFired)
}

func TestActivateSkippedWhenVersionConstraintUnsatisfied(t *testing.T) {
	reader := fakeReader{versions: map[string]string{"p.Probe": "0.5.0"}}
	reg, _, bus := newHarness(reader, nil, nil)

	require.NoError(t, reg.Discover(PluginDescriptor{
		Name:              "demo",
		Probes:            []string{"p.Probe"},
		VersionConstraint: ">= 1.0.0",
	}))

	loader := fakeLoader{"L"}
	bus.Dispatch(eventbus.ClassLoaded(runtimeiface.ClassIdentity{Name: "p.Probe", Loader: loader}, nil))

	_, ok := reg.Manager("demo", loader)
	assert.False(t, ok)
}

func TestActivateOnlyOncePerLoader(t *testing.T) {
	reg, _, bus := newHarness(nil, nil, nil)
	var activations int
	require.NoError(t, reg.Discover(PluginDescriptor{
		Name:   "demo",
		Probes: []string{"p.Probe"},
		Init:   func(ctx context.Context, m *Manager) error { activations++; return nil },
	}))

	loader := fakeLoader{"L"}
	bus.Dispatch(eventbus.ClassLoaded(runtimeiface.ClassIdentity{Name: "p.Probe", Loader: loader}, nil))
	bus.Dispatch(eventbus.ClassLoaded(runtimeiface.ClassIdentity{Name: "p.Probe", Loader: loader}, nil))
	assert.Equal(t, 1, activations)
}

func TestTeardownOnLoaderReclaimedUnregistersEverything(t *testing.T) {
	reg, pl, bus := newHarness(nil, nil, nil)
	require.NoError(t, reg.Discover(PluginDescriptor{
		Name:   "demo",
		Probes: []string{"p.Probe"},
		Transformers: []pipeline.TransformerDescriptor{{
			Name: "demo-transform", Pattern: "all", EveryLoad: true,
			Transform: func(ctx context.Context, identity runtimeiface.ClassIdentity, source []byte) ([]byte, error) {
				return nil, nil
			},
		}},
	}))

	loader := fakeLoader{"L"}
	bus.Dispatch(eventbus.ClassLoaded(runtimeiface.ClassIdentity{Name: "p.Probe", Loader: loader}, nil))
	_, ok := reg.Manager("demo", loader)
	require.True(t, ok)

	bus.Dispatch(eventbus.LoaderReclaimed(loader))
	_, ok = reg.Manager("demo", loader)
	assert.False(t, ok)

	ran := false
	pl.Register(nil, pipeline.TransformerDescriptor{
		Name: "probe", Pattern: "all", EveryLoad: true,
		Transform: func(ctx context.Context, identity runtimeiface.ClassIdentity, source []byte) ([]byte, error) {
			ran = true
			return source, nil
		},
	})
	_, err := pl.Run(context.Background(), "anything", loader, []byte("package p\n"))
	require.NoError(t, err)
	assert.True(t, ran, "global transformer should still run; only the demo plugin's loader-scoped one is gone")
}
