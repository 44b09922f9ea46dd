// Package engine wires C1–C10 and the runtime attachment point into one
// running process: the transformer pipeline's class-load hook, the
// scheduler's redefinition loop, the plugin registry's activation
// handlers, and the filesystem/RPC producers that feed it, all sharing
// one event bus and command queue.
//
// Construction order is fixed: logger first, then dependent services in
// dependency order (queue, bus, pipeline, plugin registry, scheduler),
// then serve, then block for shutdown.
package engine

import (
	"context"
	"sync"

	"github.com/flywheeldev/hotswap/pkg/classform"
	"github.com/flywheeldev/hotswap/pkg/commandqueue"
	"github.com/flywheeldev/hotswap/pkg/config"
	"github.com/flywheeldev/hotswap/pkg/eventbus"
	"github.com/flywheeldev/hotswap/pkg/loaderreg"
	"github.com/flywheeldev/hotswap/pkg/logging"
	"github.com/flywheeldev/hotswap/pkg/pipeline"
	"github.com/flywheeldev/hotswap/pkg/plugin"
	"github.com/flywheeldev/hotswap/pkg/runtimeiface"
	"github.com/flywheeldev/hotswap/pkg/scheduler"
)

// Engine owns one instance of every component and its lifecycle.
type Engine struct {
	Pipeline  *pipeline.Pipeline
	Scheduler *scheduler.Scheduler
	Bus       *eventbus.Bus
	Queue     *commandqueue.Queue
	Plugins   *plugin.Registry
	Loaders   *loaderreg.Registry

	log logging.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options supplies the runtime attachment point and observers the host
// embedding this engine wants notified.
type Options struct {
	Reader   runtimeiface.ReflectiveReader
	Redefine runtimeiface.RedefinePrimitive
	Logger   logging.Logger

	DisabledPlugins []string

	// OnRedefineFailure observes a per-class scheduling failure (malformed
	// request, unresolved identity, or permanent redefine rejection).
	OnRedefineFailure func(identity runtimeiface.ClassIdentity, err error)
	// OnTransformError observes a transformer panic or error; its
	// contribution is discarded and the pipeline continues.
	OnTransformError func(name string, err error)
	// OnPluginActivateError observes an activation-phase failure.
	OnPluginActivateError func(pluginName string, loader runtimeiface.Loader, err error)
}

// New constructs an Engine from cfg and opts. Components are built in
// dependency order: queue, bus, pipeline, plugin registry, scheduler.
func New(cfg config.Config, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = logging.NoOp{}
	}

	var bus *eventbus.Bus
	loaders := loaderreg.New(func(loader runtimeiface.Loader) {
		bus.Dispatch(eventbus.LoaderReclaimed(loader))
	})

	queue := commandqueue.New(loaders.IsReclaimed)

	onHandlerErr := func(handlerName string, ev eventbus.Event, recovered any) {
		log.Errorf("event handler %q panicked on %s: %v", handlerName, ev.Kind, recovered)
	}
	bus = eventbus.New(queue, onHandlerErr)

	onTransformErr := func(name, _ string, err error) {
		if opts.OnTransformError != nil {
			opts.OnTransformError(name, err)
		}
		log.Warnf("transformer %q failed, bytes discarded: %v", name, err)
	}
	pl := pipeline.New(bus, onTransformErr)

	onActivateErr := func(pluginName string, loader runtimeiface.Loader, err error) {
		if opts.OnPluginActivateError != nil {
			opts.OnPluginActivateError(pluginName, loader, err)
		}
		log.Errorf("plugin %q failed to activate on loader %s: %v", pluginName, loader.LoaderName(), err)
	}
	plugins := plugin.New(pl, bus, opts.Reader, cfg.DisabledPlugins, onActivateErr)

	onRedefineFail := func(identity runtimeiface.ClassIdentity, err error) {
		if opts.OnRedefineFailure != nil {
			opts.OnRedefineFailure(identity, err)
		}
		log.Errorf("redefinition of %s failed: %v", identity, err)
	}
	sched := scheduler.New(scheduler.Config{
		DebounceMin:       cfg.DebounceMin(),
		DebounceMax:       cfg.DebounceMax(),
		RetryCount:        cfg.RedefineRetryCount,
		RetryBackoff:      cfg.RetryBackoff(),
		FingerprintPolicy: classform.ParsePolicy(cfg.FingerprintPolicy),
	}, opts.Reader, opts.Redefine, bus, onRedefineFail)

	return &Engine{
		Pipeline:  pl,
		Scheduler: sched,
		Bus:       bus,
		Queue:     queue,
		Plugins:   plugins,
		Loaders:   loaders,
		log:       log,
	}
}

// ClassLoadHook exposes the pipeline's entry point for the host's own
// class-load callback.
func (e *Engine) ClassLoadHook() runtimeiface.ClassLoadHook { return e.Pipeline.Hook() }

// Start runs the scheduler and command queue's background goroutines.
// Start must be called once before Submit/Discover are used.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.Scheduler.Run(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.Queue.Run(ctx)
	}()

	e.log.Infof("engine started")
}

// Shutdown stops the scheduler and command queue and waits for both to
// drain. Safe to call once.
func (e *Engine) Shutdown() {
	if e.cancel != nil {
		e.cancel()
	}
	e.Scheduler.Shutdown()
	e.wg.Wait()
	e.log.Infof("engine stopped")
}
