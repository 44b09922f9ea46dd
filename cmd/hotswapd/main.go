// Command hotswapd is the hot-swap engine daemon: it loads configuration,
// builds the engine, starts the filesystem watcher and JSON-RPC command
// listener, and blocks until a shutdown signal arrives.
//
// Process attachment — how a daemon finds and plugs into a real running
// host process — is outside this engine's scope. This daemon instead owns
// an in-process demonstration host (pkg/fakeruntime) that it exposes over
// the filesystem and RPC producers, so the full engine is runnable and
// testable end to end without a real attached runtime.
//
// Construction order follows the engine's own dependency order: logger
// first, then dependent services, then serve, then block. Its command
// surface is built with cobra.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/flywheeldev/hotswap/pkg/config"
	"github.com/flywheeldev/hotswap/pkg/engine"
	"github.com/flywheeldev/hotswap/pkg/eventbus"
	"github.com/flywheeldev/hotswap/pkg/fakeruntime"
	"github.com/flywheeldev/hotswap/pkg/loaderreg"
	"github.com/flywheeldev/hotswap/pkg/logging"
	"github.com/flywheeldev/hotswap/pkg/runtimeiface"
	"github.com/flywheeldev/hotswap/pkg/watch"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		watchRoot  string
		socketPath string
		logLevel   string
		plainLog   bool
	)

	root := &cobra.Command{
		Use:   "hotswapd",
		Short: "Runtime hot-swap and hot-deployment engine daemon",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the engine, filesystem watcher, and RPC listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(serveOptions{
				configPath: configPath,
				watchRoot:  watchRoot,
				socketPath: socketPath,
				logLevel:   logLevel,
				plainLog:   plainLog,
			})
		},
	}
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to a TOML/YAML/JSON config file")
	serveCmd.Flags().StringVar(&watchRoot, "watch-root", ".", "build-output directory to watch for class files")
	serveCmd.Flags().StringVar(&socketPath, "socket", "/tmp/hotswapd.sock", "unix socket for the push-mode RPC command source")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "", "overrides the config file's log-level")
	serveCmd.Flags().BoolVar(&plainLog, "plain-log", false, "disable colorized log output")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}

	root.AddCommand(serveCmd, versionCmd)
	return root
}

type serveOptions struct {
	configPath string
	watchRoot  string
	socketPath string
	logLevel   string
	plainLog   bool
}

func serve(opts serveOptions) error {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return fmt.Errorf("hotswapd: loading config: %w", err)
		}
		cfg = loaded
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	log := logging.New(cfg.LogLevel, os.Stderr, opts.plainLog)

	rt := fakeruntime.New()
	eng := engine.New(cfg, engine.Options{
		Reader:   rt,
		Redefine: rt,
		Logger:   log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	eng.Start(ctx)

	loaders := newLoaderSet(eng)
	defaultLoader := loaders.resolve("default")

	fw, err := watch.NewFileWatcher(opts.watchRoot, defaultLoader, eng.Scheduler, cfg.DebounceMin())
	if err != nil {
		cancel()
		eng.Shutdown()
		return fmt.Errorf("hotswapd: starting file watcher: %w", err)
	}
	log.Infof("watching %s for class files", opts.watchRoot)

	os.Remove(opts.socketPath)
	listener, err := net.Listen("unix", opts.socketPath)
	if err != nil {
		fw.Close()
		cancel()
		eng.Shutdown()
		return fmt.Errorf("hotswapd: listening on %s: %w", opts.socketPath, err)
	}
	log.Infof("serving push-mode RPC on %s", opts.socketPath)

	cmdSource := watch.NewCommandSource(loaders.resolveExisting, eng.Scheduler)
	go acceptLoop(ctx, listener, cmdSource, log)

	waitForShutdown(log)

	log.Infof("shutting down")
	cancel()
	listener.Close()
	fw.Close()
	eng.Shutdown()
	return nil
}

func acceptLoop(ctx context.Context, listener net.Listener, cmdSource *watch.CommandSource, log logging.Logger) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Warnf("accept error: %v", err)
				return
			}
		}
		go func() {
			if err := cmdSource.Serve(ctx, conn); err != nil {
				log.Debugf("rpc connection closed: %v", err)
			}
		}()
	}
}

func waitForShutdown(log logging.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}

// loaderSet resolves the daemon's demonstration loader names to
// fakeruntime.Loader handles tracked by the loader registry, creating and
// registering one on first use and firing LoaderCreated exactly once per
// loader.
type loaderSet struct {
	mu     sync.Mutex
	byName map[string]runtimeiface.Loader
	// ptrs holds the strong reference Track's weak pointer relies on; the
	// daemon itself plays the role of the host keeping each demonstration
	// loader alive for as long as it is in use.
	ptrs map[string]*fakeruntime.Loader
	eng  *engine.Engine
}

func newLoaderSet(eng *engine.Engine) *loaderSet {
	return &loaderSet{
		byName: make(map[string]runtimeiface.Loader),
		ptrs:   make(map[string]*fakeruntime.Loader),
		eng:    eng,
	}
}

func (s *loaderSet) resolve(name string) runtimeiface.Loader {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.byName[name]; ok {
		return l
	}
	ptr := fakeruntime.NewLoader(name)
	handle := loaderreg.Track(s.eng.Loaders, ptr, name)
	s.byName[name] = handle
	s.ptrs[name] = ptr
	s.eng.Bus.Dispatch(eventbus.LoaderCreated(handle))
	return handle
}

// resolveExisting implements watch.LoaderResolver: an RPC push names a
// loader by string, creating it on first mention just like the filesystem
// watcher's single fixed loader does.
func (s *loaderSet) resolveExisting(name string) (runtimeiface.Loader, bool) {
	return s.resolve(name), true
}
