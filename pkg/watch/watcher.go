// Package watch implements two producers that feed redefinition requests
// into the scheduler: a recursive filesystem watcher over a build-output
// directory, and a push-mode JSON-RPC command source. Both normalise into
// a scheduler.RedefinitionRequest and submit it.
//
// The filesystem half watches for ".hsc" source files and maps a path
// relative/path/with/slashes.hsc to the dotted class name
// relative.path.with.slashes.
package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/flywheeldev/hotswap/pkg/runtimeiface"
	"github.com/flywheeldev/hotswap/pkg/scheduler"
	"github.com/fsnotify/fsnotify"
	"go.lsp.dev/uri"
)

// classFileExt is the build-output extension for this runtime's classes
// (matches classform's own displayName fallback: "<name>.hsc").
const classFileExt = ".hsc"

// Submitter is the scheduler's submission surface, narrowed so the
// watcher package depends on an interface rather than *scheduler.Scheduler.
type Submitter interface {
	Submit(req scheduler.RedefinitionRequest)
}

var ignoreDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	".git":         true,
	".hotswap":     true,
	"dist":         true,
	"build":        true,
	".idea":        true,
	".vscode":      true,
	"bin":          true,
	"obj":          true,
}

// FileWatcher monitors a build-output directory tree for new or rewritten
// class files and submits a RedefinitionRequest, debounced per path by a
// small window.
type FileWatcher struct {
	root        string
	rootURI     uri.URI
	loader      runtimeiface.Loader
	submitter   Submitter
	watcher     *fsnotify.Watcher
	debounceDur time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	done   chan struct{}
	closed bool
}

// NewFileWatcher starts watching root recursively for files belonging to
// loader. debounceDur is the per-file settle window; a value <= 0 uses
// 300ms, matching the scheduler's own default debounce minimum.
func NewFileWatcher(root string, loader runtimeiface.Loader, submitter Submitter, debounceDur time.Duration) (*FileWatcher, error) {
	if debounceDur <= 0 {
		debounceDur = 300 * time.Millisecond
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		w.Close()
		return nil, err
	}

	fw := &FileWatcher{
		root:        absRoot,
		rootURI:     uri.File(absRoot),
		loader:      loader,
		submitter:   submitter,
		watcher:     w,
		debounceDur: debounceDur,
		timers:      make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}

	if err := fw.watchRecursive(absRoot); err != nil {
		w.Close()
		return nil, err
	}

	go fw.watchLoop()
	return fw, nil
}

// RootURI returns the watched directory's URI, typed as go.lsp.dev/uri.URI.
func (fw *FileWatcher) RootURI() uri.URI { return fw.rootURI }

func (fw *FileWatcher) watchRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if shouldIgnoreDir(path) {
				return filepath.SkipDir
			}
			return fw.watcher.Add(path)
		}
		return nil
	})
}

func shouldIgnoreDir(path string) bool {
	base := filepath.Base(path)
	if ignoreDirs[base] {
		return true
	}
	return strings.HasPrefix(base, ".") && base != "."
}

func (fw *FileWatcher) watchLoop() {
	for {
		select {
		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(ev)

		case _, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}

		case <-fw.done:
			return
		}
	}
}

func (fw *FileWatcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !shouldIgnoreDir(ev.Name) {
				fw.watcher.Add(ev.Name)
			}
			return
		}
	}

	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	if !strings.HasSuffix(ev.Name, classFileExt) {
		return
	}

	fw.debounce(ev.Name)
}

// debounce resets a per-path timer so rapid successive writes to the same
// file coalesce into one submission. The timer is keyed per file, not
// batched under one global timer — the scheduler owns the cross-file
// batch window.
func (fw *FileWatcher) debounce(path string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.closed {
		return
	}

	if t, ok := fw.timers[path]; ok {
		t.Stop()
	}
	fw.timers[path] = time.AfterFunc(fw.debounceDur, func() {
		fw.processFile(path)
		fw.mu.Lock()
		delete(fw.timers, path)
		fw.mu.Unlock()
	})
}

func (fw *FileWatcher) processFile(path string) {
	source, valid := readValidClassFile(path)
	if !valid {
		return
	}

	name, ok := classNameFor(fw.root, path)
	if !ok {
		return
	}

	fw.submitter.Submit(scheduler.RedefinitionRequest{
		Identity:    runtimeiface.ClassIdentity{Name: name, Loader: fw.loader},
		NewBytes:    source,
		Source:      path,
		SubmittedAt: time.Now(),
	})
}

// classNameFor maps relative/path/with/slashes.hsc under root to
// relative.path.with.slashes.
func classNameFor(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, classFileExt)
	if rel == "" || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return strings.ReplaceAll(rel, "/", "."), true
}

// readValidClassFile reads path and reports whether its size and leading
// bytes match a valid class file. A class file in this runtime is Go
// source text, so there is no binary magic number to check; the watcher
// validates the source-level equivalent instead: a non-empty file whose
// first non-blank token is "package".
func readValidClassFile(path string) ([]byte, bool) {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return nil, false
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	if !hasPackageMagic(b) {
		return nil, false
	}
	return b, true
}

func hasPackageMagic(b []byte) bool {
	trimmed := strings.TrimLeft(string(b), " \t\r\n")
	return strings.HasPrefix(trimmed, "package ")
}

// Close stops the watcher. Idempotent.
func (fw *FileWatcher) Close() error {
	fw.mu.Lock()
	if fw.closed {
		fw.mu.Unlock()
		return nil
	}
	fw.closed = true
	for _, t := range fw.timers {
		t.Stop()
	}
	fw.mu.Unlock()

	close(fw.done)
	return fw.watcher.Close()
}
