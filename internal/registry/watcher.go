package registry

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ramkansal/mangavault/internal/capability"
	"github.com/ramkansal/mangavault/pkg/scraper"
)

// debounce is the minimum quiet period a path must see before a
// Create/Write event is acted on, per spec.md §4.2. Editors and
// package managers both tend to fire several events per logical
// write; this collapses them into one reload.
const debounce = 500 * time.Millisecond

// A failing load is retried up to loadRetries times, loadRetryDelay
// apart, before the previous registration (if any) is left untouched
// and the path is logged as failed.
const (
	loadRetries    = 3
	loadRetryDelay = 300 * time.Millisecond
)

// Watcher drives hot reload of the plugins directory: it scans once on
// startup, then reacts to filesystem events for the lifetime of the
// process. Grounded on original_source/scrapers/src/files.rs's
// modification-tracking loop, re-expressed over fsnotify's event
// model instead of a polling mtime scan.
type Watcher struct {
	dir      string
	registry *Registry
	host     *capability.Host
	log      zerolog.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
}

func NewWatcher(dir string, registry *Registry, host *capability.Host, log zerolog.Logger) *Watcher {
	return &Watcher{dir: dir, registry: registry, host: host, log: log, timers: make(map[string]*time.Timer)}
}

// ScanOnce loads every recognized plugin file currently in dir. Errors
// loading one file are logged and skipped; they never prevent the
// others from loading.
func (w *Watcher) ScanOnce(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if _, ok := recognizedExtension(path); !ok {
			continue
		}
		w.loadWithRetry(ctx, path)
	}
	return nil
}

// Run watches dir until ctx is cancelled, debouncing Create/Write
// events per path and dispatching Remove events immediately.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Str("dir", w.dir).Msg("plugin watcher error")
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if _, ok := recognizedExtension(event.Name); !ok {
		return
	}

	switch {
	case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
		w.cancelPending(event.Name)
		w.registry.UnregisterByPath(event.Name)
		w.log.Info().Str("path", event.Name).Msg("plugin file removed")

	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.debounceLoad(ctx, event.Name)
	}
}

// debounceLoad resets a per-path timer on every event; the load only
// actually runs once events for that path stop arriving for the
// debounce window.
func (w *Watcher) debounceLoad(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.loadWithRetry(ctx, path)
	})
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

// loadWithRetry attempts to load and register path, retrying on
// transient failures (e.g. a write still in progress) before giving
// up and leaving whatever was previously registered for that path
// untouched.
func (w *Watcher) loadWithRetry(ctx context.Context, path string) {
	var lastErr error
	for attempt := 0; attempt <= loadRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(loadRetryDelay)
		}
		if err := w.load(ctx, path); err != nil {
			lastErr = err
			continue
		}
		return
	}
	w.log.Warn().Err(lastErr).Str("path", path).Int("attempts", loadRetries+1).
		Msg("giving up loading plugin, previous registration (if any) left in place")
}

func (w *Watcher) load(ctx context.Context, path string) error {
	kind, ok := recognizedExtension(path)
	if !ok {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch kind {
	case scraper.KindComponent:
		plugin, err := NewWasmPlugin(ctx, filepath.Base(path), data, w.host)
		if err != nil {
			return err
		}
		_, err = w.registry.Register(ctx, path, plugin, info.ModTime())
		return err
	case scraper.KindScript:
		plugin, err := NewLuaPlugin(filepath.Base(path), data, w.host)
		if err != nil {
			return err
		}
		_, err = w.registry.Register(ctx, path, plugin, info.ModTime())
		return err
	}
	return nil
}
