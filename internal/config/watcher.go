package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/skwasm/pluginhost/internal/logging"
)

// Watcher watches a single file for changes and invokes callbacks after a
// debounce window, collapsing the editor-save-twice / atomic-rename bursts
// that a raw fsnotify feed would otherwise deliver.
type Watcher struct {
	fsw      *fsnotify.Watcher
	path     string
	debounce time.Duration

	mu        sync.Mutex
	callbacks []func()
	timer     *time.Timer
}

// NewWatcher creates a watcher for the file at path.
func NewWatcher(path string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Watcher{fsw: fsw, path: path, debounce: debounce}, nil
}

// OnChange registers a callback invoked (debounced) after path changes.
func (w *Watcher) OnChange(fn func()) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, fn)
	w.mu.Unlock()
}

// Start begins watching the parent directory (fsnotify cannot watch a
// single file reliably across editors that replace-via-rename).
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			w.scheduleFire()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) scheduleFire() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	cbs := append([]func(){}, w.callbacks...)
	w.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
