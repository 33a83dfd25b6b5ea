package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must stay quiet before it is reloaded.
const DefaultDebounce = time.Second

// Watcher reloads a config file when it changes and passes every handler
// the same freshly loaded value. The parent directory is watched so editors
// that replace the file by rename are seen.
type Watcher[T any] struct {
	path     string
	load     func(string) (T, error)
	log      *slog.Logger
	debounce time.Duration
	onError  func(error)

	mu       sync.Mutex
	handlers map[int]func(T)
	nextID   int

	fsw  *fsnotify.Watcher
	done chan struct{}
	stop context.CancelFunc
}

// WatcherOption configures a Watcher.
type WatcherOption[T any] func(*Watcher[T])

// WithDebounce overrides DefaultDebounce.
func WithDebounce[T any](d time.Duration) WatcherOption[T] {
	return func(w *Watcher[T]) { w.debounce = d }
}

// WithErrorHandler receives load errors in addition to the log.
func WithErrorHandler[T any](fn func(error)) WatcherOption[T] {
	return func(w *Watcher[T]) { w.onError = fn }
}

// NewWatcher returns a stopped watcher for path.
func NewWatcher[T any](path string, load func(string) (T, error), log *slog.Logger, opts ...WatcherOption[T]) *Watcher[T] {
	w := &Watcher[T]{
		path:     filepath.Clean(path),
		load:     load,
		log:      log,
		debounce: DefaultDebounce,
		handlers: map[int]func(T){},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnReload registers fn and returns a function that removes it.
func (w *Watcher[T]) OnReload(fn func(T)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.handlers[id] = fn
	w.mu.Unlock()
	return func() {
		w.mu.Lock()
		delete(w.handlers, id)
		w.mu.Unlock()
	}
}

// Start begins watching until ctx is done or Stop is called.
func (w *Watcher[T]) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return err
	}
	ctx, w.stop = context.WithCancel(ctx)
	w.fsw = fsw
	w.done = make(chan struct{})
	w.log.Info("Config watcher started", "path", w.path, "debounce", w.debounce)
	go w.loop(ctx)
	return nil
}

// Stop ends the watch and waits for the loop to exit.
func (w *Watcher[T]) Stop() error {
	if w.fsw == nil {
		return nil
	}
	w.stop()
	<-w.done
	return w.fsw.Close()
}

func (w *Watcher[T]) loop(ctx context.Context) {
	defer close(w.done)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Config watcher stopped")
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			w.log.Debug("Config file change detected", "op", ev.Op.String())
			timer.Reset(w.debounce)

		case <-timer.C:
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher[T]) reload() {
	v, err := w.load(w.path)
	if err != nil {
		w.log.Warn("Config reload failed, keeping current settings", "path", w.path, "error", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	ids := make([]int, 0, len(w.handlers))
	for id := range w.handlers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, w.handlers[id])
	}
	w.mu.Unlock()

	w.log.Info("Config reloaded", "path", w.path, "handlers", len(fns))
	for _, fn := range fns {
		fn(v)
	}
}
