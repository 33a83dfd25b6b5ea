package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestWatcher(t *testing.T, path string, opts ...WatcherOption[CameraSettings]) *Watcher[CameraSettings] {
	t.Helper()
	opts = append([]WatcherOption[CameraSettings]{WithDebounce[CameraSettings](30 * time.Millisecond)}, opts...)
	w := NewWatcher(path, LoadCameraSettings, quietLogger(), opts...)
	return w
}

func run(t *testing.T, w *Watcher[CameraSettings]) {
	t.Helper()
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	})
}

func TestWatcher_Reload(t *testing.T) {
	path := writeFile(t, "[camera]\ngain = 0.1\n")
	w := newTestWatcher(t, path)
	got := make(chan CameraSettings, 4)
	w.OnReload(func(c CameraSettings) { got <- c })
	run(t, w)

	if err := os.WriteFile(path, []byte("[camera]\ngain = 0.9\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-got:
		if c.Gain == nil || *c.Gain != 0.9 {
			t.Errorf("reloaded gain = %v, want 0.9", c.Gain)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload")
	}
}

func TestWatcher_RenameReplace(t *testing.T) {
	path := writeFile(t, "[camera]\nframes = 1\n")
	w := newTestWatcher(t, path)
	got := make(chan CameraSettings, 4)
	w.OnReload(func(c CameraSettings) { got <- c })
	run(t, w)

	tmp := filepath.Join(filepath.Dir(path), ".framegrab.toml.swp")
	if err := os.WriteFile(tmp, []byte("[camera]\nframes = 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-got:
		if c.Frames == nil || *c.Frames != 7 {
			t.Errorf("reloaded frames = %v, want 7", c.Frames)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after rename")
	}
}

func TestWatcher_Debounce(t *testing.T) {
	path := writeFile(t, "[camera]\nframes = 0\n")
	w := newTestWatcher(t, path, WithDebounce[CameraSettings](150*time.Millisecond))
	var calls atomic.Int32
	w.OnReload(func(CameraSettings) { calls.Add(1) })
	run(t, w)

	for i := range 5 {
		content := []byte("[camera]\nframes = " + string(rune('1'+i)) + "\n")
		if err := os.WriteFile(path, content, 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(400 * time.Millisecond)

	if n := calls.Load(); n != 1 {
		t.Errorf("handlers called %d times, want 1", n)
	}
}

func TestWatcher_InvalidFileKeepsHandlersQuiet(t *testing.T) {
	path := writeFile(t, "[camera]\ngain = 0.5\n")
	errs := make(chan error, 1)
	w := newTestWatcher(t, path, WithErrorHandler[CameraSettings](func(err error) { errs <- err }))
	var calls atomic.Int32
	w.OnReload(func(CameraSettings) { calls.Add(1) })
	run(t, w)

	if err := os.WriteFile(path, []byte("[camera]\ngain = 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-errs:
		if err == nil {
			t.Error("nil error reported")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error handler not called")
	}
	if calls.Load() != 0 {
		t.Error("reload handler called for invalid settings")
	}
}

func TestWatcher_Unsubscribe(t *testing.T) {
	path := writeFile(t, "[camera]\n")
	w := newTestWatcher(t, path)
	var kept, removed atomic.Int32
	w.OnReload(func(CameraSettings) { kept.Add(1) })
	unsub := w.OnReload(func(CameraSettings) { removed.Add(1) })
	unsub()
	run(t, w)

	if err := os.WriteFile(path, []byte("[camera]\nframes = 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for kept.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if kept.Load() == 0 {
		t.Fatal("remaining handler not called")
	}
	if removed.Load() != 0 {
		t.Error("removed handler called")
	}
}

func TestWatcher_StartMissingDir(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "nope", "framegrab.toml"), LoadCameraSettings, quietLogger())
	if err := w.Start(context.Background()); err == nil {
		w.Stop()
		t.Fatal("Start() succeeded on a missing directory")
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() on unstarted watcher = %v", err)
	}
}

func TestWatcher_StopsWithContext(t *testing.T) {
	path := writeFile(t, "[camera]\n")
	w := newTestWatcher(t, path)
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	select {
	case <-w.done:
	case <-time.After(time.Second):
		t.Fatal("watch loop still running after cancel")
	}
	if err := w.Stop(); err != nil && !errors.Is(err, os.ErrClosed) {
		t.Errorf("Stop() error = %v", err)
	}
}
