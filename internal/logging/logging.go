package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Identifier tags framegrab records in the journal.
const Identifier = "framegrab"

const historySize = 500

// Config selects the global level, the output format and per-module level
// overrides.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

type sink struct {
	gen uint64
	h   slog.Handler
}

var (
	mu      sync.Mutex
	config  Config
	levels  = map[string]*slog.LevelVar{}
	loggers = map[string]*slog.Logger{}
	history = NewHistory(historySize)
	onEntry atomic.Pointer[func(Entry)]

	current atomic.Pointer[sink]
)

func init() {
	current.Store(&sink{h: buildSink("text")})
}

// Initialize installs the output chain for cfg and applies its levels to
// every module logger, including loggers handed out before the call.
func Initialize(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	config = cfg
	prev := current.Load()
	current.Store(&sink{gen: prev.gen + 1, h: buildSink(cfg.Format)})
	applyLevelsLocked()

	root := &slog.LevelVar{}
	root.Set(levelOr(cfg.Level, slog.LevelInfo))
	slog.SetDefault(slog.New(&moduleHandler{level: root, cache: &handlerCache{}}))
}

// SetLevels changes levels at runtime without touching outputs.
func SetLevels(level string, modules map[string]string) {
	mu.Lock()
	defer mu.Unlock()
	config.Level = level
	config.Modules = modules
	applyLevelsLocked()
}

func applyLevelsLocked() {
	global := levelOr(config.Level, slog.LevelInfo)
	for name, lv := range levels {
		lv.Set(moduleLevel(name, global))
	}
}

func moduleLevel(name string, global slog.Level) slog.Level {
	if s, ok := config.Modules[name]; ok {
		if l, ok := ParseLevel(s); ok {
			return l
		}
	}
	return global
}

// GetLogger returns the logger for module. Loggers are cached, so callers
// may keep them across Initialize.
func GetLogger(module string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[module]; ok {
		return l
	}
	lv := &slog.LevelVar{}
	lv.Set(moduleLevel(module, levelOr(config.Level, slog.LevelInfo)))
	l := slog.New(&moduleHandler{level: lv, cache: &handlerCache{}}).With("module", module)
	levels[module] = lv
	loggers[module] = l
	return l
}

// GetHistory returns the in-memory record of recent log entries.
func GetHistory() *History {
	return history
}

// OnEntry registers fn to receive every entry written to the history.
// Passing nil removes it.
func OnEntry(fn func(Entry)) {
	if fn == nil {
		onEntry.Store(nil)
		return
	}
	onEntry.Store(&fn)
}

// ParseLevel accepts debug, info, warn, warning and error in any case.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return 0, false
}

func levelOr(s string, def slog.Level) slog.Level {
	if l, ok := ParseLevel(s); ok {
		return l
	}
	return def
}

// buildSink writes to stdout when it goes somewhere, to the journal when
// journald is reachable, and always to the history.
func buildSink(format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	var handlers []slog.Handler
	if stdoutAttached() {
		if format == "json" {
			handlers = append(handlers, slog.NewJSONHandler(os.Stdout, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stdout, opts))
		}
	}
	if JournalAvailable() {
		handlers = append(handlers, newJournalHandler())
	}
	handlers = append(handlers, &historyHandler{})
	return Fanout(handlers...)
}

func stdoutAttached() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	m := fi.Mode()
	return m&os.ModeCharDevice != 0 || m&os.ModeNamedPipe != 0 || m&os.ModeSocket != 0 || m.IsRegular()
}

// moduleHandler gates records on a module level and forwards them to the
// current sink. Attributes and groups are replayed onto a new sink after
// Initialize replaces it.
type moduleHandler struct {
	level slog.Leveler
	ops   []func(slog.Handler) slog.Handler
	cache *handlerCache
}

type handlerCache struct {
	mu  sync.Mutex
	gen uint64
	h   slog.Handler
}

func (h *moduleHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *moduleHandler) Handle(ctx context.Context, r slog.Record) error {
	s := current.Load()
	h.cache.mu.Lock()
	if h.cache.h == nil || h.cache.gen != s.gen {
		next := s.h
		for _, op := range h.ops {
			next = op(next)
		}
		h.cache.h, h.cache.gen = next, s.gen
	}
	next := h.cache.h
	h.cache.mu.Unlock()
	return next.Handle(ctx, r)
}

func (h *moduleHandler) derive(op func(slog.Handler) slog.Handler) *moduleHandler {
	ops := make([]func(slog.Handler) slog.Handler, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return &moduleHandler{level: h.level, ops: append(ops, op), cache: &handlerCache{}}
}

func (h *moduleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.derive(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h *moduleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.derive(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}
