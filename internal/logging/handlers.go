package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

type fanout []slog.Handler

// Fanout returns a handler that passes each record to every handler that
// accepts its level.
func Fanout(handlers ...slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return fanout(handlers)
}

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	return slices.ContainsFunc(f, func(h slog.Handler) bool { return h.Enabled(ctx, l) })
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// JournalAvailable reports whether journald accepts native messages.
func JournalAvailable() bool {
	return journal.Enabled()
}

// journalHandler sends records as native journal entries. Attributes become
// upper-case fields, so `journalctl -t framegrab DEVICE=/dev/video0` works.
type journalHandler struct {
	attrs  []slog.Attr
	groups []string
}

func newJournalHandler() *journalHandler { return &journalHandler{} }

func (h *journalHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *journalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := map[string]string{"SYSLOG_IDENTIFIER": Identifier}
	for _, a := range h.attrs {
		journalField(fields, h.groups, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		journalField(fields, h.groups, a)
		return true
	})
	return journal.Send(r.Message, priority(r.Level), fields)
}

func (h *journalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &journalHandler{attrs: append(slices.Clip(h.attrs), attrs...), groups: h.groups}
}

func (h *journalHandler) WithGroup(name string) slog.Handler {
	return &journalHandler{attrs: h.attrs, groups: append(slices.Clip(h.groups), name)}
}

func priority(l slog.Level) journal.Priority {
	switch {
	case l >= slog.LevelError:
		return journal.PriErr
	case l >= slog.LevelWarn:
		return journal.PriWarning
	case l >= slog.LevelInfo:
		return journal.PriInfo
	}
	return journal.PriDebug
}

func journalField(fields map[string]string, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := strings.ToUpper(strings.Join(append(slices.Clip(groups), a.Key), "_"))
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			journalField(fields, append(slices.Clip(groups), a.Key), ga)
		}
		return
	}
	fields[key] = valueString(a.Value)
}

func valueString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	}
	return v.String()
}

// historyHandler appends records to the process history and notifies the
// OnEntry callback.
type historyHandler struct {
	attrs  []slog.Attr
	groups []string
}

func (h *historyHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *historyHandler) Handle(_ context.Context, r slog.Record) error {
	e := Entry{
		Time:    r.Time,
		Level:   levelName(r.Level),
		Module:  "app",
		Message: r.Message,
	}
	add := func(a slog.Attr) bool {
		if a.Key == "module" && len(h.groups) == 0 {
			e.Module = a.Value.String()
			return true
		}
		if e.Attrs == nil {
			e.Attrs = map[string]any{}
		}
		flatten(e.Attrs, h.groups, a)
		return true
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(add)

	history.Append(e)
	if fn := onEntry.Load(); fn != nil {
		(*fn)(e)
	}
	return nil
}

func (h *historyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &historyHandler{attrs: append(slices.Clip(h.attrs), attrs...), groups: h.groups}
}

func (h *historyHandler) WithGroup(name string) slog.Handler {
	return &historyHandler{attrs: h.attrs, groups: append(slices.Clip(h.groups), name)}
}

func flatten(dst map[string]any, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			flatten(dst, append(slices.Clip(groups), a.Key), ga)
		}
		return
	}
	key := strings.Join(append(slices.Clip(groups), a.Key), ".")
	switch a.Value.Kind() {
	case slog.KindTime, slog.KindDuration, slog.KindAny:
		dst[key] = valueString(a.Value)
	default:
		dst[key] = a.Value.Any()
	}
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	case l >= slog.LevelInfo:
		return "info"
	}
	return "debug"
}
