package logging

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is one log record kept in memory for the API.
type Entry struct {
	Time    time.Time      `json:"timestamp"`
	Level   string         `json:"level"`
	Module  string         `json:"module"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attributes,omitempty"`
}

// History keeps the most recent entries, oldest first.
type History struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
}

// NewHistory returns a history holding up to size entries.
func NewHistory(size int) *History {
	return &History{entries: make([]Entry, size)}
}

// Append adds e, dropping the oldest entry when full.
func (h *History) Append(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.next] = e
	h.next++
	if h.next == len(h.entries) {
		h.next = 0
		h.full = true
	}
}

// Len returns the number of entries held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.entries)
	}
	return h.next
}

// Tail returns up to n of the newest entries in chronological order. n <= 0
// returns everything.
func (h *History) Tail(n int) []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var all []Entry
	if h.full {
		all = append(append(all, h.entries[h.next:]...), h.entries[:h.next]...)
	} else {
		all = append(all, h.entries[:h.next]...)
	}
	if n > 0 && n < len(all) {
		all = all[len(all)-n:]
	}
	return all
}

// Line renders e the way the log viewer shows it.
func (e Entry) Line() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%s] [%s] %s", e.Time.Format(time.RFC3339Nano), strings.ToUpper(e.Level), e.Module, e.Message)
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, e.Attrs[k])
	}
	return sb.String()
}
