package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/framegrab/internal/events"
)

// Tally follows the acquisition state of one device: blinking while armed,
// solid while streaming, off when idle. A stream error shows the alert
// pattern until the next run starts.
type Tally struct {
	light  Light
	bus    *events.Bus
	device string
	log    *slog.Logger

	mu      sync.Mutex
	current string
	unsubs  []func()
}

// NewTally creates a tally for device.
func NewTally(light Light, bus *events.Bus, device string, log *slog.Logger) *Tally {
	return &Tally{light: light, bus: bus, device: device, log: log}
}

// Start turns the light off and subscribes to acquisition events.
func (t *Tally) Start() {
	t.show(Off)
	t.unsubs = []func(){
		t.bus.Subscribe(func(e events.AcquisitionStateEvent) {
			if e.DevicePath == t.device {
				t.onState(e.State)
			}
		}),
		t.bus.Subscribe(func(e events.AcquisitionErrorEvent) {
			if e.DevicePath == t.device {
				t.show(Alert)
			}
		}),
	}
}

// Stop unsubscribes and turns the light off.
func (t *Tally) Stop() {
	for _, unsub := range t.unsubs {
		unsub()
	}
	t.unsubs = nil
	t.show(Off)
}

// Pattern returns what the light currently shows.
func (t *Tally) Pattern() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

func (t *Tally) onState(state string) {
	switch state {
	case events.StateArmed:
		t.show(Blink)
	case events.StateStreaming:
		t.show(Solid)
	case events.StateIdle, events.StateClosed:
		t.mu.Lock()
		keep := t.current == Alert && state == events.StateIdle
		t.mu.Unlock()
		if !keep {
			t.show(Off)
		}
	}
}

func (t *Tally) show(pattern string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == pattern {
		return
	}
	if err := t.light.Show(pattern); err != nil {
		t.log.Warn("Failed to set tally LED", "pattern", pattern, "error", err)
		return
	}
	t.current = pattern
}
