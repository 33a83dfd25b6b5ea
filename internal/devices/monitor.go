// Package devices tracks the capture devices present on the host.
package devices

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/framegrab/internal/events"
	"github.com/smazurov/framegrab/pkg/linuxav/hotplug"
	"github.com/smazurov/framegrab/pkg/linuxav/v4l2"
)

// EventSource delivers kernel device events until ctx ends.
type EventSource func(ctx context.Context, fn func(hotplug.Event)) error

// NetlinkSource listens for video4linux uevents.
func NetlinkSource(ctx context.Context, fn func(hotplug.Event)) error {
	mon, err := hotplug.NewMonitor(hotplug.SubsystemVideo4Linux)
	if err != nil {
		return err
	}
	defer mon.Close()
	return mon.Run(ctx, fn)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLister replaces v4l2.FindDevices.
func WithLister(list func() ([]v4l2.DeviceInfo, error)) Option {
	return func(m *Monitor) { m.list = list }
}

// WithSettle sets how long to wait after an add event before rescanning.
// Drivers register the node before it answers VIDIOC_QUERYCAP.
func WithSettle(d time.Duration) Option {
	return func(m *Monitor) { m.settle = d }
}

// Monitor rescans the device list on every uevent and publishes the
// difference as DeviceEvents.
type Monitor struct {
	bus    *events.Bus
	log    *slog.Logger
	list   func() ([]v4l2.DeviceInfo, error)
	settle time.Duration

	mu    sync.Mutex
	known map[string]v4l2.DeviceInfo // by DeviceID
}

// NewMonitor creates a monitor publishing to bus.
func NewMonitor(bus *events.Bus, log *slog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		bus:    bus,
		log:    log,
		list:   v4l2.FindDevices,
		settle: time.Second,
		known:  map[string]v4l2.DeviceInfo{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run takes the initial inventory, then rescans on every event from src
// until ctx ends. The initial inventory is not published.
func (m *Monitor) Run(ctx context.Context, src EventSource) error {
	m.mu.Lock()
	devices, err := m.list()
	if err != nil {
		m.log.Warn("Failed to list devices", "error", err)
	}
	for _, d := range devices {
		m.known[d.DeviceID] = d
	}
	m.mu.Unlock()
	m.log.Info("Device monitor started", "devices", len(devices))

	return src(ctx, func(ev hotplug.Event) {
		m.log.Debug("Device event", "action", ev.Action, "node", ev.DevNode())
		if ev.Action == hotplug.ActionAdd && m.settle > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.settle):
			}
		}
		m.Rescan()
	})
}

// Rescan compares the current device list with the last one and publishes
// one event per difference.
func (m *Monitor) Rescan() {
	m.mu.Lock()
	defer m.mu.Unlock()

	devices, err := m.list()
	if err != nil {
		m.log.Warn("Failed to list devices", "error", err)
		return
	}
	current := make(map[string]v4l2.DeviceInfo, len(devices))
	for _, d := range devices {
		current[d.DeviceID] = d
	}

	for id, old := range m.known {
		if _, ok := current[id]; !ok {
			m.publish(events.DeviceRemoved, old)
		}
	}
	for id, d := range current {
		old, ok := m.known[id]
		switch {
		case !ok:
			m.publish(events.DeviceAdded, d)
		case old != d:
			m.publish(events.DeviceChanged, d)
		}
	}
	m.known = current
}

// Devices returns the last inventory.
func (m *Monitor) Devices() []v4l2.DeviceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]v4l2.DeviceInfo, 0, len(m.known))
	for _, d := range m.known {
		out = append(out, d)
	}
	return out
}

func (m *Monitor) publish(action string, d v4l2.DeviceInfo) {
	m.log.Info("Device "+action, "path", d.DevicePath, "name", d.DeviceName, "id", d.DeviceID)
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.DeviceEvent{
		Action:     action,
		DevicePath: d.DevicePath,
		DeviceName: d.DeviceName,
		DeviceID:   d.DeviceID,
		Timestamp:  events.Now(),
	})
}
