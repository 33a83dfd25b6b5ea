package events

import (
	"time"

	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Now formats the current time the way every event timestamp is written.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Publish publishes an event to all subscribers.
// A nil bus drops the event, so publishers need no guard.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case AcquisitionStateEvent:
		event.Publish(b.dispatcher, e)
	case FrameAcquiredEvent:
		event.Publish(b.dispatcher, e)
	case AcquisitionErrorEvent:
		event.Publish(b.dispatcher, e)
	case FormatChangedEvent:
		event.Publish(b.dispatcher, e)
	case FeatureDegradedEvent:
		event.Publish(b.dispatcher, e)
	case RecordingEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	case AcquisitionMetricsEvent:
		event.Publish(b.dispatcher, e)
	case DeviceEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler's parameter type selects the events it receives.
// Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e FrameAcquiredEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(AcquisitionStateEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameAcquiredEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(AcquisitionErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FormatChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FeatureDegradedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(AcquisitionMetricsEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}
