package events

import "github.com/kelindar/event"

// SubscribeToChannel forwards events of type T into ch for select-based
// consumers such as SSE handlers. A full channel drops the event.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
