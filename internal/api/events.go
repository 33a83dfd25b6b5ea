package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/framegrab/internal/acquisition"
	"github.com/smazurov/framegrab/internal/events"
)

// registerSSERoutes registers the acquisition event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Acquisition state changes, delivered frames, stream errors, format changes, degraded features, recordings and device hotplug",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"acquisition-state": events.AcquisitionStateEvent{},
		"frame-acquired":    events.FrameAcquiredEvent{},
		"acquisition-error": events.AcquisitionErrorEvent{},
		"format-changed":    events.FormatChangedEvent{},
		"feature-degraded":  events.FeatureDegradedEvent{},
		"recording":         events.RecordingEvent{},
		"device-changed":    events.DeviceEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.AcquisitionStateEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.FrameAcquiredEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.AcquisitionErrorEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.FormatChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.FeatureDegradedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RecordingEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.DeviceEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// New clients get the current state before any transitions.
		if err := send.Data(s.currentState()); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				if err := send.Data(ev); err != nil {
					return
				}
			}
		}
	})
}

func (s *Server) currentState() events.AcquisitionStateEvent {
	state := events.StateIdle
	if s.camera.Status() == acquisition.StatusExposure {
		state = events.StateStreaming
	}
	return events.AcquisitionStateEvent{
		DevicePath: s.camera.Path(),
		State:      state,
		Frames:     s.camera.AcquiredFrameCount(),
		Timestamp:  events.Now(),
	}
}
