package exporters

import (
	"context"
	"sync"
	"time"

	"github.com/smazurov/framegrab/internal/events"
	"github.com/smazurov/framegrab/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter periodically publishes per-device throughput samples.
type SSEExporter struct {
	eventBus EventPublisher
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	last     map[string]uint64
	lastTime time.Time
}

// NewSSEExporter creates a new SSE exporter.
func NewSSEExporter(eventBus EventPublisher) *SSEExporter {
	return &SSEExporter{
		eventBus: eventBus,
		interval: 1 * time.Second,
		last:     make(map[string]uint64),
	}
}

// Start begins the SSE export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.lastTime = time.Now()
	s.wg.Add(1)
	go s.run()
}

// Stop stops the SSE exporter and waits for the goroutine to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.publishMetrics(now)
		}
	}
}

func (s *SSEExporter) publishMetrics(now time.Time) {
	elapsed := now.Sub(s.lastTime).Seconds()
	s.lastTime = now

	for device, st := range metrics.GetAllDeviceStats() {
		fps := 0.0
		if prev, ok := s.last[device]; ok && elapsed > 0 && st.Frames >= prev {
			fps = float64(st.Frames-prev) / elapsed
		}
		s.last[device] = st.Frames

		s.eventBus.Publish(events.AcquisitionMetricsEvent{
			DevicePath:    device,
			FPS:           fps,
			Frames:        st.Frames,
			DequeueErrors: st.DequeueErrors,
			Streaming:     st.Streaming,
		})
	}
}
