// Package metrics provides Prometheus metrics for acquisition engines and
// frame sinks.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framegrab",
		Subsystem: "acquisition",
		Name:      "frames_total",
		Help:      "Frames delivered to the frame handler",
	}, []string{"device"})

	bytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framegrab",
		Subsystem: "acquisition",
		Name:      "bytes_total",
		Help:      "Payload bytes delivered to the frame handler",
	}, []string{"device"})

	dequeueErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framegrab",
		Subsystem: "acquisition",
		Name:      "dequeue_errors_total",
		Help:      "Stream errors that ended an acquisition run",
	}, []string{"device"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framegrab",
		Subsystem: "acquisition",
		Name:      "runs_total",
		Help:      "Finished acquisition runs by reason",
	}, []string{"device", "reason"})

	streaming = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "framegrab",
		Subsystem: "acquisition",
		Name:      "streaming",
		Help:      "1 while the device is streaming",
	}, []string{"device"})

	negotiatedFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "framegrab",
		Subsystem: "acquisition",
		Name:      "negotiated_fps",
		Help:      "Frame rate applied by the driver, 0 when left at its default",
	}, []string{"device"})

	handlerSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "framegrab",
		Subsystem: "acquisition",
		Name:      "handler_duration_seconds",
		Help:      "Time spent in the frame handler per frame",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
	}, []string{"device"})

	// Local cache for SSE exporter and API access.
	deviceCache   = make(map[string]*DeviceStats)
	deviceCacheMu sync.RWMutex
)

// DeviceStats holds current metric values for a device.
type DeviceStats struct {
	Frames        uint64
	Bytes         uint64
	DequeueErrors uint64
	Runs          uint64
	Streaming     bool
	NegotiatedFPS float64
}

// AddFrame records one delivered frame.
func AddFrame(device string, size int, handlerSecs float64) {
	framesTotal.WithLabelValues(device).Inc()
	bytesTotal.WithLabelValues(device).Add(float64(size))
	handlerSeconds.WithLabelValues(device).Observe(handlerSecs)
	updateCache(device, func(s *DeviceStats) {
		s.Frames++
		s.Bytes += uint64(size)
	})
}

// AddDequeueError records a stream error.
func AddDequeueError(device string) {
	dequeueErrors.WithLabelValues(device).Inc()
	updateCache(device, func(s *DeviceStats) { s.DequeueErrors++ })
}

// AddRun records a finished run.
func AddRun(device, reason string) {
	runsTotal.WithLabelValues(device, reason).Inc()
	updateCache(device, func(s *DeviceStats) { s.Runs++ })
}

// SetStreaming flips the streaming gauge.
func SetStreaming(device string, on bool) {
	v := 0.0
	if on {
		v = 1
	}
	streaming.WithLabelValues(device).Set(v)
	updateCache(device, func(s *DeviceStats) { s.Streaming = on })
}

// SetNegotiatedFPS records the frame rate applied by the driver.
func SetNegotiatedFPS(device string, fps float64) {
	negotiatedFPS.WithLabelValues(device).Set(fps)
	updateCache(device, func(s *DeviceStats) { s.NegotiatedFPS = fps })
}

// DeleteDevice removes all metrics for a device.
func DeleteDevice(device string) {
	framesTotal.DeleteLabelValues(device)
	bytesTotal.DeleteLabelValues(device)
	dequeueErrors.DeleteLabelValues(device)
	runsTotal.DeletePartialMatch(prometheus.Labels{"device": device})
	streaming.DeleteLabelValues(device)
	negotiatedFPS.DeleteLabelValues(device)
	handlerSeconds.DeleteLabelValues(device)

	deviceCacheMu.Lock()
	delete(deviceCache, device)
	deviceCacheMu.Unlock()
}

// GetDeviceStats returns a copy of the current values for a device.
func GetDeviceStats(device string) *DeviceStats {
	deviceCacheMu.RLock()
	defer deviceCacheMu.RUnlock()
	if s, ok := deviceCache[device]; ok {
		dup := *s
		return &dup
	}
	return nil
}

// GetAllDeviceStats returns stats for every known device.
func GetAllDeviceStats() map[string]*DeviceStats {
	deviceCacheMu.RLock()
	defer deviceCacheMu.RUnlock()
	result := make(map[string]*DeviceStats, len(deviceCache))
	for id, s := range deviceCache {
		dup := *s
		result[id] = &dup
	}
	return result
}

func updateCache(device string, update func(*DeviceStats)) {
	deviceCacheMu.Lock()
	defer deviceCacheMu.Unlock()
	s, ok := deviceCache[device]
	if !ok {
		s = &DeviceStats{}
		deviceCache[device] = s
	}
	update(s)
}
