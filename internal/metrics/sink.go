package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sinkFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framegrab",
		Subsystem: "sink",
		Name:      "frames_total",
		Help:      "Frames accepted by a sink",
	}, []string{"sink"})

	sinkDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framegrab",
		Subsystem: "sink",
		Name:      "dropped_total",
		Help:      "Frames a sink could not take",
	}, []string{"sink"})

	sinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framegrab",
		Subsystem: "sink",
		Name:      "errors_total",
		Help:      "Frames a sink failed to write",
	}, []string{"sink"})
)

// SinkFrame counts a frame accepted by a sink.
func SinkFrame(sink string) { sinkFrames.WithLabelValues(sink).Inc() }

// SinkDropped counts a frame a sink skipped.
func SinkDropped(sink string) { sinkDropped.WithLabelValues(sink).Inc() }

// SinkError counts a failed sink write.
func SinkError(sink string) { sinkErrors.WithLabelValues(sink).Inc() }
