package events

// Event type constants for kelindar/event.
const (
	TypeAcquisitionState uint32 = iota + 1
	TypeFrameAcquired
	TypeAcquisitionError
	TypeFormatChanged
	TypeFeatureDegraded
	TypeRecording
	TypeLogEntry
	TypeAcquisitionMetrics
	TypeDevice
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// Acquisition states carried by AcquisitionStateEvent.
const (
	StateArmed     = "armed"
	StateStreaming = "streaming"
	StateIdle      = "idle"
	StateClosed    = "closed"
)

// AcquisitionStateEvent is published on every engine state transition.
type AcquisitionStateEvent struct {
	DevicePath   string `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Session      string `json:"session,omitempty" doc:"Acquisition session identifier"`
	SessionStart string `json:"session_start,omitempty" example:"2025-01-27T10:29:58Z" doc:"When the session was started"`
	State        string `json:"state" example:"streaming" enum:"armed,streaming,idle,closed" doc:"New state"`
	Frames       int    `json:"frames" example:"120" doc:"Frames acquired in the current session"`
	Reason       string `json:"reason,omitempty" example:"completed" doc:"Why a run ended"`
	Timestamp    string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for AcquisitionStateEvent.
func (e AcquisitionStateEvent) Type() uint32 { return TypeAcquisitionState }

// FrameAcquiredEvent is published after a frame was handed to the consumer.
type FrameAcquiredEvent struct {
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Session    string `json:"session" doc:"Acquisition session identifier"`
	FrameID    int    `json:"frame_id" example:"0" doc:"Zero-based frame number within the session"`
	Sequence   uint32 `json:"sequence" doc:"Driver sequence number"`
	Bytes      int    `json:"bytes" example:"614400" doc:"Payload size"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameAcquiredEvent.
func (e FrameAcquiredEvent) Type() uint32 { return TypeFrameAcquired }

// AcquisitionErrorEvent reports a stream error that ended a run.
type AcquisitionErrorEvent struct {
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Session    string `json:"session" doc:"Acquisition session identifier"`
	Error      string `json:"error" doc:"Error description"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for AcquisitionErrorEvent.
func (e AcquisitionErrorEvent) Type() uint32 { return TypeAcquisitionError }

// FormatChangedEvent is published when a new video mode is applied.
type FormatChangedEvent struct {
	DevicePath string  `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Mode       string  `json:"mode" example:"YUV422PACKED" doc:"Video mode"`
	Width      uint32  `json:"width" example:"640" doc:"Frame width"`
	Height     uint32  `json:"height" example:"480" doc:"Frame height"`
	FPS        float64 `json:"fps" example:"30" doc:"Negotiated frame rate, 0 if driver default"`
	Timestamp  string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FormatChangedEvent.
func (e FormatChangedEvent) Type() uint32 { return TypeFormatChanged }

// FeatureDegradedEvent is published once per feature the device lacks.
type FeatureDegradedEvent struct {
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Feature    string `json:"feature" example:"exposure" doc:"Feature that was switched off"`
	Error      string `json:"error,omitempty" doc:"Driver error that triggered it"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FeatureDegradedEvent.
func (e FeatureDegradedEvent) Type() uint32 { return TypeFeatureDegraded }

// RecordingEvent reports the start and end of a recorder session.
type RecordingEvent struct {
	Session   string `json:"session" doc:"Acquisition session identifier"`
	Action    string `json:"action" example:"finished" enum:"started,finished" doc:"Action type"`
	Directory string `json:"directory" doc:"Output directory"`
	Frames    int    `json:"frames" doc:"Frames written"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecordingEvent.
func (e RecordingEvent) Type() uint32 { return TypeRecording }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// AcquisitionMetricsEvent is a periodic throughput sample for one device.
type AcquisitionMetricsEvent struct {
	DevicePath    string  `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	FPS           float64 `json:"fps" example:"29.97" doc:"Measured frame rate over the last sample interval"`
	Frames        uint64  `json:"frames" doc:"Frames delivered since start-up"`
	DequeueErrors uint64  `json:"dequeue_errors" doc:"Stream errors since start-up"`
	Streaming     bool    `json:"streaming" doc:"Whether the device is streaming"`
}

// Type returns the event type identifier for AcquisitionMetricsEvent.
func (e AcquisitionMetricsEvent) Type() uint32 { return TypeAcquisitionMetrics }

// Device actions carried by DeviceEvent.
const (
	DeviceAdded   = "added"
	DeviceRemoved = "removed"
	DeviceChanged = "changed"
)

// DeviceEvent reports a capture device appearing, disappearing or changing.
type DeviceEvent struct {
	Action     string `json:"action" example:"removed" enum:"added,removed,changed" doc:"What happened to the device"`
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	DeviceName string `json:"device_name" doc:"Card name reported by the driver"`
	DeviceID   string `json:"device_id" doc:"Stable identifier from /dev/v4l/by-id or by-path"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceEvent.
func (e DeviceEvent) Type() uint32 { return TypeDevice }
