package acquisition

// DetectorType is reported for every V4L2 device.
const DetectorType = "V4L2"

// Status is the acquisition state reported to clients.
type Status string

// Status values.
const (
	StatusReady    Status = "ready"
	StatusExposure Status = "exposure"
)

// DetectorInfo describes the opened device.
type DetectorInfo struct {
	DevicePath string  `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Model      string  `json:"model" example:"HD Pro Webcam C920" doc:"Card name reported by the driver"`
	Type       string  `json:"type" example:"V4L2" doc:"Detector type"`
	Driver     string  `json:"driver" example:"uvcvideo" doc:"Kernel driver"`
	BusInfo    string  `json:"bus_info" example:"usb-0000:00:14.0-1" doc:"Bus location"`
	MaxWidth   uint32  `json:"max_width" example:"640" doc:"Largest frame width for the current format"`
	MaxHeight  uint32  `json:"max_height" example:"480" doc:"Largest frame height for the current format"`
	PixelSize  float64 `json:"pixel_size" example:"-1" doc:"Pixel pitch in meters, -1 when unknown"`
}

// TriggerMode selects what starts each exposure.
type TriggerMode string

// Trigger modes. Only the internal trigger is implemented.
const (
	TriggerInternal       TriggerMode = "internal"
	TriggerInternalSingle TriggerMode = "internal_single"
	TriggerExternalSingle TriggerMode = "external_single"
	TriggerExternalMulti  TriggerMode = "external_multi"
	TriggerExternalGate   TriggerMode = "external_gate"
)

// CheckTriggerMode reports whether the engine can run in mode m.
func CheckTriggerMode(m TriggerMode) bool {
	return m == TriggerInternal
}

// Roi is a region of interest in sensor pixels. The zero Roi means full
// frame.
type Roi struct {
	X      uint32 `json:"x"`
	Y      uint32 `json:"y"`
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

func (r Roi) isZero() bool {
	return r == Roi{}
}
