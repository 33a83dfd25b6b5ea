package models

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/framegrab/internal/acquisition"
)

// ModeName is a video mode as it appears on the wire, e.g. "YUV422PACKED".
type ModeName string

// Schema lists every known mode as an enum.
func (ModeName) Schema(r huma.Registry) *huma.Schema {
	modes := acquisition.AllModes()
	enum := make([]any, 0, len(modes))
	for _, m := range modes {
		enum = append(enum, m.String())
	}
	return &huma.Schema{
		Type:        huma.TypeString,
		Enum:        enum,
		Description: "Pixel layout of delivered frames",
		Examples:    []any{acquisition.YUV422Packed.String()},
	}
}

// Mode converts n to an acquisition mode. Case is ignored.
func (n ModeName) Mode() (acquisition.VideoMode, error) {
	return acquisition.ParseVideoMode(string(n))
}

// ModeNames converts modes for a response body.
func ModeNames(modes []acquisition.VideoMode) []ModeName {
	out := make([]ModeName, len(modes))
	for i, m := range modes {
		out[i] = ModeName(m.String())
	}
	return out
}

type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Health status"`
	Message string `json:"message" example:"API is healthy" doc:"Health message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Device enumeration
type DeviceData struct {
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Device node"`
	DeviceName string `json:"device_name" example:"HD Pro Webcam C920" doc:"Name reported by the driver"`
	DeviceID   string `json:"device_id" example:"usb-046d_HD_Pro_Webcam_C920-video-index0" doc:"Stable identifier"`
	Caps       uint32 `json:"caps" doc:"V4L2 device capability bits"`
	Active     bool   `json:"active" doc:"Whether this is the device the engine is driving"`
}

type DeviceListResponse struct {
	Body struct {
		Devices []DeviceData `json:"devices" doc:"Capture devices found on the system"`
		Count   int          `json:"count" example:"1" doc:"Number of devices"`
	}
}

type LogsResponse struct {
	Body struct {
		Entries []LogEntry `json:"entries" doc:"Newest log entries, oldest first"`
		Count   int        `json:"count" doc:"Number of entries returned"`
	}
}

type LogEntry struct {
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"acquisition" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}
