package models

import "github.com/smazurov/framegrab/internal/acquisition"

type InfoResponse struct {
	Body acquisition.DetectorInfo
}

type CapabilitiesResponse struct {
	Body acquisition.Capabilities
}

type ModeListResponse struct {
	Body struct {
		Modes   []ModeName `json:"modes" doc:"Modes the device can deliver, in preference order"`
		Current ModeName   `json:"current" doc:"Mode currently applied"`
	}
}

// Current format
type FormatData struct {
	Mode        ModeName `json:"mode" doc:"Current video mode"`
	Width       uint32   `json:"width" example:"640" doc:"Frame width in pixels"`
	Height      uint32   `json:"height" example:"480" doc:"Frame height in pixels"`
	FPS         float64  `json:"fps" example:"30" doc:"Negotiated frame rate, 0 when left at the driver default"`
	Interval    string   `json:"interval" example:"1/30" doc:"Negotiated frame interval"`
	PixelFormat string   `json:"pixel_format,omitempty" example:"YUYV" doc:"Device FourCC"`
}

type FormatResponse struct {
	Body FormatData
}

type SetModeRequest struct {
	Body struct {
		Mode ModeName `json:"mode" doc:"Video mode to apply"`
	}
}

// Exposure and gain
type ExposureData struct {
	Seconds      float64 `json:"seconds" example:"0.01" doc:"Exposure time in seconds"`
	Min          float64 `json:"min" example:"0.0001" doc:"Shortest supported exposure"`
	Max          float64 `json:"max" example:"0.5" doc:"Longest supported exposure"`
	AutoExposure bool    `json:"auto_exposure" doc:"Automatic exposure enabled"`
	Supported    bool    `json:"supported" doc:"Absolute exposure control is available"`
}

type ExposureResponse struct {
	Body ExposureData
}

type SetExposureRequest struct {
	Body struct {
		Seconds float64 `json:"seconds" exclusiveMinimum:"0" example:"0.01" doc:"Exposure time in seconds"`
	}
}

type SetAutoExposureRequest struct {
	Body struct {
		Enabled bool `json:"enabled" doc:"Enable automatic exposure"`
	}
}

type GainData struct {
	Gain      float64 `json:"gain" minimum:"0" maximum:"1" example:"0.5" doc:"Normalized gain"`
	Supported bool    `json:"supported" doc:"Gain control is available"`
}

type GainResponse struct {
	Body GainData
}

type SetGainRequest struct {
	Body struct {
		Gain float64 `json:"gain" example:"0.5" doc:"Normalized gain in [0,1]"`
	}
}

// Trigger, latency and region of interest
type TriggerData struct {
	Mode      acquisition.TriggerMode `json:"mode" example:"internal" doc:"Current trigger mode"`
	Supported []string                `json:"supported" doc:"Trigger modes the engine can run in"`
}

type TriggerResponse struct {
	Body TriggerData
}

type SetTriggerRequest struct {
	Body struct {
		Mode acquisition.TriggerMode `json:"mode" enum:"internal,internal_single,external_single,external_multi,external_gate" doc:"Trigger mode"`
	}
}

type LatencyResponse struct {
	Body struct {
		Seconds float64 `json:"seconds" doc:"Latency between frames in seconds"`
	}
}

type SetLatencyRequest struct {
	Body struct {
		Seconds float64 `json:"seconds" minimum:"0" doc:"Latency between frames in seconds"`
	}
}

type RoiRequest struct {
	Body acquisition.Roi
}

type RoiResponse struct {
	Body acquisition.Roi
}

type BinningRequest struct {
	Body struct {
		X int `json:"x" example:"1" doc:"Horizontal binning factor"`
		Y int `json:"y" example:"1" doc:"Vertical binning factor"`
	}
}
