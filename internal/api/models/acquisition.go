package models

import "github.com/smazurov/framegrab/internal/acquisition"

type StatusData struct {
	Status     acquisition.Status `json:"status" enum:"ready,exposure" example:"exposure" doc:"ready when idle, exposure while acquiring"`
	Acquired   int                `json:"acquired" example:"42" doc:"Frames delivered in the current or last run"`
	FrameCount int                `json:"frame_count" example:"100" doc:"Frames per run, 0 for unbounded"`
	DevicePath string             `json:"device_path" example:"/dev/video0" doc:"Device driven by the engine"`
}

type StatusResponse struct {
	Body StatusData
}

type FrameCountResponse struct {
	Body struct {
		Frames int `json:"frames" example:"100" doc:"Frames per run, 0 for unbounded"`
	}
}

type SetFrameCountRequest struct {
	Body struct {
		Frames int `json:"frames" example:"100" doc:"Frames per run, 0 for unbounded"`
	}
}

type SnapshotRequest struct {
	Format    string `query:"format" default:"jpeg" enum:"jpeg,jpg,png,gif,tif,tiff,bmp" doc:"Image encoding"`
	MaxWidth  int    `query:"max_width" minimum:"0" doc:"Scale down to fit this width, 0 keeps the frame width"`
	MaxHeight int    `query:"max_height" minimum:"0" doc:"Scale down to fit this height, 0 keeps the frame height"`
}

type SnapshotResponse struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// Sink counters
type SinkStats struct {
	Name    string `json:"name" example:"recorder" doc:"Sink name"`
	Sent    uint64 `json:"sent" doc:"Frames handed to the sink"`
	Dropped uint64 `json:"dropped" doc:"Frames dropped because the sink fell behind"`
}

type SinkListResponse struct {
	Body struct {
		Sinks []SinkStats `json:"sinks" doc:"Frame sinks attached to the engine"`
	}
}

type DeviceStatsData struct {
	DevicePath    string  `json:"device_path" doc:"Device node"`
	Frames        uint64  `json:"frames" doc:"Frames delivered since start-up"`
	Bytes         uint64  `json:"bytes" doc:"Payload bytes delivered since start-up"`
	DequeueErrors uint64  `json:"dequeue_errors" doc:"Stream errors since start-up"`
	Runs          uint64  `json:"runs" doc:"Finished acquisition runs"`
	Streaming     bool    `json:"streaming" doc:"Whether the device is streaming"`
	NegotiatedFPS float64 `json:"negotiated_fps" doc:"Frame rate applied by the driver"`
}

type DeviceStatsResponse struct {
	Body DeviceStatsData
}
