package api

import (
	"bytes"
	"context"
	"net/http"
	"sort"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/framegrab/internal/api/models"
	"github.com/smazurov/framegrab/internal/metrics"
)

func (s *Server) registerAcquisitionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/acquisition",
		Summary:     "Acquisition Status",
		Description: "Whether a run is in progress and how many frames it delivered",
		Tags:        []string{"acquisition"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(context.Context, *struct{}) (*models.StatusResponse, error) {
		return s.status(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-frame-count",
		Method:      http.MethodGet,
		Path:        "/api/acquisition/frames",
		Summary:     "Get Frame Count",
		Tags:        []string{"acquisition"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(context.Context, *struct{}) (*models.FrameCountResponse, error) {
		resp := &models.FrameCountResponse{}
		resp.Body.Frames = s.camera.FrameCount()
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-frame-count",
		Method:      http.MethodPut,
		Path:        "/api/acquisition/frames",
		Summary:     "Set Frame Count",
		Description: "Frames per run; 0 runs until stopped",
		Tags:        []string{"acquisition"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 409},
	}, func(_ context.Context, input *models.SetFrameCountRequest) (*models.FrameCountResponse, error) {
		if err := s.camera.SetFrameCount(input.Body.Frames); err != nil {
			return nil, mapAcquisitionError(err)
		}
		resp := &models.FrameCountResponse{}
		resp.Body.Frames = s.camera.FrameCount()
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "prepare-acquisition",
		Method:      http.MethodPost,
		Path:        "/api/acquisition/prepare",
		Summary:     "Prepare",
		Description: "Allocate and queue capture buffers for the next run",
		Tags:        []string{"acquisition"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500},
	}, func(context.Context, *struct{}) (*models.StatusResponse, error) {
		if err := s.camera.Prepare(); err != nil {
			return nil, mapAcquisitionError(err)
		}
		return s.status(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-acquisition",
		Method:      http.MethodPost,
		Path:        "/api/acquisition/start",
		Summary:     "Start",
		Description: "Start streaming a prepared run",
		Tags:        []string{"acquisition"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 409, 500},
	}, func(context.Context, *struct{}) (*models.StatusResponse, error) {
		if err := s.camera.Start(); err != nil {
			return nil, mapAcquisitionError(err)
		}
		return s.status(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-acquisition",
		Method:      http.MethodPost,
		Path:        "/api/acquisition/stop",
		Summary:     "Stop",
		Description: "Ask the current run to end. Returns before the run has fully stopped.",
		Tags:        []string{"acquisition"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(context.Context, *struct{}) (*models.StatusResponse, error) {
		s.camera.Stop()
		return s.status(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-snapshot",
		Method:      http.MethodGet,
		Path:        "/api/acquisition/snapshot",
		Summary:     "Snapshot",
		Description: "Latest acquired frame rendered as an image",
		Tags:        []string{"acquisition"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 500, 501},
	}, func(_ context.Context, input *models.SnapshotRequest) (*models.SnapshotResponse, error) {
		if s.snapshots == nil {
			return nil, huma.Error501NotImplemented("snapshots are disabled")
		}
		var buf bytes.Buffer
		ct, err := s.snapshots.Encode(&buf, input.Format, input.MaxWidth, input.MaxHeight)
		if err != nil {
			return nil, mapAcquisitionError(err)
		}
		return &models.SnapshotResponse{ContentType: ct, Body: buf.Bytes()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-sinks",
		Method:      http.MethodGet,
		Path:        "/api/acquisition/sinks",
		Summary:     "Sink Counters",
		Description: "Frames handed to and dropped by each attached sink",
		Tags:        []string{"acquisition"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(context.Context, *struct{}) (*models.SinkListResponse, error) {
		resp := &models.SinkListResponse{}
		resp.Body.Sinks = make([]models.SinkStats, 0, len(s.sinks))
		for name, src := range s.sinks {
			st := src.Stats()
			resp.Body.Sinks = append(resp.Body.Sinks, models.SinkStats{Name: name, Sent: st.Sent, Dropped: st.Dropped})
		}
		sort.Slice(resp.Body.Sinks, func(i, j int) bool { return resp.Body.Sinks[i].Name < resp.Body.Sinks[j].Name })
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-device-stats",
		Method:      http.MethodGet,
		Path:        "/api/acquisition/stats",
		Summary:     "Device Counters",
		Description: "Totals since start-up for the engine's device",
		Tags:        []string{"acquisition"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(context.Context, *struct{}) (*models.DeviceStatsResponse, error) {
		path := s.camera.Path()
		resp := &models.DeviceStatsResponse{Body: models.DeviceStatsData{DevicePath: path}}
		if st := metrics.GetDeviceStats(path); st != nil {
			resp.Body.Frames = st.Frames
			resp.Body.Bytes = st.Bytes
			resp.Body.DequeueErrors = st.DequeueErrors
			resp.Body.Runs = st.Runs
			resp.Body.Streaming = st.Streaming
			resp.Body.NegotiatedFPS = st.NegotiatedFPS
		}
		return resp, nil
	})
}

func (s *Server) status() *models.StatusResponse {
	return &models.StatusResponse{
		Body: models.StatusData{
			Status:     s.camera.Status(),
			Acquired:   s.camera.AcquiredFrameCount(),
			FrameCount: s.camera.FrameCount(),
			DevicePath: s.camera.Path(),
		},
	}
}
