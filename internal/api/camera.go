package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/framegrab/internal/acquisition"
	"github.com/smazurov/framegrab/internal/api/models"
	"github.com/smazurov/framegrab/pkg/linuxav/v4l2"
)

var allTriggerModes = []acquisition.TriggerMode{
	acquisition.TriggerInternal,
	acquisition.TriggerInternalSingle,
	acquisition.TriggerExternalSingle,
	acquisition.TriggerExternalMulti,
	acquisition.TriggerExternalGate,
}

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "Enumerate V4L2 capture devices on this host",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(context.Context, *struct{}) (*models.DeviceListResponse, error) {
		found, err := s.devices()
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to enumerate devices", err)
		}
		resp := &models.DeviceListResponse{}
		resp.Body.Devices = make([]models.DeviceData, 0, len(found))
		for _, d := range found {
			resp.Body.Devices = append(resp.Body.Devices, models.DeviceData{
				DevicePath: d.DevicePath,
				DeviceName: d.DeviceName,
				DeviceID:   d.DeviceID,
				Caps:       d.Caps,
				Active:     d.DevicePath == s.camera.Path(),
			})
		}
		resp.Body.Count = len(resp.Body.Devices)
		return resp, nil
	})
}

func (s *Server) registerCameraRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-info",
		Method:      http.MethodGet,
		Path:        "/api/camera",
		Summary:     "Detector Info",
		Description: "Model, driver and maximum image size of the open device",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(context.Context, *struct{}) (*models.InfoResponse, error) {
		return &models.InfoResponse{Body: s.camera.Info()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-capabilities",
		Method:      http.MethodGet,
		Path:        "/api/camera/capabilities",
		Summary:     "Capabilities",
		Description: "Optional controls the device turned out to support",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(context.Context, *struct{}) (*models.CapabilitiesResponse, error) {
		return &models.CapabilitiesResponse{Body: s.camera.Capabilities()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-modes",
		Method:      http.MethodGet,
		Path:        "/api/camera/modes",
		Summary:     "List Modes",
		Description: "Video modes the device can deliver",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(context.Context, *struct{}) (*models.ModeListResponse, error) {
		current, err := s.camera.Mode()
		if err != nil {
			return nil, mapAcquisitionError(err)
		}
		resp := &models.ModeListResponse{}
		resp.Body.Modes = models.ModeNames(s.camera.Modes())
		resp.Body.Current = models.ModeName(current.String())
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-format",
		Method:      http.MethodGet,
		Path:        "/api/camera/format",
		Summary:     "Get Format",
		Description: "Current mode, frame size and negotiated frame interval",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(context.Context, *struct{}) (*models.FormatResponse, error) {
		return s.format()
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-format",
		Method:      http.MethodPut,
		Path:        "/api/camera/format",
		Summary:     "Set Format",
		Description: "Apply a video mode. Rejected while acquiring.",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 409, 500, 501},
	}, func(_ context.Context, input *models.SetModeRequest) (*models.FormatResponse, error) {
		m, err := input.Body.Mode.Mode()
		if err != nil {
			return nil, mapAcquisitionError(err)
		}
		if err := s.camera.SetMode(m); err != nil {
			return nil, mapAcquisitionError(err)
		}
		return s.format()
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-exposure",
		Method:      http.MethodGet,
		Path:        "/api/camera/exposure",
		Summary:     "Get Exposure",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(context.Context, *struct{}) (*models.ExposureResponse, error) {
		return s.exposure(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-exposure",
		Method:      http.MethodPut,
		Path:        "/api/camera/exposure",
		Summary:     "Set Exposure",
		Description: "Set the exposure time in seconds. Values outside the device range are clamped.",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 500},
	}, func(_ context.Context, input *models.SetExposureRequest) (*models.ExposureResponse, error) {
		if err := s.camera.SetExposure(input.Body.Seconds); err != nil {
			return nil, mapAcquisitionError(err)
		}
		return s.exposure(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-auto-exposure",
		Method:      http.MethodPut,
		Path:        "/api/camera/auto-exposure",
		Summary:     "Set Auto Exposure",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(_ context.Context, input *models.SetAutoExposureRequest) (*models.ExposureResponse, error) {
		if err := s.camera.SetAutoExposure(input.Body.Enabled); err != nil {
			return nil, mapAcquisitionError(err)
		}
		return s.exposure(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-gain",
		Method:      http.MethodGet,
		Path:        "/api/camera/gain",
		Summary:     "Get Gain",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(context.Context, *struct{}) (*models.GainResponse, error) {
		return s.gain(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-gain",
		Method:      http.MethodPut,
		Path:        "/api/camera/gain",
		Summary:     "Set Gain",
		Description: "Set the normalized gain in [0,1]",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 500},
	}, func(_ context.Context, input *models.SetGainRequest) (*models.GainResponse, error) {
		if err := s.camera.SetGain(input.Body.Gain); err != nil {
			return nil, mapAcquisitionError(err)
		}
		return s.gain(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-trigger",
		Method:      http.MethodGet,
		Path:        "/api/camera/trigger",
		Summary:     "Get Trigger Mode",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(context.Context, *struct{}) (*models.TriggerResponse, error) {
		return s.trigger(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-trigger",
		Method:      http.MethodPut,
		Path:        "/api/camera/trigger",
		Summary:     "Set Trigger Mode",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401, 501},
	}, func(_ context.Context, input *models.SetTriggerRequest) (*models.TriggerResponse, error) {
		if err := s.camera.SetTriggerMode(input.Body.Mode); err != nil {
			return nil, mapAcquisitionError(err)
		}
		return s.trigger(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-latency",
		Method:      http.MethodGet,
		Path:        "/api/camera/latency",
		Summary:     "Get Latency Time",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(context.Context, *struct{}) (*models.LatencyResponse, error) {
		resp := &models.LatencyResponse{}
		resp.Body.Seconds = s.camera.LatencyTime()
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-latency",
		Method:      http.MethodPut,
		Path:        "/api/camera/latency",
		Summary:     "Set Latency Time",
		Description: "Accepted for compatibility. The engine always runs without added latency.",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{400, 401},
	}, func(_ context.Context, input *models.SetLatencyRequest) (*models.LatencyResponse, error) {
		if err := s.camera.SetLatencyTime(input.Body.Seconds); err != nil {
			return nil, mapAcquisitionError(err)
		}
		resp := &models.LatencyResponse{}
		resp.Body.Seconds = s.camera.LatencyTime()
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "check-roi",
		Method:      http.MethodPost,
		Path:        "/api/camera/roi/check",
		Summary:     "Check ROI",
		Description: "Returns the region the device would use. Only full frame is supported.",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401, 501},
	}, func(_ context.Context, input *models.RoiRequest) (*models.RoiResponse, error) {
		r, err := s.camera.CheckRoi(input.Body)
		if err != nil {
			return nil, mapAcquisitionError(err)
		}
		return &models.RoiResponse{Body: r}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "check-binning",
		Method:      http.MethodPost,
		Path:        "/api/camera/binning/check",
		Summary:     "Check Binning",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401, 501},
	}, func(_ context.Context, input *models.BinningRequest) (*struct{}, error) {
		if err := s.camera.CheckBinning(input.Body.X, input.Body.Y); err != nil {
			return nil, mapAcquisitionError(err)
		}
		return nil, nil
	})
}

func (s *Server) format() (*models.FormatResponse, error) {
	m, err := s.camera.Mode()
	if err != nil {
		return nil, mapAcquisitionError(err)
	}
	w, h := s.camera.Size()
	ival := s.camera.FrameInterval()
	resp := &models.FormatResponse{
		Body: models.FormatData{
			Mode:   models.ModeName(m.String()),
			Width:  w,
			Height: h,
			FPS:    ival.FPS(),
		},
	}
	if ival.Denominator != 0 {
		resp.Body.Interval = ival.String()
	}
	if code, err := acquisition.CodeForMode(m); err == nil {
		resp.Body.PixelFormat = v4l2.FormatFourCC(code)
	}
	return resp, nil
}

func (s *Server) exposure() *models.ExposureResponse {
	lo, hi := s.camera.ExposureRange()
	return &models.ExposureResponse{
		Body: models.ExposureData{
			Seconds:      s.camera.Exposure(),
			Min:          lo,
			Max:          hi,
			AutoExposure: s.camera.AutoExposure(),
			Supported:    s.camera.Capabilities().Exposure,
		},
	}
}

func (s *Server) gain() *models.GainResponse {
	return &models.GainResponse{
		Body: models.GainData{
			Gain:      s.camera.Gain(),
			Supported: s.camera.Capabilities().Gain,
		},
	}
}

func (s *Server) trigger() *models.TriggerResponse {
	resp := &models.TriggerResponse{
		Body: models.TriggerData{Mode: s.camera.TriggerMode()},
	}
	for _, m := range allTriggerModes {
		if acquisition.CheckTriggerMode(m) {
			resp.Body.Supported = append(resp.Body.Supported, string(m))
		}
	}
	return resp
}
