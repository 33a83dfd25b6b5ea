package api

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/framegrab/internal/acquisition"
	"github.com/smazurov/framegrab/internal/api/models"
	"github.com/smazurov/framegrab/internal/events"
	"github.com/smazurov/framegrab/internal/logging"
	"github.com/smazurov/framegrab/internal/sink"
	"github.com/smazurov/framegrab/internal/version"
	"github.com/smazurov/framegrab/pkg/linuxav/v4l2"
)

const authRealm = `Basic realm="framegrab"`

// Camera is the engine surface the API drives. *acquisition.Engine
// satisfies it.
type Camera interface {
	Path() string
	Info() acquisition.DetectorInfo
	Capabilities() acquisition.Capabilities

	Modes() []acquisition.VideoMode
	Mode() (acquisition.VideoMode, error)
	SetMode(acquisition.VideoMode) error
	Size() (width, height uint32)
	FrameInterval() v4l2.Fract

	ExposureRange() (lo, hi float64)
	Exposure() float64
	SetExposure(seconds float64) error
	AutoExposure() bool
	SetAutoExposure(on bool) error
	Gain() float64
	SetGain(gain float64) error

	TriggerMode() acquisition.TriggerMode
	SetTriggerMode(acquisition.TriggerMode) error
	LatencyTime() float64
	SetLatencyTime(seconds float64) error
	CheckRoi(acquisition.Roi) (acquisition.Roi, error)
	CheckBinning(x, y int) error

	FrameCount() int
	SetFrameCount(n int) error
	Prepare() error
	Start() error
	Stop()
	Status() acquisition.Status
	AcquiredFrameCount() int
}

var _ Camera = (*acquisition.Engine)(nil)

// Snapshots renders the latest frame. *sink.Snapshotter satisfies it.
type Snapshots interface {
	Encode(w io.Writer, format string, maxWidth, maxHeight int) (string, error)
}

// StatsSource reports sink counters. *sink.Channel and *sink.Recorder
// satisfy it.
type StatsSource interface {
	Stats() sink.ChannelStats
}

// Options configures the API server.
type Options struct {
	AuthUsername      string
	AuthPassword      string
	Camera            Camera
	Snapshots         Snapshots
	Sinks             map[string]StatsSource
	EventBus          *events.Bus
	PrometheusHandler http.Handler // Optional Prometheus metrics handler
	// ListDevices enumerates capture devices. Defaults to v4l2.FindDevices.
	ListDevices func() ([]v4l2.DeviceInfo, error)
}

// Server is the HTTP control surface for one acquisition engine.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	camera     Camera
	snapshots  Snapshots
	sinks      map[string]StatsSource
	eventBus   *events.Bus
	devices    func() ([]v4l2.DeviceInfo, error)
	logger     *slog.Logger
}

// basicAuthMiddleware rejects requests without matching credentials. SSE
// clients that cannot set headers may pass base64 "user:pass" in ?auth=.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		encoded := ctx.Query("auth")
		if header := ctx.Header("Authorization"); header != "" {
			const prefix = "Basic "
			if !strings.HasPrefix(header, prefix) {
				s.unauthorized(ctx, "Invalid authentication type")
				return
			}
			encoded = header[len(prefix):]
		}
		if encoded == "" {
			s.unauthorized(ctx, "Authentication required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			s.unauthorized(ctx, "Invalid credentials format", err)
			return
		}
		user, pass, ok := strings.Cut(string(decoded), ":")
		if !ok {
			s.unauthorized(ctx, "Invalid credentials format")
			return
		}
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
		if !userOK || !passOK {
			s.unauthorized(ctx, "Invalid credentials")
			return
		}

		next(ctx)
	}
}

func (s *Server) unauthorized(ctx huma.Context, msg string, errs ...error) {
	ctx.SetHeader("WWW-Authenticate", authRealm)
	_ = huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg, errs...)
}

// NewServer builds the API around opts.Camera.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("framegrab API", version.Get().Version)
	config.Info.Description = "Raw frame acquisition from V4L2 capture devices"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	bus := opts.EventBus
	if bus == nil {
		bus = events.New()
	}
	list := opts.ListDevices
	if list == nil {
		list = v4l2.FindDevices
	}

	server := &Server{
		api:       api,
		mux:       mux,
		camera:    opts.Camera,
		snapshots: opts.Snapshots,
		sinks:     opts.Sinks,
		eventBus:  bus,
		devices:   list,
		logger:    logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GetAPI returns the Huma API instance.
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Stop closes the listener and every open connection, including SSE streams.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(context.Context, *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{Status: "ok", Message: "API is healthy"},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(context.Context, *struct{}) (*models.VersionResponse, error) {
		v := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   v.Version,
				GitCommit: v.GitCommit,
				BuildDate: v.BuildDate,
				BuildID:   v.BuildID,
				GoVersion: v.GoVersion,
				Compiler:  v.Compiler,
				Platform:  v.Platform,
			},
		}, nil
	})

	s.registerDeviceRoutes()
	s.registerCameraRoutes()
	s.registerAcquisitionRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
	s.registerMetricsRoutes()
}

func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
