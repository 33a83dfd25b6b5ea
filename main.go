package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/framegrab/cmd"
	"github.com/smazurov/framegrab/internal/acquisition"
	"github.com/smazurov/framegrab/internal/api"
	"github.com/smazurov/framegrab/internal/config"
	"github.com/smazurov/framegrab/internal/devices"
	"github.com/smazurov/framegrab/internal/events"
	"github.com/smazurov/framegrab/internal/led"
	"github.com/smazurov/framegrab/internal/logging"
	"github.com/smazurov/framegrab/internal/metrics"
	"github.com/smazurov/framegrab/internal/metrics/exporters"
	"github.com/smazurov/framegrab/internal/sink"
	"github.com/smazurov/framegrab/internal/systemd"
	"github.com/smazurov/framegrab/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Camera settings
	Device string `help:"Video device path or stable ID from /dev/v4l/by-id" short:"d" default:"/dev/video0" toml:"camera.device" env:"DEVICE"`

	// Tally LED under /sys/class/leds, empty picks the board default
	LED string `help:"Tally LED name, 'none' disables it" default:"" toml:"camera.led" env:"LED"`

	// Sinks
	RecordDir     string `help:"Record every run below this directory, empty disables recording" default:"" toml:"record.dir" env:"RECORD_DIR"`
	RecordQueue   int    `help:"Frames buffered for the recorder" default:"16" toml:"record.queue" env:"RECORD_QUEUE"`
	SnapshotEvery int    `help:"Keep every nth frame for snapshots, 0 disables snapshots" default:"1" toml:"snapshot.every" env:"SNAPSHOT_EVERY"`

	// Observability settings
	MetricsPrometheus bool `help:"Serve Prometheus metrics on /metrics" default:"true" toml:"metrics.prometheus_enabled" env:"METRICS_PROMETHEUS"`
	MetricsSSE        bool `help:"Publish throughput samples on /api/metrics" default:"true" toml:"metrics.sse_enabled" env:"METRICS_SSE"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel       string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat      string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingAcquisition string `help:"Acquisition engine logging level" default:"" toml:"logging.acquisition" env:"LOGGING_ACQUISITION"`
	LoggingSink        string `help:"Recorder and snapshot logging level" default:"" toml:"logging.sink" env:"LOGGING_SINK"`
	LoggingAPI         string `help:"API logging level" default:"" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP        string `help:"HTTP request logging level" default:"" toml:"logging.http" env:"LOGGING_HTTP"`
}

func (o *Options) moduleLevels() map[string]string {
	modules := map[string]string{}
	for name, level := range map[string]string{
		"acquisition": o.LoggingAcquisition,
		"sink":        o.LoggingSink,
		"api":         o.LoggingAPI,
		"http":        o.LoggingHTTP,
	} {
		if level != "" {
			modules[name] = level
		}
	}
	return modules
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			logging.GetLogger("main").Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:   opts.LoggingLevel,
			Format:  opts.LoggingFormat,
			Modules: opts.moduleLevels(),
		})
		logger := logging.GetLogger("main")
		logger.Info("Starting", "version", version.String(), "device", opts.Device)

		eventBus := events.New()

		// Forward log records to SSE clients.
		var logSeq atomic.Uint64
		logging.OnEntry(func(e logging.Entry) {
			eventBus.Publish(events.LogEntryEvent{
				Seq:        logSeq.Add(1),
				Timestamp:  e.Time.Format(time.RFC3339Nano),
				Level:      e.Level,
				Module:     e.Module,
				Message:    e.Message,
				Attributes: e.Attrs,
			})
		})

		devicePath, err := devices.ResolveDevicePath(opts.Device)
		if err != nil {
			logger.Error("Failed to resolve device", "device", opts.Device, "error", err)
			os.Exit(1)
		}
		engine, err := acquisition.Open(devicePath,
			acquisition.WithLogger(logging.GetLogger("acquisition")),
			acquisition.WithEventBus(eventBus),
		)
		if err != nil {
			logger.Error("Failed to open device", "device", devicePath, "error", err)
			os.Exit(1)
		}

		settings, err := config.LoadSettings(opts.Config)
		if err != nil {
			logger.Warn("Ignoring invalid camera settings", "config", opts.Config, "error", err)
		} else if err := cmd.ApplyCameraSettings(engine, settings.Camera, true, logger); err != nil {
			logger.Warn("Some camera settings were not applied", "error", err)
		}

		var handlers sink.Chain
		sinks := map[string]api.StatsSource{}
		var snapshots *sink.Snapshotter
		if opts.SnapshotEvery > 0 {
			snapshots = sink.NewSnapshotter(opts.SnapshotEvery)
			handlers = append(handlers, snapshots)
		}
		var recorder *sink.Recorder
		if opts.RecordDir != "" {
			recorder, err = sink.NewRecorder(opts.RecordDir,
				sink.WithDevice(engine.Path()),
				sink.WithRecorderBus(eventBus),
				sink.WithQueueDepth(opts.RecordQueue),
			)
			if err != nil {
				logger.Error("Failed to create recorder", "dir", opts.RecordDir, "error", err)
				os.Exit(1)
			}
			handlers = append(handlers, recorder)
			sinks["recorder"] = recorder
		}
		engine.SetFrameHandler(handlers)

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Camera:       engine,
			Sinks:        sinks,
			EventBus:     eventBus,
		}
		if snapshots != nil {
			apiOpts.Snapshots = snapshots
		}
		if opts.MetricsPrometheus {
			apiOpts.PrometheusHandler = exporters.HTTPHandler()
		}
		server := api.NewServer(apiOpts)

		var sseExporter *exporters.SSEExporter
		if opts.MetricsSSE {
			sseExporter = exporters.NewSSEExporter(eventBus)
		}

		monitor := devices.NewMonitor(eventBus, logging.GetLogger("devices"))
		eventBus.Subscribe(func(ev events.DeviceEvent) {
			if ev.Action == events.DeviceRemoved && ev.DevicePath == engine.Path() {
				logger.Error("Capture device unplugged, stopping acquisition", "device", ev.DevicePath)
				engine.Stop()
			}
		})

		tally := led.NewTally(led.New(opts.LED, logging.GetLogger("led")), eventBus, engine.Path(), logging.GetLogger("led"))

		notifier := systemd.NewNotifier(logging.GetLogger("systemd"))

		watcher := config.NewWatcher(opts.Config, config.LoadSettings, logging.GetLogger("config"))
		watcher.OnReload(func(s config.Settings) {
			notifier.Reloading()
			if err := cmd.ApplyCameraSettings(engine, s.Camera, false, logger); err != nil {
				logger.Warn("Some camera settings were not applied", "error", err)
			}
			logging.SetLevels(s.Logging.Level, s.Logging.Modules)
			notifier.Ready()
		})

		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			if err := watcher.Start(ctx); err != nil {
				logger.Warn("Failed to start config watcher, hot-reload disabled", "error", err)
			}
			if sseExporter != nil {
				sseExporter.Start(ctx)
			}
			tally.Start()
			go func() {
				if err := monitor.Run(ctx, devices.NetlinkSource); err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("Device monitor stopped, hotplug events disabled", "error", err)
				}
			}()

			// A wedged acquisition goroutine stops the watchdog pings.
			notifier.StartWatchdog(ctx, func() bool {
				st := metrics.GetDeviceStats(engine.Path())
				return st == nil || !st.Streaming || engine.Status() == acquisition.StatusExposure
			})
			notifier.Ready()
			notifier.Status("serving %s on %s", engine.Path(), opts.Port)

			if err := server.Start(opts.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			notifier.Stopping()
			cancel()

			if err := server.Stop(); err != nil {
				logger.Error("Error stopping HTTP server", "error", err)
			}
			if err := watcher.Stop(); err != nil {
				logger.Warn("Error stopping config watcher", "error", err)
			}
			if sseExporter != nil {
				sseExporter.Stop()
			}

			engine.Stop()
			waitCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			if err := engine.WaitIdle(waitCtx); err != nil {
				logger.Warn("Acquisition did not stop in time", "error", err)
			}
			done()
			if err := engine.Close(); err != nil {
				logger.Error("Error closing device", "error", err)
			}
			tally.Stop()
			if recorder != nil {
				if err := recorder.Close(); err != nil {
					logger.Error("Error closing recorder", "error", err)
				}
			}
			metrics.DeleteDevice(engine.Path())
		})
	})

	cli.Root().Version = version.String()
	cli.Root().AddCommand(cmd.CreateDevicesCmd())
	cli.Root().AddCommand(cmd.CreateModesCmd())
	cli.Root().AddCommand(cmd.CreateAcquireCmd())

	cli.Run()
}
