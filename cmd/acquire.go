package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/framegrab/internal/acquisition"
	"github.com/smazurov/framegrab/internal/config"
	"github.com/smazurov/framegrab/internal/devices"
	"github.com/smazurov/framegrab/internal/events"
	"github.com/smazurov/framegrab/internal/logging"
	"github.com/smazurov/framegrab/internal/sink"
)

// acquireOptions are resolved flag > FRAMEGRAB_* env > config file.
type acquireOptions struct {
	Config   string
	Device   string        `toml:"camera.device" env:"DEVICE"`
	Mode     string        `toml:"camera.mode" env:"CAMERA_MODE"`
	Frames   int           `toml:"camera.frames" env:"CAMERA_FRAMES"`
	Exposure float64       `toml:"camera.exposure" env:"CAMERA_EXPOSURE"`
	Gain     float64       `toml:"camera.gain" env:"CAMERA_GAIN"`
	Out      string        `toml:"record.dir" env:"RECORD_DIR"`
	Snapshot string        `env:"SNAPSHOT"`
	Timeout  time.Duration `env:"ACQUIRE_TIMEOUT"`
	LogJSON  bool
}

// CreateAcquireCmd runs one bounded acquisition and writes the frames to
// disk.
func CreateAcquireCmd() *cobra.Command {
	opts := &acquireOptions{Gain: -1}

	cmd := &cobra.Command{
		Use:   "acquire [device]",
		Short: "Acquire frames from a device into a recording directory",
		Long: `Opens the device, applies the requested mode and controls, runs one acquisition ` +
			`and records every frame as a raw file next to a manifest.yaml. ` +
			`Interrupting the command stops the run and keeps what was captured.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadConfig(opts, cmd); err != nil {
				return err
			}
			if len(args) == 1 {
				opts.Device = args[0]
			}
			format := "text"
			if opts.LogJSON {
				format = "json"
			}
			logging.Initialize(logging.Config{Level: "info", Format: format})
			return runAcquire(cmd.Context(), cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Config, "config", "c", "config.toml", "Configuration file")
	f.StringVarP(&opts.Device, "device", "d", "/dev/video0", "Video device path or stable ID")
	f.StringVarP(&opts.Mode, "mode", "m", "", "Video mode, e.g. YUV422PACKED (default: device preference)")
	f.IntVarP(&opts.Frames, "frames", "n", 10, "Frames to acquire, 0 until interrupted")
	f.Float64Var(&opts.Exposure, "exposure", 0, "Exposure time in seconds, 0 leaves it unchanged")
	f.Float64Var(&opts.Gain, "gain", -1, "Normalized gain in [0,1], negative leaves it unchanged")
	f.StringVarP(&opts.Out, "out", "o", "recordings", "Recording root directory")
	f.StringVar(&opts.Snapshot, "snapshot", "", "Also save the last frame as an image (extension picks the format)")
	f.DurationVar(&opts.Timeout, "timeout", 0, "Stop the run after this long, 0 for no limit")
	f.BoolVar(&opts.LogJSON, "log-json", false, "Use JSON log format")
	return cmd
}

func runAcquire(ctx context.Context, cmd *cobra.Command, opts *acquireOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	path, err := devices.ResolveDevicePath(opts.Device)
	if err != nil {
		return err
	}
	logger := logging.GetLogger("cli").With("device", path)
	bus := events.New()

	eng, err := acquisition.Open(path, acquisition.WithLogger(logging.GetLogger("acquisition")), acquisition.WithEventBus(bus))
	if err != nil {
		return err
	}
	defer eng.Close()

	settings := config.CameraSettings{Mode: opts.Mode, Frames: &opts.Frames}
	if opts.Exposure > 0 {
		settings.Exposure = &opts.Exposure
	}
	if opts.Gain >= 0 {
		settings.Gain = &opts.Gain
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := ApplyCameraSettings(eng, settings, true, logger); err != nil {
		return err
	}

	rec, err := sink.NewRecorder(opts.Out, sink.WithDevice(eng.Path()), sink.WithRecorderBus(bus))
	if err != nil {
		return err
	}
	finished := make(chan events.RecordingEvent, 1)
	unsub := bus.Subscribe(func(ev events.RecordingEvent) {
		if ev.Action == "finished" {
			select {
			case finished <- ev:
			default:
			}
		}
	})
	defer unsub()

	handlers := sink.Chain{rec}
	var snaps *sink.Snapshotter
	if opts.Snapshot != "" {
		snaps = sink.NewSnapshotter(1)
		handlers = append(handlers, snaps)
	}
	eng.SetFrameHandler(handlers)

	if err := eng.Prepare(); err != nil {
		return err
	}
	if err := eng.Start(); err != nil {
		return err
	}
	w, h := eng.Size()
	mode, _ := eng.Mode()
	logger.Info("Acquisition started", "mode", mode, "width", w, "height", h, "frames", opts.Frames)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, opts.Timeout)
		defer cancel()
	}

	if err := eng.WaitIdle(runCtx); err != nil {
		logger.Info("Stopping acquisition", "reason", err)
		eng.Stop()
		if err := eng.WaitIdle(context.Background()); err != nil {
			return err
		}
	}
	if err := rec.Close(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if eng.AcquiredFrameCount() == 0 {
		fmt.Fprintln(out, "No frames recorded")
	} else {
		select {
		case ev := <-finished:
			fmt.Fprintf(out, "Recorded %d frames to %s\n", ev.Frames, ev.Directory)
		case <-time.After(2 * time.Second):
			logger.Warn("Recorder did not report completion")
		}
	}
	st := rec.Stats()
	if st.Dropped > 0 {
		logger.Warn("Recorder fell behind", "dropped", st.Dropped)
	}

	if snaps != nil {
		if err := snaps.Save(opts.Snapshot, 0, 0); err != nil {
			if errors.Is(err, sink.ErrNoFrame) {
				logger.Warn("No frame for snapshot")
				return nil
			}
			return err
		}
		fmt.Fprintf(out, "Saved snapshot to %s\n", opts.Snapshot)
	}
	return nil
}
