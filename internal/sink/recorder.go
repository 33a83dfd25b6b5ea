package sink

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smazurov/framegrab/internal/acquisition"
	"github.com/smazurov/framegrab/internal/events"
	"github.com/smazurov/framegrab/internal/logging"
	"github.com/smazurov/framegrab/internal/metrics"
	"github.com/smazurov/framegrab/pkg/linuxav/v4l2"
)

// ManifestFile is written next to the frames of every recording.
const ManifestFile = "manifest.yaml"

// FramePattern names the raw frame files; the verb is the frame id.
const FramePattern = "frame-%06d.raw"

const recorderSink = "recorder"

// Manifest describes one recorded session. Frames are stored exactly as the
// driver delivered them, one file per frame.
type Manifest struct {
	Session      string    `yaml:"session"`
	Device       string    `yaml:"device,omitempty"`
	Mode         string    `yaml:"mode"`
	PixelFormat  string    `yaml:"pixel_format"`
	Width        uint32    `yaml:"width"`
	Height       uint32    `yaml:"height"`
	BytesPerLine uint32    `yaml:"bytes_per_line"`
	FilePattern  string    `yaml:"file_pattern"`
	Frames       int       `yaml:"frames"`
	Failed       int       `yaml:"failed,omitempty"`
	Started      time.Time `yaml:"started"`
	Finished     time.Time `yaml:"finished,omitempty"`
}

// ReadManifest loads the manifest of the recording in dir.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return m, err
	}
	err = yaml.Unmarshal(data, &m)
	return m, err
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithDevice records the device path in manifests.
func WithDevice(path string) RecorderOption {
	return func(r *Recorder) { r.device = path }
}

// WithRecorderBus publishes RecordingEvents and finishes a recording when
// its acquisition run ends.
func WithRecorderBus(bus *events.Bus) RecorderOption {
	return func(r *Recorder) { r.bus = bus }
}

// WithQueueDepth sets how many frames may wait for the disk.
func WithQueueDepth(n int) RecorderOption {
	return func(r *Recorder) { r.depth = n }
}

// Recorder writes every frame of a session under <root>/<session>/. Writes
// happen on the recorder's own goroutine.
type Recorder struct {
	root   string
	device string
	bus    *events.Bus
	depth  int
	log    *slog.Logger

	in    *Channel
	done  chan struct{}
	unsub func()
}

type recording struct {
	dir      string
	manifest Manifest
}

// NewRecorder creates root if needed and starts the writer.
func NewRecorder(root string, opts ...RecorderOption) (*Recorder, error) {
	r := &Recorder{root: root, depth: 16, log: logging.GetLogger("sink")}
	for _, opt := range opts {
		opt(r)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}
	r.in = NewChannel(recorderSink, r.depth)
	r.done = make(chan struct{})
	if r.bus != nil {
		r.unsub = r.bus.Subscribe(func(ev events.AcquisitionStateEvent) {
			if ev.State == events.StateIdle && ev.Session != "" && (r.device == "" || ev.DevicePath == r.device) {
				r.in.push(acquisition.Frame{ID: -1, Session: ev.Session}, true)
			}
		})
	}
	go r.run()
	return r, nil
}

// OnFrame queues f for writing. A full queue drops the frame.
func (r *Recorder) OnFrame(f acquisition.Frame) bool {
	return r.in.OnFrame(f)
}

// Stats reports queued and dropped frames.
func (r *Recorder) Stats() ChannelStats { return r.in.Stats() }

// Close writes out queued frames, finishes the open recording and stops.
func (r *Recorder) Close() error {
	if r.unsub != nil {
		r.unsub()
	}
	r.in.Close()
	<-r.done
	return nil
}

func (r *Recorder) run() {
	defer close(r.done)
	var cur *recording
	for f := range r.in.Frames() {
		if f.ID < 0 {
			// End-of-run marker from the bus.
			if cur != nil && cur.manifest.Session == f.Session {
				r.finish(cur)
				cur = nil
			}
			continue
		}
		if cur == nil || cur.manifest.Session != f.Session {
			if cur != nil {
				r.finish(cur)
			}
			var err error
			if cur, err = r.begin(f); err != nil {
				r.log.Error("Cannot start recording", "session", f.Session, "error", err)
				metrics.SinkError(recorderSink)
				cur = nil
				continue
			}
		}
		r.write(cur, f)
	}
	if cur != nil {
		r.finish(cur)
	}
}

func (r *Recorder) begin(f acquisition.Frame) (*recording, error) {
	session := f.Session
	if session == "" {
		session = "unnamed"
	}
	started := f.SessionStart
	if started.IsZero() {
		started = time.Now()
	}
	dir := filepath.Join(r.root, session)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	rec := &recording{dir: dir, manifest: Manifest{
		Session:      f.Session,
		Device:       r.device,
		Mode:         f.Mode.String(),
		PixelFormat:  v4l2.FormatFourCC(f.PixelFormat),
		Width:        f.Width,
		Height:       f.Height,
		BytesPerLine: f.BytesPerLine,
		FilePattern:  FramePattern,
		Started:      started.UTC(),
	}}
	if err := rec.save(); err != nil {
		return nil, err
	}
	r.log.Info("Recording started", "session", f.Session, "dir", dir)
	r.bus.Publish(events.RecordingEvent{
		Session:   f.Session,
		Action:    "started",
		Directory: dir,
		Timestamp: events.Now(),
	})
	return rec, nil
}

func (r *Recorder) write(rec *recording, f acquisition.Frame) {
	name := filepath.Join(rec.dir, fmt.Sprintf(FramePattern, f.ID))
	if err := os.WriteFile(name, f.Data, 0o644); err != nil {
		rec.manifest.Failed++
		metrics.SinkError(recorderSink)
		r.log.Warn("Frame write failed", "session", f.Session, "frame_id", f.ID, "error", err)
		return
	}
	rec.manifest.Frames++
}

func (r *Recorder) finish(rec *recording) {
	rec.manifest.Finished = time.Now().UTC()
	if err := rec.save(); err != nil {
		metrics.SinkError(recorderSink)
		r.log.Error("Manifest write failed", "dir", rec.dir, "error", err)
	}
	r.log.Info("Recording finished", "session", rec.manifest.Session, "frames", rec.manifest.Frames, "failed", rec.manifest.Failed)
	r.bus.Publish(events.RecordingEvent{
		Session:   rec.manifest.Session,
		Action:    "finished",
		Directory: rec.dir,
		Frames:    rec.manifest.Frames,
		Timestamp: events.Now(),
	})
}

// save replaces the manifest atomically.
func (rec *recording) save() error {
	data, err := yaml.Marshal(rec.manifest)
	if err != nil {
		return err
	}
	tmp := filepath.Join(rec.dir, "."+ManifestFile)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(rec.dir, ManifestFile))
}
