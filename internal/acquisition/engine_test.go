package acquisition

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/smazurov/framegrab/internal/events"
	"github.com/smazurov/framegrab/pkg/linuxav/v4l2"
)

func newTestEngine(t *testing.T, dev *fakeDevice, opts ...Option) *Engine {
	t.Helper()
	e, err := New(dev, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func waitIdle(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
}

// recorder collects delivered frame ids.
type recorder struct {
	mu   sync.Mutex
	ids  []int
	stop int
}

func (r *recorder) OnFrame(f Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, f.ID)
	return r.stop < 0 || f.ID != r.stop
}

func (r *recorder) frames() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ids...)
}

func TestNew_SelectsPreferredMode(t *testing.T) {
	dev := newFakeDevice(t, v4l2.PixFmtYUYV, v4l2.PixFmtGREY, v4l2.PixFmtSBGGR8)
	e := newTestEngine(t, dev)

	mode, err := e.Mode()
	if err != nil {
		t.Fatalf("Mode() error = %v", err)
	}
	if mode != BayerBG8 {
		t.Errorf("Mode() = %s, want %s", mode, BayerBG8)
	}
	if got, want := e.Modes(), []VideoMode{YUV422Packed, Y8, BayerBG8}; !equalModes(got, want) {
		t.Errorf("Modes() = %v, want %v", got, want)
	}
	if dev.maps != ringSize {
		t.Errorf("mapped %d buffers, want %d", dev.maps, ringSize)
	}
	if e.Status() != StatusReady {
		t.Errorf("Status() = %s, want ready", e.Status())
	}
	info := e.Info()
	if info.Model != "Fake Camera" || info.Type != DetectorType || info.PixelSize != -1 {
		t.Errorf("Info() = %+v", info)
	}
	if w, h := e.Size(); w != 8 || h != 4 {
		t.Errorf("Size() = %dx%d, want 8x4", w, h)
	}
}

func equalModes(a, b []VideoMode) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNew_Rejects(t *testing.T) {
	t.Run("not a capture device", func(t *testing.T) {
		dev := newFakeDevice(t, v4l2.PixFmtGREY)
		dev.caps.Capabilities = v4l2.CapStreaming
		if _, err := New(dev); !errors.Is(err, ErrHardware) {
			t.Errorf("New() error = %v, want hardware error", err)
		}
	})
	t.Run("no streaming", func(t *testing.T) {
		dev := newFakeDevice(t, v4l2.PixFmtGREY)
		dev.caps.Capabilities = v4l2.CapVideoCapture
		if _, err := New(dev); !errors.Is(err, ErrHardware) {
			t.Errorf("New() error = %v, want hardware error", err)
		}
	})
	t.Run("no supported mode", func(t *testing.T) {
		dev := newFakeDevice(t, v4l2.PixFmtMJPEG)
		if _, err := New(dev); !errors.Is(err, ErrHardware) {
			t.Errorf("New() error = %v, want hardware error", err)
		}
	})
}

func TestEngine_BoundedRun(t *testing.T) {
	dev := newFakeDevice(t, v4l2.PixFmtGREY)
	rec := &recorder{stop: -1}
	e := newTestEngine(t, dev, WithFrameHandler(rec))

	if err := e.SetFrameCount(5); err != nil {
		t.Fatalf("SetFrameCount() error = %v", err)
	}
	if err := e.Prepare(); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitIdle(t, e)

	if got := rec.frames(); !equalInts(got, []int{0, 1, 2, 3, 4}) {
		t.Errorf("frames = %v, want [0 1 2 3 4]", got)
	}
	if n := e.AcquiredFrameCount(); n != 5 {
		t.Errorf("AcquiredFrameCount() = %d, want 5", n)
	}
	if e.Status() != StatusReady {
		t.Errorf("Status() = %s after run", e.Status())
	}
	if _, offs, _ := dev.stats(); offs != 1 {
		t.Errorf("stream off called %d times, want 1", offs)
	}
	if e.ring.anyQueued() {
		t.Error("buffers still queued after run")
	}

	// A new run needs a new Prepare.
	if err := e.Start(); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Start() without Prepare error = %v, want invalid value", err)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEngine_FrameMetadata(t *testing.T) {
	dev := newFakeDevice(t, v4l2.PixFmtGREY)
	got := make(chan Frame, 1)
	before := time.Now()
	e := newTestEngine(t, dev, WithFrameHandler(FrameHandlerFunc(func(f Frame) bool {
		got <- Frame{ID: f.ID, Session: f.Session, SessionStart: f.SessionStart, Width: f.Width, Height: f.Height, Mode: f.Mode, Sequence: f.Sequence, Data: append([]byte(nil), f.Data...)}
		return false
	})))

	if err := e.Prepare(); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, e)

	f := <-got
	if f.ID != 0 || f.Width != 8 || f.Height != 4 || f.Mode != Y8 || f.Sequence != 1 {
		t.Errorf("frame = %+v", f)
	}
	if len(f.Data) != 32 {
		t.Errorf("len(Data) = %d, want 32", len(f.Data))
	}
	if f.Session == "" {
		t.Error("frame has no session id")
	}
	if f.SessionStart.Before(before) || f.SessionStart.After(time.Now()) {
		t.Errorf("SessionStart = %v, want the time Start was called", f.SessionStart)
	}
}

func TestEngine_HandlerEndsRun(t *testing.T) {
	dev := newFakeDevice(t, v4l2.PixFmtGREY)
	rec := &recorder{stop: 2}
	e := newTestEngine(t, dev, WithFrameHandler(rec))

	if err := e.Prepare(); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, e)

	if got := rec.frames(); !equalInts(got, []int{0, 1, 2}) {
		t.Errorf("frames = %v, want [0 1 2]", got)
	}
	if e.Status() != StatusReady {
		t.Errorf("Status() = %s", e.Status())
	}
}

func TestEngine_StopFromHandler(t *testing.T) {
	dev := newFakeDevice(t, v4l2.PixFmtGREY)
	var e *Engine
	var mu sync.Mutex
	count := 0
	e = newTestEngine(t, dev, WithFrameHandler(FrameHandlerFunc(func(Frame) bool {
		mu.Lock()
		count++
		mu.Unlock()
		e.Stop()
		return true
	})))

	if err := e.Prepare(); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, e)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("handler called %d times after Stop, want 1", count)
	}
}

func TestEngine_StopWhileWaiting(t *testing.T) {
	dev := newFakeDevice(t, v4l2.PixFmtGREY)
	dev.autoFill = false
	rec := &recorder{stop: -1}
	e := newTestEngine(t, dev, WithFrameHandler(rec))

	if err := e.Prepare(); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	if e.Status() != StatusExposure {
		t.Errorf("Status() = %s while acquiring, want exposure", e.Status())
	}
	time.Sleep(20 * time.Millisecond)

	e.Stop()
	waitIdle(t, e)

	if got := rec.frames(); len(got) != 0 {
		t.Errorf("frames = %v, want none", got)
	}
	if _, offs, _ := dev.stats(); offs != 1 {
		t.Errorf("stream off called %d times, want 1", offs)
	}
	if e.Status() != StatusReady {
		t.Errorf("Status() = %s", e.Status())
	}
}

func TestEngine_StopIdleIsNoop(t *testing.T) {
	dev := newFakeDevice(t, v4l2.PixFmtGREY)
	rec := &recorder{stop: -1}
	e := newTestEngine(t, dev, WithFrameHandler(rec))

	e.Stop()
	e.Stop()

	var b [1]byte
	if n, _ := unix.Read(e.cancel.r, b[:]); n > 0 {
		t.Error("Stop on idle engine signalled the cancel pipe")
	}

	if err := e.SetFrameCount(3); err != nil {
		t.Fatal(err)
	}
	if err := e.Prepare(); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, e)
	if got := rec.frames(); len(got) != 3 {
		t.Errorf("frames = %v, want 3", got)
	}
}

func TestEngine_PrepareTwice(t *testing.T) {
	dev := newFakeDevice(t, v4l2.PixFmtGREY)
	e := newTestEngine(t, dev)

	if err := e.Prepare(); err != nil {
		t.Fatal(err)
	}
	if err := e.Prepare(); err != nil {
		t.Fatalf("second Prepare() error = %v", err)
	}
	if _, offs, _ := dev.stats(); offs != 1 {
		t.Errorf("stream off called %d times, want 1", offs)
	}
	if len(dev.queued) != ringSize {
		t.Errorf("driver holds %d buffers, want %d", len(dev.queued), ringSize)
	}
	if n := e.AcquiredFrameCount(); n != 0 {
		t.Errorf("AcquiredFrameCount() = %d, want 0", n)
	}
}

func TestEngine_BusyWhileAcquiring(t *testing.T) {
	dev := newFakeDevice(t, v4l2.PixFmtGREY, v4l2.PixFmtYUYV)
	dev.autoFill = false
	e := newTestEngine(t, dev)

	if err := e.SetMode(Y8); err != nil {
		t.Fatal(err)
	}
	if err := e.Prepare(); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}

	checks := map[string]error{
		"SetMode":       e.SetMode(YUV422Packed),
		"Prepare":       e.Prepare(),
		"Start":         e.Start(),
		"SetFrameCount": e.SetFrameCount(10),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrBusy) {
			t.Errorf("%s() error = %v, want busy", name, err)
		}
	}

	e.Stop()
	waitIdle(t, e)

	if err := e.SetMode(YUV422Packed); err != nil {
		t.Errorf("SetMode() after stop error = %v", err)
	}
}

func TestEngine_SetMode(t *testing.T) {
	t.Run("unsupported mode keeps format", func(t *testing.T) {
		dev := newFakeDevice(t, v4l2.PixFmtGREY)
		e := newTestEngine(t, dev)

		for _, m := range []VideoMode{Y32, Y64, YUV444, RGB24} {
			if err := e.SetMode(m); !errors.Is(err, ErrNotSupported) {
				t.Errorf("SetMode(%s) error = %v, want not supported", m, err)
			}
		}
		if m, _ := e.Mode(); m != Y8 {
			t.Errorf("Mode() = %s, want Y8", m)
		}
	})

	t.Run("many-to-one code round-trips", func(t *testing.T) {
		dev := newFakeDevice(t, v4l2.PixFmtGREY, v4l2.PixFmtYVU420)
		e := newTestEngine(t, dev)

		if err := e.SetMode(I420); err != nil {
			t.Fatal(err)
		}
		if dev.format.PixelFormat != v4l2.PixFmtYVU420 {
			t.Errorf("device format = %s, want YV12", v4l2.FormatFourCC(dev.format.PixelFormat))
		}
		if m, err := e.Mode(); err != nil || m != I420 {
			t.Errorf("Mode() = %s, %v; want I420", m, err)
		}
	})

	t.Run("substituted format is rejected", func(t *testing.T) {
		dev := newFakeDevice(t, v4l2.PixFmtGREY, v4l2.PixFmtYUYV)
		e := newTestEngine(t, dev)
		if err := e.SetMode(YUV422Packed); err != nil {
			t.Fatal(err)
		}
		dev.substitute[v4l2.PixFmtGREY] = v4l2.PixFmtYUYV

		if err := e.SetMode(Y8); !errors.Is(err, ErrHardware) {
			t.Fatalf("SetMode() error = %v, want hardware error", err)
		}
		if m, _ := e.Mode(); m != YUV422Packed {
			t.Errorf("Mode() = %s, want YUV422PACKED", m)
		}
		if !e.ring.mapped() {
			t.Error("buffers not remapped after failed mode change")
		}
		if err := e.Prepare(); err != nil {
			t.Errorf("Prepare() after failed mode change error = %v", err)
		}
	})

	t.Run("buffers follow the new format", func(t *testing.T) {
		dev := newFakeDevice(t, v4l2.PixFmtGREY, v4l2.PixFmtYUYV)
		var mu sync.Mutex
		var sizes []int
		e := newTestEngine(t, dev, WithFrameHandler(FrameHandlerFunc(func(f Frame) bool {
			mu.Lock()
			sizes = append(sizes, len(f.Data))
			mu.Unlock()
			return true
		})))
		run := func() {
			t.Helper()
			if err := e.SetFrameCount(1); err != nil {
				t.Fatal(err)
			}
			if err := e.Prepare(); err != nil {
				t.Fatal(err)
			}
			if err := e.Start(); err != nil {
				t.Fatal(err)
			}
			waitIdle(t, e)
		}

		run()
		if e.ring.length != 32 {
			t.Fatalf("buffer length in Y8 = %d, want 32", e.ring.length)
		}
		dev.takeOps()

		if err := e.SetMode(YUV422Packed); err != nil {
			t.Fatal(err)
		}
		want := []string{"unmap", "unmap", "set YUYV", "map", "map"}
		if got := dev.takeOps(); !equalStrings(got, want) {
			t.Errorf("mode change calls = %v, want %v", got, want)
		}
		if e.ring.length != 64 {
			t.Errorf("buffer length in YUV422PACKED = %d, want 64", e.ring.length)
		}

		run()
		mu.Lock()
		defer mu.Unlock()
		if !equalInts(sizes, []int{32, 64}) {
			t.Errorf("frame sizes = %v, want [32 64]", sizes)
		}
	})

	t.Run("interval failure keeps previous mode", func(t *testing.T) {
		dev := newFakeDevice(t, v4l2.PixFmtGREY, v4l2.PixFmtYUYV)
		dev.parm.Capability = v4l2.CapTimePerFrame
		dev.intervals = []v4l2.FrameInterval{{Min: v4l2.Fract{Numerator: 1, Denominator: 30}, Max: v4l2.Fract{Numerator: 1, Denominator: 30}}}
		e := newTestEngine(t, dev)
		dev.setIvalErr = unix.EIO

		if err := e.SetMode(YUV422Packed); !errors.Is(err, ErrHardware) {
			t.Fatalf("SetMode() error = %v, want hardware error", err)
		}
		if m, _ := e.Mode(); m != Y8 {
			t.Errorf("Mode() = %s, want Y8", m)
		}
		if dev.format.PixelFormat != v4l2.PixFmtGREY {
			t.Errorf("device format = %s, want GREY restored", v4l2.FormatFourCC(dev.format.PixelFormat))
		}
		if !e.ring.mapped() || e.ring.length != 32 {
			t.Errorf("buffers after failed mode change: mapped %v, length %d", e.ring.mapped(), e.ring.length)
		}
		if err := e.Prepare(); err != nil {
			t.Errorf("Prepare() after failed mode change error = %v", err)
		}
	})
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEngine_DequeueErrorEndsRun(t *testing.T) {
	dev := newFakeDevice(t, v4l2.PixFmtGREY)
	dev.dqErr = unix.EIO
	bus := events.New()
	errs := make(chan events.AcquisitionErrorEvent, 1)
	unsub := bus.Subscribe(func(ev events.AcquisitionErrorEvent) { errs <- ev })
	defer unsub()

	rec := &recorder{stop: -1}
	e := newTestEngine(t, dev, WithFrameHandler(rec), WithEventBus(bus))
	if err := e.Prepare(); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, e)

	if got := rec.frames(); len(got) != 0 {
		t.Errorf("frames = %v, want none", got)
	}
	select {
	case ev := <-errs:
		if ev.DevicePath != "/dev/fake0" || ev.Error == "" {
			t.Errorf("error event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Error("no acquisition error event")
	}
}

func TestEngine_CloseWhileStreaming(t *testing.T) {
	dev := newFakeDevice(t, v4l2.PixFmtGREY)
	dev.autoFill = false
	e, err := New(dev)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Prepare(); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- e.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Close() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close() did not return")
	}

	if !dev.isClosed() {
		t.Error("device not closed")
	}
	if _, offs, requested := dev.stats(); offs == 0 || requested != 0 {
		t.Errorf("stream offs = %d, requested = %d; want stream off and buffers released", offs, requested)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	e.Stop()
	if err := e.Prepare(); !errors.Is(err, ErrHardware) {
		t.Errorf("Prepare() after Close error = %v, want hardware error", err)
	}
	waitIdle(t, e)
}

func TestEngine_UnsupportedControls(t *testing.T) {
	dev := newFakeDevice(t, v4l2.PixFmtGREY)
	bus := events.New()
	degraded := make(chan string, 8)
	unsub := bus.Subscribe(func(ev events.FeatureDegradedEvent) { degraded <- ev.Feature })
	defer unsub()

	e := newTestEngine(t, dev, WithEventBus(bus))

	if caps := e.Capabilities(); caps.Exposure || caps.AutoExposure || caps.Gain || caps.FrameInterval {
		t.Errorf("Capabilities() = %+v, want none", caps)
	}
	if lo, hi := e.ExposureRange(); lo != 0 || hi != math.MaxFloat64 {
		t.Errorf("ExposureRange() = %v, %v", lo, hi)
	}
	if err := e.SetExposure(0.5); err != nil {
		t.Errorf("SetExposure() error = %v", err)
	}
	if got := e.Exposure(); got != 0.5 {
		t.Errorf("Exposure() = %v, want cached 0.5", got)
	}
	if err := e.SetAutoExposure(true); !errors.Is(err, ErrNotSupported) {
		t.Errorf("SetAutoExposure(true) error = %v, want not supported", err)
	}
	if err := e.SetAutoExposure(false); err != nil {
		t.Errorf("SetAutoExposure(false) error = %v", err)
	}
	if err := e.SetGain(1.5); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("SetGain(1.5) error = %v, want invalid value", err)
	}
	if err := e.SetGain(0.25); err != nil || e.Gain() != 0.25 {
		t.Errorf("SetGain(0.25) = %v, Gain() = %v", err, e.Gain())
	}

	seen := map[string]bool{}
	timeout := time.After(time.Second)
	for len(seen) < 4 {
		select {
		case f := <-degraded:
			seen[f] = true
		case <-timeout:
			t.Fatalf("degradation events = %v, want 4 features", seen)
		}
	}
}

func TestEngine_Controls(t *testing.T) {
	dev := newFakeDevice(t, v4l2.PixFmtGREY)
	dev.ctrls[v4l2.CIDExposureAbsolute] = v4l2.ControlInfo{Minimum: 1, Maximum: 10000}
	dev.ctrls[v4l2.CIDExposureAuto] = v4l2.ControlInfo{Minimum: 0, Maximum: 3}
	dev.ctrls[v4l2.CIDGain] = v4l2.ControlInfo{Minimum: 0, Maximum: 200}
	dev.values[v4l2.CIDExposureAuto] = v4l2.ExposureAuto
	e := newTestEngine(t, dev)

	if dev.values[v4l2.CIDExposureAuto] != v4l2.ExposureManual {
		t.Error("engine did not select manual exposure on startup")
	}
	if lo, hi := e.ExposureRange(); math.Abs(lo-100e-6) > 1e-12 || math.Abs(hi-1) > 1e-9 {
		t.Errorf("ExposureRange() = %v, %v; want 100us, 1s", lo, hi)
	}
	if err := e.SetExposure(0.01); err != nil {
		t.Fatal(err)
	}
	if dev.values[v4l2.CIDExposureAbsolute] != 100 {
		t.Errorf("raw exposure = %d, want 100", dev.values[v4l2.CIDExposureAbsolute])
	}
	if got := e.Exposure(); math.Abs(got-0.01) > 1e-9 {
		t.Errorf("Exposure() = %v, want 0.01", got)
	}
	if err := e.SetExposure(5); err != nil {
		t.Fatal(err)
	}
	if dev.values[v4l2.CIDExposureAbsolute] != 10000 {
		t.Errorf("raw exposure = %d, want clamped 10000", dev.values[v4l2.CIDExposureAbsolute])
	}
	if err := e.SetExposure(-1); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("SetExposure(-1) error = %v, want invalid value", err)
	}

	if err := e.SetGain(0.5); err != nil {
		t.Fatal(err)
	}
	if dev.values[v4l2.CIDGain] != 100 {
		t.Errorf("raw gain = %d, want 100", dev.values[v4l2.CIDGain])
	}
	if got := e.Gain(); got != 0.5 {
		t.Errorf("Gain() = %v, want 0.5", got)
	}

	if err := e.SetAutoExposure(true); err != nil || !e.AutoExposure() {
		t.Errorf("SetAutoExposure(true) = %v, AutoExposure() = %v", err, e.AutoExposure())
	}

	dev.getErr[v4l2.CIDExposureAbsolute] = unix.EIO
	if got := e.Exposure(); math.Abs(got-1) > 1e-9 {
		t.Errorf("Exposure() after read failure = %v, want last value 1", got)
	}
	if e.Capabilities().Exposure {
		t.Error("exposure still reported after read failure")
	}
}

func TestEngine_FrameInterval(t *testing.T) {
	fast := v4l2.Fract{Numerator: 1, Denominator: 60}
	slow := v4l2.Fract{Numerator: 1, Denominator: 15}

	t.Run("fastest interval applied", func(t *testing.T) {
		dev := newFakeDevice(t, v4l2.PixFmtGREY)
		dev.parm.Capability = v4l2.CapTimePerFrame
		dev.intervals = []v4l2.FrameInterval{
			{Type: v4l2.FrmTypeDiscrete, Min: slow, Max: slow},
			{Type: v4l2.FrmTypeDiscrete, Min: fast, Max: fast},
		}
		e := newTestEngine(t, dev)
		if got := e.FrameInterval(); got != fast {
			t.Errorf("FrameInterval() = %s, want %s", got, fast)
		}
	})

	t.Run("no timeperframe capability", func(t *testing.T) {
		dev := newFakeDevice(t, v4l2.PixFmtGREY)
		dev.intervals = []v4l2.FrameInterval{{Min: fast, Max: fast}}
		newTestEngine(t, dev)
		if len(dev.applied) != 0 {
			t.Errorf("applied intervals %v, want none", dev.applied)
		}
	})

	t.Run("enumeration failure tolerated", func(t *testing.T) {
		dev := newFakeDevice(t, v4l2.PixFmtGREY)
		dev.parm.Capability = v4l2.CapTimePerFrame
		dev.ivalErr = unix.EINVAL
		e := newTestEngine(t, dev)
		if got := e.FrameInterval(); got != (v4l2.Fract{}) {
			t.Errorf("FrameInterval() = %s, want driver default", got)
		}
	})

	t.Run("apply failure is fatal", func(t *testing.T) {
		dev := newFakeDevice(t, v4l2.PixFmtGREY)
		dev.parm.Capability = v4l2.CapTimePerFrame
		dev.intervals = []v4l2.FrameInterval{{Min: fast, Max: fast}}
		dev.setIvalErr = unix.EIO
		if _, err := New(dev); !errors.Is(err, ErrHardware) {
			t.Errorf("New() error = %v, want hardware error", err)
		}
		if _, _, requested := dev.stats(); requested != 0 {
			t.Errorf("buffers left requested after failed New: %d", requested)
		}
	})
}

func TestEngine_FixedFeatures(t *testing.T) {
	dev := newFakeDevice(t, v4l2.PixFmtGREY)
	e := newTestEngine(t, dev)

	if err := e.SetTriggerMode(TriggerExternalSingle); !errors.Is(err, ErrNotSupported) {
		t.Errorf("SetTriggerMode(external) error = %v", err)
	}
	if err := e.SetTriggerMode(TriggerInternal); err != nil {
		t.Errorf("SetTriggerMode(internal) error = %v", err)
	}
	if e.LatencyTime() != 0 {
		t.Error("LatencyTime() != 0")
	}
	if err := e.SetLatencyTime(-1); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("SetLatencyTime(-1) error = %v", err)
	}

	full := Roi{Width: 8, Height: 4}
	if r, err := e.CheckRoi(Roi{}); err != nil || r != full {
		t.Errorf("CheckRoi(zero) = %+v, %v", r, err)
	}
	if _, err := e.CheckRoi(Roi{X: 1, Width: 2, Height: 2}); !errors.Is(err, ErrNotSupported) {
		t.Errorf("CheckRoi(partial) error = %v", err)
	}
	if err := e.CheckBinning(1, 1); err != nil {
		t.Errorf("CheckBinning(1,1) error = %v", err)
	}
	if err := e.CheckBinning(2, 2); !errors.Is(err, ErrNotSupported) {
		t.Errorf("CheckBinning(2,2) error = %v", err)
	}
	if err := e.SetFrameCount(-1); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("SetFrameCount(-1) error = %v", err)
	}
}
