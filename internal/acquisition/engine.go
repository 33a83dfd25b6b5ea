package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/smazurov/framegrab/internal/events"
	"github.com/smazurov/framegrab/internal/logging"
	"github.com/smazurov/framegrab/internal/metrics"
	"github.com/smazurov/framegrab/pkg/linuxav/v4l2"
)

// Reasons a run ends, used in logs, events and metrics.
const (
	ReasonCompleted = "completed"
	ReasonStopped   = "stopped"
	ReasonHandler   = "handler"
	ReasonError     = "error"
	ReasonClosed    = "closed"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger replaces the default "acquisition" module logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithFrameHandler sets the consumer of captured frames.
func WithFrameHandler(h FrameHandler) Option {
	return func(e *Engine) {
		if h != nil {
			e.handler = h
		}
	}
}

// WithEventBus publishes state, frame and degradation events to bus.
func WithEventBus(bus *events.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// Engine owns one capture device: its buffers, its format and a goroutine
// that streams frames to a FrameHandler between Start and Stop.
//
// Caller operations are serialized. Format and buffer changes are rejected
// with ErrBusy while a run is active.
type Engine struct {
	dev     Device
	path    string
	log     *slog.Logger
	bus     *events.Bus
	info    DetectorInfo
	formats formatSet

	// opMu serializes caller operations. The fields below it are written
	// only under opMu with no run active, and read by the run goroutine
	// only while a run is active.
	opMu     sync.Mutex
	ctl      *controls
	ring     ring
	format   v4l2.PixFormat
	mode     VideoMode
	interval v4l2.Fract
	trigger  TriggerMode

	// mu guards the state shared with the run goroutine.
	mu      sync.Mutex
	cond    *sync.Cond
	started bool
	pending bool
	running bool
	quit    bool
	frameID int
	budget  int
	session string
	since   time.Time
	handler FrameHandler
	runDone chan struct{}

	cancel    *canceller
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Open opens the video node at path and builds an Engine on it.
func Open(path string, opts ...Option) (*Engine, error) {
	dev, err := v4l2.Open(path)
	if err != nil {
		return nil, newError(ErrCodeHardware, err, "open %s", path)
	}
	e, err := New(dev, opts...)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return e, nil
}

// New queries dev, selects the preferred video mode, maps the buffer ring
// and starts the acquisition goroutine. On success the Engine owns dev.
func New(dev Device, opts ...Option) (*Engine, error) {
	idle := make(chan struct{})
	close(idle)

	e := &Engine{
		dev:     dev,
		log:     logging.GetLogger("acquisition"),
		handler: discard{},
		trigger: TriggerInternal,
		frameID: -1,
		runDone: idle,
		done:    make(chan struct{}),
	}
	if p, ok := dev.(interface{ Path() string }); ok {
		e.path = p.Path()
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("device", e.path)
	e.cond = sync.NewCond(&e.mu)
	e.ring.dev = dev

	caps, err := dev.Capability()
	if err != nil {
		return nil, newError(ErrCodeHardware, err, "query capabilities")
	}
	if !caps.CanCapture() {
		return nil, newError(ErrCodeHardware, nil, "%q is not a video capture device", caps.Card)
	}
	if !caps.CanStream() {
		return nil, newError(ErrCodeHardware, nil, "%q does not support streaming I/O", caps.Card)
	}
	e.info = DetectorInfo{
		DevicePath: e.path,
		Model:      caps.Card,
		Type:       DetectorType,
		Driver:     caps.Driver,
		BusInfo:    caps.BusInfo,
		PixelSize:  -1,
	}

	advertised, err := dev.PixelFormats()
	if err != nil {
		return nil, newError(ErrCodeHardware, err, "enumerate formats")
	}
	e.formats = newFormatSet(advertised)
	mode, err := DefaultMode(e.formats.modes)
	if err != nil {
		return nil, err
	}

	cur, err := dev.Format()
	if err != nil {
		return nil, newError(ErrCodeHardware, err, "get format")
	}
	e.format = cur

	e.ctl = discoverControls(dev, e.log, e.publishDegraded)
	if err := e.ctl.setAutoExposure(false); err != nil {
		e.log.Debug("Could not switch to manual exposure", "error", err)
	}

	if e.cancel, err = newCanceller(); err != nil {
		return nil, newError(ErrCodeHardware, err, "create cancel pipe")
	}
	if err := e.applyMode(mode); err != nil {
		e.ring.unmap()
		e.cancel.closeWrite()
		e.cancel.closeRead()
		return nil, err
	}

	go e.run()

	e.log.Info("Acquisition engine ready",
		"model", caps.Card,
		"driver", caps.Driver,
		"mode", e.mode.String(),
		"format", e.format.String(),
		"modes", len(e.formats.modes))
	return e, nil
}

// applyMode switches the device to m and rebuilds the buffer ring for it.
// When the format is rejected or its frame interval cannot be applied, the
// previous format, interval and buffers are restored.
func (e *Engine) applyMode(m VideoMode) error {
	code, err := e.formats.code(m)
	if err != nil {
		return err
	}
	if err := e.ring.unmap(); err != nil {
		return err
	}

	want := e.format
	want.PixelFormat = code
	want.BytesPerLine = 0
	want.SizeImage = 0
	applied, err := e.dev.SetFormat(want)
	if err == nil && applied.PixelFormat != code {
		err = fmt.Errorf("driver substituted %s", v4l2.FormatFourCC(applied.PixelFormat))
	}
	if err != nil {
		e.restore()
		return newError(ErrCodeHardware, err, "set video mode %s", m)
	}
	interval, err := e.ctl.negotiateInterval(applied)
	if err != nil {
		e.restore()
		return err
	}
	e.format = applied
	e.mode = m
	e.interval = interval
	e.info.MaxWidth, e.info.MaxHeight = applied.Width, applied.Height

	if err := e.ring.mapAll(); err != nil {
		e.ring.unmap()
		return err
	}

	metrics.SetNegotiatedFPS(e.path, e.interval.FPS())
	e.bus.Publish(events.FormatChangedEvent{
		DevicePath: e.path,
		Mode:       m.String(),
		Width:      applied.Width,
		Height:     applied.Height,
		FPS:        e.interval.FPS(),
		Timestamp:  events.Now(),
	})
	e.log.Info("Video mode applied", "mode", m.String(), "format", applied.String(), "buffer_length", e.ring.length)
	return nil
}

func (e *Engine) restore() {
	if e.format.PixelFormat != 0 {
		if _, err := e.dev.SetFormat(e.format); err != nil {
			e.log.Warn("Failed to restore previous format", "format", e.format.String(), "error", err)
		}
	}
	if e.interval != (v4l2.Fract{}) {
		if _, err := e.dev.SetFrameInterval(e.interval); err != nil {
			e.log.Warn("Failed to restore previous frame interval", "interval", e.interval.String(), "error", err)
		}
	}
	if err := e.ring.mapAll(); err != nil {
		e.log.Error("Failed to remap buffers for previous format", "error", err)
		e.ring.unmap()
	}
}

// checkIdle fails when the engine is closed or a run is requested or active.
func (e *Engine) checkIdle(op string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.quit {
		return newError(ErrCodeHardware, nil, "%s: engine closed", op)
	}
	if e.started || e.pending || e.running {
		return newError(ErrCodeBusy, nil, "%s while acquiring", op)
	}
	return nil
}

// Prepare arms the engine: every buffer is queued to the driver and the
// frame counter is reset. Buffers left with the driver by an earlier
// Prepare are reclaimed with a stream-off first.
func (e *Engine) Prepare() error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if err := e.checkIdle("prepare"); err != nil {
		return err
	}
	if !e.ring.mapped() {
		if err := e.ring.mapAll(); err != nil {
			e.ring.unmap()
			return err
		}
	}
	if e.ring.anyQueued() {
		if err := e.dev.StreamOff(); err != nil {
			e.log.Warn("Stream off before re-queue failed", "error", err)
		}
		e.ring.reclaim()
	}
	e.cancel.drain()
	if err := e.ring.queueAll(); err != nil {
		return err
	}

	e.mu.Lock()
	e.frameID = -1
	e.mu.Unlock()

	e.publishState(events.StateArmed, "", "")
	return nil
}

// Start turns the stream on and wakes the acquisition goroutine. Prepare
// must have been called since the previous run.
func (e *Engine) Start() error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if err := e.checkIdle("start"); err != nil {
		return err
	}
	if !e.ring.anyQueued() {
		return newError(ErrCodeInvalidValue, nil, "start without prepare")
	}
	if err := e.dev.StreamOn(); err != nil {
		return newError(ErrCodeHardware, err, "stream on")
	}

	e.mu.Lock()
	e.started = true
	e.pending = true
	e.session = uuid.NewString()
	e.since = time.Now()
	e.runDone = make(chan struct{})
	session := e.session
	e.cond.Broadcast()
	e.mu.Unlock()

	e.log.Info("Acquisition started", "session", session)
	return nil
}

// Stop asks the current run to end and returns without waiting. Use
// WaitIdle to wait for the goroutine to stream off. Stopping an idle
// engine does nothing.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.quit || !e.started {
		return
	}
	e.started = false
	if err := e.cancel.signal(); err != nil {
		e.log.Warn("Failed to signal acquisition goroutine", "error", err)
	}
}

// WaitIdle blocks until the current run, if any, has ended.
func (e *Engine) WaitIdle(ctx context.Context) error {
	e.mu.Lock()
	ch := e.runDone
	e.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the acquisition goroutine. It parks until Start, streams one run,
// and repeats until Close.
func (e *Engine) run() {
	defer close(e.done)
	e.mu.Lock()
	defer e.mu.Unlock()

	for {
		for !e.pending && !e.quit {
			e.cond.Wait()
		}
		if e.quit {
			if e.pending {
				e.pending = false
				close(e.runDone)
			}
			return
		}

		e.pending = false
		e.running = true
		handler, session, since, runDone := e.handler, e.session, e.since, e.runDone

		reason := e.stream(handler, session, since)

		e.running = false
		e.started = false
		frames := e.frameID + 1
		close(runDone)
		e.cond.Broadcast()

		e.log.Info("Acquisition ended", "session", session, "reason", reason, "frames", frames)
		e.bus.Publish(events.AcquisitionStateEvent{
			DevicePath:   e.path,
			Session:      session,
			SessionStart: since.UTC().Format(time.RFC3339Nano),
			State:        events.StateIdle,
			Frames:       frames,
			Reason:       reason,
			Timestamp:    events.Now(),
		})
	}
}

// stream runs the poll/dequeue/deliver/requeue loop. It is entered and
// left with e.mu held and releases it around every blocking call and
// around the handler.
func (e *Engine) stream(h FrameHandler, session string, since time.Time) string {
	format, mode := e.format, e.mode
	metrics.SetStreaming(e.path, true)
	e.bus.Publish(events.AcquisitionStateEvent{
		DevicePath:   e.path,
		Session:      session,
		SessionStart: since.UTC().Format(time.RFC3339Nano),
		State:        events.StateStreaming,
		Frames:       e.frameID + 1,
		Timestamp:    events.Now(),
	})

	reason := ""
	for e.started && !e.quit && (e.budget == 0 || e.frameID < e.budget-1) {
		budget := e.budget
		e.mu.Unlock()

		ready, err := e.cancel.wait(e.dev.Fd())
		var info v4l2.BufferInfo
		if err == nil && ready {
			info, err = e.ring.dequeue()
			if errors.Is(err, unix.EAGAIN) {
				ready, err = false, nil
			}
		}

		e.mu.Lock()
		if err != nil {
			reason = ReasonError
			e.log.Error("Stream error, ending acquisition", "session", session, "frame_id", e.frameID, "error", err)
			metrics.AddDequeueError(e.path)
			e.bus.Publish(events.AcquisitionErrorEvent{
				DevicePath: e.path,
				Session:    session,
				Error:      err.Error(),
				Timestamp:  events.Now(),
			})
			break
		}
		if !ready || !e.started || e.quit {
			continue
		}
		e.frameID++
		id := e.frameID
		e.mu.Unlock()

		data := e.ring.data(info)
		begin := time.Now()
		cont := h.OnFrame(Frame{
			ID:           id,
			Session:      session,
			SessionStart: since,
			Data:         data,
			Width:        format.Width,
			Height:       format.Height,
			Mode:         mode,
			PixelFormat:  format.PixelFormat,
			BytesPerLine: format.BytesPerLine,
			Sequence:     info.Sequence,
			Timestamp:    info.Timestamp,
		})
		metrics.AddFrame(e.path, len(data), time.Since(begin).Seconds())
		e.bus.Publish(events.FrameAcquiredEvent{
			DevicePath: e.path,
			Session:    session,
			FrameID:    id,
			Sequence:   info.Sequence,
			Bytes:      len(data),
			Timestamp:  events.Now(),
		})

		// A buffer goes back to the driver only if a later dequeue of this
		// run can still consume it.
		var qerr error
		if cont && (budget == 0 || id < budget-ringSize) {
			qerr = e.ring.queue(info.Index)
		}

		e.mu.Lock()
		if qerr != nil {
			reason = ReasonError
			e.log.Error("Requeue failed, ending acquisition", "session", session, "frame_id", id, "error", qerr)
			break
		}
		if !cont {
			e.started = false
			reason = ReasonHandler
			break
		}
	}
	if reason == "" {
		switch {
		case e.quit:
			reason = ReasonClosed
		case !e.started:
			reason = ReasonStopped
		default:
			reason = ReasonCompleted
		}
	}
	e.mu.Unlock()

	if err := e.dev.StreamOff(); err != nil {
		e.log.Warn("Stream off failed", "session", session, "error", err)
	}
	e.ring.reclaim()
	metrics.SetStreaming(e.path, false)
	metrics.AddRun(e.path, reason)

	e.mu.Lock()
	return reason
}

// Close stops any run, waits for the acquisition goroutine to exit, then
// releases the cancel pipe, the buffers and the device, in that order.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.quit = true
		e.started = false
		e.cond.Broadcast()
		e.mu.Unlock()

		e.cancel.closeWrite()
		<-e.done
		e.cancel.closeRead()

		e.opMu.Lock()
		defer e.opMu.Unlock()

		var errs []error
		if e.ring.anyQueued() {
			if err := e.dev.StreamOff(); err != nil {
				e.log.Warn("Stream off during close failed", "error", err)
			}
			e.ring.reclaim()
		}
		if err := e.ring.unmap(); err != nil {
			errs = append(errs, err)
		}
		if err := e.dev.Close(); err != nil {
			errs = append(errs, newError(ErrCodeHardware, err, "close device"))
		}
		e.closeErr = errors.Join(errs...)

		metrics.SetStreaming(e.path, false)
		e.publishState(events.StateClosed, "", "")
		e.log.Info("Acquisition engine closed")
	})
	return e.closeErr
}

// Status reports exposure from Start until the run has fully ended.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.pending || e.running {
		return StatusExposure
	}
	return StatusReady
}

// AcquiredFrameCount returns the number of frames delivered since Prepare.
func (e *Engine) AcquiredFrameCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frameID + 1
}

// FrameCount returns the frame budget; 0 means unbounded.
func (e *Engine) FrameCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.budget
}

// SetFrameCount sets the frame budget for the next run.
func (e *Engine) SetFrameCount(n int) error {
	if n < 0 {
		return newError(ErrCodeInvalidValue, nil, "frame count must not be negative, got %d", n)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.pending || e.running {
		return newError(ErrCodeBusy, nil, "set frame count while acquiring")
	}
	e.budget = n
	return nil
}

// SetFrameHandler replaces the frame consumer from the next run on.
func (e *Engine) SetFrameHandler(h FrameHandler) {
	if h == nil {
		h = discard{}
	}
	e.mu.Lock()
	e.handler = h
	e.mu.Unlock()
}

// Modes returns the video modes the device offers, in driver order.
func (e *Engine) Modes() []VideoMode {
	return append([]VideoMode(nil), e.formats.modes...)
}

// Mode reads the device's current format back as a video mode.
func (e *Engine) Mode() (VideoMode, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	f, err := e.dev.Format()
	if err != nil {
		return 0, newError(ErrCodeHardware, err, "get format")
	}
	m, ok := ModeForCode(f.PixelFormat)
	if !ok {
		return 0, newError(ErrCodeNotSupported, nil, "device format %s has no video mode", v4l2.FormatFourCC(f.PixelFormat))
	}
	return m, nil
}

// SetMode switches video mode. Modes the device does not offer fail with
// ErrNotSupported and leave the current mode in place.
func (e *Engine) SetMode(m VideoMode) error {
	if _, err := CodeForMode(m); err != nil {
		return err
	}
	if !e.formats.contains(m) {
		return newError(ErrCodeNotSupported, nil, "video mode %s is not offered by the device", m)
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()
	if err := e.checkIdle("set video mode"); err != nil {
		return err
	}
	return e.applyMode(m)
}

// Size returns the frame geometry of the current format.
func (e *Engine) Size() (width, height uint32) {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	return e.format.Width, e.format.Height
}

// FrameInterval returns the negotiated interval; zero means driver default.
func (e *Engine) FrameInterval() v4l2.Fract {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	return e.interval
}

// Info describes the device.
func (e *Engine) Info() DetectorInfo {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	return e.info
}

// Capabilities returns the optional features still available.
func (e *Engine) Capabilities() Capabilities {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	return e.ctl.caps
}

// ExposureRange returns the settable exposure in seconds.
func (e *Engine) ExposureRange() (lo, hi float64) {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	return e.ctl.exposureRange()
}

// Exposure returns the exposure time in seconds.
func (e *Engine) Exposure() float64 {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	return e.ctl.getExposure()
}

// SetExposure sets the exposure time in seconds. Without an exposure
// control the value is remembered and otherwise ignored.
func (e *Engine) SetExposure(seconds float64) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	return e.ctl.setExposure(seconds)
}

// AutoExposure reports whether automatic exposure is on.
func (e *Engine) AutoExposure() bool {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	return e.ctl.autoExposure
}

// SetAutoExposure toggles automatic exposure.
func (e *Engine) SetAutoExposure(on bool) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	return e.ctl.setAutoExposure(on)
}

// Gain returns the gain normalized to [0,1].
func (e *Engine) Gain() float64 {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	return e.ctl.getGain()
}

// SetGain sets the gain normalized to [0,1].
func (e *Engine) SetGain(gain float64) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	return e.ctl.setGain(gain)
}

// TriggerMode returns the active trigger mode.
func (e *Engine) TriggerMode() TriggerMode {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	return e.trigger
}

// SetTriggerMode accepts only the internal trigger.
func (e *Engine) SetTriggerMode(m TriggerMode) error {
	if !CheckTriggerMode(m) {
		return newError(ErrCodeNotSupported, nil, "trigger mode %q", m)
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()
	e.trigger = m
	return nil
}

// LatencyTime is always zero.
func (e *Engine) LatencyTime() float64 { return 0 }

// SetLatencyTime accepts any non-negative latency and ignores it.
func (e *Engine) SetLatencyTime(seconds float64) error {
	if !(seconds >= 0) {
		return newError(ErrCodeInvalidValue, nil, "latency must not be negative, got %v", seconds)
	}
	return nil
}

// CheckRoi returns the region the engine would use for r. Only the full
// frame is supported; the zero Roi selects it.
func (e *Engine) CheckRoi(r Roi) (Roi, error) {
	w, h := e.Size()
	full := Roi{Width: w, Height: h}
	if r.isZero() || r == full {
		return full, nil
	}
	return full, newError(ErrCodeNotSupported, nil, "region of interest %+v", r)
}

// CheckBinning accepts only 1x1.
func (e *Engine) CheckBinning(x, y int) error {
	if x == 1 && y == 1 {
		return nil
	}
	return newError(ErrCodeNotSupported, nil, "binning %dx%d", x, y)
}

// Path returns the device path, if known.
func (e *Engine) Path() string { return e.path }

func (e *Engine) publishState(state, session, reason string) {
	e.mu.Lock()
	frames := e.frameID + 1
	e.mu.Unlock()
	e.bus.Publish(events.AcquisitionStateEvent{
		DevicePath: e.path,
		Session:    session,
		State:      state,
		Frames:     frames,
		Reason:     reason,
		Timestamp:  events.Now(),
	})
}

func (e *Engine) publishDegraded(feature string, err error) {
	ev := events.FeatureDegradedEvent{
		DevicePath: e.path,
		Feature:    feature,
		Timestamp:  events.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	e.bus.Publish(ev)
}
