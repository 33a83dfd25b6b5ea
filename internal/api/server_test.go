package api

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/framegrab/internal/acquisition"
	"github.com/smazurov/framegrab/internal/events"
	"github.com/smazurov/framegrab/internal/metrics/exporters"
	"github.com/smazurov/framegrab/internal/sink"
	"github.com/smazurov/framegrab/pkg/linuxav/v4l2"
)

// fakeCamera records calls and returns canned errors.
type fakeCamera struct {
	mu       sync.Mutex
	mode     acquisition.VideoMode
	modes    []acquisition.VideoMode
	exposure float64
	auto     bool
	gain     float64
	frames   int
	acquired int
	prepared bool
	running  bool
	stops    int
}

func newFakeCamera() *fakeCamera {
	return &fakeCamera{
		mode:     acquisition.YUV422Packed,
		modes:    []acquisition.VideoMode{acquisition.YUV422Packed, acquisition.Y8},
		exposure: 0.01,
	}
}

func (c *fakeCamera) Path() string { return "/dev/video0" }

func (c *fakeCamera) Info() acquisition.DetectorInfo {
	return acquisition.DetectorInfo{DevicePath: "/dev/video0", Model: "Fake", Type: acquisition.DetectorType, MaxWidth: 640, MaxHeight: 480, PixelSize: -1}
}

func (c *fakeCamera) Capabilities() acquisition.Capabilities {
	return acquisition.Capabilities{Exposure: true, AutoExposure: true}
}

func (c *fakeCamera) Modes() []acquisition.VideoMode { return c.modes }

func (c *fakeCamera) Mode() (acquisition.VideoMode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode, nil
}

func (c *fakeCamera) SetMode(m acquisition.VideoMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return acquisition.ErrBusy
	}
	for _, have := range c.modes {
		if have == m {
			c.mode = m
			return nil
		}
	}
	return &acquisition.Error{Code: acquisition.ErrCodeNotSupported, Message: "video mode " + m.String() + " is not offered by the device"}
}

func (c *fakeCamera) Size() (uint32, uint32) { return 640, 480 }

func (c *fakeCamera) FrameInterval() v4l2.Fract { return v4l2.Fract{Numerator: 1, Denominator: 30} }

func (c *fakeCamera) ExposureRange() (float64, float64) { return 0.0001, 0.5 }

func (c *fakeCamera) Exposure() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exposure
}

func (c *fakeCamera) SetExposure(s float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exposure = s
	return nil
}

func (c *fakeCamera) AutoExposure() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auto
}

func (c *fakeCamera) SetAutoExposure(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auto = on
	return nil
}

func (c *fakeCamera) Gain() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gain
}

func (c *fakeCamera) SetGain(g float64) error {
	if g < 0 || g > 1 {
		return &acquisition.Error{Code: acquisition.ErrCodeInvalidValue, Message: "gain out of range"}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gain = g
	return nil
}

func (c *fakeCamera) TriggerMode() acquisition.TriggerMode { return acquisition.TriggerInternal }

func (c *fakeCamera) SetTriggerMode(m acquisition.TriggerMode) error {
	if !acquisition.CheckTriggerMode(m) {
		return acquisition.ErrNotSupported
	}
	return nil
}

func (c *fakeCamera) LatencyTime() float64 { return 0 }

func (c *fakeCamera) SetLatencyTime(float64) error { return nil }

func (c *fakeCamera) CheckRoi(r acquisition.Roi) (acquisition.Roi, error) {
	full := acquisition.Roi{Width: 640, Height: 480}
	if r == (acquisition.Roi{}) || r == full {
		return full, nil
	}
	return full, acquisition.ErrNotSupported
}

func (c *fakeCamera) CheckBinning(x, y int) error {
	if x == 1 && y == 1 {
		return nil
	}
	return acquisition.ErrNotSupported
}

func (c *fakeCamera) FrameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

func (c *fakeCamera) SetFrameCount(n int) error {
	if n < 0 {
		return &acquisition.Error{Code: acquisition.ErrCodeInvalidValue, Message: "frame count must not be negative"}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return acquisition.ErrBusy
	}
	c.frames = n
	return nil
}

func (c *fakeCamera) Prepare() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return acquisition.ErrBusy
	}
	c.prepared = true
	c.acquired = 0
	return nil
}

func (c *fakeCamera) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.prepared {
		return &acquisition.Error{Code: acquisition.ErrCodeInvalidValue, Message: "start without prepare"}
	}
	c.prepared = false
	c.running = true
	return nil
}

func (c *fakeCamera) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	c.running = false
}

func (c *fakeCamera) Status() acquisition.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return acquisition.StatusExposure
	}
	return acquisition.StatusReady
}

func (c *fakeCamera) AcquiredFrameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquired
}

type testEnv struct {
	server *Server
	ts     *httptest.Server
	camera *fakeCamera
	snaps  *sink.Snapshotter
	bus    *events.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		camera: newFakeCamera(),
		snaps:  sink.NewSnapshotter(1),
		bus:    events.New(),
	}
	rec := sink.NewChannel("recorder", 4)
	preview := sink.NewChannel("preview", 1)
	preview.OnFrame(acquisition.Frame{ID: 0})
	preview.OnFrame(acquisition.Frame{ID: 1})

	env.server = NewServer(&Options{
		AuthUsername:      "test",
		AuthPassword:      "secret",
		Camera:            env.camera,
		Snapshots:         env.snaps,
		Sinks:             map[string]StatsSource{"recorder": rec, "preview": preview},
		EventBus:          env.bus,
		PrometheusHandler: exporters.HTTPHandler(),
		ListDevices: func() ([]v4l2.DeviceInfo, error) {
			return []v4l2.DeviceInfo{
				{DevicePath: "/dev/video0", DeviceName: "Fake", DeviceID: "fake-0"},
				{DevicePath: "/dev/video2", DeviceName: "Other", DeviceID: "fake-2"},
			}, nil
		},
	})
	env.ts = httptest.NewServer(env.server.Handler())
	t.Cleanup(env.ts.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var req *http.Request
	var err error
	if body != "" {
		req, err = http.NewRequest(method, e.ts.URL+path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, err = http.NewRequest(method, e.ts.URL+path, nil)
	}
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.SetBasicAuth("test", "secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: status %d, want %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want)
	}
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	resp, err = http.Get(env.ts.URL + "/api/camera")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	expectStatus(t, resp, http.StatusUnauthorized)
	if got := resp.Header.Get("WWW-Authenticate"); got != authRealm {
		t.Errorf("WWW-Authenticate = %q", got)
	}

	req, _ := http.NewRequest(http.MethodGet, env.ts.URL+"/api/camera", nil)
	req.SetBasicAuth("test", "wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	expectStatus(t, resp, http.StatusUnauthorized)

	creds := base64.StdEncoding.EncodeToString([]byte("test:secret"))
	resp, err = http.Get(env.ts.URL + "/api/camera?auth=" + creds)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req, _ := http.NewRequest(http.MethodOptions, env.ts.URL+"/api/camera/exposure", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	expectStatus(t, resp, http.StatusNoContent)
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestFormat(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/camera/format", "")
	expectStatus(t, resp, http.StatusOK)
	f := decode[struct {
		Mode     string  `json:"mode"`
		Width    uint32  `json:"width"`
		FPS      float64 `json:"fps"`
		Interval string  `json:"interval"`
	}](t, resp)
	if f.Mode != "YUV422PACKED" || f.Width != 640 || f.FPS != 30 || f.Interval != "1/30" {
		t.Errorf("format = %+v", f)
	}

	resp = env.do(t, http.MethodPut, "/api/camera/format", `{"mode":"Y8"}`)
	expectStatus(t, resp, http.StatusOK)
	if m, _ := env.camera.Mode(); m != acquisition.Y8 {
		t.Errorf("mode = %v, want Y8", m)
	}

	t.Run("unsupported", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, "/api/camera/format", `{"mode":"RGB24"}`)
		expectStatus(t, resp, http.StatusNotImplemented)
		body := decode[struct {
			Detail string `json:"detail"`
		}](t, resp)
		if !strings.Contains(body.Detail, "RGB24") {
			t.Errorf("detail = %q", body.Detail)
		}
	})

	t.Run("busy", func(t *testing.T) {
		env.camera.mu.Lock()
		env.camera.running = true
		env.camera.mu.Unlock()
		defer env.camera.Stop()
		resp := env.do(t, http.MethodPut, "/api/camera/format", `{"mode":"YUV422PACKED"}`)
		expectStatus(t, resp, http.StatusConflict)
	})
}

func TestModes(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/camera/modes", "")
	expectStatus(t, resp, http.StatusOK)
	body := decode[struct {
		Modes   []string `json:"modes"`
		Current string   `json:"current"`
	}](t, resp)
	if len(body.Modes) != 2 || body.Modes[0] != "YUV422PACKED" || body.Current != "YUV422PACKED" {
		t.Errorf("modes = %+v", body)
	}
}

func TestControls(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPut, "/api/camera/exposure", `{"seconds":0.02}`)
	expectStatus(t, resp, http.StatusOK)
	exp := decode[struct {
		Seconds float64 `json:"seconds"`
		Max     float64 `json:"max"`
	}](t, resp)
	if exp.Seconds != 0.02 || exp.Max != 0.5 {
		t.Errorf("exposure = %+v", exp)
	}

	resp = env.do(t, http.MethodPut, "/api/camera/auto-exposure", `{"enabled":true}`)
	expectStatus(t, resp, http.StatusOK)
	if !env.camera.AutoExposure() {
		t.Error("auto exposure not applied")
	}

	resp = env.do(t, http.MethodPut, "/api/camera/gain", `{"gain":0.25}`)
	expectStatus(t, resp, http.StatusOK)
	if g := env.camera.Gain(); g != 0.25 {
		t.Errorf("gain = %v", g)
	}

	resp = env.do(t, http.MethodPut, "/api/camera/gain", `{"gain":2}`)
	expectStatus(t, resp, http.StatusBadRequest)

	resp = env.do(t, http.MethodPut, "/api/camera/trigger", `{"mode":"external_gate"}`)
	expectStatus(t, resp, http.StatusNotImplemented)

	resp = env.do(t, http.MethodPost, "/api/camera/roi/check", `{"x":0,"y":0,"width":0,"height":0}`)
	expectStatus(t, resp, http.StatusOK)
	roi := decode[acquisition.Roi](t, resp)
	if roi.Width != 640 || roi.Height != 480 {
		t.Errorf("roi = %+v", roi)
	}

	resp = env.do(t, http.MethodPost, "/api/camera/binning/check", `{"x":2,"y":2}`)
	expectStatus(t, resp, http.StatusNotImplemented)
}

func TestAcquisitionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/acquisition/start", "")
	expectStatus(t, resp, http.StatusBadRequest)

	resp = env.do(t, http.MethodPut, "/api/acquisition/frames", `{"frames":-1}`)
	expectStatus(t, resp, http.StatusBadRequest)

	resp = env.do(t, http.MethodPut, "/api/acquisition/frames", `{"frames":10}`)
	expectStatus(t, resp, http.StatusOK)

	resp = env.do(t, http.MethodPost, "/api/acquisition/prepare", "")
	expectStatus(t, resp, http.StatusOK)

	resp = env.do(t, http.MethodPost, "/api/acquisition/start", "")
	expectStatus(t, resp, http.StatusOK)
	st := decode[struct {
		Status     string `json:"status"`
		FrameCount int    `json:"frame_count"`
	}](t, resp)
	if st.Status != "exposure" || st.FrameCount != 10 {
		t.Errorf("status = %+v", st)
	}

	resp = env.do(t, http.MethodPut, "/api/acquisition/frames", `{"frames":5}`)
	expectStatus(t, resp, http.StatusConflict)

	resp = env.do(t, http.MethodPost, "/api/acquisition/stop", "")
	expectStatus(t, resp, http.StatusOK)
	st = decode[struct {
		Status     string `json:"status"`
		FrameCount int    `json:"frame_count"`
	}](t, resp)
	if st.Status != "ready" {
		t.Errorf("status after stop = %q", st.Status)
	}
}

func TestSnapshot(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/acquisition/snapshot", "")
	expectStatus(t, resp, http.StatusNotFound)

	env.snaps.OnFrame(acquisition.Frame{
		Data:   make([]byte, 16*8),
		Width:  16,
		Height: 8,
		Mode:   acquisition.Y8,
	})

	resp = env.do(t, http.MethodGet, "/api/acquisition/snapshot?format=png&max_width=8", "")
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestSinksAndDevices(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/acquisition/sinks", "")
	expectStatus(t, resp, http.StatusOK)
	sinks := decode[struct {
		Sinks []struct {
			Name    string `json:"name"`
			Sent    uint64 `json:"sent"`
			Dropped uint64 `json:"dropped"`
		} `json:"sinks"`
	}](t, resp)
	if len(sinks.Sinks) != 2 || sinks.Sinks[0].Name != "preview" {
		t.Fatalf("sinks = %+v", sinks)
	}
	if sinks.Sinks[0].Sent != 1 || sinks.Sinks[0].Dropped != 1 {
		t.Errorf("preview counters = %+v", sinks.Sinks[0])
	}

	resp = env.do(t, http.MethodGet, "/api/devices", "")
	expectStatus(t, resp, http.StatusOK)
	devs := decode[struct {
		Devices []struct {
			DevicePath string `json:"device_path"`
			Active     bool   `json:"active"`
		} `json:"devices"`
		Count int `json:"count"`
	}](t, resp)
	if devs.Count != 2 || !devs.Devices[0].Active || devs.Devices[1].Active {
		t.Errorf("devices = %+v", devs)
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t)

	creds := base64.StdEncoding.EncodeToString([]byte("test:secret"))
	resp, err := http.Get(env.ts.URL + "/api/events?auth=" + creds)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q", ct)
	}

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	next := func(prefix string) string {
		t.Helper()
		timeout := time.After(2 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed waiting for %q", prefix)
				}
				if strings.HasPrefix(line, prefix) {
					return line
				}
			case <-timeout:
				t.Fatalf("timed out waiting for %q", prefix)
			}
		}
	}

	if ev := next("event:"); !strings.Contains(ev, "acquisition-state") {
		t.Errorf("first event = %q", ev)
	}
	if data := next("data:"); !strings.Contains(data, `"state":"idle"`) {
		t.Errorf("initial state = %q", data)
	}

	// The initial state is sent after subscribing, so this is not lost.
	env.bus.Publish(events.FeatureDegradedEvent{DevicePath: "/dev/video0", Feature: "gain", Timestamp: events.Now()})
	if ev := next("event:"); !strings.Contains(ev, "feature-degraded") {
		t.Errorf("event = %q", ev)
	}
	if data := next("data:"); !strings.Contains(data, `"feature":"gain"`) {
		t.Errorf("data = %q", data)
	}
}
