package acquisition

import (
	"sync"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/smazurov/framegrab/pkg/linuxav/v4l2"
)

// fakeDevice emulates a capture driver. Its fd is the read end of a pipe
// that holds one byte per filled buffer.
type fakeDevice struct {
	t *testing.T

	mu         sync.Mutex
	r, w       int
	caps       v4l2.Capability
	formats    []v4l2.FormatInfo
	format     v4l2.PixFormat
	substitute map[uint32]uint32
	parm       v4l2.CaptureParm
	intervals  []v4l2.FrameInterval
	ivalErr    error
	setIvalErr error
	applied    []v4l2.Fract
	ctrls      map[uint32]v4l2.ControlInfo
	values     map[uint32]int32
	getErr     map[uint32]error
	setErr     map[uint32]error

	requested uint32
	queued    []uint32
	done      []uint32
	streaming bool
	autoFill  bool
	sequence  uint32
	dqErr     error

	maps      int
	unmaps    int
	ops       []string
	streamOns int
	streamOff int
	closed    bool
}

func newFakeDevice(t *testing.T, codes ...uint32) *fakeDevice {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	d := &fakeDevice{
		t: t,
		r: fds[0],
		w: fds[1],
		caps: v4l2.Capability{
			Driver:       "fake",
			Card:         "Fake Camera",
			BusInfo:      "platform:fake",
			Capabilities: v4l2.CapVideoCapture | v4l2.CapStreaming,
		},
		format:     v4l2.PixFormat{Width: 8, Height: 4, PixelFormat: v4l2.PixFmtMJPEG},
		substitute: map[uint32]uint32{},
		ctrls:      map[uint32]v4l2.ControlInfo{},
		values:     map[uint32]int32{},
		getErr:     map[uint32]error{},
		setErr:     map[uint32]error{},
		autoFill:   true,
	}
	for _, c := range codes {
		d.formats = append(d.formats, v4l2.FormatInfo{PixelFormat: c, FormatName: v4l2.FormatFourCC(c)})
	}
	t.Cleanup(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if !d.closed {
			unix.Close(d.r)
			unix.Close(d.w)
			d.closed = true
		}
	})
	return d
}

func (d *fakeDevice) Fd() int { return d.r }

func (d *fakeDevice) Path() string { return "/dev/fake0" }

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	unix.Close(d.r)
	unix.Close(d.w)
	return nil
}

func (d *fakeDevice) Capability() (v4l2.Capability, error) { return d.caps, nil }

func (d *fakeDevice) PixelFormats() ([]v4l2.FormatInfo, error) { return d.formats, nil }

func (d *fakeDevice) Format() (v4l2.PixFormat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format, nil
}

func (d *fakeDevice) SetFormat(f v4l2.PixFormat) (v4l2.PixFormat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.requested > 0 || d.streaming {
		return v4l2.PixFormat{}, unix.EBUSY
	}
	if sub, ok := d.substitute[f.PixelFormat]; ok {
		f.PixelFormat = sub
	}
	f.BytesPerLine, f.SizeImage = fakeLayout(f)
	d.format = f
	d.ops = append(d.ops, "set "+v4l2.FormatFourCC(f.PixelFormat))
	return f, nil
}

// fakeLayout sizes a frame the way a driver would for the common codes.
func fakeLayout(f v4l2.PixFormat) (bytesPerLine, size uint32) {
	switch f.PixelFormat {
	case v4l2.PixFmtGREY:
		return f.Width, f.Width * f.Height
	case v4l2.PixFmtRGB24, v4l2.PixFmtBGR24:
		return f.Width * 3, f.Width * 3 * f.Height
	case v4l2.PixFmtYUV420, v4l2.PixFmtYVU420:
		return f.Width, f.Width * f.Height * 3 / 2
	default:
		return f.Width * 2, f.Width * 2 * f.Height
	}
}

func (d *fakeDevice) FrameIntervals(_, _, _ uint32) ([]v4l2.FrameInterval, error) {
	return d.intervals, d.ivalErr
}

func (d *fakeDevice) CaptureParm() (v4l2.CaptureParm, error) { return d.parm, nil }

func (d *fakeDevice) SetFrameInterval(f v4l2.Fract) (v4l2.Fract, error) {
	if d.setIvalErr != nil {
		return v4l2.Fract{}, d.setIvalErr
	}
	d.applied = append(d.applied, f)
	return f, nil
}

func (d *fakeDevice) QueryControl(id uint32) (v4l2.ControlInfo, error) {
	q, ok := d.ctrls[id]
	if !ok {
		return v4l2.ControlInfo{}, unix.EINVAL
	}
	return q, nil
}

func (d *fakeDevice) Control(id uint32) (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.getErr[id]; err != nil {
		return 0, err
	}
	return d.values[id], nil
}

func (d *fakeDevice) SetControl(id uint32, value int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.setErr[id]; err != nil {
		return err
	}
	d.values[id] = value
	return nil
}

func (d *fakeDevice) RequestBuffers(count uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.streaming {
		return 0, unix.EBUSY
	}
	d.requested = count
	return count, nil
}

func (d *fakeDevice) QueryBuffer(index uint32) (v4l2.BufferInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index >= d.requested {
		return v4l2.BufferInfo{}, unix.EINVAL
	}
	return v4l2.BufferInfo{Index: index, Offset: index * 4096, Length: d.format.SizeImage}, nil
}

func (d *fakeDevice) MapBuffer(info v4l2.BufferInfo) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maps++
	d.ops = append(d.ops, "map")
	return make([]byte, info.Length), nil
}

func (d *fakeDevice) UnmapBuffer([]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unmaps++
	d.ops = append(d.ops, "unmap")
	return nil
}

func (d *fakeDevice) QueueBuffer(index uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index >= d.requested {
		return unix.EINVAL
	}
	d.queued = append(d.queued, index)
	if d.streaming && d.autoFill {
		d.fillLocked()
	}
	return nil
}

func (d *fakeDevice) DequeueBuffer() (v4l2.BufferInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dqErr != nil {
		return v4l2.BufferInfo{}, d.dqErr
	}
	var b [1]byte
	if _, err := unix.Read(d.r, b[:]); err != nil {
		return v4l2.BufferInfo{}, err
	}
	if len(d.done) == 0 {
		return v4l2.BufferInfo{}, unix.EAGAIN
	}
	index := d.done[0]
	d.done = d.done[1:]
	d.sequence++
	return v4l2.BufferInfo{
		Index:     index,
		Length:    d.format.SizeImage,
		BytesUsed: d.format.SizeImage,
		Sequence:  d.sequence,
	}, nil
}

func (d *fakeDevice) StreamOn() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streaming = true
	d.streamOns++
	if d.autoFill {
		for len(d.queued) > 0 {
			d.fillLocked()
		}
	}
	return nil
}

func (d *fakeDevice) StreamOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streaming = false
	d.streamOff++
	d.queued = nil
	d.done = nil
	var b [16]byte
	for {
		if n, err := unix.Read(d.r, b[:]); n <= 0 || err != nil {
			break
		}
	}
	return nil
}

// fill completes the oldest queued buffer.
func (d *fakeDevice) fill() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fillLocked()
}

func (d *fakeDevice) fillLocked() {
	if len(d.queued) == 0 {
		return
	}
	d.done = append(d.done, d.queued[0])
	d.queued = d.queued[1:]
	if _, err := unix.Write(d.w, []byte{1}); err != nil {
		d.t.Errorf("fake fill: %v", err)
	}
}

func (d *fakeDevice) stats() (streamOns, streamOffs, requested int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streamOns, d.streamOff, int(d.requested)
}

// takeOps returns and clears the recorded format and mapping calls.
func (d *fakeDevice) takeOps() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ops := d.ops
	d.ops = nil
	return ops
}

func (d *fakeDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
