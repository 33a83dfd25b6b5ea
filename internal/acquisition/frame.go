package acquisition

import "time"

// Frame is one captured image. Data aliases a driver buffer and is only
// valid until OnFrame returns; consumers that keep it must copy.
type Frame struct {
	ID      int
	Session string
	// SessionStart is when Start was called for the run.
	SessionStart time.Time
	Data         []byte
	Width        uint32
	Height       uint32
	Mode         VideoMode
	// PixelFormat is the device code behind Mode, which tells apart
	// encodings that share a mode such as YU12 and YV12.
	PixelFormat  uint32
	BytesPerLine uint32
	Sequence     uint32
	Timestamp    time.Duration
}

// FrameHandler consumes frames on the acquisition goroutine. Returning false
// ends the run as Stop would. Handlers must return promptly.
type FrameHandler interface {
	OnFrame(Frame) bool
}

// FrameHandlerFunc adapts a function to FrameHandler.
type FrameHandlerFunc func(Frame) bool

// OnFrame calls f.
func (f FrameHandlerFunc) OnFrame(fr Frame) bool { return f(fr) }

type discard struct{}

func (discard) OnFrame(Frame) bool { return true }

// Clone returns f with its own copy of Data.
func (f Frame) Clone() Frame {
	f.Data = append([]byte(nil), f.Data...)
	return f
}

// CopyInto is Clone reusing buf's storage when it is large enough.
func (f Frame) CopyInto(buf []byte) Frame {
	f.Data = append(buf[:0], f.Data...)
	return f
}
