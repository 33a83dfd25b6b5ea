package acquisition

import "github.com/smazurov/framegrab/pkg/linuxav/v4l2"

// Device is the driver surface the engine drives. *v4l2.Device satisfies it.
//
// Fd must become readable when DequeueBuffer has a filled buffer to return,
// and DequeueBuffer must not block.
type Device interface {
	Fd() int
	Close() error

	Capability() (v4l2.Capability, error)
	PixelFormats() ([]v4l2.FormatInfo, error)
	Format() (v4l2.PixFormat, error)
	SetFormat(v4l2.PixFormat) (v4l2.PixFormat, error)
	FrameIntervals(pixelFormat, width, height uint32) ([]v4l2.FrameInterval, error)
	CaptureParm() (v4l2.CaptureParm, error)
	SetFrameInterval(v4l2.Fract) (v4l2.Fract, error)

	QueryControl(id uint32) (v4l2.ControlInfo, error)
	Control(id uint32) (int32, error)
	SetControl(id uint32, value int32) error

	RequestBuffers(count uint32) (uint32, error)
	QueryBuffer(index uint32) (v4l2.BufferInfo, error)
	MapBuffer(v4l2.BufferInfo) ([]byte, error)
	UnmapBuffer([]byte) error
	QueueBuffer(index uint32) error
	DequeueBuffer() (v4l2.BufferInfo, error)
	StreamOn() error
	StreamOff() error
}

var _ Device = (*v4l2.Device)(nil)
