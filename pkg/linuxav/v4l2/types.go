package v4l2

import (
	"fmt"
	"time"
)

// DeviceInfo contains information about a V4L2 device.
type DeviceInfo struct {
	DevicePath string
	DeviceName string
	DeviceID   string // Stable identifier (from /dev/v4l/by-id/ or synthetic)
	Caps       uint32
}

// Capability is the decoded result of VIDIOC_QUERYCAP.
type Capability struct {
	Driver       string
	Card         string
	BusInfo      string
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
}

// Effective returns the capability set of the opened node, which is
// DeviceCaps when the driver reports it and Capabilities otherwise.
func (c Capability) Effective() uint32 {
	if c.Capabilities&CapDeviceCaps != 0 {
		return c.DeviceCaps
	}
	return c.Capabilities
}

// CanCapture reports whether the node supports single-planar video capture.
func (c Capability) CanCapture() bool {
	return c.Effective()&CapVideoCapture != 0
}

// CanStream reports whether the node supports streaming I/O.
func (c Capability) CanStream() bool {
	return c.Effective()&CapStreaming != 0
}

// FormatInfo contains information about a supported pixel format.
type FormatInfo struct {
	PixelFormat uint32
	FormatName  string
	Emulated    bool
	Compressed  bool
}

// PixFormat is the single-planar image format negotiated with the driver.
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   uint32
}

func (f PixFormat) String() string {
	return fmt.Sprintf("%dx%d %s", f.Width, f.Height, FormatFourCC(f.PixelFormat))
}

// Resolution represents a supported video resolution.
type Resolution struct {
	Width  uint32
	Height uint32
}

// Fract is a V4L2 fraction. As a frame interval it is seconds per frame.
type Fract struct {
	Numerator   uint32
	Denominator uint32
}

// FPS returns the frame rate for a frame interval.
func (f Fract) FPS() float64 {
	if f.Numerator == 0 {
		return 0
	}
	return float64(f.Denominator) / float64(f.Numerator)
}

// Less reports whether f is a strictly shorter interval than o.
func (f Fract) Less(o Fract) bool {
	return uint64(f.Numerator)*uint64(o.Denominator) < uint64(o.Numerator)*uint64(f.Denominator)
}

func (f Fract) String() string {
	return fmt.Sprintf("%d/%d", f.Numerator, f.Denominator)
}

// FrameInterval is one entry of VIDIOC_ENUM_FRAMEINTERVALS. Discrete entries
// have Min == Max.
type FrameInterval struct {
	Type uint32
	Min  Fract
	Max  Fract
	Step Fract
}

// CaptureParm is the capture half of VIDIOC_G_PARM.
type CaptureParm struct {
	Capability   uint32
	CaptureMode  uint32
	TimePerFrame Fract
}

// CanSetInterval reports whether the driver honours TimePerFrame.
func (p CaptureParm) CanSetInterval() bool {
	return p.Capability&CapTimePerFrame != 0
}

// ControlInfo is the decoded result of VIDIOC_QUERYCTRL.
type ControlInfo struct {
	ID      uint32
	Type    uint32
	Name    string
	Minimum int32
	Maximum int32
	Step    int32
	Default int32
	Flags   uint32
}

// Disabled reports whether the driver flagged the control as unusable.
func (c ControlInfo) Disabled() bool {
	return c.Flags&CtrlFlagDisabled != 0
}

// BufferInfo describes one driver buffer as returned by QUERYBUF or DQBUF.
type BufferInfo struct {
	Index     uint32
	Offset    uint32
	Length    uint32
	BytesUsed uint32
	Flags     uint32
	Sequence  uint32
	Timestamp time.Duration
}

// Capability flags.
const (
	CapVideoCapture = 0x00000001
	CapStreaming    = 0x04000000
	CapDeviceCaps   = 0x80000000
	CapTimePerFrame = 0x1000
)

// Format flags.
const (
	FmtFlagCompressed = 0x0001
	FmtFlagEmulated   = 0x0002
)

// Frame size and interval types.
const (
	FrmTypeDiscrete   = 1
	FrmTypeContinuous = 2
	FrmTypeStepwise   = 3
)

// Buffer type and memory model.
const (
	BufTypeVideoCapture = 1
	MemoryMmap          = 1
)

// Controls.
const (
	CIDBase             = 0x00980900
	CIDGain             = CIDBase + 19
	CIDExposureAuto     = 0x009a0901
	CIDExposureAbsolute = 0x009a0902

	ExposureAuto   = 0
	ExposureManual = 1

	CtrlFlagDisabled = 0x0001
)

// Pixel formats.
const (
	PixFmtGREY    = 0x59455247 // 'GREY'
	PixFmtY16     = 0x20363159 // 'Y16 '
	PixFmtRGB555  = 0x4f424752 // 'RGBO'
	PixFmtRGB565  = 0x50424752 // 'RGBP'
	PixFmtBGR24   = 0x33524742 // 'BGR3'
	PixFmtRGB24   = 0x33424752 // 'RGB3'
	PixFmtBGR32   = 0x34524742 // 'BGR4'
	PixFmtRGB32   = 0x34424752 // 'RGB4'
	PixFmtYUV422P = 0x50323234 // '422P'
	PixFmtYUV411P = 0x50313134 // '411P'
	PixFmtYUV420  = 0x32315559 // 'YU12'
	PixFmtYVU420  = 0x32315659 // 'YV12'
	PixFmtYUYV    = 0x56595559 // 'YUYV'
	PixFmtUYVY    = 0x59565955 // 'UYVY'
	PixFmtY41P    = 0x50313459 // 'Y41P'
	PixFmtYUV444  = 0x34343459 // 'Y444'
	PixFmtNV12    = 0x3231564e // 'NV12'
	PixFmtSBGGR8  = 0x31384142 // 'BA81'
	PixFmtSRGGB8  = 0x42474752 // 'RGGB'
	PixFmtSBGGR16 = 0x32525942 // 'BYR2'
	PixFmtSRGGB16 = 0x36314752 // 'RG16'
	PixFmtMJPEG   = 0x47504a4d // 'MJPG'
)

// FourCC packs four characters into a pixel format code.
func FourCC(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// FormatFourCC converts a 4-byte pixel format to a human-readable string.
func FormatFourCC(format uint32) string {
	return string([]byte{
		byte(format),
		byte(format >> 8),
		byte(format >> 16),
		byte(format >> 24),
	})
}
