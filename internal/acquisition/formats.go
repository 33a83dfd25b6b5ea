package acquisition

import "github.com/smazurov/framegrab/pkg/linuxav/v4l2"

// formatTable maps device pixel format codes to video modes. Several codes
// may decode to the same mode; the first row for a mode is its canonical
// encoding.
var formatTable = []struct {
	code uint32
	mode VideoMode
}{
	{v4l2.PixFmtGREY, Y8},
	{v4l2.PixFmtY16, Y16},
	{v4l2.PixFmtRGB555, RGB555},
	{v4l2.PixFmtRGB565, RGB565},
	{v4l2.PixFmtRGB24, RGB24},
	{v4l2.PixFmtRGB32, RGB32},
	{v4l2.PixFmtBGR24, BGR24},
	{v4l2.PixFmtBGR32, BGR32},
	{v4l2.PixFmtSRGGB8, BayerRG8},
	{v4l2.PixFmtSRGGB16, BayerRG16},
	{v4l2.PixFmtSBGGR8, BayerBG8},
	{v4l2.PixFmtSBGGR16, BayerBG16},
	{v4l2.PixFmtYUV420, I420},
	{v4l2.PixFmtYVU420, I420},
	{v4l2.PixFmtYUV411P, YUV411},
	{v4l2.PixFmtYUV422P, YUV422},
	{v4l2.PixFmtY41P, YUV411Packed},
	{v4l2.PixFmtYUYV, YUV422Packed},
	{v4l2.PixFmtYUV444, YUV444Packed},
}

var (
	codeToMode = make(map[uint32]VideoMode, len(formatTable))
	modeToCode = make(map[VideoMode]uint32, len(formatTable))
)

func init() {
	for _, row := range formatTable {
		codeToMode[row.code] = row.mode
		if _, ok := modeToCode[row.mode]; !ok {
			modeToCode[row.mode] = row.code
		}
	}
}

// preferredModes is scanned in order to pick the startup mode: Bayer,
// then YUV, then RGB, then luma with the deepest luma last.
var preferredModes = []VideoMode{
	BayerBG8, BayerRG8, BayerBG16, BayerRG16,
	I420, YUV422, YUV411, YUV444, YUV422Packed, YUV411Packed, YUV444Packed,
	RGB24, BGR24, RGB32, BGR32, RGB565, RGB555,
	Y8, Y16,
}

// ModeForCode decodes a device pixel format code.
func ModeForCode(code uint32) (VideoMode, bool) {
	m, ok := codeToMode[code]
	return m, ok
}

// CodeForMode returns the canonical device code for a mode.
func CodeForMode(m VideoMode) (uint32, error) {
	code, ok := modeToCode[m]
	if !ok {
		return 0, newError(ErrCodeNotSupported, nil, "video mode %s has no device format", m)
	}
	return code, nil
}

// DefaultMode picks the first preferred mode present in modes.
func DefaultMode(modes []VideoMode) (VideoMode, error) {
	for _, want := range preferredModes {
		for _, have := range modes {
			if want == have {
				return want, nil
			}
		}
	}
	return 0, newError(ErrCodeHardware, nil, "device offers none of the supported video modes")
}

// formatSet is the immutable list of modes a device advertises, in the
// order the driver reported them, with the advertised code for each.
type formatSet struct {
	modes []VideoMode
	codes map[VideoMode]uint32
}

func newFormatSet(formats []v4l2.FormatInfo) formatSet {
	fs := formatSet{codes: make(map[VideoMode]uint32)}
	for _, f := range formats {
		m, ok := ModeForCode(f.PixelFormat)
		if !ok {
			continue
		}
		if _, dup := fs.codes[m]; dup {
			continue
		}
		fs.codes[m] = f.PixelFormat
		fs.modes = append(fs.modes, m)
	}
	return fs
}

func (fs formatSet) contains(m VideoMode) bool {
	_, ok := fs.codes[m]
	return ok
}

// code resolves m to the code the device itself advertised for it, so that
// many-to-one decodings round-trip through the driver.
func (fs formatSet) code(m VideoMode) (uint32, error) {
	if _, err := CodeForMode(m); err != nil {
		return 0, err
	}
	code, ok := fs.codes[m]
	if !ok {
		return 0, newError(ErrCodeNotSupported, nil, "video mode %s is not offered by the device", m)
	}
	return code, nil
}
