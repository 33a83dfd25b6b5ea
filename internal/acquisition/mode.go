package acquisition

import (
	"fmt"
	"strings"
)

// VideoMode identifies a pixel layout independently of the device's own
// format codes.
type VideoMode int

// Video modes.
const (
	Y8 VideoMode = iota
	Y16
	Y32
	Y64
	RGB555
	RGB565
	RGB24
	RGB32
	BGR24
	BGR32
	BayerRG8
	BayerRG16
	BayerBG8
	BayerBG16
	I420
	YUV411
	YUV422
	YUV444
	YUV411Packed
	YUV422Packed
	YUV444Packed
)

var modeNames = [...]string{
	Y8:           "Y8",
	Y16:          "Y16",
	Y32:          "Y32",
	Y64:          "Y64",
	RGB555:       "RGB555",
	RGB565:       "RGB565",
	RGB24:        "RGB24",
	RGB32:        "RGB32",
	BGR24:        "BGR24",
	BGR32:        "BGR32",
	BayerRG8:     "BAYER_RG8",
	BayerRG16:    "BAYER_RG16",
	BayerBG8:     "BAYER_BG8",
	BayerBG16:    "BAYER_BG16",
	I420:         "I420",
	YUV411:       "YUV411",
	YUV422:       "YUV422",
	YUV444:       "YUV444",
	YUV411Packed: "YUV411PACKED",
	YUV422Packed: "YUV422PACKED",
	YUV444Packed: "YUV444PACKED",
}

// AllModes lists every VideoMode in declaration order.
func AllModes() []VideoMode {
	modes := make([]VideoMode, len(modeNames))
	for i := range modeNames {
		modes[i] = VideoMode(i)
	}
	return modes
}

func (m VideoMode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("VideoMode(%d)", int(m))
	}
	return modeNames[m]
}

// Valid reports whether m is a declared mode.
func (m VideoMode) Valid() bool {
	return m >= 0 && int(m) < len(modeNames)
}

// ParseVideoMode resolves a mode name, ignoring case.
func ParseVideoMode(s string) (VideoMode, error) {
	for i, name := range modeNames {
		if strings.EqualFold(name, s) {
			return VideoMode(i), nil
		}
	}
	return 0, newError(ErrCodeInvalidValue, nil, "unknown video mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m VideoMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, newError(ErrCodeInvalidValue, nil, "invalid video mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *VideoMode) UnmarshalText(b []byte) error {
	v, err := ParseVideoMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
