//go:build linux && arm

package v4l2

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Compile-time struct size assertions for 32-bit ARM.
var (
	_ [204]byte = [unsafe.Sizeof(v4l2Format{})]byte{}
	_ [68]byte  = [unsafe.Sizeof(v4l2Buffer{})]byte{}
)

// IOCTL constants for 32-bit ARM. v4l2_format and v4l2_buffer shrink
// because pointers and struct timeval are 4-byte wide.
const (
	vidiocGFmt     = 0xc0cc5604
	vidiocSFmt     = 0xc0cc5605
	vidiocQuerybuf = 0xc0445609
	vidiocQbuf     = 0xc044560f
	vidiocDqbuf    = 0xc0445611
)

// v4l2Format has size 204 bytes.
type v4l2Format struct {
	typ uint32        // offset 0
	pix v4l2PixFormat // offset 4
	_   [152]byte     // rest of the union
}

// v4l2Buffer has size 68 bytes.
type v4l2Buffer struct {
	index     uint32       // offset 0
	typ       uint32       // offset 4
	bytesused uint32       // offset 8
	flags     uint32       // offset 12
	field     uint32       // offset 16
	timestamp unix.Timeval // offset 20
	timecode  v4l2Timecode // offset 28
	sequence  uint32       // offset 44
	memory    uint32       // offset 48
	offset    uint32       // offset 52, m.offset
	length    uint32       // offset 56
	reserved2 uint32       // offset 60
	requestFD int32        // offset 64
}
