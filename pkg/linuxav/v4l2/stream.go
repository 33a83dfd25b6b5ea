//go:build linux

package v4l2

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// RequestBuffers issues VIDIOC_REQBUFS for memory-mapped capture buffers
// and returns the count the driver granted. A count of zero releases every
// buffer and requires that none is mapped.
func (d *Device) RequestBuffers(count uint32) (uint32, error) {
	req := v4l2Requestbuffers{
		count:  count,
		typ:    BufTypeVideoCapture,
		memory: MemoryMmap,
	}
	if err := ioctl(d.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return 0, fmt.Errorf("VIDIOC_REQBUFS count=%d: %w", count, err)
	}
	return req.count, nil
}

// QueryBuffer issues VIDIOC_QUERYBUF for one buffer index.
func (d *Device) QueryBuffer(index uint32) (BufferInfo, error) {
	buf := v4l2Buffer{
		index:  index,
		typ:    BufTypeVideoCapture,
		memory: MemoryMmap,
	}
	if err := ioctl(d.fd, vidiocQuerybuf, unsafe.Pointer(&buf)); err != nil {
		return BufferInfo{}, fmt.Errorf("VIDIOC_QUERYBUF index=%d: %w", index, err)
	}
	return bufferInfo(&buf), nil
}

// MapBuffer maps a queried buffer read/write into the process.
func (d *Device) MapBuffer(info BufferInfo) ([]byte, error) {
	mem, err := unix.Mmap(d.fd, int64(info.Offset), int(info.Length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap buffer %d: %w", info.Index, err)
	}
	return mem, nil
}

// UnmapBuffer releases a mapping returned by MapBuffer.
func (d *Device) UnmapBuffer(mem []byte) error {
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}

// QueueBuffer hands a buffer to the driver for filling.
func (d *Device) QueueBuffer(index uint32) error {
	buf := v4l2Buffer{
		index:  index,
		typ:    BufTypeVideoCapture,
		memory: MemoryMmap,
	}
	if err := ioctl(d.fd, vidiocQbuf, unsafe.Pointer(&buf)); err != nil {
		return fmt.Errorf("VIDIOC_QBUF index=%d: %w", index, err)
	}
	return nil
}

// DequeueBuffer reclaims a filled buffer. The device is non-blocking, so
// EAGAIN is returned (wrapped) when no buffer is ready.
func (d *Device) DequeueBuffer() (BufferInfo, error) {
	buf := v4l2Buffer{
		typ:    BufTypeVideoCapture,
		memory: MemoryMmap,
	}
	if err := ioctl(d.fd, vidiocDqbuf, unsafe.Pointer(&buf)); err != nil {
		return BufferInfo{}, fmt.Errorf("VIDIOC_DQBUF: %w", err)
	}
	return bufferInfo(&buf), nil
}

// StreamOn starts capture on the queue.
func (d *Device) StreamOn() error {
	typ := uint32(BufTypeVideoCapture)
	if err := ioctl(d.fd, vidiocStreamon, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("VIDIOC_STREAMON: %w", err)
	}
	return nil
}

// StreamOff stops capture. The driver returns every queued buffer to the
// dequeued state.
func (d *Device) StreamOff() error {
	typ := uint32(BufTypeVideoCapture)
	if err := ioctl(d.fd, vidiocStreamoff, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("VIDIOC_STREAMOFF: %w", err)
	}
	return nil
}

func bufferInfo(b *v4l2Buffer) BufferInfo {
	return BufferInfo{
		Index:     b.index,
		Offset:    b.offset,
		Length:    b.length,
		BytesUsed: b.bytesused,
		Flags:     b.flags,
		Sequence:  b.sequence,
		Timestamp: time.Duration(b.timestamp.Nano()),
	}
}
