package acquisition

import (
	"errors"

	"github.com/smazurov/framegrab/pkg/linuxav/v4l2"
)

// ringSize is the number of capture buffers. Two gives double buffering.
const ringSize = 2

type captureBuffer struct {
	mem    []byte
	offset uint32
	queued bool
}

// ring owns the memory-mapped capture buffers of the current format. All
// buffers share one length.
type ring struct {
	dev       Device
	bufs      [ringSize]captureBuffer
	length    int
	requested bool
}

func (r *ring) request(count uint32) error {
	got, err := r.dev.RequestBuffers(count)
	if err != nil {
		return newError(ErrCodeHardware, err, "request %d buffers", count)
	}
	r.requested = count > 0
	if count > 0 && got < count {
		return newError(ErrCodeHardware, nil, "device granted %d of %d buffers", got, count)
	}
	return nil
}

// mapAll requests the ring from the driver and maps every buffer. On
// failure the buffers already mapped stay mapped; callers follow up with
// unmap.
func (r *ring) mapAll() error {
	if err := r.request(ringSize); err != nil {
		return err
	}
	for i := range r.bufs {
		info, err := r.dev.QueryBuffer(uint32(i))
		if err != nil {
			return newError(ErrCodeHardware, err, "query buffer %d", i)
		}
		mem, err := r.dev.MapBuffer(info)
		if err != nil {
			return newError(ErrCodeHardware, err, "map buffer %d", i)
		}
		clear(mem)
		r.bufs[i] = captureBuffer{mem: mem, offset: info.Offset}
		r.length = int(info.Length)
	}
	return nil
}

// unmap releases every mapping and then the driver-side allocation. It is
// a no-op when nothing is mapped or requested.
func (r *ring) unmap() error {
	if !r.mapped() && !r.requested {
		return nil
	}
	var errs []error
	for i := range r.bufs {
		if r.bufs[i].mem == nil {
			continue
		}
		if err := r.dev.UnmapBuffer(r.bufs[i].mem); err != nil {
			errs = append(errs, err)
		}
		r.bufs[i] = captureBuffer{}
	}
	r.length = 0
	if err := r.request(0); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return newError(ErrCodeHardware, errors.Join(errs...), "release buffers")
	}
	return nil
}

func (r *ring) mapped() bool {
	return r.bufs[0].mem != nil
}

func (r *ring) queue(index uint32) error {
	if err := r.dev.QueueBuffer(index); err != nil {
		return newError(ErrCodeHardware, err, "queue buffer %d", index)
	}
	r.bufs[index].queued = true
	return nil
}

func (r *ring) queueAll() error {
	for i := range r.bufs {
		if err := r.queue(uint32(i)); err != nil {
			return err
		}
	}
	return nil
}

// dequeue returns the index of a filled buffer and the driver's view of it.
func (r *ring) dequeue() (v4l2.BufferInfo, error) {
	info, err := r.dev.DequeueBuffer()
	if err != nil {
		return info, err
	}
	if int(info.Index) >= len(r.bufs) {
		return info, newError(ErrCodeHardware, nil, "driver returned buffer index %d", info.Index)
	}
	r.bufs[info.Index].queued = false
	return info, nil
}

// data returns the filled part of a dequeued buffer.
func (r *ring) data(info v4l2.BufferInfo) []byte {
	mem := r.bufs[info.Index].mem
	if info.BytesUsed == 0 || int(info.BytesUsed) > len(mem) {
		return mem
	}
	return mem[:info.BytesUsed]
}

func (r *ring) anyQueued() bool {
	for i := range r.bufs {
		if r.bufs[i].queued {
			return true
		}
	}
	return false
}

// reclaim records that stream-off returned every buffer to userspace.
func (r *ring) reclaim() {
	for i := range r.bufs {
		r.bufs[i].queued = false
	}
}
