package acquisition

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// canceller wakes a goroutine blocked in poll on a device fd. The read end
// of a pipe is polled next to the device; writing a byte or closing the
// write end makes it readable.
type canceller struct {
	r, w      int
	closeOnce sync.Once
}

func newCanceller() (*canceller, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, fmt.Errorf("cancel pipe: %w", err)
	}
	return &canceller{r: fds[0], w: fds[1]}, nil
}

// signal is safe to call repeatedly. A full pipe already guarantees a
// wakeup, so EAGAIN is not an error.
func (c *canceller) signal() error {
	_, err := unix.Write(c.w, []byte{'|'})
	if err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("cancel pipe write: %w", err)
	}
	return nil
}

// wait blocks until fd is readable or the canceller fires. It reports true
// only when fd has data; false means the caller must re-check its state.
func (c *canceller) wait(fd int) (bool, error) {
	fds := []unix.PollFd{
		{Fd: int32(c.r), Events: unix.POLLIN},
		{Fd: int32(fd), Events: unix.POLLIN},
	}
	for {
		_, err := unix.Poll(fds, -1)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EINTR) {
			return false, fmt.Errorf("poll: %w", err)
		}
	}

	if fds[0].Revents != 0 {
		c.drain()
		return false, nil
	}

	dev := fds[1].Revents
	if dev&unix.POLLIN != 0 {
		return true, nil
	}
	if dev&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		return false, fmt.Errorf("poll: device revents 0x%x", dev)
	}
	return false, nil
}

// drain empties the pipe. Reads stop at EAGAIN or at EOF once the write end
// is closed.
func (c *canceller) drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(c.r, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// closeWrite wakes the waiter permanently with POLLHUP.
func (c *canceller) closeWrite() {
	c.closeOnce.Do(func() {
		unix.Close(c.w)
	})
}

func (c *canceller) closeRead() {
	unix.Close(c.r)
}
