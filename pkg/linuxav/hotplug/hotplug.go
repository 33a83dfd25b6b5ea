//go:build linux

// Package hotplug reads kernel uevents from a NETLINK_KOBJECT_UEVENT socket
// without cgo or libudev.
package hotplug

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// Actions carried by Event.Action.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionChange = "change"
)

// SubsystemVideo4Linux is the subsystem of V4L2 device nodes.
const SubsystemVideo4Linux = "video4linux"

// Event is one parsed uevent.
type Event struct {
	Action    string
	KObj      string
	Subsystem string
	DevName   string
	Env       map[string]string
}

// DevNode returns the /dev path of the event's node, or "" when the event
// carries no DEVNAME.
func (e Event) DevNode() string {
	if e.DevName == "" {
		return ""
	}
	if strings.HasPrefix(e.DevName, "/") {
		return e.DevName
	}
	return "/dev/" + e.DevName
}

// Monitor is a bound uevent socket.
type Monitor struct {
	fd         int
	subsystems map[string]bool
}

// NewMonitor binds to the kernel broadcast group. Only events of the given
// subsystems are delivered; none means all.
func NewMonitor(subsystems ...string) (*Monitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, fmt.Errorf("hotplug: socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("hotplug: bind: %w", err)
	}
	m := &Monitor{fd: fd, subsystems: map[string]bool{}}
	for _, s := range subsystems {
		m.subsystems[s] = true
	}
	return m, nil
}

// Close releases the socket.
func (m *Monitor) Close() error {
	return unix.Close(m.fd)
}

func (m *Monitor) accept(ev *Event) bool {
	return ev != nil && (len(m.subsystems) == 0 || m.subsystems[ev.Subsystem])
}

// Run calls fn for every matching event until ctx ends. It polls with a
// one second timeout so cancellation is noticed without closing the socket.
func (m *Monitor) Run(ctx context.Context, fn func(Event)) error {
	buf := make([]byte, 16<<10)
	fds := []unix.PollFd{{Fd: int32(m.fd), Events: unix.POLLIN}}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := unix.Poll(fds, 1000)
		if errors.Is(err, unix.EINTR) || n == 0 {
			continue
		}
		if err != nil {
			return fmt.Errorf("hotplug: poll: %w", err)
		}
		n, _, err = unix.Recvfrom(m.fd, buf, unix.MSG_DONTWAIT)
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ENOBUFS):
			// The kernel dropped events; later ones are still valid.
			continue
		case err != nil:
			return fmt.Errorf("hotplug: recv: %w", err)
		}
		if ev := ParseUEvent(buf[:n]); m.accept(ev) {
			fn(*ev)
		}
	}
}

// ParseUEvent decodes "ACTION@KOBJ\0KEY=VALUE\0...". Messages rebroadcast by
// udevd carry a binary "libudev" header, which is skipped. It returns nil for
// anything that is not a uevent.
func ParseUEvent(data []byte) *Event {
	if bytes.HasPrefix(data, []byte("libudev")) {
		data = skipUdevHeader(data)
	}
	fields := bytes.Split(data, []byte{0})
	if len(fields) == 0 {
		return nil
	}
	action, kobj, ok := strings.Cut(string(fields[0]), "@")
	if !ok || action == "" {
		return nil
	}

	ev := &Event{Action: action, KObj: kobj, Env: map[string]string{}}
	for _, f := range fields[1:] {
		key, value, ok := strings.Cut(string(f), "=")
		if !ok || key == "" {
			continue
		}
		ev.Env[key] = value
		switch key {
		case "SUBSYSTEM":
			ev.Subsystem = value
		case "DEVNAME":
			ev.DevName = value
		}
	}
	return ev
}

func skipUdevHeader(data []byte) []byte {
	for i := 0; i < len(data)-1; i++ {
		if data[i] != 0 {
			continue
		}
		rest := data[i+1:]
		at, nul := bytes.IndexByte(rest, '@'), bytes.IndexByte(rest, 0)
		if at > 0 && at < 20 && (nul < 0 || at < nul) {
			return rest
		}
	}
	return nil
}
