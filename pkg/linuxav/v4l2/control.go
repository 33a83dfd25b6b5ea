//go:build linux

package v4l2

import (
	"fmt"
	"unsafe"
)

// QueryControl issues VIDIOC_QUERYCTRL. Drivers answer EINVAL for
// controls they do not implement.
func (d *Device) QueryControl(id uint32) (ControlInfo, error) {
	q := v4l2Queryctrl{id: id}
	if err := ioctl(d.fd, vidiocQueryctrl, unsafe.Pointer(&q)); err != nil {
		return ControlInfo{}, fmt.Errorf("VIDIOC_QUERYCTRL 0x%08x: %w", id, err)
	}
	return ControlInfo{
		ID:      q.id,
		Type:    q.typ,
		Name:    cstr(q.name[:]),
		Minimum: q.minimum,
		Maximum: q.maximum,
		Step:    q.step,
		Default: q.defaultValue,
		Flags:   q.flags,
	}, nil
}

// Control reads the current value of a control.
func (d *Device) Control(id uint32) (int32, error) {
	c := v4l2Control{id: id}
	if err := ioctl(d.fd, vidiocGCtrl, unsafe.Pointer(&c)); err != nil {
		return 0, fmt.Errorf("VIDIOC_G_CTRL 0x%08x: %w", id, err)
	}
	return c.value, nil
}

// SetControl writes a control value.
func (d *Device) SetControl(id uint32, value int32) error {
	c := v4l2Control{id: id, value: value}
	if err := ioctl(d.fd, vidiocSCtrl, unsafe.Pointer(&c)); err != nil {
		return fmt.Errorf("VIDIOC_S_CTRL 0x%08x=%d: %w", id, value, err)
	}
	return nil
}
