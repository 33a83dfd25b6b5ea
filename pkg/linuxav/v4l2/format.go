//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"
)

// PixelFormats enumerates the capture formats advertised by the driver.
func (d *Device) PixelFormats() ([]FormatInfo, error) {
	var formats []FormatInfo

	for i := uint32(0); ; i++ {
		fmtdesc := v4l2Fmtdesc{
			index: i,
			typ:   BufTypeVideoCapture,
		}

		if err := ioctl(d.fd, vidiocEnumFmt, unsafe.Pointer(&fmtdesc)); err != nil {
			if errors.Is(err, syscall.EINVAL) {
				break // End of enumeration
			}
			return nil, fmt.Errorf("failed to enumerate format %d: %w", i, err)
		}

		formats = append(formats, FormatInfo{
			PixelFormat: fmtdesc.pixelformat,
			FormatName:  cstr(fmtdesc.description[:]),
			Emulated:    fmtdesc.flags&FmtFlagEmulated != 0,
			Compressed:  fmtdesc.flags&FmtFlagCompressed != 0,
		})
	}

	return formats, nil
}

// Format issues VIDIOC_G_FMT for the capture queue.
func (d *Device) Format() (PixFormat, error) {
	f := v4l2Format{typ: BufTypeVideoCapture}
	if err := ioctl(d.fd, vidiocGFmt, unsafe.Pointer(&f)); err != nil {
		return PixFormat{}, fmt.Errorf("VIDIOC_G_FMT: %w", err)
	}
	return fromPix(f.pix), nil
}

// SetFormat issues VIDIOC_S_FMT and returns the format the driver settled
// on, which may differ from the request.
func (d *Device) SetFormat(pf PixFormat) (PixFormat, error) {
	f := v4l2Format{typ: BufTypeVideoCapture}
	f.pix = v4l2PixFormat{
		width:        pf.Width,
		height:       pf.Height,
		pixelformat:  pf.PixelFormat,
		field:        pf.Field,
		bytesperline: pf.BytesPerLine,
		sizeimage:    pf.SizeImage,
		colorspace:   pf.Colorspace,
	}
	if err := ioctl(d.fd, vidiocSFmt, unsafe.Pointer(&f)); err != nil {
		return PixFormat{}, fmt.Errorf("VIDIOC_S_FMT %s: %w", pf, err)
	}
	return fromPix(f.pix), nil
}

func fromPix(p v4l2PixFormat) PixFormat {
	return PixFormat{
		Width:        p.width,
		Height:       p.height,
		PixelFormat:  p.pixelformat,
		Field:        p.field,
		BytesPerLine: p.bytesperline,
		SizeImage:    p.sizeimage,
		Colorspace:   p.colorspace,
	}
}

// FrameSizes returns the resolutions supported for a pixel format. Stepwise
// and continuous ranges are reported by their minimum and maximum.
func (d *Device) FrameSizes(pixelFormat uint32) ([]Resolution, error) {
	var resolutions []Resolution

	for i := uint32(0); ; i++ {
		frmsize := v4l2Frmsizeenum{
			index:       i,
			pixelFormat: pixelFormat,
		}

		if err := ioctl(d.fd, vidiocEnumFramesizes, unsafe.Pointer(&frmsize)); err != nil {
			if errors.Is(err, syscall.EINVAL) {
				break // End of enumeration
			}
			// ENOTTY means device doesn't support frame size enumeration
			if errors.Is(err, syscall.ENOTTY) {
				return []Resolution{}, nil
			}
			return nil, fmt.Errorf("failed to enumerate frame size %d: %w", i, err)
		}

		switch frmsize.typ {
		case FrmTypeDiscrete:
			resolutions = append(resolutions, Resolution{
				Width:  frmsize.minWidth,
				Height: frmsize.maxWidth,
			})
		case FrmTypeContinuous, FrmTypeStepwise:
			return append(resolutions,
				Resolution{Width: frmsize.minWidth, Height: frmsize.minHeight},
				Resolution{Width: frmsize.maxWidth, Height: frmsize.maxHeight},
			), nil
		}
	}

	return resolutions, nil
}

// FrameIntervals enumerates the frame intervals supported for a format and
// resolution. A stepwise or continuous range is returned as a single entry.
func (d *Device) FrameIntervals(pixelFormat, width, height uint32) ([]FrameInterval, error) {
	var intervals []FrameInterval

	for i := uint32(0); ; i++ {
		frmival := v4l2Frmivalenum{
			index:       i,
			pixelFormat: pixelFormat,
			width:       width,
			height:      height,
		}

		if err := ioctl(d.fd, vidiocEnumFrameintervals, unsafe.Pointer(&frmival)); err != nil {
			if errors.Is(err, syscall.EINVAL) && i > 0 {
				break // End of enumeration
			}
			return nil, fmt.Errorf("failed to enumerate frame interval %d: %w", i, err)
		}

		switch frmival.typ {
		case FrmTypeDiscrete:
			v := Fract{Numerator: frmival.min.numerator, Denominator: frmival.min.denominator}
			intervals = append(intervals, FrameInterval{Type: FrmTypeDiscrete, Min: v, Max: v})
		case FrmTypeContinuous, FrmTypeStepwise:
			return append(intervals, FrameInterval{
				Type: frmival.typ,
				Min:  Fract{Numerator: frmival.min.numerator, Denominator: frmival.min.denominator},
				Max:  Fract{Numerator: frmival.max.numerator, Denominator: frmival.max.denominator},
				Step: Fract{Numerator: frmival.step.numerator, Denominator: frmival.step.denominator},
			}), nil
		}
	}

	return intervals, nil
}

// CaptureParm issues VIDIOC_G_PARM for the capture queue.
func (d *Device) CaptureParm() (CaptureParm, error) {
	p := v4l2Streamparm{typ: BufTypeVideoCapture}
	if err := ioctl(d.fd, vidiocGParm, unsafe.Pointer(&p)); err != nil {
		return CaptureParm{}, fmt.Errorf("VIDIOC_G_PARM: %w", err)
	}
	return CaptureParm{
		Capability:   p.capability,
		CaptureMode:  p.capturemode,
		TimePerFrame: Fract{Numerator: p.timeperframe.numerator, Denominator: p.timeperframe.denominator},
	}, nil
}

// SetFrameInterval issues VIDIOC_S_PARM and returns the interval the driver
// actually applied.
func (d *Device) SetFrameInterval(interval Fract) (Fract, error) {
	p := v4l2Streamparm{typ: BufTypeVideoCapture}
	p.timeperframe = v4l2Fract{numerator: interval.Numerator, denominator: interval.Denominator}
	if err := ioctl(d.fd, vidiocSParm, unsafe.Pointer(&p)); err != nil {
		return Fract{}, fmt.Errorf("VIDIOC_S_PARM %s: %w", interval, err)
	}
	return Fract{Numerator: p.timeperframe.numerator, Denominator: p.timeperframe.denominator}, nil
}
