package sink

import (
	"fmt"
	"image"
	"image/color"

	"github.com/smazurov/framegrab/internal/acquisition"
	"github.com/smazurov/framegrab/pkg/linuxav/v4l2"
)

// ToImage decodes a raw frame into an image that owns its pixels. Bayer
// frames come out as their undemosaiced mosaic in grey.
func ToImage(f acquisition.Frame) (image.Image, error) {
	w, h := int(f.Width), int(f.Height)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: empty frame geometry %dx%d", acquisition.ErrInvalidValue, w, h)
	}
	rect := image.Rect(0, 0, w, h)

	switch f.Mode {
	case acquisition.Y8, acquisition.BayerRG8, acquisition.BayerBG8:
		stride := lineStride(f, w)
		if err := need(f, stride*(h-1)+w); err != nil {
			return nil, err
		}
		img := image.NewGray(rect)
		for y := range h {
			copy(img.Pix[y*img.Stride:y*img.Stride+w], f.Data[y*stride:])
		}
		return img, nil

	case acquisition.Y16, acquisition.BayerRG16, acquisition.BayerBG16:
		stride := lineStride(f, 2*w)
		if err := need(f, stride*(h-1)+2*w); err != nil {
			return nil, err
		}
		img := image.NewGray16(rect)
		for y := range h {
			src := f.Data[y*stride:]
			dst := img.Pix[y*img.Stride:]
			for x := range w {
				// Little-endian on the wire, big-endian in image.Gray16.
				dst[2*x], dst[2*x+1] = src[2*x+1], src[2*x]
			}
		}
		return img, nil

	case acquisition.RGB24, acquisition.BGR24:
		return packedRGB(f, w, h, 3, f.Mode == acquisition.BGR24)

	case acquisition.RGB32, acquisition.BGR32:
		return packedRGB(f, w, h, 4, f.Mode == acquisition.BGR32)

	case acquisition.RGB565, acquisition.RGB555:
		stride := lineStride(f, 2*w)
		if err := need(f, stride*(h-1)+2*w); err != nil {
			return nil, err
		}
		img := image.NewNRGBA(rect)
		for y := range h {
			src := f.Data[y*stride:]
			for x := range w {
				v := uint16(src[2*x]) | uint16(src[2*x+1])<<8
				img.SetNRGBA(x, y, rgb16(v, f.Mode == acquisition.RGB565))
			}
		}
		return img, nil

	case acquisition.YUV422Packed:
		stride := lineStride(f, 2*w)
		if err := need(f, stride*(h-1)+2*w); err != nil {
			return nil, err
		}
		img := image.NewYCbCr(rect, image.YCbCrSubsampleRatio422)
		for y := range h {
			src := f.Data[y*stride:]
			for x := 0; x+1 < w; x += 2 {
				yi := y*img.YStride + x
				ci := y*img.CStride + x/2
				img.Y[yi] = src[2*x]
				img.Cb[ci] = src[2*x+1]
				img.Y[yi+1] = src[2*x+2]
				img.Cr[ci] = src[2*x+3]
			}
		}
		return img, nil

	case acquisition.I420:
		return planarYUV(f, w, h, image.YCbCrSubsampleRatio420, f.PixelFormat == v4l2.PixFmtYVU420)

	case acquisition.YUV422:
		return planarYUV(f, w, h, image.YCbCrSubsampleRatio422, false)

	case acquisition.YUV411:
		return planarYUV(f, w, h, image.YCbCrSubsampleRatio411, false)
	}
	return nil, fmt.Errorf("%w: no image conversion for %s", acquisition.ErrNotSupported, f.Mode)
}

func lineStride(f acquisition.Frame, least int) int {
	if int(f.BytesPerLine) >= least {
		return int(f.BytesPerLine)
	}
	return least
}

func need(f acquisition.Frame, n int) error {
	if len(f.Data) < n {
		return fmt.Errorf("%w: short %s frame, %d of %d bytes", acquisition.ErrHardware, f.Mode, len(f.Data), n)
	}
	return nil
}

func packedRGB(f acquisition.Frame, w, h, bpp int, bgr bool) (image.Image, error) {
	stride := lineStride(f, bpp*w)
	if err := need(f, stride*(h-1)+bpp*w); err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		src := f.Data[y*stride:]
		dst := img.Pix[y*img.Stride:]
		for x := range w {
			p := src[x*bpp:]
			r, g, b := p[0], p[1], p[2]
			if bgr {
				r, b = b, r
			}
			dst[4*x], dst[4*x+1], dst[4*x+2], dst[4*x+3] = r, g, b, 0xff
		}
	}
	return img, nil
}

func rgb16(v uint16, is565 bool) color.NRGBA {
	var r, g, b uint16
	if is565 {
		r, g, b = v>>11&0x1f, v>>5&0x3f, v&0x1f
		return color.NRGBA{R: uint8(r<<3 | r>>2), G: uint8(g<<2 | g>>4), B: uint8(b<<3 | b>>2), A: 0xff}
	}
	r, g, b = v>>10&0x1f, v>>5&0x1f, v&0x1f
	return color.NRGBA{R: uint8(r<<3 | r>>2), G: uint8(g<<3 | g>>2), B: uint8(b<<3 | b>>2), A: 0xff}
}

// planarYUV reads three tightly packed planes: Y, then Cb and Cr, or Cr
// then Cb when swapped.
func planarYUV(f acquisition.Frame, w, h int, ratio image.YCbCrSubsampleRatio, swapped bool) (image.Image, error) {
	img := image.NewYCbCr(image.Rect(0, 0, w, h), ratio)
	cw, ch := img.CStride, len(img.Cb)/img.CStride
	ySize, cSize := w*h, cw*ch
	if err := need(f, ySize+2*cSize); err != nil {
		return nil, err
	}

	for y := range h {
		copy(img.Y[y*img.YStride:y*img.YStride+w], f.Data[y*w:])
	}
	first, second := img.Cb, img.Cr
	if swapped {
		first, second = second, first
	}
	copy(first, f.Data[ySize:ySize+cSize])
	copy(second, f.Data[ySize+cSize:ySize+2*cSize])
	return img, nil
}
