package sink

import (
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"

	"github.com/smazurov/framegrab/internal/acquisition"
	"github.com/smazurov/framegrab/internal/metrics"
)

// ErrNoFrame is returned before the first frame arrives.
var ErrNoFrame = errors.New("no frame captured yet")

const snapshotSink = "snapshot"

// Snapshotter keeps the latest frame for on-demand preview images.
type Snapshotter struct {
	every uint64
	n     atomic.Uint64

	mu    sync.Mutex
	frame acquisition.Frame
	have  bool
	at    time.Time
}

// NewSnapshotter keeps every nth frame; n <= 1 keeps all of them.
func NewSnapshotter(n int) *Snapshotter {
	if n < 1 {
		n = 1
	}
	return &Snapshotter{every: uint64(n)}
}

// OnFrame copies f into the snapshot buffer.
func (s *Snapshotter) OnFrame(f acquisition.Frame) bool {
	if (s.n.Add(1)-1)%s.every != 0 {
		return true
	}
	s.mu.Lock()
	s.frame = f.CopyInto(s.frame.Data)
	s.have = true
	s.at = time.Now()
	s.mu.Unlock()
	metrics.SinkFrame(snapshotSink)
	return true
}

// Latest returns a copy of the most recent kept frame and when it arrived.
func (s *Snapshotter) Latest() (acquisition.Frame, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.have {
		return acquisition.Frame{}, time.Time{}, ErrNoFrame
	}
	return s.frame.Clone(), s.at, nil
}

// Image decodes the latest frame, scaled down to fit maxWidth x maxHeight
// when either is positive.
func (s *Snapshotter) Image(maxWidth, maxHeight int) (image.Image, error) {
	f, _, err := s.Latest()
	if err != nil {
		return nil, err
	}
	img, err := ToImage(f)
	if err != nil {
		metrics.SinkError(snapshotSink)
		return nil, err
	}
	return fit(img, maxWidth, maxHeight), nil
}

func fit(img image.Image, maxWidth, maxHeight int) image.Image {
	b := img.Bounds()
	switch {
	case maxWidth > 0 && maxHeight > 0:
		if b.Dx() > maxWidth || b.Dy() > maxHeight {
			return imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)
		}
	case maxWidth > 0 && b.Dx() > maxWidth:
		return imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	case maxHeight > 0 && b.Dy() > maxHeight:
		return imaging.Resize(img, 0, maxHeight, imaging.Lanczos)
	}
	return img
}

// Encode writes the latest frame as format ("jpeg", "png", "gif", "tiff"
// or "bmp") and returns its MIME type.
func (s *Snapshotter) Encode(w io.Writer, format string, maxWidth, maxHeight int) (string, error) {
	fmtID, err := imaging.FormatFromExtension(format)
	if err != nil {
		return "", fmt.Errorf("%w: image format %q", acquisition.ErrInvalidValue, format)
	}
	img, err := s.Image(maxWidth, maxHeight)
	if err != nil {
		return "", err
	}
	if err := imaging.Encode(w, img, fmtID, imaging.JPEGQuality(90)); err != nil {
		return "", err
	}
	return contentType(fmtID), nil
}

// Save writes the latest frame to path, choosing the format by extension.
func (s *Snapshotter) Save(path string, maxWidth, maxHeight int) error {
	img, err := s.Image(maxWidth, maxHeight)
	if err != nil {
		return err
	}
	return imaging.Save(img, path, imaging.JPEGQuality(90))
}

func contentType(f imaging.Format) string {
	switch f {
	case imaging.JPEG:
		return "image/jpeg"
	case imaging.PNG:
		return "image/png"
	case imaging.GIF:
		return "image/gif"
	case imaging.TIFF:
		return "image/tiff"
	case imaging.BMP:
		return "image/bmp"
	}
	return "application/octet-stream"
}
