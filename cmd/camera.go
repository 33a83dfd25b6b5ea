package cmd

import (
	"errors"
	"log/slog"

	"github.com/smazurov/framegrab/internal/acquisition"
	"github.com/smazurov/framegrab/internal/config"
)

// CameraControl is the part of the engine that file settings touch.
type CameraControl interface {
	SetMode(acquisition.VideoMode) error
	SetExposure(seconds float64) error
	SetAutoExposure(on bool) error
	SetGain(gain float64) error
	SetFrameCount(n int) error
}

// ApplyCameraSettings pushes the keys set in s to the engine. The mode is
// only applied when withMode is set; reloads leave the format alone. Every
// key is attempted and all failures are returned together.
func ApplyCameraSettings(c CameraControl, s config.CameraSettings, withMode bool, log *slog.Logger) error {
	var errs []error
	try := func(what string, err error) {
		if err != nil {
			log.Warn("Failed to apply camera setting", "setting", what, "error", err)
			errs = append(errs, err)
			return
		}
		log.Debug("Applied camera setting", "setting", what)
	}

	if withMode && s.Mode != "" {
		m, err := acquisition.ParseVideoMode(s.Mode)
		if err == nil {
			err = c.SetMode(m)
		}
		try("mode", err)
	}
	// Auto exposure goes first: some drivers refuse manual exposure while it
	// is on.
	if s.AutoExposure != nil {
		try("auto_exposure", c.SetAutoExposure(*s.AutoExposure))
	}
	if s.Exposure != nil {
		try("exposure", c.SetExposure(*s.Exposure))
	}
	if s.Gain != nil {
		try("gain", c.SetGain(*s.Gain))
	}
	if s.Frames != nil {
		try("frames", c.SetFrameCount(*s.Frames))
	}
	return errors.Join(errs...)
}
