package acquisition

import (
	"log/slog"
	"math"

	"github.com/smazurov/framegrab/pkg/linuxav/v4l2"
)

// exposureUnit is the length of one EXPOSURE_ABSOLUTE step.
const exposureUnit = 100e-6

// Feature names used in logs and degradation events.
const (
	FeatureExposure      = "exposure"
	FeatureAutoExposure  = "auto_exposure"
	FeatureGain          = "gain"
	FeatureFrameInterval = "frame_interval"
)

// Capabilities records which optional controls the device implements. It
// is queried once when the engine is built; a feature found missing later
// is switched off and stays off.
type Capabilities struct {
	Exposure      bool `json:"exposure" doc:"Absolute exposure control is available"`
	AutoExposure  bool `json:"auto_exposure" doc:"Automatic exposure can be toggled"`
	Gain          bool `json:"gain" doc:"Analog gain control is available"`
	FrameInterval bool `json:"frame_interval" doc:"Driver accepts a requested frame interval"`

	exposure v4l2.ControlInfo
	gain     v4l2.ControlInfo
}

// controls owns the device's exposure and gain state. It is only used
// from caller goroutines, serialized by Engine.opMu.
type controls struct {
	dev  Device
	log  *slog.Logger
	caps Capabilities

	autoExposure bool
	exposure     float64
	gain         float64

	reported  map[string]bool
	onDegrade func(feature string, err error)
}

func discoverControls(dev Device, log *slog.Logger, onDegrade func(string, error)) *controls {
	c := &controls{dev: dev, log: log, onDegrade: onDegrade, reported: make(map[string]bool)}

	if q, err := dev.QueryControl(v4l2.CIDExposureAbsolute); err == nil && !q.Disabled() && q.Maximum > q.Minimum {
		c.caps.Exposure = true
		c.caps.exposure = q
	} else {
		c.degrade(FeatureExposure, err)
	}

	if q, err := dev.QueryControl(v4l2.CIDExposureAuto); err == nil && !q.Disabled() {
		c.caps.AutoExposure = true
	} else {
		c.degrade(FeatureAutoExposure, err)
	}

	if q, err := dev.QueryControl(v4l2.CIDGain); err == nil && !q.Disabled() && q.Maximum > q.Minimum {
		c.caps.Gain = true
		c.caps.gain = q
	} else {
		c.degrade(FeatureGain, err)
	}

	if p, err := dev.CaptureParm(); err == nil && p.CanSetInterval() {
		c.caps.FrameInterval = true
	} else {
		c.degrade(FeatureFrameInterval, err)
	}

	return c
}

// degrade switches a feature off. Only the first report per feature is
// logged and forwarded.
func (c *controls) degrade(feature string, err error) {
	switch feature {
	case FeatureExposure:
		c.caps.Exposure = false
	case FeatureAutoExposure:
		c.caps.AutoExposure = false
	case FeatureGain:
		c.caps.Gain = false
	case FeatureFrameInterval:
		c.caps.FrameInterval = false
	}
	if c.reported[feature] {
		return
	}
	c.reported[feature] = true
	c.log.Warn("Device feature unavailable, continuing without it", "feature", feature, "error", err)
	if c.onDegrade != nil {
		c.onDegrade(feature, err)
	}
}

// setAutoExposure is best-effort: a device that rejects the control loses
// the feature. Asking for manual exposure on such a device succeeds.
func (c *controls) setAutoExposure(on bool) error {
	if !c.caps.AutoExposure {
		if on {
			return newError(ErrCodeNotSupported, nil, "automatic exposure is not available")
		}
		c.autoExposure = false
		return nil
	}
	value := int32(v4l2.ExposureManual)
	if on {
		value = v4l2.ExposureAuto
	}
	if err := c.dev.SetControl(v4l2.CIDExposureAuto, value); err != nil {
		c.degrade(FeatureAutoExposure, err)
		if on {
			return newError(ErrCodeNotSupported, err, "device rejected automatic exposure")
		}
		return nil
	}
	c.autoExposure = on
	return nil
}

// exposureRange returns the settable exposure in seconds. Without an
// exposure control the range is unbounded.
func (c *controls) exposureRange() (float64, float64) {
	if !c.caps.Exposure {
		return 0, math.MaxFloat64
	}
	return float64(c.caps.exposure.Minimum) * exposureUnit, float64(c.caps.exposure.Maximum) * exposureUnit
}

func (c *controls) getExposure() float64 {
	if !c.caps.Exposure {
		return c.exposure
	}
	raw, err := c.dev.Control(v4l2.CIDExposureAbsolute)
	if err != nil {
		c.degrade(FeatureExposure, err)
		return c.exposure
	}
	return float64(raw) * exposureUnit
}

func (c *controls) setExposure(seconds float64) error {
	if !c.caps.Exposure {
		c.log.Debug("Ignoring exposure change, control unavailable", "exposure", seconds)
		c.exposure = seconds
		return nil
	}
	if !(seconds > 0) || math.IsInf(seconds, 0) {
		return newError(ErrCodeInvalidValue, nil, "exposure must be a positive number of seconds, got %v", seconds)
	}
	q := c.caps.exposure
	raw := clampRaw(math.Round(seconds/exposureUnit), q.Minimum, q.Maximum)
	if err := c.dev.SetControl(v4l2.CIDExposureAbsolute, raw); err != nil {
		return newError(ErrCodeHardware, err, "set exposure to %vs", seconds)
	}
	c.exposure = float64(raw) * exposureUnit
	return nil
}

// getGain returns gain normalized to [0,1] over the control's range.
func (c *controls) getGain() float64 {
	if !c.caps.Gain {
		return c.gain
	}
	raw, err := c.dev.Control(v4l2.CIDGain)
	if err != nil {
		c.degrade(FeatureGain, err)
		return c.gain
	}
	q := c.caps.gain
	return float64(raw-q.Minimum) / float64(q.Maximum-q.Minimum)
}

func (c *controls) setGain(gain float64) error {
	if gain < 0 || gain > 1 || math.IsNaN(gain) {
		return newError(ErrCodeInvalidValue, nil, "gain must be within [0,1], got %v", gain)
	}
	if !c.caps.Gain {
		c.log.Debug("Ignoring gain change, control unavailable", "gain", gain)
		c.gain = gain
		return nil
	}
	q := c.caps.gain
	raw := clampRaw(math.Round(float64(q.Minimum)+gain*float64(q.Maximum-q.Minimum)), q.Minimum, q.Maximum)
	if err := c.dev.SetControl(v4l2.CIDGain, raw); err != nil {
		return newError(ErrCodeHardware, err, "set gain to %v", gain)
	}
	c.gain = gain
	return nil
}

func clampRaw(v float64, lo, hi int32) int32 {
	return int32(max(float64(lo), min(float64(hi), v)))
}

// fastestInterval picks the shortest interval among the enumerated options.
func fastestInterval(intervals []v4l2.FrameInterval) (v4l2.Fract, bool) {
	var best v4l2.Fract
	found := false
	for _, iv := range intervals {
		if iv.Min.Numerator == 0 || iv.Min.Denominator == 0 {
			continue
		}
		if !found || iv.Min.Less(best) {
			best = iv.Min
			found = true
		}
	}
	return best, found
}

// negotiateInterval applies the highest frame rate the format allows. An
// enumeration failure keeps the driver default; a rejected apply is fatal.
func (c *controls) negotiateInterval(f v4l2.PixFormat) (v4l2.Fract, error) {
	if !c.caps.FrameInterval {
		return v4l2.Fract{}, nil
	}
	intervals, err := c.dev.FrameIntervals(f.PixelFormat, f.Width, f.Height)
	if err != nil {
		c.log.Debug("Frame interval enumeration failed, keeping driver default", "format", f.String(), "error", err)
		return v4l2.Fract{}, nil
	}
	best, ok := fastestInterval(intervals)
	if !ok {
		return v4l2.Fract{}, nil
	}
	applied, err := c.dev.SetFrameInterval(best)
	if err != nil {
		return v4l2.Fract{}, newError(ErrCodeHardware, err, "set frame interval %s for %s", best, f)
	}
	c.log.Info("Negotiated frame interval", "format", f.String(), "requested", best.String(), "applied", applied.String(), "fps", applied.FPS())
	return applied, nil
}
