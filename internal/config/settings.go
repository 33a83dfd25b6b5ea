package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/framegrab/internal/logging"
)

// CameraSettings is the [camera] table. Unset keys are nil and leave the
// device as it is.
type CameraSettings struct {
	Mode         string   `toml:"mode"`
	Exposure     *float64 `toml:"exposure"`
	Gain         *float64 `toml:"gain"`
	AutoExposure *bool    `toml:"auto_exposure"`
	Frames       *int     `toml:"frames"`
}

// Validate rejects values no device could accept.
func (c CameraSettings) Validate() error {
	var errs []error
	if c.Exposure != nil && !(*c.Exposure > 0 && !math.IsInf(*c.Exposure, 0)) {
		errs = append(errs, fmt.Errorf("camera.exposure must be positive seconds, got %v", *c.Exposure))
	}
	if c.Gain != nil && !(*c.Gain >= 0 && *c.Gain <= 1) {
		errs = append(errs, fmt.Errorf("camera.gain must be within [0,1], got %v", *c.Gain))
	}
	if c.Frames != nil && *c.Frames < 0 {
		errs = append(errs, fmt.Errorf("camera.frames must not be negative, got %d", *c.Frames))
	}
	return errors.Join(errs...)
}

// Settings is the part of the file that is re-read on every change.
type Settings struct {
	Camera  CameraSettings
	Logging logging.Config
}

type fileSettings struct {
	Camera  CameraSettings `toml:"camera"`
	Logging struct {
		Level   string            `toml:"level"`
		Format  string            `toml:"format"`
		Modules map[string]string `toml:"modules"`
	} `toml:"logging"`
}

// LoadSettings reads the [camera] and [logging] tables. A missing file
// yields defaults. An invalid [camera] table is an error, but the returned
// Settings still carry the logging section.
func LoadSettings(path string) (Settings, error) {
	s := Settings{Logging: logging.Config{Level: "info", Format: "text", Modules: map[string]string{}}}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("config: %w", err)
	}

	var f fileSettings
	if err := toml.Unmarshal(data, &f); err != nil {
		return s, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if f.Logging.Level != "" {
		s.Logging.Level = f.Logging.Level
	}
	if f.Logging.Format != "" {
		s.Logging.Format = f.Logging.Format
	}
	for k, v := range f.Logging.Modules {
		s.Logging.Modules[k] = v
	}
	if err := f.Camera.Validate(); err != nil {
		return s, fmt.Errorf("config: %w", err)
	}
	s.Camera = f.Camera
	return s, nil
}

// LoadCameraSettings reads only the [camera] table.
func LoadCameraSettings(path string) (CameraSettings, error) {
	s, err := LoadSettings(path)
	return s.Camera, err
}

// LoadLoggingConfig reads the [logging] table, falling back to info/text
// when the file is missing or unreadable.
func LoadLoggingConfig(path string) logging.Config {
	s, _ := LoadSettings(path)
	return s.Logging
}
