// Package led drives a board LED as an acquisition tally light.
package led

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Patterns a Light can show.
const (
	Off   = "off"
	Solid = "solid"
	Blink = "blink"
	Alert = "heartbeat"
)

// Light shows one pattern at a time.
type Light interface {
	Show(pattern string) error
}

// SysfsRoot is where the kernel exposes LED class devices.
const SysfsRoot = "/sys/class/leds"

// Sysfs drives /sys/class/leds/<name> through its trigger and brightness
// attributes.
type Sysfs struct {
	dir string
}

// NewSysfs returns the light named name below root. The LED must exist.
func NewSysfs(root, name string) (*Sysfs, error) {
	dir := filepath.Join(root, name)
	if _, err := os.Stat(filepath.Join(dir, "brightness")); err != nil {
		return nil, fmt.Errorf("led %q: %w", name, err)
	}
	return &Sysfs{dir: dir}, nil
}

// Show maps the pattern onto kernel triggers: solid and off are manual
// brightness, blink uses the timer trigger and alert the heartbeat trigger.
func (s *Sysfs) Show(pattern string) error {
	var trigger, brightness string
	switch pattern {
	case Off:
		trigger, brightness = "none", "0"
	case Solid:
		trigger, brightness = "none", "1"
	case Blink:
		trigger = "timer"
	case Alert:
		trigger = "heartbeat"
	default:
		return fmt.Errorf("led: unknown pattern %q", pattern)
	}
	if err := s.write("trigger", trigger); err != nil {
		return err
	}
	if brightness != "" {
		return s.write("brightness", brightness)
	}
	return nil
}

func (s *Sysfs) write(attr, value string) error {
	if err := os.WriteFile(filepath.Join(s.dir, attr), []byte(value), 0o644); err != nil {
		return fmt.Errorf("led: set %s: %w", attr, err)
	}
	return nil
}

type noop struct{ log *slog.Logger }

func (n noop) Show(pattern string) error {
	n.log.Debug("No tally LED", "pattern", pattern)
	return nil
}

// boardLEDs maps device tree models to the LED used as tally light.
var boardLEDs = []struct{ model, led string }{
	{"NanoPC-T6", "usr_led"},
	{"Orange Pi", "green_led"},
	{"Raspberry Pi", "ACT"},
}

// DeviceTreeModel is read to pick a board LED when none is configured.
var DeviceTreeModel = "/proc/device-tree/model"

// New returns the light to use. name "none" disables it, "" picks the
// board's user LED from the device tree model. Any failure falls back to a
// light that only logs.
func New(name string, log *slog.Logger) Light {
	if name == "none" {
		return noop{log}
	}
	if name == "" {
		model := boardModel()
		for _, b := range boardLEDs {
			if strings.Contains(model, b.model) {
				name = b.led
				break
			}
		}
		if name == "" {
			log.Debug("No tally LED for board", "model", model)
			return noop{log}
		}
	}
	l, err := NewSysfs(SysfsRoot, name)
	if err != nil {
		log.Warn("Tally LED unavailable", "error", err)
		return noop{log}
	}
	log.Info("Using tally LED", "led", name)
	return l
}

func boardModel() string {
	data, err := os.ReadFile(DeviceTreeModel)
	if err != nil {
		return "unknown"
	}
	return strings.TrimRight(string(data), "\x00")
}
