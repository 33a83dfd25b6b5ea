package devices

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/smazurov/framegrab/pkg/linuxav/v4l2"
)

// symlinkDirs hold the stable udev names for video nodes.
var symlinkDirs = []string{"/dev/v4l/by-id", "/dev/v4l/by-path"}

// ResolveDevicePath turns a device argument into a node path. Paths are
// returned unchanged; anything else is taken as a stable ID and looked up
// first among the udev symlinks, then by scanning the video4linux class.
func ResolveDevicePath(device string) (string, error) {
	if device == "" {
		return "", fmt.Errorf("no device given")
	}
	if strings.HasPrefix(device, "/") {
		return device, nil
	}
	for _, dir := range symlinkDirs {
		link := filepath.Join(dir, device)
		if _, err := os.Stat(link); err == nil {
			return link, nil
		}
	}
	path, err := v4l2.GetDevicePathByID(device)
	if err != nil {
		return "", fmt.Errorf("resolve device %q: %w", device, err)
	}
	return path, nil
}
