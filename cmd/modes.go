package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smazurov/framegrab/internal/acquisition"
	"github.com/smazurov/framegrab/internal/devices"
	"github.com/smazurov/framegrab/internal/logging"
)

// CreateModesCmd opens a device and prints what the engine sees.
func CreateModesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modes <device>",
		Short: "Show the video modes and controls of a device",
		Long: `Opens the device the same way the daemon does and prints its identity, ` +
			`the video modes it can deliver, the current format and which optional controls are available.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := devices.ResolveDevicePath(args[0])
			if err != nil {
				return err
			}
			eng, err := acquisition.Open(path, acquisition.WithLogger(logging.GetLogger("cli")))
			if err != nil {
				return err
			}
			defer eng.Close()

			out := cmd.OutOrStdout()
			info := eng.Info()
			fmt.Fprintf(out, "Device:  %s\n", info.DevicePath)
			fmt.Fprintf(out, "Model:   %s\n", info.Model)
			fmt.Fprintf(out, "Driver:  %s (%s)\n", info.Driver, info.BusInfo)

			current, err := eng.Mode()
			if err != nil {
				return err
			}
			names := make([]string, 0, len(eng.Modes()))
			for _, m := range eng.Modes() {
				name := m.String()
				if m == current {
					name += "*"
				}
				names = append(names, name)
			}
			fmt.Fprintf(out, "Modes:   %s\n", strings.Join(names, " "))

			w, h := eng.Size()
			fmt.Fprintf(out, "Format:  %s %dx%d", current, w, h)
			if ival := eng.FrameInterval(); ival.Numerator != 0 {
				fmt.Fprintf(out, " @ %.2f fps", ival.FPS())
			}
			fmt.Fprintln(out)

			caps := eng.Capabilities()
			fmt.Fprintf(out, "Exposure: %s", yesNo(caps.Exposure))
			if caps.Exposure {
				lo, hi := eng.ExposureRange()
				fmt.Fprintf(out, " (%gs .. %gs, now %gs)", lo, hi, eng.Exposure())
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Auto exposure: %s\n", yesNo(caps.AutoExposure))
			fmt.Fprintf(out, "Gain: %s\n", yesNo(caps.Gain))
			fmt.Fprintf(out, "Frame interval: %s\n", yesNo(caps.FrameInterval))
			return nil
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
