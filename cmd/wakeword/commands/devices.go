package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/wake-listener/internal/audio"
)

func (a *app) devices(cmd *cobra.Command, _ []string) error {
	devices, err := audio.ListDevices()
	if err != nil {
		return err
	}
	printDevices(cmd, devices)
	return nil
}

func printDevices(cmd *cobra.Command, devices []audio.DeviceInfo) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tNAME\tKIND\tCHANNELS\tRATE")
	for _, d := range devices {
		mark := ""
		if d.Default {
			mark = "*"
		}
		kind := d.Kind
		if kind == "" {
			kind = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.0f\n", mark, d.Name, kind, d.MaxInputChannels, d.DefaultSampleRate)
	}
	_ = w.Flush()
}
