package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/wake-listener/internal/audio"
	"github.com/GriffinCanCode/wake-listener/internal/trace"
)

func (a *app) levels(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	src, err := newSource(a.cfg, cmd.InOrStdin())
	if err != nil {
		return err
	}

	trace.Logger(ctx).Info("measuring input level", "source", src.Name(), "duration", a.duration)
	lv, err := audio.MeasureLevels(ctx, src, a.duration)
	if err != nil {
		return err
	}
	printLevels(cmd.OutOrStdout(), lv)
	return nil
}

func printLevels(w io.Writer, lv audio.Levels) {
	fmt.Fprintf(w, "chunks=%d samples=%d rms=%.4f peak=%.4f\n", lv.Chunks, lv.Samples, lv.RMS, lv.Peak)
	if lv.Silent() {
		fmt.Fprintf(w, "warning: level below %.3f, check the input device and its permissions\n", audio.SilenceRMS)
	}
}
