// wakeword listens to an audio stream and reports wake-word detections on stdout.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/GriffinCanCode/wake-listener/cmd/wakeword/commands"
)

func main() {
	if err := commands.NewRoot().ExecuteContext(context.Background()); err != nil {
		slog.Error("wakeword failed", "error", err)
		os.Exit(1)
	}
}
