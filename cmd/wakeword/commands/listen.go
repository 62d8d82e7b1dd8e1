package commands

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/wake-listener/internal/events"
	"github.com/GriffinCanCode/wake-listener/internal/orchestrator"
	"github.com/GriffinCanCode/wake-listener/internal/trace"
)

func (a *app) listen(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = trace.WithContext(ctx, trace.New())
	log := trace.Logger(ctx)

	encode, err := events.NewEncoder(a.cfg.Protocol)
	if err != nil {
		return err
	}
	ch := events.NewChannel(cmd.OutOrStdout(), encode, events.DefaultBuffer)
	defer func() {
		if err := ch.Close(); err != nil {
			log.Warn("event channel closed with errors", "error", err, "dropped", ch.Dropped())
		}
	}()

	src, err := newSource(a.cfg, cmd.InOrStdin())
	if err != nil {
		ch.Emit(events.Error(time.Now(), err.Error()))
		return err
	}

	factory, err := newEngineFactory(a.cfg)
	if err != nil {
		_ = src.Close()
		ch.Emit(events.Error(time.Now(), err.Error()))
		return err
	}

	m := orchestrator.New(orchestrator.Options{
		Config:    a.cfg,
		Source:    src,
		NewEngine: factory,
		Events:    ch,
	})
	return m.Run(ctx)
}
