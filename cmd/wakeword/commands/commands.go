// Package commands builds the wakeword command tree.
package commands

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/wake-listener/internal/config"
	"github.com/GriffinCanCode/wake-listener/internal/events"
	"github.com/GriffinCanCode/wake-listener/internal/trace"
)

type app struct {
	cfg   *config.Config
	flush func()

	configPath string
	engine     string
	source     string
	protocol   string
	device     string
	logLevel   string
	duration   time.Duration
}

// NewRoot returns the root command. Without a subcommand it listens.
func NewRoot() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:               "wakeword",
		Short:             "Listen for a wake phrase and report detections on stdout",
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.flush != nil {
				a.flush()
			}
		},
		RunE: a.listen,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file (default $CONFIG_FILE)")
	pf.StringVar(&a.source, "source", "", "audio source: device, command or stdin")
	pf.StringVar(&a.device, "device", "", "input device name substring")
	pf.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")

	root.Flags().StringVar(&a.engine, "engine", "", "recognition engine: scorer, vosk or google")
	root.Flags().StringVar(&a.protocol, "protocol", "", "event protocol: json or token")

	devices := &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		Args:  cobra.NoArgs,
		RunE:  a.devices,
	}

	levels := &cobra.Command{
		Use:   "levels",
		Short: "Capture briefly and print the input level",
		Args:  cobra.NoArgs,
		RunE:  a.levels,
	}
	levels.Flags().DurationVar(&a.duration, "duration", 3*time.Second, "capture duration")

	root.AddCommand(devices, levels)
	return root
}

// setup loads the configuration, applies flag overrides and installs the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		a.reportSetupError(cmd, nil, err)
		return err
	}
	a.applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		a.reportSetupError(cmd, cfg, err)
		return err
	}

	_, a.flush = trace.SetupLogger(cfg.LogLevel, os.Stderr)
	a.cfg = cfg
	return nil
}

// reportSetupError gives the host an error line when listening cannot start, the same way
// engine and source failures are reported. The configured protocol is used when it is valid.
func (a *app) reportSetupError(cmd *cobra.Command, cfg *config.Config, err error) {
	if cmd != cmd.Root() {
		return
	}
	protocol := events.ProtocolJSON
	if cfg != nil {
		if _, perr := events.NewEncoder(cfg.Protocol); perr == nil {
			protocol = cfg.Protocol
		}
	}
	encode, _ := events.NewEncoder(protocol)

	line, ok, encErr := encode(events.Error(time.Now(), err.Error()))
	if encErr == nil && ok {
		_, _ = cmd.OutOrStdout().Write(line)
	}
}

func (a *app) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	set := func(name string, dst *string, val string) {
		if cmd.Flags().Changed(name) {
			*dst = val
		}
	}
	set("engine", &cfg.Engine, a.engine)
	set("source", &cfg.Source, a.source)
	set("protocol", &cfg.Protocol, a.protocol)
	set("device", &cfg.AudioDevice, a.device)
	set("log-level", &cfg.LogLevel, a.logLevel)
}
