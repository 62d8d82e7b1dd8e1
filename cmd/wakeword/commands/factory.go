package commands

import (
	"context"
	"io"

	"github.com/GriffinCanCode/wake-listener/internal/audio"
	"github.com/GriffinCanCode/wake-listener/internal/config"
	apperrors "github.com/GriffinCanCode/wake-listener/internal/errors"
	"github.com/GriffinCanCode/wake-listener/internal/grpcclient"
	"github.com/GriffinCanCode/wake-listener/internal/orchestrator"
	"github.com/GriffinCanCode/wake-listener/internal/recognition"
	"github.com/GriffinCanCode/wake-listener/internal/recognition/googlestt"
	"github.com/GriffinCanCode/wake-listener/internal/recognition/scorer"
	"github.com/GriffinCanCode/wake-listener/internal/recognition/vosk"
	"github.com/GriffinCanCode/wake-listener/internal/trace"
)

// newSource builds the configured audio source. stdin is used by the stdin source.
func newSource(cfg *config.Config, stdin io.Reader) (audio.Source, error) {
	format, err := audio.ParseFormat(cfg.SampleFormat)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ConfigInvalid, "bad sample format")
	}

	switch cfg.Source {
	case config.SourceDevice:
		return audio.NewDeviceSource(audio.DeviceConfig{
			SampleRate: cfg.SampleRate,
			ChunkSize:  cfg.ChunkSize,
			Format:     format,
			Device:     cfg.AudioDevice,
			Excluded:   cfg.ExcludedAudioDevices,
		})
	case config.SourceCommand:
		return audio.NewCommandSource(cfg.SourceCommand, format, cfg.ChunkSize), nil
	case config.SourceStdin:
		return audio.NewReaderSource("stdin", stdin, format, cfg.ChunkSize), nil
	default:
		return nil, apperrors.Newf(apperrors.ConfigInvalid, "unknown source %q", cfg.Source)
	}
}

// newEngineFactory returns a factory for the configured engine. Connecting is deferred to the
// factory call so the run can report the initializing milestone first.
func newEngineFactory(cfg *config.Config) (orchestrator.EngineFactory, error) {
	switch cfg.Engine {
	case config.EngineScorer:
		return func(ctx context.Context) (recognition.Engine, error) {
			return dialScorer(ctx, cfg)
		}, nil
	case config.EngineVosk:
		return func(ctx context.Context) (recognition.Engine, error) {
			return vosk.Dial(ctx, vosk.Config{
				URL:        cfg.VoskURL,
				SampleRate: cfg.SampleRate,
				Phrases:    cfg.WakePhrases,
			})
		}, nil
	case config.EngineGoogle:
		return func(ctx context.Context) (recognition.Engine, error) {
			return googlestt.New(ctx, googlestt.Config{
				Language:   cfg.GoogleLanguage,
				SampleRate: cfg.SampleRate,
				Phrases:    cfg.WakePhrases,
			})
		}, nil
	default:
		return nil, apperrors.Newf(apperrors.ConfigInvalid, "unknown engine %q", cfg.Engine)
	}
}

func dialScorer(ctx context.Context, cfg *config.Config) (recognition.Engine, error) {
	format, err := audio.ParseFormat(cfg.SampleFormat)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ConfigInvalid, "bad sample format")
	}

	client, err := grpcclient.New(cfg.ScorerAddr, grpcclient.Options{
		ModelID:      cfg.ModelID,
		SampleRate:   cfg.SampleRate,
		SampleFormat: format.String(),
	})
	if err != nil {
		return nil, err
	}

	trace.Logger(ctx).Info("waiting for scorer", "addr", cfg.ScorerAddr, "model", cfg.ModelID)
	if err := client.WaitReady(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return scorer.New(client, cfg.ModelID, format), nil
}
