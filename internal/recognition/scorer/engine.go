// Package scorer is the continuous engine: every chunk is sent to the remote model and comes back
// as a single wake-word probability.
package scorer

import (
	"context"

	"github.com/GriffinCanCode/wake-listener/internal/audio"
	apperrors "github.com/GriffinCanCode/wake-listener/internal/errors"
	"github.com/GriffinCanCode/wake-listener/internal/recognition"
)

// Predictor is the subset of the scorer client the engine needs.
type Predictor interface {
	Predict(ctx context.Context, pcm []byte) (float32, error)
	ResetState(ctx context.Context) error
	Close() error
}

// Engine implements recognition.Engine over a Predictor.
type Engine struct {
	client  Predictor
	modelID string
	format  audio.Format
}

// New wraps client. Chunks of a different format than format are rejected.
func New(client Predictor, modelID string, format audio.Format) *Engine {
	return &Engine{client: client, modelID: modelID, format: format}
}

// Name implements recognition.Engine.
func (e *Engine) Name() string { return "scorer:" + e.modelID }

// Kind implements recognition.Engine.
func (e *Engine) Kind() recognition.Strategy { return recognition.Continuous }

// Feed scores one chunk.
func (e *Engine) Feed(ctx context.Context, chunk audio.Chunk) (recognition.Output, error) {
	if chunk.Format != e.format {
		return recognition.Output{}, apperrors.Newf(apperrors.AudioInvalid,
			"scorer expects %s samples, got %s", e.format, chunk.Format)
	}
	if chunk.Len() == 0 {
		return recognition.Output{}, apperrors.New(apperrors.AudioInvalid, "empty chunk")
	}

	score, err := e.client.Predict(ctx, chunk.Bytes())
	if err != nil {
		return recognition.Output{}, apperrors.Wrap(err, apperrors.RecognitionFailed, "predict failed").
			WithMetadata("model_id", e.modelID)
	}
	return recognition.Output{Kind: recognition.Score, Score: score}, nil
}

// Reset clears the model's streaming state so the same utterance cannot score again.
func (e *Engine) Reset(ctx context.Context) error {
	return e.client.ResetState(ctx)
}

// Close closes the client connection.
func (e *Engine) Close() error {
	return e.client.Close()
}
