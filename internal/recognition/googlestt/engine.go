// Package googlestt is a streaming engine backed by Google Cloud Speech-to-Text.
//
// Each utterance runs on its own single-utterance stream. Interim hypotheses are reported as
// Partial outputs; the final result, with per-word offsets and confidences, as a Final. When the
// service signals the end of an utterance the stream is half-closed and a new one is opened on the
// next chunk.
package googlestt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/hashicorp/go-multierror"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/GriffinCanCode/wake-listener/internal/audio"
	apperrors "github.com/GriffinCanCode/wake-listener/internal/errors"
	"github.com/GriffinCanCode/wake-listener/internal/recognition"
)

const resultBuffer = 64

// Config selects language and stream parameters.
type Config struct {
	Language   string
	SampleRate int
	// Phrases are passed as speech context hints.
	Phrases []string
}

type event struct {
	out recognition.Output
	err error
}

// Engine implements recognition.Engine.
type Engine struct {
	cfg    Config
	client *speech.Client
	ctx    context.Context
	cancel context.CancelFunc

	stream  speechpb.Speech_StreamingRecognizeClient
	ended   *atomic.Bool
	events  chan event
	pending []recognition.Output
	wg      sync.WaitGroup
}

// New creates the client and opens the first stream. Credentials come from the environment
// (GOOGLE_APPLICATION_CREDENTIALS).
func New(ctx context.Context, cfg Config) (*Engine, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ModelLoadFailed, "failed to create speech client")
	}
	return newEngine(ctx, cfg, client)
}

// newEngine takes ownership of client and opens the first stream.
func newEngine(ctx context.Context, cfg Config, client *speech.Client) (*Engine, error) {
	ctx, cancel := context.WithCancel(ctx)
	e := &Engine{
		cfg:    cfg,
		client: client,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan event, resultBuffer),
	}
	if err := e.open(); err != nil {
		cancel()
		_ = client.Close()
		return nil, apperrors.Wrap(err, apperrors.ModelLoadFailed, "failed to open recognition stream")
	}
	return e, nil
}

// Name implements recognition.Engine.
func (e *Engine) Name() string { return "google:" + e.cfg.Language }

// Kind implements recognition.Engine.
func (e *Engine) Kind() recognition.Strategy { return recognition.Streaming }

func (e *Engine) open() error {
	stream, err := e.client.StreamingRecognize(e.ctx)
	if err != nil {
		return err
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: streamingConfig(e.cfg),
		},
	})
	if err != nil {
		return err
	}

	ended := &atomic.Bool{}
	e.stream = stream
	e.ended = ended
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.receive(stream, ended)
	}()
	return nil
}

func streamingConfig(cfg Config) *speechpb.StreamingRecognitionConfig {
	rc := &speechpb.RecognitionConfig{
		Encoding:              speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:       int32(cfg.SampleRate),
		LanguageCode:          cfg.Language,
		AudioChannelCount:     1,
		EnableWordTimeOffsets: true,
		EnableWordConfidence:  true,
		MaxAlternatives:       1,
	}
	if len(cfg.Phrases) > 0 {
		rc.SpeechContexts = []*speechpb.SpeechContext{{Phrases: cfg.Phrases}}
	}
	return &speechpb.StreamingRecognitionConfig{
		Config:          rc,
		InterimResults:  true,
		SingleUtterance: true,
	}
}

// receive forwards results until the stream ends. It marks the stream ended as soon as the
// service reports end of utterance so Feed stops sending on it.
func (e *Engine) receive(stream speechpb.Speech_StreamingRecognizeClient, ended *atomic.Bool) {
	defer ended.Store(true)

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if e.ctx.Err() == nil {
				e.push(event{err: apperrors.Wrap(err, apperrors.RecognitionFailed, "speech stream failed")})
			}
			return
		}
		if st := resp.GetError(); st != nil {
			e.push(event{err: apperrors.Newf(apperrors.RecognitionFailed, "speech stream error %d: %s", st.GetCode(), st.GetMessage())})
			return
		}
		if resp.GetSpeechEventType() == speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE {
			ended.Store(true)
		}
		for _, res := range resp.GetResults() {
			e.push(event{out: toOutput(res)})
		}
	}
}

// push buffers ev for the next Feed. Partials are dropped when the buffer is full; finals and
// errors wait for room until the engine is closed.
func (e *Engine) push(ev event) {
	if ev.err == nil && ev.out.Kind != recognition.Final {
		select {
		case e.events <- ev:
		default:
			slog.Debug("speech result buffer full, dropping partial")
		}
		return
	}

	select {
	case e.events <- ev:
	case <-e.ctx.Done():
	}
}

// Feed sends the chunk and returns the most useful output received since the last call:
// a pending Final if there is one, otherwise the latest Partial.
func (e *Engine) Feed(ctx context.Context, chunk audio.Chunk) (recognition.Output, error) {
	pcm := chunk.Int16
	if chunk.Format == audio.F32 {
		pcm = audio.ToInt16(chunk.Float32)
	}
	if len(pcm) == 0 {
		return recognition.Output{}, apperrors.New(apperrors.AudioInvalid, "empty chunk")
	}

	if e.ended.Load() {
		_ = e.stream.CloseSend()
		if err := e.open(); err != nil {
			return recognition.Output{}, apperrors.Wrap(err, apperrors.RecognitionFailed, "failed to reopen speech stream")
		}
	}

	err := e.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: audio.Int16ToBytes(pcm)},
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return recognition.Output{}, apperrors.Wrap(err, apperrors.RecognitionFailed, "failed to send audio")
	}

	return e.drain()
}

func (e *Engine) drain() (recognition.Output, error) {
	var partial *recognition.Output
loop:
	for {
		select {
		case ev := <-e.events:
			if ev.err != nil {
				return recognition.Output{}, ev.err
			}
			switch ev.out.Kind {
			case recognition.Final:
				e.pending = append(e.pending, ev.out)
			case recognition.Partial:
				out := ev.out
				partial = &out
			}
		default:
			break loop
		}
	}

	if len(e.pending) > 0 {
		out := e.pending[0]
		e.pending = e.pending[1:]
		return out, nil
	}
	if partial != nil {
		return *partial, nil
	}
	return recognition.Output{Kind: recognition.None}, nil
}

// Close ends the stream and releases the client.
func (e *Engine) Close() error {
	var result *multierror.Error
	if err := e.stream.CloseSend(); err != nil {
		result = multierror.Append(result, err)
	}
	e.cancel()
	e.wg.Wait()
	if err := e.client.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// toOutput maps one streaming result onto a recognition output.
func toOutput(res *speechpb.StreamingRecognitionResult) recognition.Output {
	alts := res.GetAlternatives()
	if len(alts) == 0 {
		if res.GetIsFinal() {
			return recognition.Output{Kind: recognition.Final}
		}
		return recognition.Output{Kind: recognition.None}
	}

	best := alts[0]
	if !res.GetIsFinal() {
		return recognition.Output{Kind: recognition.Partial, Text: best.GetTranscript()}
	}

	out := recognition.Output{
		Kind:  recognition.Final,
		Text:  best.GetTranscript(),
		Words: make([]recognition.WordSpan, 0, len(best.GetWords())),
	}
	for _, w := range best.GetWords() {
		out.Words = append(out.Words, recognition.WordSpan{
			Word:       w.GetWord(),
			Confidence: w.GetConfidence(),
			Start:      seconds(w.GetStartTime()),
			End:        seconds(w.GetEndTime()),
		})
	}
	return out
}

func seconds(d *durationpb.Duration) float32 {
	if d == nil {
		return recognition.Missing
	}
	return float32(d.AsDuration().Seconds())
}
