// Package vosk is a streaming engine backed by a Vosk websocket server (vosk-server asr_server).
//
// Protocol: the client sends a JSON config message, then binary 16-bit PCM. The server answers
// every binary message with exactly one JSON object, either {"partial": "..."} while an utterance
// is open, or {"result": [...], "text": "..."} when it closes one. {"eof": 1} ends the stream.
package vosk

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/GriffinCanCode/wake-listener/internal/audio"
	apperrors "github.com/GriffinCanCode/wake-listener/internal/errors"
	"github.com/GriffinCanCode/wake-listener/internal/recognition"
	"github.com/GriffinCanCode/wake-listener/internal/trace"
)

const (
	dialTimeout  = 10 * time.Second
	closeTimeout = 2 * time.Second
	readLimit    = 1 << 20
)

// Config selects the server and stream parameters.
type Config struct {
	URL        string
	SampleRate int
	// Phrases, when set, is sent as a grammar so the recognizer favours the wake phrases.
	Phrases []string
}

type configMessage struct {
	Config streamConfig `json:"config"`
}

type streamConfig struct {
	SampleRate int      `json:"sample_rate"`
	Words      int      `json:"words"`
	Grammar    []string `json:"phrase_list,omitempty"`
}

type word struct {
	Conf  *float64 `json:"conf"`
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
	Word  string   `json:"word"`
}

type reply struct {
	Partial *string `json:"partial"`
	Result  []word  `json:"result"`
	Text    *string `json:"text"`
}

// Engine implements recognition.Engine.
type Engine struct {
	cfg  Config
	conn *websocket.Conn
}

// Dial connects to the server and sends the stream configuration.
func Dial(ctx context.Context, cfg Config) (*Engine, error) {
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dctx, cfg.URL, &websocket.DialOptions{HTTPHeader: trace.Header(ctx)})
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ModelLoadFailed, "failed to connect to vosk at %s", cfg.URL)
	}
	conn.SetReadLimit(readLimit)

	msg := configMessage{Config: streamConfig{SampleRate: cfg.SampleRate, Words: 1}}
	if len(cfg.Phrases) > 0 {
		msg.Config.Grammar = append(append([]string(nil), cfg.Phrases...), "[unk]")
	}
	if err := wsjson.Write(dctx, conn, msg); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "config failed")
		return nil, apperrors.Wrap(err, apperrors.ModelLoadFailed, "failed to send vosk config")
	}

	return &Engine{cfg: cfg, conn: conn}, nil
}

// Name implements recognition.Engine.
func (e *Engine) Name() string { return "vosk" }

// Kind implements recognition.Engine.
func (e *Engine) Kind() recognition.Strategy { return recognition.Streaming }

// Feed sends one chunk and waits for the server's reply to it.
func (e *Engine) Feed(ctx context.Context, chunk audio.Chunk) (recognition.Output, error) {
	pcm := chunk.Int16
	if chunk.Format == audio.F32 {
		pcm = audio.ToInt16(chunk.Float32)
	}
	if len(pcm) == 0 {
		return recognition.Output{}, apperrors.New(apperrors.AudioInvalid, "empty chunk")
	}

	if err := e.conn.Write(ctx, websocket.MessageBinary, audio.Int16ToBytes(pcm)); err != nil {
		return recognition.Output{}, apperrors.Wrap(err, apperrors.RecognitionFailed, "vosk write failed")
	}

	var r reply
	if err := wsjson.Read(ctx, e.conn, &r); err != nil {
		return recognition.Output{}, apperrors.Wrap(err, apperrors.RecognitionFailed, "vosk read failed")
	}
	return r.output(), nil
}

func (r reply) output() recognition.Output {
	switch {
	case r.Result != nil || r.Text != nil:
		out := recognition.Output{Kind: recognition.Final, Words: make([]recognition.WordSpan, 0, len(r.Result))}
		if r.Text != nil {
			out.Text = *r.Text
		}
		for _, w := range r.Result {
			out.Words = append(out.Words, recognition.WordSpan{
				Word:       w.Word,
				Confidence: orMissing(w.Conf),
				Start:      orMissing(w.Start),
				End:        orMissing(w.End),
			})
		}
		return out
	case r.Partial != nil:
		return recognition.Output{Kind: recognition.Partial, Text: *r.Partial}
	default:
		return recognition.Output{Kind: recognition.None}
	}
}

func orMissing(v *float64) float32 {
	if v == nil {
		return recognition.Missing
	}
	return float32(*v)
}

// Close sends end-of-stream and closes the socket.
func (e *Engine) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	eof, _ := json.Marshal(map[string]int{"eof": 1})
	_ = e.conn.Write(ctx, websocket.MessageText, eof)
	return e.conn.Close(websocket.StatusNormalClosure, "")
}
