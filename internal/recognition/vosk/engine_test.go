package vosk

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/wake-listener/internal/audio"
	apperrors "github.com/GriffinCanCode/wake-listener/internal/errors"
	"github.com/GriffinCanCode/wake-listener/internal/recognition"
	"github.com/GriffinCanCode/wake-listener/internal/trace"
)

// fakeServer answers each binary message with the next scripted reply.
type fakeServer struct {
	replies []string

	mu      sync.Mutex
	config  configMessage
	chunks  []int
	traceID string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.traceID = r.Header.Get(trace.TraceIDKey)
	f.mu.Unlock()

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = c.CloseNow() }()

	ctx := r.Context()
	var cfg configMessage
	if err := wsjson.Read(ctx, c, &cfg); err != nil {
		return
	}
	f.mu.Lock()
	f.config = cfg
	f.mu.Unlock()

	for i := 0; ; i++ {
		typ, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		if typ == websocket.MessageText {
			// eof
			_ = c.Write(ctx, websocket.MessageText, []byte(`{"text": ""}`))
			_ = c.Close(websocket.StatusNormalClosure, "")
			return
		}

		f.mu.Lock()
		f.chunks = append(f.chunks, len(data))
		f.mu.Unlock()

		msg := `{"partial": ""}`
		if i < len(f.replies) {
			msg = f.replies[i]
		}
		if err := c.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
			return
		}
	}
}

func dial(t *testing.T, f *fakeServer, phrases ...string) *Engine {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	ctx := trace.WithContext(context.Background(), trace.New())
	e, err := Dial(ctx, Config{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		SampleRate: 16000,
		Phrases:    phrases,
	})
	require.NoError(t, err)
	return e
}

func TestStreamingReplies(t *testing.T) {
	f := &fakeServer{replies: []string{
		`{"partial": "hey"}`,
		`{"partial": "hey apollo"}`,
		`{"result": [{"conf": 1.0, "start": 0.3, "end": 0.51, "word": "hey"}, {"conf": 0.82, "start": 0.51, "end": 1.02, "word": "apollo"}], "text": "hey apollo"}`,
	}}
	e := dial(t, f, "hey apollo")
	assert.Equal(t, recognition.Streaming, e.Kind())

	chunk := audio.Chunk{Format: audio.S16, Int16: make([]int16, 1280)}

	out, err := e.Feed(context.Background(), chunk)
	require.NoError(t, err)
	assert.Equal(t, recognition.Partial, out.Kind)
	assert.Equal(t, "hey", out.Text)

	out, err = e.Feed(context.Background(), chunk)
	require.NoError(t, err)
	assert.Equal(t, recognition.Partial, out.Kind)

	out, err = e.Feed(context.Background(), chunk)
	require.NoError(t, err)
	require.Equal(t, recognition.Final, out.Kind)
	assert.Equal(t, "hey apollo", out.Text)
	require.Len(t, out.Words, 2)
	assert.Equal(t, "apollo", out.Words[1].Word)
	assert.InDelta(t, 0.82, out.Words[1].Confidence, 1e-6)
	assert.InDelta(t, 0.51, out.Words[1].Duration(), 1e-6)

	_ = e.Close()

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, 16000, f.config.Config.SampleRate)
	assert.Equal(t, 1, f.config.Config.Words)
	assert.Equal(t, []string{"hey apollo", "[unk]"}, f.config.Config.Grammar)
	assert.Equal(t, []int{2560, 2560, 2560}, f.chunks)
	assert.Len(t, f.traceID, 32)
}

func TestMissingFieldsAreNaN(t *testing.T) {
	f := &fakeServer{replies: []string{`{"result": [{"word": "apollo", "start": 0.1}], "text": "apollo"}`}}
	e := dial(t, f)
	defer e.Close()

	out, err := e.Feed(context.Background(), audio.Chunk{Format: audio.F32, Float32: make([]float32, 160)})
	require.NoError(t, err)
	require.Len(t, out.Words, 1)

	w := out.Words[0]
	assert.True(t, math.IsNaN(float64(w.Confidence)))
	assert.True(t, math.IsNaN(float64(w.End)))
	assert.False(t, w.Valid())
}

func TestEmptyFinalAndUnknownReply(t *testing.T) {
	f := &fakeServer{replies: []string{`{"text": ""}`, `{}`}}
	e := dial(t, f)
	defer e.Close()

	chunk := audio.Chunk{Format: audio.S16, Int16: make([]int16, 8)}
	out, err := e.Feed(context.Background(), chunk)
	require.NoError(t, err)
	assert.Equal(t, recognition.Final, out.Kind)
	assert.Empty(t, out.Words)

	out, err = e.Feed(context.Background(), chunk)
	require.NoError(t, err)
	assert.Equal(t, recognition.None, out.Kind)
}

func TestFeedRejectsEmptyChunk(t *testing.T) {
	e := dial(t, &fakeServer{})
	defer e.Close()

	_, err := e.Feed(context.Background(), audio.Chunk{Format: audio.S16})
	assert.True(t, apperrors.IsCode(err, apperrors.AudioInvalid))
}

func TestDialFailure(t *testing.T) {
	_, err := Dial(context.Background(), Config{URL: "ws://127.0.0.1:1", SampleRate: 16000})
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
}
