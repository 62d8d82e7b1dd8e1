package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func TestIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tc := New()
		if len(tc.TraceID) != 32 {
			t.Fatalf("trace ID should be 32 hex chars, got %q", tc.TraceID)
		}
		if len(tc.SpanID) != 16 {
			t.Fatalf("span ID should be 16 hex chars, got %q", tc.SpanID)
		}
		if seen[tc.TraceID] {
			t.Fatal("generated duplicate trace ID")
		}
		seen[tc.TraceID] = true
	}
}

func TestNewChild(t *testing.T) {
	parent := New()
	child := NewChild(parent)

	if child.TraceID != parent.TraceID {
		t.Error("child should inherit trace ID")
	}
	if child.SpanID == parent.SpanID {
		t.Error("child should have new span ID")
	}
	if child.ParentSpanID != parent.SpanID {
		t.Error("child's parent should be parent's span ID")
	}
}

func TestEnsureContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("empty context should carry no trace")
	}

	ctx, tc := EnsureContext(context.Background())
	_, again := EnsureContext(ctx)
	if again.TraceID != tc.TraceID {
		t.Error("should keep the existing trace")
	}
}

func TestSpanNested(t *testing.T) {
	ctx, run := StartSpan(context.Background(), "run")
	_, load := StartSpan(ctx, "model_load")
	load.SetAttr("engine", "scorer")
	load.End()

	if load.Context().TraceID != run.Context().TraceID {
		t.Error("child should inherit trace ID")
	}
	if load.Context().ParentSpanID != run.Context().SpanID {
		t.Error("child's parent should be the run span")
	}
	if !load.Ended() || load.Duration() < 0 {
		t.Error("ended span should have an end time")
	}
	if run.Ended() || run.Duration() != 0 {
		t.Error("open span should report zero duration")
	}
}

func TestFailedSpanLogsWarning(t *testing.T) {
	var buf bytes.Buffer
	_, flush := SetupLogger("warn", &buf)
	defer slog.SetDefault(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	_, ok := StartSpan(context.Background(), "ok")
	ok.End()
	_, bad := StartSpan(context.Background(), "model_load")
	bad.SetAttr("engine", "vosk")
	bad.Fail(errors.New("connection refused"))
	bad.End()
	bad.End()
	flush()

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d: %s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal(lines[0], &entry); err != nil {
		t.Fatal(err)
	}
	if entry["msg"] != "span failed" || entry["error"] != "connection refused" {
		t.Errorf("entry = %v", entry)
	}
	if entry["trace_id"] != bad.Context().TraceID {
		t.Errorf("trace_id = %v", entry["trace_id"])
	}
}

func TestHeader(t *testing.T) {
	tc := New()
	h := Header(WithContext(context.Background(), tc))

	if got := h.Get(TraceIDKey); got != tc.TraceID {
		t.Errorf("trace id = %q, want %q", got, tc.TraceID)
	}
	if h.Get(ParentSpanIDKey) != tc.SpanID {
		t.Error("caller's span should become the parent")
	}
	if h.Get(SpanIDKey) == tc.SpanID {
		t.Error("handshake should carry a fresh span")
	}

	if fresh := Header(context.Background()); len(fresh.Get(TraceIDKey)) != 32 {
		t.Error("missing context should start a new trace")
	}
}

func TestUnaryClientInterceptor(t *testing.T) {
	tc := New()
	ctx := WithContext(context.Background(), tc)

	var seen metadata.MD
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		seen, _ = metadata.FromOutgoingContext(ctx)
		return nil
	}

	if err := UnaryClientInterceptor()(ctx, "/wakeword.v1.ScorerService/Predict", nil, nil, nil, invoker); err != nil {
		t.Fatal(err)
	}
	if got := seen.Get(TraceIDKey); len(got) != 1 || got[0] != tc.TraceID {
		t.Errorf("trace id metadata = %v, want %s", got, tc.TraceID)
	}
	if got := seen.Get(ParentSpanIDKey); len(got) != 1 || got[0] != tc.SpanID {
		t.Errorf("parent span metadata = %v, want caller span %s", got, tc.SpanID)
	}
	if got := seen.Get(SpanIDKey); len(got) != 1 || got[0] == tc.SpanID {
		t.Errorf("span metadata = %v, want a fresh child span", got)
	}
}

func TestInterceptorKeepsMetadata(t *testing.T) {
	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-model-id", "apollo")

	var seen metadata.MD
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		seen, _ = metadata.FromOutgoingContext(ctx)
		return nil
	}
	if err := UnaryClientInterceptor()(ctx, "/m", nil, nil, nil, invoker); err != nil {
		t.Fatal(err)
	}
	if got := seen.Get("x-model-id"); len(got) != 1 || got[0] != "apollo" {
		t.Errorf("model metadata lost: %v", got)
	}
	if len(seen.Get(TraceIDKey)) != 1 {
		t.Error("a trace should be started when the caller has none")
	}
}

func TestFromIncoming(t *testing.T) {
	if _, ok := FromIncoming(context.Background()); ok {
		t.Error("no metadata should yield no context")
	}

	tc := NewChild(New())
	ctx := metadata.NewIncomingContext(context.Background(), metadata.New(tc.ToMap()))
	got, ok := FromIncoming(ctx)
	if !ok || got != tc {
		t.Errorf("FromIncoming = %+v, %v; want %+v", got, ok, tc)
	}
}

func TestLoggerCarriesIDs(t *testing.T) {
	var buf bytes.Buffer
	logger, flush := SetupLogger("debug", &buf)
	defer slog.SetDefault(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	tc := New()
	Logger(WithContext(context.Background(), tc)).Info("listening", "sample_rate", 16000)
	logger.Debug("debug enabled")
	flush()

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal(lines[0], &entry); err != nil {
		t.Fatal(err)
	}
	if entry["trace_id"] != tc.TraceID {
		t.Errorf("trace_id = %v, want %s", entry["trace_id"], tc.TraceID)
	}
	if entry["msg"] != "listening" {
		t.Errorf("msg = %v", entry["msg"])
	}
}

func TestParseLevel(t *testing.T) {
	var buf bytes.Buffer
	_, flush := SetupLogger("warn", &buf)
	defer slog.SetDefault(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	slog.Info("hidden")
	slog.Warn("shown")
	flush()

	if bytes.Contains(buf.Bytes(), []byte("hidden")) {
		t.Error("info should be filtered at warn level")
	}
	if !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Error("warn should be logged")
	}
}
