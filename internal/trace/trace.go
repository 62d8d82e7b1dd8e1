// Package trace carries run and span identifiers through the listener so that log lines,
// scorer RPCs and recognizer sessions belonging to one run can be correlated.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Propagation keys for gRPC metadata and websocket handshake headers.
const (
	TraceIDKey      = "x-trace-id"
	SpanIDKey       = "x-span-id"
	ParentSpanIDKey = "x-parent-span-id"
)

type ctxKey struct{}

// Context identifies one span within a trace.
type Context struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
}

// New starts a trace.
func New() Context {
	return Context{TraceID: strings.ReplaceAll(uuid.NewString(), "-", ""), SpanID: spanID()}
}

// NewChild creates a span under parent.
func NewChild(parent Context) Context {
	return Context{TraceID: parent.TraceID, SpanID: spanID(), ParentSpanID: parent.SpanID}
}

func spanID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// FromContext extracts the span ids, if any.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// WithContext attaches tc to ctx.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// EnsureContext returns ctx unchanged if it already carries a span, otherwise starts a new trace.
func EnsureContext(ctx context.Context) (context.Context, Context) {
	if tc, ok := FromContext(ctx); ok {
		return ctx, tc
	}
	tc := New()
	return WithContext(ctx, tc), tc
}

// ToMap exports the ids under their propagation keys.
func (c Context) ToMap() map[string]string {
	m := map[string]string{TraceIDKey: c.TraceID, SpanIDKey: c.SpanID}
	if c.ParentSpanID != "" {
		m[ParentSpanIDKey] = c.ParentSpanID
	}
	return m
}

func (c Context) args() []any {
	args := []any{"trace_id", c.TraceID, "span_id", c.SpanID}
	if c.ParentSpanID != "" {
		args = append(args, "parent_span_id", c.ParentSpanID)
	}
	return args
}

// Span times one phase of a run, such as model load or a detection.
type Span struct {
	name  string
	ctx   Context
	start time.Time
	end   time.Time
	attrs []slog.Attr
	err   error
}

// StartSpan begins a span under whatever span ctx carries.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	tc := New()
	if parent, ok := FromContext(ctx); ok && parent.TraceID != "" {
		tc = NewChild(parent)
	}
	return WithContext(ctx, tc), &Span{name: name, ctx: tc, start: time.Now()}
}

// Context returns the span's ids.
func (s *Span) Context() Context { return s.ctx }

// SetAttr records an attribute logged when the span ends. Attributes keep their order.
func (s *Span) SetAttr(key string, val any) {
	s.attrs = append(s.attrs, slog.Any(key, val))
}

// Fail marks the span failed. It is logged at warn level when it ends.
func (s *Span) Fail(err error) {
	s.err = err
}

// End closes the span and logs it. Calling End twice keeps the first end time.
func (s *Span) End() {
	if !s.end.IsZero() {
		return
	}
	s.end = time.Now()

	log := slog.Default().With(s.ctx.args()...)
	if s.err != nil {
		log.Warn("span failed", "span", s, "error", s.err)
		return
	}
	log.Debug("span finished", "span", s)
}

// Ended reports whether End has been called.
func (s *Span) Ended() bool { return !s.end.IsZero() }

// Duration is zero while the span is open.
func (s *Span) Duration() time.Duration {
	if s.end.IsZero() {
		return 0
	}
	return s.end.Sub(s.start)
}

// LogValue implements slog.LogValuer.
func (s *Span) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(s.attrs)+2)
	attrs = append(attrs, slog.String("name", s.name), slog.Duration("duration", s.Duration()))
	return slog.GroupValue(append(attrs, s.attrs...)...)
}

// Logger returns the default logger annotated with ctx's span ids.
func Logger(ctx context.Context) *slog.Logger {
	tc, ok := FromContext(ctx)
	if !ok {
		return slog.Default()
	}
	return slog.Default().With(tc.args()...)
}
