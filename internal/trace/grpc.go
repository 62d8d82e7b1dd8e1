package trace

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// SlowCall is the RPC duration above which a call is logged at debug level.
const SlowCall = 250 * time.Millisecond

// UnaryClientInterceptor sends each scorer call as a child span of the caller's span.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = outgoing(ctx)
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		if d := time.Since(start); d > SlowCall {
			Logger(ctx).Debug("slow rpc", "method", method, "duration", d, "error", err)
		}
		return err
	}
}

// StreamClientInterceptor propagates ids on streaming calls.
func StreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(outgoing(ctx), desc, cc, method, opts...)
	}
}

// outgoing derives a child span and writes its ids into the outgoing metadata, keeping any
// metadata already attached.
func outgoing(ctx context.Context) context.Context {
	ctx, parent := EnsureContext(ctx)
	tc := NewChild(parent)
	ctx = WithContext(ctx, tc)

	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	for k, v := range tc.ToMap() {
		md.Set(k, v)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

// FromIncoming reads the caller's ids from server-side metadata.
func FromIncoming(ctx context.Context) (Context, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return Context{}, false
	}
	ids := md.Get(TraceIDKey)
	if len(ids) == 0 || ids[0] == "" {
		return Context{}, false
	}
	tc := Context{TraceID: ids[0]}
	if s := md.Get(SpanIDKey); len(s) > 0 {
		tc.SpanID = s[0]
	}
	if p := md.Get(ParentSpanIDKey); len(p) > 0 {
		tc.ParentSpanID = p[0]
	}
	return tc, true
}
