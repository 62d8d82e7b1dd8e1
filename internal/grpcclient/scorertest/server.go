// Package scorertest runs an in-process scorer server over bufconn for tests.
package scorertest

import (
	"context"
	"net"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/GriffinCanCode/wake-listener/internal/grpcclient"
	"github.com/GriffinCanCode/wake-listener/internal/trace"
)

// Target is the dial address to use with DialOption.
const Target = "passthrough:///bufnet"

// Server is a scripted scorer. Scores are returned in order; the last one repeats.
type Server struct {
	Health *health.Server

	mu        sync.Mutex
	scores    []float32
	err       error
	predicts  int
	resets    int
	bytes     int
	lastMD    metadata.MD
	lastTrace trace.Context

	lis *bufconn.Listener
	srv *grpc.Server
}

// Start launches the server and registers cleanup on t.
func Start(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		Health: health.NewServer(),
		lis:    bufconn.Listen(1 << 20),
		srv:    grpc.NewServer(),
	}
	s.Health.SetServingStatus(grpcclient.ScorerService, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s.srv, s.Health)
	s.srv.RegisterService(&serviceDesc, s)

	go func() { _ = s.srv.Serve(s.lis) }()
	t.Cleanup(s.srv.Stop)
	return s
}

// DialOption routes Target to the in-process listener.
func (s *Server) DialOption() grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return s.lis.DialContext(ctx)
	})
}

// SetScores scripts the Predict replies.
func (s *Server) SetScores(scores ...float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores = scores
}

// SetError makes every Predict fail with err until cleared with nil.
func (s *Server) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Predicts returns the number of Predict calls served.
func (s *Server) Predicts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.predicts
}

// Resets returns the number of ResetState calls served.
func (s *Server) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// LastBytes returns the payload size of the most recent Predict.
func (s *Server) LastBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// LastMetadata returns the incoming metadata of the most recent call.
func (s *Server) LastMetadata() metadata.MD {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMD
}

// LastTrace returns the caller's span ids from the most recent Predict.
func (s *Server) LastTrace() trace.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTrace
}

func (s *Server) predict(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.FloatValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastMD, _ = metadata.FromIncomingContext(ctx)
	s.lastTrace, _ = trace.FromIncoming(ctx)
	s.bytes = len(in.GetValue())
	if s.err != nil {
		return nil, s.err
	}

	var score float32
	if len(s.scores) > 0 {
		idx := min(s.predicts, len(s.scores)-1)
		score = s.scores[idx]
	}
	s.predicts++
	return wrapperspb.Float(score), nil
}

func (s *Server) reset(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastMD, _ = metadata.FromIncomingContext(ctx)
	s.resets++
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: grpcclient.ScorerService,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Predict",
			Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := &wrapperspb.BytesValue{}
				if err := dec(in); err != nil {
					return nil, err
				}
				return srv.(*Server).predict(ctx, in)
			},
		},
		{
			MethodName: "ResetState",
			Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				if err := dec(&emptypb.Empty{}); err != nil {
					return nil, err
				}
				srv.(*Server).reset(ctx)
				return &emptypb.Empty{}, nil
			},
		},
	},
	Streams: []grpc.StreamDesc{},
}
