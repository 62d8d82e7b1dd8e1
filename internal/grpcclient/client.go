// Package grpcclient talks to the remote wake-word scoring server.
package grpcclient

import (
	"context"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/GriffinCanCode/wake-listener/internal/errors"
	"github.com/GriffinCanCode/wake-listener/internal/resilience"
	"github.com/GriffinCanCode/wake-listener/internal/trace"
)

// Options describes the model and audio the server should expect.
type Options struct {
	ModelID      string
	SampleRate   int
	SampleFormat string
	Breaker      resilience.Config
	Ready        resilience.RetryConfig
}

// Client wraps the scorer connection.
type Client struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	breaker *resilience.Breaker
	opts    Options
	md      metadata.MD
}

// New creates a client for addr. The connection is established lazily; call WaitReady to block
// until the server reports SERVING. Extra dial options are appended (tests use a bufconn dialer).
func New(addr string, opts Options, dialOpts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(trace.UnaryClientInterceptor()),
		grpc.WithChainStreamInterceptor(trace.StreamClientInterceptor()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                DefaultKeepaliveTime,
			Timeout:             DefaultKeepaliveTimeout,
			PermitWithoutStream: true,
		}),
	}

	conn, err := grpc.NewClient(addr, append(base, dialOpts...)...)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.SetupFailed, "invalid scorer address %q", addr)
	}

	if opts.Breaker.Name == "" {
		opts.Breaker = resilience.ScorerConfig()
	}
	if opts.Ready.MaxRetries == 0 {
		opts.Ready = resilience.ReadyRetryConfig()
	}

	return &Client{
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		breaker: resilience.New(opts.Breaker),
		opts:    opts,
		md: metadata.Pairs(
			ModelIDHeader, opts.ModelID,
			SampleRateHeader, strconv.Itoa(opts.SampleRate),
			SampleFormatHeader, opts.SampleFormat,
		),
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// WaitReady polls the standard health service for the scorer until it is SERVING or the
// retry budget is exhausted. A server that never becomes ready is a model load failure. On
// success the breaker starts closed.
func (c *Client) WaitReady(ctx context.Context) error {
	err := resilience.Retry(ctx, c.opts.Ready, func() error {
		hctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
		defer cancel()

		resp, err := c.health.Check(hctx, &healthpb.HealthCheckRequest{Service: ScorerService})
		if err != nil {
			return apperrors.FromGRPCError(err)
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return apperrors.Newf(apperrors.Unavailable, "scorer status %s", resp.GetStatus())
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ModelLoadFailed, "scorer not ready").
			WithMetadata("model_id", c.opts.ModelID)
	}
	// Failures recorded while the server was still loading do not count against it.
	c.breaker.Reset()
	return nil
}

// Predict scores one chunk of raw PCM and returns the wake-word probability.
func (c *Client) Predict(ctx context.Context, pcm []byte) (float32, error) {
	return resilience.ExecuteWithResult(c.breaker, func() (float32, error) {
		cctx, cancel := context.WithTimeout(metadata.NewOutgoingContext(ctx, c.md), PredictTimeout)
		defer cancel()

		reply := &wrapperspb.FloatValue{}
		if err := c.conn.Invoke(cctx, PredictMethod, wrapperspb.Bytes(pcm), reply); err != nil {
			return 0, apperrors.FromGRPCError(err)
		}
		return reply.GetValue(), nil
	})
}

// ResetState clears the server's per-stream model state, e.g. after a detection.
func (c *Client) ResetState(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(metadata.NewOutgoingContext(ctx, c.md), ResetTimeout)
	defer cancel()

	if err := c.conn.Invoke(cctx, ResetStateMethod, &emptypb.Empty{}, &emptypb.Empty{}); err != nil {
		return apperrors.FromGRPCError(err)
	}
	return nil
}
