package grpcclient

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
	"github.com/CanhCl92/AutoAccess/internal/resilience"
	"github.com/CanhCl92/AutoAccess/internal/trace"
)

// Client wraps a health client connection.
type Client struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	breaker *resilience.Breaker
}

// New creates a client for addr. Extra dial options are appended after the defaults.
func New(addr string, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(trace.UnaryClientInterceptor()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    DefaultKeepaliveTime,
			Timeout: DefaultKeepaliveTimeout,
		}),
	}, opts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.InvalidInput, "dial %s", addr)
	}
	return &Client{
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		breaker: resilience.New("health", resilience.DefaultConfig()),
	}, nil
}

// Close closes the gRPC connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Check returns the serving status of service ("" for the whole server).
func (c *Client) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	resp, err := resilience.ExecuteWithResult(c.breaker, func() (*healthpb.HealthCheckResponse, error) {
		return c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	})
	if err == resilience.ErrOpen {
		return healthpb.HealthCheckResponse_UNKNOWN, apperrors.Wrap(err, apperrors.Unavailable, "health checks suspended")
	}
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, apperrors.FromGRPCError(err)
	}
	return resp.GetStatus(), nil
}

// WaitServing polls until service reports SERVING or ctx ends.
func (c *Client) WaitServing(ctx context.Context, service string) error {
	ticker := time.NewTicker(DefaultHealthCheckInterval)
	defer ticker.Stop()
	for {
		st, err := c.Check(ctx, service)
		if err == nil && st == healthpb.HealthCheckResponse_SERVING {
			return nil
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return err
			}
			return apperrors.Newf(apperrors.Timeout, "service %q is %s", service, st)
		case <-ticker.C:
		}
	}
}
