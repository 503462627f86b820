// Package rpcserver exposes service readiness over the standard gRPC health protocol.
package rpcserver

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/CanhCl92/AutoAccess/internal/trace"
)

// ServiceName is the health service name reported alongside the overall status.
const ServiceName = "autoaccess.Engine"

// DefaultRefreshInterval is how often readiness is re-evaluated.
const DefaultRefreshInterval = time.Second

// Server serves gRPC health checks driven by a readiness probe.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	ready    func() bool
	interval time.Duration
}

// New creates a health server. ready is polled every interval.
func New(ready func() bool, interval time.Duration) *Server {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	gs := grpc.NewServer(grpc.UnaryInterceptor(trace.UnaryServerInterceptor()))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{grpc: gs, health: hs, ready: ready, interval: interval}
	s.refresh()
	return s
}

// Serve accepts connections on lis until Stop is called. Readiness is
// refreshed until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go s.watch(ctx)
	trace.Logger(ctx).Info("grpc health server listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

func (s *Server) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh()
		}
	}
}

func (s *Server) refresh() {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if s.ready() {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
