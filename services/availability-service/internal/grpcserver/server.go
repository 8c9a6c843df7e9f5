package grpcserver

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/serenity-care/platform/libs/grpcx"
	"github.com/serenity-care/platform/libs/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const ServiceName = "availability-service"

// Server exposes gRPC health for mesh and orchestrator checks. Serving status
// follows the same dependency checks as /readyz.
type Server struct {
	srv      *grpc.Server
	health   *health.Server
	checks   []runtime.ReadyCheck
	interval time.Duration
	logger   *slog.Logger
}

func New(logger *slog.Logger, checks []runtime.ReadyCheck, interval time.Duration) *Server {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	srv := grpcx.NewServer(logger)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	s := &Server{srv: srv, health: hs, checks: checks, interval: interval, logger: logger}
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *Server) GRPC() *grpc.Server {
	return s.srv
}

// Refresh runs the checks once and publishes the result.
func (s *Server) Refresh(ctx context.Context) bool {
	ready, results := runtime.RunChecks(ctx, s.checks)
	if ready {
		s.setStatus(healthpb.HealthCheckResponse_SERVING)
	} else {
		s.logger.Warn("grpc health not serving", "checks", results)
		s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return ready
}

// Serve blocks until lis fails or ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go s.watch(ctx)
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.srv.GracefulStop()
	}()
	return s.srv.Serve(lis)
}

func (s *Server) watch(ctx context.Context) {
	s.Refresh(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

func (s *Server) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
