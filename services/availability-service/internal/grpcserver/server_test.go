package grpcserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/serenity-care/platform/libs/grpcx"
	"github.com/serenity-care/platform/libs/runtime"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestHealthFollowsChecks(t *testing.T) {
	var healthy atomic.Bool
	checks := []runtime.ReadyCheck{{
		Name: "db",
		Check: func(context.Context) error {
			if healthy.Load() {
				return nil
			}
			return errors.New("db down")
		},
	}}
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)), checks, time.Hour)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Serve the bare server so only explicit Refresh calls change status.
	go func() { _ = s.GRPC().Serve(lis) }()
	defer s.GRPC().Stop()

	conn, err := grpcx.Dial(ctx, "passthrough:///bufnet", grpcx.DialOptions{},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	s.Refresh(ctx)
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %s", resp.GetStatus())
	}

	healthy.Store(true)
	if !s.Refresh(ctx) {
		t.Fatalf("expected refresh to report ready")
	}
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", resp.GetStatus())
	}
}
