package statushub

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/notesync/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the service reported by the health server.
const ServiceName = "notesync"

// Health mirrors sync health into a standard gRPC health service.
type Health struct {
	srv *health.Server
	log logging.Logger
}

func NewHealth(log logging.Logger) *Health {
	s := health.NewServer()
	s.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return &Health{srv: s, log: log.With("module", "health")}
}

// Set records the outcome of the latest sync cycle.
func (h *Health) Set(healthy bool) {
	st := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.srv.SetServingStatus(ServiceName, st)
}

func (h *Health) Check(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := h.srv.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Run serves the health service on addr until ctx is done.
func (h *Health) Run(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return h.Serve(ctx, lis)
}

func (h *Health) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(h.logInterceptor))
	healthpb.RegisterHealthServer(srv, h.srv)

	go func() {
		<-ctx.Done()
		h.log.Info(ctx, "stopping gRPC health server")
		h.srv.Shutdown()
		srv.GracefulStop()
	}()

	h.log.Info(ctx, "starting gRPC health server", "address", lis.Addr().String())
	return srv.Serve(lis)
}

func (h *Health) logInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	h.log.Debug(ctx, "grpc call", "method", info.FullMethod, "duration", time.Since(start), "error", err)
	return resp, err
}
