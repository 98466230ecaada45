package monitor

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/ashureev/advisor-gateway/internal/backend"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// BackendServiceName is the gRPC health service reporting backend reachability.
const BackendServiceName = "advisor.Backend"

// GRPCHealth serves the standard gRPC health protocol. The overall service
// ("") is SERVING while the gateway runs; BackendServiceName follows the
// backend connection status.
type GRPCHealth struct {
	server *grpc.Server
	health *health.Server
	lis    net.Listener
	logger *slog.Logger
}

// NewGRPCHealth listens on addr and registers the health service.
func NewGRPCHealth(addr string, logger *slog.Logger) (*GRPCHealth, error) {
	if logger == nil {
		logger = slog.Default()
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(BackendServiceName, healthpb.HealthCheckResponse_UNKNOWN)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &GRPCHealth{server: srv, health: hs, lis: lis, logger: logger}, nil
}

// Addr returns the address the server listens on.
func (g *GRPCHealth) Addr() string {
	return g.lis.Addr().String()
}

// Serve blocks serving requests until Stop is called.
func (g *GRPCHealth) Serve() error {
	g.logger.Info("gRPC health server listening", "addr", g.Addr())
	if err := g.server.Serve(g.lis); err != nil {
		return fmt.Errorf("serve grpc health: %w", err)
	}
	return nil
}

// SetBackendStatus maps a connection status onto the backend service status.
// A slow backend still counts as serving.
func (g *GRPCHealth) SetBackendStatus(status backend.ConnectionStatus) {
	s := healthpb.HealthCheckResponse_NOT_SERVING
	if status == backend.StatusOnline || status == backend.StatusSlow {
		s = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus(BackendServiceName, s)
}

// Stop marks every service NOT_SERVING and stops the server.
func (g *GRPCHealth) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
