package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// EnrichmentService is the gRPC health service name for background
// classification. It is NOT_SERVING while the circuit breaker is open.
const EnrichmentService = "toolfilter.Enrichment"

// GRPCServer exposes the monitor through the standard gRPC health protocol.
type GRPCServer struct {
	monitor *Monitor
	health  *grpchealth.Server
	server  *grpc.Server
	port    int
	log     *slog.Logger
}

// NewGRPCServer creates a gRPC health server.
func NewGRPCServer(monitor *Monitor, port int, log *slog.Logger) *GRPCServer {
	if log == nil {
		log = slog.Default()
	}
	s := &GRPCServer{
		monitor: monitor,
		health:  grpchealth.NewServer(),
		server:  grpc.NewServer(),
		port:    port,
		log:     log.With("component", "grpc-health"),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	return s
}

// Start listens and serves until Stop is called.
func (s *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port %d: %w", s.port, err)
	}
	return s.server.Serve(lis)
}

// Stop drains active RPCs and stops the server.
func (s *GRPCServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}

// Run refreshes serving status every interval until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context, interval time.Duration) {
	s.Sync(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sync(ctx)
		}
	}
}

// Sync maps the current health report onto gRPC serving status.
func (s *GRPCServer) Sync(ctx context.Context) {
	report := s.monitor.CheckHealth(ctx)

	overall := healthpb.HealthCheckResponse_SERVING
	if report.Status == StatusCritical {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", overall)

	enrichment := healthpb.HealthCheckResponse_SERVING
	if c, ok := report.Components["enrichment"]; ok && c.Status != StatusHealthy {
		enrichment = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(EnrichmentService, enrichment)

	s.log.Debug("Synced gRPC health", "status", report.Status)
}
