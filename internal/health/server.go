// Package health publishes and probes service status over the standard
// gRPC health checking protocol.
package health

import (
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/danielpatrickdp/continuity/internal/logging"
)

// Service names published by the daemon.
const (
	ServiceDeadline = "continuity.deadline"
	ServiceState    = "continuity.state"
)

// #region server

// Server is a gRPC server carrying only the health service.
type Server struct {
	grpc   *grpc.Server
	health *grpchealth.Server
	log    *zap.Logger
}

// NewServer builds a server with every service NOT_SERVING until set.
func NewServer(logger *zap.Logger) *Server {
	gs := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return &Server{grpc: gs, health: hs, log: logging.OrNop(logger).Named("health")}
}

// SetServing flips service between SERVING and NOT_SERVING. The empty
// service name is the overall server status.
func (s *Server) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, status)
	s.log.Debug("health status", zap.String("service", service), zap.Stringer("status", status))
}

// Serve blocks until Stop. It returns nil after a clean stop.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("health server listening", zap.String("addr", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("health serve: %w", err)
	}
	return nil
}

// Stop marks everything NOT_SERVING and drains open RPCs.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// #endregion server
