package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/matheus3301/mailingest/internal/lock"
	"github.com/matheus3301/mailingest/internal/paths"
	"github.com/matheus3301/mailingest/internal/status"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the ingestion run.
const ServiceName = "mailingest.Ingest"

// Server manages the gRPC health endpoint of a run.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer creates a gRPC server bound to the run's Unix domain socket.
// It requires the archive lock so a stale socket is only ever removed by
// the lock holder.
func NewServer(p Params, run *Run, _ *lock.Lock, logger *zap.Logger) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = paths.SocketPath(run.Key)
	}
	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	s := &Server{
		grpcServer: srv,
		health:     hs,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}
	s.SetStatus(status.Pending)
	return s, nil
}

// SetStatus publishes the serving status for a run state under both the
// overall ("") and the ingestion service names.
func (s *Server) SetStatus(state status.State) {
	st := ServingStatus(state)
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// ServingStatus maps a run state to a health status: a run that is
// ingesting or has completed is serving.
func ServingStatus(state status.State) healthpb.HealthCheckResponse_ServingStatus {
	switch state {
	case status.Ingesting, status.Completed:
		return healthpb.HealthCheckResponse_SERVING
	default:
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
}

// Start begins serving gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(_ context.Context) {
	s.logger.Info("gRPC server stopping")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	// Serve closes the listener, but Stop may run before Serve started.
	_ = s.listener.Close()
	_ = os.Remove(s.socketPath)
}
