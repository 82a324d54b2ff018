package api

import (
	"net"

	"github.com/nicuwatch/nicuwatch/internal/pipeline"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService exposes the standard gRPC health protocol. The empty service
// name reports the process; each unit name reports SERVING while its event
// source is connected.
type HealthService struct {
	server *grpc.Server
	health *health.Server
	logger zerolog.Logger
}

// NewHealthService registers the units with a new gRPC health server
func NewHealthService(units []*pipeline.Pipeline, logger zerolog.Logger) *HealthService {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	for _, p := range units {
		name := p.Name()
		hs.SetServingStatus(name, servingStatus(p.Router().Connected()))
		p.Router().OnConnectionChange(func(connected bool) {
			hs.SetServingStatus(name, servingStatus(connected))
		})
	}

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &HealthService{
		server: gs,
		health: hs,
		logger: logger.With().Str("component", "grpc-health").Logger(),
	}
}

func servingStatus(connected bool) healthpb.HealthCheckResponse_ServingStatus {
	if connected {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// Serve blocks serving health checks on ln until Stop.
func (h *HealthService) Serve(ln net.Listener) error {
	h.logger.Info().Str("address", ln.Addr().String()).Msg("Starting gRPC health service")
	return h.server.Serve(ln)
}

// Stop marks every service NOT_SERVING and stops the server.
func (h *HealthService) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
