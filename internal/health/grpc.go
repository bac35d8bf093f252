package health

import (
	"log/slog"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer serves grpc.health.v1.Health for load balancers and probes.
// The overall service ("") and ServiceName share one status.
type GRPCServer struct {
	srv    *grpc.Server
	health *grpchealth.Server
	log    *slog.Logger
}

func NewGRPCServer(logger *slog.Logger) *GRPCServer {
	if logger == nil {
		logger = slog.Default()
	}
	g := &GRPCServer{
		srv:    grpc.NewServer(),
		health: grpchealth.NewServer(),
		log:    logger,
	}
	healthpb.RegisterHealthServer(g.srv, g.health)
	g.SetServing(false)
	return g
}

func (g *GRPCServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(ServiceName, status)
}

// Serve blocks until Stop is called or the listener fails.
func (g *GRPCServer) Serve(lis net.Listener) error {
	g.log.Info("grpc health listening", "addr", lis.Addr().String())
	return g.srv.Serve(lis)
}

// Stop flips every status to NOT_SERVING and drains in-flight checks.
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.srv.GracefulStop()
}
