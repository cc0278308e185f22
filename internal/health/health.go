package health

import (
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name reported through grpc.health.v1.
const Service = "rfsweep"

// Server exposes sweep state over the standard gRPC health protocol.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	lis    net.Listener
}

// Listen binds addr and starts serving in the background. The service starts NOT_SERVING.
func Listen(addr string) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		lis:    lis,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)

	go func() {
		log.Printf("health: gRPC listening on %s", lis.Addr())
		if err := s.grpc.Serve(lis); err != nil {
			log.Printf("health: serve: %v", err)
		}
	}()
	return s, nil
}

func (s *Server) Addr() string { return s.lis.Addr().String() }

// Running flips the service between SERVING and NOT_SERVING.
func (s *Server) Running(on bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if on {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(Service, st)
}

func (s *Server) Close() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
