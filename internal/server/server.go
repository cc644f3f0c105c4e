package server

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joshp123/hivewatch/internal/livefeed"
)

// FeedHealthService is the health service name that tracks the live feed.
const FeedHealthService = "hivewatch.feed"

// GRPCServer wraps a gRPC server and listener.
type GRPCServer struct {
	Server   *grpc.Server
	Listener net.Listener
	Health   *health.Server
}

func NewGRPCServer(addr string) (*GRPCServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := grpc.NewServer()
	reflection.Register(s)

	hs := health.NewServer()
	hs.SetServingStatus(FeedHealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	return &GRPCServer{Server: s, Listener: ln, Health: hs}, nil
}

// SetFeedStatus mirrors the live feed status into the health service.
func (s *GRPCServer) SetFeedStatus(status livefeed.Status) {
	serving := healthpb.HealthCheckResponse_NOT_SERVING
	if status == livefeed.StatusLive {
		serving = healthpb.HealthCheckResponse_SERVING
	}
	s.Health.SetServingStatus(FeedHealthService, serving)
}

func (s *GRPCServer) Serve() error {
	return s.Server.Serve(s.Listener)
}

// Stop marks every service as not serving and drains in-flight calls.
func (s *GRPCServer) Stop() {
	s.Health.Shutdown()
	s.Server.GracefulStop()
}
