// Package server hosts the bot's gRPC endpoint, which carries the health service.
package server

import (
	"context"
	"log"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Deps holds what the gRPC services need.
type Deps struct {
	// Health is the grpc.health.v1 implementation kept current by health.Checker.
	Health *grpchealth.Server
}

// NewGRPCServer returns a server whose RPCs are traced and measured via otelgrpc.
func NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	return grpc.NewServer(opts...)
}

// RegisterServices registers the health service with s.
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health)
	}
}

// Serve listens on addr and serves s until ctx is done, then stops gracefully.
// An empty addr disables the endpoint.
func Serve(ctx context.Context, s *grpc.Server, addr string) error {
	if addr == "" {
		<-ctx.Done()
		return nil
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("gRPC health server listening on %s", lis.Addr())
		errCh <- s.Serve(lis)
	}()
	select {
	case <-ctx.Done():
		log.Println("shutting down gRPC server...")
		s.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}
