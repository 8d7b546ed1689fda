// Directory serves the account directory over gRPC for auth nodes running with
// DIRECTORY_MODE=remote. Set DATABASE_URL and DIRECTORY_GRPC_ADDR.
package main

import (
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	accountrepo "credential-authority/internal/account/repository"
	"credential-authority/internal/config"
	"credential-authority/internal/db"
	"credential-authority/internal/directory"
	healthhandler "credential-authority/internal/health/handler"
	"credential-authority/internal/server/interceptors"
	"credential-authority/internal/telemetry/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("directory: DATABASE_URL is required")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("directory: %v", err)
	}
	defer conn.Close()

	metrics.Init()

	lis, err := net.Listen("tcp", cfg.DirectoryGRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors.TelemetryUnary(nil)),
	)
	directory.Register(s, directory.NewServer(accountrepo.NewPostgresRepository(conn)))
	health := healthhandler.NewServer(map[string]healthhandler.Pinger{"postgres": conn}, directory.ServiceName)
	health.Register(s)

	go func() {
		log.Printf("directory listening on %s", cfg.DirectoryGRPCAddr)
		if err := s.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down directory...")
	health.Shutdown()
	s.GracefulStop()
	log.Println("directory stopped")
}
