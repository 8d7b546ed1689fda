// Package handler serves the standard gRPC health service for readiness and liveness.
// Readiness follows the backing stores: any failing Pinger flips every service to NOT_SERVING.
package handler

import (
	"context"
	"log"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// pingTimeout bounds a single dependency check.
const pingTimeout = 2 * time.Second

// Pinger checks a dependency (e.g. *sql.DB, a Redis client adapter).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// PingContext calls f.
func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// Server wraps the grpc-go health server and keeps its statuses in sync with the pingers.
type Server struct {
	hs       *health.Server
	services []string
	pingers  map[string]Pinger

	mu      sync.Mutex
	serving bool
}

// NewServer returns a health server reporting for services (the empty name, the whole
// server, is always included). Nil pingers are skipped.
func NewServer(pingers map[string]Pinger, services ...string) *Server {
	live := make(map[string]Pinger, len(pingers))
	for name, p := range pingers {
		if p != nil {
			live[name] = p
		}
	}
	s := &Server{
		hs:       health.NewServer(),
		services: append([]string{""}, services...),
		pingers:  live,
		serving:  true,
	}
	s.set(healthpb.HealthCheckResponse_SERVING)
	return s
}

// Register registers grpc.health.v1.Health on reg.
func (s *Server) Register(reg grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(reg, s.hs)
}

// Check pings every dependency and updates the reported status. It returns the first failure.
func (s *Server) Check(ctx context.Context) error {
	var firstErr error
	for name, p := range s.pingers {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := p.PingContext(pctx)
		cancel()
		if err != nil {
			log.Printf("health: %s: %v", name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	serving := firstErr == nil
	if serving != s.serving {
		s.serving = serving
		if serving {
			s.set(healthpb.HealthCheckResponse_SERVING)
		} else {
			s.set(healthpb.HealthCheckResponse_NOT_SERVING)
		}
	}
	return firstErr
}

// Run checks dependencies every interval until ctx is done.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		_ = s.Check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Shutdown reports NOT_SERVING for every service; called before a graceful stop so load
// balancers drain the instance.
func (s *Server) Shutdown() {
	s.hs.Shutdown()
}

func (s *Server) set(st healthpb.HealthCheckResponse_ServingStatus) {
	for _, svc := range s.services {
		s.hs.SetServingStatus(svc, st)
	}
}
