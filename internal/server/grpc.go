package server

import (
	"context"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"credential-authority/internal/audit"
	"credential-authority/internal/directory"
	healthhandler "credential-authority/internal/health/handler"
	identityhandler "credential-authority/internal/identity/handler"
	"credential-authority/internal/platform/apperr"
	"credential-authority/internal/platform/rpc"
	"credential-authority/internal/server/interceptors"
)

// Health check methods are neither audited nor authenticated.
var healthMethods = map[string]bool{
	"/grpc.health.v1.Health/Check": true,
	"/grpc.health.v1.Health/Watch": true,
	"/grpc.health.v1.Health/List":  true,
}

// Deps holds optional service dependencies for gRPC handlers.
type Deps struct {
	// Auth is the authentication engine. If nil, auth RPCs return Unimplemented.
	Auth identityhandler.Engine
	// AuditEmitter receives one event per RPC. If nil, no RPCs are audited.
	AuditEmitter audit.Emitter
	// Health serves grpc.health.v1. If nil, the health service is not registered.
	Health *healthhandler.Server
	// Directory serves the account directory from this process. If nil, it is not registered.
	Directory directory.DirectoryServer
}

// NewGRPCServer returns a grpc.Server with the interceptor chain installed and every
// configured service registered. Order matters: telemetry sees the final status code,
// and the audit interceptor runs inside auth so it sees the authenticated account.
func NewGRPCServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	var authn interceptors.Authenticator = denyAll{}
	if deps.Auth != nil {
		authn = deps.Auth
	}
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.TelemetryUnary(healthMethods),
			interceptors.AuthUnary(authn, PublicMethods()),
			interceptors.AuditUnary(deps.AuditEmitter, healthMethods),
		),
	}
	s := grpc.NewServer(append(base, opts...)...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers all gRPC services with the given server.
//
// Service → handler mapping:
//   - auth.v1.AuthService           → internal/identity/handler
//   - directory.v1.DirectoryService → internal/directory
//   - grpc.health.v1.Health         → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	identityhandler.Register(s, identityhandler.NewAuthServer(deps.Auth))
	if deps.Directory != nil {
		directory.Register(s, deps.Directory)
	}
	if deps.Health != nil {
		deps.Health.Register(s)
	}
}

// PublicMethods is the set of full method names AuthUnary lets through without a session:
// the public auth RPCs, health checks and the internal directory.
func PublicMethods() map[string]bool {
	m := identityhandler.PublicMethods()
	for k := range healthMethods {
		m[k] = true
	}
	for _, md := range directory.ServiceDesc.Methods {
		m[rpc.FullMethod(directory.ServiceName, md.MethodName)] = true
	}
	return m
}

// denyAll rejects every protected call when no engine is configured.
type denyAll struct{}

func (denyAll) Authenticate(context.Context, string) (string, error) {
	return "", apperr.Unauthorized("auth.no-auth")
}
