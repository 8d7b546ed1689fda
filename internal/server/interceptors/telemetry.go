package interceptors

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"credential-authority/internal/telemetry/metrics"
)

// TelemetryUnary returns a unary server interceptor that records request latency by method
// and status code. skipMethods is the set of full method names to leave out.
func TelemetryUnary(skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if !skipMethods[info.FullMethod] {
			metrics.ObserveRPC(info.FullMethod, status.Code(err).String(), time.Since(start))
		}
		return resp, err
	}
}
