package interceptors

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"credential-authority/internal/audit"
)

// AuditUnary returns a unary server interceptor that emits an audit event after each RPC.
// skipMethods is the set of full method names not to audit (e.g. health checks).
// Emission is asynchronous and best-effort. A nil emitter disables the interceptor.
func AuditUnary(emitter audit.Emitter, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if emitter == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		accountID, _ := GetAccountID(ctx)
		ar := audit.ParseFullMethod(info.FullMethod)
		audit.EmitAsync(ctx, emitter, audit.Event{
			AccountID:  accountID,
			Action:     ar.Action,
			Resource:   ar.Resource,
			IP:         ClientIP(ctx),
			Code:       status.Code(err).String(),
			DurationMs: time.Since(start).Milliseconds(),
			Time:       start.UTC(),
		})
		return resp, err
	}
}
