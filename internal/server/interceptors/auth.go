package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"credential-authority/internal/platform/apperr"
)

// Authenticator resolves a bearer token to the account it belongs to.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// AuthUnary returns a unary server interceptor that requires a valid Bearer token for
// every method not in publicMethods and puts the account id in the context.
// Public methods pass through untouched; the ones that take a token check it themselves.
func AuthUnary(auth Authenticator, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		token := BearerToken(ctx)
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "auth.no-auth")
		}
		accountID, err := auth.Authenticate(ctx, token)
		if err != nil {
			return nil, apperr.ToStatus(err)
		}
		return handler(WithAccount(ctx, accountID, token), req)
	}
}
