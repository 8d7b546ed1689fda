package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"credential-authority/internal/platform/rpc"
)

// ServiceName is the public authentication service.
const ServiceName = "auth.v1.AuthService"

// Method names.
const (
	MethodRegister             = "Register"
	MethodLogin                = "Login"
	MethodLogout               = "Logout"
	MethodRefreshToken         = "RefreshToken"
	MethodForgotPassword       = "ForgotPassword"
	MethodResetPassword        = "ResetPassword"
	MethodUpdatePassword       = "UpdatePassword"
	MethodRequestVerifyAccount = "RequestVerifyAccount"
	MethodVerifyAccount        = "VerifyAccount"
	MethodGetOAuthURL          = "GetOAuthURL"
	MethodOAuthCallback        = "OAuthCallback"
	MethodAuthenticate         = "Authenticate"
)

// AuthServiceServer is the server side of ServiceName.
type AuthServiceServer interface {
	Register(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Logout(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	RefreshToken(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ForgotPassword(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ResetPassword(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	UpdatePassword(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	RequestVerifyAccount(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	VerifyAccount(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetOAuthURL(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	OAuthCallback(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Authenticate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc registers an AuthServiceServer with a grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Method[AuthServiceServer](ServiceName, MethodRegister, AuthServiceServer.Register),
		rpc.Method[AuthServiceServer](ServiceName, MethodLogin, AuthServiceServer.Login),
		rpc.Method[AuthServiceServer](ServiceName, MethodLogout, AuthServiceServer.Logout),
		rpc.Method[AuthServiceServer](ServiceName, MethodRefreshToken, AuthServiceServer.RefreshToken),
		rpc.Method[AuthServiceServer](ServiceName, MethodForgotPassword, AuthServiceServer.ForgotPassword),
		rpc.Method[AuthServiceServer](ServiceName, MethodResetPassword, AuthServiceServer.ResetPassword),
		rpc.Method[AuthServiceServer](ServiceName, MethodUpdatePassword, AuthServiceServer.UpdatePassword),
		rpc.Method[AuthServiceServer](ServiceName, MethodRequestVerifyAccount, AuthServiceServer.RequestVerifyAccount),
		rpc.Method[AuthServiceServer](ServiceName, MethodVerifyAccount, AuthServiceServer.VerifyAccount),
		rpc.Method[AuthServiceServer](ServiceName, MethodGetOAuthURL, AuthServiceServer.GetOAuthURL),
		rpc.Method[AuthServiceServer](ServiceName, MethodOAuthCallback, AuthServiceServer.OAuthCallback),
		rpc.Method[AuthServiceServer](ServiceName, MethodAuthenticate, AuthServiceServer.Authenticate),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "auth/v1/auth.proto",
}

// Register adds srv to s.
func Register(s grpc.ServiceRegistrar, srv AuthServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// PublicMethods lists the full method names callable without a session. Everything but
// UpdatePassword is public; Logout, RefreshToken and Authenticate check the token themselves.
func PublicMethods() map[string]bool {
	m := make(map[string]bool, len(ServiceDesc.Methods))
	for _, md := range ServiceDesc.Methods {
		if md.MethodName == MethodUpdatePassword {
			continue
		}
		m[rpc.FullMethod(ServiceName, md.MethodName)] = true
	}
	return m
}
