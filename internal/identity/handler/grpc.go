// Package handler serves the authentication engine over gRPC.
package handler

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"credential-authority/internal/identity/service"
	"credential-authority/internal/platform/apperr"
	"credential-authority/internal/platform/rpc"
	"credential-authority/internal/server/interceptors"
	sessiondomain "credential-authority/internal/session/domain"
)

// Engine is the authentication engine the handler serves.
type Engine interface {
	Register(ctx context.Context, in service.RegisterInput, ip string) (*service.RegisterResult, error)
	Login(ctx context.Context, email, password, ip string, ua sessiondomain.UserAgent) (string, error)
	Logout(ctx context.Context, token string) error
	RefreshToken(ctx context.Context, token, ip string, ua sessiondomain.UserAgent) (string, error)
	ForgotPassword(ctx context.Context, in service.ForgotPasswordInput, ip string) (string, error)
	ResetPassword(ctx context.Context, sessionID, code, newPassword, ip string) error
	UpdatePassword(ctx context.Context, accountID, current, next string) error
	RequestVerifyAccount(ctx context.Context, accountID, ip string) (string, error)
	VerifyAccount(ctx context.Context, sessionID, code, ip string) (service.VerifyStatus, error)
	GetOAuthURL(provider, state string) (string, error)
	OAuthCallback(ctx context.Context, provider, code, ip string, ua sessiondomain.UserAgent) (*service.OAuthResult, error)
	Authenticate(ctx context.Context, token string) (string, error)
}

// AuthServer implements AuthServiceServer by delegating to an Engine.
type AuthServer struct {
	engine Engine
}

// NewAuthServer returns an AuthServer. If engine is nil, every RPC returns Unimplemented.
func NewAuthServer(engine Engine) *AuthServer {
	return &AuthServer{engine: engine}
}

var _ AuthServiceServer = (*AuthServer)(nil)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"fullName"`
	PhoneNumber string `json:"phoneNumber"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type forgotPasswordRequest struct {
	AccountID string `json:"accountId"`
	Email     string `json:"email"`
}

type resetPasswordRequest struct {
	SessionID   string `json:"sessionId"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

type updatePasswordRequest struct {
	Password    string `json:"password"`
	NewPassword string `json:"newPassword"`
}

type verifyAccountRequest struct {
	AccountID string `json:"accountId"`
	SessionID string `json:"sessionId"`
	OTP       string `json:"otp"`
}

type oauthRequest struct {
	Provider string `json:"provider"`
	State    string `json:"state"`
	Code     string `json:"code"`
}

func (s *AuthServer) Register(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req registerRequest
	if err := s.decode(in, &req); err != nil {
		return nil, err
	}
	res, err := s.engine.Register(ctx, service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
	}, interceptors.ClientIP(ctx))
	if err != nil {
		return nil, apperr.ToStatus(err)
	}
	return encode(map[string]any{
		"accountId": res.Account.ID,
		"sessionId": res.VerificationSessionID,
		"verifyUrl": res.VerifyURL,
	})
}

func (s *AuthServer) Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req loginRequest
	if err := s.decode(in, &req); err != nil {
		return nil, err
	}
	token, err := s.engine.Login(ctx, req.Email, req.Password, interceptors.ClientIP(ctx), interceptors.UserAgent(ctx))
	if err != nil {
		return nil, apperr.ToStatus(err)
	}
	return encode(map[string]any{"token": token})
}

func (s *AuthServer) Logout(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	token, err := s.token(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Logout(ctx, token); err != nil {
		return nil, apperr.ToStatus(err)
	}
	return encode(map[string]any{"success": true})
}

func (s *AuthServer) RefreshToken(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	token, err := s.token(ctx, in)
	if err != nil {
		return nil, err
	}
	next, err := s.engine.RefreshToken(ctx, token, interceptors.ClientIP(ctx), interceptors.UserAgent(ctx))
	if err != nil {
		return nil, apperr.ToStatus(err)
	}
	return encode(map[string]any{"token": next})
}

func (s *AuthServer) ForgotPassword(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req forgotPasswordRequest
	if err := s.decode(in, &req); err != nil {
		return nil, err
	}
	sessionID, err := s.engine.ForgotPassword(ctx, service.ForgotPasswordInput{AccountID: req.AccountID, Email: req.Email}, interceptors.ClientIP(ctx))
	if err != nil {
		return nil, apperr.ToStatus(err)
	}
	return encode(map[string]any{"sessionId": sessionID})
}

func (s *AuthServer) ResetPassword(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req resetPasswordRequest
	if err := s.decode(in, &req); err != nil {
		return nil, err
	}
	if err := s.engine.ResetPassword(ctx, req.SessionID, req.OTP, req.NewPassword, interceptors.ClientIP(ctx)); err != nil {
		return nil, apperr.ToStatus(err)
	}
	return encode(map[string]any{"success": true})
}

// UpdatePassword acts on the account authenticated by AuthUnary.
func (s *AuthServer) UpdatePassword(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req updatePasswordRequest
	if err := s.decode(in, &req); err != nil {
		return nil, err
	}
	accountID, ok := interceptors.GetAccountID(ctx)
	if !ok || accountID == "" {
		return nil, status.Error(codes.Unauthenticated, "auth.no-auth")
	}
	if err := s.engine.UpdatePassword(ctx, accountID, req.Password, req.NewPassword); err != nil {
		return nil, apperr.ToStatus(err)
	}
	return encode(map[string]any{"success": true})
}

func (s *AuthServer) RequestVerifyAccount(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req verifyAccountRequest
	if err := s.decode(in, &req); err != nil {
		return nil, err
	}
	sessionID, err := s.engine.RequestVerifyAccount(ctx, req.AccountID, interceptors.ClientIP(ctx))
	if err != nil {
		return nil, apperr.ToStatus(err)
	}
	return encode(map[string]any{"sessionId": sessionID})
}

func (s *AuthServer) VerifyAccount(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req verifyAccountRequest
	if err := s.decode(in, &req); err != nil {
		return nil, err
	}
	st, err := s.engine.VerifyAccount(ctx, req.SessionID, req.OTP, interceptors.ClientIP(ctx))
	if err != nil {
		return nil, apperr.ToStatus(err)
	}
	return encode(map[string]any{"status": string(st)})
}

func (s *AuthServer) GetOAuthURL(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req oauthRequest
	if err := s.decode(in, &req); err != nil {
		return nil, err
	}
	u, err := s.engine.GetOAuthURL(req.Provider, req.State)
	if err != nil {
		return nil, apperr.ToStatus(err)
	}
	return encode(map[string]any{"url": u})
}

func (s *AuthServer) OAuthCallback(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req oauthRequest
	if err := s.decode(in, &req); err != nil {
		return nil, err
	}
	if req.Code == "" {
		return nil, status.Error(codes.InvalidArgument, "auth.missing-code")
	}
	res, err := s.engine.OAuthCallback(ctx, req.Provider, req.Code, interceptors.ClientIP(ctx), interceptors.UserAgent(ctx))
	if err != nil {
		return nil, apperr.ToStatus(err)
	}
	return encode(map[string]any{"token": res.Token, "redirectUrl": res.RedirectURL})
}

func (s *AuthServer) Authenticate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	token, err := s.token(ctx, in)
	if err != nil {
		return nil, err
	}
	accountID, err := s.engine.Authenticate(ctx, token)
	if err != nil {
		return nil, apperr.ToStatus(err)
	}
	return encode(map[string]any{"accountId": accountID})
}

func (s *AuthServer) decode(in *structpb.Struct, v any) error {
	if s.engine == nil {
		return status.Error(codes.Unimplemented, "auth service not configured")
	}
	if err := rpc.Decode(in, v); err != nil {
		return status.Error(codes.InvalidArgument, "malformed request")
	}
	return nil
}

// token prefers the bearer token from metadata and falls back to a "token" body field.
func (s *AuthServer) token(ctx context.Context, in *structpb.Struct) (string, error) {
	var req tokenRequest
	if err := s.decode(in, &req); err != nil {
		return "", err
	}
	if t := interceptors.BearerToken(ctx); t != "" {
		return t, nil
	}
	return req.Token, nil
}

func encode(fields map[string]any) (*structpb.Struct, error) {
	out, err := rpc.Envelope(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode reply")
	}
	return out, nil
}
