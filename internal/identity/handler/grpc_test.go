package handler

import (
	"context"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	accountdomain "credential-authority/internal/account/domain"
	"credential-authority/internal/identity/service"
	"credential-authority/internal/platform/apperr"
	"credential-authority/internal/platform/rpc"
	"credential-authority/internal/server/interceptors"
	sessiondomain "credential-authority/internal/session/domain"
)

// fakeEngine records the arguments of the last call.
type fakeEngine struct {
	ip        string
	ua        sessiondomain.UserAgent
	token     string
	accountID string
	register  service.RegisterInput
	forgot    service.ForgotPasswordInput
	err       error
}

func (f *fakeEngine) Register(_ context.Context, in service.RegisterInput, ip string) (*service.RegisterResult, error) {
	f.register, f.ip = in, ip
	if f.err != nil {
		return nil, f.err
	}
	return &service.RegisterResult{
		Account:               &accountdomain.Account{ID: "acc-1", Email: in.Email},
		VerificationSessionID: "sid-1",
		VerifyURL:             "https://app/verify?accountId=acc-1&sessionId=sid-1",
	}, nil
}

func (f *fakeEngine) Login(_ context.Context, email, password, ip string, ua sessiondomain.UserAgent) (string, error) {
	f.ip, f.ua = ip, ua
	return "tok-" + email, f.err
}

func (f *fakeEngine) Logout(_ context.Context, token string) error {
	f.token = token
	return f.err
}

func (f *fakeEngine) RefreshToken(_ context.Context, token, ip string, ua sessiondomain.UserAgent) (string, error) {
	f.token, f.ip, f.ua = token, ip, ua
	return "next", f.err
}

func (f *fakeEngine) ForgotPassword(_ context.Context, in service.ForgotPasswordInput, ip string) (string, error) {
	f.forgot, f.ip = in, ip
	return "sid-2", f.err
}

func (f *fakeEngine) ResetPassword(_ context.Context, sessionID, code, newPassword, ip string) error {
	f.ip = ip
	return f.err
}

func (f *fakeEngine) UpdatePassword(_ context.Context, accountID, current, next string) error {
	f.accountID = accountID
	return f.err
}

func (f *fakeEngine) RequestVerifyAccount(_ context.Context, accountID, ip string) (string, error) {
	f.accountID, f.ip = accountID, ip
	return "sid-3", f.err
}

func (f *fakeEngine) VerifyAccount(_ context.Context, sessionID, code, ip string) (service.VerifyStatus, error) {
	f.ip = ip
	return service.StatusRegisterSuccess, f.err
}

func (f *fakeEngine) GetOAuthURL(provider, state string) (string, error) {
	return "https://accounts.example.com/" + provider, f.err
}

func (f *fakeEngine) OAuthCallback(_ context.Context, provider, code, ip string, ua sessiondomain.UserAgent) (*service.OAuthResult, error) {
	f.ip, f.ua = ip, ua
	if f.err != nil {
		return nil, f.err
	}
	return &service.OAuthResult{Token: "tok", RedirectURL: "https://app/oauth?token=tok"}, nil
}

func (f *fakeEngine) Authenticate(_ context.Context, token string) (string, error) {
	f.token = token
	return "acc-9", f.err
}

func requestCtx(pairs ...string) context.Context {
	base := []string{"x-forwarded-for", "203.0.113.7", "user-agent", "test-agent", "x-client-os", "Linux"}
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(append(base, pairs...)...))
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

func field(t *testing.T, s *structpb.Struct, name string) string {
	t.Helper()
	var v string
	if err := rpc.Field(s, name, &v); err != nil {
		t.Fatalf("Field %s: %v", name, err)
	}
	return v
}

func TestAuthServer_NilEngineUnimplemented(t *testing.T) {
	_, err := NewAuthServer(nil).Login(context.Background(), &structpb.Struct{})
	if status.Code(err) != codes.Unimplemented {
		t.Fatalf("code = %v, want Unimplemented", status.Code(err))
	}
}

func TestAuthServer_Register(t *testing.T) {
	eng := &fakeEngine{}
	out, err := NewAuthServer(eng).Register(requestCtx(), mustStruct(t, map[string]any{
		"email":    "jane@example.com",
		"password": "pw",
		"fullName": "Jane",
	}))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if eng.register.Email != "jane@example.com" || eng.register.FullName != "Jane" || eng.ip != "203.0.113.7" {
		t.Errorf("engine saw %+v from %q", eng.register, eng.ip)
	}
	if field(t, out, "accountId") != "acc-1" || field(t, out, "sessionId") != "sid-1" || field(t, out, "verifyUrl") == "" {
		t.Errorf("reply = %v", out.AsMap())
	}
}

func TestAuthServer_LoginPassesUserAgent(t *testing.T) {
	eng := &fakeEngine{}
	out, err := NewAuthServer(eng).Login(requestCtx(), mustStruct(t, map[string]any{"email": "a@b.c", "password": "pw"}))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if field(t, out, "token") != "tok-a@b.c" {
		t.Errorf("reply = %v", out.AsMap())
	}
	if eng.ua.Raw != "test-agent" || eng.ua.OS != "Linux" {
		t.Errorf("ua = %+v", eng.ua)
	}
}

func TestAuthServer_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{apperr.Unauthorized("auth.invalid-login"), codes.Unauthenticated},
		{apperr.Conflict("auth.user-existed"), codes.AlreadyExists},
		{apperr.NotAcceptable("auth.otp-incorrect"), codes.FailedPrecondition},
		{apperr.ServiceUnavailable("directory.unavailable"), codes.Unavailable},
	}
	for _, c := range cases {
		_, err := NewAuthServer(&fakeEngine{err: c.err}).Login(requestCtx(), &structpb.Struct{})
		st, _ := status.FromError(err)
		if st.Code() != c.code || st.Message() != apperr.KeyOf(c.err) {
			t.Errorf("%v -> %v %q", c.err, st.Code(), st.Message())
		}
	}
}

func TestAuthServer_TokenFromMetadataOrBody(t *testing.T) {
	eng := &fakeEngine{}
	srv := NewAuthServer(eng)

	if _, err := srv.RefreshToken(requestCtx("authorization", "Bearer meta-token"), mustStruct(t, map[string]any{"token": "body-token"})); err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if eng.token != "meta-token" {
		t.Errorf("token = %q, want metadata token", eng.token)
	}
	if _, err := srv.Logout(requestCtx(), mustStruct(t, map[string]any{"token": "body-token"})); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if eng.token != "body-token" {
		t.Errorf("token = %q, want body token", eng.token)
	}
	out, err := srv.Authenticate(requestCtx("authorization", "Bearer t"), &structpb.Struct{})
	if err != nil || field(t, out, "accountId") != "acc-9" {
		t.Errorf("Authenticate = %v, %v", out, err)
	}
}

func TestAuthServer_UpdatePasswordNeedsAccount(t *testing.T) {
	eng := &fakeEngine{}
	srv := NewAuthServer(eng)
	in := mustStruct(t, map[string]any{"password": "old", "newPassword": "new"})

	if _, err := srv.UpdatePassword(requestCtx(), in); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("code = %v, want Unauthenticated", status.Code(err))
	}
	ctx := interceptors.WithAccount(requestCtx(), "acc-5", "tok")
	if _, err := srv.UpdatePassword(ctx, in); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	if eng.accountID != "acc-5" {
		t.Errorf("accountID = %q", eng.accountID)
	}
}

func TestAuthServer_RecoveryAndVerification(t *testing.T) {
	eng := &fakeEngine{}
	srv := NewAuthServer(eng)

	out, err := srv.ForgotPassword(requestCtx(), mustStruct(t, map[string]any{"email": "a@b.c"}))
	if err != nil || field(t, out, "sessionId") != "sid-2" || eng.forgot.Email != "a@b.c" {
		t.Fatalf("ForgotPassword = %v, %v (%+v)", out, err, eng.forgot)
	}
	out, err = srv.RequestVerifyAccount(requestCtx(), mustStruct(t, map[string]any{"accountId": "acc-3"}))
	if err != nil || field(t, out, "sessionId") != "sid-3" || eng.accountID != "acc-3" {
		t.Fatalf("RequestVerifyAccount = %v, %v", out, err)
	}
	out, err = srv.VerifyAccount(requestCtx(), mustStruct(t, map[string]any{"sessionId": "sid-3", "otp": "123456"}))
	if err != nil || field(t, out, "status") != "register-success" {
		t.Fatalf("VerifyAccount = %v, %v", out, err)
	}
	out, err = srv.ResetPassword(requestCtx(), mustStruct(t, map[string]any{"sessionId": "sid-2", "otp": "1", "newPassword": "x"}))
	if err != nil || !out.GetFields()["success"].GetBoolValue() {
		t.Fatalf("ResetPassword = %v, %v", out, err)
	}
}

func TestAuthServer_OAuth(t *testing.T) {
	eng := &fakeEngine{}
	srv := NewAuthServer(eng)

	out, err := srv.GetOAuthURL(requestCtx(), mustStruct(t, map[string]any{"provider": "google"}))
	if err != nil || field(t, out, "url") != "https://accounts.example.com/google" {
		t.Fatalf("GetOAuthURL = %v, %v", out, err)
	}
	if _, err := srv.OAuthCallback(requestCtx(), mustStruct(t, map[string]any{"provider": "google"})); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("missing code: %v", err)
	}
	out, err = srv.OAuthCallback(requestCtx(), mustStruct(t, map[string]any{"provider": "google", "code": "c"}))
	if err != nil || field(t, out, "redirectUrl") != "https://app/oauth?token=tok" {
		t.Fatalf("OAuthCallback = %v, %v", out, err)
	}
}

func TestPublicMethods(t *testing.T) {
	pm := PublicMethods()
	if pm["/auth.v1.AuthService/UpdatePassword"] {
		t.Error("UpdatePassword must require a session")
	}
	for _, m := range []string{MethodLogin, MethodRegister, MethodRefreshToken, MethodAuthenticate} {
		if !pm[rpc.FullMethod(ServiceName, m)] {
			t.Errorf("%s should be public", m)
		}
	}
	if len(pm) != len(ServiceDesc.Methods)-1 {
		t.Errorf("public = %d, methods = %d", len(pm), len(ServiceDesc.Methods))
	}
}
