package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	accountdomain "credential-authority/internal/account/domain"
	accountrepo "credential-authority/internal/account/repository"
	"credential-authority/internal/directory"
	"credential-authority/internal/notify"
	"credential-authority/internal/oauth"
	"credential-authority/internal/platform/apperr"
	"credential-authority/internal/security"
	sessiondomain "credential-authority/internal/session/domain"
	sessionrepo "credential-authority/internal/session/repository"
	sessionservice "credential-authority/internal/session/service"
	"credential-authority/internal/verification"
)

const (
	testIP    = "10.0.0.1"
	otherIP   = "10.0.0.2"
	testEmail = "jane@example.com"
	testPass  = "correct horse"
)

var testUA = sessiondomain.UserAgent{Raw: "test-agent", Browser: "Firefox", OS: "Linux"}

type fakeStrategy struct {
	id *oauth.ExternalIdentity
}

func (f *fakeStrategy) Provider() oauth.Provider { return oauth.ProviderGoogle }

func (f *fakeStrategy) AuthURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (f *fakeStrategy) Exchange(context.Context, string) (*oauth.ExternalIdentity, error) {
	if f.id == nil {
		return nil, oauth.ErrExchange
	}
	cp := *f.id
	return &cp, nil
}

type testEnv struct {
	svc      *AuthService
	accounts *accountrepo.MemoryRepository
	sessions *sessionrepo.MemoryRepository
	tokens   *security.TokenProvider
	rec      *notify.Recorder
	google   *fakeStrategy
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithDirectory(t, nil)
}

func newTestEnvWithDirectory(t *testing.T, dir accountrepo.Directory) *testEnv {
	t.Helper()
	env := &testEnv{
		accounts: accountrepo.NewMemoryRepository(),
		sessions: sessionrepo.NewMemoryRepository(sessiondomain.DefaultTTL),
		tokens:   security.NewTestHMACTokenProvider(time.Hour),
		rec:      notify.NewRecorder(),
		google: &fakeStrategy{id: &oauth.ExternalIdentity{
			Provider: oauth.ProviderGoogle,
			Email:    "Oauth.User@Example.com",
			FullName: "OAuth User",
		}},
	}
	if dir == nil {
		dir = env.accounts
	}
	tokens := sessionservice.NewTokenService(env.tokens, env.sessions, security.NewMemoryRevocationList(), sessiondomain.DefaultTTL)
	challenges := verification.NewService(verification.NewMemoryStore(), env.rec, verification.DefaultTTL)
	env.svc = NewAuthService(dir, security.NewHasher(4), tokens, challenges, env.rec, Links{
		ClientBaseURL:     "https://app.example.com/",
		AccountVerifyPath: "account/verify",
		OAuthWebhooksPath: "/oauth/done",
	}, env.google)
	return env
}

// mailFor waits for the OTP mail of the given challenge session.
func (e *testEnv) mailFor(t *testing.T, sessionID string) notify.OTPMail {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, ev := range e.rec.Events() {
			if m, ok := ev.Payload.(notify.OTPMail); ok && m.SessionID == sessionID {
				return m
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no mail for session %s", sessionID)
	return notify.OTPMail{}
}

func (e *testEnv) waitEvent(t *testing.T, name string) notify.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, ev := range e.rec.Events() {
			if ev.Name == name {
				return ev
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %s event", name)
	return notify.Event{}
}

// createVerified stores a verified password account directly.
func (e *testEnv) createVerified(t *testing.T, email, password string) *accountdomain.Account {
	t.Helper()
	hash, err := security.NewHasher(4).Hash([]byte(password))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	acc, err := e.accounts.Create(context.Background(), &accountdomain.Account{
		Email:        email,
		FullName:     "Jane Doe",
		PasswordHash: hash,
		IsVerified:   true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return acc
}

func wantKind(t *testing.T, err error, kind apperr.Kind, key string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error %q, got nil", kind, key)
	}
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("kind = %s, want %s (err %v)", got, kind, err)
	}
	if key != "" && apperr.KeyOf(err) != key {
		t.Fatalf("key = %q, want %q", apperr.KeyOf(err), key)
	}
}

func TestLogin_SessionBoundToToken(t *testing.T) {
	env := newTestEnv(t)
	acc := env.createVerified(t, testEmail, testPass)
	ctx := context.Background()

	token, err := env.svc.Login(ctx, " JANE@example.com ", testPass, testIP, testUA)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := env.tokens.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.AccountID() != acc.ID {
		t.Errorf("sub = %q, want %q", claims.AccountID(), acc.ID)
	}
	sess, err := env.sessions.FindByJitAndAccount(ctx, claims.Jit, acc.ID)
	if err != nil || sess == nil {
		t.Fatalf("session for jit: %v, %v", sess, err)
	}
	if sess.IP != testIP || sess.UserAgent.Browser != "Firefox" {
		t.Errorf("session = %+v", sess)
	}
	if !sess.Active(time.Now()) {
		t.Error("session should be active")
	}
	id, err := env.svc.Authenticate(ctx, token)
	if err != nil || id != acc.ID {
		t.Fatalf("Authenticate = %q, %v", id, err)
	}
}

func TestLogin_Failures(t *testing.T) {
	env := newTestEnv(t)
	env.createVerified(t, testEmail, testPass)
	ctx := context.Background()

	_, err := env.svc.Login(ctx, "nobody@example.com", testPass, testIP, testUA)
	wantKind(t, err, apperr.KindUnauthorized, "auth.user-not-found")

	_, err = env.svc.Login(ctx, testEmail, "wrong", testIP, testUA)
	wantKind(t, err, apperr.KindUnauthorized, "auth.invalid-login")

	deleted := time.Now()
	if _, err := env.accounts.Update(ctx, accountdomain.Filter{Email: testEmail}, accountdomain.Patch{WillDeleteAt: &deleted}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	_, err = env.svc.Login(ctx, testEmail, testPass, testIP, testUA)
	wantKind(t, err, apperr.KindUnauthorized, "auth.user-inactive")

	if env.sessions.Count() != 0 {
		t.Errorf("sessions = %d, want 0", env.sessions.Count())
	}
}

func TestRefreshToken_ReplayFails(t *testing.T) {
	env := newTestEnv(t)
	env.createVerified(t, testEmail, testPass)
	ctx := context.Background()

	t1, err := env.svc.Login(ctx, testEmail, testPass, testIP, testUA)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	t2, err := env.svc.RefreshToken(ctx, t1, otherIP, testUA)
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if t2 == t1 {
		t.Fatal("refresh returned the same token")
	}
	_, err = env.svc.RefreshToken(ctx, t1, testIP, testUA)
	wantKind(t, err, apperr.KindUnauthorized, "auth.session-expired")

	_, err = env.svc.Authenticate(ctx, t1)
	wantKind(t, err, apperr.KindUnauthorized, "auth.session-expired")

	if _, err := env.svc.Authenticate(ctx, t2); err != nil {
		t.Fatalf("Authenticate rotated token: %v", err)
	}
	if env.sessions.Count() != 1 {
		t.Errorf("sessions = %d, want 1", env.sessions.Count())
	}
}

func TestLogout_ThenRefreshFails(t *testing.T) {
	env := newTestEnv(t)
	env.createVerified(t, testEmail, testPass)
	ctx := context.Background()

	token, err := env.svc.Login(ctx, testEmail, testPass, testIP, testUA)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := env.svc.Logout(ctx, token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	_, err = env.svc.RefreshToken(ctx, token, testIP, testUA)
	wantKind(t, err, apperr.KindUnauthorized, "auth.session-expired")

	err = env.svc.Logout(ctx, token)
	wantKind(t, err, apperr.KindUnauthorized, "auth.session-not-found")

	_, err = env.svc.Authenticate(ctx, token)
	wantKind(t, err, apperr.KindUnauthorized, "")
}

func TestTokenChecks_MissingOrInvalid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.RefreshToken(ctx, "", testIP, testUA)
	wantKind(t, err, apperr.KindUnauthorized, "auth.no-auth")
	_, err = env.svc.RefreshToken(ctx, "not-a-jwt", testIP, testUA)
	wantKind(t, err, apperr.KindUnauthorized, "auth.no-auth")
	err = env.svc.Logout(ctx, "")
	wantKind(t, err, apperr.KindUnauthorized, "auth.no-auth")
	_, err = env.svc.Authenticate(ctx, "garbage")
	wantKind(t, err, apperr.KindUnauthorized, "auth.no-auth")
}

func TestRefreshToken_ConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	env.createVerified(t, testEmail, testPass)
	ctx := context.Background()

	token, err := env.svc.Login(ctx, testEmail, testPass, testIP, testUA)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	const n = 16
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.RefreshToken(ctx, token, testIP, testUA)
			results <- err
		}()
	}
	wg.Wait()
	close(results)
	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		wantKind(t, err, apperr.KindUnauthorized, "auth.session-expired")
	}
	if wins != 1 {
		t.Fatalf("successful refreshes = %d, want 1", wins)
	}
}

func TestRegistration_VerifyThenLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Register(ctx, RegisterInput{
		Email:    "New.User@example.com",
		Password: testPass,
		FullName: "New User",
	}, testIP)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.Account.Email != "new.user@example.com" || res.Account.IsVerified {
		t.Fatalf("account = %+v", res.Account)
	}
	u, err := url.Parse(res.VerifyURL)
	if err != nil {
		t.Fatalf("VerifyURL: %v", err)
	}
	if !strings.HasPrefix(res.VerifyURL, "https://app.example.com/account/verify?") {
		t.Errorf("VerifyURL = %q", res.VerifyURL)
	}
	if u.Query().Get("accountId") != res.Account.ID || u.Query().Get("sessionId") != res.VerificationSessionID {
		t.Errorf("VerifyURL query = %v", u.Query())
	}

	_, err = env.svc.Login(ctx, "new.user@example.com", testPass, testIP, testUA)
	wantKind(t, err, apperr.KindUnauthorized, "auth.user-inactive")

	_, err = env.svc.Register(ctx, RegisterInput{Email: "new.user@example.com", Password: "x"}, testIP)
	wantKind(t, err, apperr.KindConflict, "auth.user-existed")

	mail := env.mailFor(t, res.VerificationSessionID)
	if mail.Email != "new.user@example.com" || mail.FullName != "New User" {
		t.Errorf("mail = %+v", mail)
	}

	_, err = env.svc.VerifyAccount(ctx, res.VerificationSessionID, mail.OTP, otherIP)
	wantKind(t, err, apperr.KindNotAcceptable, "auth.invalid-ip")

	status, err := env.svc.VerifyAccount(ctx, res.VerificationSessionID, mail.OTP, testIP)
	if err != nil {
		t.Fatalf("VerifyAccount: %v", err)
	}
	if status != StatusRegisterSuccess {
		t.Errorf("status = %q, want %q", status, StatusRegisterSuccess)
	}
	welcome := env.waitEvent(t, notify.EventNewAccount)
	if w, ok := welcome.Payload.(notify.WelcomeMail); !ok || w.Email != "new.user@example.com" || w.UserName != "New User" {
		t.Errorf("welcome = %+v", welcome.Payload)
	}

	_, err = env.svc.VerifyAccount(ctx, res.VerificationSessionID, mail.OTP, testIP)
	wantKind(t, err, apperr.KindNotAcceptable, "auth.no-verify-account-found")

	if _, err := env.svc.Login(ctx, "new.user@example.com", testPass, testIP, testUA); err != nil {
		t.Fatalf("Login after verify: %v", err)
	}
}

func TestRequestVerifyAccount_PlainVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc, err := env.accounts.Create(ctx, &accountdomain.Account{Email: testEmail, PasswordHash: "x"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = env.svc.RequestVerifyAccount(ctx, "missing", testIP)
	wantKind(t, err, apperr.KindNotFound, "user.not-found")

	sid, err := env.svc.RequestVerifyAccount(ctx, acc.ID, testIP)
	if err != nil {
		t.Fatalf("RequestVerifyAccount: %v", err)
	}
	mail := env.mailFor(t, sid)

	_, err = env.svc.VerifyAccount(ctx, sid, wrongCode(mail.OTP), testIP)
	wantKind(t, err, apperr.KindNotAcceptable, "auth.otp-incorrect")

	status, err := env.svc.VerifyAccount(ctx, sid, mail.OTP, testIP)
	if err != nil {
		t.Fatalf("VerifyAccount: %v", err)
	}
	if status != StatusVerifyAccountSuccess {
		t.Errorf("status = %q", status)
	}
	got, _ := env.accounts.Get(ctx, accountdomain.Filter{ID: acc.ID})
	if !got.IsVerified {
		t.Error("account not verified")
	}
}

func TestPasswordRecovery(t *testing.T) {
	env := newTestEnv(t)
	acc := env.createVerified(t, testEmail, testPass)
	ctx := context.Background()

	_, err := env.svc.ForgotPassword(ctx, ForgotPasswordInput{}, testIP)
	wantKind(t, err, apperr.KindBadRequest, "")

	sid, err := env.svc.ForgotPassword(ctx, ForgotPasswordInput{Email: testEmail}, testIP)
	if err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	mail := env.mailFor(t, sid)

	// A reset code never completes account verification.
	_, err = env.svc.VerifyAccount(ctx, sid, mail.OTP, testIP)
	wantKind(t, err, apperr.KindNotAcceptable, "auth.no-verify-account-found")

	if err := env.svc.ResetPassword(ctx, sid, mail.OTP, "new secret", testIP); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	err = env.svc.ResetPassword(ctx, sid, mail.OTP, "again", testIP)
	wantKind(t, err, apperr.KindNotAcceptable, "auth.no-reset-password-found")

	_, err = env.svc.Login(ctx, testEmail, testPass, testIP, testUA)
	wantKind(t, err, apperr.KindUnauthorized, "auth.invalid-login")
	if _, err := env.svc.Login(ctx, testEmail, "new secret", testIP, testUA); err != nil {
		t.Fatalf("Login with new password: %v", err)
	}

	sid, err = env.svc.ForgotPassword(ctx, ForgotPasswordInput{AccountID: acc.ID}, testIP)
	if err != nil {
		t.Fatalf("ForgotPassword by id: %v", err)
	}
	if m := env.mailFor(t, sid); m.Email != testEmail {
		t.Errorf("mail = %+v", m)
	}
}

func TestUpdatePassword(t *testing.T) {
	env := newTestEnv(t)
	acc := env.createVerified(t, testEmail, testPass)
	ctx := context.Background()

	err := env.svc.UpdatePassword(ctx, acc.ID, "wrong", "next secret")
	wantKind(t, err, apperr.KindNotAcceptable, "auth.wrong-password")

	err = env.svc.UpdatePassword(ctx, "missing", testPass, "next secret")
	wantKind(t, err, apperr.KindNotAcceptable, "auth.user-not-found")

	if err := env.svc.UpdatePassword(ctx, acc.ID, testPass, "next secret"); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	if _, err := env.svc.Login(ctx, testEmail, "next secret", testIP, testUA); err != nil {
		t.Fatalf("Login: %v", err)
	}
}

func TestOAuthCallback_FirstThenSecond(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.OAuthCallback(ctx, "Google", "code-1", testIP, testUA)
	if err != nil {
		t.Fatalf("first callback: %v", err)
	}
	if !strings.HasPrefix(first.RedirectURL, "https://app.example.com/oauth/done?token=") {
		t.Errorf("RedirectURL = %q", first.RedirectURL)
	}
	acc, err := env.accounts.Get(ctx, accountdomain.Filter{Email: "oauth.user@example.com"}, accountdomain.FieldPasswordHash)
	if err != nil || acc == nil {
		t.Fatalf("account after first callback: %v, %v", acc, err)
	}
	if !acc.IsVerified || acc.PasswordHash != security.UnusablePasswordHash {
		t.Errorf("account = %+v", acc)
	}
	for _, ev := range env.rec.Events() {
		t.Errorf("unexpected notification %s", ev.Name)
	}

	second, err := env.svc.OAuthCallback(ctx, "google", "code-2", testIP, testUA)
	if err != nil {
		t.Fatalf("second callback: %v", err)
	}
	n, _ := env.accounts.Count(ctx, accountdomain.Filter{})
	if n != 1 {
		t.Errorf("accounts = %d, want 1", n)
	}
	for _, tok := range []string{first.Token, second.Token} {
		id, err := env.svc.Authenticate(ctx, tok)
		if err != nil || id != acc.ID {
			t.Errorf("Authenticate = %q, %v", id, err)
		}
	}
	if env.sessions.Count() != 2 {
		t.Errorf("sessions = %d, want 2", env.sessions.Count())
	}

	// The unusable password never logs in.
	_, err = env.svc.Login(ctx, "oauth.user@example.com", "-", testIP, testUA)
	wantKind(t, err, apperr.KindUnauthorized, "auth.invalid-login")
}

func TestOAuth_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.GetOAuthURL("github", "")
	wantKind(t, err, apperr.KindBadRequest, "auth.unsupported-provider")

	u, err := env.svc.GetOAuthURL("google", "back")
	if err != nil || !strings.Contains(u, "state=") || strings.HasSuffix(u, "state=back") {
		t.Errorf("GetOAuthURL = %q, %v", u, err)
	}

	env.google.id.Email = ""
	_, err = env.svc.OAuthCallback(ctx, "google", "code", testIP, testUA)
	wantKind(t, err, apperr.KindUnauthorized, "auth.no-google-email")

	env.google.id = nil
	_, err = env.svc.OAuthCallback(ctx, "google", "code", testIP, testUA)
	wantKind(t, err, apperr.KindUnauthorized, "auth.oauth-failed")
}

type downDirectory struct{}

func (downDirectory) Get(context.Context, accountdomain.Filter, ...accountdomain.Field) (*accountdomain.Account, error) {
	return nil, fmt.Errorf("%w: all endpoints failed", directory.ErrServiceUnavailable)
}

func (downDirectory) Create(context.Context, *accountdomain.Account) (*accountdomain.Account, error) {
	return nil, fmt.Errorf("%w: all endpoints failed", directory.ErrServiceUnavailable)
}

func (downDirectory) Update(context.Context, accountdomain.Filter, accountdomain.Patch) (*accountdomain.Account, error) {
	return nil, fmt.Errorf("%w: all endpoints failed", directory.ErrServiceUnavailable)
}

func TestDirectoryUnavailable(t *testing.T) {
	env := newTestEnvWithDirectory(t, downDirectory{})
	ctx := context.Background()

	_, err := env.svc.Login(ctx, testEmail, testPass, testIP, testUA)
	wantKind(t, err, apperr.KindServiceUnavailable, "directory.unavailable")

	_, err = env.svc.Register(ctx, RegisterInput{Email: testEmail, Password: testPass}, testIP)
	wantKind(t, err, apperr.KindServiceUnavailable, "directory.unavailable")
}

func wrongCode(code string) string {
	if code == "000000" {
		return "000001"
	}
	return "000000"
}

// refusingCaller answers every directory call with an unmapped status carrying infrastructure text.
type refusingCaller struct{}

func (refusingCaller) Call(context.Context, string, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unauthenticated, "pq: password authentication failed for user admin")
}

func TestRemoteDirectoryFailure_DoesNotLeakToClient(t *testing.T) {
	env := newTestEnvWithDirectory(t, directory.NewRemoteDirectory(refusingCaller{}))

	_, err := env.svc.Login(context.Background(), testEmail, testPass, testIP, testUA)
	wantKind(t, err, apperr.KindInternal, "internal-error")

	st, ok := status.FromError(apperr.ToStatus(err))
	if !ok {
		t.Fatal("ToStatus should return a status")
	}
	if st.Code() != codes.Internal {
		t.Errorf("wire code = %v, want Internal", st.Code())
	}
	if st.Message() != "internal-error" {
		t.Errorf("wire message = %q, want the key only", st.Message())
	}
}

func TestVerifyAccount_AttemptsExhausted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc, err := env.accounts.Create(ctx, &accountdomain.Account{Email: testEmail, PasswordHash: "x"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sid, err := env.svc.RequestVerifyAccount(ctx, acc.ID, testIP)
	if err != nil {
		t.Fatalf("RequestVerifyAccount: %v", err)
	}
	mail := env.mailFor(t, sid)

	for i := 1; i < verification.MaxAttempts; i++ {
		_, err = env.svc.VerifyAccount(ctx, sid, wrongCode(mail.OTP), testIP)
		wantKind(t, err, apperr.KindNotAcceptable, "auth.otp-incorrect")
	}
	_, err = env.svc.VerifyAccount(ctx, sid, wrongCode(mail.OTP), testIP)
	wantKind(t, err, apperr.KindNotAcceptable, "auth.otp-attempts-exceeded")

	_, err = env.svc.VerifyAccount(ctx, sid, mail.OTP, testIP)
	wantKind(t, err, apperr.KindNotAcceptable, "auth.no-verify-account-found")
}
