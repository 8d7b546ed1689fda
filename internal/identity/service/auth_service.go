package service

import (
	"context"
	"errors"
	"log"
	"net/url"
	"strings"

	accountdomain "credential-authority/internal/account/domain"
	"credential-authority/internal/account/repository"
	"credential-authority/internal/notify"
	"credential-authority/internal/oauth"
	"credential-authority/internal/platform/apperr"
	"credential-authority/internal/security"
	sessiondomain "credential-authority/internal/session/domain"
	"credential-authority/internal/telemetry/metrics"
	"credential-authority/internal/verification"
)

// VerifyStatus is the outcome reported by VerifyAccount.
type VerifyStatus string

const (
	StatusRegisterSuccess      VerifyStatus = "register-success"
	StatusVerifyAccountSuccess VerifyStatus = "verify-account-success"
)

// Sessions is the token and session lifecycle needed by the auth service.
type Sessions interface {
	StartSession(ctx context.Context, accountID, ip string, ua sessiondomain.UserAgent) (string, *sessiondomain.Session, error)
	Rotate(ctx context.Context, oldToken, ip string, ua sessiondomain.UserAgent) (string, error)
	EndSession(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (*security.Claims, error)
}

// Challenges is the OTP challenge flow needed by the auth service.
type Challenges interface {
	Start(ctx context.Context, p verification.Purpose, r verification.Recipient, ip string, registration bool) (string, error)
	Complete(ctx context.Context, p verification.Purpose, sessionID, code, ip string) (*verification.Challenge, error)
}

// Links builds the client-facing URLs handed back by Register and OAuthCallback.
type Links struct {
	ClientBaseURL     string
	AccountVerifyPath string
	OAuthWebhooksPath string
}

func (l Links) build(path string, q url.Values) string {
	base := strings.TrimRight(l.ClientBaseURL, "/")
	return base + "/" + strings.TrimLeft(path, "/") + "?" + q.Encode()
}

// RegisterInput is the data accepted by Register.
type RegisterInput struct {
	Email       string
	Password    string
	FullName    string
	PhoneNumber string
}

// RegisterResult is returned by Register. The account is unverified until the challenge
// named by VerificationSessionID is completed.
type RegisterResult struct {
	Account               *accountdomain.Account
	VerificationSessionID string
	VerifyURL             string
}

// OAuthResult is returned by OAuthCallback.
type OAuthResult struct {
	Token       string
	RedirectURL string
}

// AuthService is the authentication engine: password and OAuth login, token rotation,
// logout, and the OTP flows for account verification and password recovery.
type AuthService struct {
	directory  repository.Directory
	hasher     *security.Hasher
	sessions   Sessions
	challenges Challenges
	sink       notify.Sink
	links      Links
	oauth      *oauth.Registry
}

// NewAuthService returns an AuthService. sink may be nil. Strategies are registered by
// provider; the service itself is the broker that links their identities to accounts.
func NewAuthService(
	directory repository.Directory,
	hasher *security.Hasher,
	sessions Sessions,
	challenges Challenges,
	sink notify.Sink,
	links Links,
	strategies ...oauth.Strategy,
) *AuthService {
	s := &AuthService{
		directory:  directory,
		hasher:     hasher,
		sessions:   sessions,
		challenges: challenges,
		sink:       sink,
		links:      links,
	}
	s.oauth = oauth.NewRegistry(s, strategies...)
	return s
}

// Register creates an unverified account and starts its verification challenge.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, ip string) (res *RegisterResult, err error) {
	defer func() { metrics.ObserveAuth("register", err) }()

	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, apperr.BadRequest("auth.invalid-register")
	}
	taken, err := s.taken(ctx, email, strings.TrimSpace(in.PhoneNumber))
	if err != nil {
		return nil, classify(err)
	}
	if taken {
		return nil, apperr.Conflict("auth.user-existed")
	}
	hash, err := s.hasher.Hash([]byte(in.Password))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "auth.register-failed", err)
	}
	created, err := s.directory.Create(ctx, &accountdomain.Account{
		Email:        email,
		PhoneNumber:  strings.TrimSpace(in.PhoneNumber),
		FullName:     strings.TrimSpace(in.FullName),
		PasswordHash: hash,
	})
	if err != nil {
		return nil, classify(err)
	}
	if created == nil {
		return nil, apperr.New(apperr.KindInternal, "auth.register-failed")
	}
	sessionID, err := s.startChallenge(ctx, verification.PurposeVerifyAccount, created, ip, true)
	if err != nil {
		return nil, err
	}
	return &RegisterResult{
		Account:               created,
		VerificationSessionID: sessionID,
		VerifyURL: s.links.build(s.links.AccountVerifyPath, url.Values{
			"accountId": {created.ID},
			"sessionId": {sessionID},
		}),
	}, nil
}

func (s *AuthService) taken(ctx context.Context, email, phone string) (bool, error) {
	existing, err := s.directory.Get(ctx, accountdomain.Filter{Email: email})
	if err != nil || existing != nil {
		return existing != nil, err
	}
	if phone == "" {
		return false, nil
	}
	existing, err = s.directory.Get(ctx, accountdomain.Filter{PhoneNumber: phone})
	return existing != nil, err
}

// Login checks email and password and opens a session on success.
func (s *AuthService) Login(ctx context.Context, email, password, ip string, ua sessiondomain.UserAgent) (token string, err error) {
	defer func() { metrics.ObserveAuth("login", err) }()

	email = normalizeEmail(email)
	if email == "" {
		return "", apperr.Unauthorized("auth.user-not-found")
	}
	acc, err := s.directory.Get(ctx, accountdomain.Filter{Email: email}, accountdomain.FieldPasswordHash)
	if err != nil {
		return "", classify(err)
	}
	if acc == nil {
		return "", apperr.Unauthorized("auth.user-not-found")
	}
	if !acc.Active() {
		return "", apperr.Unauthorized("auth.user-inactive")
	}
	if err := s.hasher.Compare(acc.PasswordHash, []byte(password)); err != nil {
		return "", apperr.Wrap(apperr.KindUnauthorized, "auth.invalid-login", err)
	}
	token, _, err = s.sessions.StartSession(ctx, acc.ID, ip, ua)
	if err != nil {
		return "", classify(err)
	}
	return token, nil
}

// Logout revokes the session bound to token and the token itself.
func (s *AuthService) Logout(ctx context.Context, token string) (err error) {
	defer func() { metrics.ObserveAuth("logout", err) }()

	if token == "" {
		return apperr.Unauthorized("auth.no-auth")
	}
	if err := s.sessions.EndSession(ctx, token); err != nil {
		if errors.Is(err, sessiondomain.ErrSessionInactive) {
			return apperr.Wrap(apperr.KindUnauthorized, "auth.session-not-found", err)
		}
		return classify(err)
	}
	return nil
}

// RefreshToken rotates token to a new one on the same session. The old token stops working.
func (s *AuthService) RefreshToken(ctx context.Context, token, ip string, ua sessiondomain.UserAgent) (next string, err error) {
	defer func() { metrics.ObserveAuth("refresh", err) }()

	if token == "" {
		return "", apperr.Unauthorized("auth.no-auth")
	}
	next, err = s.sessions.Rotate(ctx, token, ip, ua)
	if err != nil {
		return "", classify(err)
	}
	return next, nil
}

// Authenticate returns the account id a request token belongs to.
func (s *AuthService) Authenticate(ctx context.Context, token string) (accountID string, err error) {
	defer func() { metrics.ObserveAuth("authenticate", err) }()

	if token == "" {
		return "", apperr.Unauthorized("auth.no-auth")
	}
	claims, err := s.sessions.Authenticate(ctx, token)
	if err != nil {
		return "", classify(err)
	}
	return claims.AccountID(), nil
}

func (s *AuthService) startChallenge(ctx context.Context, p verification.Purpose, acc *accountdomain.Account, ip string, registration bool) (string, error) {
	sessionID, err := s.challenges.Start(ctx, p, verification.Recipient{
		AccountID: acc.ID,
		Email:     acc.Email,
		FullName:  acc.FullName,
	}, ip, registration)
	metrics.ObserveChallenge(string(p), challengeOutcome("started", err))
	if err != nil {
		log.Printf("identity: start %s challenge: %v", p, err)
		return "", classify(err)
	}
	return sessionID, nil
}

func (s *AuthService) completeChallenge(ctx context.Context, p verification.Purpose, sessionID, code, ip string) (*verification.Challenge, error) {
	c, err := s.challenges.Complete(ctx, p, sessionID, code, ip)
	metrics.ObserveChallenge(string(p), challengeOutcome("completed", err))
	if err != nil {
		return nil, classifyChallenge(p, err)
	}
	return c, nil
}

func challengeOutcome(ok string, err error) string {
	switch {
	case err == nil:
		return ok
	case errors.Is(err, verification.ErrChallengeNotFound):
		return "not_found"
	case errors.Is(err, verification.ErrIPMismatch):
		return "ip_mismatch"
	case errors.Is(err, verification.ErrOTPIncorrect):
		return "otp_incorrect"
	case errors.Is(err, verification.ErrTooManyAttempts):
		return "attempts_exceeded"
	default:
		return "error"
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
