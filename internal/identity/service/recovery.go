package service

import (
	"context"
	"strings"

	accountdomain "credential-authority/internal/account/domain"
	"credential-authority/internal/notify"
	"credential-authority/internal/platform/apperr"
	"credential-authority/internal/telemetry/metrics"
	"credential-authority/internal/verification"
)

// ForgotPasswordInput names the account by id or, when AccountID is empty, by email.
type ForgotPasswordInput struct {
	AccountID string
	Email     string
}

func (in ForgotPasswordInput) filter() accountdomain.Filter {
	if id := strings.TrimSpace(in.AccountID); id != "" {
		return accountdomain.Filter{ID: id}
	}
	return accountdomain.Filter{Email: normalizeEmail(in.Email)}
}

// RequestVerifyAccount starts a verification challenge for an existing account and
// returns its session id.
func (s *AuthService) RequestVerifyAccount(ctx context.Context, accountID, ip string) (sessionID string, err error) {
	defer func() { metrics.ObserveAuth("request_verify_account", err) }()

	acc, err := s.lookup(ctx, accountdomain.Filter{ID: strings.TrimSpace(accountID)})
	if err != nil {
		return "", err
	}
	return s.startChallenge(ctx, verification.PurposeVerifyAccount, acc, ip, false)
}

// VerifyAccount completes a verification challenge and marks the account verified.
// Challenges started by Register also trigger the welcome notification.
func (s *AuthService) VerifyAccount(ctx context.Context, sessionID, code, ip string) (st VerifyStatus, err error) {
	defer func() { metrics.ObserveAuth("verify_account", err) }()

	c, err := s.completeChallenge(ctx, verification.PurposeVerifyAccount, sessionID, code, ip)
	if err != nil {
		return "", err
	}
	verified := true
	acc, err := s.directory.Update(ctx, accountdomain.Filter{ID: c.AccountID}, accountdomain.Patch{IsVerified: &verified})
	if err != nil {
		return "", classify(err)
	}
	if !c.Registration {
		return StatusVerifyAccountSuccess, nil
	}
	notify.EmitAsync(ctx, s.sink, notify.Event{
		Name:    notify.EventNewAccount,
		Key:     acc.ID,
		Payload: notify.WelcomeMail{UserName: acc.FullName, Email: acc.Email},
	})
	return StatusRegisterSuccess, nil
}

// ForgotPassword starts a password reset challenge and returns its session id.
func (s *AuthService) ForgotPassword(ctx context.Context, in ForgotPasswordInput, ip string) (sessionID string, err error) {
	defer func() { metrics.ObserveAuth("forgot_password", err) }()

	f := in.filter()
	if f.Empty() {
		return "", apperr.BadRequest("auth.invalid-forgot-password")
	}
	acc, err := s.lookup(ctx, f)
	if err != nil {
		return "", err
	}
	return s.startChallenge(ctx, verification.PurposeResetPassword, acc, ip, false)
}

// ResetPassword completes a reset challenge and replaces the account's password.
func (s *AuthService) ResetPassword(ctx context.Context, sessionID, code, newPassword, ip string) (err error) {
	defer func() { metrics.ObserveAuth("reset_password", err) }()

	if newPassword == "" {
		return apperr.BadRequest("auth.invalid-password")
	}
	c, err := s.completeChallenge(ctx, verification.PurposeResetPassword, sessionID, code, ip)
	if err != nil {
		return err
	}
	return s.setPassword(ctx, c.AccountID, newPassword)
}

// UpdatePassword replaces the password of a signed-in account after checking the current one.
func (s *AuthService) UpdatePassword(ctx context.Context, accountID, current, next string) (err error) {
	defer func() { metrics.ObserveAuth("update_password", err) }()

	if next == "" {
		return apperr.BadRequest("auth.invalid-password")
	}
	acc, err := s.directory.Get(ctx, accountdomain.Filter{ID: accountID}, accountdomain.FieldPasswordHash)
	if err != nil {
		return classify(err)
	}
	if acc == nil {
		return apperr.NotAcceptable("auth.user-not-found")
	}
	if err := s.hasher.Compare(acc.PasswordHash, []byte(current)); err != nil {
		return apperr.Wrap(apperr.KindNotAcceptable, "auth.wrong-password", err)
	}
	return s.setPassword(ctx, accountID, next)
}

func (s *AuthService) setPassword(ctx context.Context, accountID, password string) error {
	hash, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "internal-error", err)
	}
	if _, err := s.directory.Update(ctx, accountdomain.Filter{ID: accountID}, accountdomain.Patch{PasswordHash: &hash}); err != nil {
		return classify(err)
	}
	return nil
}

// lookup returns the account matching f or a NotFound error.
func (s *AuthService) lookup(ctx context.Context, f accountdomain.Filter) (*accountdomain.Account, error) {
	if f.Empty() {
		return nil, apperr.NotFound("user.not-found")
	}
	acc, err := s.directory.Get(ctx, f)
	if err != nil {
		return nil, classify(err)
	}
	if acc == nil {
		return nil, apperr.NotFound("user.not-found")
	}
	return acc, nil
}
