package service

import (
	"context"
	"errors"

	accountdomain "credential-authority/internal/account/domain"
	"credential-authority/internal/directory"
	"credential-authority/internal/oauth"
	"credential-authority/internal/platform/apperr"
	"credential-authority/internal/security"
	sessiondomain "credential-authority/internal/session/domain"
	sessionservice "credential-authority/internal/session/service"
	"credential-authority/internal/verification"
)

// classify maps errors from the packages the engine builds on to exactly one apperr kind.
// Errors that are already classified pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, directory.ErrServiceUnavailable):
		return apperr.Wrap(apperr.KindServiceUnavailable, "directory.unavailable", err)
	case errors.Is(err, security.ErrInvalidToken):
		return apperr.Wrap(apperr.KindUnauthorized, "auth.no-auth", err)
	case errors.Is(err, sessiondomain.ErrSessionInactive), errors.Is(err, sessionservice.ErrTokenRevoked):
		return apperr.Wrap(apperr.KindUnauthorized, "auth.session-expired", err)
	case errors.Is(err, accountdomain.ErrDuplicate):
		return apperr.Wrap(apperr.KindConflict, "auth.user-existed", err)
	case errors.Is(err, accountdomain.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, "user.not-found", err)
	case errors.Is(err, accountdomain.ErrEmptyFilter):
		return apperr.Wrap(apperr.KindBadRequest, "user.invalid-filter", err)
	case errors.Is(err, oauth.ErrUnsupportedProvider):
		return apperr.Wrap(apperr.KindBadRequest, "auth.unsupported-provider", err)
	case errors.Is(err, oauth.ErrNoEmail):
		return apperr.Wrap(apperr.KindUnauthorized, "auth.no-google-email", err)
	case errors.Is(err, oauth.ErrExchange):
		return apperr.Wrap(apperr.KindUnauthorized, "auth.oauth-failed", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	}
	return apperr.Wrap(apperr.KindInternal, "internal-error", err)
}

// classifyChallenge maps challenge completion errors. The missing-challenge key names the
// flow so the client can tell which request to restart.
func classifyChallenge(p verification.Purpose, err error) error {
	switch {
	case errors.Is(err, verification.ErrChallengeNotFound):
		key := "auth.no-verify-account-found"
		if p == verification.PurposeResetPassword {
			key = "auth.no-reset-password-found"
		}
		return apperr.Wrap(apperr.KindNotAcceptable, key, err)
	case errors.Is(err, verification.ErrIPMismatch):
		return apperr.Wrap(apperr.KindNotAcceptable, "auth.invalid-ip", err)
	case errors.Is(err, verification.ErrOTPIncorrect):
		return apperr.Wrap(apperr.KindNotAcceptable, "auth.otp-incorrect", err)
	case errors.Is(err, verification.ErrTooManyAttempts):
		return apperr.Wrap(apperr.KindNotAcceptable, "auth.otp-attempts-exceeded", err)
	}
	return classify(err)
}
