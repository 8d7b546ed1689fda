// Package service ties bearer tokens to session rows: every token names the jit of exactly
// one active session, and rotation or logout moves that jit so earlier tokens stop working.
package service

import (
	"context"
	"errors"
	"log"
	"time"

	"credential-authority/internal/security"
	"credential-authority/internal/session/domain"
	"credential-authority/internal/session/repository"
)

// ErrTokenRevoked is returned by Authenticate when the token's jit is on the revocation list.
var ErrTokenRevoked = errors.New("token revoked")

// Tokens is the stateless signer the service builds on.
type Tokens interface {
	Issue(accountID string) (token, jit string, expiresAt time.Time, err error)
	Verify(token string) (*security.Claims, error)
}

// TokenService is the single place sessions are created, rotated and ended.
type TokenService struct {
	tokens      Tokens
	sessions    repository.Repository
	revocations security.RevocationList
	ttl         time.Duration
	nowF        func() time.Time
}

// NewTokenService returns a TokenService. revocations may be nil, in which case logout relies
// on the session row alone. ttl is the session lifetime applied on create and on every rotation.
func NewTokenService(tokens Tokens, sessions repository.Repository, revocations security.RevocationList, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = domain.DefaultTTL
	}
	return &TokenService{
		tokens:      tokens,
		sessions:    sessions,
		revocations: revocations,
		ttl:         ttl,
		nowF:        time.Now,
	}
}

// Issue mints a token without touching storage.
func (s *TokenService) Issue(accountID string) (string, string, error) {
	token, jit, _, err := s.tokens.Issue(accountID)
	return token, jit, err
}

// Verify checks the token cryptographically. It does not consult the session store.
func (s *TokenService) Verify(token string) (*security.Claims, error) {
	return s.tokens.Verify(token)
}

// Revoke puts the token's jit on the revocation list until the token expires.
func (s *TokenService) Revoke(ctx context.Context, claims *security.Claims) error {
	if s.revocations == nil || claims == nil {
		return nil
	}
	return s.revocations.Revoke(ctx, claims.Jit, claims.ExpiresAtTime())
}

// StartSession issues a token and stores a new session bound to its jit.
func (s *TokenService) StartSession(ctx context.Context, accountID, ip string, ua domain.UserAgent) (string, *domain.Session, error) {
	token, jit, _, err := s.tokens.Issue(accountID)
	if err != nil {
		return "", nil, err
	}
	exp := s.nowF().UTC().Add(s.ttl)
	sess, err := s.sessions.Create(ctx, &domain.Session{
		Jit:       jit,
		AccountID: accountID,
		IP:        ip,
		UserAgent: ua,
		ExpiresAt: &exp,
	})
	if err != nil {
		return "", nil, err
	}
	return token, sess, nil
}

// Rotate exchanges a token for a new one on the same session. The swap only succeeds while
// the presented jit is still the session's current jit, so a replayed or concurrently rotated
// token gets domain.ErrSessionInactive.
func (s *TokenService) Rotate(ctx context.Context, oldToken, ip string, ua domain.UserAgent) (string, error) {
	claims, err := s.tokens.Verify(oldToken)
	if err != nil {
		return "", err
	}
	token, jit, _, err := s.tokens.Issue(claims.Subject)
	if err != nil {
		return "", err
	}
	exp := s.nowF().UTC().Add(s.ttl)
	_, err = s.sessions.Update(ctx,
		domain.Filter{Jit: claims.Jit, AccountID: claims.Subject},
		domain.Patch{Jit: jit, ExpiresAt: &exp, IP: &ip, UserAgent: &ua},
	)
	if err != nil {
		return "", err
	}
	if err := s.Revoke(ctx, claims); err != nil {
		log.Printf("session: revoke rotated token: %v", err)
	}
	return token, nil
}

// EndSession revokes the session the token is bound to, then the token itself.
func (s *TokenService) EndSession(ctx context.Context, token string) error {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return err
	}
	if _, err := s.sessions.Update(ctx, domain.Filter{Jit: claims.Jit, AccountID: claims.Subject}, domain.RevokePatch()); err != nil {
		return err
	}
	if err := s.Revoke(ctx, claims); err != nil {
		log.Printf("session: revoke logged out token: %v", err)
	}
	return nil
}

// Authenticate is the full request check: valid signature, not revoked, and bound to an
// active session.
func (s *TokenService) Authenticate(ctx context.Context, token string) (*security.Claims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, claims.Jit)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}
	sess, err := s.sessions.FindByJitAndAccount(ctx, claims.Jit, claims.Subject)
	if err != nil {
		return nil, err
	}
	if !sess.Active(s.nowF()) {
		return nil, domain.ErrSessionInactive
	}
	return claims, nil
}
