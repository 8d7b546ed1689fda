package service

import (
	"context"
	"net/url"

	accountdomain "credential-authority/internal/account/domain"
	"credential-authority/internal/oauth"
	"credential-authority/internal/platform/apperr"
	"credential-authority/internal/security"
	sessiondomain "credential-authority/internal/session/domain"
	"credential-authority/internal/telemetry/metrics"
)

var _ oauth.Broker = (*AuthService)(nil)

// GetOAuthURL returns the consent page URL for provider.
func (s *AuthService) GetOAuthURL(provider, state string) (string, error) {
	u, err := s.oauth.AuthURL(oauth.ParseProvider(provider), state)
	if err != nil {
		return "", classify(err)
	}
	return u, nil
}

// OAuthCallback completes a provider sign-in and returns the session token together with
// the client URL that receives it.
func (s *AuthService) OAuthCallback(ctx context.Context, provider, code, ip string, ua sessiondomain.UserAgent) (res *OAuthResult, err error) {
	defer func() { metrics.ObserveAuth("oauth_callback", err) }()

	token, err := s.oauth.HandleCallback(ctx, oauth.ParseProvider(provider), code, ip, ua)
	if err != nil {
		return nil, classify(err)
	}
	return &OAuthResult{
		Token:       token,
		RedirectURL: s.links.build(s.links.OAuthWebhooksPath, url.Values{"token": {token}}),
	}, nil
}

// ResolveExternalAccount returns the account registered under id.Email. On first sight it
// registers a verified account with an unusable password; no verification mail is sent
// because the provider already vouched for the address.
func (s *AuthService) ResolveExternalAccount(ctx context.Context, id *oauth.ExternalIdentity) (string, error) {
	email := normalizeEmail(id.Email)
	acc, err := s.directory.Get(ctx, accountdomain.Filter{Email: email})
	if err != nil {
		return "", classify(err)
	}
	if acc != nil {
		if acc.WillDeleteAt != nil {
			return "", apperr.Unauthorized("auth.user-inactive")
		}
		if !acc.IsVerified {
			verified := true
			if _, err := s.directory.Update(ctx, accountdomain.Filter{ID: acc.ID}, accountdomain.Patch{IsVerified: &verified}); err != nil {
				return "", classify(err)
			}
		}
		return acc.ID, nil
	}
	created, err := s.directory.Create(ctx, &accountdomain.Account{
		Email:        email,
		FullName:     id.FullName,
		PhoneNumber:  id.PhoneNumber,
		AvatarURL:    id.AvatarURL,
		PasswordHash: security.UnusablePasswordHash,
		IsVerified:   true,
	})
	if err != nil {
		return "", classify(err)
	}
	return created.ID, nil
}

// StartSession opens a session for an externally authenticated account.
func (s *AuthService) StartSession(ctx context.Context, accountID, ip string, ua sessiondomain.UserAgent) (string, error) {
	token, _, err := s.sessions.StartSession(ctx, accountID, ip, ua)
	if err != nil {
		return "", classify(err)
	}
	return token, nil
}
