// Package oauth maps external identity providers to strategies and turns a provider
// callback into a local session.
package oauth

import (
	"context"
	"errors"
	"strings"

	sessiondomain "credential-authority/internal/session/domain"
)

// Provider identifies an external identity provider.
type Provider string

const ProviderGoogle Provider = "google"

var (
	// ErrUnsupportedProvider is returned for providers with no registered strategy.
	ErrUnsupportedProvider = errors.New("oauth provider not supported")
	// ErrNoEmail is returned when the provider profile carries no email address.
	ErrNoEmail = errors.New("oauth profile has no email")
	// ErrExchange is returned when the authorization code cannot be exchanged or the
	// profile cannot be read.
	ErrExchange = errors.New("oauth exchange failed")
)

// ParseProvider normalizes a provider name.
func ParseProvider(s string) Provider {
	return Provider(strings.ToLower(strings.TrimSpace(s)))
}

// ExternalIdentity is the profile a provider reports for the signed-in user.
type ExternalIdentity struct {
	Provider    Provider
	Email       string
	FullName    string
	PhoneNumber string
	AvatarURL   string
}

// Strategy is one provider's authorization flow.
type Strategy interface {
	Provider() Provider
	// AuthURL returns the consent page URL. state is passed through already encoded.
	AuthURL(state string) string
	// Exchange trades an authorization code for the user's profile.
	Exchange(ctx context.Context, code string) (*ExternalIdentity, error)
}

// Broker links external identities to local accounts and opens sessions for them.
type Broker interface {
	// ResolveExternalAccount returns the account id for id.Email, registering a new
	// verified account with an unusable password on first sight.
	ResolveExternalAccount(ctx context.Context, id *ExternalIdentity) (string, error)
	// StartSession opens a session and returns its token.
	StartSession(ctx context.Context, accountID, ip string, ua sessiondomain.UserAgent) (string, error)
}
