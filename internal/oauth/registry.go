package oauth

import (
	"context"
	"encoding/base64"

	sessiondomain "credential-authority/internal/session/domain"
)

// Registry dispatches to the strategy registered for a provider.
type Registry struct {
	strategies map[Provider]Strategy
	broker     Broker
}

// NewRegistry returns a registry over strategies. Later strategies for the same provider
// replace earlier ones.
func NewRegistry(broker Broker, strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[Provider]Strategy, len(strategies)), broker: broker}
	for _, s := range strategies {
		if s != nil {
			r.strategies[s.Provider()] = s
		}
	}
	return r
}

// Strategy returns the strategy for p or ErrUnsupportedProvider.
func (r *Registry) Strategy(p Provider) (Strategy, error) {
	s, ok := r.strategies[p]
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	return s, nil
}

// AuthURL returns p's consent URL. A non-empty state is base64url encoded so arbitrary
// client data survives the round trip.
func (r *Registry) AuthURL(p Provider, state string) (string, error) {
	s, err := r.Strategy(p)
	if err != nil {
		return "", err
	}
	if state != "" {
		state = base64.RawURLEncoding.EncodeToString([]byte(state))
	}
	return s.AuthURL(state), nil
}

// HandleCallback exchanges code with p, resolves or registers the local account, and opens
// a session through the same path as password login.
func (r *Registry) HandleCallback(ctx context.Context, p Provider, code, ip string, ua sessiondomain.UserAgent) (string, error) {
	s, err := r.Strategy(p)
	if err != nil {
		return "", err
	}
	id, err := s.Exchange(ctx, code)
	if err != nil {
		return "", err
	}
	if id == nil || id.Email == "" {
		return "", ErrNoEmail
	}
	accountID, err := r.broker.ResolveExternalAccount(ctx, id)
	if err != nil {
		return "", err
	}
	return r.broker.StartSession(ctx, accountID, ip, ua)
}
