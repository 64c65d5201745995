package sso

import (
	"context"
	"fmt"
	"sort"

	"github.com/platinummonkey/loginoidc/pkg/settings"
)

// Provider is the capability set the flow needs from an identity provider.
// Settings passed in are a resolved snapshot: discovery has already filled
// blank endpoints.
type Provider interface {
	// Key is the value of the callback's provider parameter and of
	// account_link.provider
	Key() string

	// AuthCodeURL builds the authorization request URL
	AuthCodeURL(cfg settings.Settings, redirectURI, state string) (string, error)

	// ExchangeCode trades an authorization code for tokens
	ExchangeCode(ctx context.Context, cfg settings.Settings, redirectURI, code, state string) (*TokenSet, error)

	// FetchIdentity reads the remote user's claims
	FetchIdentity(ctx context.Context, cfg settings.Settings, tokens *TokenSet) (*Identity, error)
}

// TokenRevoker is implemented by providers that can revoke a refresh token
type TokenRevoker interface {
	RevokeToken(ctx context.Context, cfg settings.Settings, refreshToken string) error
}

// Registry maps provider keys to providers
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry holding providers
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if _, dup := r.providers[p.Key()]; dup {
			return nil, fmt.Errorf("provider %q registered twice", p.Key())
		}
		r.providers[p.Key()] = p
	}
	return r, nil
}

// Get returns the provider for key
func (r *Registry) Get(key string) (Provider, bool) {
	p, ok := r.providers[key]
	return p, ok
}

// Keys returns the registered provider keys in sorted order
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.providers))
	for k := range r.providers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
