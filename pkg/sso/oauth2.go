package sso

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/platinummonkey/loginoidc/pkg/observability"
	"github.com/platinummonkey/loginoidc/pkg/settings"
)

// maxUserinfoBytes bounds the userinfo document we are willing to decode
const maxUserinfoBytes = 1 << 20

// OAuth2Provider implements the authorization code flow against the
// endpoints named in settings.
type OAuth2Provider struct {
	client      *http.Client
	tokenClient *http.Client
	metrics     *observability.Metrics
}

// NewOAuth2Provider creates a provider that makes outbound calls with client
func NewOAuth2Provider(client *http.Client, metrics *observability.Metrics) *OAuth2Provider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}

	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return &OAuth2Provider{
		client: client,
		tokenClient: &http.Client{
			Transport: acceptJSON{base: base},
			Timeout:   client.Timeout,
		},
		metrics: metrics,
	}
}

// Key returns ProviderOIDC
func (p *OAuth2Provider) Key() string {
	return ProviderOIDC
}

func (p *OAuth2Provider) oauth2Config(cfg settings.Settings, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthorizeURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURI,
		Scopes:      strings.Fields(cfg.Scope),
	}
}

// AuthCodeURL appends client_id, scope, redirect_uri, state and
// response_type=code to the authorize URL, keeping its existing query.
func (p *OAuth2Provider) AuthCodeURL(cfg settings.Settings, redirectURI, state string) (string, error) {
	if cfg.AuthorizeURL == "" {
		return "", ErrNotConfigured
	}
	conf := p.oauth2Config(cfg, redirectURI)
	var opts []oauth2.AuthCodeOption
	if len(conf.Scopes) == 0 {
		// oauth2 omits an empty scope; providers expect the parameter
		opts = append(opts, oauth2.SetAuthURLParam("scope", cfg.Scope))
	}
	return conf.AuthCodeURL(state, opts...), nil
}

// ExchangeCode posts the code to the token endpoint with the client
// credentials in the form body.
func (p *OAuth2Provider) ExchangeCode(ctx context.Context, cfg settings.Settings, redirectURI, code, state string) (*TokenSet, error) {
	start := time.Now()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.tokenClient)

	tok, err := p.oauth2Config(cfg, redirectURI).Exchange(ctx, code, oauth2.SetAuthURLParam("state", state))
	if err != nil {
		err = classifyProviderError("token endpoint", err)
		p.metrics.ObserveProvider("token", start, providerErrorKind(err))
		return nil, err
	}
	p.metrics.ObserveProvider("token", start, "")

	tokens := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		tokens.IDToken = idToken
	}
	return tokens, nil
}

// FetchIdentity calls the userinfo endpoint with the access token
func (p *OAuth2Provider) FetchIdentity(ctx context.Context, cfg settings.Settings, tokens *TokenSet) (*Identity, error) {
	start := time.Now()
	identity, err := p.fetchIdentity(ctx, cfg, tokens)
	kind := ""
	if err != nil {
		kind = providerErrorKind(err)
	}
	p.metrics.ObserveProvider("userinfo", start, kind)
	return identity, err
}

func (p *OAuth2Provider) fetchIdentity(ctx context.Context, cfg settings.Settings, tokens *TokenSet) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.UserinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid userinfo URL: %v", ErrNotConfigured, err)
	}
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classifyProviderError("userinfo endpoint", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: userinfo endpoint returned status %d", ErrInvalidProviderResponse, resp.StatusCode)
	}

	var claims map[string]interface{}
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxUserinfoBytes))
	dec.UseNumber()
	if err := dec.Decode(&claims); err != nil {
		return nil, fmt.Errorf("%w: failed to decode userinfo: %v", ErrInvalidProviderResponse, err)
	}

	field := cfg.SubjectField()
	subject, ok := claimString(claims[field])
	if !ok || subject == "" {
		return nil, fmt.Errorf("%w: userinfo has no %q claim", ErrInvalidProviderResponse, field)
	}

	email, _ := claims["email"].(string)
	return &Identity{
		Subject: subject,
		Email:   email,
		Claims:  claims,
	}, nil
}

// RevokeToken revokes a refresh token at the revocation endpoint. Anything
// other than 204 No Content counts as a failure.
func (p *OAuth2Provider) RevokeToken(ctx context.Context, cfg settings.Settings, refreshToken string) error {
	start := time.Now()
	err := p.revokeToken(ctx, cfg, refreshToken)
	kind := ""
	if err != nil {
		kind = providerErrorKind(err)
	}
	p.metrics.ObserveProvider("revocation", start, kind)
	return err
}

func (p *OAuth2Provider) revokeToken(ctx context.Context, cfg settings.Settings, refreshToken string) error {
	form := url.Values{
		"token":           {refreshToken},
		"token_type_hint": {"refresh_token"},
		"client_id":       {cfg.ClientID},
		"client_secret":   {cfg.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.RevocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: invalid revocation URL: %v", ErrNotConfigured, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return classifyProviderError("revocation endpoint", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: revocation endpoint returned status %d", ErrInvalidProviderResponse, resp.StatusCode)
	}
	return nil
}

// classifyProviderError folds an outbound call failure into the flow error
// taxonomy.
func classifyProviderError(endpoint string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	var urlErr *url.Error
	var netErr net.Error

	switch {
	case errors.As(err, &retrieveErr):
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return fmt.Errorf("%w: %s returned status %d", ErrInvalidProviderResponse, endpoint, status)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &urlErr), errors.As(err, &netErr):
		return fmt.Errorf("%w: %s: %v", ErrProviderUnreachable, endpoint, err)
	default:
		return fmt.Errorf("%w: %s: %v", ErrInvalidProviderResponse, endpoint, err)
	}
}

func providerErrorKind(err error) string {
	if errors.Is(err, ErrProviderUnreachable) {
		return "unreachable"
	}
	return "invalid_response"
}

// claimString renders a string or numeric claim. Numbers are written without
// an exponent so that numeric ids such as 583231 keep their usual form.
func claimString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		s := val.String()
		if !strings.ContainsAny(s, ".eE") {
			return s, true
		}
		f, err := val.Float64()
		if err != nil {
			return "", false
		}
		return strconv.FormatFloat(f, 'f', -1, 64), true
	default:
		return "", false
	}
}

// acceptJSON asks token endpoints that default to form-encoded replies
// (GitHub) for JSON instead.
type acceptJSON struct {
	base http.RoundTripper
}

func (t acceptJSON) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept", "application/json")
	}
	return t.base.RoundTrip(req)
}
