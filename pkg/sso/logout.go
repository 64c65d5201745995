package sso

import (
	"context"
	"net/url"

	"github.com/platinummonkey/loginoidc/pkg/observability"
	"github.com/platinummonkey/loginoidc/pkg/session"
)

// Logout works out where to send the user after the local session ends. For
// a remotely authenticated session it optionally revokes the refresh token
// and points the user at the provider's end-session endpoint. A failed
// revocation aborts the logout so the caller can keep the session.
func (c *Controller) Logout(ctx context.Context, sess *session.Session) (res *Result, err error) {
	ctx, span := c.startSpan(ctx, "Logout")
	defer func() { c.finish(ctx, span, "logout", res, err) }()

	target := c.cfg.LogoutLandingURL
	if !sess.OIDC.RemoteAuthenticated {
		return &Result{Redirect: target, Outcome: OutcomeLoggedOut}, nil
	}

	cfg := c.settings.Settings()
	if c.discoverer != nil && cfg.IssuerURL != "" {
		discovered, derr := c.discoverer.Apply(ctx, cfg)
		if derr != nil {
			// the local logout must still work while the provider is down
			observability.FromContext(ctx).WithError(derr).Warn("Discovery failed during logout")
		} else {
			cfg = discovered
		}
	}

	if cfg.RevokeOnLogout && sess.OIDC.RefreshToken != "" && cfg.RevocationURL != "" {
		provider, _ := c.providers.Get(ProviderOIDC)
		if revoker, ok := provider.(TokenRevoker); ok {
			if err := revoker.RevokeToken(ctx, cfg, sess.OIDC.RefreshToken); err != nil {
				return nil, err
			}
		}
	}

	if cfg.EndSessionURL != "" {
		target, err = endSessionURL(cfg.EndSessionURL, sess.OIDC.IDToken, c.cfg.LogoutLandingURL)
		if err != nil {
			return nil, err
		}
	}

	sess.OIDC.RemoteAuthenticated = false
	sess.OIDC.IDToken = ""
	sess.OIDC.RefreshToken = ""
	return &Result{Redirect: target, Outcome: OutcomeLoggedOut}, nil
}

// endSessionURL adds id_token_hint and post_logout_redirect_uri to the
// provider's end-session endpoint, keeping any query it already has.
func endSessionURL(endpoint, idToken, postLogout string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if idToken != "" {
		q.Set("id_token_hint", idToken)
	}
	q.Set("post_logout_redirect_uri", postLogout)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
