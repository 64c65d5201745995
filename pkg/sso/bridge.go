package sso

import (
	"context"
	"fmt"

	"github.com/platinummonkey/loginoidc/pkg/contextkeys"
	"github.com/platinummonkey/loginoidc/pkg/observability"
	"github.com/platinummonkey/loginoidc/pkg/session"
	"github.com/platinummonkey/loginoidc/pkg/settings"
	"github.com/platinummonkey/loginoidc/pkg/users"
)

// establishSession signs user in on sess. Identity was proven by the
// provider, so no password is checked. It refuses a session that already
// belongs to someone, which also stops a second run for the same callback.
func (c *Controller) establishSession(ctx context.Context, sess *session.Session, cfg settings.Settings, user *users.User) (*Result, error) {
	if !sess.IsAnonymous() {
		return nil, ErrSessionAlreadyEstablished
	}

	token := user.TokenAuth
	switch c.cfg.LoginMode {
	case LoginModeToken:
		if token == "" {
			return nil, fmt.Errorf("user %q has no auth token", user.Login)
		}
	default:
		if token == "" {
			var err error
			if token, err = users.GenerateTokenAuth(); err != nil {
				return nil, err
			}
			if err := c.users.SetTokenAuth(ctx, user.Login, token); err != nil {
				return nil, fmt.Errorf("failed to store auth token: %w", err)
			}
		}
	}

	result := AuthSuccess
	if user.SuperUser {
		result = AuthSuccessSuperUser
	}

	sess.Login = user.Login
	sess.TokenAuth = token
	sess.SuperUser = user.SuperUser
	sess.RememberMe = true
	if cfg.BypassTwoFa {
		sess.TwoFactorVerified = true
	}
	sess.Rotate()

	ctx = contextkeys.WithLogin(ctx, user.Login)
	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"auth_result": string(result),
		"login_mode":  string(c.cfg.LoginMode),
	}).Debug("Established session")

	return &Result{Redirect: c.cfg.HomePath, Outcome: OutcomeSignedIn}, nil
}
