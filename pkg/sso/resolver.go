package sso

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/loginoidc/pkg/observability"
	"github.com/platinummonkey/loginoidc/pkg/session"
	"github.com/platinummonkey/loginoidc/pkg/settings"
	"github.com/platinummonkey/loginoidc/pkg/users"
)

// Link creation reasons, used as the metrics label
const (
	linkReasonAutoLink = "auto_link"
	linkReasonSignup   = "signup"
	linkReasonAccount  = "account"
)

// resolve applies the linking policy, in order:
//
//	a. existing link for (provider, subject)
//	b. auto-link to a local user whose login equals the subject
//	c. no user: sign up an anonymous caller, or link a signed-in caller
//	d. user found, anonymous caller: superuser gate, then sign in
//	e. user found, signed-in caller: same login re-confirms, else reject
func (c *Controller) resolve(ctx context.Context, sess *session.Session, cfg settings.Settings, provider string, identity *Identity) (*Result, error) {
	resolved := &ResolvedIdentity{Identity: *identity, Provider: provider}
	outcome := OutcomeSignedIn

	user, err := c.linkedUser(ctx, provider, identity.Subject)
	if errors.Is(err, ErrLinkNotFound) && cfg.AutoLinking {
		user, err = c.autoLink(ctx, provider, identity.Subject)
		outcome = OutcomeAutoLinked
	}
	if errors.Is(err, ErrLinkNotFound) {
		if sess.IsAnonymous() {
			return c.signup(ctx, sess, cfg, resolved)
		}
		return c.linkCurrentUser(ctx, sess, resolved)
	}
	if err != nil {
		return nil, err
	}
	resolved.User = user

	if sess.IsAnonymous() {
		if cfg.DisableSuperuser && user.SuperUser {
			return nil, ErrSuperUserOauthDisabled
		}
		res, err := c.establishSession(ctx, sess, cfg, user)
		if err != nil {
			return nil, err
		}
		res.Outcome = outcome
		return res, nil
	}

	if sess.Login != user.Login {
		return nil, ErrAlreadyLinkedToDifferentAccount
	}
	sess.PasswordVerifiedAt = c.now()
	return &Result{NoContent: true, Outcome: OutcomeReconfirmed}, nil
}

// linkedUser follows the link for (provider, subject) to its local user
func (c *Controller) linkedUser(ctx context.Context, provider, subject string) (*users.User, error) {
	link, err := c.links.GetByRemoteID(ctx, provider, subject)
	if err != nil {
		return nil, err
	}
	user, err := c.users.GetUser(ctx, link.LocalUser)
	if errors.Is(err, users.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: linked login %q", ErrUserNotFound, link.LocalUser)
	}
	return user, err
}

// autoLink links subject to the local user of the same login, if there is
// one, and resolves again. A link created concurrently by another request is
// as good as our own.
func (c *Controller) autoLink(ctx context.Context, provider, subject string) (*users.User, error) {
	if _, err := c.users.GetUser(ctx, subject); err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}

	if err := c.createLink(ctx, subject, subject, provider, linkReasonAutoLink); err != nil {
		return nil, err
	}
	return c.linkedUser(ctx, provider, subject)
}

// linkCurrentUser links the remote identity to the signed-in caller and sends
// them back to the security page. The session is not changed.
func (c *Controller) linkCurrentUser(ctx context.Context, sess *session.Session, resolved *ResolvedIdentity) (*Result, error) {
	if err := c.createLink(ctx, sess.Login, resolved.Subject, resolved.Provider, linkReasonAccount); err != nil {
		return nil, err
	}
	return &Result{Redirect: c.cfg.SecurityPath, Outcome: OutcomeLinked}, nil
}

// signup creates a local user for an anonymous caller. The new account
// cannot sign in with a password.
func (c *Controller) signup(ctx context.Context, sess *session.Session, cfg settings.Settings, resolved *ResolvedIdentity) (*Result, error) {
	if !cfg.AllowSignup {
		return nil, ErrSignupDisabled
	}
	if resolved.Email == "" {
		return nil, ErrUserNotFoundAndNoEmail
	}
	if len(resolved.Email) > maxLoginLength {
		// the e-mail becomes the login, which must fit local_users.login
		return nil, fmt.Errorf("%w: e-mail is longer than %d bytes", ErrUserNotFoundAndNoEmail, maxLoginLength)
	}
	if !cfg.DomainAllowed(resolved.Email) {
		return nil, ErrAllowedSignupDomainsDenied
	}

	user := &users.User{
		Login:        resolved.Email,
		Email:        resolved.Email,
		PasswordHash: users.DisallowPasswordLogin,
	}
	if err := c.creator.CreateUser(ctx, user); err != nil {
		if errors.Is(err, users.ErrUserExists) {
			return nil, ErrLoginTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	c.metrics.SignupsTotal.Inc()
	observability.FromContext(ctx).WithField("new_login", user.Login).Info("Created local user from remote sign-in")

	if err := c.createLink(ctx, user.Login, resolved.Subject, resolved.Provider, linkReasonSignup); err != nil {
		return nil, err
	}

	linked, err := c.linkedUser(ctx, resolved.Provider, resolved.Subject)
	if errors.Is(err, ErrLinkNotFound) {
		return nil, fmt.Errorf("%w: link for new user %q", ErrUserNotFound, user.Login)
	}
	if err != nil {
		return nil, err
	}

	res, err := c.establishSession(ctx, sess, cfg, linked)
	if err != nil {
		return nil, err
	}
	res.Outcome = OutcomeSignedUp
	return res, nil
}

// createLink inserts a link; a duplicate means someone got there first and
// is not an error.
func (c *Controller) createLink(ctx context.Context, login, subject, provider, reason string) error {
	err := c.links.Create(ctx, &AccountLink{
		LocalUser:    login,
		RemoteUserID: subject,
		Provider:     provider,
	})
	switch {
	case err == nil:
		c.metrics.LinksCreatedTotal.WithLabelValues(reason).Inc()
		return nil
	case errors.Is(err, ErrLinkExists):
		return nil
	default:
		return err
	}
}
