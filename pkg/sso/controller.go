package sso

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/loginoidc/pkg/observability"
	"github.com/platinummonkey/loginoidc/pkg/session"
	"github.com/platinummonkey/loginoidc/pkg/settings"
	"github.com/platinummonkey/loginoidc/pkg/users"
)

// stateBytes is the entropy of the anti-replay state parameter
const stateBytes = 16

// CallbackPath is where the provider sends the user back to
const CallbackPath = "/auth/oidc/callback"

// Config holds the application paths the flow redirects to
type Config struct {
	HomePath         string
	SecurityPath     string
	LogoutLandingURL string
	LoginMode        LoginMode
}

// Dependencies are the collaborators of a Controller. Discoverer and Metrics
// are optional.
type Dependencies struct {
	Settings   settings.Provider
	Providers  *Registry
	Discoverer *Discoverer
	Links      LinkStore
	Users      users.Store
	Creator    users.PrivilegedCreator
	Metrics    *observability.Metrics
}

// Controller drives the remote sign-in state machine:
//
//	Idle -> Initiated -> CallbackPending -> Resolved -> SessionEstablished
//
// All per-flow state lives in the caller's session. The controller itself
// holds no mutable state and is safe for concurrent use.
type Controller struct {
	settings   settings.Provider
	providers  *Registry
	discoverer *Discoverer
	links      LinkStore
	users      users.Store
	creator    users.PrivilegedCreator
	metrics    *observability.Metrics
	cfg        Config
	now        func() time.Time
}

// NewController creates a controller
func NewController(deps Dependencies, cfg Config) (*Controller, error) {
	switch {
	case deps.Settings == nil:
		return nil, fmt.Errorf("settings provider is required")
	case deps.Providers == nil:
		return nil, fmt.Errorf("provider registry is required")
	case deps.Links == nil:
		return nil, fmt.Errorf("link store is required")
	case deps.Users == nil:
		return nil, fmt.Errorf("user store is required")
	case deps.Creator == nil:
		return nil, fmt.Errorf("privileged user creator is required")
	}
	if _, ok := deps.Providers.Get(ProviderOIDC); !ok {
		return nil, fmt.Errorf("provider %q is not registered", ProviderOIDC)
	}

	if cfg.HomePath == "" {
		cfg.HomePath = "/"
	}
	if cfg.SecurityPath == "" {
		cfg.SecurityPath = "/account/security"
	}
	if cfg.LogoutLandingURL == "" {
		cfg.LogoutLandingURL = cfg.HomePath
	}
	switch cfg.LoginMode {
	case "":
		cfg.LoginMode = LoginModeForce
	case LoginModeForce, LoginModeToken:
	default:
		return nil, fmt.Errorf("unknown login mode %q", cfg.LoginMode)
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}

	return &Controller{
		settings:   deps.Settings,
		providers:  deps.Providers,
		discoverer: deps.Discoverer,
		links:      deps.Links,
		users:      deps.Users,
		creator:    deps.Creator,
		metrics:    metrics,
		cfg:        cfg,
		now:        time.Now,
	}, nil
}

// Initiate starts a sign-in: it stores a fresh anti-replay state in the
// session and returns the provider's authorization URL.
func (c *Controller) Initiate(ctx context.Context, sess *session.Session, req InitiateRequest) (target string, err error) {
	ctx, span := c.startSpan(ctx, "Initiate")
	var res *Result
	defer func() { c.finish(ctx, span, "initiate", res, err) }()

	cfg := c.settings.Settings()
	switch req.Method {
	case http.MethodPost:
		if err := sess.ConsumeNonce(NonceName, req.Nonce); err != nil {
			return "", ErrInvalidCSRFNonce
		}
	case http.MethodGet:
		if cfg.DisableDirectInitiation {
			return "", ErrMethodNotAllowed
		}
	default:
		return "", ErrMethodNotAllowed
	}

	cfg, err = c.resolveSettings(ctx, cfg)
	if err != nil {
		return "", err
	}
	provider, _ := c.providers.Get(ProviderOIDC)

	state, err := randomHex(stateBytes)
	if err != nil {
		return "", err
	}

	target, err = provider.AuthCodeURL(cfg, redirectURI(cfg, req.BaseURL), state)
	if err != nil {
		return "", err
	}
	sess.OIDC.State = state

	res = &Result{Redirect: target, Outcome: OutcomeRedirected}
	return target, nil
}

// Callback completes a sign-in started by Initiate
func (c *Controller) Callback(ctx context.Context, sess *session.Session, req CallbackRequest) (res *Result, err error) {
	ctx, span := c.startSpan(ctx, "Callback")
	defer func() { c.finish(ctx, span, "callback", res, err) }()

	cfg, err := c.resolveSettings(ctx, c.settings.Settings())
	if err != nil {
		return nil, err
	}

	// single use: the stored state is gone whatever the comparison says
	expected := sess.OIDC.State
	sess.OIDC.State = ""
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(req.State)) != 1 {
		return nil, ErrStateMismatch
	}

	provider, ok := c.providers.Get(req.Provider)
	if !ok || req.Provider != ProviderOIDC {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, req.Provider)
	}
	span.SetAttributes(attribute.String("sso.provider", provider.Key()))

	if req.Error != "" {
		return nil, fmt.Errorf("%w: provider returned error %q: %s", ErrInvalidProviderResponse, req.Error, req.ErrorDescription)
	}
	if req.Code == "" {
		return nil, fmt.Errorf("%w: callback has no authorization code", ErrInvalidProviderResponse)
	}

	tokens, err := provider.ExchangeCode(ctx, cfg, redirectURI(cfg, req.BaseURL), req.Code, req.State)
	if err != nil {
		return nil, err
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response has no access_token", ErrInvalidProviderResponse)
	}
	sess.OIDC.RemoteAuthenticated = true
	if tokens.IDToken != "" {
		sess.OIDC.IDToken = tokens.IDToken
	}
	if tokens.RefreshToken != "" {
		sess.OIDC.RefreshToken = tokens.RefreshToken
	}

	identity, err := provider.FetchIdentity(ctx, cfg, tokens)
	if err != nil {
		return nil, err
	}
	if len(identity.Subject) > maxRemoteUserIDLength {
		return nil, fmt.Errorf("%w: subject is longer than %d bytes", ErrInvalidProviderResponse, maxRemoteUserIDLength)
	}

	return c.resolve(ctx, sess, cfg, provider.Key(), identity)
}

// Unlink removes the signed-in user's link to the provider
func (c *Controller) Unlink(ctx context.Context, sess *session.Session, nonce string) (res *Result, err error) {
	ctx, span := c.startSpan(ctx, "Unlink")
	defer func() { c.finish(ctx, span, "unlink", res, err) }()

	if err := sess.ConsumeNonce(NonceName, nonce); err != nil {
		return nil, ErrInvalidCSRFNonce
	}
	if sess.IsAnonymous() {
		return nil, ErrUserNotFound
	}

	if err := c.links.Delete(ctx, ProviderOIDC, sess.Login); err != nil {
		return nil, err
	}
	return &Result{Redirect: c.cfg.SecurityPath, Outcome: OutcomeUnlinked}, nil
}

// RequiresPasswordConfirmation reports whether a sensitive action must still
// ask for the password. Sessions established remotely may skip it when the
// settings allow.
func (c *Controller) RequiresPasswordConfirmation(sess *session.Session) bool {
	cfg := c.settings.Settings()
	return !(cfg.DisablePasswordConfirmation && sess.OIDC.RemoteAuthenticated)
}

// LoginOptions returns what a login page needs to render the remote sign-in
// button, issuing a fresh form nonce.
func (c *Controller) LoginOptions(sess *session.Session) (*LoginOptions, error) {
	cfg := c.settings.Settings()
	nonce, err := sess.IssueNonce(NonceName)
	if err != nil {
		return nil, err
	}
	return &LoginOptions{
		Caption:           cfg.AuthenticationName,
		Nonce:             nonce,
		DirectInitiation:  !cfg.DisableDirectInitiation,
		HidePasswordLogin: cfg.HidePasswordLogin,
		Configured:        configured(cfg),
	}, nil
}

// AccountStatus reports whether the signed-in user has a link
func (c *Controller) AccountStatus(ctx context.Context, sess *session.Session) (*AccountStatus, error) {
	if sess.IsAnonymous() {
		return nil, ErrUserNotFound
	}

	status := &AccountStatus{}
	link, err := c.links.GetByLocalUser(ctx, ProviderOIDC, sess.Login)
	switch {
	case err == nil:
		status.Linked = true
		status.RemoteUserID = link.RemoteUserID
	case !errors.Is(err, ErrLinkNotFound):
		return nil, err
	}

	status.Nonce, err = sess.IssueNonce(NonceName)
	if err != nil {
		return nil, err
	}
	return status, nil
}

// ConfirmPasswordOptions returns login options for a password confirmation
// prompt when the signed-in user is linked, and nil otherwise.
func (c *Controller) ConfirmPasswordOptions(ctx context.Context, sess *session.Session) (*LoginOptions, error) {
	if sess.IsAnonymous() {
		return nil, ErrUserNotFound
	}
	_, err := c.links.GetByLocalUser(ctx, ProviderOIDC, sess.Login)
	if errors.Is(err, ErrLinkNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c.LoginOptions(sess)
}

// resolveSettings fills endpoints from discovery and checks that the flow
// can run.
func (c *Controller) resolveSettings(ctx context.Context, cfg settings.Settings) (settings.Settings, error) {
	if c.discoverer != nil && cfg.IssuerURL != "" {
		var err error
		if cfg, err = c.discoverer.Apply(ctx, cfg); err != nil {
			return cfg, err
		}
	}
	if !cfg.IsConfigured() {
		return cfg, ErrNotConfigured
	}
	return cfg, nil
}

// configured answers without network access, so an issuer stands in for
// the endpoints it will publish.
func configured(cfg settings.Settings) bool {
	if cfg.IssuerURL != "" {
		return cfg.ClientID != "" && cfg.ClientSecret != ""
	}
	return cfg.IsConfigured()
}

func redirectURI(cfg settings.Settings, baseURL string) string {
	if cfg.RedirectURIOverride != "" {
		return cfg.RedirectURIOverride
	}
	return strings.TrimRight(baseURL, "/") + CallbackPath + "?provider=" + ProviderOIDC
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (c *Controller) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return observability.Tracer().Start(ctx, "sso."+op)
}

// finish records the outcome of one flow operation in the span, the metrics
// and a single log line. Secrets never reach the log.
func (c *Controller) finish(ctx context.Context, span trace.Span, op string, res *Result, err error) {
	defer span.End()

	outcome := ""
	if res != nil {
		outcome = res.Outcome
	}
	if err != nil {
		outcome = Code(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.SetAttributes(attribute.String("sso.outcome", outcome))
	c.metrics.RecordFlow(op, outcome)

	logger := observability.WithTraceContext(ctx, observability.FromContext(ctx)).WithFields(map[string]interface{}{
		"operation": op,
		"outcome":   outcome,
		"provider":  ProviderOIDC,
	})
	switch {
	case err == nil:
		logger.Info("Sign-in flow step completed")
	case HTTPStatus(err) >= http.StatusInternalServerError:
		logger.WithError(err).Error("Sign-in flow step failed")
	default:
		logger.WithError(err).Warn("Sign-in flow step rejected")
	}
}
