package sso

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/loginoidc/pkg/observability"
	"github.com/platinummonkey/loginoidc/pkg/session"
	"github.com/platinummonkey/loginoidc/pkg/settings"
	"github.com/platinummonkey/loginoidc/pkg/users"
)

const testBaseURL = "https://analytics.example.com"

// fakeIDP is an identity provider serving token, userinfo, revocation and
// discovery endpoints.
type fakeIDP struct {
	server *httptest.Server

	mu             sync.Mutex
	tokenResponse  map[string]interface{}
	tokenStatus    int
	userinfo       map[string]interface{}
	revokeStatus   int
	tokenRequests  []url.Values
	tokenAccept    []string
	userinfoAuth   []string
	revokeRequests []url.Values
	discoveryHits  int
}

func newFakeIDP(t *testing.T) *fakeIDP {
	t.Helper()
	f := &fakeIDP{
		tokenResponse: map[string]interface{}{"access_token": "T", "token_type": "bearer"},
		userinfo:      map[string]interface{}{"sub": "42", "email": "u@x.com"},
		revokeStatus:  http.StatusNoContent,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		f.mu.Lock()
		defer f.mu.Unlock()
		f.tokenRequests = append(f.tokenRequests, r.PostForm)
		f.tokenAccept = append(f.tokenAccept, r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		json.NewEncoder(w).Encode(f.tokenResponse)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.userinfoAuth = append(f.userinfoAuth, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(f.userinfo)
	})
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		f.mu.Lock()
		defer f.mu.Unlock()
		f.revokeRequests = append(f.revokeRequests, r.PostForm)
		w.WriteHeader(f.revokeStatus)
	})
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.discoveryHits++
		f.mu.Unlock()
		base := f.server.URL
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                 base,
			"authorization_endpoint": base + "/authorize",
			"token_endpoint":         base + "/token",
			"userinfo_endpoint":      base + "/userinfo",
			"end_session_endpoint":   base + "/logout",
			"revocation_endpoint":    base + "/revoke",
			"jwks_uri":               base + "/jwks",
		})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeIDP) URL() string {
	return f.server.URL
}

func (f *fakeIDP) setUserinfo(claims map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userinfo = claims
}

func (f *fakeIDP) setTokenResponse(resp map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenResponse = resp
}

func (f *fakeIDP) setTokenStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenStatus = status
}

func (f *fakeIDP) setRevokeStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokeStatus = status
}

func (f *fakeIDP) tokenRequestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokenRequests)
}

func (f *fakeIDP) userinfoAuths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.userinfoAuth...)
}

func (f *fakeIDP) revokes() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.revokeRequests...)
}

func (f *fakeIDP) discoveryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.discoveryHits
}

func (f *fakeIDP) lastTokenRequest() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tokenRequests) == 0 {
		return nil
	}
	return f.tokenRequests[len(f.tokenRequests)-1]
}

// settings returns a complete configuration pointing at the fake provider
func (f *fakeIDP) settings() settings.Settings {
	s := settings.Defaults()
	s.AuthorizeURL = f.URL() + "/authorize"
	s.TokenURL = f.URL() + "/token"
	s.UserinfoURL = f.URL() + "/userinfo"
	s.UserinfoIDField = "sub"
	s.ClientID = "client-1"
	s.ClientSecret = "secret-1"
	s.Scope = "openid email"
	return s
}

// memoryLinks enforces the same uniqueness rules as account_link
type memoryLinks struct {
	mu    sync.Mutex
	links []AccountLink
}

func (m *memoryLinks) GetByRemoteID(_ context.Context, provider, remoteUserID string) (*AccountLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.Provider == provider && l.RemoteUserID == remoteUserID {
			link := l
			return &link, nil
		}
	}
	return nil, ErrLinkNotFound
}

func (m *memoryLinks) GetByLocalUser(_ context.Context, provider, login string) (*AccountLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.Provider == provider && l.LocalUser == login {
			link := l
			return &link, nil
		}
	}
	return nil, ErrLinkNotFound
}

func (m *memoryLinks) Create(_ context.Context, link *AccountLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.Provider == link.Provider && (l.RemoteUserID == link.RemoteUserID || l.LocalUser == link.LocalUser) {
			return ErrLinkExists
		}
	}
	link.ConnectedAt = time.Now()
	m.links = append(m.links, *link)
	return nil
}

func (m *memoryLinks) Delete(_ context.Context, provider, login string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.links[:0]
	for _, l := range m.links {
		if !(l.Provider == provider && l.LocalUser == login) {
			kept = append(kept, l)
		}
	}
	m.links = kept
	return nil
}

func (m *memoryLinks) all() []AccountLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AccountLink(nil), m.links...)
}

// memoryUsers implements users.Store and users.PrivilegedCreator
type memoryUsers struct {
	mu    sync.Mutex
	users map[string]users.User
}

func newMemoryUsers(initial ...users.User) *memoryUsers {
	m := &memoryUsers{users: make(map[string]users.User)}
	for _, u := range initial {
		m.users[u.Login] = u
	}
	return m
}

func (m *memoryUsers) GetUser(_ context.Context, login string) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[login]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	return &u, nil
}

func (m *memoryUsers) SetTokenAuth(_ context.Context, login, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[login]
	if !ok {
		return users.ErrUserNotFound
	}
	u.TokenAuth = token
	m.users[login] = u
	return nil
}

func (m *memoryUsers) CreateUser(_ context.Context, user *users.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Login]; ok {
		return users.ErrUserExists
	}
	user.CreatedAt = time.Now()
	m.users[user.Login] = *user
	return nil
}

func (m *memoryUsers) get(login string) (users.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[login]
	return u, ok
}

type testEnv struct {
	idp        *fakeIDP
	controller *Controller
	links      *memoryLinks
	users      *memoryUsers
	metrics    *observability.Metrics
}

type envOption func(*Dependencies, *Config)

func withLoginMode(mode LoginMode) envOption {
	return func(_ *Dependencies, cfg *Config) { cfg.LoginMode = mode }
}

func withDiscoverer(d *Discoverer) envOption {
	return func(deps *Dependencies, _ *Config) { deps.Discoverer = d }
}

// newTestEnv wires a controller against a fake provider. mutate adjusts the
// settings before they are frozen.
func newTestEnv(t *testing.T, mutate func(*settings.Settings), initial []users.User, opts ...envOption) *testEnv {
	t.Helper()
	idp := newFakeIDP(t)
	s := idp.settings()
	if mutate != nil {
		mutate(&s)
	}

	metrics := observability.NewNopMetrics()
	registry, err := NewRegistry(NewOAuth2Provider(idp.server.Client(), metrics))
	require.NoError(t, err)

	env := &testEnv{
		idp:     idp,
		links:   &memoryLinks{},
		users:   newMemoryUsers(initial...),
		metrics: metrics,
	}
	deps := Dependencies{
		Settings:  settings.Static(s),
		Providers: registry,
		Links:     env.links,
		Users:     env.users,
		Creator:   env.users,
		Metrics:   metrics,
	}
	cfg := Config{
		HomePath:         "/",
		SecurityPath:     "/account/security",
		LogoutLandingURL: testBaseURL + "/",
	}
	for _, opt := range opts {
		opt(&deps, &cfg)
	}

	env.controller, err = NewController(deps, cfg)
	require.NoError(t, err)
	return env
}

// initiate runs Initiate by POST with a valid nonce and returns the state
func (e *testEnv) initiate(t *testing.T, sess *session.Session) string {
	t.Helper()
	nonce, err := sess.IssueNonce(NonceName)
	require.NoError(t, err)
	_, err = e.controller.Initiate(context.Background(), sess, InitiateRequest{
		Method:  http.MethodPost,
		Nonce:   nonce,
		BaseURL: testBaseURL,
	})
	require.NoError(t, err)
	return sess.OIDC.State
}

// signIn runs a full initiate and callback on sess
func (e *testEnv) signIn(t *testing.T, sess *session.Session) (*Result, error) {
	t.Helper()
	state := e.initiate(t, sess)
	return e.controller.Callback(context.Background(), sess, CallbackRequest{
		State:    state,
		Code:     "C",
		Provider: ProviderOIDC,
		BaseURL:  testBaseURL,
	})
}

func signedInSession(login string) *session.Session {
	s := session.New()
	s.Login = login
	return s
}
