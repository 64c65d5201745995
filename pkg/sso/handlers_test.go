package sso

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/loginoidc/pkg/httputil"
	"github.com/platinummonkey/loginoidc/pkg/session"
	"github.com/platinummonkey/loginoidc/pkg/settings"
)

type httpEnv struct {
	*testEnv
	server *httptest.Server
	client *http.Client
}

func newHTTPEnv(t *testing.T, mutate func(*settings.Settings)) *httpEnv {
	t.Helper()
	env := newTestEnv(t, mutate, nil)

	sessions := session.NewManager(session.NewMemoryStore(100, time.Hour), session.ManagerConfig{
		CookieName: "sid",
		TTL:        time.Hour,
	})
	router := mux.NewRouter()
	NewHandlers(env.controller, sessions, testBaseURL).RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &httpEnv{testEnv: env, server: server, client: client}
}

func (e *httpEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *httpEnv) post(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := e.client.PostForm(e.server.URL+path, form)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHandlers_SignInFlow(t *testing.T) {
	env := newHTTPEnv(t, func(s *settings.Settings) {
		s.AllowSignup = true
	})

	resp := env.get(t, "/auth/oidc/login-options")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var opts LoginOptions
	decodeJSON(t, resp, &opts)
	assert.True(t, opts.Configured)
	require.NotEmpty(t, opts.Nonce)

	resp = env.post(t, "/auth/oidc/signin", url.Values{FormNonceField: {opts.Nonce}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(location.String(), env.idp.URL()+"/authorize"))
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	resp = env.get(t, CallbackPath+"?provider=oidc&code=C&state="+state)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp = env.get(t, "/auth/oidc/account")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status AccountStatus
	decodeJSON(t, resp, &status)
	assert.True(t, status.Linked)
	assert.Equal(t, "42", status.RemoteUserID)

	resp = env.get(t, "/auth/oidc/confirm-password-options")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.post(t, "/auth/logout", nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, testBaseURL+"/", resp.Header.Get("Location"))

	resp = env.get(t, "/auth/oidc/account")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandlers_ReplayedCallbackIsRejected(t *testing.T) {
	env := newHTTPEnv(t, func(s *settings.Settings) {
		s.AllowSignup = true
		s.DisableDirectInitiation = false
	})

	resp := env.get(t, "/auth/oidc/signin")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	callback := CallbackPath + "?provider=oidc&code=C&state=" + location.Query().Get("state")

	resp = env.get(t, callback)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	resp = env.get(t, callback)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	var body httputil.ErrorResponse
	decodeJSON(t, resp, &body)
	assert.Equal(t, "StateMismatch", body.Code)
	assert.NotEmpty(t, body.Error)
}

func TestHandlers_Errors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantCode   string
	}{
		{"direct initiation disabled", http.MethodGet, "/auth/oidc/signin", http.StatusMethodNotAllowed, "MethodNotAllowed"},
		{"initiate without nonce", http.MethodPost, "/auth/oidc/signin", http.StatusForbidden, "InvalidOrMissingCsrfNonce"},
		{"callback without flow", http.MethodGet, CallbackPath + "?provider=oidc&code=C&state=x", http.StatusForbidden, "StateMismatch"},
		{"unlink without nonce", http.MethodPost, "/auth/oidc/unlink", http.StatusForbidden, "InvalidOrMissingCsrfNonce"},
		{"account while anonymous", http.MethodGet, "/auth/oidc/account", http.StatusNotFound, "UserNotFound"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newHTTPEnv(t, nil)

			var resp *http.Response
			if tt.method == http.MethodPost {
				resp = env.post(t, tt.path, url.Values{})
			} else {
				resp = env.get(t, tt.path)
			}
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			var body httputil.ErrorResponse
			decodeJSON(t, resp, &body)
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}

func TestHandlers_NotConfigured(t *testing.T) {
	env := newHTTPEnv(t, func(s *settings.Settings) {
		s.ClientID = ""
	})

	resp := env.get(t, "/auth/oidc/login-options")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var opts LoginOptions
	decodeJSON(t, resp, &opts)
	assert.False(t, opts.Configured)

	resp = env.post(t, "/auth/oidc/signin", url.Values{FormNonceField: {opts.Nonce}})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandlers_UnknownRoute(t *testing.T) {
	env := newHTTPEnv(t, nil)
	req, err := http.NewRequest(http.MethodDelete, env.server.URL+"/auth/oidc/unlink", nil)
	require.NoError(t, err)
	resp, err := env.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// expiringStore fails saves made on a finished context, as Redis does
type expiringStore struct {
	session.Store
}

func (s expiringStore) Save(ctx context.Context, sess *session.Session, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.Save(ctx, sess, ttl)
}

func TestHandlers_CommitSurvivesRequestDeadline(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	store := session.NewMemoryStore(10, time.Hour)
	sessions := session.NewManager(expiringStore{store}, session.ManagerConfig{CookieName: "sid", TTL: time.Hour})
	router := mux.NewRouter()
	NewHandlers(env.controller, sessions, testBaseURL).RegisterRoutes(router)

	sess := session.New()
	sess.ID = "flow-session"
	sess.OIDC.State = "0123456789abcdef0123456789abcdef"
	require.NoError(t, store.Save(context.Background(), sess, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, CallbackPath+"?provider=oidc&code=C&state="+sess.OIDC.State, nil).WithContext(ctx)
	req.AddCookie(&http.Cookie{Name: "sid", Value: sess.ID})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.NotEqual(t, http.StatusInternalServerError, rec.Code)
	assert.NotEqual(t, http.StatusFound, rec.Code)

	stored, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.OIDC.State, "consumed state is persisted")
}
