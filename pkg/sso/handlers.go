package sso

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/loginoidc/pkg/httputil"
	"github.com/platinummonkey/loginoidc/pkg/observability"
	"github.com/platinummonkey/loginoidc/pkg/session"
)

// sessionStoreTimeout bounds saving or deleting the session at the end of a request
const sessionStoreTimeout = 5 * time.Second

// Handlers exposes the Controller over HTTP
type Handlers struct {
	controller *Controller
	sessions   *session.Manager
	baseURL    string
}

// NewHandlers creates handlers. When baseURL is empty the callback URL is
// derived from each request.
func NewHandlers(controller *Controller, sessions *session.Manager, baseURL string) *Handlers {
	return &Handlers{
		controller: controller,
		sessions:   sessions,
		baseURL:    baseURL,
	}
}

// RegisterRoutes registers the sign-in routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/oidc/signin", h.initiate).Methods("GET", "POST")
	router.HandleFunc(CallbackPath, h.callback).Methods("GET")
	router.HandleFunc("/auth/oidc/unlink", h.unlink).Methods("POST")
	router.HandleFunc("/auth/logout", h.logout).Methods("GET", "POST")

	router.HandleFunc("/auth/oidc/login-options", h.loginOptions).Methods("GET")
	router.HandleFunc("/auth/oidc/account", h.account).Methods("GET")
	router.HandleFunc("/auth/oidc/confirm-password-options", h.confirmPasswordOptions).Methods("GET")
}

// initiate handles GET|POST /auth/oidc/signin
func (h *Handlers) initiate(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.load(w, r)
	if !ok {
		return
	}

	target, err := h.controller.Initiate(r.Context(), sess, InitiateRequest{
		Method:  r.Method,
		Nonce:   httputil.FormValue(r, FormNonceField),
		BaseURL: h.requestBaseURL(r),
	})
	h.respond(w, r, sess, &Result{Redirect: target}, err)
}

// callback handles GET /auth/oidc/callback
func (h *Handlers) callback(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.load(w, r)
	if !ok {
		return
	}

	res, err := h.controller.Callback(r.Context(), sess, CallbackRequest{
		State:            httputil.QueryValue(r, "state"),
		Code:             httputil.QueryValue(r, "code"),
		Provider:         httputil.QueryValue(r, "provider"),
		Error:            httputil.QueryValue(r, "error"),
		ErrorDescription: httputil.QueryValue(r, "error_description"),
		BaseURL:          h.requestBaseURL(r),
	})
	h.respond(w, r, sess, res, err)
}

// unlink handles POST /auth/oidc/unlink
func (h *Handlers) unlink(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.load(w, r)
	if !ok {
		return
	}

	res, err := h.controller.Unlink(r.Context(), sess, httputil.FormValue(r, FormNonceField))
	h.respond(w, r, sess, res, err)
}

// logout handles GET|POST /auth/logout
func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.load(w, r)
	if !ok {
		return
	}

	res, err := h.controller.Logout(r.Context(), sess)
	if err != nil {
		h.respond(w, r, sess, nil, err)
		return
	}

	ctx, cancel := storeContext(r)
	defer cancel()
	if err := h.sessions.Destroy(ctx, w, sess); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to destroy session")
		httputil.WriteInternalError(w)
		return
	}
	httputil.Redirect(w, r, res.Redirect)
}

// loginOptions handles GET /auth/oidc/login-options
func (h *Handlers) loginOptions(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.load(w, r)
	if !ok {
		return
	}

	opts, err := h.controller.LoginOptions(sess)
	h.respondJSON(w, r, sess, opts, err)
}

// account handles GET /auth/oidc/account
func (h *Handlers) account(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.load(w, r)
	if !ok {
		return
	}

	status, err := h.controller.AccountStatus(r.Context(), sess)
	h.respondJSON(w, r, sess, status, err)
}

// confirmPasswordOptions handles GET /auth/oidc/confirm-password-options
func (h *Handlers) confirmPasswordOptions(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.load(w, r)
	if !ok {
		return
	}

	opts, err := h.controller.ConfirmPasswordOptions(r.Context(), sess)
	if err == nil && opts == nil {
		if h.commit(w, r, sess) {
			httputil.WriteNoContent(w)
		}
		return
	}
	h.respondJSON(w, r, sess, opts, err)
}

func (h *Handlers) load(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := h.sessions.Load(r)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to load session")
		httputil.WriteInternalError(w)
		return nil, false
	}
	return sess, true
}

// commit saves the session before anything is written, since it sets a cookie.
// It runs on its own deadline so that a request that timed out waiting on the
// provider still persists the consumed state.
func (h *Handlers) commit(w http.ResponseWriter, r *http.Request, sess *session.Session) bool {
	ctx, cancel := storeContext(r)
	defer cancel()
	if err := h.sessions.Commit(ctx, w, sess); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to save session")
		httputil.WriteInternalError(w)
		return false
	}
	return true
}

// respond commits the session even on failure, so a consumed state or nonce
// stays consumed.
func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, sess *session.Session, res *Result, err error) {
	if !h.commit(w, r, sess) {
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.NoContent {
		httputil.WriteNoContent(w)
		return
	}
	httputil.Redirect(w, r, res.Redirect)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, r *http.Request, sess *session.Session, data interface{}, err error) {
	if !h.commit(w, r, sess) {
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, data)
}

func storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), sessionStoreTimeout)
}

func (h *Handlers) requestBaseURL(r *http.Request) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	return httputil.BaseURL(r)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteCodedError(w, r, HTTPStatus(err), Code(err), UserMessage(err))
}
