package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ManagerConfig controls the session cookie and lifetimes
type ManagerConfig struct {
	CookieName    string
	CookiePath    string
	Secure        bool
	TTL           time.Duration
	RememberMeTTL time.Duration
}

// Manager binds sessions in a Store to the session cookie
type Manager struct {
	store Store
	cfg   ManagerConfig
}

// NewManager creates a manager; zero config values get defaults
func NewManager(store Store, cfg ManagerConfig) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = "loginoidc_session"
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.RememberMeTTL < cfg.TTL {
		cfg.RememberMeTTL = cfg.TTL
	}
	return &Manager{store: store, cfg: cfg}
}

// Load returns the session named by the request cookie, or a new anonymous
// session when there is no cookie or the id is unknown.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return New(), nil
	}

	sess, err := m.store.Get(r.Context(), cookie.Value)
	if errors.Is(err, ErrNotFound) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return sess, nil
}

// Commit persists sess and sets the cookie. A session that has no id yet or
// asked for rotation gets a new id, and the old entry is removed.
func (m *Manager) Commit(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess.ID == "" || sess.rotate {
		oldID := sess.ID
		id, err := newID()
		if err != nil {
			return err
		}
		sess.ID = id
		sess.rotate = false
		if oldID != "" {
			if err := m.store.Delete(ctx, oldID); err != nil {
				return fmt.Errorf("failed to delete rotated session: %w", err)
			}
		}
	}

	ttl := m.cfg.TTL
	if sess.RememberMe {
		ttl = m.cfg.RememberMeTTL
	}
	if err := m.store.Save(ctx, sess, ttl); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	cookie := m.cookie(sess.ID)
	if sess.RememberMe {
		cookie.MaxAge = int(ttl.Seconds())
	}
	http.SetCookie(w, cookie)
	return nil
}

// Destroy deletes the session and expires the cookie
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess.ID != "" {
		if err := m.store.Delete(ctx, sess.ID); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
	}
	cookie := m.cookie("")
	cookie.MaxAge = -1
	http.SetCookie(w, cookie)
	return nil
}

// The callback arrives as a top-level cross-site GET from the provider, so
// the cookie must be SameSite=Lax rather than Strict.
func (m *Manager) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    value,
		Path:     m.cfg.CookiePath,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
