package session

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidNonce is returned when a form nonce is missing, unknown or wrong
var ErrInvalidNonce = errors.New("invalid or missing form nonce")

// FlowState is the remote sign-in state carried between the initiate and
// callback requests, plus what logout needs afterwards.
type FlowState struct {
	// State is the anti-replay token of the authorization request in flight.
	State               string `json:"state,omitempty"`
	RemoteAuthenticated bool   `json:"remote_authenticated,omitempty"`
	IDToken             string `json:"id_token,omitempty"`
	RefreshToken        string `json:"refresh_token,omitempty"`
}

// Session is the server-side state of one user agent
type Session struct {
	ID string `json:"-"`

	Login              string    `json:"login,omitempty"`
	TokenAuth          string    `json:"token_auth,omitempty"`
	SuperUser          bool      `json:"superuser,omitempty"`
	TwoFactorVerified  bool      `json:"two_factor_verified,omitempty"`
	PasswordVerifiedAt time.Time `json:"password_verified_at,omitempty"`
	RememberMe         bool      `json:"remember_me,omitempty"`

	Nonces map[string]string `json:"nonces,omitempty"`
	OIDC   FlowState         `json:"oidc"`

	CreatedAt time.Time `json:"created_at"`

	rotate bool
}

// New returns an anonymous session that has not been stored yet
func New() *Session {
	return &Session{
		Nonces:    make(map[string]string),
		CreatedAt: time.Now().UTC(),
	}
}

// IsAnonymous reports whether nobody is signed in on this session
func (s *Session) IsAnonymous() bool {
	return s.Login == ""
}

// Rotate requests a fresh session id on the next commit. Call it whenever the
// authenticated identity changes.
func (s *Session) Rotate() {
	s.rotate = true
}

// NeedsRotation reports whether Rotate was called since the last commit
func (s *Session) NeedsRotation() bool {
	return s.rotate
}

// IssueNonce creates a new single-use form nonce under name, replacing any
// previous one.
func (s *Session) IssueNonce(name string) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(b)
	if s.Nonces == nil {
		s.Nonces = make(map[string]string)
	}
	s.Nonces[name] = nonce
	return nonce, nil
}

// ConsumeNonce checks value against the nonce stored under name. The stored
// nonce is removed whether or not it matched.
func (s *Session) ConsumeNonce(name, value string) error {
	expected, ok := s.Nonces[name]
	delete(s.Nonces, name)
	if !ok || value == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(value)) != 1 {
		return ErrInvalidNonce
	}
	return nil
}

func newID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
