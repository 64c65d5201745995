package sso

import (
	"time"

	"github.com/platinummonkey/loginoidc/pkg/users"
)

// ProviderOIDC is the key of the generic OpenID Connect / OAuth2 provider
const ProviderOIDC = "oidc"

// FormNonceField is the form field carrying the anti-CSRF nonce, and
// NonceName the session slot it is issued under.
const (
	FormNonceField = "form_nonce"
	NonceName      = "loginoidc"
)

// LoginMode selects how the session bridge authenticates a resolved user
type LoginMode string

const (
	// LoginModeForce signs the user in directly, creating an auth token if needed
	LoginModeForce LoginMode = "force"
	// LoginModeToken signs the user in with the auth token already on record
	LoginModeToken LoginMode = "token"
)

// AuthResult is the authentication code recorded for an established session
type AuthResult string

const (
	AuthSuccess          AuthResult = "Success"
	AuthSuccessSuperUser AuthResult = "SuccessSuperUser"
)

// AccountLink ties a local user to one remote identity of a provider
type AccountLink struct {
	LocalUser    string    `json:"localUser"`
	RemoteUserID string    `json:"remoteUserId"`
	Provider     string    `json:"provider"`
	ConnectedAt  time.Time `json:"connectedAt"`
}

// TokenSet holds the tokens returned by the token endpoint
type TokenSet struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
}

// Identity is what the userinfo endpoint says about the remote user
type Identity struct {
	Subject string
	Email   string
	Claims  map[string]interface{}
}

// ResolvedIdentity is the remote identity together with the local user it is
// linked to, if any.
type ResolvedIdentity struct {
	Identity
	Provider string
	User     *users.User
}

// InitiateRequest carries the parts of an initiate request the flow needs
type InitiateRequest struct {
	Method  string
	Nonce   string
	BaseURL string
}

// CallbackRequest carries the callback query parameters
type CallbackRequest struct {
	State    string
	Code     string
	Provider string
	// Error and ErrorDescription are set when the provider refused the request
	Error            string
	ErrorDescription string
	BaseURL          string
}

// Result tells the HTTP layer how to answer a completed flow step
type Result struct {
	Redirect  string
	NoContent bool
	// Outcome names what happened, for logs and metrics
	Outcome string
}

// LoginOptions is the read model for rendering the remote sign-in button
type LoginOptions struct {
	Caption           string `json:"caption"`
	Nonce             string `json:"nonce"`
	DirectInitiation  bool   `json:"directInitiation"`
	HidePasswordLogin bool   `json:"hidePasswordLogin"`
	Configured        bool   `json:"configured"`
}

// AccountStatus is the read model for the account security page
type AccountStatus struct {
	Linked       bool   `json:"linked"`
	RemoteUserID string `json:"remoteUserId,omitempty"`
	Nonce        string `json:"nonce"`
}

// Flow outcomes
const (
	OutcomeRedirected  = "redirected"
	OutcomeSignedIn    = "signed_in"
	OutcomeSignedUp    = "signed_up"
	OutcomeAutoLinked  = "auto_linked"
	OutcomeLinked      = "linked"
	OutcomeReconfirmed = "reconfirmed"
	OutcomeUnlinked    = "unlinked"
	OutcomeLoggedOut   = "logged_out"
)
