package sso

import (
	"errors"
	"net/http"
)

// Flow errors. Every one aborts the current request only; the user has to
// start again from the sign-in button.
var (
	ErrNotConfigured                   = errors.New("remote sign-in is not configured")
	ErrMethodNotAllowed                = errors.New("method not allowed")
	ErrInvalidCSRFNonce                = errors.New("invalid or missing form nonce")
	ErrStateMismatch                   = errors.New("state mismatch")
	ErrUnknownProvider                 = errors.New("unknown provider")
	ErrInvalidProviderResponse         = errors.New("invalid provider response")
	ErrProviderUnreachable             = errors.New("provider unreachable")
	ErrUserNotFound                    = errors.New("user not found")
	ErrSignupDisabled                  = errors.New("user not found and signup disabled")
	ErrUserNotFoundAndNoEmail          = errors.New("user not found and no email claim")
	ErrAllowedSignupDomainsDenied      = errors.New("signup domain not allowed")
	ErrSuperUserOauthDisabled          = errors.New("remote sign-in disabled for superusers")
	ErrAlreadyLinkedToDifferentAccount = errors.New("remote identity linked to a different account")
	ErrLoginTaken                      = errors.New("a local account with this login already exists")
	ErrSessionAlreadyEstablished       = errors.New("session already established")
)

// Link store errors
var (
	ErrLinkNotFound = errors.New("account link not found")
	ErrLinkExists   = errors.New("account link already exists")
)

type errorInfo struct {
	err     error
	code    string
	status  int
	message string
}

var taxonomy = []errorInfo{
	{ErrNotConfigured, "NotConfigured", http.StatusServiceUnavailable,
		"Remote sign-in has not been configured yet. Please contact your administrator."},
	{ErrMethodNotAllowed, "MethodNotAllowed", http.StatusMethodNotAllowed,
		"This sign-in request must be submitted from the login form."},
	{ErrInvalidCSRFNonce, "InvalidOrMissingCsrfNonce", http.StatusForbidden,
		"The form has expired. Please reload the page and try again."},
	{ErrStateMismatch, "StateMismatch", http.StatusForbidden,
		"The sign-in request could not be verified. Please start the sign-in again."},
	{ErrUnknownProvider, "UnknownProvider", http.StatusBadRequest,
		"The sign-in response came from an unknown provider."},
	{ErrInvalidProviderResponse, "InvalidProviderResponse", http.StatusBadGateway,
		"The identity provider returned an unexpected response."},
	{ErrProviderUnreachable, "ProviderUnreachable", http.StatusGatewayTimeout,
		"The identity provider could not be reached. Please try again later."},
	{ErrUserNotFound, "UserNotFound", http.StatusNotFound,
		"No matching account was found."},
	{ErrSignupDisabled, "SignupDisabled", http.StatusForbidden,
		"No account is linked to this identity and self sign-up is disabled."},
	{ErrUserNotFoundAndNoEmail, "UserNotFoundAndNoEmail", http.StatusForbidden,
		"No account is linked to this identity and the provider did not share an e-mail address."},
	{ErrAllowedSignupDomainsDenied, "AllowedSignupDomainsDenied", http.StatusForbidden,
		"Sign-up is not allowed for your e-mail domain."},
	{ErrSuperUserOauthDisabled, "SuperUserOauthDisabled", http.StatusForbidden,
		"Superusers must sign in with their password."},
	{ErrAlreadyLinkedToDifferentAccount, "AlreadyLinkedToDifferentAccount", http.StatusForbidden,
		"This remote identity is already linked to a different account."},
	{ErrLoginTaken, "LoginTaken", http.StatusConflict,
		"An account with this e-mail address already exists. Sign in with your password and link it from the security page."},
	{ErrSessionAlreadyEstablished, "SessionAlreadyEstablished", http.StatusConflict,
		"You are already signed in."},
}

func lookup(err error) (errorInfo, bool) {
	for _, info := range taxonomy {
		if errors.Is(err, info.err) {
			return info, true
		}
	}
	return errorInfo{}, false
}

// Code returns the taxonomy name of err, or "InternalError"
func Code(err error) string {
	if info, ok := lookup(err); ok {
		return info.code
	}
	return "InternalError"
}

// HTTPStatus maps err to the status code of the response
func HTTPStatus(err error) int {
	if info, ok := lookup(err); ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// UserMessage returns a message that is safe to show the user. It never
// includes the wrapped cause.
func UserMessage(err error) string {
	if info, ok := lookup(err); ok {
		return info.message
	}
	return "Something went wrong while signing in. Please try again."
}
