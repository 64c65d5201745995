// Package sso implements federated sign-in through an OpenID Connect / OAuth2
// authorization code flow and the account links that tie a local user to a
// remote identity.
//
// # Flow
//
// Initiate stores a random state in the caller's session and redirects to the
// provider. Callback checks and discards that state, exchanges the code for
// tokens, reads the userinfo claims and resolves a local user:
//
//  1. an existing link for (provider, subject)
//  2. with autoLinking, a local user whose login equals the subject
//  3. otherwise sign-up for anonymous callers, or a new link for signed-in ones
//
// Anonymous callers are then signed in (unless disableSuperuser blocks a
// superuser). A signed-in caller resolving to their own account re-confirms
// their identity, which satisfies a pending password confirmation.
//
// # Links
//
// account_link allows one row per (provider, remote id) and one per
// (provider, local user). Concurrent first links race on those constraints;
// the loser sees ErrLinkExists and carries on as if it had won.
//
// # Providers
//
// The state machine talks to providers only through the Provider interface.
// OAuth2Provider covers any OAuth2 service with a userinfo endpoint (GitHub by
// default); Discoverer fills its endpoints from an OpenID issuer. ID token
// signatures are not verified: tokens and claims are trusted because they come
// straight from the provider over TLS.
//
// # HTTP
//
//	GET|POST /auth/oidc/signin                    start sign-in
//	GET      /auth/oidc/callback                  provider callback
//	POST     /auth/oidc/unlink                    remove the caller's link
//	GET|POST /auth/logout                         logout, with end-session redirect
//	GET      /auth/oidc/login-options             login button read model
//	GET      /auth/oidc/account                   link status read model
//	GET      /auth/oidc/confirm-password-options  password confirmation read model
//
// Errors are rendered as {"error", "code", "request_id"} with the status from
// HTTPStatus.
package sso
