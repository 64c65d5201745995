// Package settings holds the sign-in policy and provider endpoint configuration.
//
// Settings are read-only to the sign-in flow. A Provider returns an immutable
// snapshot, so one request always sees a consistent view even while a
// FileProvider is reloading its YAML file in the background.
//
// Example settings file:
//
//	authenticationName: "Sign in with Example"
//	issuerUrl: https://id.example.com
//	clientId: loginoidc
//	userinfoIdField: sub
//	allowSignup: true
//	allowedSignupDomains: |
//	  example.com
//	  example.org
package settings
