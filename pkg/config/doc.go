// Package config provides process configuration from environment variables.
//
// # Configuration Structure
//
// Server settings:
//
//	LOGINOIDC_HOST="0.0.0.0"
//	LOGINOIDC_PORT="8080"
//	LOGINOIDC_BASE_URL="https://analytics.example.com"
//	LOGINOIDC_REQUEST_TIMEOUT="25s"
//
// Pages the sign-in flow redirects to:
//
//	LOGINOIDC_HOME_PATH="/"
//	LOGINOIDC_SECURITY_PATH="/account/security"
//	LOGINOIDC_LOGOUT_LANDING_URL="https://analytics.example.com/"
//
// Storage and sessions:
//
//	LOGINOIDC_POSTGRES_URL="postgres://loginoidc@db/loginoidc?sslmode=require"
//	LOGINOIDC_AUTO_MIGRATE="true"
//	LOGINOIDC_SESSION_STORE="redis"  # redis, memory
//	LOGINOIDC_REDIS_URL="redis://redis:6379/0"
//	LOGINOIDC_SESSION_TTL="24h"
//	LOGINOIDC_REMEMBER_ME_TTL="336h"
//	LOGINOIDC_LOGIN_MODE="force"     # force, token
//
// Identity provider client:
//
//	LOGINOIDC_PROVIDER_TIMEOUT="10s"
//	LOGINOIDC_DISCOVERY_TTL="1h"
//	LOGINOIDC_SETTINGS_FILE="/etc/loginoidc/settings.yaml"
//	LOGINOIDC_SETTINGS_WATCH="true"
//
// Observability:
//
//	LOGINOIDC_LOG_LEVEL="info"
//	LOGINOIDC_METRICS_ENABLED="true"
//	LOGINOIDC_OTEL_ENABLED="false"
//	LOGINOIDC_OTEL_ENDPOINT="otel-collector:4317"
//
// The sign-in policy (client credentials, endpoints, signup rules) is not part
// of this package; see package settings.
package config
