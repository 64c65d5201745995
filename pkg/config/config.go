package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/loginoidc/pkg/observability"
)

// Config holds all process configuration. Sign-in policy lives in the
// settings file, not here.
type Config struct {
	Server        ServerConfig
	Paths         PathsConfig
	Database      DatabaseConfig
	Session       SessionConfig
	Provider      ProviderConfig
	Settings      SettingsConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	BaseURL         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// PathsConfig holds the application pages the sign-in flow redirects to
type PathsConfig struct {
	Home             string
	AccountSecurity  string
	LogoutLandingURL string
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	PostgresURL string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	AutoMigrate bool
}

// SessionConfig holds server-side session settings
type SessionConfig struct {
	Store         string // "redis" or "memory"
	RedisURL      string
	TTL           time.Duration
	RememberMeTTL time.Duration
	CookieName    string
	CookieSecure  bool
	MemoryMax     int
	LoginMode     string // "force" or "token"
}

// ProviderConfig tunes outbound calls to the identity provider
type ProviderConfig struct {
	Timeout      time.Duration
	DiscoveryTTL time.Duration
}

// SettingsConfig locates the sign-in settings file
type SettingsConfig struct {
	File  string
	Watch bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Paths:         loadPathsConfig(),
		Database:      loadDatabaseConfig(),
		Session:       loadSessionConfig(),
		Provider:      loadProviderConfig(),
		Settings:      loadSettingsConfig(),
		Observability: loadObservabilityConfig(),
	}

	if cfg.Paths.LogoutLandingURL == "" {
		cfg.Paths.LogoutLandingURL = strings.TrimRight(cfg.Server.BaseURL, "/") + cfg.Paths.Home
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("LOGINOIDC_HOST", "0.0.0.0"),
		Port:            getEnv("LOGINOIDC_PORT", "8080"),
		BaseURL:         getEnv("LOGINOIDC_BASE_URL", "http://localhost:8080"),
		ReadTimeout:     getEnvDuration("LOGINOIDC_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("LOGINOIDC_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("LOGINOIDC_IDLE_TIMEOUT", 60*time.Second),
		RequestTimeout:  getEnvDuration("LOGINOIDC_REQUEST_TIMEOUT", 25*time.Second),
		ShutdownTimeout: getEnvDuration("LOGINOIDC_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadPathsConfig() PathsConfig {
	return PathsConfig{
		Home:             getEnv("LOGINOIDC_HOME_PATH", "/"),
		AccountSecurity:  getEnv("LOGINOIDC_SECURITY_PATH", "/account/security"),
		LogoutLandingURL: getEnv("LOGINOIDC_LOGOUT_LANDING_URL", ""),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		PostgresURL: getEnv("LOGINOIDC_POSTGRES_URL", ""),
		MaxConns:    getEnvInt("LOGINOIDC_POSTGRES_MAX_CONNS", 20),
		MinConns:    getEnvInt("LOGINOIDC_POSTGRES_MIN_CONNS", 2),
		Timeout:     getEnvDuration("LOGINOIDC_POSTGRES_TIMEOUT", 5*time.Second),
		MaxLifetime: getEnvDuration("LOGINOIDC_POSTGRES_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("LOGINOIDC_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
		AutoMigrate: getEnvBool("LOGINOIDC_AUTO_MIGRATE", true),
	}
}

func loadSessionConfig() SessionConfig {
	return SessionConfig{
		Store:         getEnv("LOGINOIDC_SESSION_STORE", "redis"),
		RedisURL:      getEnv("LOGINOIDC_REDIS_URL", "redis://localhost:6379/0"),
		TTL:           getEnvDuration("LOGINOIDC_SESSION_TTL", 24*time.Hour),
		RememberMeTTL: getEnvDuration("LOGINOIDC_REMEMBER_ME_TTL", 14*24*time.Hour),
		CookieName:    getEnv("LOGINOIDC_SESSION_COOKIE", "loginoidc_session"),
		CookieSecure:  getEnvBool("LOGINOIDC_COOKIE_SECURE", true),
		MemoryMax:     getEnvInt("LOGINOIDC_MEMORY_SESSIONS_MAX", 10000),
		LoginMode:     getEnv("LOGINOIDC_LOGIN_MODE", "force"),
	}
}

func loadProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout:      getEnvDuration("LOGINOIDC_PROVIDER_TIMEOUT", 10*time.Second),
		DiscoveryTTL: getEnvDuration("LOGINOIDC_DISCOVERY_TTL", time.Hour),
	}
}

func loadSettingsConfig() SettingsConfig {
	return SettingsConfig{
		File:  getEnv("LOGINOIDC_SETTINGS_FILE", "/etc/loginoidc/settings.yaml"),
		Watch: getEnvBool("LOGINOIDC_SETTINGS_WATCH", true),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLevel(getEnv("LOGINOIDC_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("LOGINOIDC_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("LOGINOIDC_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("LOGINOIDC_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("LOGINOIDC_SERVICE_NAME", "loginoidc"),
		OTelServiceVersion: getEnv("LOGINOIDC_SERVICE_VERSION", "dev"),
		OTelInsecure:       getEnvBool("LOGINOIDC_OTEL_INSECURE", true),
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base URL must be an absolute URL, got %q", c.Server.BaseURL)
	}

	if c.Database.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	switch c.Session.Store {
	case "redis":
		if c.Session.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis session store")
		}
	case "memory":
		if c.Session.MemoryMax <= 0 {
			return fmt.Errorf("memory session store size must be positive")
		}
	default:
		return fmt.Errorf("invalid session store: %s (must be redis or memory)", c.Session.Store)
	}

	switch c.Session.LoginMode {
	case "force", "token":
	default:
		return fmt.Errorf("invalid login mode: %s (must be force or token)", c.Session.LoginMode)
	}

	if c.Session.TTL <= 0 || c.Session.RememberMeTTL < c.Session.TTL {
		return fmt.Errorf("session TTL must be positive and not exceed the remember-me TTL")
	}

	if !strings.HasPrefix(c.Paths.Home, "/") || !strings.HasPrefix(c.Paths.AccountSecurity, "/") {
		return fmt.Errorf("home and account security paths must be absolute paths")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
