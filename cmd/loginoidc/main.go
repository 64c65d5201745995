package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/loginoidc/pkg/api"
	"github.com/platinummonkey/loginoidc/pkg/config"
	"github.com/platinummonkey/loginoidc/pkg/observability"
	"github.com/platinummonkey/loginoidc/pkg/session"
	"github.com/platinummonkey/loginoidc/pkg/settings"
	"github.com/platinummonkey/loginoidc/pkg/sso"
	"github.com/platinummonkey/loginoidc/pkg/storage/postgres"
	"github.com/platinummonkey/loginoidc/pkg/users"
)

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "Apply database migrations and exit")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.SetLevel(logrusLevel(cfg.Observability.LogLevel))

	if err := run(context.Background(), cfg, log, *migrateOnly); err != nil {
		log.Fatalf("loginoidc exited: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger, migrateOnly bool) error {
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	db, err := postgres.Open(ctx, postgres.ConnectionConfig{
		URL:         cfg.Database.PostgresURL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		return err
	}
	log.Info("Connected to PostgreSQL")

	if cfg.Database.AutoMigrate || migrateOnly {
		if err := postgres.Migrate(ctx, db, logger); err != nil {
			db.Close()
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("Database schema is up to date")
	}
	if migrateOnly {
		return db.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	tp, err := observability.InitTracing(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		// tracing is optional; keep serving without it
		log.WithError(err).Warn("Failed to initialize tracing")
	}

	store, redisClient, err := newSessionStore(ctx, cfg.Session, metrics)
	if err != nil {
		db.Close()
		return err
	}
	log.WithField("store", cfg.Session.Store).Info("Session store ready")
	sessions := session.NewManager(store, session.ManagerConfig{
		CookieName:    cfg.Session.CookieName,
		Secure:        cfg.Session.CookieSecure,
		TTL:           cfg.Session.TTL,
		RememberMeTTL: cfg.Session.RememberMeTTL,
	})

	settingsProvider, err := settings.NewFileProvider(cfg.Settings.File, logger)
	if err != nil {
		db.Close()
		return err
	}
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if cfg.Settings.Watch {
		go func() {
			defer observability.RecoverPanic(logger, "settings watcher")
			if err := settingsProvider.Watch(watchCtx); err != nil {
				logger.WithError(err).Error("Settings watcher stopped")
			}
		}()
	}

	providerClient := &http.Client{
		Timeout:   cfg.Provider.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	providers, err := sso.NewRegistry(sso.NewOAuth2Provider(providerClient, metrics))
	if err != nil {
		db.Close()
		return err
	}

	userStore := users.NewPostgresStore(db)
	controller, err := sso.NewController(sso.Dependencies{
		Settings:   settingsProvider,
		Providers:  providers,
		Discoverer: sso.NewDiscoverer(providerClient, cfg.Provider.DiscoveryTTL, metrics),
		Links:      sso.NewSQLLinkStore(db),
		Users:      userStore,
		Creator:    userStore,
		Metrics:    metrics,
	}, sso.Config{
		HomePath:         cfg.Paths.Home,
		SecurityPath:     cfg.Paths.AccountSecurity,
		LogoutLandingURL: cfg.Paths.LogoutLandingURL,
		LoginMode:        sso.LoginMode(cfg.Session.LoginMode),
	})
	if err != nil {
		db.Close()
		return err
	}

	deps := api.Dependencies{
		Logger:  logger,
		Health:  observability.NewHealthChecker(db, redisClient, cfg.Observability.OTelServiceVersion),
		Metrics: metrics,
	}
	if cfg.Observability.MetricsEnabled {
		deps.Gatherer = registry
	}
	server := api.NewServer(deps, api.Config{RequestTimeout: cfg.Server.RequestTimeout})
	server.RegisterRoutes(sso.NewHandlers(controller, sessions, cfg.Server.BaseURL))

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("database", func(context.Context) error { return db.Close() })
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("settings watcher", func(context.Context) error {
		stopWatch()
		return nil
	})
	if tp != nil {
		shutdown.Register("tracer provider", tp.Shutdown)
	}

	waitCtx, cancelWait := context.WithCancel(ctx)
	defer cancelWait()

	var serveErr error
	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		log.WithField("addr", httpServer.Addr).Info("Starting loginoidc")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
			cancelWait()
		}
	}()

	if err := shutdown.WaitForSignal(waitCtx); err != nil {
		return err
	}
	<-serveDone
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	log.Info("loginoidc stopped")
	return nil
}

// newSessionStore builds the configured session store. The Redis client is
// returned as well so health checks can probe it; it is nil for the memory
// store.
func newSessionStore(ctx context.Context, cfg config.SessionConfig, metrics *observability.Metrics) (session.Store, *redis.Client, error) {
	switch cfg.Store {
	case "memory":
		return session.Instrument(session.NewMemoryStore(cfg.MemoryMax, cfg.RememberMeTTL), "memory", metrics), nil, nil
	default:
		client, err := session.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return session.Instrument(session.NewRedisStore(client), "redis", metrics), client, nil
	}
}

func logrusLevel(level observability.LogLevel) logrus.Level {
	switch level {
	case observability.DebugLevel:
		return logrus.DebugLevel
	case observability.WarnLevel:
		return logrus.WarnLevel
	case observability.ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
