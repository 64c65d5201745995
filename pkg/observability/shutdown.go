package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc releases one resource during shutdown
type ShutdownFunc func(context.Context) error

// ShutdownManager stops the HTTP server and then releases registered
// resources in reverse registration order.
type ShutdownManager struct {
	logger          *Logger
	server          *http.Server
	shutdownFuncs   []namedShutdown
	shutdownTimeout time.Duration
	mu              sync.Mutex
}

type namedShutdown struct {
	name string
	fn   ShutdownFunc
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:          logger,
		server:          server,
		shutdownTimeout: timeout,
	}
}

// Register adds a resource to release on shutdown
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.shutdownFuncs = append(sm.shutdownFuncs, namedShutdown{name: name, fn: fn})
}

// WaitForSignal blocks until SIGINT/SIGTERM or ctx is done, then shuts down
func (sm *ShutdownManager) WaitForSignal(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	sm.logger.Info("Shutdown requested, starting graceful shutdown")
	return sm.Shutdown(context.Background())
}

// Shutdown stops the server and releases every registered resource. All
// resources are attempted even if an earlier one fails.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, sm.shutdownTimeout)
	defer cancel()

	var errs []error

	if sm.server != nil {
		sm.logger.Info("Shutting down HTTP server")
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server shutdown error")
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}

	sm.mu.Lock()
	funcs := append([]namedShutdown(nil), sm.shutdownFuncs...)
	sm.mu.Unlock()

	for i := len(funcs) - 1; i >= 0; i-- {
		f := funcs[i]
		if err := f.fn(ctx); err != nil {
			sm.logger.WithError(err).Errorf("Shutdown of %s failed", f.name)
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
			continue
		}
		sm.logger.Infof("Shutdown of %s complete", f.name)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	sm.logger.Info("Graceful shutdown complete")
	return nil
}
