package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"
)

// HealthChecker reports on the service's backing stores
type HealthChecker struct {
	db      *sql.DB
	redis   *redis.Client
	version string
}

// NewHealthChecker creates a new health checker. Either dependency may be nil
// when the deployment does not use it.
func NewHealthChecker(db *sql.DB, redis *redis.Client, version string) *HealthChecker {
	return &HealthChecker{
		db:      db,
		redis:   redis,
		version: version,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Pool      *PoolStats    `json:"pool,omitempty"`
}

// PoolStats reports database connection pool usage
type PoolStats struct {
	MaxOpen   int   `json:"max_open"`
	Open      int   `json:"open"`
	InUse     int   `json:"in_use"`
	Idle      int   `json:"idle"`
	WaitCount int64 `json:"wait_count"`
}

func poolStats(db *sql.DB) *PoolStats {
	s := db.Stats()
	return &PoolStats{
		MaxOpen:   s.MaxOpenConnections,
		Open:      s.OpenConnections,
		InUse:     s.InUse,
		Idle:      s.Idle,
		WaitCount: s.WaitCount,
	}
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Liveness always returns 200 while the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness checks all dependencies; 503 only when unhealthy
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}

// Check probes every configured dependency concurrently
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus),
	}

	var mu sync.Mutex
	record := func(name string, dep DependencyStatus) {
		mu.Lock()
		defer mu.Unlock()
		status.Dependencies[name] = dep
	}

	g, gctx := errgroup.WithContext(ctx)
	if h.db != nil {
		g.Go(func() error {
			record("database", h.checkDatabase(gctx))
			return nil
		})
	}
	if h.redis != nil {
		g.Go(func() error {
			record("redis", h.checkRedis(gctx))
			return nil
		})
	}
	_ = g.Wait()

	if db, ok := status.Dependencies["database"]; ok && db.Status != StatusHealthy {
		status.Status = db.Status
	}
	// Redis problems degrade, never fail, readiness.
	if rd, ok := status.Dependencies["redis"]; ok && rd.Status != StatusHealthy && status.Status == StatusHealthy {
		status.Status = StatusDegraded
	}

	return status
}

func (h *HealthChecker) checkDatabase(ctx context.Context) DependencyStatus {
	start := time.Now()
	status := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: start,
	}

	err := h.db.PingContext(ctx)
	status.Latency = time.Since(start)
	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
		return status
	}

	var one int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		status.Status = StatusUnhealthy
		status.Message = "query failed: " + err.Error()
		return status
	}

	status.Pool = poolStats(h.db)
	if status.Pool.MaxOpen > 0 && status.Pool.Open >= status.Pool.MaxOpen {
		status.Status = StatusDegraded
		status.Message = "connection pool exhausted"
	}

	return status
}

func (h *HealthChecker) checkRedis(ctx context.Context) DependencyStatus {
	start := time.Now()
	status := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: start,
	}

	err := h.redis.Ping(ctx).Err()
	status.Latency = time.Since(start)
	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
	}

	return status
}
