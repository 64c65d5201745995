package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation
const uniqueViolation = "23505"

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// Open opens a pooled connection and verifies it with a ping
func Open(ctx context.Context, config ConnectionConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	configurePool(db, config)

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

func configurePool(db *sql.DB, config ConnectionConfig) {
	if config.MaxConns > 0 {
		db.SetMaxOpenConns(config.MaxConns)
	}
	if config.MinConns > 0 {
		db.SetMaxIdleConns(config.MinConns)
	}
	db.SetConnMaxLifetime(config.MaxLifetime)
	db.SetConnMaxIdleTime(config.MaxIdleTime)
}

// IsUniqueViolation reports whether err is a duplicate key error
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}
