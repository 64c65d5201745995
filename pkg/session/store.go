package session

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/loginoidc/pkg/observability"
)

// ErrNotFound is returned by a Store when the id is unknown or expired
var ErrNotFound = errors.New("session not found")

// Store persists sessions by id
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// instrumentedStore counts store operations per backend
type instrumentedStore struct {
	next    Store
	backend string
	metrics *observability.Metrics
}

// Instrument wraps store so every operation is counted in metrics
func Instrument(store Store, backend string, metrics *observability.Metrics) Store {
	if metrics == nil {
		return store
	}
	return &instrumentedStore{next: store, backend: backend, metrics: metrics}
}

func (s *instrumentedStore) record(op string, err error) {
	status := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "miss"
	case err != nil:
		status = "error"
	}
	s.metrics.SessionStoreOperationsTotal.WithLabelValues(op, s.backend, status).Inc()
}

func (s *instrumentedStore) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.next.Get(ctx, id)
	s.record("get", err)
	return sess, err
}

func (s *instrumentedStore) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	err := s.next.Save(ctx, sess, ttl)
	s.record("save", err)
	return err
}

func (s *instrumentedStore) Delete(ctx context.Context, id string) error {
	err := s.next.Delete(ctx, id)
	s.record("delete", err)
	return err
}
