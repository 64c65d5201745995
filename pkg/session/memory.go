package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore keeps sessions in a bounded in-process LRU. It suits single
// instance deployments and tests; sessions do not survive a restart.
type MemoryStore struct {
	cache *expirable.LRU[string, memoryEntry]
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryStore creates a store holding at most size sessions. maxTTL caps
// every entry's lifetime; Save may request a shorter one.
func NewMemoryStore(size int, maxTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: expirable.NewLRU[string, memoryEntry](size, nil, maxTTL),
	}
}

// Get returns a copy of the stored session
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	entry, ok := s.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	if time.Now().After(entry.expiresAt) {
		s.cache.Remove(id)
		return nil, ErrNotFound
	}

	var sess Session
	if err := json.Unmarshal(entry.data, &sess); err != nil {
		s.cache.Remove(id)
		return nil, ErrNotFound
	}
	sess.ID = id
	if sess.Nonces == nil {
		sess.Nonces = make(map[string]string)
	}
	return &sess, nil
}

// Save stores a serialized copy so later mutations of sess are not shared
func (s *MemoryStore) Save(_ context.Context, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	s.cache.Add(sess.ID, memoryEntry{data: data, expiresAt: time.Now().Add(ttl)})
	return nil
}

// Delete removes a session; deleting an unknown id is not an error
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.cache.Remove(id)
	return nil
}

// Len returns the number of stored sessions, including expired ones not yet evicted
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}
