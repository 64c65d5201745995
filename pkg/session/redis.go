package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "loginoidc:session:"

// RedisStore keeps sessions as JSON values with a TTL
type RedisStore struct {
	client *redis.Client
}

// NewRedisClient connects to redisURL and verifies the connection
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// NewRedisStore creates a store on an existing client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

// Get loads a session. Corrupt entries are deleted and reported as not found.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	key := redisKey(id)

	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		s.client.Del(ctx, key)
		return nil, ErrNotFound
	}
	sess.ID = id
	if sess.Nonces == nil {
		sess.Nonces = make(map[string]string)
	}
	return &sess, nil
}

// Save writes the session with the given TTL
func (s *RedisStore) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(sess.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes a session; deleting an unknown id is not an error
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, redisKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
