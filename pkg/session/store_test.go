package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/loginoidc/pkg/observability"
)

// setupRedisStore starts miniredis and returns a store on it
func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create Redis client: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewRedisStore(client), mr
}

func sampleSession(id string) *Session {
	s := New()
	s.ID = id
	s.Login = "alice"
	s.OIDC = FlowState{State: "abc", RemoteAuthenticated: true, IDToken: "id-token"}
	s.Nonces["loginoidc"] = "n1"
	return s
}

// storeContract runs the behaviour every Store must share
func storeContract(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("missing id", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sampleSession("s1"), time.Hour))

		got, err := store.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "s1", got.ID)
		assert.Equal(t, "alice", got.Login)
		assert.Equal(t, "abc", got.OIDC.State)
		assert.True(t, got.OIDC.RemoteAuthenticated)
		assert.Equal(t, "n1", got.Nonces["loginoidc"])
	})

	t.Run("stored copy is isolated", func(t *testing.T) {
		s := sampleSession("s2")
		require.NoError(t, store.Save(ctx, s, time.Hour))
		s.Login = "mallory"

		got, err := store.Get(ctx, "s2")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Login)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sampleSession("s3"), time.Hour))
		require.NoError(t, store.Delete(ctx, "s3"))
		require.NoError(t, store.Delete(ctx, "s3"))

		_, err := store.Get(ctx, "s3")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRedisStore(t *testing.T) {
	store, _ := setupRedisStore(t)
	storeContract(t, store)
}

func TestRedisStoreTTL(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleSession("ttl"), time.Minute))
	assert.Equal(t, time.Minute, mr.TTL(redisKeyPrefix+"ttl"))

	mr.FastForward(2 * time.Minute)
	_, err := store.Get(ctx, "ttl")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreCorruptEntry(t *testing.T) {
	store, mr := setupRedisStore(t)

	require.NoError(t, mr.Set(redisKeyPrefix+"bad", "{not json"))

	_, err := store.Get(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists(redisKeyPrefix+"bad"), "corrupt entries are removed")
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr := setupRedisStore(t)
	mr.Close()

	_, err := store.Get(context.Background(), "s1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestNewRedisClientInvalidURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not-a-url://")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis URL")
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore(100, time.Hour))
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(100, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleSession("short"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, err := store.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreEviction(t *testing.T) {
	store := NewMemoryStore(2, time.Hour)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Save(ctx, sampleSession(id), time.Hour))
	}

	assert.Equal(t, 2, store.Len())
	_, err := store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound, "least recently used session is evicted")
}

func TestInstrumentedStore(t *testing.T) {
	metrics := observability.NewNopMetrics()
	store := Instrument(NewMemoryStore(10, time.Hour), "memory", metrics)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleSession("m1"), time.Hour))
	_, _ = store.Get(ctx, "m1")
	_, _ = store.Get(ctx, "missing")
	require.NoError(t, store.Delete(ctx, "m1"))

	counter := metrics.SessionStoreOperationsTotal
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("save", "memory", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("get", "memory", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("get", "memory", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("delete", "memory", "ok")))
}

func TestInstrumentNilMetrics(t *testing.T) {
	store := NewMemoryStore(1, time.Hour)
	assert.Same(t, store, Instrument(store, "memory", nil))
}
