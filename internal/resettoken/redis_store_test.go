package resettoken

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skip("Redis not available, skipping integration test")
	}

	t.Cleanup(func() {
		client.FlushDB(ctx)
		_ = client.Close()
	})
	return client
}

func TestRedisStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T, clock *fakeClock) Store {
		client := newTestRedis(t)
		client.FlushDB(context.Background())

		store, err := NewRedisStore(client, WithClock(clock.Now))
		require.NoError(t, err)
		return store
	})
}

func TestRedisStoreRequiresClient(t *testing.T) {
	_, err := NewRedisStore(nil)
	require.Error(t, err)
}

func TestRedisStoreSweepIsNoop(t *testing.T) {
	client := newTestRedis(t)
	store, err := NewRedisStore(client)
	require.NoError(t, err)

	removed, err := store.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, removed)
	require.NoError(t, store.Ping(context.Background()))
}

func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStorePutReturnsWriteFailure(t *testing.T) {
	// best-effort durability does not cover the only copy of a token
	store, err := NewRedisStore(unreachableRedis(t))
	require.NoError(t, err)

	err = store.Put(context.Background(), Token{Token: "lost", Email: "a@example.com", CustomerID: "c1", IssuedAt: time.Now()})
	require.ErrorIs(t, err, ErrPersist)
}

func TestRedisStorePutRejectsExpiredToken(t *testing.T) {
	clock := newFakeClock()
	store, err := NewRedisStore(unreachableRedis(t), WithClock(clock.Now))
	require.NoError(t, err)

	err = store.Put(context.Background(), Token{
		Token:      "stale",
		Email:      "a@example.com",
		CustomerID: "c1",
		IssuedAt:   clock.Now().Add(-DefaultTTL - time.Millisecond),
	})
	require.ErrorIs(t, err, ErrExpired)
}
