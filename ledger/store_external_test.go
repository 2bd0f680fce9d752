package ledger

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the common Store contract against a live backend
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Clear(ctx))

	key := Hash("txn-external")
	ok, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, key))
	require.NoError(t, store.Put(ctx, key))

	ok, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Clear(ctx))
	ok, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("PURCHASING_REDIS_ADDR")
	if addr == "" {
		t.Skip("PURCHASING_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	exerciseStore(t, NewRedisStore(client, WithKeyPrefix("purchasing-test:tx:")))
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("PURCHASING_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PURCHASING_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	store := NewPostgresStore(pool)
	require.NoError(t, store.EnsureSchema(ctx))
	exerciseStore(t, store)
}
