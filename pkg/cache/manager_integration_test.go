//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/payload-cache/internal/testutil"
	"github.com/Sternrassler/payload-cache/pkg/cache"
	"github.com/Sternrassler/payload-cache/pkg/payload"
	"github.com/Sternrassler/payload-cache/pkg/query"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	t.Cleanup(func() {
		redisClient.Close()
		_ = container.Terminate(ctx)
	})

	return redisClient
}

func newManager(t *testing.T, redisClient *redis.Client, mock *testutil.MockPayload) *cache.Manager {
	t.Helper()

	cfg := payload.DefaultConfig(mock.URL())
	cfg.Retry.MaxAttempts = 1
	upstream, err := payload.New(cfg, zerolog.Nop())
	require.NoError(t, err)

	manager := cache.NewManager(redisClient, upstream, cache.DefaultConfig(), zerolog.Nop())
	t.Cleanup(func() {
		_ = manager.Shutdown(context.Background())
	})
	return manager
}

// TestFullRequestFlow covers miss, hit and staleness against a real Redis.
func TestFullRequestFlow(t *testing.T) {
	redisClient := setupRedis(t)
	mock := testutil.NewMockPayload()
	defer mock.Close()
	mock.SetResponse("posts", testutil.NewListResponse(`{"id":"1","title":"Hello"}`))

	manager := newManager(t, redisClient, mock)
	ctx := context.Background()
	params := query.Params{}.Add("sort", "-publishedAt").Add("limit", 10)
	key := "payload:posts-sort=-publishedAt&limit=10"

	_, err := manager.FetchWithCache(ctx, "posts", params)
	require.NoError(t, err)
	_, err = manager.FetchWithCache(ctx, "posts", params)
	require.NoError(t, err)
	assert.Equal(t, 1, mock.GetEndpointCount("posts"))

	ttl, err := redisClient.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 2)
	assert.False(t, manager.IsStale(ctx, key, 0))

	// Shorten the TTL as if the entry had been written ten minutes ago.
	require.NoError(t, redisClient.Expire(ctx, key, 50*time.Minute).Err())
	assert.True(t, manager.IsStale(ctx, key, 0))

	res, err := manager.Resolve(ctx, cache.ResolveRequest{Endpoint: "posts", Params: params, UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, cache.StatusHit, res.Status)
	assert.True(t, res.Stale)

	require.NoError(t, manager.Shutdown(ctx))
	assert.Equal(t, 2, mock.GetEndpointCount("posts"))
	assert.False(t, manager.IsStale(ctx, key, 0))
}

func TestDetailedStats(t *testing.T) {
	redisClient := setupRedis(t)
	mock := testutil.NewMockPayload()
	defer mock.Close()
	mock.SetResponse("posts", testutil.NewListResponse(`{"id":"1"}`))

	manager := newManager(t, redisClient, mock)
	ctx := context.Background()

	result := manager.WarmCache(ctx, []cache.Target{
		{Endpoint: "posts", Params: query.Params{}.Add("page", 1)},
		{Endpoint: "posts", Params: query.Params{}.Add("page", 2)},
	}, 2)
	require.Len(t, result.Successful, 2)

	stats, err := manager.GetDetailedStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalKeys)
	assert.NotEqual(t, "0B", stats.Memory.Used)
	assert.NotEqual(t, "0", stats.Memory.Fragmentation)
	require.NotNil(t, stats.OldestKey)
}

func TestRewarmByPattern(t *testing.T) {
	redisClient := setupRedis(t)
	mock := testutil.NewMockPayload()
	defer mock.Close()
	mock.SetHandler("posts", testutil.NewPagedHandler(4))

	manager := newManager(t, redisClient, mock)
	ctx := context.Background()

	warmed, err := manager.WarmCollection(ctx, "posts", query.Params{}.Add("limit", 10))
	require.NoError(t, err)
	require.Len(t, warmed.Successful, 4)

	rewarmed, err := manager.RewarmByPattern(ctx, "posts*")
	require.NoError(t, err)
	assert.ElementsMatch(t, warmed.Successful, rewarmed.Successful)
	assert.Empty(t, rewarmed.Failed)
	assert.Equal(t, 8, mock.GetEndpointCount("posts"))
}
