package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/payload-cache/internal/testutil"
	"github.com/Sternrassler/payload-cache/pkg/query"
)

func TestWarmCache_IsolatesFailures(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"posts", "pages", "categories", "authors"} {
		env.upstream.SetResponse(name, testutil.NewListResponse(postDoc))
	}
	env.upstream.SetResponse("media", testutil.NewServerErrorResponse())

	targets := []Target{
		{Endpoint: "posts", Params: query.Params{}.Add("limit", 10)},
		{Endpoint: "pages"},
		{Endpoint: "media"},
		{Endpoint: "categories"},
		{Endpoint: "authors", Key: "payload:authors:all"},
	}

	result := env.manager.WarmCache(context.Background(), targets, 2)

	assert.ElementsMatch(t, []string{
		"payload:posts-limit=10",
		"payload:pages",
		"payload:categories",
		"payload:authors:all",
	}, result.Successful)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "payload:media", result.Failed[0].Key)
	assert.NotEmpty(t, result.Failed[0].Error)

	for _, key := range result.Successful {
		assert.True(t, env.redis.Exists(key), key)
	}
	assert.False(t, env.redis.Exists("payload:media"))
	assert.Greater(t, result.Timing.Total, time.Duration(0))
	assert.Equal(t, result.Timing.Total/5, result.Timing.Average)
}

func TestWarmCache_BypassesCacheRead(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.SetResponse("posts", testutil.NewListResponse(postDoc))
	ctx := context.Background()

	_, err := env.manager.FetchWithCache(ctx, "posts", nil)
	require.NoError(t, err)

	result := env.manager.WarmCache(ctx, []Target{{Endpoint: "posts"}}, 0)
	assert.Equal(t, []string{"payload:posts"}, result.Successful)
	assert.Equal(t, 2, env.upstream.GetEndpointCount("posts"))
}

func TestWarmCache_EmptyResultIsFailure(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.SetResponse("posts", testutil.NewEmptyListResponse())

	result := env.manager.WarmCache(context.Background(), []Target{{Endpoint: "posts"}}, 1)
	assert.Empty(t, result.Successful)
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed[0].Error, "no matching documents")
}

func TestWarmCache_NoTargets(t *testing.T) {
	env := newTestEnv(t)

	result := env.manager.WarmCache(context.Background(), nil, 3)
	assert.Empty(t, result.Successful)
	assert.Empty(t, result.Failed)
	assert.Zero(t, result.Timing.Average)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"successful":[]`)
	assert.Contains(t, string(data), `"failed":[]`)
}

func TestWarmupTiming_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(WarmupTiming{Total: 1500 * time.Millisecond, Average: 250 * time.Millisecond})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":1500,"average":250}`, string(data))
}

func TestRewarmByPattern(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.SetResponse("posts", testutil.NewListResponse(postDoc))
	env.upstream.SetResponse("pages", testutil.NewListResponse(postDoc))
	ctx := context.Background()
	bySlug := query.Params{}.Add("where", query.Params{}.Add("slug", query.Params{}.Add("equals", "hello world")))

	_, err := env.manager.FetchWithCache(ctx, "posts", bySlug)
	require.NoError(t, err)
	_, err = env.manager.FetchWithCache(ctx, "posts", nil)
	require.NoError(t, err)
	_, err = env.manager.FetchWithCache(ctx, "pages", nil)
	require.NoError(t, err)
	require.NoError(t, env.redis.Set("payload:posts-corrupt", "garbage"))
	env.redis.FastForward(20 * time.Minute)
	env.upstream.Reset()

	result, err := env.manager.RewarmByPattern(ctx, "posts*")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"payload:posts",
		"payload:posts-where%5Bslug%5D%5Bequals%5D=hello%20world",
	}, result.Successful)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "payload:posts-corrupt", result.Failed[0].Key)

	assert.Equal(t, 2, env.upstream.GetEndpointCount("posts"))
	assert.Zero(t, env.upstream.GetEndpointCount("pages"))
	assert.Equal(t, time.Hour, env.redis.TTL("payload:posts"))
	assert.Equal(t, 40*time.Minute, env.redis.TTL("payload:pages"))
}

func TestRewarmByPattern_ScanFailure(t *testing.T) {
	env := newTestEnv(t)
	env.redis.SetError("simulated outage")

	result, err := env.manager.RewarmByPattern(context.Background(), "*")
	assert.Nil(t, result)
	assert.Error(t, err)
}

func TestRefreshExpiring(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.SetResponse("posts", testutil.NewListResponse(postDoc))
	env.upstream.SetResponse("pages", testutil.NewListResponse(postDoc))
	ctx := context.Background()

	_, err := env.manager.FetchWithCache(ctx, "posts", nil, WithTTL(5*time.Minute))
	require.NoError(t, err)
	_, err = env.manager.FetchWithCache(ctx, "pages", nil)
	require.NoError(t, err)
	env.manager.Set(ctx, "payload:settings", &Entry{Endpoint: "globals/settings", Document: map[string]any{"a": 1}}, NoExpiration)
	env.upstream.Reset()

	result, err := env.manager.RefreshExpiring(ctx, "*", 10*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, []string{"payload:posts"}, result.Successful)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 1, env.upstream.GetRequestCount())
	assert.Equal(t, time.Hour, env.redis.TTL("payload:posts"))
}

func TestWarmingService(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.SetResponse("posts", testutil.NewListResponse(postDoc))
	ctx := context.Background()

	_, err := env.manager.FetchWithCache(ctx, "posts", nil, WithTTL(time.Minute))
	require.NoError(t, err)
	env.upstream.Reset()

	svc := env.manager.StartWarmingService(ctx, WarmingConfig{
		Pattern:         "posts*",
		CheckInterval:   20 * time.Millisecond,
		ExpiryThreshold: 10 * time.Minute,
	})

	require.Eventually(t, func() bool {
		return env.redis.TTL("payload:posts") == time.Hour
	}, 2*time.Second, 10*time.Millisecond)
	svc.Stop()

	assert.Equal(t, 1, env.upstream.GetEndpointCount("posts"), "refreshed entries are not re-warmed")

	count := env.upstream.GetEndpointCount("posts")
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, count, env.upstream.GetEndpointCount("posts"), "no passes after Stop")
}

func TestWarmCollection(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.SetHandler("posts", testutil.NewPagedHandler(3))
	ctx := context.Background()

	result, err := env.manager.WarmCollection(ctx, "posts", query.Params{}.Add("limit", 10))
	require.NoError(t, err)

	want := make([]string, 0, 3)
	for page := 1; page <= 3; page++ {
		want = append(want, fmt.Sprintf("payload:posts-limit=10&page=%d", page))
	}
	assert.Equal(t, want, result.Successful)
	assert.Empty(t, result.Failed)
	for _, key := range want {
		assert.True(t, env.redis.Exists(key), key)
	}
	assert.Equal(t, 3, env.upstream.GetEndpointCount("posts"))
}

func TestWarmCollection_FirstPageFailure(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.SetResponse("posts", testutil.NewServerErrorResponse())

	result, err := env.manager.WarmCollection(context.Background(), "posts", nil)
	assert.Nil(t, result)
	assert.Error(t, err)
}

func TestChunk(t *testing.T) {
	tests := []struct {
		items []int
		size  int
		want  [][]int
	}{
		{items: nil, size: 3, want: nil},
		{items: []int{1, 2}, size: 3, want: [][]int{{1, 2}}},
		{items: []int{1, 2, 3}, size: 3, want: [][]int{{1, 2, 3}}},
		{items: []int{1, 2, 3, 4, 5}, size: 2, want: [][]int{{1, 2}, {3, 4}, {5}}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, chunk(tt.items, tt.size))
	}
}
