package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/payload-cache/internal/testutil"
)

func TestGetDetailedStats(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.SetResponse("posts", testutil.NewListResponse(postDoc))
	env.upstream.SetResponse("pages", testutil.NewListResponse(postDoc))
	ctx := context.Background()

	_, err := env.manager.FetchWithCache(ctx, "posts", nil)
	require.NoError(t, err)
	_, err = env.manager.FetchWithCache(ctx, "posts", nil)
	require.NoError(t, err)
	_, err = env.manager.FetchWithCache(ctx, "pages", nil, WithTTL(10*time.Minute))
	require.NoError(t, err)
	require.NoError(t, env.redis.Set("payload:pinned", `{"document":{}}`))
	require.NoError(t, env.redis.Set("unrelated:key", "x"))

	stats, err := env.manager.GetDetailedStats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalKeys)
	assert.Len(t, stats.SampleKeys, 3)
	assert.Equal(t, map[string]int{"payload:": 3}, stats.KeysByPrefix)

	assert.Equal(t, HitRate{Total: 3, Hits: 1, Misses: 2, Rate: 1.0 / 3.0}, stats.HitRate)

	// pinned has no expiry and is left out of the TTL figures
	assert.InDelta(t, (time.Hour + 10*time.Minute).Seconds()/2, stats.AvgTTL, 1)
	require.NotNil(t, stats.OldestKey)
	assert.Equal(t, "payload:pages", stats.OldestKey.Key)
	assert.InDelta(t, 600, stats.OldestKey.TTL, 1)

	// miniredis has no memory section, so the figures keep their defaults
	assert.Equal(t, MemoryStats{Used: "0B", Peak: "0B", Fragmentation: "0"}, stats.Memory)
}

func TestGetDetailedStats_SampleLimit(t *testing.T) {
	env := newTestEnv(t)
	for _, key := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		require.NoError(t, env.redis.Set("payload:"+key, `{"document":{}}`))
	}

	stats, err := env.manager.GetDetailedStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, stats.TotalKeys)
	assert.Len(t, stats.SampleKeys, 5)
	assert.Nil(t, stats.OldestKey)
	assert.Zero(t, stats.AvgTTL)
}

func TestGetDetailedStats_Empty(t *testing.T) {
	env := newTestEnv(t)

	stats, err := env.manager.GetDetailedStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalKeys)
	assert.Empty(t, stats.SampleKeys)
	assert.Zero(t, stats.HitRate.Rate)
}

func TestGetDetailedStats_StoreOutage(t *testing.T) {
	env := newTestEnv(t)
	env.redis.SetError("simulated outage")

	stats, err := env.manager.GetDetailedStats(context.Background())
	assert.Nil(t, stats)
	assert.Error(t, err)
}

func TestParseInfo(t *testing.T) {
	raw := "# Memory\r\nused_memory:1048576\r\nused_memory_human:1.00M\r\nused_memory_peak_human:2.50M\r\nmem_fragmentation_ratio:1.23\r\n\r\n"

	info := parseInfo(raw)

	assert.Equal(t, "1.00M", info["used_memory_human"])
	assert.Equal(t, "2.50M", info["used_memory_peak_human"])
	assert.Equal(t, "1.23", info["mem_fragmentation_ratio"])
	assert.NotContains(t, info, "# Memory")
}
