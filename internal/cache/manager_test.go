package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	manager, err := NewManager(Config{
		Addr:       mr.Addr(),
		DefaultTTL: 1 * time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)

	return mr, manager
}

type cachedDoc struct {
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

func TestManager_SetAndGetJSON(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	ctx := context.Background()
	docs := []cachedDoc{
		{URL: "https://a.example", Content: "alpha", Score: 0.8},
		{URL: "https://b.example", Content: "beta", Score: 0.5},
	}

	key := Key("search", "Acme Corp funding history")
	require.NoError(t, manager.SetJSON(ctx, key, docs, 0))

	var got []cachedDoc
	require.NoError(t, manager.GetJSON(ctx, key, &got))
	assert.Equal(t, docs, got)
}

func TestManager_Miss(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	var got []cachedDoc
	err := manager.GetJSON(context.Background(), Key("search", "nothing"), &got)
	assert.True(t, IsCacheMiss(err))
}

func TestManager_TTLExpiry(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	ctx := context.Background()
	key := Key("search", "q")
	require.NoError(t, manager.SetJSON(ctx, key, []cachedDoc{{URL: "u"}}, 10*time.Second))

	mr.FastForward(11 * time.Second)

	var got []cachedDoc
	assert.True(t, IsCacheMiss(manager.GetJSON(ctx, key, &got)))
}

func TestManager_ClosedRejectsOps(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()

	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close(), "double close is a no-op")

	assert.Error(t, manager.SetJSON(context.Background(), Key("k"), "v", 0))
	assert.Error(t, manager.HealthCheck(context.Background()))
}

func TestKeyIsStableAndDistinct(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Key("a", "b"), Key("a", "b"))
	assert.NotEqual(t, Key("a", "b"), Key("ab"))
	assert.NotEqual(t, Key("a", "b"), Key("a", "c"))
}
