package services

import (
	"context"
	"testing"
	"time"

	"agri-analytics-api/pkg/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a test Redis instance using miniredis
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	s, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		client.Close()
		s.Close()
	})
	return client, s
}

func samplePrediction(id string) CachedPrediction {
	at := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	return CachedPrediction{
		Prediction: models.InventoryPrediction{
			ProductID:       id,
			CurrentStock:    50,
			PredictedDemand: 84.5,
			ReorderPoint:    30,
			ReorderQuantity: 120,
			Confidence:      0.72,
			Urgency:         models.UrgencyLow,
			Factors:         []string{"Demande très régulière"},
			GeneratedAt:     at,
		},
		CachedAt: at,
	}
}

func TestPredictionKey(t *testing.T) {
	assert.Equal(t, "P1:50", PredictionKey("P1", 50))
	assert.Equal(t, "P1:12.5", PredictionKey("P1", 12.5))
	assert.NotEqual(t, PredictionKey("P1", 50), PredictionKey("P1", 51))
}

func TestMemoryPredictionCache(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryPredictionCache()

	got, err := cache.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	entry := samplePrediction("P1")
	require.NoError(t, cache.Set(ctx, "P1:50", entry))

	got, err = cache.Get(ctx, "P1:50")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry, *got)

	// 呼び出し側での変更はキャッシュに影響しない
	got.Prediction.Factors[0] = "mutated"
	again, _ := cache.Get(ctx, "P1:50")
	assert.Equal(t, "Demande très régulière", again.Prediction.Factors[0])

	require.NoError(t, cache.Evict(ctx, "P1:50"))
	got, _ = cache.Get(ctx, "P1:50")
	assert.Nil(t, got)

	require.NoError(t, cache.Set(ctx, "A", entry))
	require.NoError(t, cache.Set(ctx, "B", entry))
	require.NoError(t, cache.Clear(ctx))
	assert.Zero(t, cache.Len())
}

func TestRedisPredictionCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	client, _ := setupTestRedis(t)
	cache := NewRedisPredictionCache(client, time.Hour)

	got, err := cache.Get(ctx, "P1:50")
	require.NoError(t, err)
	assert.Nil(t, got)

	entry := samplePrediction("P1")
	require.NoError(t, cache.Set(ctx, "P1:50", entry))

	got, err = cache.Get(ctx, "P1:50")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.Prediction.ProductID, got.Prediction.ProductID)
	assert.Equal(t, entry.Prediction.ReorderQuantity, got.Prediction.ReorderQuantity)
	assert.Equal(t, entry.Prediction.Factors, got.Prediction.Factors)
	assert.True(t, entry.CachedAt.Equal(got.CachedAt))
}

func TestRedisPredictionCache_TTL(t *testing.T) {
	ctx := context.Background()
	client, mr := setupTestRedis(t)
	cache := NewRedisPredictionCache(client, time.Minute)

	require.NoError(t, cache.Set(ctx, "P1:50", samplePrediction("P1")))
	assert.Equal(t, time.Minute, mr.TTL("inventory_prediction:P1:50"))

	mr.FastForward(2 * time.Minute)
	got, err := cache.Get(ctx, "P1:50")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisPredictionCache_EvictAndClear(t *testing.T) {
	ctx := context.Background()
	client, mr := setupTestRedis(t)
	cache := NewRedisPredictionCache(client, time.Hour)

	require.NoError(t, cache.Set(ctx, "P1:50", samplePrediction("P1")))
	require.NoError(t, cache.Set(ctx, "P2:10", samplePrediction("P2")))
	require.NoError(t, mr.Set("unrelated", "keep"))

	require.NoError(t, cache.Evict(ctx, "P1:50"))
	assert.False(t, mr.Exists("inventory_prediction:P1:50"))
	assert.True(t, mr.Exists("inventory_prediction:P2:10"))

	require.NoError(t, cache.Clear(ctx))
	assert.False(t, mr.Exists("inventory_prediction:P2:10"))
	assert.True(t, mr.Exists("unrelated"))

	// 空のキャッシュのクリアはエラーにならない
	assert.NoError(t, cache.Clear(ctx))
}

func TestRedisPredictionCache_ConnectionError(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewRedisPredictionCache(client, time.Hour)
	mr.Close()

	_, err = cache.Get(ctx, "P1:50")
	assert.Error(t, err)
	assert.Error(t, cache.Set(ctx, "P1:50", samplePrediction("P1")))
}
