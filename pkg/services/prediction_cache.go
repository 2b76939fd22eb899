package services

import (
	"context"
	"strconv"
	"sync"
	"time"

	"agri-analytics-api/pkg/models"
)

// CachedPrediction is a whole prediction plus the moment it was stored.
type CachedPrediction struct {
	Prediction models.InventoryPrediction `json:"prediction"`
	CachedAt   time.Time                  `json:"cached_at"`
}

// PredictionCache stores whole predictions. Freshness is decided by the caller
// from CachedAt; implementations may additionally expire entries on their own.
type PredictionCache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, key string) (*CachedPrediction, error)
	Set(ctx context.Context, key string, entry CachedPrediction) error
	Evict(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// PredictionKey 予測キャッシュのキー（商品ID + 現在庫）
func PredictionKey(productID string, currentStock float64) string {
	return productID + ":" + strconv.FormatFloat(currentStock, 'f', -1, 64)
}

// MemoryPredictionCache プロセス内キャッシュ
type MemoryPredictionCache struct {
	mu      sync.RWMutex
	entries map[string]CachedPrediction
}

// NewMemoryPredictionCache 新しいメモリキャッシュを作成
func NewMemoryPredictionCache() *MemoryPredictionCache {
	return &MemoryPredictionCache{entries: make(map[string]CachedPrediction)}
}

func (c *MemoryPredictionCache) Get(_ context.Context, key string) (*CachedPrediction, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	entry.Prediction.Factors = append([]string(nil), entry.Prediction.Factors...)
	return &entry, nil
}

func (c *MemoryPredictionCache) Set(_ context.Context, key string, entry CachedPrediction) error {
	entry.Prediction.Factors = append([]string(nil), entry.Prediction.Factors...)
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

func (c *MemoryPredictionCache) Evict(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryPredictionCache) Clear(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]CachedPrediction)
	c.mu.Unlock()
	return nil
}

// Len 件数
func (c *MemoryPredictionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
