package services

import (
	"context"
	"strings"
	"sync"

	"agri-analytics-api/pkg/models"
)

// MarketTrendSource returns the latest market snapshot for a product name.
// A nil snapshot with a nil error means no market data is known.
type MarketTrendSource interface {
	MarketTrend(ctx context.Context, productName string) (*models.MarketTrend, error)
}

// MemoryMarketTrendSource keeps snapshots keyed by normalized product name.
type MemoryMarketTrendSource struct {
	mu     sync.RWMutex
	trends map[string]models.MarketTrend
}

// NewMemoryMarketTrendSource 新しい市場動向ストアを作成
func NewMemoryMarketTrendSource() *MemoryMarketTrendSource {
	return &MemoryMarketTrendSource{trends: make(map[string]models.MarketTrend)}
}

// Update replaces the snapshot for trend.ProductName.
func (m *MemoryMarketTrendSource) Update(trend models.MarketTrend) {
	trend.CompetitorPrices = append([]models.CompetitorPrice(nil), trend.CompetitorPrices...)
	m.mu.Lock()
	m.trends[marketKey(trend.ProductName)] = trend
	m.mu.Unlock()
}

func (m *MemoryMarketTrendSource) MarketTrend(_ context.Context, productName string) (*models.MarketTrend, error) {
	m.mu.RLock()
	trend, ok := m.trends[marketKey(productName)]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	trend.CompetitorPrices = append([]models.CompetitorPrice(nil), trend.CompetitorPrices...)
	return &trend, nil
}

func marketKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
