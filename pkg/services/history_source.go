package services

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"agri-analytics-api/pkg/models"
)

// HistorySource supplies a product's sales observations in ascending time order.
// ErrNoHistory or an empty slice both mean the product has no history.
type HistorySource interface {
	History(ctx context.Context, productID string) ([]models.HistoricalObservation, error)
}

// MemoryHistorySource is an append-only in-process history store.
type MemoryHistorySource struct {
	mu     sync.RWMutex
	series map[string][]models.HistoricalObservation
}

// NewMemoryHistorySource 新しいメモリ履歴ストアを作成
func NewMemoryHistorySource() *MemoryHistorySource {
	return &MemoryHistorySource{series: make(map[string][]models.HistoricalObservation)}
}

// Append records observations. Each product's series is replaced whole with a sorted copy.
func (m *MemoryHistorySource) Append(observations ...models.HistoricalObservation) {
	if len(observations) == 0 {
		return
	}
	byProduct := make(map[string][]models.HistoricalObservation)
	for _, o := range observations {
		byProduct[o.ProductID] = append(byProduct[o.ProductID], o)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, added := range byProduct {
		current := m.series[id]
		next := make([]models.HistoricalObservation, 0, len(current)+len(added))
		next = append(next, current...)
		next = append(next, added...)
		sort.SliceStable(next, func(i, j int) bool { return next[i].Timestamp.Before(next[j].Timestamp) })
		m.series[id] = next
	}
}

// Replace swaps the whole store for the given observations.
func (m *MemoryHistorySource) Replace(observations ...models.HistoricalObservation) {
	fresh := NewMemoryHistorySource()
	fresh.Append(observations...)

	m.mu.Lock()
	m.series = fresh.series
	m.mu.Unlock()
}

func (m *MemoryHistorySource) History(_ context.Context, productID string) ([]models.HistoricalObservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	series, ok := m.series[productID]
	if !ok || len(series) == 0 {
		return nil, ErrNoHistory
	}
	out := make([]models.HistoricalObservation, len(series))
	copy(out, series)
	return out, nil
}

// Products 登録済みの商品ID一覧
func (m *MemoryHistorySource) Products() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.series))
	for id := range m.series {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SyntheticHistoryGenerator 実データがない商品のための決定的な模擬履歴
type SyntheticHistoryGenerator struct {
	seed int64
	days int
}

// NewSyntheticHistoryGenerator days <= 0 falls back to 90.
func NewSyntheticHistoryGenerator(seed int64, days int) *SyntheticHistoryGenerator {
	if days <= 0 {
		days = 90
	}
	return &SyntheticHistoryGenerator{seed: seed, days: days}
}

// Days 生成する日数
func (g *SyntheticHistoryGenerator) Days() int {
	return g.days
}

// Generate builds one observation per day ending at now. The same seed, product,
// category, price and day always yield the same series.
func (g *SyntheticHistoryGenerator) Generate(productID string, category Category, unitPrice float64, now time.Time) []models.HistoricalObservation {
	rng := rand.New(rand.NewSource(g.seed ^ int64(productHash(productID))))
	base := category.baseDailyDemand()
	end := day(now)

	out := make([]models.HistoricalObservation, 0, g.days)
	for i := 0; i < g.days; i++ {
		date := end.AddDate(0, 0, i-g.days+1)

		seasonal := category.SeasonalFactor(date.Month())
		weekday := 1.0
		if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			weekday = 1.2
		}
		trend := 1 + float64(i)/float64(g.days)*0.1
		noise := 0.85 + rng.Float64()*0.3

		price := unitPrice
		if price > 0 {
			price = math.Round(unitPrice*(0.95+rng.Float64()*0.1)*100) / 100
		}

		out = append(out, models.HistoricalObservation{
			ProductID: productID,
			Quantity:  math.Max(0, math.Round(base*seasonal*weekday*trend*noise)),
			Timestamp: date,
			UnitPrice: price,
		})
	}
	return out
}

func productHash(productID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(productID))
	return h.Sum64()
}

func quantities(observations []models.HistoricalObservation) []float64 {
	out := make([]float64, len(observations))
	for i, o := range observations {
		out[i] = o.Quantity
	}
	return out
}
