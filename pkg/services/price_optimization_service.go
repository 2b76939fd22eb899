package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"agri-analytics-api/pkg/models"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/sirupsen/logrus"
)

const (
	minElasticityPoints = 5
	minAnalysisPoints   = 10
	marketBand          = 0.05
	momentumPeriod      = 5
)

// PricingSettings 価格最適化の調整定数
type PricingSettings struct {
	PriceStep         float64
	DefaultElasticity float64
	ElasticityScale   float64
	HistoryWindow     int
	HistoryCapacity   int
}

// DefaultPricingSettings returns the tuned defaults.
func DefaultPricingSettings() PricingSettings {
	return PricingSettings{
		PriceStep:         5,
		DefaultElasticity: -1.2,
		ElasticityScale:   -1.5,
		HistoryWindow:     10,
		HistoryCapacity:   100,
	}
}

func (s PricingSettings) withDefaults() PricingSettings {
	d := DefaultPricingSettings()
	if s.PriceStep <= 0 {
		s.PriceStep = d.PriceStep
	}
	if s.DefaultElasticity == 0 {
		s.DefaultElasticity = d.DefaultElasticity
	}
	if s.ElasticityScale == 0 {
		s.ElasticityScale = d.ElasticityScale
	}
	if s.HistoryWindow <= 0 {
		s.HistoryWindow = d.HistoryWindow
	}
	if s.HistoryCapacity <= 0 {
		s.HistoryCapacity = d.HistoryCapacity
	}
	return s
}

// PriceRequest 価格最適化リクエスト
type PriceRequest struct {
	ProductID     string  `json:"product_id" binding:"required"`
	Name          string  `json:"name"`
	CurrentPrice  float64 `json:"current_price"`
	Cost          float64 `json:"cost"`
	Category      string  `json:"category"`
	Quality       string  `json:"quality"`
	CurrentVolume float64 `json:"current_volume"`
}

// DynamicPriceRequest 動的価格リクエスト
type DynamicPriceRequest struct {
	BasePrice    float64 `json:"base_price"`
	ProductID    string  `json:"product_id"`
	ProductName  string  `json:"product_name"`
	TimeOfDay    int     `json:"time_of_day"` // hour 0-23
	DemandLevel  string  `json:"demand_level"`
	StockLevel   float64 `json:"stock_level"`
	OptimalStock float64 `json:"optimal_stock"`
}

// OptimalPriceRequest 最適価格探索リクエスト
type OptimalPriceRequest struct {
	Cost         float64 `json:"cost"`
	CurrentPrice float64 `json:"current_price"`
	BaseVolume   float64 `json:"base_volume"`
	Elasticity   float64 `json:"elasticity"`
	TargetProfit float64 `json:"target_profit"`
}

// PriceOptimizationService 価格最適化サービス
type PriceOptimizationService struct {
	market   MarketTrendSource
	stats    *StatisticsService
	settings PricingSettings
	logger   *logrus.Logger
	now      func() time.Time

	mu      sync.Mutex
	history map[string][]models.PricePoint
}

// PricingOption configures a PriceOptimizationService.
type PricingOption func(*PriceOptimizationService)

// WithPricingClock 時刻の注入（テスト用）
func WithPricingClock(now func() time.Time) PricingOption {
	return func(s *PriceOptimizationService) { s.now = now }
}

// NewPriceOptimizationService 新しい価格最適化サービスを作成
func NewPriceOptimizationService(market MarketTrendSource, stats *StatisticsService, settings PricingSettings, logger *logrus.Logger, opts ...PricingOption) *PriceOptimizationService {
	if stats == nil {
		stats = NewStatisticsService()
	}
	s := &PriceOptimizationService{
		market:   market,
		stats:    stats,
		settings: settings.withDefaults(),
		logger:   orDiscard(logger),
		now:      time.Now,
		history:  make(map[string][]models.PricePoint),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordSale appends a (price, volume) pair to the product's price history.
// The buffer keeps the most recent HistoryCapacity points.
func (s *PriceOptimizationService) RecordSale(productID string, price, volume float64, at time.Time) error {
	if productID == "" {
		return NewValidationError("product_id is required")
	}
	if price <= 0 || volume < 0 {
		return NewValidationErrorf("invalid sale: price %v volume %v", price, volume)
	}
	if at.IsZero() {
		at = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.history[productID]
	next := make([]models.PricePoint, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, models.PricePoint{Price: price, Volume: volume, RecordedAt: at})
	if over := len(next) - s.settings.HistoryCapacity; over > 0 {
		next = next[over:]
	}
	s.history[productID] = next
	return nil
}

// PriceHistory 価格履歴のコピー
func (s *PriceOptimizationService) PriceHistory(productID string) []models.PricePoint {
	s.mu.Lock()
	current := s.history[productID]
	s.mu.Unlock()
	out := make([]models.PricePoint, len(current))
	copy(out, current)
	return out
}

// OptimizePrice recommends a strategy and a rounded price for one product.
func (s *PriceOptimizationService) OptimizePrice(ctx context.Context, req PriceRequest) (*models.PriceOptimization, error) {
	if req.ProductID == "" {
		return nil, NewValidationError("product_id is required")
	}
	name := req.Name
	if name == "" {
		name = req.ProductID
	}

	snapshot := s.marketSnapshot(ctx, name)
	elasticity, corr, points, estimated := s.estimateElasticity(req.ProductID)
	position, marketAvg := competitivePosition(req.CurrentPrice, snapshot)

	margin := 0.0
	if req.CurrentPrice > 0 {
		margin = (req.CurrentPrice - req.Cost) / req.CurrentPrice
	}
	strategy, strategyReason := selectStrategy(req.Quality, elasticity, margin)

	var reasoning []string
	reasoning = append(reasoning, fmt.Sprintf("Stratégie %s: %s", strategy, strategyReason))
	reasoning = append(reasoning, qualityReason(req.Quality))
	if estimated {
		reasoning = append(reasoning, fmt.Sprintf("Élasticité %.2f (%s), estimée sur %d ventes", elasticity, interpretElasticity(elasticity), points))
	} else {
		reasoning = append(reasoning, fmt.Sprintf("Élasticité %.2f (%s), valeur par défaut faute d'historique", elasticity, interpretElasticity(elasticity)))
	}

	base := req.CurrentPrice
	if req.Cost > 0 {
		base = req.Cost / (1 - targetMargin(strategy))
	}

	switch {
	case snapshot == nil:
		reasoning = append(reasoning, "Aucune donnée de marché: ajustements de marché neutres")
	case snapshot.Trend == models.TrendUp:
		base *= 1.05
		reasoning = append(reasoning, fmt.Sprintf("Marché en hausse (%+.1f%%): prix relevé de 5%%", snapshot.TrendPercentage))
	case snapshot.Trend == models.TrendDown:
		base *= 0.95
		reasoning = append(reasoning, fmt.Sprintf("Marché en baisse (%+.1f%%): prix réduit de 5%%", snapshot.TrendPercentage))
	default:
		reasoning = append(reasoning, "Marché stable")
	}

	if marketAvg > 0 {
		gap := (req.CurrentPrice - marketAvg) / marketAvg * 100
		reasoning = append(reasoning, fmt.Sprintf("Écart avec la moyenne du marché (%.2f): %+.1f%%, position %s", marketAvg, gap, position))
	}
	if position == models.PositionAbove && math.Abs(elasticity) > 1 {
		base *= 0.95
		reasoning = append(reasoning, "Prix au-dessus du marché avec demande élastique: -5% pour protéger les volumes")
	}
	if line, ok := s.priceMomentum(req.ProductID); ok {
		reasoning = append(reasoning, line)
	}

	optimized := RoundToStep(base, s.settings.PriceStep)
	if optimized < s.settings.PriceStep {
		optimized = s.settings.PriceStep
	}

	accuracy := 0.5
	if estimated {
		accuracy = math.Abs(corr)
	}
	quality := 0.5
	if snapshot != nil {
		quality = 1.0
	}

	result := &models.PriceOptimization{
		ProductID:           req.ProductID,
		ProductName:         name,
		CurrentPrice:        req.CurrentPrice,
		OptimizedPrice:      optimized,
		ExpectedImpact:      priceImpact(req.CurrentPrice, optimized, req.Cost, elasticity),
		Confidence:          roundTo(s.stats.Confidence([]float64{accuracy}, quality, points), 3),
		Strategy:            strategy,
		Elasticity:          roundTo(elasticity, 3),
		CompetitivePosition: position,
		Reasoning:           reasoning,
	}

	s.logger.WithFields(logrus.Fields{
		"product_id":      req.ProductID,
		"strategy":        strategy,
		"current_price":   req.CurrentPrice,
		"optimized_price": optimized,
	}).Info("price optimized")
	return result, nil
}

// CalculateDynamicPrice applies demand, market, season, time-of-day and stock multipliers.
func (s *PriceOptimizationService) CalculateDynamicPrice(ctx context.Context, req DynamicPriceRequest) (*models.DynamicPricing, error) {
	if req.BasePrice <= 0 {
		return nil, NewValidationError("base_price must be positive")
	}
	name := req.ProductName
	if name == "" {
		name = req.ProductID
	}
	snapshot := s.marketSnapshot(ctx, name)

	m := models.PriceMultipliers{
		Demand:      demandMultiplier(req.DemandLevel),
		Competition: 1.0,
		Seasonal:    1 + 0.1*math.Sin(2*math.Pi*float64(int(s.now().Month())-1)/12),
		TimeOfDay:   timeOfDayMultiplier(req.TimeOfDay),
		Stock:       stockMultiplier(req.StockLevel, req.OptimalStock),
	}
	if snapshot != nil {
		switch snapshot.Trend {
		case models.TrendUp:
			m.Competition = 1.05
		case models.TrendDown:
			m.Competition = 0.95
		}
	}

	var factors []string
	addFactor := func(label string, v float64) {
		if math.Abs(v-1) >= 0.01 {
			factors = append(factors, fmt.Sprintf("%s (%+.0f%%)", label, (v-1)*100))
		}
	}
	addFactor("Niveau de demande "+strings.ToLower(req.DemandLevel), m.Demand)
	addFactor("Tendance du marché", m.Competition)
	addFactor("Saisonnalité", m.Seasonal)
	addFactor(fmt.Sprintf("Tranche horaire %dh", normalizeHour(req.TimeOfDay)), m.TimeOfDay)
	addFactor("Niveau de stock", m.Stock)
	if factors == nil {
		factors = []string{}
	}

	return &models.DynamicPricing{
		BasePrice:   req.BasePrice,
		Multipliers: m,
		// a net discount smaller than half a price step rounds back to the base price
		FinalPrice:  RoundToStep(req.BasePrice*m.Product(), s.settings.PriceStep),
		Factors:     factors,
	}, nil
}

// AnalyzePriceElasticity 価格弾力性の分析。10件未満はデフォルト値。
func (s *PriceOptimizationService) AnalyzePriceElasticity(productID string) models.ElasticityAnalysis {
	n := len(s.PriceHistory(productID))
	if n < minAnalysisPoints {
		return models.ElasticityAnalysis{
			ProductID:      productID,
			Elasticity:     s.settings.DefaultElasticity,
			Interpretation: "modérée, données limitées",
			DataPoints:     n,
			Confidence:     0.3,
		}
	}
	e, corr, points, _ := s.estimateElasticity(productID)
	return models.ElasticityAnalysis{
		ProductID:      productID,
		Elasticity:     roundTo(e, 3),
		Interpretation: interpretElasticity(e),
		DataPoints:     n,
		Confidence:     roundTo(s.stats.Confidence([]float64{math.Abs(corr)}, math.Min(1, float64(points)/30), points), 3),
	}
}

// GetCompetitivePricing proposes a partial move toward the market average.
func (s *PriceOptimizationService) GetCompetitivePricing(ctx context.Context, productName string, currentPrice float64) (*models.CompetitivePricing, error) {
	if productName == "" {
		return nil, NewValidationError("product name is required")
	}
	res := &models.CompetitivePricing{
		ProductName:    productName,
		CurrentPrice:   currentPrice,
		Position:       models.PositionAt,
		SuggestedPrice: RoundToStep(currentPrice, s.settings.PriceStep),
		Reasoning:      "Aucune donnée concurrentielle: prix actuel conservé",
	}

	snapshot := s.marketSnapshot(ctx, productName)
	if snapshot == nil || len(snapshot.CompetitorPrices) == 0 {
		return res, nil
	}

	prices := make([]float64, len(snapshot.CompetitorPrices))
	for i, c := range snapshot.CompetitorPrices {
		prices[i] = c.Price
	}
	avg := s.stats.Mean(prices)
	minP, maxP := prices[0], prices[0]
	for _, p := range prices[1:] {
		minP = math.Min(minP, p)
		maxP = math.Max(maxP, p)
	}

	gap := avg - currentPrice
	rate := 0.3
	if (snapshot.Trend == models.TrendUp && gap > 0) || (snapshot.Trend == models.TrendDown && gap < 0) {
		rate = 0.5
	}
	adjustment := gap * rate

	res.MarketAverage = roundTo(avg, 2)
	res.MarketMin = minP
	res.MarketMax = maxP
	res.Position, _ = competitivePosition(currentPrice, snapshot)
	res.Adjustment = roundTo(adjustment, 2)
	res.SuggestedPrice = RoundToStep(currentPrice+adjustment, s.settings.PriceStep)
	res.Reasoning = fmt.Sprintf("Convergence de %.0f%% vers la moyenne du marché (%.2f), tendance %s", rate*100, avg, snapshot.Trend)
	return res, nil
}

// FindOptimalPricePoint scans [1.2·cost, 3·cost] in steps of 5% of cost and keeps
// the most profitable rounded price that meets TargetProfit.
func (s *PriceOptimizationService) FindOptimalPricePoint(req OptimalPriceRequest) models.OptimalPricePoint {
	fallback := models.OptimalPricePoint{
		Price:          RoundToStep(req.CurrentPrice, s.settings.PriceStep),
		ExpectedVolume: req.BaseVolume,
		ExpectedProfit: roundTo((req.CurrentPrice-req.Cost)*req.BaseVolume, 2),
	}
	if req.Cost <= 0 || req.CurrentPrice <= 0 {
		return fallback
	}

	step := 0.05 * req.Cost
	best := fallback
	bestProfit := math.Inf(-1)
	candidates := 0
	for i := 0; ; i++ {
		raw := 1.2*req.Cost + float64(i)*step
		if raw > 3*req.Cost+1e-9 {
			break
		}
		candidates++
		price := RoundToStep(raw, s.settings.PriceStep)
		volume := volumeAtPrice(req.BaseVolume, req.Elasticity, req.CurrentPrice, price)
		profit := (price - req.Cost) * volume
		if profit >= req.TargetProfit && profit > bestProfit {
			bestProfit = profit
			best = models.OptimalPricePoint{
				Price:          price,
				ExpectedVolume: roundTo(volume, 2),
				ExpectedProfit: roundTo(profit, 2),
				Feasible:       true,
			}
		}
	}
	best.Candidates = candidates
	return best
}

// marketSnapshot treats source failures as a missing snapshot.
func (s *PriceOptimizationService) marketSnapshot(ctx context.Context, productName string) *models.MarketTrend {
	if s.market == nil {
		return nil
	}
	snapshot, err := s.market.MarketTrend(ctx, productName)
	if err != nil {
		s.logger.WithError(err).WithField("product", productName).Warn("market trend unavailable")
		return nil
	}
	return snapshot
}

// estimateElasticity = corr(price, volume) over the last window × scale.
func (s *PriceOptimizationService) estimateElasticity(productID string) (elasticity, corr float64, points int, estimated bool) {
	history := s.PriceHistory(productID)
	if len(history) < minElasticityPoints {
		return s.settings.DefaultElasticity, 0, len(history), false
	}
	if len(history) > s.settings.HistoryWindow {
		history = history[len(history)-s.settings.HistoryWindow:]
	}
	prices := make([]float64, len(history))
	volumes := make([]float64, len(history))
	for i, p := range history {
		prices[i] = p.Price
		volumes[i] = p.Volume
	}
	corr = s.stats.Correlation(prices, volumes)
	return corr * s.settings.ElasticityScale, corr, len(history), true
}

// priceMomentum compares the last recorded price with its EMA.
func (s *PriceOptimizationService) priceMomentum(productID string) (string, bool) {
	history := s.PriceHistory(productID)
	if len(history) < momentumPeriod {
		return "", false
	}
	prices := make([]float64, len(history))
	for i, p := range history {
		prices[i] = p.Price
	}
	ema := helper.ChanToSlice(trend.NewEmaWithPeriod[float64](momentumPeriod).Compute(helper.SliceToChan(prices)))
	if len(ema) == 0 || ema[len(ema)-1] == 0 {
		return "", false
	}
	last := prices[len(prices)-1]
	avg := ema[len(ema)-1]
	delta := (last - avg) / avg * 100
	switch {
	case delta > 2:
		return fmt.Sprintf("Dernier prix au-dessus de sa moyenne exponentielle (%.2f, %+.1f%%)", avg, delta), true
	case delta < -2:
		return fmt.Sprintf("Dernier prix sous sa moyenne exponentielle (%.2f, %+.1f%%)", avg, delta), true
	default:
		return fmt.Sprintf("Prix récent stable autour de sa moyenne exponentielle (%.2f)", avg), true
	}
}

func competitivePosition(price float64, snapshot *models.MarketTrend) (models.CompetitivePosition, float64) {
	if snapshot == nil || len(snapshot.CompetitorPrices) == 0 {
		return models.PositionAt, 0
	}
	sum := 0.0
	for _, c := range snapshot.CompetitorPrices {
		sum += c.Price
	}
	avg := sum / float64(len(snapshot.CompetitorPrices))
	switch {
	case avg <= 0:
		return models.PositionAt, 0
	case price > avg*(1+marketBand):
		return models.PositionAbove, avg
	case price < avg*(1-marketBand):
		return models.PositionBelow, avg
	default:
		return models.PositionAt, avg
	}
}

func selectStrategy(quality string, elasticity, margin float64) (models.PricingStrategy, string) {
	switch {
	case isPremiumQuality(quality):
		return models.StrategyPremium, "qualité supérieure"
	case math.Abs(elasticity) > 1.5:
		return models.StrategyPenetration, "demande très sensible au prix"
	case margin > 0.4:
		return models.StrategySkimming, fmt.Sprintf("marge actuelle élevée (%.0f%%)", margin*100)
	default:
		return models.StrategyCompetitive, "alignement sur le marché"
	}
}

func targetMargin(strategy models.PricingStrategy) float64 {
	switch strategy {
	case models.StrategyPremium:
		return 0.45
	case models.StrategySkimming:
		return 0.40
	case models.StrategyPenetration:
		return 0.20
	default:
		return 0.30
	}
}

func isPremiumQuality(quality string) bool {
	switch strings.ToLower(strings.TrimSpace(quality)) {
	case "bio", "premium":
		return true
	default:
		return false
	}
}

func qualityReason(quality string) string {
	switch {
	case strings.TrimSpace(quality) == "":
		return "Qualité non précisée: positionnement standard"
	case isPremiumQuality(quality):
		return fmt.Sprintf("Qualité %s: prix haut de gamme justifié", quality)
	default:
		return fmt.Sprintf("Qualité %s: positionnement standard", quality)
	}
}

func interpretElasticity(e float64) string {
	switch abs := math.Abs(e); {
	case abs > 1.5:
		return "très élastique"
	case abs > 1:
		return "élastique"
	case abs > 0.5:
		return "modérée"
	default:
		return "peu élastique"
	}
}

func priceImpact(currentPrice, newPrice, cost, elasticity float64) models.ExpectedImpact {
	if currentPrice <= 0 {
		return models.ExpectedImpact{}
	}
	ratio := (newPrice - currentPrice) / currentPrice
	volumeFactor := math.Max(0, 1+elasticity*ratio)

	impact := models.ExpectedImpact{
		VolumeChange:  roundTo((volumeFactor-1)*100, 2),
		RevenueChange: roundTo((newPrice*volumeFactor/currentPrice-1)*100, 2),
	}
	if oldProfit := currentPrice - cost; oldProfit != 0 {
		newProfit := (newPrice - cost) * volumeFactor
		impact.ProfitChange = roundTo((newProfit-oldProfit)/math.Abs(oldProfit)*100, 2)
	}
	return impact
}

func volumeAtPrice(baseVolume, elasticity, currentPrice, price float64) float64 {
	return math.Max(0, baseVolume*(1+elasticity*(price-currentPrice)/currentPrice))
}

func demandMultiplier(level string) float64 {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "very_low":
		return 0.85
	case "low":
		return 0.9
	case "high":
		return 1.1
	case "very_high":
		return 1.15
	default:
		return 1.0
	}
}

func normalizeHour(h int) int {
	return ((h % 24) + 24) % 24
}

func timeOfDayMultiplier(hour int) float64 {
	switch h := normalizeHour(hour); {
	case h >= 7 && h <= 9:
		return 1.05
	case h >= 17 && h <= 19:
		return 1.08
	case h >= 22 || h <= 5:
		return 0.85
	default:
		return 1.0
	}
}

func stockMultiplier(stock, optimal float64) float64 {
	if optimal <= 0 {
		return 1.0
	}
	switch ratio := stock / optimal; {
	case ratio > 1.5:
		return 0.9
	case ratio < 0.3:
		return 1.1
	default:
		return 1.0
	}
}
