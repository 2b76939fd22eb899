package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"agri-analytics-api/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	maxForecastDays     = 90
	holdingAvoidance    = 0.10 // 過剰在庫削減による保管コスト回避率
	forecastBandZ       = 1.96
	seasonalFactorLimit = 0.10
	trendFactorLimit    = 0.05
)

// ForecastSettings 在庫予測の調整定数
type ForecastSettings struct {
	CacheTTL         time.Duration
	ServiceLevelZ    float64
	HoldingCostRate  float64
	OrderingCost     float64
	MinOrderQuantity float64
	DefaultLeadTime  int
	MinSampleSize    int
}

// DefaultForecastSettings returns the tuned defaults.
func DefaultForecastSettings() ForecastSettings {
	return ForecastSettings{
		CacheTTL:         time.Hour,
		ServiceLevelZ:    1.65,
		HoldingCostRate:  0.25,
		OrderingCost:     1000,
		MinOrderQuantity: 10,
		DefaultLeadTime:  3,
		MinSampleSize:    30,
	}
}

func (s ForecastSettings) withDefaults() ForecastSettings {
	d := DefaultForecastSettings()
	if s.CacheTTL <= 0 {
		s.CacheTTL = d.CacheTTL
	}
	if s.ServiceLevelZ <= 0 {
		s.ServiceLevelZ = d.ServiceLevelZ
	}
	if s.HoldingCostRate <= 0 {
		s.HoldingCostRate = d.HoldingCostRate
	}
	if s.OrderingCost <= 0 {
		s.OrderingCost = d.OrderingCost
	}
	if s.MinOrderQuantity <= 0 {
		s.MinOrderQuantity = d.MinOrderQuantity
	}
	if s.DefaultLeadTime <= 0 {
		s.DefaultLeadTime = d.DefaultLeadTime
	}
	if s.MinSampleSize <= 0 {
		s.MinSampleSize = d.MinSampleSize
	}
	return s
}

// StockNeedsRequest 在庫予測リクエスト
type StockNeedsRequest struct {
	ProductID    string  `json:"product_id" binding:"required"`
	ProductName  string  `json:"product_name"`
	CurrentStock float64 `json:"current_stock"`
	AveragePrice float64 `json:"average_price"`
	Category     string  `json:"category"`
}

// DemandForecastService 需要予測サービス
type DemandForecastService struct {
	history   HistorySource
	cache     PredictionCache
	stats     *StatisticsService
	synthetic *SyntheticHistoryGenerator
	settings  ForecastSettings
	logger    *logrus.Logger
	now       func() time.Time
}

// ForecastOption configures a DemandForecastService.
type ForecastOption func(*DemandForecastService)

// WithForecastClock 時刻の注入（テスト用）
func WithForecastClock(now func() time.Time) ForecastOption {
	return func(s *DemandForecastService) { s.now = now }
}

// WithSyntheticHistory replaces the fallback generator.
func WithSyntheticHistory(g *SyntheticHistoryGenerator) ForecastOption {
	return func(s *DemandForecastService) { s.synthetic = g }
}

// NewDemandForecastService 新しい需要予測サービスを作成
func NewDemandForecastService(history HistorySource, cache PredictionCache, stats *StatisticsService, settings ForecastSettings, logger *logrus.Logger, opts ...ForecastOption) *DemandForecastService {
	if cache == nil {
		cache = NewMemoryPredictionCache()
	}
	if stats == nil {
		stats = NewStatisticsService()
	}
	s := &DemandForecastService{
		history:   history,
		cache:     cache,
		stats:     stats,
		synthetic: NewSyntheticHistoryGenerator(42, 90),
		settings:  settings.withDefaults(),
		logger:    orDiscard(logger),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PredictStockNeeds computes the reorder policy for one product at one stock level.
// Results are cached per (product, stock) for the configured TTL.
func (s *DemandForecastService) PredictStockNeeds(ctx context.Context, req StockNeedsRequest) (*models.InventoryPrediction, error) {
	if req.ProductID == "" {
		return nil, NewValidationError("product_id is required")
	}
	now := s.now()
	log := s.logger.WithFields(logrus.Fields{"product_id": req.ProductID, "current_stock": req.CurrentStock})

	key := PredictionKey(req.ProductID, req.CurrentStock)
	cached, err := s.cache.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("prediction cache read failed")
	}
	if cached != nil && now.Sub(cached.CachedAt) < s.settings.CacheTTL {
		log.Debug("prediction cache hit")
		prediction := cached.Prediction
		return &prediction, nil
	}
	log.Debug("prediction cache miss")

	category := ParseCategory(req.Category)
	observations, synthetic, err := s.loadHistory(ctx, req.ProductID, category, req.AveragePrice, now)
	if err != nil {
		return nil, err
	}
	qty := quantities(observations)
	pattern := s.stats.CalculateDemandPattern(qty)

	seasonalFactor := category.SeasonalFactor(now.Month())
	trendFactor := s.trendFactor(qty)
	dailyDemand := math.Max(0, pattern.AverageDailyDemand*seasonalFactor*(1+trendFactor))

	leadTime := category.LeadTimeDays(s.settings.DefaultLeadTime)
	safetyStock := SafetyStock(s.settings.ServiceLevelZ, pattern.StandardDeviation, leadTime)
	reorderPoint := ReorderPoint(dailyDemand, leadTime, safetyStock)
	eoq := EconomicOrderQuantity(dailyDemand*365, req.AveragePrice, s.settings.OrderingCost, s.settings.HoldingCostRate, s.settings.MinOrderQuantity)

	daysUntilStockout := 0
	if req.CurrentStock > 0 {
		daysUntilStockout = int(math.Floor(req.CurrentStock / math.Max(1, dailyDemand)))
	}

	n := len(qty)
	prediction := models.InventoryPrediction{
		ProductID:         req.ProductID,
		ProductName:       req.ProductName,
		Category:          string(category),
		CurrentStock:      req.CurrentStock,
		PredictedDemand:   roundTo(dailyDemand*7, 2),
		ReorderPoint:      reorderPoint,
		ReorderQuantity:   eoq,
		SafetyStock:       safetyStock,
		DaysUntilStockout: daysUntilStockout,
		Confidence:        s.stats.Confidence([]float64{pattern.Consistency}, math.Min(1, float64(n)/30), n),
		Urgency:           stockUrgency(req.CurrentStock, daysUntilStockout, reorderPoint),
		Factors:           s.demandFactors(qty, pattern, seasonalFactor, trendFactor, category, synthetic),
		GeneratedAt:       now,
	}

	if err := s.cache.Set(ctx, key, CachedPrediction{Prediction: prediction, CachedAt: now}); err != nil {
		log.WithError(err).Warn("prediction cache write failed")
	}

	log.WithFields(logrus.Fields{
		"urgency":       prediction.Urgency,
		"reorder_point": prediction.ReorderPoint,
		"synthetic":     synthetic,
	}).Info("stock needs predicted")
	return &prediction, nil
}

// OptimizeStockLevels 複数商品の在庫水準を評価
func (s *DemandForecastService) OptimizeStockLevels(ctx context.Context, items []models.StockItem) ([]models.StockOptimization, error) {
	results := make([]models.StockOptimization, 0, len(items))
	for _, item := range items {
		prediction, err := s.PredictStockNeeds(ctx, StockNeedsRequest{
			ProductID:    item.ProductID,
			ProductName:  item.Name,
			CurrentStock: item.CurrentStock,
			AveragePrice: item.Price,
			Category:     item.Category,
		})
		if err != nil {
			return nil, fmt.Errorf("optimize %q: %w", item.ProductID, err)
		}

		optimal := prediction.ReorderPoint + 0.5*prediction.ReorderQuantity
		overstock := math.Max(0, item.CurrentStock-optimal)

		var recommendation string
		switch {
		case item.CurrentStock < prediction.ReorderPoint:
			recommendation = fmt.Sprintf("Réapprovisionner: commander %.0f unités", prediction.ReorderQuantity)
		case overstock > 0:
			recommendation = fmt.Sprintf("Surstock de %.0f unités: réduire les commandes ou lancer une promotion", overstock)
		default:
			recommendation = "Niveau de stock optimal"
		}

		results = append(results, models.StockOptimization{
			ProductID:        item.ProductID,
			CurrentStock:     item.CurrentStock,
			OptimalStock:     optimal,
			Overstock:        overstock,
			PotentialSavings: roundTo(overstock*item.Price*holdingAvoidance, 2),
			Recommendation:   recommendation,
			Prediction:       *prediction,
		})
	}
	return results, nil
}

// ForecastDemand returns one point forecast with a 95% band per future day, at most 90 days.
func (s *DemandForecastService) ForecastDemand(ctx context.Context, productID string, daysAhead int) ([]models.DemandForecast, error) {
	if productID == "" {
		return nil, NewValidationError("product_id is required")
	}
	if daysAhead <= 0 {
		return []models.DemandForecast{}, nil
	}
	if daysAhead > maxForecastDays {
		daysAhead = maxForecastDays
	}

	now := s.now()
	observations, _, err := s.loadHistory(ctx, productID, CategoryUnknown, 0, now)
	if err != nil {
		return nil, err
	}
	qty := quantities(observations)
	pattern := s.stats.CalculateDemandPattern(qty)
	trendFactor := s.trendFactor(qty)
	base := pattern.AverageDailyDemand
	start := day(now)

	forecasts := make([]models.DemandForecast, 0, daysAhead)
	for d := 1; d <= daysAhead; d++ {
		date := start.AddDate(0, 0, d)

		seasonal := 1 + 0.2*math.Sin(2*math.Pi*float64(int(date.Month())-3)/12)
		if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			seasonal *= 0.85
		}
		// decay over the full horizon so a day's value never depends on daysAhead
		trend := trendFactor * base * (1 - float64(d)/float64(maxForecastDays+1))
		point := math.Max(0, base*seasonal+trend)
		uncertainty := pattern.StandardDeviation * math.Sqrt(float64(d)/7)

		forecasts = append(forecasts, models.DemandForecast{
			Date:            date.Format("2006-01-02"),
			DayIndex:        d,
			PredictedDemand: roundTo(point, 2),
			LowerBound:      roundTo(math.Max(0, point-forecastBandZ*uncertainty), 2),
			UpperBound:      roundTo(point+forecastBandZ*uncertainty, 2),
			Confidence:      clamp(pattern.Consistency*math.Max(0.3, 1-0.03*float64(d)), 0, 1),
		})
	}
	return forecasts, nil
}

// DetectAnomalies 現在の需要が過去の平均±2σを外れているかを判定
func (s *DemandForecastService) DetectAnomalies(ctx context.Context, productID string, currentDemand float64) (*models.AnomalyReport, error) {
	if productID == "" {
		return nil, NewValidationError("product_id is required")
	}
	now := s.now()
	observations, _, err := s.loadHistory(ctx, productID, CategoryUnknown, 0, now)
	if err != nil {
		return nil, err
	}
	qty := quantities(observations)
	mean := s.stats.Mean(qty)
	std := s.stats.StandardDeviation(qty)
	z := s.stats.ZScore(currentDemand, mean, std)
	severity := s.stats.AnomalySeverity(z)

	report := &models.AnomalyReport{
		ReportID:          uuid.NewString(),
		ProductID:         productID,
		CurrentDemand:     currentDemand,
		ExpectedDemand:    roundTo(mean, 2),
		StandardDeviation: roundTo(std, 2),
		ZScore:            roundTo(z, 2),
		IsAnomaly:         severity != "none",
		Severity:          severity,
		Message:           "Demande dans la plage normale",
		DetectedAt:        now,
	}
	if report.IsAnomaly {
		if currentDemand > mean {
			report.Direction = "spike"
			report.Message = fmt.Sprintf("Pic de demande: %.1f contre %.1f attendu (%.1fσ)", currentDemand, mean, math.Abs(z))
		} else {
			report.Direction = "drop"
			report.Message = fmt.Sprintf("Chute de demande: %.1f contre %.1f attendu (%.1fσ)", currentDemand, mean, math.Abs(z))
		}
		s.logger.WithFields(logrus.Fields{
			"product_id": productID,
			"z_score":    report.ZScore,
			"severity":   severity,
		}).Warn("demand anomaly detected")
	}
	return report, nil
}

// SalesSummary 販売履歴を期間ごとに集計する
func (s *DemandForecastService) SalesSummary(ctx context.Context, productID, granularity string) (*models.SalesAggregation, error) {
	if productID == "" {
		return nil, NewValidationError("product_id is required")
	}
	observations, synthetic, err := s.loadHistory(ctx, productID, CategoryUnknown, 0, s.now())
	if err != nil {
		return nil, err
	}
	agg, err := s.stats.AggregateSales(observations, granularity)
	if err != nil {
		return nil, err
	}
	agg.ProductID = productID
	agg.Synthetic = synthetic
	return agg, nil
}

// EvictPrediction drops one cached prediction.
func (s *DemandForecastService) EvictPrediction(ctx context.Context, productID string, currentStock float64) error {
	return s.cache.Evict(ctx, PredictionKey(productID, currentStock))
}

// ClearCache 予測キャッシュを全て削除
func (s *DemandForecastService) ClearCache(ctx context.Context) error {
	if err := s.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear prediction cache: %w", err)
	}
	s.logger.Info("prediction cache cleared")
	return nil
}

// loadHistory returns the product's real history, or a synthetic series when none exists.
func (s *DemandForecastService) loadHistory(ctx context.Context, productID string, category Category, price float64, now time.Time) ([]models.HistoricalObservation, bool, error) {
	if s.history != nil {
		observations, err := s.history.History(ctx, productID)
		switch {
		case err == nil && len(observations) > 0:
			return observations, false, nil
		case err != nil && !errors.Is(err, ErrNoHistory):
			return nil, false, fmt.Errorf("load history for %s: %w", productID, err)
		}
	}
	s.logger.WithFields(logrus.Fields{
		"product_id": productID,
		"category":   category,
		"days":       s.synthetic.Days(),
	}).Info("no sales history, using synthetic series")
	return s.synthetic.Generate(productID, category, price, now), true, nil
}

func (s *DemandForecastService) trendFactor(qty []float64) float64 {
	trend := s.stats.Trend(qty)
	switch trend.Direction {
	case models.TrendUp:
		return trend.Strength
	case models.TrendDown:
		return -trend.Strength
	default:
		return 0
	}
}

func (s *DemandForecastService) demandFactors(qty []float64, pattern models.DemandPattern, seasonalFactor, trendFactor float64, category Category, synthetic bool) []string {
	factors := []string{}

	if dev := seasonalFactor - 1; math.Abs(dev) > seasonalFactorLimit {
		if dev > 0 {
			factors = append(factors, fmt.Sprintf("Saisonnalité: demande supérieure de %.0f%% ce mois-ci", dev*100))
		} else {
			factors = append(factors, fmt.Sprintf("Saisonnalité: demande inférieure de %.0f%% ce mois-ci", -dev*100))
		}
	}
	if math.Abs(trendFactor) > trendFactorLimit {
		if trendFactor > 0 {
			factors = append(factors, fmt.Sprintf("Tendance à la hausse (+%.1f%%)", trendFactor*100))
		} else {
			factors = append(factors, fmt.Sprintf("Tendance à la baisse (%.1f%%)", trendFactor*100))
		}
	}
	if weekly := s.stats.SeasonalityIndex(qty, 7); math.Abs(weekly-1) > seasonalFactorLimit {
		factors = append(factors, fmt.Sprintf("Effet jour de semaine: indice %.2f", weekly))
	}

	switch {
	case pattern.Consistency > 0.8:
		factors = append(factors, "Demande très régulière")
	case pattern.Consistency < 0.5:
		factors = append(factors, "Demande irrégulière: stock de sécurité renforcé")
	}

	outliers := 0
	for _, o := range s.stats.DetectOutliers(qty) {
		if o {
			outliers++
		}
	}
	if outliers > 0 {
		factors = append(factors, fmt.Sprintf("%d valeurs atypiques dans l'historique", outliers))
	}

	if len(qty) < s.settings.MinSampleSize {
		factors = append(factors, fmt.Sprintf("Historique limité (%d observations)", len(qty)))
	}
	if synthetic {
		factors = append(factors, "Historique simulé: aucune vente enregistrée")
	}
	if !category.Known() {
		factors = append(factors, "Catégorie inconnue: profil saisonnier neutre appliqué")
	}
	return factors
}

// SafetyStock = ceil(z·σ·√L)
func SafetyStock(z, std float64, leadTime int) float64 {
	return math.Ceil(z * std * math.Sqrt(float64(leadTime)))
}

// ReorderPoint = round(d·L + SS)
func ReorderPoint(dailyDemand float64, leadTime int, safetyStock float64) float64 {
	return math.Round(dailyDemand*float64(leadTime) + safetyStock)
}

// EconomicOrderQuantity is the classic sqrt(2DS/H), never below minQty.
func EconomicOrderQuantity(annualDemand, unitCost, orderingCost, holdingRate, minQty float64) float64 {
	holding := unitCost * holdingRate
	if holding <= 0 || annualDemand <= 0 {
		return minQty
	}
	return math.Max(minQty, math.Round(math.Sqrt(2*annualDemand*orderingCost/holding)))
}

func stockUrgency(currentStock float64, daysUntilStockout int, reorderPoint float64) models.Urgency {
	switch {
	case currentStock <= 0 || daysUntilStockout <= 2:
		return models.UrgencyCritical
	case currentStock < 0.5*reorderPoint:
		return models.UrgencyHigh
	case currentStock < reorderPoint:
		return models.UrgencyMedium
	default:
		return models.UrgencyLow
	}
}
