package models

import "time"

// HistoricalObservation is one recorded sale of a product. Observations are
// append-only: once recorded they are never mutated.
type HistoricalObservation struct {
	ProductID string    `json:"product_id"`
	Quantity  float64   `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
	UnitPrice float64   `json:"unit_price"`
}

// DemandPattern summarizes a demand series. It is derived on every request and never cached.
type DemandPattern struct {
	AverageDailyDemand float64 `json:"average_daily_demand"`
	StandardDeviation  float64 `json:"standard_deviation"`
	Consistency        float64 `json:"consistency"` // 1 - CV, clamped to [0,1]
}

// Urgency 補充の緊急度
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// InventoryPrediction is the stock-needs answer for one product at one stock level.
type InventoryPrediction struct {
	ProductID         string    `json:"product_id"`
	ProductName       string    `json:"product_name"`
	Category          string    `json:"category"`
	CurrentStock      float64   `json:"current_stock"`
	PredictedDemand   float64   `json:"predicted_demand"` // next 7 days
	ReorderPoint      float64   `json:"reorder_point"`
	ReorderQuantity   float64   `json:"reorder_quantity"` // EOQ
	SafetyStock       float64   `json:"safety_stock"`
	DaysUntilStockout int       `json:"days_until_stockout"`
	Confidence        float64   `json:"confidence"`
	Urgency           Urgency   `json:"urgency"`
	Factors           []string  `json:"factors"`
	GeneratedAt       time.Time `json:"generated_at"`
}

// StockItem is one line of an inventory to optimize.
type StockItem struct {
	ProductID    string  `json:"product_id" binding:"required"`
	Name         string  `json:"name"`
	CurrentStock float64 `json:"current_stock"`
	Price        float64 `json:"price"`
	Category     string  `json:"category"`
}

// StockOptimization 在庫最適化の結果
type StockOptimization struct {
	ProductID        string              `json:"product_id"`
	CurrentStock     float64             `json:"current_stock"`
	OptimalStock     float64             `json:"optimal_stock"`
	Overstock        float64             `json:"overstock"`
	PotentialSavings float64             `json:"potential_savings"`
	Recommendation   string              `json:"recommendation"`
	Prediction       InventoryPrediction `json:"prediction"`
}

// DemandForecast is the forecast for a single future day.
type DemandForecast struct {
	Date            string  `json:"date"`
	DayIndex        int     `json:"day_index"`
	PredictedDemand float64 `json:"predicted_demand"`
	LowerBound      float64 `json:"lower_bound"`
	UpperBound      float64 `json:"upper_bound"`
	Confidence      float64 `json:"confidence"`
}

// AnomalyReport describes how unusual a demand reading is against the product's history.
type AnomalyReport struct {
	ReportID          string    `json:"report_id"`
	ProductID         string    `json:"product_id"`
	CurrentDemand     float64   `json:"current_demand"`
	ExpectedDemand    float64   `json:"expected_demand"`
	StandardDeviation float64   `json:"standard_deviation"`
	ZScore            float64   `json:"z_score"`
	IsAnomaly         bool      `json:"is_anomaly"`
	Severity          string    `json:"severity"`  // none, medium, high
	Direction         string    `json:"direction"` // spike, drop
	Message           string    `json:"message"`
	DetectedAt        time.Time `json:"detected_at"`
}

// TrendDirection 方向
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// CompetitorPrice is one competitor listing inside a market snapshot.
type CompetitorPrice struct {
	Price   float64 `json:"price"`
	Quality string  `json:"quality"`
}

// MarketTrend is a point-in-time market snapshot for a product.
type MarketTrend struct {
	ProductName      string            `json:"product_name"`
	CurrentPrice     float64           `json:"current_price"`
	Trend            TrendDirection    `json:"trend"`
	TrendPercentage  float64           `json:"trend_percentage"`
	CompetitorPrices []CompetitorPrice `json:"competitor_prices"`
	SeasonalFactor   float64           `json:"seasonal_factor"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// PricePoint is one entry of the in-memory price history buffer.
type PricePoint struct {
	Price      float64   `json:"price"`
	Volume     float64   `json:"volume"`
	RecordedAt time.Time `json:"recorded_at"`
}

// PricingStrategy 価格戦略
type PricingStrategy string

const (
	StrategyPremium     PricingStrategy = "premium"
	StrategyCompetitive PricingStrategy = "competitive"
	StrategyPenetration PricingStrategy = "penetration"
	StrategySkimming    PricingStrategy = "skimming"
)

// CompetitivePosition is where a price sits relative to the market average.
type CompetitivePosition string

const (
	PositionBelow CompetitivePosition = "below"
	PositionAt    CompetitivePosition = "at"
	PositionAbove CompetitivePosition = "above"
)

// ExpectedImpact holds percentage deltas of a price change.
type ExpectedImpact struct {
	RevenueChange float64 `json:"revenue_change"`
	VolumeChange  float64 `json:"volume_change"`
	ProfitChange  float64 `json:"profit_change"`
}

// PriceOptimization 価格最適化の結果
type PriceOptimization struct {
	ProductID           string              `json:"product_id"`
	ProductName         string              `json:"product_name"`
	CurrentPrice        float64             `json:"current_price"`
	OptimizedPrice      float64             `json:"optimized_price"`
	ExpectedImpact      ExpectedImpact      `json:"expected_impact"`
	Confidence          float64             `json:"confidence"`
	Strategy            PricingStrategy     `json:"strategy"`
	Elasticity          float64             `json:"elasticity"`
	CompetitivePosition CompetitivePosition `json:"competitive_position"`
	Reasoning           []string            `json:"reasoning"`
}

// PriceMultipliers are the independent factors of a dynamic price. They are
// combined as a plain product, so their order carries no meaning.
type PriceMultipliers struct {
	Demand      float64 `json:"demand"`
	Competition float64 `json:"competition"`
	Seasonal    float64 `json:"seasonal"`
	TimeOfDay   float64 `json:"time_of_day"`
	Stock       float64 `json:"stock"`
}

// Product returns the product of all multipliers.
func (m PriceMultipliers) Product() float64 {
	return m.Demand * m.Competition * m.Seasonal * m.TimeOfDay * m.Stock
}

// DynamicPricing 動的価格
type DynamicPricing struct {
	BasePrice   float64          `json:"base_price"`
	Multipliers PriceMultipliers `json:"multipliers"`
	FinalPrice  float64          `json:"final_price"`
	Factors     []string         `json:"factors"`
}

// ElasticityAnalysis is the result of a price elasticity analysis over the recorded history.
type ElasticityAnalysis struct {
	ProductID      string  `json:"product_id"`
	Elasticity     float64 `json:"elasticity"`
	Interpretation string  `json:"interpretation"`
	DataPoints     int     `json:"data_points"`
	Confidence     float64 `json:"confidence"`
}

// CompetitivePricing summarizes competitor prices and proposes a converging price.
type CompetitivePricing struct {
	ProductName    string              `json:"product_name"`
	CurrentPrice   float64             `json:"current_price"`
	MarketAverage  float64             `json:"market_average"`
	MarketMin      float64             `json:"market_min"`
	MarketMax      float64             `json:"market_max"`
	Position       CompetitivePosition `json:"position"`
	SuggestedPrice float64             `json:"suggested_price"`
	Adjustment     float64             `json:"adjustment"`
	Reasoning      string              `json:"reasoning"`
}

// OptimalPricePoint is the result of the profit-maximizing price scan.
type OptimalPricePoint struct {
	Price          float64 `json:"price"`
	ExpectedVolume float64 `json:"expected_volume"`
	ExpectedProfit float64 `json:"expected_profit"`
	Feasible       bool    `json:"feasible"`
	Candidates     int     `json:"candidates"`
}

// StatisticalSummary is the toolkit output for an arbitrary posted series.
type StatisticalSummary struct {
	Count            int            `json:"count"`
	Pattern          DemandPattern  `json:"pattern"`
	TrendDirection   TrendDirection `json:"trend_direction"`
	TrendStrength    float64        `json:"trend_strength"`
	SeasonalityIndex float64        `json:"seasonality_index"`
	MovingAverage    []float64      `json:"moving_average"`
	Smoothed         []float64      `json:"smoothed"`
	Normalized       []float64      `json:"normalized"`
	Outliers         []bool         `json:"outliers"`
}

// PeriodSummary aggregates sales of one day, week (Monday start) or month.
type PeriodSummary struct {
	Index           int     `json:"index"`
	Start           string  `json:"start"`
	End             string  `json:"end"`
	TotalQuantity   float64 `json:"total_quantity"`
	AverageQuantity float64 `json:"average_quantity"`
	MinQuantity     float64 `json:"min_quantity"`
	MaxQuantity     float64 `json:"max_quantity"`
	Revenue         float64 `json:"revenue"`
	Days            int     `json:"days"`
	ChangeRate      float64 `json:"change_rate"` // % vs previous period
	StdDev          float64 `json:"std_dev"`
}

// SalesAggregation 期間別の販売集計
type SalesAggregation struct {
	ProductID       string          `json:"product_id"`
	Granularity     string          `json:"granularity"`
	Synthetic       bool            `json:"synthetic"`
	Periods         []PeriodSummary `json:"periods"`
	AverageTotal    float64         `json:"average_total"`
	MedianTotal     float64         `json:"median_total"`
	BestPeriod      int             `json:"best_period"`
	WorstPeriod     int             `json:"worst_period"`
	GrowthRate      float64         `json:"growth_rate"` // first vs last period, %
	Volatility      float64         `json:"volatility"`  // CV of period totals
	Trend           TrendDirection  `json:"trend"`
	Recommendations []string        `json:"recommendations"`
}
