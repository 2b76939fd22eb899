package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"agri-analytics-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingMarket struct{}

func (failingMarket) MarketTrend(context.Context, string) (*models.MarketTrend, error) {
	return nil, errors.New("market feed timeout")
}

func newTestPricer(market MarketTrendSource, settings PricingSettings) *PriceOptimizationService {
	clock := newFakeClock(january15())
	return NewPriceOptimizationService(market, NewStatisticsService(), settings, nil, WithPricingClock(clock.Now))
}

func marketWith(name string, trend models.TrendDirection, prices ...float64) *MemoryMarketTrendSource {
	m := NewMemoryMarketTrendSource()
	competitors := make([]models.CompetitorPrice, len(prices))
	for i, p := range prices {
		competitors[i] = models.CompetitorPrice{Price: p, Quality: "standard"}
	}
	m.Update(models.MarketTrend{ProductName: name, Trend: trend, TrendPercentage: 4, CompetitorPrices: competitors})
	return m
}

func containsLine(lines []string, fragment string) bool {
	for _, l := range lines {
		if strings.Contains(l, fragment) {
			return true
		}
	}
	return false
}

func TestOptimizePrice_Strategies(t *testing.T) {
	svc := newTestPricer(nil, DefaultPricingSettings())
	ctx := context.Background()

	tests := []struct {
		name     string
		req      PriceRequest
		strategy models.PricingStrategy
		price    float64
	}{
		{"organic is premium", PriceRequest{ProductID: "P1", CurrentPrice: 1000, Cost: 500, Quality: "Bio"}, models.StrategyPremium, 910},
		{"high margin skims", PriceRequest{ProductID: "P2", CurrentPrice: 1000, Cost: 500, Quality: "standard"}, models.StrategySkimming, 835},
		{"default competitive", PriceRequest{ProductID: "P3", CurrentPrice: 1000, Cost: 700}, models.StrategyCompetitive, 1000},
		{"no cost keeps price", PriceRequest{ProductID: "P4", CurrentPrice: 1003}, models.StrategySkimming, 1005},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.OptimizePrice(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.strategy, res.Strategy)
			assert.Equal(t, tt.price, res.OptimizedPrice)
			assert.Zero(t, math.Mod(res.OptimizedPrice, 5))
			assert.Equal(t, -1.2, res.Elasticity)
			assert.Equal(t, models.PositionAt, res.CompetitivePosition)
			assert.GreaterOrEqual(t, res.Confidence, 0.0)
			assert.LessOrEqual(t, res.Confidence, 1.0)
			assert.True(t, containsLine(res.Reasoning, "Aucune donnée de marché"))
		})
	}

	_, err := svc.OptimizePrice(ctx, PriceRequest{})
	assert.True(t, IsValidationError(err))
}

func TestOptimizePrice_MarketAdjustments(t *testing.T) {
	ctx := context.Background()
	req := PriceRequest{ProductID: "P1", Name: "Tomates", CurrentPrice: 1000, Cost: 700}

	up, err := newTestPricer(marketWith("tomates", models.TrendUp, 1000, 1000), DefaultPricingSettings()).OptimizePrice(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1050.0, up.OptimizedPrice)
	assert.True(t, containsLine(up.Reasoning, "Marché en hausse"))

	down, err := newTestPricer(marketWith("Tomates ", models.TrendDown, 1000, 1000), DefaultPricingSettings()).OptimizePrice(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 950.0, down.OptimizedPrice)

	// above the market with elastic demand
	above, err := newTestPricer(marketWith("tomates", models.TrendStable, 800, 800), DefaultPricingSettings()).OptimizePrice(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.PositionAbove, above.CompetitivePosition)
	assert.Equal(t, 950.0, above.OptimizedPrice)
	assert.True(t, containsLine(above.Reasoning, "Prix au-dessus du marché"))

	// a broken feed degrades to no market data
	res, err := newTestPricer(failingMarket{}, DefaultPricingSettings()).OptimizePrice(ctx, req)
	require.NoError(t, err)
	assert.True(t, containsLine(res.Reasoning, "Aucune donnée de marché"))
}

func TestOptimizePrice_EstimatedElasticity(t *testing.T) {
	svc := newTestPricer(nil, DefaultPricingSettings())
	start := january15().AddDate(0, 0, -12)
	for i := 0; i < 12; i++ {
		require.NoError(t, svc.RecordSale("P1", 100+float64(i)*10, 200-float64(i)*10, start.AddDate(0, 0, i)))
	}

	res, err := svc.OptimizePrice(context.Background(), PriceRequest{ProductID: "P1", CurrentPrice: 210, Cost: 147})
	require.NoError(t, err)
	// perfectly negative correlation times the -1.5 scale
	assert.InDelta(t, 1.5, res.Elasticity, 1e-6)
	assert.True(t, containsLine(res.Reasoning, "estimée sur 10 ventes"))
	assert.True(t, containsLine(res.Reasoning, "moyenne exponentielle"))
}

func TestRecordSale(t *testing.T) {
	settings := DefaultPricingSettings()
	settings.HistoryCapacity = 3
	svc := newTestPricer(nil, settings)

	for i := 1; i <= 5; i++ {
		require.NoError(t, svc.RecordSale("P1", float64(i), 10, time.Time{}))
	}
	history := svc.PriceHistory("P1")
	require.Len(t, history, 3)
	assert.Equal(t, []float64{3, 4, 5}, []float64{history[0].Price, history[1].Price, history[2].Price})
	assert.Equal(t, january15(), history[0].RecordedAt)

	history[0].Price = 999
	assert.Equal(t, 3.0, svc.PriceHistory("P1")[0].Price)

	assert.True(t, IsValidationError(svc.RecordSale("", 10, 1, time.Time{})))
	assert.True(t, IsValidationError(svc.RecordSale("P1", 0, 1, time.Time{})))
	assert.True(t, IsValidationError(svc.RecordSale("P1", 10, -1, time.Time{})))
	assert.Empty(t, svc.PriceHistory("unknown"))
}

func TestCalculateDynamicPrice(t *testing.T) {
	ctx := context.Background()

	late, err := newTestPricer(nil, DefaultPricingSettings()).CalculateDynamicPrice(ctx, DynamicPriceRequest{
		BasePrice: 100, TimeOfDay: 23, DemandLevel: "medium", StockLevel: 50, OptimalStock: 50,
	})
	require.NoError(t, err)
	assert.Less(t, late.FinalPrice, 100.0)
	assert.Equal(t, 85.0, late.FinalPrice)
	assert.Equal(t, []string{"Tranche horaire 23h (-15%)"}, late.Factors)

	peak, err := newTestPricer(marketWith("fraises", models.TrendUp, 100), DefaultPricingSettings()).CalculateDynamicPrice(ctx, DynamicPriceRequest{
		BasePrice: 100, ProductName: "Fraises", TimeOfDay: 8, DemandLevel: "HIGH", StockLevel: 10, OptimalStock: 50,
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.1*1.05*1.05*1.1, peak.Multipliers.Product(), 1e-9)
	assert.Equal(t, 135.0, peak.FinalPrice)
	assert.Len(t, peak.Factors, 4)

	neutral, err := newTestPricer(nil, DefaultPricingSettings()).CalculateDynamicPrice(ctx, DynamicPriceRequest{BasePrice: 100, TimeOfDay: 12})
	require.NoError(t, err)
	assert.Empty(t, neutral.Factors)
	assert.Equal(t, 100.0, neutral.FinalPrice)

	_, err = newTestPricer(nil, DefaultPricingSettings()).CalculateDynamicPrice(ctx, DynamicPriceRequest{BasePrice: 0})
	assert.True(t, IsValidationError(err))
}

func TestCalculateDynamicPrice_StepRoundingLimits(t *testing.T) {
	ctx := context.Background()
	pricer := newTestPricer(nil, DefaultPricingSettings())
	lateNight := func(base float64) float64 {
		res, err := pricer.CalculateDynamicPrice(ctx, DynamicPriceRequest{BasePrice: base, TimeOfDay: 23, DemandLevel: "medium"})
		require.NoError(t, err)
		return res.FinalPrice
	}

	// 8.5 rounds back to 10: the -15% is smaller than half a step
	assert.Equal(t, 10.0, lateNight(10))
	assert.Equal(t, 15.0, lateNight(20))
	assert.Equal(t, 45.0, lateNight(50))
}

func TestCalculateDynamicPrice_OverflowDoesNotPanic(t *testing.T) {
	pricer := newTestPricer(nil, DefaultPricingSettings())
	var res *models.DynamicPricing
	var err error
	require.NotPanics(t, func() {
		res, err = pricer.CalculateDynamicPrice(context.Background(), DynamicPriceRequest{BasePrice: 1e308, TimeOfDay: 12, DemandLevel: "very_high"})
	})
	require.NoError(t, err)
	assert.True(t, math.IsInf(res.FinalPrice, 1))
}

func TestTimeOfDayMultiplier(t *testing.T) {
	assert.Equal(t, 1.05, timeOfDayMultiplier(8))
	assert.Equal(t, 1.08, timeOfDayMultiplier(18))
	assert.Equal(t, 0.85, timeOfDayMultiplier(3))
	assert.Equal(t, 0.85, timeOfDayMultiplier(-1))
	assert.Equal(t, 1.0, timeOfDayMultiplier(14))
}

func TestAnalyzePriceElasticity(t *testing.T) {
	svc := newTestPricer(nil, DefaultPricingSettings())

	for i := 0; i < 9; i++ {
		require.NoError(t, svc.RecordSale("P1", 100+float64(i), 50, time.Time{}))
	}
	limited := svc.AnalyzePriceElasticity("P1")
	assert.Equal(t, -1.2, limited.Elasticity)
	assert.Equal(t, "modérée, données limitées", limited.Interpretation)
	assert.Equal(t, 0.3, limited.Confidence)
	assert.Equal(t, 9, limited.DataPoints)

	for i := 0; i < 12; i++ {
		require.NoError(t, svc.RecordSale("P2", 100+float64(i)*5, 80-float64(i)*4, time.Time{}))
	}
	full := svc.AnalyzePriceElasticity("P2")
	assert.Equal(t, 12, full.DataPoints)
	assert.InDelta(t, 1.5, full.Elasticity, 1e-3)
	assert.Equal(t, "élastique", full.Interpretation)
	assert.Greater(t, full.Confidence, 0.3)
}

func TestGetCompetitivePricing(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		trend     models.TrendDirection
		suggested float64
	}{
		{models.TrendUp, 1050},
		{models.TrendStable, 1030},
		{models.TrendDown, 1030},
	}
	for _, tt := range tests {
		res, err := newTestPricer(marketWith("pommes", tt.trend, 1000, 1100, 1200), DefaultPricingSettings()).GetCompetitivePricing(ctx, "Pommes", 1000)
		require.NoError(t, err)
		assert.Equal(t, tt.suggested, res.SuggestedPrice, "trend %s", tt.trend)
		assert.Equal(t, 1100.0, res.MarketAverage)
		assert.Equal(t, 1000.0, res.MarketMin)
		assert.Equal(t, 1200.0, res.MarketMax)
		assert.Equal(t, models.PositionBelow, res.Position)
	}

	// falling market, priced above: converge harder
	res, err := newTestPricer(marketWith("pommes", models.TrendDown, 1000, 1100, 1200), DefaultPricingSettings()).GetCompetitivePricing(ctx, "pommes", 1300)
	require.NoError(t, err)
	assert.Equal(t, -100.0, res.Adjustment)
	assert.Equal(t, models.PositionAbove, res.Position)

	none, err := newTestPricer(nil, DefaultPricingSettings()).GetCompetitivePricing(ctx, "pommes", 1002)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, none.SuggestedPrice)
	assert.Equal(t, models.PositionAt, none.Position)

	_, err = newTestPricer(nil, DefaultPricingSettings()).GetCompetitivePricing(ctx, "", 1000)
	assert.True(t, IsValidationError(err))
}

func TestFindOptimalPricePoint(t *testing.T) {
	svc := newTestPricer(nil, DefaultPricingSettings())
	req := OptimalPriceRequest{Cost: 100, CurrentPrice: 200, BaseVolume: 100, Elasticity: -1.2}

	best := svc.FindOptimalPricePoint(req)
	assert.True(t, best.Feasible)
	assert.Equal(t, 37, best.Candidates)
	assert.Equal(t, 235.0, best.Price)
	assert.InDelta(t, 10665, best.ExpectedProfit, 0.01)
	assert.GreaterOrEqual(t, best.Price, 120.0)
	assert.LessOrEqual(t, best.Price, 300.0)

	req.TargetProfit = 1e9
	infeasible := svc.FindOptimalPricePoint(req)
	assert.False(t, infeasible.Feasible)
	assert.Equal(t, 200.0, infeasible.Price)
	assert.Equal(t, 37, infeasible.Candidates)

	noCost := svc.FindOptimalPricePoint(OptimalPriceRequest{CurrentPrice: 200, BaseVolume: 10})
	assert.False(t, noCost.Feasible)
	assert.Zero(t, noCost.Candidates)
}

func TestRoundToStep(t *testing.T) {
	assert.Equal(t, 0.3, RoundToStep(0.1+0.2, 0.1))
	assert.Equal(t, 905.0, RoundToStep(907, 5))
	assert.Equal(t, 15.0, RoundToStep(12.5, 5))
	assert.Equal(t, 12.34, RoundToStep(12.34, 0))
	assert.Equal(t, 1000.0, RoundToStep(1002, 5))
	assert.True(t, math.IsInf(RoundToStep(math.Inf(1), 5), 1))
	assert.True(t, math.IsNaN(RoundToStep(math.NaN(), 5)))
	assert.True(t, math.IsInf(roundTo(math.Inf(-1), 2), -1))
}

func TestPriceImpact(t *testing.T) {
	impact := priceImpact(100, 110, 60, -1.2)
	assert.InDelta(t, -12.0, impact.VolumeChange, 1e-9)
	assert.InDelta(t, -3.2, impact.RevenueChange, 1e-9)
	// (50*0.88 - 40) / 40
	assert.InDelta(t, 10.0, impact.ProfitChange, 1e-9)

	assert.Equal(t, models.ExpectedImpact{}, priceImpact(0, 100, 50, -1.2))
	// volume never goes negative
	assert.Equal(t, -100.0, priceImpact(100, 300, 50, -1.2).VolumeChange)
}
