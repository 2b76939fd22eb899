package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"agri-analytics-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingHistory wraps a source and counts lookups.
type countingHistory struct {
	inner HistorySource
	calls int
	err   error
}

func (c *countingHistory) History(ctx context.Context, productID string) ([]models.HistoricalObservation, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.History(ctx, productID)
}

type fakeClock struct{ t time.Time }

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func january15() time.Time { return time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC) }

func seriesOf(id string, start time.Time, qty ...float64) []models.HistoricalObservation {
	out := make([]models.HistoricalObservation, len(qty))
	for i, q := range qty {
		out[i] = models.HistoricalObservation{ProductID: id, Quantity: q, Timestamp: start.AddDate(0, 0, i), UnitPrice: 100}
	}
	return out
}

func newTestForecaster(history HistorySource, clock *fakeClock) *DemandForecastService {
	return NewDemandForecastService(history, NewMemoryPredictionCache(), NewStatisticsService(), DefaultForecastSettings(), nil,
		WithForecastClock(clock.Now),
		WithSyntheticHistory(NewSyntheticHistoryGenerator(42, 90)),
	)
}

func TestPredictStockNeeds_FruitScenario(t *testing.T) {
	clock := newFakeClock(january15())
	svc := newTestForecaster(NewMemoryHistorySource(), clock)

	p, err := svc.PredictStockNeeds(context.Background(), StockNeedsRequest{
		ProductID:    "tomates-bio",
		ProductName:  "Tomates",
		CurrentStock: 50,
		AveragePrice: 800,
		Category:     "fruits",
	})
	require.NoError(t, err)

	assert.Contains(t, []models.Urgency{models.UrgencyLow, models.UrgencyMedium}, p.Urgency)
	assert.Greater(t, p.DaysUntilStockout, 2)
	assert.NotEmpty(t, p.Factors)
	assert.Contains(t, p.Factors, "Saisonnalité: demande inférieure de 20% ce mois-ci")
	assert.Contains(t, p.Factors, "Historique simulé: aucune vente enregistrée")
	assert.Equal(t, "fruits", p.Category)
	assert.GreaterOrEqual(t, p.ReorderQuantity, 10.0)
	assert.GreaterOrEqual(t, p.Confidence, 0.0)
	assert.LessOrEqual(t, p.Confidence, 1.0)
	assert.Equal(t, clock.Now(), p.GeneratedAt)
}

func TestPredictStockNeeds_ZeroStockIsCritical(t *testing.T) {
	clock := newFakeClock(january15())
	start := clock.Now().AddDate(0, 0, -40)
	volatile := make([]float64, 40)
	for i := range volatile {
		volatile[i] = float64((i * 37) % 90)
	}
	series := map[string][]float64{
		"flat":     repeat(1, 40),
		"volatile": volatile,
	}

	for name, qty := range series {
		for _, category := range []string{"cereales", "fruits", "inconnue"} {
			history := NewMemoryHistorySource()
			history.Append(seriesOf("riz", start, qty...)...)
			svc := newTestForecaster(history, clock)

			p, err := svc.PredictStockNeeds(context.Background(), StockNeedsRequest{ProductID: "riz", CurrentStock: 0, AveragePrice: 50, Category: category})
			require.NoError(t, err)
			assert.Equal(t, string(ParseCategory(category)), p.Category, name)
			assert.Equal(t, models.UrgencyCritical, p.Urgency, name+"/"+category)
			assert.Zero(t, p.DaysUntilStockout)
		}
	}
}

func TestPredictStockNeeds_CachedWithinTTL(t *testing.T) {
	clock := newFakeClock(january15())
	inner := NewMemoryHistorySource()
	inner.Append(seriesOf("mais", clock.Now().AddDate(0, 0, -30), repeat(20, 30)...)...)
	history := &countingHistory{inner: inner}
	svc := newTestForecaster(history, clock)
	req := StockNeedsRequest{ProductID: "mais", CurrentStock: 80, AveragePrice: 30, Category: "cereales"}

	first, err := svc.PredictStockNeeds(context.Background(), req)
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)
	second, err := svc.PredictStockNeeds(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, history.calls)

	// another stock level is another key
	_, err = svc.PredictStockNeeds(context.Background(), StockNeedsRequest{ProductID: "mais", CurrentStock: 81, AveragePrice: 30, Category: "cereales"})
	require.NoError(t, err)
	assert.Equal(t, 2, history.calls)

	// TTL expiry recomputes
	clock.Advance(31 * time.Minute)
	_, err = svc.PredictStockNeeds(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 3, history.calls)

	// explicit eviction and clear
	require.NoError(t, svc.EvictPrediction(context.Background(), "mais", 80))
	_, _ = svc.PredictStockNeeds(context.Background(), req)
	assert.Equal(t, 4, history.calls)

	require.NoError(t, svc.ClearCache(context.Background()))
	_, _ = svc.PredictStockNeeds(context.Background(), req)
	assert.Equal(t, 5, history.calls)
}

func TestPredictStockNeeds_Errors(t *testing.T) {
	clock := newFakeClock(january15())

	svc := newTestForecaster(&countingHistory{err: errors.New("connection refused")}, clock)
	_, err := svc.PredictStockNeeds(context.Background(), StockNeedsRequest{ProductID: "P1", CurrentStock: 10})
	assert.Error(t, err)
	assert.False(t, IsValidationError(err))

	_, err = svc.PredictStockNeeds(context.Background(), StockNeedsRequest{})
	assert.True(t, IsValidationError(err))

	// ErrNoHistory is not a failure
	svc = newTestForecaster(&countingHistory{err: ErrNoHistory}, clock)
	p, err := svc.PredictStockNeeds(context.Background(), StockNeedsRequest{ProductID: "P1", CurrentStock: 10, Category: "épices"})
	require.NoError(t, err)
	assert.Equal(t, string(CategoryUnknown), p.Category)
	assert.Contains(t, p.Factors, "Catégorie inconnue: profil saisonnier neutre appliqué")
}

func TestPredictStockNeeds_Formulas(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC))
	history := NewMemoryHistorySource()
	// mean 11, population std 1
	qty := make([]float64, 40)
	for i := range qty {
		qty[i] = 10 + float64(i%2)*2
	}
	history.Append(seriesOf("lentilles", clock.Now().AddDate(0, 0, -40), qty...)...)
	svc := newTestForecaster(history, clock)

	p, err := svc.PredictStockNeeds(context.Background(), StockNeedsRequest{ProductID: "lentilles", CurrentStock: 25, AveragePrice: 200, Category: "legumes"})
	require.NoError(t, err)

	// September legumes factor 1.0, stable trend, lead time 2
	assert.InDelta(t, 77.0, p.PredictedDemand, 1e-9)
	assert.Equal(t, 3.0, p.SafetyStock)   // ceil(1.65*1*sqrt(2))
	assert.Equal(t, 25.0, p.ReorderPoint) // round(11*2 + 3)
	assert.Equal(t, 2, p.DaysUntilStockout)
	assert.Equal(t, models.UrgencyCritical, p.Urgency)
	// sqrt(2*4015*1000/50)
	assert.Equal(t, 401.0, p.ReorderQuantity)
	assert.Contains(t, p.Factors, "Demande très régulière")
}

func TestEconomicOrderQuantity_Properties(t *testing.T) {
	const ordering, rate, floor = 1000.0, 0.25, 10.0

	prev := 0.0
	for demand := 0.0; demand <= 20000; demand += 250 {
		q := EconomicOrderQuantity(demand, 80, ordering, rate, floor)
		assert.GreaterOrEqual(t, q, prev)
		assert.GreaterOrEqual(t, q, floor)
		prev = q
	}

	prev = EconomicOrderQuantity(5000, 1, ordering, rate, floor)
	for cost := 1.0; cost <= 5000; cost *= 1.5 {
		q := EconomicOrderQuantity(5000, cost, ordering, rate, floor)
		assert.LessOrEqual(t, q, prev)
		assert.GreaterOrEqual(t, q, floor)
		prev = q
	}

	assert.Equal(t, floor, EconomicOrderQuantity(5000, 0, ordering, rate, floor))
	assert.Equal(t, floor, EconomicOrderQuantity(1, 10000, ordering, rate, floor))
}

func TestReorderPoint_IncreasesWithLeadTime(t *testing.T) {
	prev := -1.0
	for lead := 1; lead <= 14; lead++ {
		rop := ReorderPoint(12.5, lead, SafetyStock(1.65, 3.2, lead))
		assert.Greater(t, rop, prev)
		prev = rop
	}
}

func TestOptimizeStockLevels(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC))
	history := NewMemoryHistorySource()
	history.Append(seriesOf("ble", clock.Now().AddDate(0, 0, -30), repeat(10, 30)...)...)
	svc := newTestForecaster(history, clock)

	results, err := svc.OptimizeStockLevels(context.Background(), []models.StockItem{
		{ProductID: "ble", Name: "Blé", CurrentStock: 5, Price: 40, Category: "cereales"},
		{ProductID: "ble", Name: "Blé", CurrentStock: 5000, Price: 40, Category: "cereales"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	low := results[0]
	assert.Zero(t, low.Overstock)
	assert.Contains(t, low.Recommendation, "Réapprovisionner")
	assert.Equal(t, low.Prediction.ReorderPoint+0.5*low.Prediction.ReorderQuantity, low.OptimalStock)

	high := results[1]
	assert.InDelta(t, 5000-high.OptimalStock, high.Overstock, 1e-9)
	assert.InDelta(t, high.Overstock*40*0.1, high.PotentialSavings, 0.01)
	assert.Contains(t, high.Recommendation, "Surstock")

	_, err = svc.OptimizeStockLevels(context.Background(), []models.StockItem{{ProductID: ""}})
	assert.True(t, IsValidationError(err))
}

func TestForecastDemand(t *testing.T) {
	clock := newFakeClock(january15())
	history := NewMemoryHistorySource()
	qty := make([]float64, 60)
	for i := range qty {
		qty[i] = 20 + float64(i%3)
	}
	history.Append(seriesOf("oignons", clock.Now().AddDate(0, 0, -60), qty...)...)
	svc := newTestForecaster(history, clock)

	empty, err := svc.ForecastDemand(context.Background(), "oignons", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	capped, err := svc.ForecastDemand(context.Background(), "oignons", 365)
	require.NoError(t, err)
	assert.Len(t, capped, 90)

	forecasts, err := svc.ForecastDemand(context.Background(), "oignons", 14)
	require.NoError(t, err)
	require.Len(t, forecasts, 14)
	assert.Equal(t, "2025-01-16", forecasts[0].Date)

	for i, f := range forecasts {
		assert.Equal(t, i+1, f.DayIndex)
		assert.GreaterOrEqual(t, f.LowerBound, 0.0)
		assert.LessOrEqual(t, f.LowerBound, f.PredictedDemand)
		assert.GreaterOrEqual(t, f.UpperBound, f.PredictedDemand)
		if i > 0 {
			assert.LessOrEqual(t, f.Confidence, forecasts[i-1].Confidence)
			assert.GreaterOrEqual(t, f.UpperBound-f.LowerBound, forecasts[i-1].UpperBound-forecasts[i-1].LowerBound-0.02)
		}
	}

	_, err = svc.ForecastDemand(context.Background(), "", 7)
	assert.True(t, IsValidationError(err))
}

func TestForecastDemand_IndependentOfHorizon(t *testing.T) {
	clock := newFakeClock(january15())
	history := NewMemoryHistorySource()
	qty := make([]float64, 60)
	for i := range qty {
		qty[i] = 10 + float64(i)
	}
	history.Append(seriesOf("courges", clock.Now().AddDate(0, 0, -60), qty...)...)
	svc := newTestForecaster(history, clock)

	week, err := svc.ForecastDemand(context.Background(), "courges", 7)
	require.NoError(t, err)
	month, err := svc.ForecastDemand(context.Background(), "courges", 30)
	require.NoError(t, err)

	require.Len(t, month, 30)
	assert.Equal(t, week, month[:7])
}

func TestDetectAnomalies(t *testing.T) {
	clock := newFakeClock(january15())
	history := NewMemoryHistorySource()
	qty := make([]float64, 20)
	for i := range qty {
		qty[i] = 10 + float64(i%2)*2
	}
	history.Append(seriesOf("carottes", clock.Now().AddDate(0, 0, -20), qty...)...)
	history.Append(seriesOf("flat", clock.Now().AddDate(0, 0, -5), 7, 7, 7, 7, 7)...)
	svc := newTestForecaster(history, clock)
	ctx := context.Background()

	tests := []struct {
		demand    float64
		anomaly   bool
		severity  string
		direction string
	}{
		{11, false, "none", ""},
		{14, true, "medium", "spike"},
		{20, true, "high", "spike"},
		{8.5, true, "medium", "drop"},
		{2, true, "high", "drop"},
	}
	for _, tt := range tests {
		r, err := svc.DetectAnomalies(ctx, "carottes", tt.demand)
		require.NoError(t, err)
		assert.Equal(t, tt.anomaly, r.IsAnomaly, "demand %v", tt.demand)
		assert.Equal(t, tt.severity, r.Severity, "demand %v", tt.demand)
		assert.Equal(t, tt.direction, r.Direction, "demand %v", tt.demand)
		assert.Equal(t, 11.0, r.ExpectedDemand)
		assert.NotEmpty(t, r.ReportID)
	}

	r, err := svc.DetectAnomalies(ctx, "flat", 1000)
	require.NoError(t, err)
	assert.False(t, r.IsAnomaly)
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
