package services

import (
	"testing"
	"time"

	"agri-analytics-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sale(day int, qty float64) models.HistoricalObservation {
	return models.HistoricalObservation{
		ProductID: "choux",
		Quantity:  qty,
		UnitPrice: 100,
		Timestamp: time.Date(2025, 1, day, 10, 0, 0, 0, time.UTC),
	}
}

func TestAggregateSalesWeekly(t *testing.T) {
	s := NewStatisticsService()
	// 入力順は問わない
	observations := []models.HistoricalObservation{
		sale(15, 45), sale(1, 10), sale(2, 20), sale(8, 15), sale(9, 15),
	}

	agg, err := s.AggregateSales(observations, GranularityWeekly)
	require.NoError(t, err)
	require.Len(t, agg.Periods, 3)

	first := agg.Periods[0]
	assert.Equal(t, "2024-12-30", first.Start)
	assert.Equal(t, "2025-01-05", first.End)
	assert.Equal(t, 30.0, first.TotalQuantity)
	assert.Equal(t, 15.0, first.AverageQuantity)
	assert.Equal(t, 10.0, first.MinQuantity)
	assert.Equal(t, 20.0, first.MaxQuantity)
	assert.Equal(t, 3000.0, first.Revenue)
	assert.Equal(t, 2, first.Days)
	assert.Equal(t, 5.0, first.StdDev)

	assert.Equal(t, 0.0, agg.Periods[1].ChangeRate)
	assert.Equal(t, 50.0, agg.Periods[2].ChangeRate)
	assert.Equal(t, "2025-01-13", agg.Periods[2].Start)

	assert.Equal(t, 35.0, agg.AverageTotal)
	assert.Equal(t, 30.0, agg.MedianTotal)
	assert.Equal(t, 3, agg.BestPeriod)
	assert.Equal(t, 1, agg.WorstPeriod)
	assert.Equal(t, 50.0, agg.GrowthRate)
	assert.InDelta(t, 0.202, agg.Volatility, 1e-3)
	assert.Equal(t, models.TrendUp, agg.Trend)
	assert.Equal(t, []string{
		"Ventes en hausse: anticiper les réapprovisionnements",
		"Meilleure période: n°3, plus faible: n°1",
	}, agg.Recommendations)
}

func TestAggregateSalesGranularities(t *testing.T) {
	s := NewStatisticsService()
	observations := []models.HistoricalObservation{sale(1, 10), sale(1, 5), sale(2, 20), sale(8, 15)}

	daily, err := s.AggregateSales(observations, GranularityDaily)
	require.NoError(t, err)
	require.Len(t, daily.Periods, 3)
	assert.Equal(t, 15.0, daily.Periods[0].TotalQuantity)
	assert.Equal(t, 1, daily.Periods[0].Days)

	monthly, err := s.AggregateSales(observations, GranularityMonthly)
	require.NoError(t, err)
	require.Len(t, monthly.Periods, 1)
	assert.Equal(t, "2025-01-31", monthly.Periods[0].End)
	assert.Equal(t, models.TrendStable, monthly.Trend)
	assert.Equal(t, []string{"Ventes stables: maintenir le niveau de stock actuel"}, monthly.Recommendations)

	// 粒度省略時は週次
	weekly, err := s.AggregateSales(observations, "")
	require.NoError(t, err)
	assert.Equal(t, GranularityWeekly, weekly.Granularity)
}

func TestAggregateSalesRejectsBadInput(t *testing.T) {
	s := NewStatisticsService()

	_, err := s.AggregateSales(nil, GranularityWeekly)
	assert.True(t, IsValidationError(err))

	_, err = s.AggregateSales([]models.HistoricalObservation{sale(1, 1)}, "hourly")
	assert.True(t, IsValidationError(err))
}

func TestMondayOf(t *testing.T) {
	sunday := time.Date(2025, 1, 12, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), mondayOf(sunday))
	monday := time.Date(2025, 1, 6, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), mondayOf(monday))
}
